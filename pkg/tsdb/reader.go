// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// ErrNoData is returned when a read matches no rows.
var ErrNoData = errors.New("tsdb: no data")

// Client talks to the time-series store. One Client is shared process-wide;
// the writer side is single-instance by convention, readers are safe
// concurrently.
type Client struct {
	cfg Config
	db  *sql.DB
}

// New opens the query connection and returns a ready client. The ILP side
// dials lazily per write.
func New(cfg Config) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = "datapoints"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	db, err := sql.Open("postgres", cfg.QueryDSN)
	if err != nil {
		return nil, fmt.Errorf("open tsdb query endpoint: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(time.Minute)
	return &Client{cfg: cfg, db: db}, nil
}

// Ping verifies the query endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the query connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Range implements Gateway.
func (c *Client) Range(ctx context.Context, seqID int64, start, end time.Time, limit int) ([]model.DataPoint, error) {
	q := fmt.Sprintf(`
		SELECT ts, value, quality FROM %s
		WHERE seq = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts`, c.cfg.Table)
	args := []any{strconv.FormatInt(seqID, 10), start.UTC(), end.UTC()}
	if limit > 0 {
		q += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("range read seq %d: %w", seqID, err)
	}
	defer rows.Close()

	var out []model.DataPoint
	for rows.Next() {
		var (
			ts      time.Time
			value   float64
			quality int
		)
		if err := rows.Scan(&ts, &value, &quality); err != nil {
			return nil, err
		}
		out = append(out, model.DataPoint{
			SeqID:     seqID,
			Timestamp: ts.UTC(),
			Value:     value,
			Quality:   model.Quality(quality),
		})
	}
	return out, rows.Err()
}

// LastValue implements Gateway.
func (c *Client) LastValue(ctx context.Context, seqID int64) (model.DataPoint, error) {
	q := fmt.Sprintf(`
		SELECT ts, value, quality FROM %s
		WHERE seq = $1
		ORDER BY ts DESC LIMIT 1`, c.cfg.Table)

	var (
		ts      time.Time
		value   float64
		quality int
	)
	err := c.db.QueryRowContext(ctx, q, strconv.FormatInt(seqID, 10)).Scan(&ts, &value, &quality)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DataPoint{}, ErrNoData
	}
	if err != nil {
		return model.DataPoint{}, fmt.Errorf("last value seq %d: %w", seqID, err)
	}
	return model.DataPoint{SeqID: seqID, Timestamp: ts.UTC(), Value: value, Quality: model.Quality(quality)}, nil
}

// AggregateWindow implements Gateway.
func (c *Client) AggregateWindow(ctx context.Context, seqID int64, start, end time.Time) (Aggregate, error) {
	q := fmt.Sprintf(`
		SELECT min(value), max(value), avg(value), stddev_samp(value), count(*)
		FROM %s
		WHERE seq = $1 AND ts >= $2 AND ts <= $3`, c.cfg.Table)

	var (
		agg    Aggregate
		minV   sql.NullFloat64
		maxV   sql.NullFloat64
		mean   sql.NullFloat64
		stddev sql.NullFloat64
	)
	err := c.db.QueryRowContext(ctx, q, strconv.FormatInt(seqID, 10), start.UTC(), end.UTC()).
		Scan(&minV, &maxV, &mean, &stddev, &agg.Count)
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate seq %d: %w", seqID, err)
	}
	if agg.Count == 0 {
		return Aggregate{}, ErrNoData
	}
	agg.Min = minV.Float64
	agg.Max = maxV.Float64
	agg.Mean = mean.Float64
	// A single sample has no sample stddev; report 0.
	agg.StdDev = stddev.Float64
	return agg, nil
}

// PairCorrelation implements Gateway. The store performs the ASOF join:
// each sample of tag A pairs with the latest sample of tag B at or before
// its timestamp.
func (c *Client) PairCorrelation(ctx context.Context, seqA, seqB int64, start, end time.Time) (float64, int64, error) {
	q := fmt.Sprintf(`
		SELECT corr(a.value, b.value), count(*)
		FROM (SELECT ts, value FROM %[1]s WHERE seq = $1 AND ts >= $3 AND ts <= $4) a
		ASOF JOIN (SELECT ts, value FROM %[1]s WHERE seq = $2 AND ts >= $3 AND ts <= $4) b`,
		c.cfg.Table)

	var (
		r sql.NullFloat64
		n int64
	)
	err := c.db.QueryRowContext(ctx, q,
		strconv.FormatInt(seqA, 10), strconv.FormatInt(seqB, 10), start.UTC(), end.UTC()).
		Scan(&r, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("pair correlation (%d, %d): %w", seqA, seqB, err)
	}
	if !r.Valid {
		// Constant series or no aligned rows.
		return 0, n, nil
	}
	return r.Float64, n, nil
}
