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
package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// UpsertFingerprint overwrites the tag's behavioral fingerprint.
func (s *Store) UpsertFingerprint(ctx context.Context, f model.Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (seq_id, sample_count, mean, stddev, min, max, update_rate, window_start, window_end, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq_id) DO UPDATE SET
			sample_count = excluded.sample_count,
			mean = excluded.mean,
			stddev = excluded.stddev,
			min = excluded.min,
			max = excluded.max,
			update_rate = excluded.update_rate,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			computed_at = excluded.computed_at`,
		f.SeqID, f.SampleCount, f.Mean, f.StdDev, f.Min, f.Max, f.UpdateRate,
		f.WindowStart, f.WindowEnd, f.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert fingerprint %d: %w", f.SeqID, err)
	}
	return nil
}

// GetFingerprints loads the fingerprints of the given tags, excluding any
// computed before staleCutoff (a stale fingerprint is treated as absent).
func (s *Store) GetFingerprints(ctx context.Context, staleCutoff time.Time) (map[int64]model.Fingerprint, error) {
	var rows []model.Fingerprint
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM fingerprints WHERE computed_at >= ?`, staleCutoff.UTC())
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.Fingerprint, len(rows))
	for _, f := range rows {
		out[f.SeqID] = f
	}
	return out, nil
}

// PurgeFingerprintsOlderThan removes fingerprints not recomputed since
// cutoff.
func (s *Store) PurgeFingerprintsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE computed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertCorrelation stores one edge under its canonical (low, high) key.
func (s *Store) UpsertCorrelation(ctx context.Context, e model.CorrelationEdge) error {
	a, b := model.OrderPair(e.SeqA, e.SeqB)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO correlations (seq_a, seq_b, r, sample_count, window_start, window_end, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq_a, seq_b) DO UPDATE SET
			r = excluded.r,
			sample_count = excluded.sample_count,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			computed_at = excluded.computed_at`,
		a, b, e.R, e.SampleCount, e.WindowStart, e.WindowEnd, e.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert correlation (%d, %d): %w", a, b, err)
	}
	return nil
}

// ListCorrelationsSince returns every edge computed at or after since.
func (s *Store) ListCorrelationsSince(ctx context.Context, since time.Time) ([]model.CorrelationEdge, error) {
	var out []model.CorrelationEdge
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM correlations WHERE computed_at >= ? ORDER BY seq_a, seq_b`, since.UTC())
	return out, err
}

// PurgeCorrelationsOlderThan trims edges to the retention window.
func (s *Store) PurgeCorrelationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM correlations WHERE computed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordBackfillChunk checkpoints one processed backfill chunk.
func (s *Store) RecordBackfillChunk(ctx context.Context, requestID string, chunkStart, chunkEnd time.Time, points int64, failed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_checkpoints (request_id, chunk_start, chunk_end, points, failed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id, chunk_start) DO UPDATE SET
			chunk_end = excluded.chunk_end,
			points = excluded.points,
			failed = excluded.failed,
			completed_at = excluded.completed_at`,
		requestID, chunkStart.UTC(), chunkEnd.UTC(), points, failed, time.Now().UTC())
	return err
}
