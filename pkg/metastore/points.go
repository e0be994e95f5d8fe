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

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// CreatePoint registers a new tag and returns it with its assigned sequence
// ID. Names are unique per deployment; a duplicate name is an error.
func (s *Store) CreatePoint(ctx context.Context, p model.Point) (model.Point, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ValueType == "" {
		p.ValueType = model.ValueTypeDouble
	}
	p.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO points (id, name, source_id, address, description, unit, value_type, enabled, update_interval_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SourceID, p.Address, p.Description, p.Unit, p.ValueType, p.Enabled, p.UpdateInterval.Milliseconds(), p.CreatedAt)
	if err != nil {
		return model.Point{}, fmt.Errorf("create point %q: %w", p.Name, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.Point{}, fmt.Errorf("create point %q: %w", p.Name, err)
	}
	p.SeqID = seq
	return p, nil
}

// UpdatePoint overwrites the mutable attributes of an existing tag.
func (s *Store) UpdatePoint(ctx context.Context, p model.Point) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE points SET name = ?, source_id = ?, address = ?, description = ?,
			unit = ?, value_type = ?, enabled = ?, update_interval_ms = ?
		WHERE seq_id = ?`,
		p.Name, p.SourceID, p.Address, p.Description, p.Unit, p.ValueType, p.Enabled, p.UpdateInterval.Milliseconds(), p.SeqID)
	return err
}

// SetPointEnabled flips the enabled flag. Telemetry is never deleted here.
func (s *Store) SetPointEnabled(ctx context.Context, seqID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE points SET enabled = ? WHERE seq_id = ?`, enabled, seqID)
	return err
}

// GetPoint loads a tag by sequence ID.
func (s *Store) GetPoint(ctx context.Context, seqID int64) (model.Point, error) {
	var r pointRow
	if err := s.db.GetContext(ctx, &r, `SELECT * FROM points WHERE seq_id = ?`, seqID); err != nil {
		return model.Point{}, notFound(err)
	}
	return r.toModel(), nil
}

// GetPointByName loads a tag by its unique name.
func (s *Store) GetPointByName(ctx context.Context, name string) (model.Point, error) {
	var r pointRow
	if err := s.db.GetContext(ctx, &r, `SELECT * FROM points WHERE name = ?`, name); err != nil {
		return model.Point{}, notFound(err)
	}
	return r.toModel(), nil
}

// GetPointByAddress resolves a source address to a tag within one source.
func (s *Store) GetPointByAddress(ctx context.Context, sourceID, address string) (model.Point, error) {
	var r pointRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM points WHERE source_id = ? AND address = ?`, sourceID, address)
	if err != nil {
		return model.Point{}, notFound(err)
	}
	return r.toModel(), nil
}

// ListEnabledPoints returns every enabled tag, ordered by sequence ID.
func (s *Store) ListEnabledPoints(ctx context.Context) ([]model.Point, error) {
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM points WHERE enabled = 1 ORDER BY seq_id`); err != nil {
		return nil, err
	}
	return toPoints(rows), nil
}

// ListEnabledPointsBySource returns the enabled tags owned by one source.
func (s *Store) ListEnabledPointsBySource(ctx context.Context, sourceID string) ([]model.Point, error) {
	var rows []pointRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM points WHERE enabled = 1 AND source_id = ? ORDER BY seq_id`, sourceID)
	if err != nil {
		return nil, err
	}
	return toPoints(rows), nil
}

// ListSourceIDs returns the distinct source identifiers of enabled tags.
func (s *Store) ListSourceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT source_id FROM points WHERE enabled = 1 ORDER BY source_id`)
	return ids, err
}

// PointsBySeqIDs loads a set of tags keyed by sequence ID.
func (s *Store) PointsBySeqIDs(ctx context.Context, seqIDs []int64) (map[int64]model.Point, error) {
	if len(seqIDs) == 0 {
		return map[int64]model.Point{}, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM points WHERE seq_id IN (?)`, seqIDs)
	if err != nil {
		return nil, err
	}
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make(map[int64]model.Point, len(rows))
	for _, r := range rows {
		out[r.SeqID] = r.toModel()
	}
	return out, nil
}

// ListUnanalyzedPoints returns enabled tags with no binding and no
// membership in a recent proactive cluster. This is the proactive matcher's
// default working set.
func (s *Store) ListUnanalyzedPoints(ctx context.Context, since time.Time) ([]model.Point, error) {
	var rows []pointRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.* FROM points p
		WHERE p.enabled = 1
		  AND NOT EXISTS (SELECT 1 FROM bindings b WHERE b.seq_id = p.seq_id)
		  AND NOT EXISTS (
			SELECT 1 FROM clusters c, json_each(c.members) je
			WHERE c.proactive = 1 AND c.detected_at >= ? AND je.value = p.seq_id
		  )
		ORDER BY p.seq_id`, since)
	if err != nil {
		return nil, err
	}
	return toPoints(rows), nil
}

type pointRow struct {
	ID               string          `db:"id"`
	SeqID            int64           `db:"seq_id"`
	Name             string          `db:"name"`
	SourceID         string          `db:"source_id"`
	Address          string          `db:"address"`
	Description      string          `db:"description"`
	Unit             string          `db:"unit"`
	ValueType        model.ValueType `db:"value_type"`
	Enabled          bool            `db:"enabled"`
	UpdateIntervalMS int64           `db:"update_interval_ms"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (r pointRow) toModel() model.Point {
	return model.Point{
		ID:             r.ID,
		SeqID:          r.SeqID,
		Name:           r.Name,
		SourceID:       r.SourceID,
		Address:        r.Address,
		Description:    r.Description,
		Unit:           r.Unit,
		ValueType:      r.ValueType,
		Enabled:        r.Enabled,
		UpdateInterval: time.Duration(r.UpdateIntervalMS) * time.Millisecond,
		CreatedAt:      r.CreatedAt,
	}
}

func toPoints(rows []pointRow) []model.Point {
	out := make([]model.Point, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
