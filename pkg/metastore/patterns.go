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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// UpsertPattern creates or refreshes a pattern by unique name.
func (s *Store) UpsertPattern(ctx context.Context, p model.Pattern) (model.Pattern, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Confidence = model.ClampConfidence(p.Confidence)
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, name, category, description, confidence, active, example_count, reject_count, last_matched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			description = excluded.description,
			confidence = excluded.confidence,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Category, p.Description, p.Confidence, p.Active,
		p.ExampleCount, p.RejectCount, p.LastMatchedAt, p.UpdatedAt)
	if err != nil {
		return model.Pattern{}, fmt.Errorf("upsert pattern %q: %w", p.Name, err)
	}
	return s.GetPatternByName(ctx, p.Name)
}

// GetPattern loads a pattern by ID.
func (s *Store) GetPattern(ctx context.Context, id string) (model.Pattern, error) {
	var p model.Pattern
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM patterns WHERE id = ?`, id); err != nil {
		return model.Pattern{}, notFound(err)
	}
	return p, nil
}

// GetPatternByName loads a pattern by unique name.
func (s *Store) GetPatternByName(ctx context.Context, name string) (model.Pattern, error) {
	var p model.Pattern
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM patterns WHERE name = ?`, name); err != nil {
		return model.Pattern{}, notFound(err)
	}
	return p, nil
}

// ListMatchablePatterns returns patterns eligible for matching: active with
// confidence at or above the floor, ordered by confidence descending.
func (s *Store) ListMatchablePatterns(ctx context.Context) ([]model.Pattern, error) {
	var out []model.Pattern
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM patterns
		WHERE active = 1 AND confidence >= ?
		ORDER BY confidence DESC, name`, model.ConfidenceFloor)
	return out, err
}

// ApplyApproval moves a pattern's confidence up by boost (clamped), stamps
// last_matched_at and bumps the example counter.
func (s *Store) ApplyApproval(ctx context.Context, patternID string, boost float64) (before, after float64, err error) {
	p, err := s.GetPattern(ctx, patternID)
	if err != nil {
		return 0, 0, err
	}
	before = p.Confidence
	after = model.ClampConfidence(before + boost)
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE patterns SET confidence = ?, last_matched_at = ?, example_count = example_count + 1, updated_at = ?
		WHERE id = ?`, after, now, now, patternID)
	return before, after, err
}

// ApplyRejection moves a pattern's confidence down by penalty (floored) and
// bumps the rejection counter.
func (s *Store) ApplyRejection(ctx context.Context, patternID string, penalty float64) (before, after float64, err error) {
	p, err := s.GetPattern(ctx, patternID)
	if err != nil {
		return 0, 0, err
	}
	before = p.Confidence
	after = model.ClampConfidence(before - penalty)
	_, err = s.db.ExecContext(ctx, `
		UPDATE patterns SET confidence = ?, reject_count = reject_count + 1, updated_at = ?
		WHERE id = ?`, after, time.Now().UTC(), patternID)
	return before, after, err
}

// DecayConfidences applies linear-in-days decay to every active pattern not
// updated within the last 24 h and still above the floor, as one SQL update:
// confidence ← max(floor, c · (1 − rate · days_since_update)).
func (s *Store) DecayConfidences(ctx context.Context, ratePerDay float64, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE patterns
		SET confidence = max(?, confidence * (1.0 - ? * ((julianday(?) - julianday(updated_at))))),
		    updated_at = ?
		WHERE active = 1
		  AND confidence > ?
		  AND updated_at < ?`,
		model.ConfidenceFloor, ratePerDay, now.UTC(), now.UTC(),
		model.ConfidenceFloor, now.UTC().Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("decay confidences: %w", err)
	}
	return res.RowsAffected()
}

// UpsertRole creates or refreshes one measurement role of a pattern, keyed
// by (pattern, name). Name patterns are stored as a JSON array.
func (s *Store) UpsertRole(ctx context.Context, r model.PatternRole) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	patterns, err := json.Marshal(r.NamePatterns)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pattern_roles (id, pattern_id, name, required, weight, name_patterns, expected_unit, expected_min, expected_max, typical_interval_ms, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id, name) DO UPDATE SET
			required = excluded.required,
			weight = excluded.weight,
			name_patterns = excluded.name_patterns,
			expected_unit = excluded.expected_unit,
			expected_min = excluded.expected_min,
			expected_max = excluded.expected_max,
			typical_interval_ms = excluded.typical_interval_ms,
			position = excluded.position`,
		r.ID, r.PatternID, r.Name, r.Required, r.Weight, string(patterns),
		r.ExpectedUnit, r.ExpectedMin, r.ExpectedMax, r.TypicalEvery.Milliseconds(), r.Position)
	if err != nil {
		return fmt.Errorf("upsert role %q: %w", r.Name, err)
	}
	return nil
}

// ListRoles returns a pattern's roles in insertion order.
func (s *Store) ListRoles(ctx context.Context, patternID string) ([]model.PatternRole, error) {
	var rows []roleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM pattern_roles WHERE pattern_id = ? ORDER BY position, rowid`, patternID)
	if err != nil {
		return nil, err
	}
	out := make([]model.PatternRole, len(rows))
	for i, r := range rows {
		role, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = role
	}
	return out, nil
}

type roleRow struct {
	ID                string          `db:"id"`
	PatternID         string          `db:"pattern_id"`
	Name              string          `db:"name"`
	Required          bool            `db:"required"`
	Weight            float64         `db:"weight"`
	NamePatternsJSON  string          `db:"name_patterns"`
	ExpectedUnit      string          `db:"expected_unit"`
	ExpectedMin       sql.NullFloat64 `db:"expected_min"`
	ExpectedMax       sql.NullFloat64 `db:"expected_max"`
	TypicalIntervalMS int64           `db:"typical_interval_ms"`
	Position          int             `db:"position"`
}

func (r roleRow) toModel() (model.PatternRole, error) {
	var namePatterns []string
	if err := json.Unmarshal([]byte(r.NamePatternsJSON), &namePatterns); err != nil {
		return model.PatternRole{}, fmt.Errorf("role %s name patterns: %w", r.Name, err)
	}
	return model.PatternRole{
		ID:           r.ID,
		PatternID:    r.PatternID,
		Name:         r.Name,
		Required:     r.Required,
		Weight:       r.Weight,
		NamePatterns: namePatterns,
		ExpectedUnit: r.ExpectedUnit,
		ExpectedMin:  r.ExpectedMin,
		ExpectedMax:  r.ExpectedMax,
		TypicalEvery: time.Duration(r.TypicalIntervalMS) * time.Millisecond,
		Position:     r.Position,
	}, nil
}
