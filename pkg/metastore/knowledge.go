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
	"strings"

	"github.com/google/uuid"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// UpsertAbbreviation adds or refreshes one dictionary entry keyed by
// (token, context).
func (s *Store) UpsertAbbreviation(ctx context.Context, a model.Abbreviation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO abbreviations (token, context, expansion, priority, measurement)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token, context) DO UPDATE SET
			expansion = excluded.expansion,
			priority = excluded.priority,
			measurement = excluded.measurement`,
		strings.ToLower(a.Token), a.Context, a.Expansion, a.Priority, a.Measurement)
	return err
}

// LoadAbbreviations returns the full dictionary keyed by lowercase token.
// Ambiguous tokens keep all their context entries; callers pick by priority.
func (s *Store) LoadAbbreviations(ctx context.Context) (map[string][]model.Abbreviation, error) {
	var rows []model.Abbreviation
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM abbreviations ORDER BY token, priority DESC`); err != nil {
		return nil, err
	}
	out := make(map[string][]model.Abbreviation)
	for _, a := range rows {
		out[a.Token] = append(out[a.Token], a)
	}
	return out, nil
}

// UpsertUnitMapping adds or refreshes one unit → measurement mapping.
func (s *Store) UpsertUnitMapping(ctx context.Context, m model.UnitMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unit_mappings (unit, measurement) VALUES (?, ?)
		ON CONFLICT(unit) DO UPDATE SET measurement = excluded.measurement`,
		m.Unit, m.Measurement)
	return err
}

// LoadUnitMappings returns unit symbol → canonical measurement type.
func (s *Store) LoadUnitMappings(ctx context.Context) (map[string]string, error) {
	var rows []model.UnitMapping
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM unit_mappings`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, m := range rows {
		out[m.Unit] = m.Measurement
	}
	return out, nil
}

// UpsertNamingConvention adds or refreshes one site naming rule.
func (s *Store) UpsertNamingConvention(ctx context.Context, c model.NamingConvention) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO naming_conventions (id, regex, boost, comment) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			regex = excluded.regex,
			boost = excluded.boost,
			comment = excluded.comment`,
		c.ID, c.Regex, c.Boost, c.Comment)
	return err
}

// ListNamingConventions returns all site naming rules.
func (s *Store) ListNamingConventions(ctx context.Context) ([]model.NamingConvention, error) {
	var out []model.NamingConvention
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM naming_conventions ORDER BY boost DESC`)
	return out, err
}

// UpsertMeasurementType adds one node of the measurement-type hierarchy.
func (s *Store) UpsertMeasurementType(ctx context.Context, m model.MeasurementType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO measurement_types (name, parent) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET parent = excluded.parent`,
		m.Name, m.Parent)
	return err
}
