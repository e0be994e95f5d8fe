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
package model

import (
	"database/sql"
	"time"
)

// Pattern confidence is clamped to [ConfidenceFloor, ConfidenceCeil]
// throughout the learning loop.
const (
	ConfidenceFloor = 0.30
	ConfidenceCeil  = 1.00
)

// Pattern is an equipment template (pump, turbine, battery, ...) against
// which behavioral clusters and proactive groups are matched. Patterns are
// system-seeded or learned; confidence moves with reviewer feedback.
type Pattern struct {
	ID            string       `db:"id" json:"id"`
	Name          string       `db:"name" json:"name"`
	Category      string       `db:"category" json:"category"`
	Description   string       `db:"description" json:"description"`
	Confidence    float64      `db:"confidence" json:"confidence"`
	Active        bool         `db:"active" json:"active"`
	ExampleCount  int64        `db:"example_count" json:"example_count"`
	RejectCount   int64        `db:"reject_count" json:"reject_count"`
	LastMatchedAt sql.NullTime `db:"last_matched_at" json:"last_matched_at,omitempty"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// ClampConfidence bounds a confidence value to the legal range.
func ClampConfidence(c float64) float64 {
	if c < ConfidenceFloor {
		return ConfidenceFloor
	}
	if c > ConfidenceCeil {
		return ConfidenceCeil
	}
	return c
}

// PatternRole is one measurement slot inside a pattern. NamePatterns are
// case-insensitive regexes matched against tag names; the remaining fields
// are optional expectations used by the range/rate/unit sub-scores.
// Role names are unique within a pattern; ordering is insertion order.
type PatternRole struct {
	ID           string          `db:"id" json:"id"`
	PatternID    string          `db:"pattern_id" json:"pattern_id"`
	Name         string          `db:"name" json:"name"`
	Required     bool            `db:"required" json:"required"`
	Weight       float64         `db:"weight" json:"weight"`
	NamePatterns []string        `db:"-" json:"name_patterns"`
	ExpectedUnit string          `db:"expected_unit" json:"expected_unit"`
	ExpectedMin  sql.NullFloat64 `db:"expected_min" json:"expected_min"`
	ExpectedMax  sql.NullFloat64 `db:"expected_max" json:"expected_max"`
	TypicalEvery time.Duration   `db:"typical_interval_ms" json:"typical_interval_ms"`
	Position     int             `db:"position" json:"position"`
}

// HasRange reports whether the role declares an expected value range.
func (r PatternRole) HasRange() bool {
	return r.ExpectedMin.Valid && r.ExpectedMax.Valid
}
