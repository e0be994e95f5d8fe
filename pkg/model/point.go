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

import "time"

// ValueType describes the native type of a tag's samples. Everything is
// coerced to float64 on ingest; the declared type drives coercion rules.
type ValueType string

const (
	ValueTypeDouble  ValueType = "double"
	ValueTypeInteger ValueType = "integer"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeString  ValueType = "string"
)

// Point is a single addressable measurement stream (a "tag") from an
// industrial source. SeqID is assigned once at creation and never reused;
// it is the compact key in the time-series store. Name is unique per
// deployment. Disabling a point does not delete its telemetry.
type Point struct {
	ID             string        `db:"id" json:"id"`
	SeqID          int64         `db:"seq_id" json:"seq_id"`
	Name           string        `db:"name" json:"name"`
	SourceID       string        `db:"source_id" json:"source_id"`
	Address        string        `db:"address" json:"address"`
	Description    string        `db:"description" json:"description"`
	Unit           string        `db:"unit" json:"unit"`
	ValueType      ValueType     `db:"value_type" json:"value_type"`
	Enabled        bool          `db:"enabled" json:"enabled"`
	UpdateInterval time.Duration `db:"update_interval_ms" json:"update_interval_ms"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// Fingerprint is the windowed statistical summary of a tag's behavior,
// recomputed on every aggregator cadence and overwritten in place.
type Fingerprint struct {
	SeqID       int64     `db:"seq_id" json:"seq_id"`
	SampleCount int64     `db:"sample_count" json:"sample_count"`
	Mean        float64   `db:"mean" json:"mean"`
	StdDev      float64   `db:"stddev" json:"stddev"`
	Min         float64   `db:"min" json:"min"`
	Max         float64   `db:"max" json:"max"`
	UpdateRate  float64   `db:"update_rate" json:"update_rate"` // samples per second
	WindowStart time.Time `db:"window_start" json:"window_start"`
	WindowEnd   time.Time `db:"window_end" json:"window_end"`
	ComputedAt  time.Time `db:"computed_at" json:"computed_at"`
}

// SourceState is the advisory connection state of a data source.
type SourceState string

const (
	SourceDisconnected SourceState = "disconnected"
	SourceConnecting   SourceState = "connecting"
	SourceConnected    SourceState = "connected"
	SourceError        SourceState = "error"
)
