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
)

// initSchema creates all metadata tables. Idempotent; runs at every startup.
// Array-valued columns (cluster members, role name patterns) and structured
// explanations are stored as JSON text.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	-- Tags. seq_id is the compact time-series key: assigned at creation,
	-- monotonic, never reused (AUTOINCREMENT forbids rowid reuse).
	CREATE TABLE IF NOT EXISTS points (
		seq_id INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL UNIQUE,
		source_id TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		value_type TEXT NOT NULL DEFAULT 'double',
		enabled INTEGER NOT NULL DEFAULT 1,
		update_interval_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_points_source ON points(source_id);
	CREATE INDEX IF NOT EXISTS idx_points_enabled ON points(enabled);

	-- Equipment pattern library.
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		example_count INTEGER NOT NULL DEFAULT 0,
		reject_count INTEGER NOT NULL DEFAULT 0,
		last_matched_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pattern_roles (
		id TEXT PRIMARY KEY,
		pattern_id TEXT NOT NULL REFERENCES patterns(id),
		name TEXT NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		weight REAL NOT NULL DEFAULT 1.0,
		name_patterns TEXT NOT NULL DEFAULT '[]',  -- JSON array of regexes
		expected_unit TEXT NOT NULL DEFAULT '',
		expected_min REAL,
		expected_max REAL,
		typical_interval_ms INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		UNIQUE(pattern_id, name)
	);

	-- Behavioral fingerprints, one row per tag, overwritten per cadence.
	CREATE TABLE IF NOT EXISTS fingerprints (
		seq_id INTEGER PRIMARY KEY,
		sample_count INTEGER NOT NULL,
		mean REAL NOT NULL,
		stddev REAL NOT NULL,
		min REAL NOT NULL,
		max REAL NOT NULL,
		update_rate REAL NOT NULL,
		window_start TIMESTAMP NOT NULL,
		window_end TIMESTAMP NOT NULL,
		computed_at TIMESTAMP NOT NULL
	);

	-- Pairwise correlation edges; canonical order seq_a < seq_b.
	CREATE TABLE IF NOT EXISTS correlations (
		seq_a INTEGER NOT NULL,
		seq_b INTEGER NOT NULL,
		r REAL NOT NULL,
		sample_count INTEGER NOT NULL,
		window_start TIMESTAMP NOT NULL,
		window_end TIMESTAMP NOT NULL,
		computed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (seq_a, seq_b)
	);
	CREATE INDEX IF NOT EXISTS idx_correlations_computed ON correlations(computed_at);

	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,          -- md5 of sorted members, uuid-rendered
		members TEXT NOT NULL,        -- JSON array of seq_ids, sorted
		cohesion REAL NOT NULL,
		proactive INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		detected_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_active ON clusters(active);

	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		cluster_id TEXT NOT NULL REFERENCES clusters(id),
		pattern_id TEXT NOT NULL REFERENCES patterns(id),
		naming_score REAL NOT NULL,
		correlation_score REAL NOT NULL,
		range_score REAL NOT NULL,
		rate_score REAL NOT NULL,
		overall REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		explanation_json TEXT NOT NULL DEFAULT '{}',
		state TEXT NOT NULL DEFAULT 'pending',
		reviewer TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMP,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		UNIQUE(cluster_id, pattern_id)
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_state ON suggestions(state);
	CREATE INDEX IF NOT EXISTS idx_suggestions_cluster ON suggestions(cluster_id);

	CREATE TABLE IF NOT EXISTS bindings (
		id TEXT PRIMARY KEY,
		seq_id INTEGER NOT NULL,
		pattern_id TEXT NOT NULL REFERENCES patterns(id),
		role TEXT,
		reviewer TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		bound_at TIMESTAMP NOT NULL,
		UNIQUE(seq_id, pattern_id)
	);

	-- Append-only reviewer decision log.
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		suggestion_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		confidence_before REAL NOT NULL,
		confidence_after REAL NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_suggestion ON feedback(suggestion_id);

	-- Knowledge base for the proactive matcher.
	CREATE TABLE IF NOT EXISTS abbreviations (
		token TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		expansion TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		measurement TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (token, context)
	);
	CREATE TABLE IF NOT EXISTS unit_mappings (
		unit TEXT PRIMARY KEY,
		measurement TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS naming_conventions (
		id TEXT PRIMARY KEY,
		regex TEXT NOT NULL,
		boost REAL NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS measurement_types (
		name TEXT PRIMARY KEY,
		parent TEXT NOT NULL DEFAULT ''
	);

	-- Backfill progress, one row per completed or failed chunk.
	CREATE TABLE IF NOT EXISTS backfill_checkpoints (
		request_id TEXT NOT NULL,
		chunk_start TIMESTAMP NOT NULL,
		chunk_end TIMESTAMP NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		completed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (request_id, chunk_start)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
