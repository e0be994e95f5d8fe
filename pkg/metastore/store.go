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
// Package metastore is the gateway to the relational metadata store: tags,
// the pattern library, clusters, suggestions, bindings, the knowledge base
// and the feedback log. All writes are per-entity UPSERTs on unique keys;
// no cross-entity transactions are required or offered.
package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/teradata-labs/flywheel/internal/sqlitedriver"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("metastore: not found")

// Store wraps the metadata database. Safe for concurrent use; SQLite runs
// in WAL mode so analysis jobs can read while the ingest path writes.
type Store struct {
	db *sqlx.DB
}

// Open connects to the metadata database at path (":memory:" for tests),
// applies pragmas and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	// _time_format=sqlite stores time.Time in a layout SQLite's own date
	// functions (julianday, datetime) can parse; confidence decay relies
	// on that.
	dsn := fmt.Sprintf("file:%s?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_time_format=sqlite"
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection to
	// avoid SQLITE_BUSY under concurrent jobs.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Analyze refreshes table statistics for the query planner.
func (s *Store) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `ANALYZE`)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
