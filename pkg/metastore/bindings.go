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

	"github.com/teradata-labs/flywheel/pkg/model"
)

// UpsertBinding assigns a tag to a pattern, keyed by (tag, pattern).
// Approving the same suggestion twice refreshes rather than duplicates.
func (s *Store) UpsertBinding(ctx context.Context, b model.Binding) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BoundAt.IsZero() {
		b.BoundAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (id, seq_id, pattern_id, role, reviewer, confidence, bound_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq_id, pattern_id) DO UPDATE SET
			role = excluded.role,
			reviewer = excluded.reviewer,
			confidence = excluded.confidence`,
		b.ID, b.SeqID, b.PatternID, b.Role, b.Reviewer, b.Confidence, b.BoundAt)
	if err != nil {
		return fmt.Errorf("upsert binding (%d, %s): %w", b.SeqID, b.PatternID, err)
	}
	return nil
}

// ListBindingsByPattern returns a pattern's bindings ordered by tag.
func (s *Store) ListBindingsByPattern(ctx context.Context, patternID string) ([]model.Binding, error) {
	var out []model.Binding
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM bindings WHERE pattern_id = ? ORDER BY seq_id`, patternID)
	return out, err
}

// ListBindingsByTag returns every binding of one tag.
func (s *Store) ListBindingsByTag(ctx context.Context, seqID int64) ([]model.Binding, error) {
	var out []model.Binding
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM bindings WHERE seq_id = ? ORDER BY bound_at`, seqID)
	return out, err
}

// AppendFeedback records one reviewer decision in the append-only log.
func (s *Store) AppendFeedback(ctx context.Context, f model.FeedbackEntry) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, suggestion_id, action, actor, confidence_before, confidence_after, rejection_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SuggestionID, f.Action, f.Actor, f.ConfidenceBefore, f.ConfidenceAfter, f.RejectionReason, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("append feedback for %s: %w", f.SuggestionID, err)
	}
	return nil
}

// ListFeedbackBySuggestion returns a suggestion's feedback entries oldest
// first.
func (s *Store) ListFeedbackBySuggestion(ctx context.Context, suggestionID string) ([]model.FeedbackEntry, error) {
	var out []model.FeedbackEntry
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM feedback WHERE suggestion_id = ? ORDER BY created_at`, suggestionID)
	return out, err
}

// PurgeFeedbackOlderThan trims the feedback log to the retention window.
func (s *Store) PurgeFeedbackOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
