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

// UpsertSuggestion creates or refreshes a suggestion keyed by
// (cluster, pattern). A refresh updates the scores and explanation but
// leaves the review state of a non-pending suggestion untouched.
func (s *Store) UpsertSuggestion(ctx context.Context, sg model.Suggestion) (model.Suggestion, error) {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	if sg.State == "" {
		sg.State = model.SuggestionPending
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}
	if sg.ExpiresAt.IsZero() {
		sg.ExpiresAt = sg.CreatedAt.Add(model.DefaultSuggestionTTL)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, cluster_id, pattern_id, naming_score, correlation_score, range_score, rate_score,
			overall, reason, explanation_json, state, reviewer, reviewed_at, rejection_reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cluster_id, pattern_id) DO UPDATE SET
			naming_score = excluded.naming_score,
			correlation_score = excluded.correlation_score,
			range_score = excluded.range_score,
			rate_score = excluded.rate_score,
			overall = excluded.overall,
			reason = excluded.reason,
			explanation_json = excluded.explanation_json,
			expires_at = excluded.expires_at
		WHERE suggestions.state = 'pending'`,
		sg.ID, sg.ClusterID, sg.PatternID, sg.NamingScore, sg.CorrelationScore, sg.RangeScore, sg.RateScore,
		sg.Overall, sg.Reason, sg.ExplanationJSON, sg.State, sg.Reviewer, sg.ReviewedAt, sg.RejectionReason,
		sg.CreatedAt, sg.ExpiresAt)
	if err != nil {
		return model.Suggestion{}, fmt.Errorf("upsert suggestion (%s, %s): %w", sg.ClusterID, sg.PatternID, err)
	}
	return s.GetSuggestionByPair(ctx, sg.ClusterID, sg.PatternID)
}

// GetSuggestion loads one suggestion by ID.
func (s *Store) GetSuggestion(ctx context.Context, id string) (model.Suggestion, error) {
	var sg model.Suggestion
	if err := s.db.GetContext(ctx, &sg, `SELECT * FROM suggestions WHERE id = ?`, id); err != nil {
		return model.Suggestion{}, notFound(err)
	}
	return sg, nil
}

// GetSuggestionByPair loads the unique suggestion for (cluster, pattern).
func (s *Store) GetSuggestionByPair(ctx context.Context, clusterID, patternID string) (model.Suggestion, error) {
	var sg model.Suggestion
	err := s.db.GetContext(ctx, &sg,
		`SELECT * FROM suggestions WHERE cluster_id = ? AND pattern_id = ?`, clusterID, patternID)
	if err != nil {
		return model.Suggestion{}, notFound(err)
	}
	return sg, nil
}

// ListPendingSuggestions returns pending suggestions, newest first.
func (s *Store) ListPendingSuggestions(ctx context.Context) ([]model.Suggestion, error) {
	var out []model.Suggestion
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM suggestions WHERE state = 'pending' ORDER BY created_at DESC`)
	return out, err
}

// HasRecentPendingSuggestion reports whether the cluster received a pending
// suggestion after since. The behavioral matcher uses this to avoid
// re-scoring a cluster every cadence.
func (s *Store) HasRecentPendingSuggestion(ctx context.Context, clusterID string, since time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM suggestions
		WHERE cluster_id = ? AND state = 'pending' AND created_at >= ?`, clusterID, since.UTC())
	return n > 0, err
}

// SetSuggestionState transitions a suggestion out of pending. Only pending
// suggestions transition; a second identical decision is a no-op.
func (s *Store) SetSuggestionState(ctx context.Context, id string, state model.SuggestionState, reviewer, rejectionReason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions
		SET state = ?, reviewer = ?, reviewed_at = ?, rejection_reason = ?
		WHERE id = ? AND state = 'pending'`,
		state, reviewer, time.Now().UTC(), rejectionReason, id)
	if err != nil {
		return false, fmt.Errorf("set suggestion %s state: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpirePendingSuggestions transitions pending suggestions past their
// expires_at to expired. Returns the number transitioned.
func (s *Store) ExpirePendingSuggestions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET state = 'expired'
		WHERE state = 'pending' AND expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpiredSuggestions deletes expired suggestions whose expiry is older
// than cutoff.
func (s *Store) PurgeExpiredSuggestions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM suggestions WHERE state = 'expired' AND expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
