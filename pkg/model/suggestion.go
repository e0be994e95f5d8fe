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

// SuggestionState is the review lifecycle of a suggestion.
// pending → {approved, rejected, deferred, expired}.
type SuggestionState string

const (
	SuggestionPending  SuggestionState = "pending"
	SuggestionApproved SuggestionState = "approved"
	SuggestionRejected SuggestionState = "rejected"
	SuggestionDeferred SuggestionState = "deferred"
	SuggestionExpired  SuggestionState = "expired"
)

// DefaultSuggestionTTL is how long a pending suggestion stays reviewable.
const DefaultSuggestionTTL = 30 * 24 * time.Hour

// Suggestion proposes associating a cluster with a pattern. Unique on
// (cluster, pattern). Sub-scores are in [0, 1]; for proactive suggestions
// the mapping is naming→NamingScore, unit→RangeScore, metadata→RateScore
// and CorrelationScore is 0 (no behavioral data yet).
type Suggestion struct {
	ID               string          `db:"id" json:"id"`
	ClusterID        string          `db:"cluster_id" json:"cluster_id"`
	PatternID        string          `db:"pattern_id" json:"pattern_id"`
	NamingScore      float64         `db:"naming_score" json:"naming_score"`
	CorrelationScore float64         `db:"correlation_score" json:"correlation_score"`
	RangeScore       float64         `db:"range_score" json:"range_score"`
	RateScore        float64         `db:"rate_score" json:"rate_score"`
	Overall          float64         `db:"overall" json:"overall"`
	Reason           string          `db:"reason" json:"reason"`
	ExplanationJSON  string          `db:"explanation_json" json:"explanation_json"`
	State            SuggestionState `db:"state" json:"state"`
	Reviewer         string          `db:"reviewer" json:"reviewer"`
	ReviewedAt       sql.NullTime    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason  string          `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt        time.Time       `db:"expires_at" json:"expires_at"`
}

// Explanation is the structured counterpart of Suggestion.Reason. Both
// representations are persisted and must survive round-trip independently.
type Explanation struct {
	Scores       map[string]float64 `json:"scores"`
	MatchedRoles []RoleAssignment   `json:"matched_roles,omitempty"`
	Tokens       map[string][]Token `json:"tokens,omitempty"`
	NamePrefix   string             `json:"name_prefix,omitempty"`
}

// RoleAssignment records which tag best fills a pattern role.
type RoleAssignment struct {
	Role  string  `json:"role"`
	SeqID int64   `json:"seq_id"`
	Tag   string  `json:"tag"`
	Score float64 `json:"score"`
}

// Token is one parsed tag-name token with its knowledge-base expansion.
type Token struct {
	Raw         string `json:"raw"`
	Expansion   string `json:"expansion,omitempty"`
	Measurement string `json:"measurement,omitempty"`
}

// Binding is the persisted assignment of a tag to a pattern after a
// suggestion has been approved. Unique on (tag, pattern).
type Binding struct {
	ID         string         `db:"id" json:"id"`
	SeqID      int64          `db:"seq_id" json:"seq_id"`
	PatternID  string         `db:"pattern_id" json:"pattern_id"`
	Role       sql.NullString `db:"role" json:"role,omitempty"`
	Reviewer   string         `db:"reviewer" json:"reviewer"`
	Confidence float64        `db:"confidence" json:"confidence"` // suggestion overall at binding time
	BoundAt    time.Time      `db:"bound_at" json:"bound_at"`
}

// FeedbackAction is the reviewer decision recorded in the feedback log.
type FeedbackAction string

const (
	FeedbackApproved FeedbackAction = "approved"
	FeedbackRejected FeedbackAction = "rejected"
	FeedbackDeferred FeedbackAction = "deferred"
)

// FeedbackEntry is the append-only record of one reviewer decision.
type FeedbackEntry struct {
	ID               string         `db:"id" json:"id"`
	SuggestionID     string         `db:"suggestion_id" json:"suggestion_id"`
	Action           FeedbackAction `db:"action" json:"action"`
	Actor            string         `db:"actor" json:"actor"`
	ConfidenceBefore float64        `db:"confidence_before" json:"confidence_before"`
	ConfidenceAfter  float64        `db:"confidence_after" json:"confidence_after"`
	RejectionReason  string         `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
