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
// Package learning closes the feedback loop: reviewer decisions move
// pattern confidence, approvals materialize bindings, and periodic runs
// decay confidence, expire stale suggestions and run retention.
package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

// ErrNotPending is returned when a decision targets a suggestion that has
// already left the pending state.
var ErrNotPending = errors.New("learning: suggestion is not pending")

// Config tunes the confidence arithmetic and retention windows.
type Config struct {
	Boost       float64
	Penalty     float64
	DecayPerDay float64
	// SuggestionPurgeAfter removes expired suggestions this long after
	// expiry.
	SuggestionPurgeAfter time.Duration
	// ClusterPurgeAfter removes unreferenced inactive clusters.
	ClusterPurgeAfter time.Duration
	// FingerprintPurgeAfter removes stale fingerprints.
	FingerprintPurgeAfter time.Duration
	// Retention bounds correlation edges and the feedback log.
	Retention time.Duration
	// CacheTTL is applied to fast-cache keys found without one.
	CacheTTL time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		Boost:                 0.05,
		Penalty:               0.03,
		DecayPerDay:           0.005,
		SuggestionPurgeAfter:  7 * 24 * time.Hour,
		ClusterPurgeAfter:     7 * 24 * time.Hour,
		FingerprintPurgeAfter: 7 * 24 * time.Hour,
		Retention:             90 * 24 * time.Hour,
		CacheTTL:              24 * time.Hour,
	}
}

// Store is the metastore surface the learner needs. *metastore.Store
// satisfies it.
type Store interface {
	GetSuggestion(ctx context.Context, id string) (model.Suggestion, error)
	SetSuggestionState(ctx context.Context, id string, state model.SuggestionState, reviewer, rejectionReason string) (bool, error)
	GetCluster(ctx context.Context, id string) (model.Cluster, error)
	GetPattern(ctx context.Context, id string) (model.Pattern, error)
	ApplyApproval(ctx context.Context, patternID string, boost float64) (before, after float64, err error)
	ApplyRejection(ctx context.Context, patternID string, penalty float64) (before, after float64, err error)
	UpsertBinding(ctx context.Context, b model.Binding) error
	AppendFeedback(ctx context.Context, f model.FeedbackEntry) error
	ExpirePendingSuggestions(ctx context.Context, now time.Time) (int64, error)
	DecayConfidences(ctx context.Context, ratePerDay float64, now time.Time) (int64, error)
	PurgeExpiredSuggestions(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeCorrelationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeInactiveClusters(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFeedbackOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFingerprintsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Analyze(ctx context.Context) error
}

// Cache is the fast-cache surface maintenance needs.
type Cache interface {
	EnsureTTLs(ctx context.Context, ttl time.Duration) (int, error)
}

// Publisher announces pattern updates; nil disables publication.
type Publisher interface {
	Publish(topic, key string, v any) (<-chan queue.PublishResult, error)
}

// Learner applies reviewer decisions and runs the periodic jobs.
type Learner struct {
	cfg   Config
	store Store
	cache Cache
	pub   Publisher
}

// New wires a learner. cache and pub may be nil.
func New(cfg Config, store Store, cache Cache, pub Publisher) *Learner {
	def := DefaultConfig()
	if cfg.Boost <= 0 {
		cfg.Boost = def.Boost
	}
	if cfg.Penalty <= 0 {
		cfg.Penalty = def.Penalty
	}
	if cfg.DecayPerDay <= 0 {
		cfg.DecayPerDay = def.DecayPerDay
	}
	if cfg.SuggestionPurgeAfter <= 0 {
		cfg.SuggestionPurgeAfter = def.SuggestionPurgeAfter
	}
	if cfg.ClusterPurgeAfter <= 0 {
		cfg.ClusterPurgeAfter = def.ClusterPurgeAfter
	}
	if cfg.FingerprintPurgeAfter <= 0 {
		cfg.FingerprintPurgeAfter = def.FingerprintPurgeAfter
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Learner{cfg: cfg, store: store, cache: cache, pub: pub}
}

// Review is the outcome of one reviewer decision.
type Review struct {
	Suggestion model.Suggestion
	Before     float64
	After      float64
}

// Approve accepts a pending suggestion: the pattern's confidence rises by
// the boost (capped), every cluster member gets a binding, and a feedback
// entry records the move. The reason is optional and stored on the
// suggestion. A second approval of the same suggestion returns
// ErrNotPending and changes nothing.
func (l *Learner) Approve(ctx context.Context, suggestionID, reviewer, reason string) (Review, error) {
	sg, err := l.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return Review{}, err
	}
	moved, err := l.store.SetSuggestionState(ctx, suggestionID, model.SuggestionApproved, reviewer, reason)
	if err != nil {
		return Review{}, err
	}
	if !moved {
		return Review{}, ErrNotPending
	}

	before, after, err := l.store.ApplyApproval(ctx, sg.PatternID, l.cfg.Boost)
	if err != nil {
		return Review{}, err
	}

	cl, err := l.store.GetCluster(ctx, sg.ClusterID)
	if err != nil {
		return Review{}, err
	}
	roles := roleBySeqID(sg)
	now := time.Now().UTC()
	for _, seqID := range cl.Members {
		b := model.Binding{
			SeqID:      seqID,
			PatternID:  sg.PatternID,
			Reviewer:   reviewer,
			Confidence: sg.Overall,
			BoundAt:    now,
		}
		if role, ok := roles[seqID]; ok {
			b.Role = sql.NullString{String: role, Valid: true}
		}
		if err := l.store.UpsertBinding(ctx, b); err != nil {
			return Review{}, err
		}
	}

	if err := l.store.AppendFeedback(ctx, model.FeedbackEntry{
		SuggestionID:     suggestionID,
		Action:           model.FeedbackApproved,
		Actor:            reviewer,
		ConfidenceBefore: before,
		ConfidenceAfter:  after,
		CreatedAt:        now,
	}); err != nil {
		return Review{}, err
	}

	l.announcePattern(ctx, sg.PatternID)
	sg.State = model.SuggestionApproved
	return Review{Suggestion: sg, Before: before, After: after}, nil
}

// Reject declines a pending suggestion: confidence drops by the penalty
// (floored) and the reason is stored on the suggestion and the feedback
// entry.
func (l *Learner) Reject(ctx context.Context, suggestionID, reviewer, reason string) (Review, error) {
	sg, err := l.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return Review{}, err
	}
	moved, err := l.store.SetSuggestionState(ctx, suggestionID, model.SuggestionRejected, reviewer, reason)
	if err != nil {
		return Review{}, err
	}
	if !moved {
		return Review{}, ErrNotPending
	}

	before, after, err := l.store.ApplyRejection(ctx, sg.PatternID, l.cfg.Penalty)
	if err != nil {
		return Review{}, err
	}
	if err := l.store.AppendFeedback(ctx, model.FeedbackEntry{
		SuggestionID:     suggestionID,
		Action:           model.FeedbackRejected,
		Actor:            reviewer,
		ConfidenceBefore: before,
		ConfidenceAfter:  after,
		RejectionReason:  reason,
	}); err != nil {
		return Review{}, err
	}

	l.announcePattern(ctx, sg.PatternID)
	sg.State = model.SuggestionRejected
	return Review{Suggestion: sg, Before: before, After: after}, nil
}

// Defer postpones a pending suggestion: a feedback entry is recorded and
// confidence is untouched.
func (l *Learner) Defer(ctx context.Context, suggestionID, reviewer string) error {
	sg, err := l.store.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	moved, err := l.store.SetSuggestionState(ctx, suggestionID, model.SuggestionDeferred, reviewer, "")
	if err != nil {
		return err
	}
	if !moved {
		return ErrNotPending
	}
	p, err := l.store.GetPattern(ctx, sg.PatternID)
	if err != nil {
		return err
	}
	return l.store.AppendFeedback(ctx, model.FeedbackEntry{
		SuggestionID:     suggestionID,
		Action:           model.FeedbackDeferred,
		Actor:            reviewer,
		ConfidenceBefore: p.Confidence,
		ConfidenceAfter:  p.Confidence,
	})
}

// roleBySeqID recovers the role assignments from the suggestion's
// structured explanation; an unparsable explanation yields no roles.
func roleBySeqID(sg model.Suggestion) map[int64]string {
	if sg.ExplanationJSON == "" {
		return nil
	}
	var expl model.Explanation
	if err := json.Unmarshal([]byte(sg.ExplanationJSON), &expl); err != nil {
		return nil
	}
	out := make(map[int64]string, len(expl.MatchedRoles))
	for _, ra := range expl.MatchedRoles {
		out[ra.SeqID] = ra.Role
	}
	return out
}

// RunOnce is the periodic learning pass: expire overdue pending
// suggestions, then decay stale confidences.
func (l *Learner) RunOnce(ctx context.Context, now time.Time) error {
	expired, err := l.store.ExpirePendingSuggestions(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		log.Info("expired pending suggestions", zap.Int64("count", expired))
	}
	decayed, err := l.store.DecayConfidences(ctx, l.cfg.DecayPerDay, now)
	if err != nil {
		return err
	}
	if decayed > 0 {
		log.Info("decayed pattern confidences", zap.Int64("count", decayed))
	}
	return nil
}

// Maintain is the daily retention pass. Each step is attempted even when
// an earlier one fails; the first error is returned.
func (l *Learner) Maintain(ctx context.Context, now time.Time) error {
	var firstErr error
	step := func(name string, n int64, err error) {
		if err != nil {
			log.Warn("maintenance step failed", zap.String("step", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if n > 0 {
			log.Info("maintenance step", zap.String("step", name), zap.Int64("removed", n))
		}
	}

	n, err := l.store.PurgeExpiredSuggestions(ctx, now.Add(-l.cfg.SuggestionPurgeAfter))
	step("purge expired suggestions", n, err)
	n, err = l.store.PurgeCorrelationsOlderThan(ctx, now.Add(-l.cfg.Retention))
	step("purge correlations", n, err)
	n, err = l.store.PurgeInactiveClusters(ctx, now.Add(-l.cfg.ClusterPurgeAfter))
	step("purge inactive clusters", n, err)
	n, err = l.store.PurgeFeedbackOlderThan(ctx, now.Add(-l.cfg.Retention))
	step("purge feedback", n, err)
	n, err = l.store.PurgeFingerprintsOlderThan(ctx, now.Add(-l.cfg.FingerprintPurgeAfter))
	step("purge fingerprints", n, err)

	if l.cache != nil {
		repaired, err := l.cache.EnsureTTLs(ctx, l.cfg.CacheTTL)
		step("repair cache ttls", int64(repaired), err)
	}
	if err := l.store.Analyze(ctx); err != nil {
		step("refresh statistics", 0, err)
	}
	return firstErr
}

func (l *Learner) announcePattern(ctx context.Context, patternID string) {
	if l.pub == nil {
		return
	}
	p, err := l.store.GetPattern(ctx, patternID)
	if err != nil {
		log.Warn("pattern reload for publish failed", zap.String("pattern", patternID), zap.Error(err))
		return
	}
	if _, err := l.pub.Publish(queue.TopicPatternsUpdated, p.ID, p); err != nil {
		log.Warn("pattern update publish failed", zap.String("pattern", p.ID), zap.Error(err))
	}
}
