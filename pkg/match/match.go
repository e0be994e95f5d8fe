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
// Package match scores tag groups against the pattern library and emits
// review suggestions. The behavioral mode works from detected clusters and
// fingerprints; the proactive mode works from tag names and the knowledge
// base alone, before any telemetry exists.
package match

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

// Store is the metastore surface both matcher modes share.
// *metastore.Store satisfies it.
type Store interface {
	ListMatchablePatterns(ctx context.Context) ([]model.Pattern, error)
	ListRoles(ctx context.Context, patternID string) ([]model.PatternRole, error)
	PointsBySeqIDs(ctx context.Context, seqIDs []int64) (map[int64]model.Point, error)
	GetFingerprints(ctx context.Context, staleCutoff time.Time) (map[int64]model.Fingerprint, error)
	ListActiveClusters(ctx context.Context) ([]model.Cluster, error)
	HasRecentPendingSuggestion(ctx context.Context, clusterID string, since time.Time) (bool, error)
	UpsertSuggestion(ctx context.Context, sg model.Suggestion) (model.Suggestion, error)
	UpsertCluster(ctx context.Context, c model.Cluster) error
	ListUnanalyzedPoints(ctx context.Context, since time.Time) ([]model.Point, error)
	LoadAbbreviations(ctx context.Context) (map[string][]model.Abbreviation, error)
	LoadUnitMappings(ctx context.Context) (map[string]string, error)
	ListNamingConventions(ctx context.Context) ([]model.NamingConvention, error)
}

// Publisher announces new suggestions; nil disables publication.
type Publisher interface {
	Publish(topic, key string, v any) (<-chan queue.PublishResult, error)
}

func announce(pub Publisher, sg model.Suggestion) {
	if pub == nil {
		return
	}
	if _, err := pub.Publish(queue.TopicSuggestions, sg.ID, sg); err != nil {
		log.Warn("suggestion publish failed", zap.String("suggestion", sg.ID), zap.Error(err))
	}
}

// role wraps a pattern role with its compiled regexes. A role with any
// uncompilable regex is treated as unmatched for the whole pass: a broken
// library entry must not half-match on its surviving expressions.
type role struct {
	model.PatternRole
	regexes []*regexp.Regexp
}

func compileRoles(roles []model.PatternRole) []role {
	out := make([]role, 0, len(roles))
	for _, r := range roles {
		cr := role{PatternRole: r}
		for _, p := range r.NamePatterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				log.Warn("unusable role regex",
					zap.String("role", r.Name), zap.String("pattern", p), zap.Error(err))
				cr.regexes = nil
				break
			}
			cr.regexes = append(cr.regexes, re)
		}
		out = append(out, cr)
	}
	return out
}

// matches reports whether any of the role's regexes hits the tag name.
func (r role) matches(name string) bool {
	for _, re := range r.regexes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// matchesAny reports whether the role hits at least one of the names.
func (r role) matchesAny(names []string) bool {
	for _, n := range names {
		if r.matches(n) {
			return true
		}
	}
	return false
}

// commonPrefix returns the longest common prefix of the names, with any
// trailing separator run trimmed.
func commonPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}
	prefix := names[0]
	for _, n := range names[1:] {
		for !strings.HasPrefix(n, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return strings.TrimRight(prefix, "_.- ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
