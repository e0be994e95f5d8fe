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
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
)

// BehavioralWeights splits the behavioral overall score.
type BehavioralWeights struct {
	Naming      float64
	Correlation float64
	Range       float64
	Rate        float64
}

// DefaultBehavioralWeights matches the documented defaults.
func DefaultBehavioralWeights() BehavioralWeights {
	return BehavioralWeights{Naming: 0.30, Correlation: 0.40, Range: 0.20, Rate: 0.10}
}

// BehavioralConfig tunes the behavioral matcher.
type BehavioralConfig struct {
	Weights BehavioralWeights
	// MinOverall is the keep threshold; exactly-at is kept.
	MinOverall float64
	// MaxPerCluster bounds suggestions per cluster per run.
	MaxPerCluster int
	// RecentWindow skips clusters that already got a pending suggestion
	// this recently.
	RecentWindow time.Duration
	// SuggestionTTL sets the expiry of created suggestions.
	SuggestionTTL time.Duration
	// FingerprintMaxAge treats older fingerprints as absent.
	FingerprintMaxAge time.Duration
}

// DefaultBehavioralConfig matches the documented defaults.
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		Weights:           DefaultBehavioralWeights(),
		MinOverall:        0.50,
		MaxPerCluster:     5,
		RecentWindow:      time.Hour,
		SuggestionTTL:     model.DefaultSuggestionTTL,
		FingerprintMaxAge: 48 * time.Hour,
	}
}

// Behavioral scores active clusters against the pattern library.
type Behavioral struct {
	cfg   BehavioralConfig
	store Store
	pub   Publisher
}

// NewBehavioral wires the behavioral matcher. pub may be nil.
func NewBehavioral(cfg BehavioralConfig, store Store, pub Publisher) *Behavioral {
	def := DefaultBehavioralConfig()
	if cfg.Weights == (BehavioralWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.MinOverall <= 0 {
		cfg.MinOverall = def.MinOverall
	}
	if cfg.MaxPerCluster <= 0 {
		cfg.MaxPerCluster = def.MaxPerCluster
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.SuggestionTTL <= 0 {
		cfg.SuggestionTTL = def.SuggestionTTL
	}
	if cfg.FingerprintMaxAge <= 0 {
		cfg.FingerprintMaxAge = def.FingerprintMaxAge
	}
	return &Behavioral{cfg: cfg, store: store, pub: pub}
}

// RunOnce scores every eligible active cluster and returns the number of
// suggestions upserted.
func (m *Behavioral) RunOnce(ctx context.Context, now time.Time) (int, error) {
	clusters, err := m.store.ListActiveClusters(ctx)
	if err != nil {
		return 0, err
	}
	patterns, err := m.store.ListMatchablePatterns(ctx)
	if err != nil {
		return 0, err
	}
	fps, err := m.store.GetFingerprints(ctx, now.Add(-m.cfg.FingerprintMaxAge))
	if err != nil {
		return 0, err
	}

	created := 0
	for _, cl := range clusters {
		recent, err := m.store.HasRecentPendingSuggestion(ctx, cl.ID, now.Add(-m.cfg.RecentWindow))
		if err != nil {
			return created, err
		}
		if recent {
			continue
		}
		n, err := m.matchCluster(ctx, cl, patterns, fps, now)
		if err != nil {
			log.Warn("cluster match failed", zap.String("cluster", cl.ID), zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

type behavioralScore struct {
	pattern model.Pattern
	naming  float64
	corr    float64
	rng     float64
	rate    float64
	overall float64
	matched []string
}

func (m *Behavioral) matchCluster(ctx context.Context, cl model.Cluster, patterns []model.Pattern, fps map[int64]model.Fingerprint, now time.Time) (int, error) {
	points, err := m.store.PointsBySeqIDs(ctx, cl.Members)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(points))
	var memberFPs []model.Fingerprint
	for _, id := range cl.Members {
		if pt, ok := points[id]; ok {
			names = append(names, pt.Name)
		}
		if f, ok := fps[id]; ok {
			memberFPs = append(memberFPs, f)
		}
	}

	var kept []behavioralScore
	for _, p := range patterns {
		rawRoles, err := m.store.ListRoles(ctx, p.ID)
		if err != nil {
			return 0, err
		}
		roles := compileRoles(rawRoles)
		sc := m.score(cl, roles, names, memberFPs)
		sc.pattern = p
		if sc.overall >= m.cfg.MinOverall {
			kept = append(kept, sc)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].overall > kept[j].overall })
	if len(kept) > m.cfg.MaxPerCluster {
		kept = kept[:m.cfg.MaxPerCluster]
	}

	for _, sc := range kept {
		sg, err := m.buildSuggestion(cl, sc, names, now)
		if err != nil {
			return 0, err
		}
		stored, err := m.store.UpsertSuggestion(ctx, sg)
		if err != nil {
			return 0, err
		}
		announce(m.pub, stored)
	}
	return len(kept), nil
}

func (m *Behavioral) score(cl model.Cluster, roles []role, names []string, fps []model.Fingerprint) behavioralScore {
	sc := behavioralScore{
		naming: namingScore(roles, names),
		corr:   clamp01(cl.Cohesion),
		rng:    rangeScore(roles, fps),
		rate:   rateScore(roles, fps),
	}
	for _, r := range roles {
		if r.matchesAny(names) {
			sc.matched = append(sc.matched, r.Name)
		}
	}
	w := m.cfg.Weights
	sc.overall = w.Naming*sc.naming + w.Correlation*sc.corr + w.Range*sc.rng + w.Rate*sc.rate
	return sc
}

// namingScore is the fraction of required roles matched by some tag name,
// or of all roles when the pattern declares no required ones.
func namingScore(roles []role, names []string) float64 {
	var pool []role
	for _, r := range roles {
		if r.Required {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		pool = roles
	}
	if len(pool) == 0 {
		return 0
	}
	matched := 0
	for _, r := range pool {
		if r.matchesAny(names) {
			matched++
		}
	}
	return float64(matched) / float64(len(pool))
}

// rangeScore averages, over tag × role pairs where the role declares a
// range, the clipped fractional overlap of the observed [min, max] with the
// expected [min, max]. Neutral 0.5 when no role declares a range.
func rangeScore(roles []role, fps []model.Fingerprint) float64 {
	var sum float64
	var count int
	for _, r := range roles {
		if !r.HasRange() {
			continue
		}
		lo, hi := r.ExpectedMin.Float64, r.ExpectedMax.Float64
		span := hi - lo
		for _, f := range fps {
			var frac float64
			inter := math.Min(f.Max, hi) - math.Max(f.Min, lo)
			switch {
			case inter <= 0:
				frac = 0
			case span <= 0:
				frac = 1
			default:
				frac = clamp01(inter / span)
			}
			sum += frac
			count++
		}
	}
	if count == 0 {
		return 0.5
	}
	return sum / float64(count)
}

// rateScore averages exp(-½·ln²(actual/expected)) over tag × role pairs
// where the role declares a typical interval. Neutral 0.5 when none does.
func rateScore(roles []role, fps []model.Fingerprint) float64 {
	var sum float64
	var count int
	for _, r := range roles {
		if r.TypicalEvery <= 0 {
			continue
		}
		expected := r.TypicalEvery.Seconds()
		for _, f := range fps {
			if f.UpdateRate <= 0 {
				continue
			}
			actual := 1 / f.UpdateRate
			l := math.Log(actual / expected)
			sum += math.Exp(-0.5 * l * l)
			count++
		}
	}
	if count == 0 {
		return 0.5
	}
	return sum / float64(count)
}

func (m *Behavioral) buildSuggestion(cl model.Cluster, sc behavioralScore, names []string, now time.Time) (model.Suggestion, error) {
	prefix := commonPrefix(names)
	expl := model.Explanation{
		Scores: map[string]float64{
			"naming":      sc.naming,
			"correlation": sc.corr,
			"range":       sc.rng,
			"rate":        sc.rate,
			"overall":     sc.overall,
		},
		NamePrefix: prefix,
	}
	raw, err := json.Marshal(expl)
	if err != nil {
		return model.Suggestion{}, err
	}
	reason := fmt.Sprintf(
		"%d correlated tags (cohesion %.2f) look like %q; matched roles: %s",
		len(cl.Members), cl.Cohesion, sc.pattern.Name, strings.Join(sc.matched, ", "))
	if prefix != "" {
		reason += fmt.Sprintf("; common prefix %q", prefix)
	}
	return model.Suggestion{
		ClusterID:        cl.ID,
		PatternID:        sc.pattern.ID,
		NamingScore:      sc.naming,
		CorrelationScore: sc.corr,
		RangeScore:       sc.rng,
		RateScore:        sc.rate,
		Overall:          sc.overall,
		Reason:           reason,
		ExplanationJSON:  string(raw),
		State:            model.SuggestionPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.cfg.SuggestionTTL),
	}, nil
}
