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
// Package correlation computes pairwise Pearson coefficients between
// behaviorally similar tags. Candidate grouping keeps the pair count far
// below n²/2 before any series is read.
package correlation

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/cache"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

// Config tunes the correlation cadence.
type Config struct {
	// Window is the ASOF-join lookback.
	Window time.Duration
	// MinSamples is the aligned-sample floor below which a pair is skipped.
	MinSamples int64
	// MinR is the |r| floor below which no edge is stored.
	MinR float64
	// ChangeEpsilon treats a pair whose |r| moved less than this since the
	// cached value as unchanged; the edge is still re-persisted with a
	// fresh timestamp but not counted as a change.
	ChangeEpsilon float64
	// CacheTTL bounds the cached scalar's lifetime.
	CacheTTL time.Duration
	// FingerprintMaxAge treats older fingerprints as absent.
	FingerprintMaxAge time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		Window:            168 * time.Hour,
		MinSamples:        100,
		MinR:              0.60,
		ChangeEpsilon:     0.10,
		CacheTTL:          24 * time.Hour,
		FingerprintMaxAge: 48 * time.Hour,
	}
}

// Store is the metastore surface the engine needs.
type Store interface {
	GetFingerprints(ctx context.Context, staleCutoff time.Time) (map[int64]model.Fingerprint, error)
	UpsertCorrelation(ctx context.Context, e model.CorrelationEdge) error
}

// Cache holds the pair scalar between cadences.
type Cache interface {
	GetCorrelation(ctx context.Context, a, b int64) (float64, error)
	SetCorrelation(ctx context.Context, a, b int64, r float64, ttl time.Duration) error
}

// Engine runs the pairwise correlation cadence.
type Engine struct {
	cfg   Config
	store Store
	gw    tsdb.Gateway
	cache Cache
}

// New wires a correlation engine.
func New(cfg Config, store Store, gw tsdb.Gateway, c Cache) *Engine {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinR <= 0 {
		cfg.MinR = def.MinR
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.FingerprintMaxAge <= 0 {
		cfg.FingerprintMaxAge = def.FingerprintMaxAge
	}
	return &Engine{cfg: cfg, store: store, gw: gw, cache: c}
}

// rangeBucket classifies a fingerprint by the order of magnitude of its
// value span, so a 0-1 ratio tag never pairs with a 0-5000 rpm tag.
func rangeBucket(f model.Fingerprint) int {
	span := f.Max - f.Min
	if span <= 0 {
		span = math.Abs(f.Max)
	}
	if span < 1e-9 {
		return math.MinInt32
	}
	return int(math.Floor(math.Log10(span)))
}

// GroupCandidates partitions fingerprinted tags into candidate groups.
// Anchors are picked greedily by ascending update rate; a tag joins the
// group when its rate is within a factor of two of the anchor's and its
// range bucket matches. Output order is deterministic.
func GroupCandidates(fps map[int64]model.Fingerprint) [][]int64 {
	ids := make([]int64, 0, len(fps))
	for id := range fps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := fps[ids[i]], fps[ids[j]]
		if a.UpdateRate != b.UpdateRate {
			return a.UpdateRate < b.UpdateRate
		}
		return ids[i] < ids[j]
	})

	assigned := make(map[int64]bool, len(ids))
	var groups [][]int64
	for _, anchor := range ids {
		if assigned[anchor] {
			continue
		}
		af := fps[anchor]
		ab := rangeBucket(af)
		group := []int64{anchor}
		assigned[anchor] = true
		for _, id := range ids {
			if assigned[id] {
				continue
			}
			f := fps[id]
			if rangeBucket(f) != ab {
				continue
			}
			if f.UpdateRate > 2*af.UpdateRate || f.UpdateRate < af.UpdateRate/2 {
				continue
			}
			group = append(group, id)
			assigned[id] = true
		}
		groups = append(groups, group)
	}
	return groups
}

// RunOnce computes pair correlations as of now and returns the number of
// edges stored.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) (int, error) {
	fps, err := e.store.GetFingerprints(ctx, now.Add(-e.cfg.FingerprintMaxAge))
	if err != nil {
		return 0, err
	}
	start := now.Add(-e.cfg.Window)
	stored := 0
	for _, group := range GroupCandidates(fps) {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := model.OrderPair(group[i], group[j])
				ok, err := e.computePair(ctx, a, b, start, now)
				if err != nil {
					log.Warn("pair correlation failed",
						zap.Int64("seq_a", a), zap.Int64("seq_b", b), zap.Error(err))
					continue
				}
				if ok {
					stored++
				}
			}
		}
	}
	return stored, nil
}

func (e *Engine) computePair(ctx context.Context, a, b int64, start, now time.Time) (bool, error) {
	r, n, err := e.gw.PairCorrelation(ctx, a, b, start, now)
	if errors.Is(err, tsdb.ErrNoData) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n < e.cfg.MinSamples {
		return false, nil
	}
	abs := math.Abs(r)
	if abs < e.cfg.MinR {
		return false, nil
	}

	prior, err := e.cache.GetCorrelation(ctx, a, b)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		return false, err
	}
	unchanged := err == nil && math.Abs(abs-prior) < e.cfg.ChangeEpsilon

	// Persistence is unconditional: a stable pair must keep a fresh
	// computed_at or it drops out of the detector's edge window and its
	// clusters go stale despite nothing having changed. Suppression only
	// keeps an unchanged pair out of the reported count.
	edge := model.CorrelationEdge{
		SeqA:        a,
		SeqB:        b,
		R:           abs,
		SampleCount: n,
		WindowStart: start,
		WindowEnd:   now,
		ComputedAt:  now,
	}
	if err := e.store.UpsertCorrelation(ctx, edge); err != nil {
		return false, err
	}
	return !unchanged, e.cache.SetCorrelation(ctx, a, b, abs, e.cfg.CacheTTL)
}
