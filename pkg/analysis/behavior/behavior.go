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
// Package behavior computes per-tag behavioral fingerprints from windowed
// statistics of the raw telemetry.
package behavior

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

// Config tunes the aggregation cadence.
type Config struct {
	// MinSamples is the floor below which no fingerprint is produced.
	MinSamples int64
	// Window is the lookback over which statistics are computed.
	Window time.Duration
	// CacheTTL bounds the cached fingerprint's lifetime.
	CacheTTL time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{MinSamples: 50, Window: 24 * time.Hour, CacheTTL: 48 * time.Hour}
}

// Store is the metastore surface the aggregator needs.
type Store interface {
	ListEnabledPoints(ctx context.Context) ([]model.Point, error)
	UpsertFingerprint(ctx context.Context, f model.Fingerprint) error
}

// Cache mirrors fingerprints into the fast cache.
type Cache interface {
	SetFingerprint(ctx context.Context, f model.Fingerprint, ttl time.Duration) error
}

// Aggregator recomputes fingerprints for every enabled tag.
type Aggregator struct {
	cfg   Config
	store Store
	gw    tsdb.Gateway
	cache Cache
}

// New wires an aggregator.
func New(cfg Config, store Store, gw tsdb.Gateway, cache Cache) *Aggregator {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Aggregator{cfg: cfg, store: store, gw: gw, cache: cache}
}

// RunOnce recomputes fingerprints as of now, overwriting prior values.
// Tags under the sample floor yield none. Returns the number computed.
func (a *Aggregator) RunOnce(ctx context.Context, now time.Time) (int, error) {
	points, err := a.store.ListEnabledPoints(ctx)
	if err != nil {
		return 0, err
	}
	windowStart := now.Add(-a.cfg.Window)
	computed := 0
	for _, pt := range points {
		f, ok, err := a.fingerprint(ctx, pt.SeqID, windowStart, now)
		if err != nil {
			log.Warn("fingerprint failed", zap.Int64("seq", pt.SeqID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := a.store.UpsertFingerprint(ctx, f); err != nil {
			log.Warn("fingerprint persist failed", zap.Int64("seq", pt.SeqID), zap.Error(err))
			continue
		}
		if err := a.cache.SetFingerprint(ctx, f, a.cfg.CacheTTL); err != nil {
			log.Warn("fingerprint cache failed", zap.Int64("seq", pt.SeqID), zap.Error(err))
		}
		computed++
	}
	return computed, nil
}

func (a *Aggregator) fingerprint(ctx context.Context, seqID int64, start, end time.Time) (model.Fingerprint, bool, error) {
	agg, err := a.gw.AggregateWindow(ctx, seqID, start, end)
	if errors.Is(err, tsdb.ErrNoData) {
		return model.Fingerprint{}, false, nil
	}
	if err != nil {
		return model.Fingerprint{}, false, err
	}
	if agg.Count < a.cfg.MinSamples {
		return model.Fingerprint{}, false, nil
	}
	return model.Fingerprint{
		SeqID:       seqID,
		SampleCount: agg.Count,
		Mean:        agg.Mean,
		StdDev:      agg.StdDev,
		Min:         agg.Min,
		Max:         agg.Max,
		UpdateRate:  float64(agg.Count) / end.Sub(start).Seconds(),
		WindowStart: start,
		WindowEnd:   end,
		ComputedAt:  end,
	}, true, nil
}
