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
package ingest

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

// Publisher is the queue surface the pipeline needs.
type Publisher interface {
	Publish(topic, key string, v any) (<-chan queue.PublishResult, error)
}

// PointLister is the metastore surface the poller needs.
type PointLister interface {
	ListSourceIDs(ctx context.Context) ([]string, error)
	ListEnabledPointsBySource(ctx context.Context, sourceID string) ([]model.Point, error)
}

// ValueCache receives current-value updates alongside the queue publish.
type ValueCache interface {
	SetCurrentValue(ctx context.Context, p model.DataPoint, ttl time.Duration) error
}

// PollerConfig tunes the live ingestion loop.
type PollerConfig struct {
	Interval time.Duration
	ValueTTL time.Duration
	// MaxBatchSize splits a source's cycle into multiple published batches.
	MaxBatchSize int
}

// DefaultPollerConfig matches the documented defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 5 * time.Second, ValueTTL: time.Hour, MaxBatchSize: 10000}
}

// Poller drives the live ingestion loop: read current values per source,
// coerce, batch, publish, and update the current-value cache.
type Poller struct {
	cfg      PollerConfig
	store    PointLister
	registry *Registry
	pub      Publisher
	cache    ValueCache
	metrics  *Metrics

	mu     sync.RWMutex
	states map[string]model.SourceState
}

// NewPoller wires the live ingestion loop.
func NewPoller(cfg PollerConfig, store PointLister, registry *Registry, pub Publisher, cache ValueCache, metrics *Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	if cfg.ValueTTL <= 0 {
		cfg.ValueTTL = DefaultPollerConfig().ValueTTL
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultPollerConfig().MaxBatchSize
	}
	return &Poller{
		cfg:      cfg,
		store:    store,
		registry: registry,
		pub:      pub,
		cache:    cache,
		metrics:  metrics,
		states:   make(map[string]model.SourceState),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// SourceStates returns the advisory connection state per source.
func (p *Poller) SourceStates() map[string]model.SourceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.SourceState, len(p.states))
	for k, v := range p.states {
		out[k] = v
	}
	return out
}

func (p *Poller) setState(sourceID string, s model.SourceState) {
	p.mu.Lock()
	p.states[sourceID] = s
	p.mu.Unlock()
}

// PollOnce runs a single poll cycle over every enabled source. Per-source
// failures are logged and do not abort the cycle.
func (p *Poller) PollOnce(ctx context.Context) {
	sources, err := p.store.ListSourceIDs(ctx)
	if err != nil {
		log.Error("listing sources", zap.Error(err))
		return
	}
	for _, sourceID := range sources {
		if err := p.pollSource(ctx, sourceID); err != nil {
			p.setState(sourceID, model.SourceError)
			log.Warn("poll failed", zap.String("source", sourceID), zap.Error(err))
		}
	}
}

func (p *Poller) pollSource(ctx context.Context, sourceID string) error {
	adapter, err := p.registry.Get(sourceID)
	if err != nil {
		return err
	}
	if !adapter.IsAvailable() {
		p.setState(sourceID, model.SourceDisconnected)
		return nil
	}
	p.setState(sourceID, model.SourceConnecting)

	points, err := p.store.ListEnabledPointsBySource(ctx, sourceID)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		p.setState(sourceID, model.SourceConnected)
		return nil
	}
	byAddress := make(map[string]model.Point, len(points))
	addresses := make([]string, 0, len(points))
	for _, pt := range points {
		byAddress[pt.Address] = pt
		addresses = append(addresses, pt.Address)
	}

	samples, err := adapter.ReadCurrentValues(ctx, addresses)
	if err != nil {
		return err
	}
	p.setState(sourceID, model.SourceConnected)

	batch := model.NewBatch(sourceID)
	accepted := make([]model.DataPoint, 0, len(addresses))
	for _, addr := range addresses {
		s, ok := samples[addr]
		if !ok {
			continue
		}
		pt := byAddress[addr]
		v, ok := CoerceFloat(s.Value)
		if !ok {
			p.metrics.skippedSamples.Add(1)
			log.Debug("skipping non-numeric sample",
				zap.String("source", sourceID), zap.String("address", addr))
			continue
		}
		dp, err := model.NewDataPoint(pt.SeqID, s.Timestamp, v, s.Quality)
		if err != nil {
			p.metrics.skippedSamples.Add(1)
			log.Debug("skipping invalid sample",
				zap.String("source", sourceID), zap.String("address", addr), zap.Error(err))
			continue
		}
		dp.SourceTag = pt.Name
		batch.Append(dp)
		accepted = append(accepted, dp)
		if batch.Len() >= p.cfg.MaxBatchSize {
			p.publish(batch)
			batch = model.NewBatch(sourceID)
		}
	}
	if batch.Len() > 0 {
		p.publish(batch)
	}
	if len(accepted) == 0 {
		return nil
	}

	// Cache updates are independent of queue delivery; a cache failure is
	// logged and does not affect the published batches.
	for _, dp := range accepted {
		if err := p.cache.SetCurrentValue(ctx, dp, p.cfg.ValueTTL); err != nil {
			log.Warn("current-value cache update failed",
				zap.Int64("seq", dp.SeqID), zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) publish(batch *model.Batch) {
	resCh, err := p.pub.Publish(queue.TopicTelemetryLive, batch.SourceID, batch)
	if err != nil {
		p.metrics.publishFailures.Add(1)
		log.Warn("publish failed", zap.String("source", batch.SourceID), zap.Error(err))
		return
	}
	go func() {
		res := <-resCh
		if res.Success {
			p.metrics.publishedBatches.Add(1)
			return
		}
		p.metrics.publishFailures.Add(1)
		log.Warn("publish not acknowledged",
			zap.String("subject", res.Subject), zap.String("error", res.ErrorMessage))
	}()
}

// CoerceFloat converts an adapter value to a float64. Strings, booleans and
// other non-numeric values are rejected; NaN and infinities are rejected.
func CoerceFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
