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
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

// Messages is the consuming side of the queue gateway.
type Messages interface {
	Next(ctx context.Context) (*queue.Message, error)
}

// StoreWriter consumes telemetry batches and appends them to the
// time-series store. Live and backfill topics share the same handler.
type StoreWriter struct {
	gw      tsdb.Gateway
	metrics *Metrics
}

// NewStoreWriter returns a consumer writing into gw.
func NewStoreWriter(gw tsdb.Gateway, metrics *Metrics) *StoreWriter {
	return &StoreWriter{gw: gw, metrics: metrics}
}

// Run consumes until ctx is cancelled. A batch that cannot be written is
// nak'd for redelivery; at-least-once delivery makes the append replayable
// because re-encoding a batch is deterministic.
func (w *StoreWriter) Run(ctx context.Context, msgs Messages) error {
	for {
		m, err := msgs.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := w.Handle(ctx, m.Envelope); err != nil {
			log.Warn("store write failed", zap.String("subject", m.Subject), zap.Error(err))
			_ = m.Nak()
			continue
		}
		_ = m.Ack()
	}
}

// Handle writes one envelope's batch into the store.
func (w *StoreWriter) Handle(ctx context.Context, env queue.Envelope) error {
	var b model.Batch
	if err := queue.DecodePayload(env, &b); err != nil {
		return err
	}
	if err := w.gw.Append(ctx, &b); err != nil {
		return err
	}
	w.metrics.writtenRows.Add(int64(b.Len()))
	return nil
}

// CacheSink consumes telemetry batches and refreshes the current-value
// cache. It is a best-effort mirror of the poller's direct cache writes,
// useful when telemetry enters only through the queue (backfill replays).
type CacheSink struct {
	cache ValueCache
	ttl   time.Duration
}

// NewCacheSink returns a consumer refreshing the current-value cache.
func NewCacheSink(cache ValueCache, ttl time.Duration) *CacheSink {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheSink{cache: cache, ttl: ttl}
}

// Run consumes until ctx is cancelled. Cache errors are logged and the
// message is acked anyway; the cache is recomputable.
func (s *CacheSink) Run(ctx context.Context, msgs Messages) error {
	for {
		m, err := msgs.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := s.Handle(ctx, m.Envelope); err != nil {
			log.Warn("cache refresh failed", zap.String("subject", m.Subject), zap.Error(err))
		}
		_ = m.Ack()
	}
}

// Handle refreshes the cache from one envelope's batch, keeping only the
// newest sample per tag.
func (s *CacheSink) Handle(ctx context.Context, env queue.Envelope) error {
	var b model.Batch
	if err := queue.DecodePayload(env, &b); err != nil {
		return err
	}
	newest := make(map[int64]model.DataPoint, len(b.Points))
	for _, dp := range b.Points {
		if prev, ok := newest[dp.SeqID]; !ok || dp.Timestamp.After(prev.Timestamp) {
			newest[dp.SeqID] = dp
		}
	}
	var firstErr error
	for _, dp := range newest {
		if err := s.cache.SetCurrentValue(ctx, dp, s.ttl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
