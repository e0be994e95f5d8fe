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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

// DefaultChunkDuration slices backfill intervals when the request does not
// specify one.
const DefaultChunkDuration = 30 * 24 * time.Hour

const backfillQueueCap = 20

// BackfillRequest asks for a historical interval to be replayed into the
// backfill topic.
type BackfillRequest struct {
	ID            string
	SourceType    string
	TagAddresses  []string
	Start         time.Time
	End           time.Time
	ChunkDuration time.Duration
}

// BackfillStats is the per-request progress record.
type BackfillStats struct {
	TotalChunks     int   `json:"total_chunks"`
	CompletedChunks int   `json:"completed_chunks"`
	FailedChunks    int   `json:"failed_chunks"`
	PointsProcessed int64 `json:"points_processed"`
	Done            bool  `json:"done"`
}

// BackfillStore is the metastore surface the worker needs.
type BackfillStore interface {
	GetPointByAddress(ctx context.Context, sourceID, address string) (model.Point, error)
	RecordBackfillChunk(ctx context.Context, requestID string, chunkStart, chunkEnd time.Time, points int64, failed bool) error
}

// Backfiller replays historical intervals through the backfill topic. One
// worker drains a bounded request queue; on overflow the oldest pending
// request is dropped.
type Backfiller struct {
	store    BackfillStore
	registry *Registry
	pub      Publisher
	metrics  *Metrics

	mu      sync.Mutex
	pending chan BackfillRequest
	stats   map[string]*BackfillStats
}

// NewBackfiller wires the backfill worker.
func NewBackfiller(store BackfillStore, registry *Registry, pub Publisher, metrics *Metrics) *Backfiller {
	return &Backfiller{
		store:    store,
		registry: registry,
		pub:      pub,
		metrics:  metrics,
		pending:  make(chan BackfillRequest, backfillQueueCap),
		stats:    make(map[string]*BackfillStats),
	}
}

// Enqueue validates and queues a request, returning its ID. On a full
// queue the oldest pending request is dropped to make room.
func (b *Backfiller) Enqueue(req BackfillRequest) (string, error) {
	if !req.End.After(req.Start) {
		return "", fmt.Errorf("backfill: end %s not after start %s", req.End, req.Start)
	}
	if len(req.TagAddresses) == 0 {
		return "", fmt.Errorf("backfill: no tag addresses")
	}
	if req.ChunkDuration <= 0 {
		req.ChunkDuration = DefaultChunkDuration
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats[req.ID] = &BackfillStats{TotalChunks: len(sliceChunks(req.Start, req.End, req.ChunkDuration))}
	for {
		select {
		case b.pending <- req:
			return req.ID, nil
		default:
			select {
			case old := <-b.pending:
				b.metrics.droppedRequests.Add(1)
				delete(b.stats, old.ID)
				log.Warn("backfill queue full, dropping oldest request",
					zap.String("dropped", old.ID))
			default:
			}
		}
	}
}

// Stats returns the progress record for a request ID.
func (b *Backfiller) Stats(id string) (BackfillStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[id]
	if !ok {
		return BackfillStats{}, false
	}
	return *s, true
}

// Run drains the request queue until ctx is cancelled.
func (b *Backfiller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-b.pending:
			b.Process(ctx, req)
		}
	}
}

type chunkSpan struct {
	start, end time.Time
}

// sliceChunks cuts [start, end) into contiguous spans of at most d.
func sliceChunks(start, end time.Time, d time.Duration) []chunkSpan {
	var out []chunkSpan
	for cur := start; cur.Before(end); cur = cur.Add(d) {
		ce := cur.Add(d)
		if ce.After(end) {
			ce = end
		}
		out = append(out, chunkSpan{start: cur, end: ce})
	}
	return out
}

// Process replays one request chunk by chunk. A failed chunk is recorded
// and the remaining chunks still run.
func (b *Backfiller) Process(ctx context.Context, req BackfillRequest) {
	adapter, err := b.registry.Get(req.SourceType)
	if err != nil {
		log.Error("backfill request unroutable", zap.String("request", req.ID), zap.Error(err))
		b.finish(req.ID)
		return
	}
	for _, chunk := range sliceChunks(req.Start, req.End, req.ChunkDuration) {
		points, err := b.processChunk(ctx, adapter, req, chunk)
		failed := err != nil
		if failed {
			log.Warn("backfill chunk failed",
				zap.String("request", req.ID),
				zap.Time("chunk_start", chunk.start),
				zap.Error(err))
		}
		if err := b.store.RecordBackfillChunk(ctx, req.ID, chunk.start, chunk.end, points, failed); err != nil {
			log.Warn("backfill checkpoint failed", zap.String("request", req.ID), zap.Error(err))
		}
		b.mu.Lock()
		if s, ok := b.stats[req.ID]; ok {
			if failed {
				s.FailedChunks++
			} else {
				s.CompletedChunks++
				s.PointsProcessed += points
			}
		}
		b.mu.Unlock()
	}
	b.finish(req.ID)
}

func (b *Backfiller) finish(id string) {
	b.mu.Lock()
	if s, ok := b.stats[id]; ok {
		s.Done = true
	}
	b.mu.Unlock()
}

func (b *Backfiller) processChunk(ctx context.Context, adapter SourceAdapter, req BackfillRequest, chunk chunkSpan) (int64, error) {
	series, err := adapter.ReadHistoricalBatch(ctx, req.TagAddresses, chunk.start, chunk.end)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ts := range series {
		pt, err := b.store.GetPointByAddress(ctx, req.SourceType, ts.SourceAddress)
		if err != nil {
			log.Debug("backfill series for unknown address",
				zap.String("source", req.SourceType), zap.String("address", ts.SourceAddress))
			continue
		}
		batch := model.NewBatch(req.SourceType)
		for _, s := range ts.Values {
			v, ok := CoerceFloat(s.Value)
			if !ok {
				b.metrics.skippedSamples.Add(1)
				continue
			}
			dp, err := model.NewDataPoint(pt.SeqID, s.Timestamp, v, s.Quality)
			if err != nil {
				b.metrics.skippedSamples.Add(1)
				continue
			}
			dp.SourceTag = pt.Name
			batch.Append(dp)
		}
		if batch.Len() == 0 {
			continue
		}
		resCh, err := b.pub.Publish(queue.TopicTelemetryBackfill, req.SourceType, batch)
		if err != nil {
			return total, err
		}
		res := <-resCh
		if !res.Success {
			return total, fmt.Errorf("backfill publish: %s", res.ErrorMessage)
		}
		b.metrics.publishedBatches.Add(1)
		total += int64(batch.Len())
	}
	return total, nil
}
