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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

func TestSliceChunks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// 65 days with 30-day chunks: 30 + 30 + 5.
	chunks := sliceChunks(start, start.Add(65*24*time.Hour), DefaultChunkDuration)
	require.Len(t, chunks, 3)
	assert.Equal(t, start, chunks[0].start)
	assert.Equal(t, start.Add(30*24*time.Hour), chunks[0].end)
	assert.Equal(t, start.Add(30*24*time.Hour), chunks[1].start)
	assert.Equal(t, start.Add(60*24*time.Hour), chunks[1].end)
	assert.Equal(t, start.Add(60*24*time.Hour), chunks[2].start)
	assert.Equal(t, start.Add(65*24*time.Hour), chunks[2].end)

	// Exact multiple produces no stub chunk.
	chunks = sliceChunks(start, start.Add(60*24*time.Hour), DefaultChunkDuration)
	assert.Len(t, chunks, 2)

	// Shorter than one chunk yields a single span.
	chunks = sliceChunks(start, start.Add(time.Hour), DefaultChunkDuration)
	require.Len(t, chunks, 1)
	assert.Equal(t, start.Add(time.Hour), chunks[0].end)
}

// failingAdapter wraps a replay adapter and fails historical reads whose
// chunk start matches failAt.
type failingAdapter struct {
	*ReplayAdapter
	failAt time.Time
}

func (a *failingAdapter) ReadHistoricalBatch(ctx context.Context, addresses []string, start, end time.Time) ([]HistoricalSeries, error) {
	if start.Equal(a.failAt) {
		return nil, errors.New("link reset")
	}
	return a.ReplayAdapter.ReadHistoricalBatch(ctx, addresses, start, end)
}

func TestBackfillMiddleChunkFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createPoint(t, store, "WT01_wind_speed", "scada", "ws.1")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(65 * 24 * time.Hour)

	replay := NewReplayAdapter()
	var samples []Sample
	for d := 0; d < 65; d++ {
		samples = append(samples, Sample{
			Value:     float64(d),
			Timestamp: start.Add(time.Duration(d) * 24 * time.Hour),
			Quality:   model.QualityGood,
		})
	}
	replay.LoadHistory("ws.1", "m/s", samples)

	adapter := &failingAdapter{ReplayAdapter: replay, failAt: start.Add(30 * 24 * time.Hour)}
	reg := NewRegistry()
	reg.Register("scada", adapter)

	pub := &fakePub{}
	metrics := &Metrics{}
	bf := NewBackfiller(store, reg, pub, metrics)

	id, err := bf.Enqueue(BackfillRequest{
		SourceType:   "scada",
		TagAddresses: []string{"ws.1"},
		Start:        start,
		End:          end,
	})
	require.NoError(t, err)

	// Drain the single queued request directly.
	req := <-bf.pending
	bf.Process(ctx, req)

	stats, ok := bf.Stats(id)
	require.True(t, ok)
	assert.True(t, stats.Done)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.CompletedChunks)
	assert.Equal(t, 1, stats.FailedChunks)
	// Days 0-29 and 60-64 made it through; 30-59 did not.
	assert.Equal(t, int64(35), stats.PointsProcessed)

	msgs := pub.batches()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, queue.TopicTelemetryBackfill, m.topic)
		assert.Equal(t, "scada", m.key)
	}
}

func TestBackfillEnqueueValidation(t *testing.T) {
	bf := NewBackfiller(newTestStore(t), NewRegistry(), &fakePub{}, &Metrics{})
	now := time.Now()

	_, err := bf.Enqueue(BackfillRequest{SourceType: "s", TagAddresses: []string{"a"}, Start: now, End: now})
	assert.Error(t, err)

	_, err = bf.Enqueue(BackfillRequest{SourceType: "s", Start: now.Add(-time.Hour), End: now})
	assert.Error(t, err)
}

func TestBackfillDropOldestOnOverflow(t *testing.T) {
	bf := NewBackfiller(newTestStore(t), NewRegistry(), &fakePub{}, &Metrics{})
	now := time.Now()

	ids := make([]string, 0, backfillQueueCap+1)
	for i := 0; i <= backfillQueueCap; i++ {
		id, err := bf.Enqueue(BackfillRequest{
			SourceType:   "s",
			TagAddresses: []string{fmt.Sprintf("a%d", i)},
			Start:        now.Add(-time.Hour),
			End:          now,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// The first request was evicted; its stats are gone.
	_, ok := bf.Stats(ids[0])
	assert.False(t, ok)
	_, ok = bf.Stats(ids[len(ids)-1])
	assert.True(t, ok)
	assert.Equal(t, backfillQueueCap, len(bf.pending))
}
