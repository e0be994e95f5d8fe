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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/metastore"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

type published struct {
	topic string
	key   string
	batch model.Batch
}

type fakePub struct {
	mu       sync.Mutex
	fail     bool
	messages []published
}

func (f *fakePub) Publish(topic, key string, v any) (<-chan queue.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := v.(*model.Batch); ok {
		f.messages = append(f.messages, published{topic: topic, key: key, batch: *b})
	}
	ch := make(chan queue.PublishResult, 1)
	if f.fail {
		ch <- queue.PublishResult{Success: false, ErrorMessage: "broker down"}
	} else {
		ch <- queue.PublishResult{Success: true, Subject: topic + "." + key, Offset: uint64(len(f.messages))}
	}
	return ch, nil
}

func (f *fakePub) batches() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.messages))
	copy(out, f.messages)
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	values map[int64]model.DataPoint
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[int64]model.DataPoint)}
}

func (c *fakeCache) SetCurrentValue(_ context.Context, p model.DataPoint, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[p.SeqID] = p
	return nil
}

func newTestStore(t *testing.T) *metastore.Store {
	t.Helper()
	s, err := metastore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createPoint(t *testing.T, s *metastore.Store, name, sourceID, address string) model.Point {
	t.Helper()
	p, err := s.CreatePoint(context.Background(), model.Point{
		Name:     name,
		SourceID: sourceID,
		Address:  address,
		Enabled:  true,
	})
	require.NoError(t, err)
	return p
}

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{3.5, 3.5, true},
		{float32(2), 2, true},
		{int(7), 7, true},
		{int64(-4), -4, true},
		{uint64(9), 9, true},
		{"12.5", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
	}
	for _, c := range cases {
		got, ok := CoerceFloat(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		if c.ok {
			assert.Equal(t, c.want, got)
		}
	}
}

func TestPollOncePublishesAndCaches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p1 := createPoint(t, store, "P101_discharge_pressure", "plc-01", "40001")
	p2 := createPoint(t, store, "P101_flow", "plc-01", "40002")

	adapter := NewReplayAdapter()
	now := time.Now().UTC().Truncate(time.Second)
	adapter.SetCurrent("40001", Sample{Value: 5.2, Timestamp: now, Quality: model.QualityGood})
	adapter.SetCurrent("40002", Sample{Value: "bad", Timestamp: now, Quality: model.QualityGood})
	reg := NewRegistry()
	reg.Register("plc-01", adapter)

	pub := &fakePub{}
	cache := newFakeCache()
	metrics := &Metrics{}
	poller := NewPoller(DefaultPollerConfig(), store, reg, pub, cache, metrics)

	poller.PollOnce(ctx)

	msgs := pub.batches()
	require.Len(t, msgs, 1)
	assert.Equal(t, queue.TopicTelemetryLive, msgs[0].topic)
	assert.Equal(t, "plc-01", msgs[0].key)
	require.Len(t, msgs[0].batch.Points, 1)
	assert.Equal(t, p1.SeqID, msgs[0].batch.Points[0].SeqID)
	assert.Equal(t, 5.2, msgs[0].batch.Points[0].Value)

	// The non-numeric sample is skipped, not cached.
	cache.mu.Lock()
	_, cachedBad := cache.values[p2.SeqID]
	got, cachedGood := cache.values[p1.SeqID]
	cache.mu.Unlock()
	assert.False(t, cachedBad)
	require.True(t, cachedGood)
	assert.Equal(t, 5.2, got.Value)
	assert.Equal(t, int64(1), metrics.Snapshot().SkippedSamples)
	assert.Equal(t, model.SourceConnected, poller.SourceStates()["plc-01"])
}

func TestPollOnceSplitsOversizedBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	adapter := NewReplayAdapter()
	now := time.Now().UTC().Truncate(time.Second)
	for _, addr := range []string{"1", "2", "3", "4", "5"} {
		createPoint(t, store, "T"+addr, "plc-01", addr)
		adapter.SetCurrent(addr, Sample{Value: 1.0, Timestamp: now, Quality: model.QualityGood})
	}
	reg := NewRegistry()
	reg.Register("plc-01", adapter)

	cfg := DefaultPollerConfig()
	cfg.MaxBatchSize = 2
	pub := &fakePub{}
	cache := newFakeCache()
	poller := NewPoller(cfg, store, reg, pub, cache, &Metrics{})
	poller.PollOnce(ctx)

	msgs := pub.batches()
	require.Len(t, msgs, 3, "5 samples split at 2 per batch")
	total := 0
	for _, m := range msgs {
		assert.LessOrEqual(t, len(m.batch.Points), 2)
		total += len(m.batch.Points)
	}
	assert.Equal(t, 5, total)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Len(t, cache.values, 5, "every sample cached regardless of batch splits")
}

func TestPollOnceUnavailableSource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createPoint(t, store, "P101_flow", "plc-01", "40002")

	adapter := NewReplayAdapter()
	adapter.SetAvailable(false)
	reg := NewRegistry()
	reg.Register("plc-01", adapter)

	pub := &fakePub{}
	poller := NewPoller(DefaultPollerConfig(), store, reg, pub, newFakeCache(), &Metrics{})
	poller.PollOnce(ctx)

	assert.Empty(t, pub.batches())
	assert.Equal(t, model.SourceDisconnected, poller.SourceStates()["plc-01"])
}

func TestStoreWriterHandle(t *testing.T) {
	gw := &fakeGateway{}
	metrics := &Metrics{}
	w := NewStoreWriter(gw, metrics)

	b := model.NewBatch("plc-01")
	p, err := model.NewDataPoint(1, time.Unix(1700000000, 0), 1.5, model.QualityGood)
	require.NoError(t, err)
	b.Append(p)

	data, err := queue.Encode(queue.TopicTelemetryLive, "plc-01", b)
	require.NoError(t, err)
	env, err := queue.Decode(data)
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), env))
	require.Len(t, gw.appended, 1)
	assert.Equal(t, int64(1), metrics.Snapshot().WrittenRows)
}

func TestCacheSinkKeepsNewestPerTag(t *testing.T) {
	cache := newFakeCache()
	sink := NewCacheSink(cache, time.Hour)

	b := model.NewBatch("plc-01")
	older, err := model.NewDataPoint(3, time.Unix(1700000000, 0), 1.0, model.QualityGood)
	require.NoError(t, err)
	newer, err := model.NewDataPoint(3, time.Unix(1700000010, 0), 2.0, model.QualityGood)
	require.NoError(t, err)
	b.Append(newer)
	b.Append(older)

	data, err := queue.Encode(queue.TopicTelemetryBackfill, "plc-01", b)
	require.NoError(t, err)
	env, err := queue.Decode(data)
	require.NoError(t, err)

	require.NoError(t, sink.Handle(context.Background(), env))
	cache.mu.Lock()
	got := cache.values[3]
	cache.mu.Unlock()
	assert.Equal(t, 2.0, got.Value)
}

type fakeGateway struct {
	mu       sync.Mutex
	appended []model.Batch
}

func (g *fakeGateway) Append(_ context.Context, b *model.Batch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appended = append(g.appended, *b)
	return nil
}

func (g *fakeGateway) Range(context.Context, int64, time.Time, time.Time, int) ([]model.DataPoint, error) {
	return nil, nil
}

func (g *fakeGateway) LastValue(context.Context, int64) (model.DataPoint, error) {
	return model.DataPoint{}, nil
}

func (g *fakeGateway) AggregateWindow(context.Context, int64, time.Time, time.Time) (tsdb.Aggregate, error) {
	return tsdb.Aggregate{}, nil
}

func (g *fakeGateway) PairCorrelation(context.Context, int64, int64, time.Time, time.Time) (float64, int64, error) {
	return 0, 0, nil
}
