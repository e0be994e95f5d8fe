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
package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

type fakeStore struct {
	points  []model.Point
	upserts []model.Fingerprint
}

func (s *fakeStore) ListEnabledPoints(context.Context) ([]model.Point, error) {
	return s.points, nil
}

func (s *fakeStore) UpsertFingerprint(_ context.Context, f model.Fingerprint) error {
	s.upserts = append(s.upserts, f)
	return nil
}

type fakeCache struct {
	set []model.Fingerprint
}

func (c *fakeCache) SetFingerprint(_ context.Context, f model.Fingerprint, _ time.Duration) error {
	c.set = append(c.set, f)
	return nil
}

type fakeGateway struct {
	aggs map[int64]tsdb.Aggregate
}

func (g *fakeGateway) Append(context.Context, *model.Batch) error { return nil }

func (g *fakeGateway) Range(context.Context, int64, time.Time, time.Time, int) ([]model.DataPoint, error) {
	return nil, nil
}

func (g *fakeGateway) LastValue(context.Context, int64) (model.DataPoint, error) {
	return model.DataPoint{}, nil
}

func (g *fakeGateway) AggregateWindow(_ context.Context, seqID int64, _, _ time.Time) (tsdb.Aggregate, error) {
	agg, ok := g.aggs[seqID]
	if !ok {
		return tsdb.Aggregate{}, tsdb.ErrNoData
	}
	return agg, nil
}

func (g *fakeGateway) PairCorrelation(context.Context, int64, int64, time.Time, time.Time) (float64, int64, error) {
	return 0, 0, nil
}

func TestRunOnceComputesFingerprints(t *testing.T) {
	store := &fakeStore{points: []model.Point{
		{SeqID: 1, Name: "a", Enabled: true},
		{SeqID: 2, Name: "b", Enabled: true}, // below sample floor
		{SeqID: 3, Name: "c", Enabled: true}, // no data at all
	}}
	gw := &fakeGateway{aggs: map[int64]tsdb.Aggregate{
		1: {Min: 1, Max: 9, Mean: 5, StdDev: 2, Count: 8640},
		2: {Min: 0, Max: 1, Mean: 0.5, StdDev: 0.1, Count: 10},
	}}
	cache := &fakeCache{}
	agg := New(DefaultConfig(), store, gw, cache)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	n, err := agg.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, store.upserts, 1)
	f := store.upserts[0]
	assert.Equal(t, int64(1), f.SeqID)
	assert.Equal(t, int64(8640), f.SampleCount)
	// 8640 samples over 24 h = one every 10 s.
	assert.InDelta(t, 0.1, f.UpdateRate, 1e-9)
	assert.Equal(t, now.Add(-24*time.Hour), f.WindowStart)
	assert.Equal(t, now, f.WindowEnd)

	require.Len(t, cache.set, 1)
	assert.Equal(t, int64(1), cache.set[0].SeqID)
}

func TestRunOnceCustomFloor(t *testing.T) {
	store := &fakeStore{points: []model.Point{{SeqID: 2, Enabled: true}}}
	gw := &fakeGateway{aggs: map[int64]tsdb.Aggregate{2: {Count: 10}}}
	agg := New(Config{MinSamples: 5, Window: time.Hour, CacheTTL: time.Hour}, store, gw, &fakeCache{})

	n, err := agg.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
