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
package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/cache"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

func fp(rate, min, max float64) model.Fingerprint {
	return model.Fingerprint{UpdateRate: rate, Min: min, Max: max, SampleCount: 1000}
}

func TestGroupCandidatesRateFactor(t *testing.T) {
	fps := map[int64]model.Fingerprint{
		1: fp(0.1, 0, 10),
		2: fp(0.2, 0, 10),  // exactly 2x anchor: included
		3: fp(0.21, 0, 10), // just over 2x: new group
		4: fp(0.1, 0, 10),
	}
	groups := GroupCandidates(fps)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []int64{1, 2, 4}, groups[0])
	assert.ElementsMatch(t, []int64{3}, groups[1])
}

func TestGroupCandidatesRangeBucket(t *testing.T) {
	fps := map[int64]model.Fingerprint{
		1: fp(1, 0, 1),    // span 1e0
		2: fp(1, 0, 5000), // span ~1e3
		3: fp(1, 0, 0.9),  // span 1e-1
	}
	groups := GroupCandidates(fps)
	assert.Len(t, groups, 3)
}

func TestGroupCandidatesDeterministic(t *testing.T) {
	fps := map[int64]model.Fingerprint{
		5: fp(0.5, 0, 10), 1: fp(0.5, 0, 10), 9: fp(0.5, 0, 10),
	}
	a := GroupCandidates(fps)
	b := GroupCandidates(fps)
	assert.Equal(t, a, b)
	require.Len(t, a, 1)
	assert.Equal(t, []int64{1, 5, 9}, a[0])
}

type fakeStore struct {
	fps   map[int64]model.Fingerprint
	edges []model.CorrelationEdge
}

func (s *fakeStore) GetFingerprints(context.Context, time.Time) (map[int64]model.Fingerprint, error) {
	return s.fps, nil
}

func (s *fakeStore) UpsertCorrelation(_ context.Context, e model.CorrelationEdge) error {
	s.edges = append(s.edges, e)
	return nil
}

type fakeCache struct {
	vals map[string]float64
	sets int
}

func (c *fakeCache) GetCorrelation(_ context.Context, a, b int64) (float64, error) {
	v, ok := c.vals[cache.CorrKey(a, b)]
	if !ok {
		return 0, cache.ErrMiss
	}
	return v, nil
}

func (c *fakeCache) SetCorrelation(_ context.Context, a, b int64, r float64, _ time.Duration) error {
	if c.vals == nil {
		c.vals = map[string]float64{}
	}
	c.vals[cache.CorrKey(a, b)] = r
	c.sets++
	return nil
}

type pairResult struct {
	r float64
	n int64
}

type fakeGateway struct {
	pairs map[string]pairResult
}

func (g *fakeGateway) Append(context.Context, *model.Batch) error { return nil }

func (g *fakeGateway) Range(context.Context, int64, time.Time, time.Time, int) ([]model.DataPoint, error) {
	return nil, nil
}

func (g *fakeGateway) LastValue(context.Context, int64) (model.DataPoint, error) {
	return model.DataPoint{}, nil
}

func (g *fakeGateway) AggregateWindow(context.Context, int64, time.Time, time.Time) (tsdb.Aggregate, error) {
	return tsdb.Aggregate{}, nil
}

func (g *fakeGateway) PairCorrelation(_ context.Context, a, b int64, _, _ time.Time) (float64, int64, error) {
	res, ok := g.pairs[cache.CorrKey(a, b)]
	if !ok {
		return 0, 0, tsdb.ErrNoData
	}
	return res.r, res.n, nil
}

func TestRunOnceStoresStrongEdges(t *testing.T) {
	store := &fakeStore{fps: map[int64]model.Fingerprint{
		1: fp(0.1, 0, 10),
		2: fp(0.1, 0, 10),
		3: fp(0.1, 0, 10),
	}}
	gw := &fakeGateway{pairs: map[string]pairResult{
		cache.CorrKey(1, 2): {r: -0.85, n: 500}, // strong negative: stored as |r|
		cache.CorrKey(1, 3): {r: 0.60, n: 500},  // exactly at floor: stored
		cache.CorrKey(2, 3): {r: 0.30, n: 500},  // weak: skipped
	}}
	c := &fakeCache{}
	eng := New(DefaultConfig(), store, gw, c)

	n, err := eng.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, store.edges, 2)
	for _, e := range store.edges {
		assert.Less(t, e.SeqA, e.SeqB)
		assert.GreaterOrEqual(t, e.R, 0.60)
	}
}

func TestRunOnceSampleFloor(t *testing.T) {
	store := &fakeStore{fps: map[int64]model.Fingerprint{
		1: fp(0.1, 0, 10), 2: fp(0.1, 0, 10),
	}}
	gw := &fakeGateway{pairs: map[string]pairResult{
		cache.CorrKey(1, 2): {r: 0.99, n: 99},
	}}
	eng := New(DefaultConfig(), store, gw, &fakeCache{})

	n, err := eng.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceChangeSuppression(t *testing.T) {
	store := &fakeStore{fps: map[int64]model.Fingerprint{
		1: fp(0.1, 0, 10), 2: fp(0.1, 0, 10),
	}}
	gw := &fakeGateway{pairs: map[string]pairResult{
		cache.CorrKey(1, 2): {r: 0.85, n: 500},
	}}
	c := &fakeCache{vals: map[string]float64{cache.CorrKey(1, 2): 0.80}}
	eng := New(DefaultConfig(), store, gw, c)

	now := time.Now()
	n, err := eng.RunOnce(context.Background(), now)
	require.NoError(t, err)
	// Moved only 0.05 < 0.10: not counted as a change, but the edge is
	// still re-persisted with a fresh timestamp and the cache refreshed.
	assert.Zero(t, n)
	require.Len(t, store.edges, 1)
	assert.True(t, store.edges[0].ComputedAt.Equal(now))
	assert.Equal(t, 1, c.sets)
	assert.InDelta(t, 0.85, c.vals[cache.CorrKey(1, 2)], 1e-12)
}

func TestRunOnceStablePairStaysInDetectionWindow(t *testing.T) {
	store := &fakeStore{fps: map[int64]model.Fingerprint{
		1: fp(0.1, 0, 10), 2: fp(0.1, 0, 10),
	}}
	gw := &fakeGateway{pairs: map[string]pairResult{
		cache.CorrKey(1, 2): {r: 0.85, n: 500},
	}}
	c := &fakeCache{}
	eng := New(DefaultConfig(), store, gw, c)

	t0 := time.Now()
	n, err := eng.RunOnce(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A day of unchanged runs: every pass rewrites the edge, so the
	// newest computed_at never falls behind a 24h edge window.
	for i := 1; i <= 4; i++ {
		_, err := eng.RunOnce(context.Background(), t0.Add(time.Duration(i)*6*time.Hour))
		require.NoError(t, err)
	}
	require.Len(t, store.edges, 5)
	for i := 1; i < len(store.edges); i++ {
		assert.True(t, store.edges[i].ComputedAt.After(store.edges[i-1].ComputedAt))
	}
	last := store.edges[len(store.edges)-1]
	assert.True(t, last.ComputedAt.Equal(t0.Add(24*time.Hour)))
}

func TestPValue(t *testing.T) {
	// No correlation over many samples: p near 1.
	assert.InDelta(t, 1.0, PValue(0, 1000), 1e-6)
	// Strong correlation over many samples: p effectively 0.
	assert.Less(t, PValue(0.9, 500), 1e-9)
	// Too few samples: defined as 1.
	assert.Equal(t, 1.0, PValue(0.9, 3))
	// Monotone in |r| at fixed n.
	assert.Greater(t, PValue(0.2, 100), PValue(0.6, 100))
	// Sign does not matter.
	assert.Equal(t, PValue(-0.5, 200), PValue(0.5, 200))
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(0), 1e-7)
	assert.InDelta(t, 0.8413447, normalCDF(1), 1e-6)
	assert.InDelta(t, 0.9772499, normalCDF(2), 1e-6)
	assert.InDelta(t, 1-0.8413447, normalCDF(-1), 1e-6)
}
