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
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(mr.Addr(), 0)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCurrentValueRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	p, err := model.NewDataPoint(42, time.Unix(1700000000, 0), 3.14, model.QualityGood)
	require.NoError(t, err)
	require.NoError(t, c.SetCurrentValue(ctx, p, time.Hour))

	got, err := c.GetCurrentValue(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.Value, got.Value)
	assert.Equal(t, p.Quality, got.Quality)
	assert.True(t, p.Timestamp.Equal(got.Timestamp))
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetCurrentValue(ctx, 999)
	assert.ErrorIs(t, err, ErrMiss)

	_, err = c.GetCorrelation(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCorrelationKeyCanonicalOrder(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetCorrelation(ctx, 9, 2, 0.87, time.Hour))

	// Reading with either argument order hits the same key.
	r, err := c.GetCorrelation(ctx, 2, 9)
	require.NoError(t, err)
	assert.InDelta(t, 0.87, r, 1e-12)

	assert.Equal(t, "fw:corr:2:9", CorrKey(9, 2))
}

func TestValueExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	p, err := model.NewDataPoint(1, time.Unix(1700000000, 0), 1.0, model.QualityGood)
	require.NoError(t, err)
	require.NoError(t, c.SetCurrentValue(ctx, p, time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err = c.GetCurrentValue(ctx, 1)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestClusterAndFingerprintRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	cl := model.NewCluster([]int64{1, 2, 3}, 0.66, false)
	require.NoError(t, c.SetCluster(ctx, cl, time.Hour))
	gotCl, err := c.GetCluster(ctx, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, cl.Members, gotCl.Members)

	f := model.Fingerprint{SeqID: 5, SampleCount: 100, Mean: 2.0, StdDev: 0.5, Min: 1, Max: 3, UpdateRate: 0.2}
	require.NoError(t, c.SetFingerprint(ctx, f, time.Hour))
	gotF, err := c.GetFingerprint(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, f.SampleCount, gotF.SampleCount)
	assert.Equal(t, f.Mean, gotF.Mean)
}

func TestHealthRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	h := model.Health{
		UpdatedAt:    time.Unix(1700000000, 0).UTC(),
		SourceStates: map[string]model.SourceState{"plc-01": model.SourceConnected},
		Pipeline:     model.PipelineCounters{PublishedBatches: 12, WrittenRows: 3400},
	}
	require.NoError(t, c.SetHealth(ctx, h, time.Minute))

	got, err := c.GetHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SourceConnected, got.SourceStates["plc-01"])
	assert.Equal(t, int64(3400), got.Pipeline.WrittenRows)

	// A dead daemon's snapshot disappears with its TTL.
	mr.FastForward(2 * time.Minute)
	_, err = c.GetHealth(ctx)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestEnsureTTLsRepairsPersistentKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	// A key written without expiry (for example by an older writer).
	require.NoError(t, mr.Set("fw:value:7", "{}"))
	// A key with a TTL is left alone.
	p, err := model.NewDataPoint(8, time.Unix(1700000000, 0), 1.0, model.QualityGood)
	require.NoError(t, err)
	require.NoError(t, c.SetCurrentValue(ctx, p, time.Hour))

	repaired, err := c.EnsureTTLs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Positive(t, mr.TTL("fw:value:7"))
}
