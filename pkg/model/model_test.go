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
package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataPointRejectsNonFinite(t *testing.T) {
	now := time.Now()

	_, err := NewDataPoint(1, now, math.NaN(), QualityGood)
	assert.ErrorIs(t, err, ErrNonFiniteValue)

	_, err = NewDataPoint(1, now, math.Inf(1), QualityGood)
	assert.ErrorIs(t, err, ErrNonFiniteValue)

	_, err = NewDataPoint(1, now, math.Inf(-1), QualityGood)
	assert.ErrorIs(t, err, ErrNonFiniteValue)
}

func TestNewDataPointRejectsPreEpoch(t *testing.T) {
	_, err := NewDataPoint(1, time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC), 1.0, QualityGood)
	assert.ErrorIs(t, err, ErrPreEpochTimestamp)

	// Exactly at the epoch is accepted.
	p, err := NewDataPoint(1, time.Unix(0, 0), 1.0, QualityGood)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Timestamp.Unix())
}

func TestDataPointNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	p, err := NewDataPoint(7, time.Date(2026, 3, 1, 12, 0, 0, 0, loc), 2.5, QualityUncertain)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.Timestamp.Location())
}

func TestBatchRoundTripPreservesOrderAndQuality(t *testing.T) {
	b := NewBatch("plc-01")
	for i := 0; i < 5; i++ {
		p, err := NewDataPoint(int64(i+1), time.Unix(int64(1000+i), 0), float64(i)*1.5, Quality(i))
		require.NoError(t, err)
		b.Append(p)
	}

	raw, err := json.Marshal(b)
	require.NoError(t, err)

	var got Batch
	require.NoError(t, json.Unmarshal(raw, &got))

	require.Equal(t, b.Len(), got.Len())
	for i, p := range got.Points {
		assert.Equal(t, b.Points[i].SeqID, p.SeqID)
		assert.Equal(t, b.Points[i].Quality, p.Quality)
		assert.True(t, b.Points[i].Timestamp.Equal(p.Timestamp))
	}
}

func TestClusterIDDeterministic(t *testing.T) {
	a := ClusterID([]int64{5, 3, 9})
	b := ClusterID([]int64{9, 5, 3})
	assert.Equal(t, a, b, "member order must not change the ID")

	c := ClusterID([]int64{5, 3, 10})
	assert.NotEqual(t, a, c)

	// Stable across calls and runs.
	assert.Equal(t, a, ClusterID([]int64{3, 5, 9}))
}

func TestNewClusterSortsMembers(t *testing.T) {
	c := NewCluster([]int64{42, 7, 19}, 0.61, false)
	assert.Equal(t, []int64{7, 19, 42}, c.Members)
	assert.True(t, c.Active)
	assert.Equal(t, ClusterID([]int64{7, 19, 42}), c.ID)
}

func TestOrderPair(t *testing.T) {
	lo, hi := OrderPair(9, 2)
	assert.Equal(t, int64(2), lo)
	assert.Equal(t, int64(9), hi)

	lo, hi = OrderPair(2, 9)
	assert.Equal(t, int64(2), lo)
	assert.Equal(t, int64(9), hi)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceFloor, ClampConfidence(0.1))
	assert.Equal(t, ConfidenceCeil, ClampConfidence(1.2))
	assert.Equal(t, 0.75, ClampConfidence(0.75))
}

func TestQualityRoundTrip(t *testing.T) {
	for _, q := range []Quality{QualityGood, QualityUncertain, QualityBad, QualityNotAvailable, QualitySubstituted} {
		assert.Equal(t, q, ParseQuality(q.String()))
	}
	assert.Equal(t, QualityNotAvailable, ParseQuality("bogus"))
	assert.False(t, Quality(99).Valid())
}

func TestExplanationRoundTrip(t *testing.T) {
	e := Explanation{
		Scores:     map[string]float64{"naming": 1.0, "unit": 0.5},
		NamePrefix: "P101",
		MatchedRoles: []RoleAssignment{
			{Role: "discharge_pressure", SeqID: 3, Tag: "P101_DIS_PRESS", Score: 0.9},
		},
		Tokens: map[string][]Token{
			"P101_DIS_PRESS": {{Raw: "DIS", Expansion: "discharge"}, {Raw: "PRESS", Expansion: "pressure", Measurement: "pressure"}},
		},
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var got Explanation
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, e, got)
}
