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
package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreatePointAssignsMonotonicSeqIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreatePoint(ctx, model.Point{Name: "P101_FLOW", SourceID: "plc-01", Enabled: true})
	require.NoError(t, err)
	b, err := s.CreatePoint(ctx, model.Point{Name: "P101_AMPS", SourceID: "plc-01", Enabled: true})
	require.NoError(t, err)

	assert.Greater(t, b.SeqID, a.SeqID)

	// Names are unique per deployment.
	_, err = s.CreatePoint(ctx, model.Point{Name: "P101_FLOW", SourceID: "plc-02"})
	assert.Error(t, err)
}

func TestDisablingPointKeepsRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePoint(ctx, model.Point{Name: "T1", SourceID: "src", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, s.SetPointEnabled(ctx, p.SeqID, false))

	got, err := s.GetPoint(ctx, p.SeqID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	enabled, err := s.ListEnabledPoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)
}

func TestClusterUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.NewCluster([]int64{1, 2, 3}, 0.7, false)
	require.NoError(t, s.UpsertCluster(ctx, c))

	// Re-detection of the same member set collides on the deterministic ID
	// and refreshes the row.
	c2 := model.NewCluster([]int64{3, 2, 1}, 0.75, false)
	require.Equal(t, c.ID, c2.ID)
	require.NoError(t, s.UpsertCluster(ctx, c2))

	got, err := s.GetCluster(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got.Members)
	assert.InDelta(t, 0.75, got.Cohesion, 1e-12)

	all, err := s.ListActiveClusters(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeactivateStaleClusters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := model.NewCluster([]int64{1, 2, 3}, 0.6, false)
	old.DetectedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.UpsertCluster(ctx, old))

	fresh := model.NewCluster([]int64{4, 5, 6}, 0.6, false)
	require.NoError(t, s.UpsertCluster(ctx, fresh))

	n, err := s.DeactivateStaleClusters(ctx, []string{fresh.ID}, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetCluster(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestSuggestionUniqueOnClusterPattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	p, err := s.GetPatternByName(ctx, "Centrifugal Pump")
	require.NoError(t, err)
	c := model.NewCluster([]int64{1, 2, 3}, 0.8, false)
	require.NoError(t, s.UpsertCluster(ctx, c))

	first, err := s.UpsertSuggestion(ctx, model.Suggestion{
		ClusterID: c.ID, PatternID: p.ID,
		NamingScore: 1, CorrelationScore: 0.8, RangeScore: 0.5, RateScore: 0.5, Overall: 0.76,
	})
	require.NoError(t, err)

	second, err := s.UpsertSuggestion(ctx, model.Suggestion{
		ClusterID: c.ID, PatternID: p.ID,
		NamingScore: 1, CorrelationScore: 0.82, RangeScore: 0.5, RateScore: 0.5, Overall: 0.77,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "upsert must keep the original row")
	assert.InDelta(t, 0.77, second.Overall, 1e-12)
	assert.Equal(t, model.SuggestionPending, second.State)
}

func TestSuggestionStateTransitionOnlyFromPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	p, _ := s.GetPatternByName(ctx, "Centrifugal Pump")
	c := model.NewCluster([]int64{1, 2, 3}, 0.8, false)
	require.NoError(t, s.UpsertCluster(ctx, c))
	sg, err := s.UpsertSuggestion(ctx, model.Suggestion{ClusterID: c.ID, PatternID: p.ID, Overall: 0.7})
	require.NoError(t, err)

	ok, err := s.SetSuggestionState(ctx, sg.ID, model.SuggestionApproved, "alice", "")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition is a no-op.
	ok, err = s.SetSuggestionState(ctx, sg.ID, model.SuggestionRejected, "bob", "dup")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetSuggestion(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, got.State)
	assert.Equal(t, "alice", got.Reviewer)
}

func TestExpirePendingSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	p, _ := s.GetPatternByName(ctx, "Centrifugal Pump")
	c := model.NewCluster([]int64{1, 2, 3}, 0.8, false)
	require.NoError(t, s.UpsertCluster(ctx, c))

	sg, err := s.UpsertSuggestion(ctx, model.Suggestion{
		ClusterID: c.ID, PatternID: p.ID, Overall: 0.7,
		CreatedAt: time.Now().UTC().Add(-31 * 24 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	n, err := s.ExpirePendingSuggestions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := s.GetSuggestion(ctx, sg.ID)
	assert.Equal(t, model.SuggestionExpired, got.State)
}

func TestBindingUniqueOnTagPattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))
	p, _ := s.GetPatternByName(ctx, "Centrifugal Pump")

	require.NoError(t, s.UpsertBinding(ctx, model.Binding{SeqID: 7, PatternID: p.ID, Reviewer: "alice", Confidence: 0.76}))
	require.NoError(t, s.UpsertBinding(ctx, model.Binding{SeqID: 7, PatternID: p.ID, Reviewer: "alice", Confidence: 0.76}))

	got, err := s.ListBindingsByPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDecayConfidencesLinearInDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertPattern(ctx, model.Pattern{Name: "Old Pattern", Confidence: 0.80, Active: true})
	require.NoError(t, err)

	// Backdate the last update by 10 days.
	tenDaysAgo := time.Now().UTC().Add(-10 * 24 * time.Hour)
	_, err = s.db.ExecContext(ctx, `UPDATE patterns SET updated_at = ? WHERE id = ?`, tenDaysAgo, p.ID)
	require.NoError(t, err)

	n, err := s.DecayConfidences(ctx, 0.005, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	// 0.80 * (1 - 0.005 * 10) = 0.76
	assert.InDelta(t, 0.76, got.Confidence, 1e-6)
}

func TestDecaySkipsRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPattern(ctx, model.Pattern{Name: "Fresh Pattern", Confidence: 0.80, Active: true})
	require.NoError(t, err)

	n, err := s.DecayConfidences(ctx, 0.005, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecayNeverBelowFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertPattern(ctx, model.Pattern{Name: "Weak Pattern", Confidence: 0.31, Active: true})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE patterns SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-365*24*time.Hour), p.ID)
	require.NoError(t, err)

	_, err = s.DecayConfidences(ctx, 0.005, time.Now())
	require.NoError(t, err)

	got, err := s.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, model.ConfidenceFloor, got.Confidence, 1e-9)
}

func TestCorrelationCanonicalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := model.CorrelationEdge{SeqA: 9, SeqB: 2, R: 0.71, SampleCount: 200,
		WindowStart: now.Add(-time.Hour), WindowEnd: now, ComputedAt: now}
	require.NoError(t, s.UpsertCorrelation(ctx, e))

	edges, err := s.ListCorrelationsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(2), edges[0].SeqA)
	assert.Equal(t, int64(9), edges[0].SeqB)
	assert.Less(t, edges[0].SeqA, edges[0].SeqB)
}

func TestListUnanalyzedPointsExcludesBoundAndRecentProactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))
	p, _ := s.GetPatternByName(ctx, "Centrifugal Pump")

	bound, err := s.CreatePoint(ctx, model.Point{Name: "BOUND", SourceID: "s", Enabled: true})
	require.NoError(t, err)
	clustered, err := s.CreatePoint(ctx, model.Point{Name: "CLUSTERED", SourceID: "s", Enabled: true})
	require.NoError(t, err)
	free, err := s.CreatePoint(ctx, model.Point{Name: "FREE", SourceID: "s", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, s.UpsertBinding(ctx, model.Binding{SeqID: bound.SeqID, PatternID: p.ID, Confidence: 0.7}))
	pc := model.NewCluster([]int64{clustered.SeqID, 998, 999}, 0, true)
	require.NoError(t, s.UpsertCluster(ctx, pc))

	got, err := s.ListUnanalyzedPoints(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, free.SeqID, got[0].SeqID)
}

func TestSeedIsIdempotentAndKeepsLearnedConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx))

	p, err := s.GetPatternByName(ctx, "Centrifugal Pump")
	require.NoError(t, err)
	_, after, err := s.ApplyApproval(ctx, p.ID, 0.05)
	require.NoError(t, err)

	require.NoError(t, s.Seed(ctx))
	got, err := s.GetPatternByName(ctx, "Centrifugal Pump")
	require.NoError(t, err)
	assert.InDelta(t, after, got.Confidence, 1e-9)

	roles, err := s.ListRoles(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 5)
	assert.Equal(t, "discharge_pressure", roles[0].Name)
}

func TestApplyApprovalAndRejectionClamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertPattern(ctx, model.Pattern{Name: "X", Confidence: 0.98, Active: true})
	require.NoError(t, err)

	before, after, err := s.ApplyApproval(ctx, p.ID, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.98, before, 1e-9)
	assert.InDelta(t, 1.00, after, 1e-9)

	p2, err := s.UpsertPattern(ctx, model.Pattern{Name: "Y", Confidence: 0.31, Active: true})
	require.NoError(t, err)
	_, after, err = s.ApplyRejection(ctx, p2.ID, 0.03)
	require.NoError(t, err)
	assert.InDelta(t, model.ConfidenceFloor, after, 1e-9)
}
