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
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidation(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Register(Job{Spec: "@every 1m", Run: noop}), "missing name")
	assert.Error(t, s.Register(Job{Name: "a", Spec: "@every 1m"}), "missing run func")
	assert.Error(t, s.Register(Job{Name: "a", Spec: "not a cron", Run: noop}), "bad spec")

	require.NoError(t, s.Register(Job{Name: "a", Spec: "@every 1m", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "a", Spec: "@every 1m", Run: noop}), "duplicate name")
}

func TestTriggerNowRecordsStats(t *testing.T) {
	s := New()
	var calls atomic.Int64
	require.NoError(t, s.Register(Job{
		Name: "analysis",
		Spec: "@every 1h",
		Run: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.TriggerNow(context.Background(), "analysis"))
	require.NoError(t, s.TriggerNow(context.Background(), "analysis"))
	assert.Equal(t, int64(2), calls.Load())

	sts := s.Status()
	require.Len(t, sts, 1)
	assert.Equal(t, "analysis", sts[0].Name)
	assert.Equal(t, int64(2), sts[0].Runs)
	assert.Zero(t, sts[0].Failures)
	assert.False(t, sts[0].Running)
	assert.False(t, sts[0].LastFinished.IsZero())

	assert.Error(t, s.TriggerNow(context.Background(), "nope"))
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(Job{
		Name: "slow",
		Spec: "@every 1h",
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.TriggerNow(context.Background(), "slow")
	}()
	<-started

	// Second trigger while the first holds the job: counted as a skip,
	// not an error, and the run function is not re-entered.
	require.NoError(t, s.TriggerNow(context.Background(), "slow"))
	close(release)
	wg.Wait()

	sts := s.Status()
	assert.Equal(t, int64(1), sts[0].Runs)
	assert.Equal(t, int64(1), sts[0].Skipped)
}

func TestDistinctJobsRunConcurrently(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(Job{
		Name: "a", Spec: "@every 1h",
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))
	var bRan atomic.Bool
	require.NoError(t, s.Register(Job{
		Name: "b", Spec: "@every 1h",
		Run: func(context.Context) error {
			bRan.Store(true)
			return nil
		},
	}))

	go func() { _ = s.TriggerNow(context.Background(), "a") }()
	<-started
	require.NoError(t, s.TriggerNow(context.Background(), "b"))
	assert.True(t, bRan.Load(), "job b not blocked by running job a")
	close(release)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	s := New()
	var calls atomic.Int64
	require.NoError(t, s.Register(Job{
		Name:       "flaky",
		Spec:       "@every 1h",
		Retries:    3,
		RetryDelay: time.Millisecond,
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}))

	require.NoError(t, s.TriggerNow(context.Background(), "flaky"))
	assert.Equal(t, int64(3), calls.Load())

	sts := s.Status()
	assert.Zero(t, sts[0].Failures, "eventual success is not a failure")
	assert.Empty(t, sts[0].LastError)
}

func TestRetriesExhausted(t *testing.T) {
	s := New()
	boom := errors.New("down")
	var calls atomic.Int64
	require.NoError(t, s.Register(Job{
		Name:       "down",
		Spec:       "@every 1h",
		Retries:    2,
		RetryDelay: time.Millisecond,
		Run: func(context.Context) error {
			calls.Add(1)
			return boom
		},
	}))

	err := s.TriggerNow(context.Background(), "down")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(3), calls.Load(), "initial attempt plus two retries")

	sts := s.Status()
	assert.Equal(t, int64(1), sts[0].Failures)
	assert.Equal(t, "down", sts[0].LastError)
}

func TestTimeoutCancelsRun(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(Job{
		Name:    "stuck",
		Spec:    "@every 1h",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := s.TriggerNow(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopWaitsForEngine(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(Job{
		Name: "idle", Spec: "@every 1h",
		Run: func(context.Context) error { return nil },
	}))
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
