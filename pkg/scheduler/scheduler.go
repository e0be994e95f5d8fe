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
// Package scheduler runs the periodic analysis jobs on cron cadences.
// Each job is serialized against itself: a tick that lands while the
// previous run is still going is counted as skipped, never queued.
// Distinct jobs run concurrently.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
)

const (
	// DefaultTimeout bounds a single job run when the job declares none.
	DefaultTimeout = 10 * time.Minute
	// DefaultRetryDelay is the first retry backoff; it doubles per attempt.
	DefaultRetryDelay = 30 * time.Second
)

// Job is one periodic unit of work.
type Job struct {
	Name string
	// Spec is a standard 5-field cron expression or a descriptor such as
	// "@every 15m".
	Spec    string
	Timeout time.Duration
	// Retries is the number of additional attempts after a failed run,
	// within the same timeout budget.
	Retries    int
	RetryDelay time.Duration
	Run        func(ctx context.Context) error
}

type jobStats struct {
	runs         int64
	failures     int64
	skipped      int64
	lastStarted  time.Time
	lastFinished time.Time
	lastDuration time.Duration
	lastError    string
}

// JobStatus is a point-in-time snapshot of one job.
type JobStatus struct {
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastStarted  time.Time     `json:"last_started,omitempty"`
	LastFinished time.Time     `json:"last_finished,omitempty"`
	LastDuration time.Duration `json:"last_duration_ms,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

// Scheduler owns the cron engine and the per-job bookkeeping.
type Scheduler struct {
	mu      sync.Mutex
	engine  *cron.Cron
	jobs    map[string]Job
	entries map[string]cron.EntryID
	running map[string]bool
	stats   map[string]*jobStats
}

// New creates an empty scheduler. Register jobs, then Start.
func New() *Scheduler {
	return &Scheduler{
		engine:  cron.New(),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		stats:   make(map[string]*jobStats),
	}
}

// Register adds a job to the engine. Names are unique; the spec is
// validated up front so a typo fails at startup rather than silently
// never firing.
func (s *Scheduler) Register(j Job) error {
	if j.Name == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if j.Run == nil {
		return fmt.Errorf("scheduler: job %q has no run function", j.Name)
	}
	if _, err := cron.ParseStandard(j.Spec); err != nil {
		return fmt.Errorf("scheduler: job %q spec %q: %w", j.Name, j.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", j.Name)
	}

	entryID, err := s.engine.AddFunc(j.Spec, func() {
		if err := s.execute(context.Background(), j); err != nil {
			log.Error("scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job %q: %w", j.Name, err)
	}
	s.jobs[j.Name] = j
	s.entries[j.Name] = entryID
	s.stats[j.Name] = &jobStats{}
	log.Info("registered job", zap.String("job", j.Name), zap.String("spec", j.Spec))
	return nil
}

// Start begins firing jobs on their cadences.
func (s *Scheduler) Start() {
	s.engine.Start()
	log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop halts the engine and waits for in-flight jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronCtx := s.engine.Stop()
	select {
	case <-cronCtx.Done():
		log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		log.Warn("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}

// TriggerNow runs a registered job synchronously, outside its cadence.
// The same overlap rule applies: a job already running is not doubled.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.execute(ctx, j)
}

// Status returns a snapshot of every job, ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for name, st := range s.stats {
		js := JobStatus{
			Name:         name,
			Running:      s.running[name],
			Runs:         st.runs,
			Failures:     st.failures,
			Skipped:      st.skipped,
			LastStarted:  st.lastStarted,
			LastFinished: st.lastFinished,
			LastDuration: st.lastDuration,
			LastError:    st.lastError,
		}
		if entryID, ok := s.entries[name]; ok {
			js.NextRun = s.engine.Entry(entryID).Next
		}
		out = append(out, js)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, j Job) error {
	s.mu.Lock()
	if s.running[j.Name] {
		s.stats[j.Name].skipped++
		s.mu.Unlock()
		log.Debug("job still running, tick skipped", zap.String("job", j.Name))
		return nil
	}
	s.running[j.Name] = true
	st := s.stats[j.Name]
	st.runs++
	st.lastStarted = time.Now().UTC()
	s.mu.Unlock()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := s.runWithRetry(runCtx, j)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.running[j.Name] = false
	st.lastFinished = time.Now().UTC()
	st.lastDuration = elapsed
	if err != nil {
		st.failures++
		st.lastError = err.Error()
	} else {
		st.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	log.Debug("job finished", zap.String("job", j.Name), zap.Duration("elapsed", elapsed))
	return nil
}

// runWithRetry attempts the job up to 1+Retries times inside the run's
// timeout. Backoff doubles per attempt and is cut short by ctx.
func (s *Scheduler) runWithRetry(ctx context.Context, j Job) error {
	delay := j.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = j.Run(ctx)
		if err == nil || attempt >= j.Retries {
			return err
		}
		log.Warn("job attempt failed",
			zap.String("job", j.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}
