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
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/analysis/behavior"
	"github.com/teradata-labs/flywheel/pkg/analysis/cluster"
	"github.com/teradata-labs/flywheel/pkg/analysis/correlation"
	"github.com/teradata-labs/flywheel/pkg/cache"
	"github.com/teradata-labs/flywheel/pkg/ingest"
	"github.com/teradata-labs/flywheel/pkg/learning"
	"github.com/teradata-labs/flywheel/pkg/match"
	"github.com/teradata-labs/flywheel/pkg/metastore"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
	"github.com/teradata-labs/flywheel/pkg/scheduler"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

// adapterHooks lets deployments compile in source adapters; each hook is
// called with the registry before the pipeline starts.
var adapterHooks []func(*ingest.Registry)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the historian daemon",
	Long:  "Starts the ingestion pipeline, queue consumers and the analysis job scheduler, and blocks until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup order: cache, metastore, tsdb, queue, pipeline, jobs.
	// Teardown happens in reverse.
	fast := cache.New(cfg.Cache.Addr, cfg.Cache.DB)
	defer fast.Close()
	if err := fast.Ping(ctx); err != nil {
		// The cache is recomputable; run degraded rather than refuse.
		log.Warn("fast cache unreachable at startup", zap.Error(err))
	}

	store, err := openMetastore(ctx)
	if err != nil {
		return depError(fmt.Errorf("metastore unreachable: %w", err))
	}
	defer store.Close()
	if err := store.Seed(ctx); err != nil {
		return depError(fmt.Errorf("seed pattern library: %w", err))
	}

	ts, err := tsdb.New(cfg.tsdbConfig())
	if err != nil {
		return depError(fmt.Errorf("time-series store: %w", err))
	}
	defer ts.Close()

	q, err := queue.Connect(cfg.Queue.URL)
	if err != nil {
		return depError(fmt.Errorf("queue producer: %w", err))
	}
	defer q.Close()

	// Pipeline.
	metrics := &ingest.Metrics{}
	registry := ingest.NewRegistry()
	for _, hook := range adapterHooks {
		hook(registry)
	}
	poller := ingest.NewPoller(cfg.pollerConfig(), store, registry, q, fast, metrics)
	backfiller := ingest.NewBackfiller(store, registry, q, metrics)
	writer := ingest.NewStoreWriter(ts, metrics)
	sink := ingest.NewCacheSink(fast, cfg.valueTTL())

	liveSub, err := q.Subscribe(queue.TopicTelemetryLive, "fw-store-live")
	if err != nil {
		return depError(err)
	}
	backSub, err := q.Subscribe(queue.TopicTelemetryBackfill, "fw-store-backfill")
	if err != nil {
		return depError(err)
	}
	cacheSub, err := q.Subscribe(queue.TopicTelemetryBackfill, "fw-cache-backfill")
	if err != nil {
		return depError(err)
	}

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(workCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("worker stopped", zap.String("worker", name), zap.Error(err))
			}
		}()
	}
	start("poller", poller.Run)
	start("backfiller", backfiller.Run)
	start("health-reporter", func(ctx context.Context) error {
		return reportHealth(ctx, fast, poller, metrics)
	})
	start("store-writer-live", func(ctx context.Context) error { return writer.Run(ctx, liveSub) })
	start("store-writer-backfill", func(ctx context.Context) error { return writer.Run(ctx, backSub) })
	start("cache-sink-backfill", func(ctx context.Context) error { return sink.Run(ctx, cacheSub) })

	// Analysis jobs.
	aggregator := behavior.New(cfg.behaviorConfig(), store, ts, fast)
	engine := correlation.New(cfg.correlationConfig(), store, ts, fast)
	detector := cluster.New(cfg.clusterConfig(), store, fast, q)
	behavioralMatcher := match.NewBehavioral(cfg.behavioralMatchConfig(), store, q)
	proactiveMatcher := match.NewProactive(cfg.proactiveMatchConfig(), store, q)
	learner := learning.New(cfg.learningConfig(), store, fast, q)

	sched := scheduler.New()
	jobs := []scheduler.Job{
		{
			Name: "behavior", Spec: cfg.Jobs.Behavior, Retries: 3,
			Run: func(ctx context.Context) error {
				_, err := aggregator.RunOnce(ctx, time.Now().UTC())
				return err
			},
		},
		{
			// Cluster detection consumes the engine's edges; they share one
			// cadence so a pass always clusters fresh correlations.
			Name: "correlate-cluster", Spec: cfg.Jobs.Correlation, Retries: 3,
			Run: func(ctx context.Context) error {
				if _, err := engine.RunOnce(ctx, time.Now().UTC()); err != nil {
					return err
				}
				_, err := detector.RunOnce(ctx, time.Now().UTC())
				return err
			},
		},
		{
			Name: "matcher", Spec: cfg.Jobs.Matcher, Retries: 3,
			Run: func(ctx context.Context) error {
				if _, err := behavioralMatcher.RunOnce(ctx, time.Now().UTC()); err != nil {
					return err
				}
				_, err := proactiveMatcher.RunOnce(ctx, time.Now().UTC())
				return err
			},
		},
		{
			Name: "learning", Spec: cfg.Jobs.Learning, Retries: 3,
			Run: func(ctx context.Context) error {
				return learner.RunOnce(ctx, time.Now().UTC())
			},
		},
		{
			Name: "maintenance", Spec: cfg.Jobs.Maintenance, Timeout: time.Hour,
			Run: func(ctx context.Context) error {
				return learner.Maintain(ctx, time.Now().UTC())
			},
		},
	}
	for _, j := range jobs {
		if err := sched.Register(j); err != nil {
			return depError(err)
		}
	}
	sched.Start()

	log.Info("flywheel running",
		zap.String("metastore", cfg.Metastore.Path),
		zap.String("queue", cfg.Queue.URL),
		zap.Duration("poll_interval", cfg.pollerConfig().Interval))

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := sched.Stop(stopCtx); err != nil {
		log.Warn("scheduler stopped uncleanly", zap.Error(err))
	}
	cancelWork()
	wg.Wait()
	for _, sub := range []*queue.Consumer{liveSub, backSub, cacheSub} {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn("consumer drain failed", zap.Error(err))
		}
	}
	if err := q.Flush(10 * time.Second); err != nil {
		log.Warn("publish flush incomplete", zap.Error(err))
	}
	_ = log.Sync()
	return nil
}

// reportHealth publishes the daemon's runtime snapshot to the fast cache
// every 10s so status can read it from outside the process.
func reportHealth(ctx context.Context, fast *cache.Cache, poller *ingest.Poller, metrics *ingest.Metrics) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ms := metrics.Snapshot()
			h := model.Health{
				UpdatedAt:    time.Now().UTC(),
				SourceStates: poller.SourceStates(),
				Pipeline: model.PipelineCounters{
					PublishedBatches: ms.PublishedBatches,
					PublishFailures:  ms.PublishFailures,
					SkippedSamples:   ms.SkippedSamples,
					WrittenRows:      ms.WrittenRows,
					DroppedRequests:  ms.DroppedRequests,
				},
			}
			if err := fast.SetHealth(ctx, h, time.Minute); err != nil {
				log.Debug("health snapshot not stored", zap.Error(err))
			}
		}
	}
}

// openMetastore retries briefly before declaring the metastore unreachable.
func openMetastore(ctx context.Context) (*metastore.Store, error) {
	var lastErr error
	delay := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		store, err := metastore.Open(ctx, cfg.Metastore.Path)
		if err == nil {
			return store, nil
		}
		lastErr = err
		log.Warn("metastore open failed", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
