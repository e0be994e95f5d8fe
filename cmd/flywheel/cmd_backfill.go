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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/ingest"
	"github.com/teradata-labs/flywheel/pkg/metastore"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

var (
	backfillChunk string
	backfillTags  string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <source> <start> <end>",
	Short: "Replay a historical interval through the queue",
	Long: `Slices the interval into chunks and replays each chunk from the source
adapter into the backfill topic. Timestamps accept RFC 3339 or YYYY-MM-DD.`,
	Args: cobra.ExactArgs(3),
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillChunk, "chunk", "30d", "chunk duration (accepts a d suffix for days)")
	backfillCmd.Flags().StringVar(&backfillTags, "tags", "", "comma-separated tag addresses (default: all enabled points of the source)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sourceID := args[0]
	start, err := parseTimeArg(args[1])
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := parseTimeArg(args[2])
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	chunk, err := parseChunk(backfillChunk)
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}

	store, err := metastore.Open(ctx, cfg.Metastore.Path)
	if err != nil {
		return depError(fmt.Errorf("metastore unreachable: %w", err))
	}
	defer store.Close()

	addresses := splitList(backfillTags)
	if len(addresses) == 0 {
		points, err := store.ListEnabledPointsBySource(ctx, sourceID)
		if err != nil {
			return depError(err)
		}
		for _, p := range points {
			addresses = append(addresses, p.Address)
		}
	}
	if len(addresses) == 0 {
		return fmt.Errorf("source %q has no enabled points", sourceID)
	}

	q, err := queue.Connect(cfg.Queue.URL)
	if err != nil {
		return depError(fmt.Errorf("queue producer: %w", err))
	}
	defer q.Close()

	metrics := &ingest.Metrics{}
	registry := ingest.NewRegistry()
	for _, hook := range adapterHooks {
		hook(registry)
	}
	b := ingest.NewBackfiller(store, registry, q, metrics)

	id, err := b.Enqueue(ingest.BackfillRequest{
		SourceType:    sourceID,
		TagAddresses:  addresses,
		Start:         start,
		End:           end,
		ChunkDuration: chunk,
	})
	if err != nil {
		return err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(workCtx)
	}()

	log.Info("backfill started",
		zap.String("request", id),
		zap.String("source", sourceID),
		zap.Int("addresses", len(addresses)))

	var stats ingest.BackfillStats
poll:
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			s, ok := b.Stats(id)
			if !ok {
				return fmt.Errorf("backfill request %s evicted from queue", id)
			}
			if s.Done {
				stats = s
				break poll
			}
		}
	}
	cancel()
	<-done

	if err := q.Flush(10 * time.Second); err != nil {
		log.Warn("publish flush incomplete", zap.Error(err))
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if stats.FailedChunks > 0 {
		return depError(fmt.Errorf("%d of %d chunks failed", stats.FailedChunks, stats.TotalChunks))
	}
	return nil
}

func parseTimeArg(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}

// parseChunk accepts stdlib durations plus a whole-day suffix ("30d").
func parseChunk(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("want a positive day count, got %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("want a positive duration, got %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
