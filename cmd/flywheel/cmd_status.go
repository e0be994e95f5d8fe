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
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/flywheel/internal/version"
	"github.com/teradata-labs/flywheel/pkg/cache"
	"github.com/teradata-labs/flywheel/pkg/metastore"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
	"github.com/teradata-labs/flywheel/pkg/tsdb"
)

type statusReport struct {
	Version            string        `json:"version"`
	Metastore          string        `json:"metastore"`
	TSDB               string        `json:"tsdb"`
	Cache              string        `json:"cache"`
	Queue              string        `json:"queue"`
	Sources            int           `json:"sources"`
	EnabledPoints      int           `json:"enabled_points"`
	ActiveClusters     int           `json:"active_clusters"`
	PendingSuggestions int           `json:"pending_suggestions"`
	Daemon             *model.Health `json:"daemon,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report dependency health and flywheel counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	report := statusReport{Version: version.Get()}

	store, err := metastore.Open(ctx, cfg.Metastore.Path)
	if err != nil {
		return depError(fmt.Errorf("metastore unreachable: %w", err))
	}
	defer store.Close()
	report.Metastore = pingStatus(ctx, store.Ping)

	report.TSDB = checkTSDB(ctx)
	report.Cache, report.Daemon = checkCache(ctx)
	report.Queue = checkQueue()

	if sources, err := store.ListSourceIDs(ctx); err == nil {
		report.Sources = len(sources)
	}
	if points, err := store.ListEnabledPoints(ctx); err == nil {
		report.EnabledPoints = len(points)
	}
	if clusters, err := store.ListActiveClusters(ctx); err == nil {
		report.ActiveClusters = len(clusters)
	}
	if pending, err := store.ListPendingSuggestions(ctx); err == nil {
		report.PendingSuggestions = len(pending)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func pingStatus(ctx context.Context, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := ping(ctx); err != nil {
		return "unreachable: " + err.Error()
	}
	return "ok"
}

func checkTSDB(ctx context.Context) string {
	ts, err := tsdb.New(cfg.tsdbConfig())
	if err != nil {
		return "unreachable: " + err.Error()
	}
	defer ts.Close()
	return pingStatus(ctx, ts.Ping)
}

// checkCache also fetches the daemon's runtime snapshot, when a running
// daemon published one recently.
func checkCache(ctx context.Context) (string, *model.Health) {
	c := cache.New(cfg.Cache.Addr, cfg.Cache.DB)
	defer c.Close()
	state := pingStatus(ctx, c.Ping)
	if h, err := c.GetHealth(ctx); err == nil {
		return state, &h
	}
	return state, nil
}

func checkQueue() string {
	q, err := queue.Connect(cfg.Queue.URL)
	if err != nil {
		return "unreachable: " + err.Error()
	}
	defer q.Close()
	return "ok"
}
