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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/flywheel/pkg/match"
	"github.com/teradata-labs/flywheel/pkg/metastore"
)

var matchSource string

var matchNowCmd = &cobra.Command{
	Use:   "match-now",
	Short: "Run the pattern matchers once, outside the schedule",
	Long: `Runs the behavioral matcher over active clusters and the proactive
matcher over unanalyzed tags. With --source, only the proactive matcher runs,
scoped to that source's enabled points.`,
	Args: cobra.NoArgs,
	RunE: runMatchNow,
}

func init() {
	matchNowCmd.Flags().StringVar(&matchSource, "source", "", "restrict proactive matching to one source")
	rootCmd.AddCommand(matchNowCmd)
}

func runMatchNow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	now := time.Now().UTC()

	store, err := metastore.Open(ctx, cfg.Metastore.Path)
	if err != nil {
		return depError(fmt.Errorf("metastore unreachable: %w", err))
	}
	defer store.Close()
	if err := store.Seed(ctx); err != nil {
		return depError(fmt.Errorf("seed pattern library: %w", err))
	}

	proactive := match.NewProactive(cfg.proactiveMatchConfig(), store, nil)

	if matchSource != "" {
		points, err := store.ListEnabledPointsBySource(ctx, matchSource)
		if err != nil {
			return err
		}
		n, err := proactive.MatchPoints(ctx, points, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "proactive: %d suggestions for %d points of %s\n",
			n, len(points), matchSource)
		return nil
	}

	behavioral := match.NewBehavioral(cfg.behavioralMatchConfig(), store, nil)
	bn, err := behavioral.RunOnce(ctx, now)
	if err != nil {
		return err
	}
	pn, err := proactive.RunOnce(ctx, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "behavioral: %d suggestions\nproactive: %d suggestions\n", bn, pn)
	return nil
}
