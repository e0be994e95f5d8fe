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
	"os"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/flywheel/pkg/learning"
	"github.com/teradata-labs/flywheel/pkg/metastore"
)

var (
	reviewReason   string
	reviewReviewer string
)

var approveCmd = &cobra.Command{
	Use:   "approve <suggestion-id>",
	Short: "Approve a pending suggestion",
	Long:  "Approves a pending suggestion: the pattern's confidence rises and every cluster member is bound to the pattern.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], true)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <suggestion-id>",
	Short: "Reject a pending suggestion",
	Long:  "Rejects a pending suggestion: the pattern's confidence drops (floored) and the reason is recorded.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], false)
	},
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd} {
		c.Flags().StringVar(&reviewReason, "reason", "", "reviewer note stored with the decision")
		c.Flags().StringVar(&reviewReviewer, "reviewer", defaultReviewer(), "reviewer identity recorded on the decision")
	}
	_ = rejectCmd.MarkFlagRequired("reason")
	rootCmd.AddCommand(approveCmd, rejectCmd)
}

func defaultReviewer() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}

func runReview(cmd *cobra.Command, id string, approve bool) error {
	ctx := cmd.Context()
	store, err := metastore.Open(ctx, cfg.Metastore.Path)
	if err != nil {
		return depError(fmt.Errorf("metastore unreachable: %w", err))
	}
	defer store.Close()

	l := learning.New(cfg.learningConfig(), store, nil, nil)
	var (
		rev    learning.Review
		action string
	)
	if approve {
		rev, err = l.Approve(ctx, id, reviewReviewer, reviewReason)
		action = "approved"
	} else {
		rev, err = l.Reject(ctx, id, reviewReviewer, reviewReason)
		action = "rejected"
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: pattern %s confidence %.2f -> %.2f\n",
		action, rev.Suggestion.ID, rev.Suggestion.PatternID, rev.Before, rev.After)
	return nil
}
