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

	"github.com/spf13/cobra"

	"github.com/teradata-labs/flywheel/internal/version"
)

// Exit codes of the operator surface.
const (
	exitUsage      = 2
	exitDependency = 3
	exitCancelled  = 4
)

var (
	cfgFile string
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:           "flywheel",
	Short:         "Flywheel - industrial historian with pattern discovery",
	Long:          `Flywheel ingests industrial telemetry into a time-series store and runs the pattern flywheel: behavioral fingerprints, pair correlation, cluster detection, pattern matching, and feedback-driven learning.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: flywheel.yaml in $FLYWHEEL_DATA_DIR or cwd)")
}

// initConfig loads the configuration bag. A parse failure is fatal.
func initConfig() {
	var err error
	cfg, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(exitDependency)
	}
}

// codedError carries an explicit exit code through cobra.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func depError(err error) error {
	return &codedError{code: exitDependency, err: err}
}

func exitCode(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitCancelled
	}
	return exitUsage
}
