// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/config"
)

// NewRootCmd creates the root serix command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "serix",
		Short:         "serix — adaptive red-teaming for AI agents",
		Long:          "Serix probes AI agents with adaptive multi-turn attacks, judges the responses, and reports the vulnerabilities it finds. Provider calls can be recorded and replayed for deterministic, zero-cost reruns.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newRunCmd(),
		newRegressionCmd(),
		newScenariosCmd(),
		newCampaignsCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the config file named by --config (defaults apply when
// the flag is unset).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the process logger; --verbose lowers the level to debug.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
