// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"log/slog"
	"os"

	cfg "github.com/foundriesio/aiupdate/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPaths []string
	config      *cfg.Config

	rootCmd = &cobra.Command{
		Use:   "aiupdate [APPIMAGE PATH]",
		Short: "Check an AppImage for an update and apply it",
		Long: `Check an AppImage for an update and apply it.

The update engine is selected by the engine.name configuration value or the --engine flag.
Without an AppImage path the usage is printed.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
			if !cmd.HasParent() && len(args) == 0 {
				// only the usage is printed
				return
			}

			var err error
			config, err = cfg.NewConfig(configPaths)
			cobra.CheckErr(err)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "cfg-dirs", "c",
		cfg.DefaultConfigDirs, "A comma-separated list of paths to search for .toml configuration files")
}
