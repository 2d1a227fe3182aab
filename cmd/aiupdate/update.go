// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/foundriesio/aiupdate/internal/discovery"
	"github.com/foundriesio/aiupdate/internal/history"
	"github.com/foundriesio/aiupdate/internal/lock"
	"github.com/foundriesio/aiupdate/pkg/workflow"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type (
	updateOptions struct {
		engineName string
		deadline   time.Duration
		noHistory  bool
	}
)

func init() {
	opts := updateOptions{}
	rootCmd.Flags().StringVar(&opts.engineName, "engine", "", "Name of the update engine to use, overrides engine.name")
	rootCmd.Flags().DurationVar(&opts.deadline, "deadline", 0,
		"Abort the workflow if it does not finish within this time, 0 disables it. Overrides workflow.deadline_seconds")
	rootCmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record the workflow transitions")
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.SetOut(os.Stdout)
			cobra.CheckErr(cmd.Usage())
			return
		}
		doUpdate(cmd, args[0], &opts)
	}
}

func doUpdate(cmd *cobra.Command, artifact string, opts *updateOptions) {
	engineName := config.GetEngineName()
	if opts.engineName != "" {
		engineName = opts.engineName
	}
	adapter, err := newLoader().Load(engineName)
	DieNotNilWithCode(err, ExitEngineLoadFailure)
	if p := os.Getenv(discovery.EnvEnginePath); p != "" {
		engineName = p
	}

	deadline := config.GetDeadline()
	if cmd.Flags().Changed("deadline") {
		deadline = opts.deadline
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	l := acquireLock()
	if l != nil {
		defer l.Unlock()
	}

	var recorder *history.Recorder
	if !opts.noHistory {
		recorder = newRecorder(engineName, artifact)
	}
	handlers := newWorkflowHandlers(recorder, isatty.IsTerminal(os.Stderr.Fd()))

	report, err := workflow.Run(ctx, adapter, artifact, handlers.runOpts()...)
	handlers.finish()
	if recorder != nil {
		if err := history.DeleteEvents(config.GetHistoryDBPath(), config.GetHistoryKeepRuns()); err != nil {
			slog.Warn("failed to prune the workflow history", "error", err)
		}
	}
	DieNotNil(err, "update workflow aborted:")

	for _, line := range report.Lines() {
		fmt.Println(line)
	}
	if !report.Succeeded() {
		os.Exit(ExitFailure)
	}
}

// acquireLock returns nil when the storage directory is unusable; a running workflow holding the lock is fatal
func acquireLock() *lock.Lock {
	if err := os.MkdirAll(config.GetStorageDir(), 0o755); err != nil {
		slog.Warn("running without the update lock", "error", err)
		return nil
	}
	l, err := lock.TryLock(config.GetLockFilePath())
	if errors.Is(err, lock.ErrLocked) {
		DieNotNil(err)
	} else if err != nil {
		slog.Warn("running without the update lock", "error", err)
		return nil
	}
	return l
}

// newRecorder returns nil when the history database cannot be used; the workflow runs without it
func newRecorder(engineName string, artifact string) *history.Recorder {
	if abs, err := filepath.Abs(artifact); err == nil {
		artifact = abs
	}
	if err := os.MkdirAll(config.GetStorageDir(), 0o755); err != nil {
		slog.Warn("workflow history disabled", "error", err)
		return nil
	}
	recorder, err := history.NewRecorder(config.GetHistoryDBPath(), engineName, artifact)
	if err != nil {
		slog.Warn("workflow history disabled", "error", err)
		return nil
	}
	slog.Debug("recording workflow transitions", "run", recorder.RunId(), "db", config.GetHistoryDBPath())
	return recorder
}
