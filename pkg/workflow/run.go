// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package workflow

import (
	"context"
	"log/slog"

	"github.com/foundriesio/aiupdate/pkg/engine"
)

type (
	RunOpts struct {
		ControllerOpts   []ControllerOpt
		ProgressHandler  ProgressHandler
		ViolationHandler ViolationHandler
	}
	RunOpt func(*RunOpts)
)

func WithControllerOpts(opts ...ControllerOpt) RunOpt {
	return func(o *RunOpts) {
		o.ControllerOpts = append(o.ControllerOpts, opts...)
	}
}

func WithProgressHandler(handler ProgressHandler) RunOpt {
	return func(o *RunOpts) {
		o.ProgressHandler = handler
	}
}

func WithViolationHandler(handler ViolationHandler) RunOpt {
	return func(o *RunOpts) {
		o.ViolationHandler = handler
	}
}

// Run checks the artifact for an update through the given engine, applies the update if one
// is available, and returns the report once the workflow terminates.
// The returned error is set only if the workflow could not run to a terminal state.
func Run(ctx context.Context, adapter engine.Adapter, artifactPath string, options ...RunOpt) (*Report, error) {
	opts := &RunOpts{}
	for _, o := range options {
		o(opts)
	}
	ctrl := NewController(adapter, artifactPath, opts.ControllerOpts...)
	dispatcher := NewDispatcher(ctrl, opts.ProgressHandler)
	if opts.ViolationHandler != nil {
		dispatcher.violationHandler = opts.ViolationHandler
	}
	adapter.Subscribe(dispatcher)

	slog.Debug("starting update workflow", "artifact", artifactPath)
	report, err := dispatcher.Run(ctx)
	if err != nil {
		slog.Debug("update workflow aborted", "state", ctrl.State(), "error", err)
		return nil, err
	}
	if r := ctrl.CheckResult(); r != nil {
		slog.Debug("check result", "result", map[string]any(r))
	}
	return report, nil
}
