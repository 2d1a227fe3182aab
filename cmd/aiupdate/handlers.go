// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package main

import (
	"log/slog"
	"sync"

	"github.com/foundriesio/aiupdate/internal/history"
	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/foundriesio/aiupdate/pkg/workflow"
	"github.com/schollz/progressbar/v3"
)

type workflowHandlers struct {
	recorder     *history.Recorder
	showProgress bool

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	barAction engine.Action
	barBytes  bool
}

func newWorkflowHandlers(recorder *history.Recorder, showProgress bool) *workflowHandlers {
	return &workflowHandlers{recorder: recorder, showProgress: showProgress}
}

func (h *workflowHandlers) runOpts() []workflow.RunOpt {
	return []workflow.RunOpt{
		workflow.WithControllerOpts(
			workflow.WithIssueHandler(h.onIssue),
			workflow.WithTransitionHandler(h.onTransition),
		),
		workflow.WithProgressHandler(h.onProgress),
	}
}

func (h *workflowHandlers) onIssue(action engine.Action) {
	h.finish()
	switch action {
	case engine.CheckForUpdate:
		slog.Info("Checking for update")
	case engine.Update:
		slog.Info("Updating")
	}
}

func (h *workflowHandlers) onTransition(t workflow.Transition) {
	if h.recorder != nil {
		h.recorder.Handle(t)
	}
	if t.To.IsTerminal() {
		h.finish()
	}
}

func (h *workflowHandlers) onProgress(p engine.Progress, action engine.Action) {
	if !h.showProgress {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bar == nil || h.barAction != action {
		h.barAction = action
		h.barBytes = action == engine.Update && p.Total > 0
		if h.barBytes {
			h.bar = progressbar.DefaultBytes(p.Total, "downloading")
		} else {
			h.bar = progressbar.Default(100, action.String())
		}
	}
	var err error
	if h.barBytes {
		err = h.bar.Set64(p.Bytes)
	} else {
		err = h.bar.Set(p.Percent)
	}
	if err != nil {
		slog.Debug("Error setting progress bar", "error", err)
	}
}

// finish completes the progress bar of the previous action
func (h *workflowHandlers) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bar == nil {
		return
	}
	if err := h.bar.Finish(); err != nil {
		slog.Debug("Error finishing progress bar", "error", err)
	}
	h.bar = nil
}
