// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package workflow sequences the check and update actions of an engine for one artifact.
//
// A Controller is single use: it starts in Idle, issues CheckForUpdate, issues Update
// only if the check reported an available update, and terminates exactly once in
// either Succeeded or Failed. It is not safe for concurrent use; Start and the
// notification handlers must be called from one sequencing context, see Dispatcher.
package workflow

import (
	"context"
	"log/slog"

	"github.com/foundriesio/aiupdate/pkg/engine"
)

type (
	Controller struct {
		opts         *ControllerOpts
		adapter      engine.Adapter
		artifactPath string

		ctx         context.Context
		state       State
		outstanding engine.Action
		checkResult engine.Result
		report      *Report
	}
	ControllerOpts struct {
		TransitionHandler TransitionHandler
		IssueHandler      IssueHandler
	}
	ControllerOpt func(*ControllerOpts)

	TransitionHandler func(t Transition)
	IssueHandler      func(action engine.Action)
)

func WithTransitionHandler(handler TransitionHandler) ControllerOpt {
	return func(o *ControllerOpts) {
		o.TransitionHandler = handler
	}
}

func WithIssueHandler(handler IssueHandler) ControllerOpt {
	return func(o *ControllerOpts) {
		o.IssueHandler = handler
	}
}

func NewController(adapter engine.Adapter, artifactPath string, options ...ControllerOpt) *Controller {
	opts := &ControllerOpts{}
	for _, o := range options {
		o(opts)
	}
	return &Controller{
		opts:         opts,
		adapter:      adapter,
		artifactPath: artifactPath,
		state:        Idle,
	}
}

func (c *Controller) State() State {
	return c.state
}

// Outstanding returns the action issued to the engine and not yet completed, or engine.None
func (c *Controller) Outstanding() engine.Action {
	return c.outstanding
}

// Report returns the outcome of the workflow, nil until a terminal state is reached
func (c *Controller) Report() *Report {
	return c.report
}

// CheckResult returns the unmodified result of a successful check, nil before that
func (c *Controller) CheckResult() engine.Result {
	return c.checkResult
}

// Start issues CheckForUpdate and returns without waiting for its completion.
// The context is handed to the engine for every action of this workflow.
func (c *Controller) Start(ctx context.Context) error {
	if c.state != Idle {
		return &InvalidStateError{Op: "start", State: c.state}
	}
	if c.artifactPath == "" {
		return ErrNoArtifactPath
	}
	c.ctx = ctx
	c.adapter.SetArtifactPath(c.artifactPath)
	c.transition(Checking, engine.CheckForUpdate, nil)
	c.issue(engine.CheckForUpdate)
	return nil
}

// OnSuccess applies the successful completion of the outstanding action
func (c *Controller) OnSuccess(result engine.Result, action engine.Action) error {
	if err := c.checkNotification("success", action); err != nil {
		return err
	}
	c.outstanding = engine.None

	switch action {
	case engine.CheckForUpdate:
		c.checkResult = result
		available, ok := result.Bool(engine.UpdateAvailableKey)
		if !ok {
			slog.Debug("check result has no valid update flag", "value", result[engine.UpdateAvailableKey])
			report := newFailedReport(action, MalformedResultCode, malformedResultDescription)
			c.transition(Failed, action, report)
			return nil
		}
		if available {
			c.transition(Updating, engine.Update, nil)
			c.issue(engine.Update)
		} else {
			c.transition(Succeeded, action, newAlreadyCurrentReport())
		}
	case engine.Update:
		c.transition(Succeeded, action, newUpdatedReport(result))
	}
	return nil
}

// OnError applies the failure of the outstanding action; the workflow fails whatever the action was
func (c *Controller) OnError(code engine.ErrorCode, action engine.Action) error {
	if err := c.checkNotification("error", action); err != nil {
		return err
	}
	c.outstanding = engine.None
	report := newFailedReport(action, code, c.adapter.ErrorCodeToDescription(code))
	c.transition(Failed, action, report)
	return nil
}

func (c *Controller) checkNotification(kind string, action engine.Action) error {
	if c.state.IsTerminal() || c.outstanding == engine.None || action != c.outstanding {
		return &UnexpectedNotificationError{
			Notification: kind,
			Action:       action,
			Outstanding:  c.outstanding,
			State:        c.state,
		}
	}
	return nil
}

func (c *Controller) issue(action engine.Action) {
	c.outstanding = action
	if c.opts.IssueHandler != nil {
		c.opts.IssueHandler(action)
	}
	c.adapter.Start(c.ctx, action)
}

func (c *Controller) transition(to State, action engine.Action, report *Report) {
	t := Transition{From: c.state, To: to, Action: action}
	if report != nil && report.Outcome == OutcomeFailed {
		t.Code = report.Code
		t.Description = report.Description
	}
	c.state = to
	if to.IsTerminal() {
		c.report = report
	}
	slog.Debug("workflow transition", "from", t.From, "to", t.To, "action", action)
	if c.opts.TransitionHandler != nil {
		c.opts.TransitionHandler(t)
	}
}
