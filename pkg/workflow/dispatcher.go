// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foundriesio/aiupdate/pkg/engine"
)

type (
	// Dispatcher serializes engine notifications onto the goroutine that calls Run,
	// so the controller only ever sees one call at a time.
	Dispatcher struct {
		ctrl             *Controller
		progressHandler  ProgressHandler
		violationHandler ViolationHandler

		events chan notification
		done   chan struct{}

		// mu serializes enqueue against the end of Run
		mu       sync.Mutex
		finished bool
	}

	ProgressHandler func(progress engine.Progress, action engine.Action)
	// ViolationHandler receives notifications that arrive after Run has returned
	ViolationHandler func(err error)

	notification struct {
		success bool
		result  engine.Result
		code    engine.ErrorCode
		action  engine.Action
	}
)

func NewDispatcher(ctrl *Controller, progressHandler ProgressHandler) *Dispatcher {
	return &Dispatcher{
		ctrl:             ctrl,
		progressHandler:  progressHandler,
		violationHandler: logViolation,
		events:           make(chan notification, 4),
		done:             make(chan struct{}),
	}
}

func logViolation(err error) {
	slog.Error("engine protocol violation", "error", err)
}

func (d *Dispatcher) OnSuccess(result engine.Result, action engine.Action) {
	d.enqueue(notification{success: true, result: result, action: action})
}

func (d *Dispatcher) OnError(code engine.ErrorCode, action engine.Action) {
	d.enqueue(notification{code: code, action: action})
}

func (d *Dispatcher) OnProgress(progress engine.Progress, action engine.Action) {
	if d.progressHandler != nil {
		d.progressHandler(progress, action)
	}
}

// enqueue queues n for Run; once Run has returned, n goes to the violation handler instead
func (d *Dispatcher) enqueue(n notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		d.reportLate(n)
		return
	}
	select {
	case d.events <- n:
	case <-d.done:
		d.reportLate(n)
	}
}

func (d *Dispatcher) reportLate(n notification) {
	kind := "error"
	if n.success {
		kind = "success"
	}
	d.violationHandler(&UnexpectedNotificationError{
		Notification: kind,
		Action:       n.action,
		Outstanding:  engine.None,
		State:        d.ctrl.State(),
	})
}

// finish stops accepting notifications; anything still queued is reported as late
func (d *Dispatcher) finish() {
	close(d.done)
	d.mu.Lock()
	d.finished = true
	d.mu.Unlock()
	for {
		select {
		case n := <-d.events:
			d.reportLate(n)
		default:
			return
		}
	}
}

// Run starts the workflow and applies notifications until it terminates.
// A protocol violation aborts the run with an error matching ErrProtocolViolation;
// ctx expiry aborts it with ErrWorkflowAborted.
func (d *Dispatcher) Run(ctx context.Context) (*Report, error) {
	defer d.finish()

	if err := d.ctrl.Start(ctx); err != nil {
		return nil, err
	}
	for !d.ctrl.State().IsTerminal() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: state %s, waiting for %s: %w",
				ErrWorkflowAborted, d.ctrl.State(), d.ctrl.Outstanding(), ctx.Err())
		case n := <-d.events:
			if err := d.apply(n); err != nil {
				return nil, err
			}
		}
	}
	// A notification already queued behind the terminal one breaks the protocol as well
	select {
	case n := <-d.events:
		if err := d.apply(n); err != nil {
			return nil, err
		}
	default:
	}
	return d.ctrl.Report(), nil
}

func (d *Dispatcher) apply(n notification) error {
	if n.success {
		return d.ctrl.OnSuccess(n.result, n.action)
	}
	return d.ctrl.OnError(n.code, n.action)
}
