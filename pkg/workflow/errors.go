// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package workflow

import (
	"fmt"

	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/pkg/errors"
)

var (
	ErrInvalidState      = errors.New("invalid workflow state")
	ErrProtocolViolation = errors.New("engine protocol violation")
	ErrNoArtifactPath    = errors.New("no artifact path is set")
	ErrWorkflowAborted   = errors.New("workflow aborted before reaching a terminal state")
)

// MalformedResultCode is reported when a check result carries no valid UpdateAvailable flag
const MalformedResultCode engine.ErrorCode = -1

const malformedResultDescription = "check result carries no valid " + engine.UpdateAvailableKey + " flag"

type (
	// InvalidStateError is returned when an operation is requested in a state that does not allow it
	InvalidStateError struct {
		Op    string
		State State
	}

	// UnexpectedNotificationError is returned when an engine notification does not match
	// the outstanding action, or arrives once the workflow has terminated
	UnexpectedNotificationError struct {
		Notification string
		Action       engine.Action
		Outstanding  engine.Action
		State        State
	}
)

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s workflow in state %q", e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

func (e *UnexpectedNotificationError) Error() string {
	if e.State.IsTerminal() {
		return fmt.Sprintf("unexpected %s notification for %s: workflow already terminated in state %q",
			e.Notification, e.Action, e.State)
	}
	return fmt.Sprintf("unexpected %s notification for %s: outstanding action is %s, state %q",
		e.Notification, e.Action, e.Outstanding, e.State)
}

func (e *UnexpectedNotificationError) Unwrap() error {
	return ErrProtocolViolation
}
