// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package workflow

import (
	"github.com/foundriesio/aiupdate/pkg/engine"
)

type (
	// State of the update workflow
	State string

	// Transition describes a single state change of the workflow
	Transition struct {
		From   State
		To     State
		Action engine.Action
		// Set when the transition is caused by an engine error
		Code        engine.ErrorCode
		Description string
	}
)

const (
	Idle      State = "Idle"
	Checking  State = "Checking"
	Updating  State = "Updating"
	Succeeded State = "Succeeded"
	Failed    State = "Failed"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsTerminal() bool {
	return s == Succeeded || s == Failed
}

func (s State) IsOneOf(states ...State) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}

// awaited returns the action a non-terminal state is waiting on
func (s State) awaited() engine.Action {
	switch s {
	case Checking:
		return engine.CheckForUpdate
	case Updating:
		return engine.Update
	default:
		return engine.None
	}
}
