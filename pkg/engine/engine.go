// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package engine defines the vocabulary shared between the update workflow
// and the engines that perform the actual version checks and updates.
package engine

import (
	"context"
	"fmt"
)

type (
	// Action identifies a unit of work requested from an engine
	Action int
	// ErrorCode is an engine defined failure reason
	ErrorCode int
	// Result is the outcome of a successfully completed action
	Result map[string]any

	// Progress of the action that is currently running
	Progress struct {
		Percent int
		Bytes   int64
		Total   int64
	}

	// Notifier receives asynchronous completions of started actions.
	// An engine delivers exactly one of OnSuccess or OnError per started action.
	Notifier interface {
		OnSuccess(result Result, action Action)
		OnError(code ErrorCode, action Action)
	}

	// ProgressNotifier is optionally implemented by a Notifier that wants
	// intermediate progress of a running action.
	ProgressNotifier interface {
		OnProgress(progress Progress, action Action)
	}

	// Adapter is the boundary to an update engine
	Adapter interface {
		// SetArtifactPath configures the artifact the actions operate on
		SetArtifactPath(path string)
		// Start begins the given action asynchronously and returns immediately
		Start(ctx context.Context, action Action)
		// ErrorCodeToDescription translates an error code into text; it has no side effects
		ErrorCodeToDescription(code ErrorCode) string
		// Subscribe registers the receiver of action completions
		Subscribe(n Notifier)
	}
)

const (
	None Action = iota
	CheckForUpdate
	Update
)

// Keys of the check and update results reported by the engines
const (
	UpdateAvailableKey    = "UpdateAvailable"
	AbsolutePathKey       = "AbsolutePath"
	Sha1HashKey           = "Sha1Hash"
	RemoteSha1HashKey     = "RemoteSha1Hash"
	ReleaseNotesKey       = "ReleaseNotes"
	OldVersionPathKey     = "OldVersionPath"
	NewVersionPathKey     = "NewVersionPath"
	NewVersionSha1HashKey = "NewVersionSha1Hash"
)

func (a Action) String() string {
	switch a {
	case None:
		return "None"
	case CheckForUpdate:
		return "CheckForUpdate"
	case Update:
		return "Update"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction returns the action with the given name
func ParseAction(name string) (Action, error) {
	switch name {
	case "CheckForUpdate", "check":
		return CheckForUpdate, nil
	case "Update", "update":
		return Update, nil
	}
	return None, fmt.Errorf("unknown action %q", name)
}

// Bool returns the boolean value of the given key; ok is false if the key is missing or not a boolean
func (r Result) Bool(key string) (value bool, ok bool) {
	v, found := r[key]
	if !found {
		return false, false
	}
	value, ok = v.(bool)
	return
}

// String returns the value of the given key formatted as text, and whether the key is present
func (r Result) String(key string) (string, bool) {
	v, found := r[key]
	if !found {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Clone returns a shallow copy of the result
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	c := make(Result, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
