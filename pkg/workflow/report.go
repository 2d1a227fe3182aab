// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package workflow

import (
	"fmt"
	"sort"

	"github.com/foundriesio/aiupdate/pkg/engine"
)

type (
	// Outcome of a terminated workflow
	Outcome string

	// Field is a single reportable value of an applied update
	Field struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}

	// Report is the caller facing summary of a terminated workflow
	Report struct {
		Outcome Outcome `json:"outcome"`
		// Applied update summary, set only for OutcomeUpdated
		Fields []Field `json:"fields,omitempty"`
		// Failing action and the engine description of the failure, set only for OutcomeFailed
		Action      engine.Action    `json:"-"`
		Code        engine.ErrorCode `json:"code,omitempty"`
		Description string           `json:"description,omitempty"`
	}
)

const (
	OutcomeUpdated        Outcome = "updated"
	OutcomeAlreadyCurrent Outcome = "already-current"
	OutcomeFailed         Outcome = "failed"

	AlreadyCurrentMessage = "You have the latest version of the artifact."
)

func newUpdatedReport(result engine.Result) *Report {
	fields := make([]Field, 0, len(result))
	for k := range result {
		v, _ := result.String(k)
		fields = append(fields, Field{Key: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return &Report{Outcome: OutcomeUpdated, Fields: fields}
}

func newAlreadyCurrentReport() *Report {
	return &Report{Outcome: OutcomeAlreadyCurrent}
}

func newFailedReport(action engine.Action, code engine.ErrorCode, description string) *Report {
	return &Report{
		Outcome:     OutcomeFailed,
		Action:      action,
		Code:        code,
		Description: description,
	}
}

func (r *Report) Succeeded() bool {
	return r.Outcome != OutcomeFailed
}

// Value returns the reported value of the given key of an applied update
func (r *Report) Value(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Lines renders the report as human readable text
func (r *Report) Lines() []string {
	switch r.Outcome {
	case OutcomeUpdated:
		lines := make([]string, 0, len(r.Fields))
		for _, f := range r.Fields {
			lines = append(lines, fmt.Sprintf("%s : %s", f.Key, f.Value))
		}
		return lines
	case OutcomeAlreadyCurrent:
		return []string{AlreadyCurrentMessage}
	default:
		return []string{fmt.Sprintf("ERROR: %s failed: %s", r.Action, r.Description)}
	}
}
