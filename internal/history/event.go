// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package history keeps a local log of workflow state transitions.
package history

import (
	"log/slog"
	"time"

	"github.com/foundriesio/aiupdate/pkg/workflow"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type Event struct {
	Id          string `json:"id"`
	RunId       string `json:"runId"`
	DeviceTime  string `json:"deviceTime"`
	Engine      string `json:"engine"`
	Artifact    string `json:"artifact"`
	From        string `json:"from"`
	To          string `json:"to"`
	Action      string `json:"action"`
	Code        int    `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewEvent(runId string, engineName string, artifact string, t workflow.Transition) *Event {
	return &Event{
		Id:          uuid.New().String(),
		RunId:       runId,
		DeviceTime:  time.Now().Format(time.RFC3339),
		Engine:      engineName,
		Artifact:    artifact,
		From:        t.From.String(),
		To:          t.To.String(),
		Action:      t.Action.String(),
		Code:        int(t.Code),
		Description: t.Description,
	}
}

// Recorder saves every transition of one workflow run. Run IDs sort by start time.
type Recorder struct {
	dbFilePath string
	runId      string
	engineName string
	artifact   string
}

func NewRecorder(dbFilePath string, engineName string, artifact string) (*Recorder, error) {
	if err := CreateEventsTable(dbFilePath); err != nil {
		return nil, err
	}
	return &Recorder{
		dbFilePath: dbFilePath,
		runId:      ulid.Make().String(),
		engineName: engineName,
		artifact:   artifact,
	}, nil
}

func (r *Recorder) RunId() string {
	return r.runId
}

// Handle is a workflow transition handler; a failure to save is logged and never stops the workflow
func (r *Recorder) Handle(t workflow.Transition) {
	if err := SaveEvent(r.dbFilePath, NewEvent(r.runId, r.engineName, r.artifact, t)); err != nil {
		slog.Warn("failed to record workflow transition", "run", r.runId, "to", t.To, "error", err)
	}
}
