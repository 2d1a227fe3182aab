package main

import (
	"path/filepath"
	"testing"

	"github.com/foundriesio/aiupdate/internal/history"
	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/foundriesio/aiupdate/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowHandlers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	recorder, err := history.NewRecorder(dbPath, "native", "/opt/app.AppImage")
	require.NoError(t, err)

	h := newWorkflowHandlers(recorder, true)
	h.onIssue(engine.CheckForUpdate)
	h.onTransition(workflow.Transition{From: workflow.Idle, To: workflow.Checking, Action: engine.CheckForUpdate})
	h.onProgress(engine.Progress{Percent: 50, Bytes: 50, Total: 100}, engine.CheckForUpdate)
	assert.NotNil(t, h.bar)
	assert.False(t, h.barBytes)

	h.onIssue(engine.Update)
	assert.Nil(t, h.bar)
	h.onTransition(workflow.Transition{From: workflow.Checking, To: workflow.Updating, Action: engine.Update})
	h.onProgress(engine.Progress{Percent: 10, Bytes: 1024, Total: 10240}, engine.Update)
	assert.True(t, h.barBytes)
	assert.Equal(t, engine.Update, h.barAction)

	h.onTransition(workflow.Transition{From: workflow.Updating, To: workflow.Succeeded, Action: engine.Update})
	assert.Nil(t, h.bar)

	events, err := history.GetEvents(dbPath, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Succeeded", events[2].To)
}

func TestWorkflowHandlers_NoTerminal(t *testing.T) {
	h := newWorkflowHandlers(nil, false)
	h.onIssue(engine.CheckForUpdate)
	h.onProgress(engine.Progress{Percent: 50}, engine.CheckForUpdate)
	assert.Nil(t, h.bar)
	h.onTransition(workflow.Transition{From: workflow.Checking, To: workflow.Failed, Action: engine.CheckForUpdate})
	h.finish()
}
