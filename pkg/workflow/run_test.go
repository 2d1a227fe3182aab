package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	// scriptedEngine completes every action on its own goroutine, the way real engines do
	scriptedEngine struct {
		mu       sync.Mutex
		notifier engine.Notifier
		path     string
		started  []engine.Action
		script   map[engine.Action]func(n engine.Notifier, action engine.Action)
	}
)

func (e *scriptedEngine) SetArtifactPath(path string) { e.path = path }

func (e *scriptedEngine) Subscribe(n engine.Notifier) { e.notifier = n }

func (e *scriptedEngine) ErrorCodeToDescription(code engine.ErrorCode) string {
	return map[engine.ErrorCode]string{5: "no update information", 2: "download failed"}[code]
}

func (e *scriptedEngine) Start(_ context.Context, action engine.Action) {
	e.mu.Lock()
	e.started = append(e.started, action)
	e.mu.Unlock()
	if step, ok := e.script[action]; ok {
		go step(e.notifier, action)
	}
}

func (e *scriptedEngine) Started() []engine.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Action(nil), e.started...)
}

func succeed(result engine.Result) func(engine.Notifier, engine.Action) {
	return func(n engine.Notifier, action engine.Action) {
		if p, ok := n.(engine.ProgressNotifier); ok {
			p.OnProgress(engine.Progress{Percent: 100}, action)
		}
		n.OnSuccess(result, action)
	}
}

func fail(code engine.ErrorCode) func(engine.Notifier, engine.Action) {
	return func(n engine.Notifier, action engine.Action) {
		n.OnError(code, action)
	}
}

func TestRun_Update(t *testing.T) {
	e := &scriptedEngine{script: map[engine.Action]func(engine.Notifier, engine.Action){
		engine.CheckForUpdate: succeed(engine.Result{engine.UpdateAvailableKey: true}),
		engine.Update: succeed(engine.Result{
			engine.OldVersionPathKey: artifact,
			engine.NewVersionPathKey: "/tmp/app-2-x86_64.AppImage",
		}),
	}}
	var progressMu sync.Mutex
	progressed := map[engine.Action]bool{}
	report, err := Run(context.Background(), e, artifact, WithProgressHandler(func(_ engine.Progress, action engine.Action) {
		progressMu.Lock()
		defer progressMu.Unlock()
		progressed[action] = true
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, report.Outcome)
	assert.Equal(t, artifact, e.path)
	assert.Equal(t, []engine.Action{engine.CheckForUpdate, engine.Update}, e.Started())
	v, _ := report.Value(engine.NewVersionPathKey)
	assert.Equal(t, "/tmp/app-2-x86_64.AppImage", v)
	progressMu.Lock()
	assert.True(t, progressed[engine.CheckForUpdate])
	assert.True(t, progressed[engine.Update])
	progressMu.Unlock()
}

func TestRun_AlreadyCurrent(t *testing.T) {
	e := &scriptedEngine{script: map[engine.Action]func(engine.Notifier, engine.Action){
		engine.CheckForUpdate: succeed(engine.Result{engine.UpdateAvailableKey: false}),
	}}
	report, err := Run(context.Background(), e, artifact)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCurrent, report.Outcome)
	assert.Equal(t, []string{AlreadyCurrentMessage}, report.Lines())
	assert.Equal(t, []engine.Action{engine.CheckForUpdate}, e.Started())
}

func TestRun_Errors(t *testing.T) {
	e := &scriptedEngine{script: map[engine.Action]func(engine.Notifier, engine.Action){
		engine.CheckForUpdate: fail(5),
	}}
	report, err := Run(context.Background(), e, artifact)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, engine.CheckForUpdate, report.Action)
	assert.Equal(t, "no update information", report.Description)
	assert.Equal(t, []engine.Action{engine.CheckForUpdate}, e.Started())

	e = &scriptedEngine{script: map[engine.Action]func(engine.Notifier, engine.Action){
		engine.CheckForUpdate: succeed(engine.Result{engine.UpdateAvailableKey: true}),
		engine.Update:         fail(2),
	}}
	report, err = Run(context.Background(), e, artifact)
	require.NoError(t, err)
	assert.False(t, report.Succeeded())
	assert.Equal(t, engine.Update, report.Action)
	assert.Equal(t, "download failed", report.Description)
}

func TestRun_ProtocolViolation(t *testing.T) {
	// The engine answers the check with an update completion
	e := &scriptedEngine{script: map[engine.Action]func(engine.Notifier, engine.Action){
		engine.CheckForUpdate: func(n engine.Notifier, _ engine.Action) {
			n.OnSuccess(engine.Result{"NewVersion": "2.1.0"}, engine.Update)
		},
	}}
	report, err := Run(context.Background(), e, artifact)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Nil(t, report)
}

func TestRun_DoubleNotification(t *testing.T) {
	e := &scriptedEngine{}
	ctrl := NewController(e, artifact)
	d := NewDispatcher(ctrl, nil)
	e.Subscribe(d)
	// The engine completes the check twice; both completions are queued before they are applied
	d.OnSuccess(engine.Result{engine.UpdateAvailableKey: false}, engine.CheckForUpdate)
	d.OnSuccess(engine.Result{engine.UpdateAvailableKey: false}, engine.CheckForUpdate)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Nil(t, report)
	assert.Equal(t, Succeeded, ctrl.State())
	assert.Equal(t, []engine.Action{engine.CheckForUpdate}, e.Started())
}

func TestRun_Deadline(t *testing.T) {
	// The engine never answers
	e := &scriptedEngine{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	report, err := Run(ctx, e, artifact)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowAborted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, report)
}

func TestRun_LateNotificationIsReported(t *testing.T) {
	e := &scriptedEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var mu sync.Mutex
	var violations []error
	_, err := Run(ctx, e, artifact, WithViolationHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		violations = append(violations, err)
	}))
	require.ErrorIs(t, err, context.Canceled)

	done := make(chan struct{})
	go func() {
		e.notifier.OnSuccess(engine.Result{engine.UpdateAvailableKey: false}, engine.CheckForUpdate)
		for i := 0; i < 4; i++ {
			e.notifier.OnError(1, engine.CheckForUpdate)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifications delivered after the run ended must not block the engine")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, violations, 5)
	for _, v := range violations {
		assert.ErrorIs(t, v, ErrProtocolViolation)
	}
	var unexpected *UnexpectedNotificationError
	require.ErrorAs(t, violations[0], &unexpected)
	assert.Equal(t, "success", unexpected.Notification)
	assert.Equal(t, engine.CheckForUpdate, unexpected.Action)
	assert.Equal(t, Checking, unexpected.State)
}
