// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package external runs an update engine as a separate executable.
//
// Every action starts `<exec> [args] check|update <artifact>`. The process writes JSON lines to
// stdout: any number of {"progress":{...}} messages followed by exactly one {"result":{...}} or
// {"error":{"code":N}} message.
package external

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// ProcessFailed is reported when the engine process exits abnormally or breaks the output protocol
	ProcessFailed engine.ErrorCode = -2
	// EngineBusy is reported when an action is started while another one still runs
	EngineBusy engine.ErrorCode = -3

	maxLineSize = 1024 * 1024
)

var (
	ErrNoFinalMessage = errors.New("engine process exited without a result or error message")
	ErrExtraMessage   = errors.New("engine process sent a message after its final one")
)

type (
	Engine struct {
		manifest *Manifest

		mu       sync.Mutex
		path     string
		notifier engine.Notifier
		busy     bool
	}

	message struct {
		Progress *progressMessage `json:"progress,omitempty"`
		Result   engine.Result    `json:"result,omitempty"`
		Error    *errorMessage    `json:"error,omitempty"`
	}
	progressMessage struct {
		Percent int   `json:"percent"`
		Bytes   int64 `json:"bytes"`
		Total   int64 `json:"total"`
	}
	errorMessage struct {
		Code int `json:"code"`
	}
)

func New(manifest *Manifest) *Engine {
	return &Engine{manifest: manifest}
}

func (e *Engine) Name() string {
	return e.manifest.Name
}

func (e *Engine) SetArtifactPath(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = path
}

func (e *Engine) Subscribe(n engine.Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Engine) ErrorCodeToDescription(code engine.ErrorCode) string {
	switch code {
	case ProcessFailed:
		return "engine process failed"
	case EngineBusy:
		return "another action is already running"
	}
	if d, ok := e.manifest.Errors[code]; ok {
		return d
	}
	return fmt.Sprintf("unknown error code %d", int(code))
}

func (e *Engine) Start(ctx context.Context, action engine.Action) {
	e.mu.Lock()
	n := e.notifier
	path := e.path
	if n == nil {
		e.mu.Unlock()
		slog.Error("engine action started without a subscriber; dropping it", "engine", e.manifest.Name, "action", action)
		return
	}
	if e.busy {
		e.mu.Unlock()
		go n.OnError(EngineBusy, action)
		return
	}
	e.busy = true
	e.mu.Unlock()

	go func() {
		final, err := e.run(ctx, action, path, n)
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
		switch {
		case err != nil:
			slog.Error("engine process failed", "engine", e.manifest.Name, "action", action, "error", err)
			n.OnError(ProcessFailed, action)
		case final.Error != nil:
			n.OnError(engine.ErrorCode(final.Error.Code), action)
		default:
			n.OnSuccess(final.Result, action)
		}
	}()
}

func verb(action engine.Action) (string, error) {
	switch action {
	case engine.CheckForUpdate:
		return "check", nil
	case engine.Update:
		return "update", nil
	}
	return "", fmt.Errorf("unsupported action %s", action)
}

// run executes the engine process and returns its final message
func (e *Engine) run(ctx context.Context, action engine.Action, path string, n engine.Notifier) (*message, error) {
	v, err := verb(action)
	if err != nil {
		return nil, err
	}
	args := append(append([]string{}, e.manifest.Args...), v, path)
	cmd := exec.CommandContext(ctx, e.manifest.Exec, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	slog.Debug("starting engine process", "engine", e.manifest.Name, "exec", e.manifest.Exec, "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.manifest.Exec, err)
	}

	var final *message
	var g errgroup.Group
	g.Go(func() error {
		var err error
		final, err = readMessages(stdout, action, n)
		// drain so that the process never blocks on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
		return err
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			slog.Debug("engine output", "engine", e.manifest.Name, "line", scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			slog.Debug("engine output not logged", "engine", e.manifest.Name, "error", err)
		}
		// Keep reading so the process never blocks on a full stderr pipe
		_, _ = io.Copy(io.Discard, stderr)
		return nil
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("%s exited abnormally: %w", e.manifest.Exec, waitErr)
	}
	if readErr != nil {
		return nil, readErr
	}
	if final == nil {
		return nil, ErrNoFinalMessage
	}
	return final, nil
}

func readMessages(r io.Reader, action engine.Action, n engine.Notifier) (*message, error) {
	var final *message
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("invalid engine message %q: %w", line, err)
		}
		if final != nil {
			return nil, ErrExtraMessage
		}
		switch {
		case m.Error != nil, m.Result != nil:
			final = &m
		case m.Progress != nil:
			if pn, ok := n.(engine.ProgressNotifier); ok {
				pn.OnProgress(engine.Progress{Percent: m.Progress.Percent, Bytes: m.Progress.Bytes, Total: m.Progress.Total}, action)
			}
		default:
			return nil, fmt.Errorf("unknown engine message %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return final, nil
}
