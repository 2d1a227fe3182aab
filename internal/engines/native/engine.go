// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package native implements the built-in update engine.
//
// A check compares the SHA-1 of the artifact with the SHA-1 announced by the zsync control
// file its update information points to. An update downloads the complete new version
// named by the control file, verifies it and puts it next to the artifact.
package native

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/foundriesio/aiupdate/internal/appimage"
	"github.com/foundriesio/aiupdate/internal/zsync"
	"github.com/foundriesio/aiupdate/pkg/engine"
)

const Name = "native"

type (
	Engine struct {
		opts   *Opts
		client *zsync.Client

		mu        sync.Mutex
		path      string
		notifier  engine.Notifier
		busy      bool
		lastCheck *checkInfo
	}
	Opts struct {
		HTTPClient   *http.Client
		GitHubAPIURL string
		KeepOld      bool
	}
	Opt func(*Opts)

	checkInfo struct {
		artifact *appimage.Info
		release  *zsync.Release
		header   *zsync.ControlHeader
	}
)

func WithHTTPClient(client *http.Client) Opt {
	return func(o *Opts) {
		o.HTTPClient = client
	}
}

func WithGitHubAPIURL(apiURL string) Opt {
	return func(o *Opts) {
		o.GitHubAPIURL = apiURL
	}
}

// WithKeepOld sets whether the previous version is kept as "<name>.zs-old" when it would be replaced
func WithKeepOld(keep bool) Opt {
	return func(o *Opts) {
		o.KeepOld = keep
	}
}

func New(options ...Opt) *Engine {
	opts := &Opts{
		GitHubAPIURL: "https://api.github.com",
		KeepOld:      true,
	}
	for _, o := range options {
		o(opts)
	}
	return &Engine{
		opts:   opts,
		client: zsync.NewClient(opts.HTTPClient, opts.GitHubAPIURL),
	}
}

func (e *Engine) SetArtifactPath(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.path != path {
		e.lastCheck = nil
	}
	e.path = path
}

func (e *Engine) Subscribe(n engine.Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Engine) ErrorCodeToDescription(code engine.ErrorCode) string {
	return description(code)
}

func (e *Engine) Start(ctx context.Context, action engine.Action) {
	e.mu.Lock()
	n := e.notifier
	path := e.path
	if n == nil {
		e.mu.Unlock()
		slog.Error("engine action started without a subscriber; dropping it", "action", action)
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
		result, err := e.run(ctx, action, path, n)
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
		if err != nil {
			code := codeOf(ctx, err)
			slog.Debug("engine action failed", "action", action, "code", code, "error", err)
			n.OnError(code, action)
			return
		}
		n.OnSuccess(result, action)
	}()
}

func (e *Engine) run(ctx context.Context, action engine.Action, path string, n engine.Notifier) (engine.Result, error) {
	if path == "" {
		return nil, withCode(NoArtifactPath, appimage.ErrNotFound)
	}
	p := &progressReporter{notifier: n, action: action}
	switch action {
	case engine.CheckForUpdate:
		c, err := e.check(ctx, path, p)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.lastCheck = c
		e.mu.Unlock()
		return c.result(), nil
	case engine.Update:
		return e.update(ctx, path, p)
	}
	return nil, withCode(UnknownAction, errUnknownAction(action))
}

type progressReporter struct {
	notifier engine.Notifier
	action   engine.Action
	last     int
}

func (p *progressReporter) report(done int64, total int64) {
	pn, ok := p.notifier.(engine.ProgressNotifier)
	if !ok {
		return
	}
	percent := 100
	if total > 0 {
		percent = int(done * 100 / total)
	}
	if percent == p.last && done != total {
		return
	}
	p.last = percent
	pn.OnProgress(engine.Progress{Percent: percent, Bytes: done, Total: total}, p.action)
}

func (p *progressReporter) step(percent int) {
	p.report(int64(percent), 100)
}
