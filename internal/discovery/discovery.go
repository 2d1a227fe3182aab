// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package discovery locates and loads the update engine that drives a workflow.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/foundriesio/aiupdate/internal/engines/external"
	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/pkg/errors"
)

const (
	// EnvEnginePath names an engine manifest that overrides every other engine source
	EnvEnginePath = "AIUPDATE_ENGINE_PATH"

	KindBuiltin  = "builtin"
	KindExternal = "external"
)

var ErrEngineNotFound = errors.New("engine not found")

type (
	Factory func() engine.Adapter

	Loader struct {
		opts *LoaderOpts
	}
	LoaderOpts struct {
		SearchPaths []string
		Builtins    map[string]Factory
		Getenv      func(string) string
	}
	LoaderOpt func(*LoaderOpts)

	// Descriptor describes an engine that can be loaded
	Descriptor struct {
		Name string
		Kind string
		Path string
	}

	// LoadError is returned when no usable engine can be loaded
	LoadError struct {
		Name  string
		Tried []string
		Err   error
	}
)

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("failed to load update engine %q: %v", e.Name, e.Err)
	if len(e.Tried) > 0 {
		msg += fmt.Sprintf(" (tried %s)", strings.Join(e.Tried, ", "))
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func WithSearchPaths(paths ...string) LoaderOpt {
	return func(o *LoaderOpts) {
		o.SearchPaths = paths
	}
}

func WithBuiltin(name string, factory Factory) LoaderOpt {
	return func(o *LoaderOpts) {
		o.Builtins[name] = factory
	}
}

func WithGetenv(getenv func(string) string) LoaderOpt {
	return func(o *LoaderOpts) {
		o.Getenv = getenv
	}
}

func NewLoader(options ...LoaderOpt) *Loader {
	opts := &LoaderOpts{
		Builtins: map[string]Factory{},
		Getenv:   os.Getenv,
	}
	for _, o := range options {
		o(opts)
	}
	return &Loader{opts: opts}
}

// Load returns the engine with the given name. The manifest named by AIUPDATE_ENGINE_PATH wins,
// then a built-in engine, then the first "<name>.ini" manifest found in the search paths.
func (l *Loader) Load(name string) (engine.Adapter, error) {
	if path := l.opts.Getenv(EnvEnginePath); path != "" {
		slog.Debug("loading engine from environment", "env", EnvEnginePath, "manifest", path)
		a, err := loadExternal(path)
		if err != nil {
			return nil, &LoadError{Name: path, Tried: []string{path}, Err: err}
		}
		return a, nil
	}

	if factory, ok := l.opts.Builtins[name]; ok {
		slog.Debug("loading built-in engine", "name", name)
		return factory(), nil
	}

	var tried []string
	for _, dir := range l.opts.SearchPaths {
		path := filepath.Join(dir, name+external.ManifestExt)
		tried = append(tried, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		slog.Debug("loading external engine", "name", name, "manifest", path)
		a, err := loadExternal(path)
		if err != nil {
			return nil, &LoadError{Name: name, Tried: tried, Err: err}
		}
		return a, nil
	}
	return nil, &LoadError{Name: name, Tried: tried, Err: ErrEngineNotFound}
}

func loadExternal(path string) (engine.Adapter, error) {
	m, err := external.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(m.Exec)
	if err != nil {
		return nil, fmt.Errorf("engine executable of %s: %w", path, err)
	}
	if st.IsDir() || st.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("engine executable %s is not executable", m.Exec)
	}
	return external.New(m), nil
}

// List returns the built-in engines followed by the engines of the search paths.
// A name found more than once is listed at its first location, the one Load would use.
func (l *Loader) List() []Descriptor {
	var engines []Descriptor
	seen := map[string]bool{}
	for name := range l.opts.Builtins {
		engines = append(engines, Descriptor{Name: name, Kind: KindBuiltin})
		seen[name] = true
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].Name < engines[j].Name })

	for _, dir := range l.opts.SearchPaths {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+external.ManifestExt))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			name := strings.TrimSuffix(filepath.Base(path), external.ManifestExt)
			if seen[name] {
				continue
			}
			if _, err := external.LoadManifest(path); err != nil {
				slog.Warn("skipping invalid engine manifest", "manifest", path, "error", err)
				continue
			}
			seen[name] = true
			engines = append(engines, Descriptor{Name: name, Kind: KindExternal, Path: path})
		}
	}
	return engines
}
