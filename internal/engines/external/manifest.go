// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package external

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/foundriesio/aiupdate/pkg/engine"
	ini "gopkg.in/ini.v1"
)

const (
	ManifestExt = ".ini"

	keyName       = "name"
	keyExec       = "exec"
	keyArgs       = "args"
	errorsSection = "errors"
)

// Manifest describes an engine that runs as a separate executable
type Manifest struct {
	Path   string
	Name   string
	Exec   string
	Args   []string
	Errors map[engine.ErrorCode]string
}

// LoadManifest reads an engine manifest. A relative exec path is resolved against the manifest directory.
func LoadManifest(path string) (*Manifest, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine manifest %s: %w", path, err)
	}
	sec := cfg.Section("")
	m := &Manifest{
		Path:   path,
		Name:   sec.Key(keyName).String(),
		Exec:   sec.Key(keyExec).String(),
		Args:   strings.Fields(sec.Key(keyArgs).String()),
		Errors: map[engine.ErrorCode]string{},
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), ManifestExt)
	}
	if m.Exec == "" {
		return nil, fmt.Errorf("engine manifest %s has no %q key", path, keyExec)
	}
	if !filepath.IsAbs(m.Exec) {
		m.Exec = filepath.Join(filepath.Dir(path), m.Exec)
	}
	for _, key := range cfg.Section(errorsSection).Keys() {
		code, err := strconv.Atoi(key.Name())
		if err != nil {
			return nil, fmt.Errorf("engine manifest %s has an invalid error code %q", path, key.Name())
		}
		if c := engine.ErrorCode(code); c == ProcessFailed || c == EngineBusy {
			return nil, fmt.Errorf("engine manifest %s describes the reserved error code %d", path, code)
		}
		m.Errors[engine.ErrorCode(code)] = key.String()
	}
	return m, nil
}
