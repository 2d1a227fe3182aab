// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package lock keeps two update workflows from running at the same time.
package lock

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

var ErrLocked = errors.New("another update workflow is running")

type Lock struct {
	path string
	file *os.File
}

// TryLock takes an exclusive, non-blocking lock on the given file, creating it if needed.
// The lock is released by Unlock or when the process exits.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("failed to close lock", "lock_file", path, "error", closeErr)
		}
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is held", ErrLocked, path)
		}
		return nil, fmt.Errorf("unable to lock %s: %w", path, err)
	}
	return &Lock{path: path, file: f}, nil
}

func (l *Lock) Unlock() {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("failed to unlock lock file", "lock_file", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("failed to close lock", "lock_file", l.path, "error", err)
	}
}
