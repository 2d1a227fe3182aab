// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package native

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/foundriesio/aiupdate/pkg/engine"
)

const (
	BackupSuffix = ".zs-old"
	tempPattern  = ".aiupdate-*.part"
)

// update replaces the artifact by the version announced by its control file.
// The check of the same artifact is reused when it ran before, otherwise a fresh check is done.
func (e *Engine) update(ctx context.Context, path string, p *progressReporter) (engine.Result, error) {
	e.mu.Lock()
	c := e.lastCheck
	e.mu.Unlock()
	if c == nil {
		var err error
		if c, err = e.check(ctx, path, &progressReporter{}); err != nil {
			return nil, err
		}
	}

	oldPath := c.artifact.Path
	newPath := filepath.Join(filepath.Dir(oldPath), targetName(c))
	if !c.updateAvailable() {
		slog.Info("artifact is already up to date", "path", oldPath)
		return engine.Result{
			engine.OldVersionPathKey:     oldPath,
			engine.NewVersionPathKey:     oldPath,
			engine.NewVersionSha1HashKey: c.artifact.Sha1Hash,
		}, nil
	}

	tmpPath, err := e.download(ctx, c, filepath.Dir(oldPath), p)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	oldVersionPath, err := e.replace(oldPath, newPath, tmpPath)
	if err != nil {
		return nil, err
	}
	slog.Info("artifact updated", "old", oldVersionPath, "new", newPath)
	return engine.Result{
		engine.OldVersionPathKey:     oldVersionPath,
		engine.NewVersionPathKey:     newPath,
		engine.NewVersionSha1HashKey: c.header.Sha1Hash,
	}, nil
}

// targetName returns the base name of the new version; a name from the control file never escapes the artifact directory
func targetName(c *checkInfo) string {
	name := c.header.Filename
	if name == "" {
		if u, err := url.Parse(c.header.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return filepath.Base(c.artifact.Path)
	}
	return name
}

// download writes the new version to a temporary file in dir and verifies its length and SHA-1
func (e *Engine) download(ctx context.Context, c *checkInfo, dir string, p *progressReporter) (string, error) {
	body, _, err := e.client.Open(ctx, c.header.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", withCode(WriteFailed, err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	h := sha1.New()
	w := &progressWriter{reporter: p, total: c.header.Length}
	// reading one byte past the announced length detects an oversized download
	written, err := io.Copy(io.MultiWriter(tmp, h, w), io.LimitReader(body, c.header.Length+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", withCode(Canceled, ctx.Err())
		}
		return "", withCode(DownloadFailed, err)
	}
	if written != c.header.Length {
		return "", withCode(DownloadFailed,
			fmt.Errorf("downloaded %d bytes, the control file announces %d", written, c.header.Length))
	}
	if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, c.header.Sha1Hash) {
		return "", withCode(ChecksumMismatch, fmt.Errorf("got %s, expected %s", sum, c.header.Sha1Hash))
	}
	if err := tmp.Chmod(c.artifact.Mode); err != nil {
		return "", withCode(WriteFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", withCode(WriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", withCode(WriteFailed, err)
	}
	ok = true
	return tmpPath, nil
}

// replace moves the verified download to newPath and returns where the old version lives afterwards.
// An old version with the same name is moved aside to "<name>.zs-old" and restored when the move fails.
func (e *Engine) replace(oldPath, newPath, tmpPath string) (string, error) {
	oldVersionPath := oldPath
	backup := ""
	if newPath == oldPath && e.opts.KeepOld {
		backup = oldPath + BackupSuffix
		if err := os.Rename(oldPath, backup); err != nil {
			return "", withCode(WriteFailed, fmt.Errorf("failed to back up %s: %w", oldPath, err))
		}
		oldVersionPath = backup
	}

	if err := os.Rename(tmpPath, newPath); err != nil {
		if backup != "" {
			if rbErr := os.Rename(backup, oldPath); rbErr != nil {
				slog.Error("failed to restore the previous version", "path", oldPath, "backup", backup, "error", rbErr)
			}
		}
		return "", withCode(WriteFailed, err)
	}

	if newPath != oldPath && !e.opts.KeepOld {
		if err := os.Remove(oldPath); err != nil {
			slog.Warn("failed to remove the previous version", "path", oldPath, "error", err)
		}
	}
	return oldVersionPath, nil
}

type progressWriter struct {
	reporter *progressReporter
	total    int64
	done     int64
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.done += int64(len(b))
	if w.done <= w.total {
		w.reporter.report(w.done, w.total)
	}
	return len(b), nil
}
