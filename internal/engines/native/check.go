// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package native

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/foundriesio/aiupdate/internal/appimage"
	"github.com/foundriesio/aiupdate/pkg/engine"
)

func errUnknownAction(action engine.Action) error {
	return fmt.Errorf("unsupported action %s", action)
}

func (e *Engine) check(ctx context.Context, path string, p *progressReporter) (*checkInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, withCode(ArtifactNotFound, err)
	}
	artifact, err := appimage.ReadInfo(absPath)
	if err != nil {
		return nil, err
	}
	p.step(25)

	updateInfo, err := appimage.ParseUpdateInformation(artifact.UpdateInfo)
	if err != nil {
		return nil, err
	}
	release, err := e.client.Resolve(ctx, updateInfo)
	if err != nil {
		return nil, err
	}
	p.step(50)

	header, err := e.client.FetchHeader(ctx, release.ControlURL)
	if err != nil {
		return nil, err
	}
	p.step(100)

	slog.Debug("artifact checked",
		"path", absPath,
		"transport", updateInfo.Transport,
		"control_file", release.ControlURL,
		"local_sha1", artifact.Sha1Hash,
		"remote_sha1", header.Sha1Hash)
	return &checkInfo{artifact: artifact, release: release, header: header}, nil
}

func (c *checkInfo) updateAvailable() bool {
	return !strings.EqualFold(c.artifact.Sha1Hash, c.header.Sha1Hash)
}

func (c *checkInfo) result() engine.Result {
	return engine.Result{
		engine.UpdateAvailableKey: c.updateAvailable(),
		engine.AbsolutePathKey:    c.artifact.Path,
		engine.Sha1HashKey:        c.artifact.Sha1Hash,
		engine.RemoteSha1HashKey:  c.header.Sha1Hash,
		engine.ReleaseNotesKey:    c.release.ReleaseNotes,
	}
}
