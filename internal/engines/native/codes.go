// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/foundriesio/aiupdate/internal/appimage"
	"github.com/foundriesio/aiupdate/internal/zsync"
	"github.com/foundriesio/aiupdate/pkg/engine"
)

const (
	NoArtifactPath engine.ErrorCode = iota + 1
	ArtifactNotFound
	NoReadPermission
	InvalidMagicBytes
	InvalidArtifactType
	SectionHeaderNotFound
	EmptyUpdateInformation
	InvalidUpdateInformation
	UnsupportedTransport
	NetworkError
	ReleaseNotFound
	InvalidControlFile
	DownloadFailed
	ChecksumMismatch
	WriteFailed
	EngineBusy
	UnknownAction
	Canceled
	UnknownError
)

var descriptions = map[engine.ErrorCode]string{
	NoArtifactPath:           "no artifact path is given",
	ArtifactNotFound:         "the artifact cannot be found",
	NoReadPermission:         "no permission to read the artifact",
	InvalidMagicBytes:        "the artifact has invalid AppImage magic bytes",
	InvalidArtifactType:      "the artifact has an invalid or unsupported AppImage type",
	SectionHeaderNotFound:    "the artifact has no update information section",
	EmptyUpdateInformation:   "the artifact carries empty update information",
	InvalidUpdateInformation: "the artifact carries invalid update information",
	UnsupportedTransport:     "the update transport of the artifact is not supported",
	NetworkError:             "a network error occurred while contacting the update server",
	ReleaseNotFound:          "no matching release was found on the update server",
	InvalidControlFile:       "the zsync control file is invalid",
	DownloadFailed:           "the download of the new version failed",
	ChecksumMismatch:         "the downloaded file does not match the expected SHA-1",
	WriteFailed:              "the new version cannot be written next to the artifact",
	EngineBusy:               "another action is already running",
	UnknownAction:            "the action is not supported by this engine",
	Canceled:                 "the action was canceled",
	UnknownError:             "an unknown error occurred",
}

func description(code engine.ErrorCode) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("unknown error code %d", int(code))
}

type codedError struct {
	code engine.ErrorCode
	err  error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v", description(e.code), e.err)
}

func (e *codedError) Unwrap() error {
	return e.err
}

func withCode(code engine.ErrorCode, err error) error {
	return &codedError{code: code, err: err}
}

// codeOf maps an error of the update steps to the error code reported to the workflow
func codeOf(ctx context.Context, err error) engine.ErrorCode {
	var coded *codedError
	switch {
	case errors.As(err, &coded):
		return coded.code
	case ctx.Err() != nil:
		return Canceled
	case errors.Is(err, appimage.ErrNotFound):
		return ArtifactNotFound
	case errors.Is(err, appimage.ErrNoReadPermission):
		return NoReadPermission
	case errors.Is(err, appimage.ErrInvalidMagicBytes):
		return InvalidMagicBytes
	case errors.Is(err, appimage.ErrInvalidType):
		return InvalidArtifactType
	case errors.Is(err, appimage.ErrSectionNotFound):
		return SectionHeaderNotFound
	case errors.Is(err, appimage.ErrEmptyUpdateInformation):
		return EmptyUpdateInformation
	case errors.Is(err, appimage.ErrInvalidUpdateInformation):
		return InvalidUpdateInformation
	case errors.Is(err, appimage.ErrUnsupportedTransport), errors.Is(err, zsync.ErrUnsupported):
		return UnsupportedTransport
	case errors.Is(err, zsync.ErrReleaseNotFound):
		return ReleaseNotFound
	case errors.Is(err, zsync.ErrInvalidControlFile):
		return InvalidControlFile
	case errors.Is(err, zsync.ErrNetwork):
		return NetworkError
	}
	return UnknownError
}
