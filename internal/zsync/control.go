// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package zsync locates the zsync control file of an artifact and reads its header.
package zsync

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// ControlHeader holds the fields of a zsync control file header that describe the target file
	ControlHeader struct {
		Version     string
		Filename    string
		MTime       string
		Blocksize   int
		Length      int64
		HashLengths string
		URL         string
		Sha1Hash    string
	}
)

const maxHeaderSize = 64 * 1024

var (
	ErrInvalidControlFile = errors.New("invalid zsync control file")
	ErrNetwork            = errors.New("network error")
	ErrReleaseNotFound    = errors.New("release not found")
	ErrUnsupported        = errors.New("unsupported transport")
)

// ParseHeader reads "Key: value" lines up to the first empty line; the block checksums after it are not read
func ParseHeader(r io.Reader) (*ControlHeader, error) {
	h := &ControlHeader{}
	scanner := bufio.NewScanner(io.LimitReader(r, maxHeaderSize))
	terminated := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			terminated = true
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrInvalidControlFile, line)
		}
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "zsync":
			h.Version = value
		case "Filename":
			h.Filename = value
		case "MTime":
			h.MTime = value
		case "Blocksize":
			h.Blocksize, err = strconv.Atoi(value)
		case "Length":
			h.Length, err = strconv.ParseInt(value, 10, 64)
		case "Hash-Lengths":
			h.HashLengths = value
		case "URL":
			h.URL = value
		case "SHA-1":
			h.Sha1Hash = strings.ToLower(value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s value %q", ErrInvalidControlFile, key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControlFile, err)
	}
	if !terminated {
		return nil, fmt.Errorf("%w: header is not terminated", ErrInvalidControlFile)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *ControlHeader) validate() error {
	if h.Version == "" {
		return fmt.Errorf("%w: no zsync version", ErrInvalidControlFile)
	}
	if h.URL == "" {
		return fmt.Errorf("%w: no target URL", ErrInvalidControlFile)
	}
	if h.Length <= 0 {
		return fmt.Errorf("%w: invalid target length %d", ErrInvalidControlFile, h.Length)
	}
	if b, err := hex.DecodeString(h.Sha1Hash); err != nil || len(b) != 20 {
		return fmt.Errorf("%w: invalid SHA-1 %q", ErrInvalidControlFile, h.Sha1Hash)
	}
	return nil
}
