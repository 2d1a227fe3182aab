// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package appimage reads the update information embedded in an AppImage and hashes its content.
package appimage

import (
	"bytes"
	"crypto/sha1"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Info describes an artifact on disk
	Info struct {
		Path       string
		Type       int
		UpdateInfo string
		Sha1Hash   string
		Size       int64
		Mode       os.FileMode
	}

	// UpdateInformation is the parsed form of the embedded update information string
	UpdateInformation struct {
		Transport string
		// zsync transport
		ZsyncURL string
		// gh-releases-zsync and bintray-zsync transports
		Username    string
		Repo        string
		Tag         string
		PackageName string
		Filename    string
	}
)

const (
	TransportZsync          = "zsync"
	TransportGitHubReleases = "gh-releases-zsync"
	TransportBintray        = "bintray-zsync"

	UpdateInfoSection  = ".upd_info"
	Type1UpdateInfoPos = 0x8373
	Type1UpdateInfoLen = 0x200
	MagicPos           = 8
	ElfMagicPos        = 1
	IsoMagicPos        = 0x8001

	updateInfoDelimiter = "|"
)

var (
	ErrNotFound                 = errors.New("artifact not found")
	ErrNoReadPermission         = errors.New("no permission to read the artifact")
	ErrInvalidMagicBytes        = errors.New("invalid AppImage magic bytes")
	ErrInvalidType              = errors.New("invalid AppImage type")
	ErrSectionNotFound          = errors.New("update information section not found")
	ErrEmptyUpdateInformation   = errors.New("update information is empty")
	ErrInvalidUpdateInformation = errors.New("update information is invalid")
	ErrUnsupportedTransport     = errors.New("unsupported update transport")

	elfMagic = []byte("ELF")
	isoMagic = []byte("CD001")
)

// ReadInfo identifies the AppImage type, extracts its update information and computes its SHA-1
func ReadInfo(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoReadPermission, path)
		}
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}

	magic := make([]byte, 3)
	if _, err := f.ReadAt(magic, MagicPos); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMagicBytes, err)
	}
	if magic[0] != 'A' || magic[1] != 'I' {
		return nil, fmt.Errorf("%w: %#x %#x", ErrInvalidMagicBytes, magic[0], magic[1])
	}

	info := &Info{
		Path: path,
		Type: int(magic[2]),
		Size: st.Size(),
		Mode: st.Mode().Perm(),
	}
	switch info.Type {
	case 1:
		info.UpdateInfo, err = readType1UpdateInfo(f)
	case 2:
		info.UpdateInfo, err = readType2UpdateInfo(f)
	default:
		err = fmt.Errorf("%w: %d", ErrInvalidType, info.Type)
	}
	if err != nil {
		return nil, err
	}
	if info.UpdateInfo == "" {
		return nil, ErrEmptyUpdateInformation
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if info.Sha1Hash, err = Sha1Sum(f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return info, nil
}

func readType1UpdateInfo(f *os.File) (string, error) {
	if !hasMagic(f, ElfMagicPos, elfMagic) || !hasMagic(f, IsoMagicPos, isoMagic) {
		return "", fmt.Errorf("%w: type 1 image is not an ELF and ISO 9660 hybrid", ErrInvalidType)
	}
	buf := make([]byte, Type1UpdateInfoLen)
	n, err := f.ReadAt(buf, Type1UpdateInfoPos)
	if err != nil && err != io.EOF {
		return "", err
	}
	return cleanUpdateInfo(buf[:n]), nil
}

func readType2UpdateInfo(f *os.File) (string, error) {
	ef, err := elf.NewFile(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidType, err)
	}
	section := ef.Section(UpdateInfoSection)
	if section == nil {
		return "", ErrSectionNotFound
	}
	data, err := section.Data()
	if err != nil {
		return "", fmt.Errorf("failed to read %s section: %w", UpdateInfoSection, err)
	}
	return cleanUpdateInfo(data), nil
}

func hasMagic(f *os.File, pos int64, magic []byte) bool {
	buf := make([]byte, len(magic))
	if _, err := f.ReadAt(buf, pos); err != nil {
		return false
	}
	return bytes.Equal(buf, magic)
}

// cleanUpdateInfo strips the zero padding of the reserved update information area
func cleanUpdateInfo(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// Sha1Sum returns the hex encoded SHA-1 of everything read from r
func Sha1Sum(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseUpdateInformation splits an update information string such as
// "zsync|https://example.com/app.AppImage.zsync" or
// "gh-releases-zsync|user|repo|latest|app-*-x86_64.AppImage.zsync"
func ParseUpdateInformation(s string) (*UpdateInformation, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyUpdateInformation
	}
	parts := strings.Split(s, updateInfoDelimiter)
	switch len(parts) {
	case 2:
		if parts[0] != TransportZsync {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, parts[0])
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("%w: no zsync URL", ErrInvalidUpdateInformation)
		}
		return &UpdateInformation{Transport: parts[0], ZsyncURL: parts[1]}, nil
	case 5:
		for _, p := range parts[1:] {
			if p == "" {
				return nil, fmt.Errorf("%w: empty field in %q", ErrInvalidUpdateInformation, s)
			}
		}
		switch parts[0] {
		case TransportGitHubReleases:
			return &UpdateInformation{
				Transport: parts[0],
				Username:  parts[1],
				Repo:      parts[2],
				Tag:       parts[3],
				Filename:  parts[4],
			}, nil
		case TransportBintray:
			return &UpdateInformation{
				Transport:   parts[0],
				Username:    parts[1],
				Repo:        parts[2],
				PackageName: parts[3],
				Filename:    parts[4],
			}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, parts[0])
	}
	return nil, fmt.Errorf("%w: unexpected number of fields (%d)", ErrInvalidUpdateInformation, len(parts))
}
