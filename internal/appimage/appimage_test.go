package appimage

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/foundriesio/aiupdate/internal/appimage/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zsyncInfo = "zsync|https://updates.example.com/app-x86_64.AppImage.zsync"

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestReadInfo_Type1(t *testing.T) {
	content := fixtures.Type1(zsyncInfo, []byte("version 1"))
	p := fixtures.WriteFile(t, t.TempDir(), "app.AppImage", content)

	info, err := ReadInfo(p)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Type)
	assert.Equal(t, zsyncInfo, info.UpdateInfo)
	assert.Equal(t, sha1Hex(content), info.Sha1Hash)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, os.FileMode(0755), info.Mode)
}

func TestReadInfo_Type2(t *testing.T) {
	updateInfo := "gh-releases-zsync|foundriesio|demo|latest|demo-*-x86_64.AppImage.zsync"
	content := fixtures.Type2(&updateInfo, []byte("version 2"))
	p := fixtures.WriteFile(t, t.TempDir(), "app.AppImage", content)

	info, err := ReadInfo(p)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Type)
	assert.Equal(t, updateInfo, info.UpdateInfo)
	assert.Equal(t, sha1Hex(content), info.Sha1Hash)

	// no .upd_info section
	p = fixtures.WriteFile(t, t.TempDir(), "app.AppImage", fixtures.Type2(nil, nil))
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrSectionNotFound)

	// section present, but empty
	empty := ""
	p = fixtures.WriteFile(t, t.TempDir(), "app.AppImage", fixtures.Type2(&empty, nil))
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrEmptyUpdateInformation)
}

func TestReadInfo_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadInfo(filepath.Join(dir, "missing.AppImage"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ReadInfo(dir)
	assert.ErrorIs(t, err, ErrNotFound)

	p := fixtures.WriteFile(t, dir, "script.sh", []byte("#!/bin/sh\necho not an AppImage\n"))
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrInvalidMagicBytes)

	b := fixtures.Type1(zsyncInfo, nil)
	b[10] = 3
	p = fixtures.WriteFile(t, dir, "type3.AppImage", b)
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrInvalidType)

	// type 1 without the ISO 9660 signature
	b = fixtures.Type1(zsyncInfo, nil)
	copy(b[IsoMagicPos:], "XXXXX")
	p = fixtures.WriteFile(t, dir, "noiso.AppImage", b)
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrInvalidType)

	p = fixtures.WriteFile(t, dir, "empty.AppImage", fixtures.Type1("", nil))
	_, err = ReadInfo(p)
	assert.ErrorIs(t, err, ErrEmptyUpdateInformation)
}

func TestSha1Sum(t *testing.T) {
	s, err := Sha1Sum(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", s)
}

func TestParseUpdateInformation(t *testing.T) {
	u, err := ParseUpdateInformation(zsyncInfo)
	require.NoError(t, err)
	assert.Equal(t, &UpdateInformation{
		Transport: TransportZsync,
		ZsyncURL:  "https://updates.example.com/app-x86_64.AppImage.zsync",
	}, u)

	u, err = ParseUpdateInformation("gh-releases-zsync|user|repo|v1.2|app-*.AppImage.zsync")
	require.NoError(t, err)
	assert.Equal(t, TransportGitHubReleases, u.Transport)
	assert.Equal(t, "user", u.Username)
	assert.Equal(t, "repo", u.Repo)
	assert.Equal(t, "v1.2", u.Tag)
	assert.Equal(t, "app-*.AppImage.zsync", u.Filename)

	u, err = ParseUpdateInformation("bintray-zsync|user|repo|pkg|app.AppImage.zsync")
	require.NoError(t, err)
	assert.Equal(t, "pkg", u.PackageName)

	for s, expected := range map[string]error{
		"":                                 ErrEmptyUpdateInformation,
		"zsync":                            ErrInvalidUpdateInformation,
		"zsync|":                           ErrInvalidUpdateInformation,
		"http|https://example.com/x":       ErrUnsupportedTransport,
		"gh-releases-zsync|user|repo|tag":  ErrInvalidUpdateInformation,
		"gh-releases-zsync|user||tag|f":    ErrInvalidUpdateInformation,
		"ocs-v1-appimagehub-zsync|a|b|c|d": ErrUnsupportedTransport,
	} {
		_, err := ParseUpdateInformation(s)
		assert.ErrorIs(t, err, expected, s)
	}
}
