// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package zsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/foundriesio/aiupdate/internal/appimage"
)

type (
	Client struct {
		http         *http.Client
		gitHubAPIURL string
	}

	// Release points to the control file of the newest artifact
	Release struct {
		ControlURL   string
		ReleaseNotes string
	}

	gitHubRelease struct {
		TagName string        `json:"tag_name"`
		Body    string        `json:"body"`
		Assets  []gitHubAsset `json:"assets"`
	}
	gitHubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}
)

func NewClient(httpClient *http.Client, gitHubAPIURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:         httpClient,
		gitHubAPIURL: gitHubAPIURL,
	}
}

// Resolve finds the control file for the given update information
func (c *Client) Resolve(ctx context.Context, info *appimage.UpdateInformation) (*Release, error) {
	switch info.Transport {
	case appimage.TransportZsync:
		return &Release{ControlURL: info.ZsyncURL}, nil
	case appimage.TransportGitHubReleases:
		return c.resolveGitHubRelease(ctx, info)
	case appimage.TransportBintray:
		return nil, fmt.Errorf("%w: the bintray service has been shut down", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, info.Transport)
}

func (c *Client) resolveGitHubRelease(ctx context.Context, info *appimage.UpdateInformation) (*Release, error) {
	releasePath := "releases/latest"
	if info.Tag != "latest" {
		releasePath = "releases/tags/" + url.PathEscape(info.Tag)
	}
	releaseURL := fmt.Sprintf("%s/repos/%s/%s/%s", c.gitHubAPIURL,
		url.PathEscape(info.Username), url.PathEscape(info.Repo), releasePath)

	res, err := c.get(ctx, releaseURL, map[string]string{"Accept": "application/vnd.github+json"})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s/%s tag %s", ErrReleaseNotFound, info.Username, info.Repo, info.Tag)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code HTTP_%d from %s", ErrNetwork, res.StatusCode, releaseURL)
	}
	var release gitHubRelease
	if err := json.NewDecoder(res.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("%w: failed to decode release from %s: %v", ErrNetwork, releaseURL, err)
	}
	for _, asset := range release.Assets {
		if ok, err := path.Match(info.Filename, asset.Name); err == nil && ok {
			slog.Debug("release asset selected", "tag", release.TagName, "asset", asset.Name)
			return &Release{ControlURL: asset.BrowserDownloadURL, ReleaseNotes: release.Body}, nil
		}
	}
	return nil, fmt.Errorf("%w: no asset of release %s matches %q", ErrReleaseNotFound, release.TagName, info.Filename)
}

// FetchHeader downloads and parses the header of a control file.
// The target URL of the returned header is absolute.
func (c *Client) FetchHeader(ctx context.Context, controlURL string) (*ControlHeader, error) {
	base, err := url.Parse(controlURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid control file URL %q: %v", ErrInvalidControlFile, controlURL, err)
	}
	res, err := c.get(ctx, controlURL, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code HTTP_%d from %s", ErrNetwork, res.StatusCode, controlURL)
	}
	header, err := ParseHeader(res.Body)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(header.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target URL %q: %v", ErrInvalidControlFile, header.URL, err)
	}
	header.URL = base.ResolveReference(target).String()
	return header, nil
}

// Open starts downloading the file at the given URL; the caller closes the returned body
func (c *Client) Open(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	res, err := c.get(ctx, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, 0, fmt.Errorf("%w: unexpected status code HTTP_%d from %s", ErrNetwork, res.StatusCode, fileURL)
	}
	return res.Body, res.ContentLength, nil
}

func (c *Client) get(ctx context.Context, u string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return res, nil
}
