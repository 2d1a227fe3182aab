// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

type (
	Config struct {
		// later trees override earlier ones
		trees []*toml.Tree

		deadline    time.Duration
		httpTimeout time.Duration
		keepRuns    int
	}
)

const (
	EngineNameKey        = "engine.name"
	EngineSearchPathsKey = "engine.search_paths"
	DeadlineKey          = "workflow.deadline_seconds"
	StorageDirKey        = "storage.path"
	HistoryDBKey         = "storage.history_db"
	HistoryKeepRunsKey   = "storage.history_keep_runs"
	HTTPTimeoutKey       = "http.timeout_seconds"
	GitHubAPIURLKey      = "github.api_url"
	KeepOldKey           = "update.keep_old"

	EngineNameDefault      = "native"
	StorageDefaultDir      = "/var/lib/aiupdate"
	HistoryDBDefault       = "history.db"
	LockFileName           = "aiupdate.lock"
	HistoryKeepRunsDefault = 50
	DeadlineDefault        = 3600
	HTTPTimeoutDefault     = 60
	GitHubAPIURLDefault    = "https://api.github.com"
	MaxDeadlineSeconds     = 7 * 24 * 3600
	MaxHTTPTimeoutSeconds  = 3600
	MaxHistoryKeepRuns     = 100000
)

var (
	DefaultConfigDirs        = []string{"/usr/lib/aiupdate", "/etc/aiupdate"}
	EngineSearchPathsDefault = []string{"/usr/lib/aiupdate/engines", "/usr/local/lib/aiupdate/engines"}
)

// NewConfig loads every *.toml file found in the given paths, in order; a path may also name a file.
// Paths that do not exist are skipped, so a host without any configuration runs on defaults.
func NewConfig(tomlConfigPaths []string) (*Config, error) {
	cfg := &Config{}
	for _, p := range tomlConfigPaths {
		files, err := tomlFiles(p)
		if err != nil {
			return nil, fmt.Errorf("config: failed to list TOML files in %q: %w", p, err)
		}
		for _, f := range files {
			tree, err := toml.LoadFile(f)
			if err != nil {
				return nil, fmt.Errorf("config: failed to load TOML from %q: %w", f, err)
			}
			slog.Debug("config file loaded", "path", f)
			cfg.trees = append(cfg.trees, tree)
		}
	}

	cfg.deadline = time.Duration(cfg.boundedInt(DeadlineKey, DeadlineDefault, 0, MaxDeadlineSeconds)) * time.Second
	cfg.httpTimeout = time.Duration(cfg.boundedInt(HTTPTimeoutKey, HTTPTimeoutDefault, 1, MaxHTTPTimeoutSeconds)) * time.Second
	cfg.keepRuns = cfg.boundedInt(HistoryKeepRunsKey, HistoryKeepRunsDefault, 1, MaxHistoryKeepRuns)
	return cfg, nil
}

func tomlFiles(p string) ([]string, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{p}, nil
	}
	files, err := filepath.Glob(filepath.Join(p, "*.toml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Get returns the value of the key as text, or an empty string if it is not set
func (c *Config) Get(key string) string {
	return c.GetDefault(key, "")
}

func (c *Config) GetDefault(key string, def string) string {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

func (c *Config) lookup(key string) (interface{}, bool) {
	for i := len(c.trees) - 1; i >= 0; i-- {
		if c.trees[i].Has(key) {
			return c.trees[i].Get(key), true
		}
	}
	return nil, false
}

func (c *Config) boundedInt(key string, def int, min int, max int) int {
	if !c.Has(key) {
		return def
	}
	str := c.Get(key)
	v, err := strconv.Atoi(str)
	if err != nil {
		slog.Warn("invalid config value; using default", "key", key, "value", str, "default", def)
		return def
	}
	if v < min || v > max {
		slog.Warn("config value out of range; using default", "key", key, "value", v, "default", def)
		return def
	}
	return v
}

func (c *Config) GetEngineName() string {
	return c.GetDefault(EngineNameKey, EngineNameDefault)
}

func (c *Config) GetEngineSearchPaths() []string {
	if !c.Has(EngineSearchPathsKey) {
		return EngineSearchPathsDefault
	}
	var paths []string
	for _, p := range strings.Split(c.Get(EngineSearchPathsKey), ",") {
		if v := strings.TrimSpace(p); v != "" {
			paths = append(paths, v)
		}
	}
	return paths
}

// GetDeadline returns how long a workflow may run before it is aborted; zero means no limit
func (c *Config) GetDeadline() time.Duration {
	return c.deadline
}

func (c *Config) GetHTTPTimeout() time.Duration {
	return c.httpTimeout
}

func (c *Config) GetStorageDir() string {
	return c.GetDefault(StorageDirKey, StorageDefaultDir)
}

func (c *Config) GetHistoryDBPath() string {
	return filepath.Join(c.GetStorageDir(), c.GetDefault(HistoryDBKey, HistoryDBDefault))
}

func (c *Config) GetLockFilePath() string {
	return filepath.Join(c.GetStorageDir(), LockFileName)
}

// GetHistoryKeepRuns returns how many workflow runs the history keeps
func (c *Config) GetHistoryKeepRuns() int {
	return c.keepRuns
}

func (c *Config) GetGitHubAPIURL() string {
	return strings.TrimSuffix(c.GetDefault(GitHubAPIURLKey, GitHubAPIURLDefault), "/")
}

func (c *Config) GetKeepOld() bool {
	str := c.GetDefault(KeepOldKey, "true")
	keep, err := strconv.ParseBool(str)
	if err != nil {
		slog.Warn("invalid config value; using default", "key", KeepOldKey, "value", str, "default", true)
		return true
	}
	return keep
}
