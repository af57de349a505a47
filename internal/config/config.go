// Package config loads and validates the optional .procout YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".procout"

// Default values for the companion binary.
const (
	DefaultMaxOutput    = 1 << 20 // 1 MB
	DefaultStoreSize    = 16
	DefaultServeTimeout = 5 * time.Minute
)

// Config holds the parsed .procout configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int               `yaml:"version"`
	RawTimeout   string            `yaml:"timeout"`    // e.g. "5m", "30s"
	RawMaxOutput int               `yaml:"max_output"` // bytes
	LogCommand   bool              `yaml:"log_command"`
	Env          map[string]string `yaml:"env"`
	Serve        ServeConfig       `yaml:"serve"`
}

// ServeConfig controls the MCP server.
type ServeConfig struct {
	RawTimeout string `yaml:"timeout"`    // per tool call, default 5m
	StoreSize  int    `yaml:"store_size"` // runs kept in memory for proc_inspect
	Workspace  string `yaml:"workspace"`  // confine proc_run to this tree
}

// Timeout returns the configured timeout for a CLI run. Zero means none.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.RawTimeout, 0)
}

// ServeTimeout returns the configured per-call timeout of the MCP server.
func (c *Config) ServeTimeout() time.Duration {
	return parseDuration(c.Serve.RawTimeout, DefaultServeTimeout)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// MaxOutputBytes returns the configured max output size or the default.
// A negative value disables the cap.
func (c *Config) MaxOutputBytes() int {
	switch {
	case c.RawMaxOutput > 0:
		return c.RawMaxOutput
	case c.RawMaxOutput < 0:
		return 0
	}
	return DefaultMaxOutput
}

// StoreSize returns the configured run store capacity or the default.
func (c *Config) StoreSize() int {
	if c.Serve.StoreSize > 0 {
		return c.Serve.StoreSize
	}
	return DefaultStoreSize
}

// EnvPairs returns Env as sorted KEY=VALUE pairs.
func (c *Config) EnvPairs() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+c.Env[k])
	}
	return pairs
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .procout; falls back to the start dir
}

// Load reads the nearest .procout file, walking upward from dir. If none
// exists, a default Config is returned with Root set to dir.
func Load(dir string) (*LoadResult, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	root, err := findConfigRoot(abs)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: abs}, nil
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Root: root}, nil
}

// findConfigRoot walks upward from dir looking for a directory containing
// the config file.
func findConfigRoot(dir string) (string, error) {
	for {
		if info, err := os.Stat(filepath.Join(dir, FileName)); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
