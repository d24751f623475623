// Package config loads per-project analyzer settings from .importgraph.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up in the project root.
const FileName = ".importgraph.yaml"

// Config holds user-overridable analysis settings. Paths are relative to the
// project root unless absolute.
type Config struct {
	Entries  []string `yaml:"entries"`
	Exits    []string `yaml:"exits"`
	ScanDirs []string `yaml:"scan_dirs"`

	// Include and Exclude are regular expressions matched against absolute
	// slash-separated file paths.
	Include string `yaml:"include"`
	Exclude string `yaml:"exclude"`

	// IgnoreDirs are extra directory globs skipped during discovery, on top
	// of the built-in list (node_modules, dist, …).
	IgnoreDirs []string `yaml:"ignore_dirs"`

	// Workers bounds the per-wave worker pool. Default: number of CPUs.
	Workers *int `yaml:"workers"`

	// ScanAll seeds every scanned file so never-imported files show up as
	// dead. Default: true.
	ScanAll *bool `yaml:"scan_all"`

	// Gitignore honours .gitignore during discovery. Default: true.
	Gitignore *bool `yaml:"gitignore"`

	// DBPath overrides the analysis store location.
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// LoadConfig reads .importgraph.yaml from the given directory.
// Returns default config if the file doesn't exist or is invalid.
func LoadConfig(dir string) *Config {
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// LoadFile reads one config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EffectiveWorkers returns the configured worker count, or the number of
// CPUs if unset or not positive.
func (c *Config) EffectiveWorkers() int {
	if c.Workers != nil && *c.Workers > 0 {
		return *c.Workers
	}
	return runtime.NumCPU()
}

// EffectiveScanAll returns the configured scan_all setting, or true.
func (c *Config) EffectiveScanAll() bool {
	if c.ScanAll != nil {
		return *c.ScanAll
	}
	return true
}

// EffectiveGitignore returns the configured gitignore setting, or true.
func (c *Config) EffectiveGitignore() bool {
	if c.Gitignore != nil {
		return *c.Gitignore
	}
	return true
}

// Patterns compiles the include and exclude expressions. Empty expressions
// yield nil.
func (c *Config) Patterns() (include, exclude *regexp.Regexp, err error) {
	if c.Include != "" {
		if include, err = regexp.Compile(c.Include); err != nil {
			return nil, nil, fmt.Errorf("include: %w", err)
		}
	}
	if c.Exclude != "" {
		if exclude, err = regexp.Compile(c.Exclude); err != nil {
			return nil, nil, fmt.Errorf("exclude: %w", err)
		}
	}
	return include, exclude, nil
}
