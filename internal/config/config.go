// Package config loads buildfs settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the root directory when no file is given
const DefaultFile = "buildfs.yaml"

// Config holds all buildfs settings.
type Config struct {
	// Source tree
	Root    string   `yaml:"root"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// Output. OutDir may be relative to Root; OutPath is the resolved
	// directory and is set by Validate.
	OutDir      string `yaml:"outDir"`
	OutPath     string `yaml:"-"`
	WriteToDisk bool   `yaml:"writeToDisk"`
	DryRun      bool   `yaml:"dryRun"`

	// Watch mode
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`

	// Logging
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	LogOutput string `yaml:"logOutput"`

	// Metrics ("" disables the endpoint)
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	return &Config{
		Root:      ".",
		Include:   []string{"src/**/*"},
		OutDir:    "www/build",
		Debounce:  100 * time.Millisecond,
		LogLevel:  "info",
		LogFormat: "console",
		LogOutput: "stderr",
	}
}

// Load reads path (or DefaultFile in the working directory when path is
// empty), then applies BUILDFS_* environment overrides. A missing default
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Root = envOr("BUILDFS_ROOT", c.Root)
	c.OutDir = envOr("BUILDFS_OUT_DIR", c.OutDir)
	c.WriteToDisk = envBool("BUILDFS_WRITE_TO_DISK", c.WriteToDisk)
	c.DryRun = envBool("BUILDFS_DRY_RUN", c.DryRun)
	c.Watch = envBool("BUILDFS_WATCH", c.Watch)
	c.Debounce = envDuration("BUILDFS_DEBOUNCE", c.Debounce)
	c.LogLevel = envOr("BUILDFS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("BUILDFS_LOG_FORMAT", c.LogFormat)
	c.LogOutput = envOr("BUILDFS_LOG_OUTPUT", c.LogOutput)
	c.MetricsAddr = envOr("BUILDFS_METRICS_ADDR", c.MetricsAddr)
}

// Validate checks the settings, makes Root absolute and resolves OutDir
// against it into OutPath. It may run again after Root or OutDir change.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if len(c.Include) == 0 {
		return fmt.Errorf("at least one include pattern is required")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	c.Root = root

	c.OutPath = c.OutDir
	if !filepath.IsAbs(c.OutPath) {
		c.OutPath = filepath.Join(c.Root, c.OutDir)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
