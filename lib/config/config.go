// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Depot service.
type Config struct {
	// Paths configures directory and socket locations.
	Paths PathsConfig `yaml:"paths"`

	// Limits configures size and traversal bounds.
	Limits LimitsConfig `yaml:"limits"`

	// Policy configures optional sharing behavior.
	Policy PolicyConfig `yaml:"policy"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures filesystem locations.
type PathsConfig struct {
	// Root is the base directory for Depot data. The databases and
	// payload tree live under it unless overridden below.
	Root string `yaml:"root"`

	// State is the directory holding the SQLite databases.
	// Default: ${DEPOT_ROOT}/state
	State string `yaml:"state"`

	// Payloads is the directory holding object content.
	// Default: ${DEPOT_ROOT}/payloads
	Payloads string `yaml:"payloads"`

	// Socket is the Unix socket path the service listens on.
	// Default: ${DEPOT_ROOT}/depot.sock
	Socket string `yaml:"socket"`

	// Seed is an optional JSONC seed document applied at startup.
	// Empty disables seeding.
	Seed string `yaml:"seed"`
}

// LimitsConfig configures size and traversal bounds.
type LimitsConfig struct {
	// MaxPayloadBytes caps the size of a single uploaded payload.
	// Default: 64 MiB.
	MaxPayloadBytes int64 `yaml:"max_payload_bytes"`

	// TraversalLimit caps the number of nodes a graph traversal or
	// visibility propagation may visit. Default: 100000.
	TraversalLimit int `yaml:"traversal_limit"`

	// PoolSize is the SQLite connection pool size per store.
	// Default: 4.
	PoolSize int `yaml:"pool_size"`
}

// PolicyConfig configures optional sharing behavior.
type PolicyConfig struct {
	// AutoShareOnLookup enables automatic sharing of looked-up objects
	// with the caller's groups that carry the share_queried_objects
	// capability. When false the capability is inert.
	AutoShareOnLookup bool `yaml:"auto_share_on_lookup"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Default returns the default configuration. These defaults are the
// base before loading the config file; the file is still required for
// [Load] and [LoadFile].
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "depot")

	return &Config{
		Paths: PathsConfig{
			Root:     defaultRoot,
			State:    filepath.Join(defaultRoot, "state"),
			Payloads: filepath.Join(defaultRoot, "payloads"),
			Socket:   filepath.Join(defaultRoot, "depot.sock"),
		},
		Limits: LimitsConfig{
			MaxPayloadBytes: 64 << 20,
			TraversalLimit:  100000,
			PoolSize:        4,
		},
		Policy: PolicyConfig{
			AutoShareOnLookup: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the path in the DEPOT_CONFIG
// environment variable. There are no fallbacks: if DEPOT_CONFIG is
// not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("DEPOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DEPOT_CONFIG environment variable not set; " +
			"set it to the path of your depot.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override its values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DEPOT_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DEPOT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Payloads = expandVars(c.Paths.Payloads, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Paths.Seed = expandVars(c.Paths.Seed, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Paths.Payloads == "" {
		errs = append(errs, fmt.Errorf("paths.payloads is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, fmt.Errorf("paths.socket is required"))
	}
	if c.Limits.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_payload_bytes must be positive"))
	}
	if c.Limits.TraversalLimit <= 0 {
		errs = append(errs, fmt.Errorf("limits.traversal_limit must be positive"))
	}
	if c.Limits.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.pool_size must be positive"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of: debug info warn error"))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Payloads,
		filepath.Dir(c.Paths.Socket),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
