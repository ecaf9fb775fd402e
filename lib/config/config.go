// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Easel components.
//
// Configuration is loaded from a single YAML file specified by:
//   - EASEL_CONFIG environment variable, or
//   - --config flag passed to the command
//
// The file is the single source of truth; environment variables do not
// override individual values. The only expansion performed is
// ${VAR} and ${VAR:-default} in paths, for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Easel.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the easeld HTTP API.
	Server ServerConfig `yaml:"server"`

	// Generation configures the program generation service.
	Generation GenerationConfig `yaml:"generation"`

	// Sandbox configures the program sandbox.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Repair configures the automatic repair loop.
	Repair RepairConfig `yaml:"repair"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Easel data.
	// Default: ~/.local/share/easel
	Root string `yaml:"root"`

	// Database is the project database path.
	// Default: ${EASEL_ROOT}/projects.db
	Database string `yaml:"database"`

	// Exports is where exported models are written.
	// Default: ${EASEL_ROOT}/exports
	Exports string `yaml:"exports"`

	// Journals is where per-session repair journals are written.
	// Default: ${EASEL_ROOT}/journals
	Journals string `yaml:"journals"`

	// Logs is where easeld writes its log file, in addition to
	// stderr. Empty disables the file sink.
	Logs string `yaml:"logs"`
}

// ServerConfig configures the easeld HTTP API.
type ServerConfig struct {
	// Listen is the address easeld binds. Default: 127.0.0.1:7474
	Listen string `yaml:"listen"`
}

// GenerationConfig configures the program generation service.
type GenerationConfig struct {
	// BaseURL is the OpenAI-compatible completion endpoint base.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	// Default: EASEL_API_KEY
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`
}

// SandboxConfig configures the program sandbox.
type SandboxConfig struct {
	// Binary is the easel-sandbox executable to run programs in a
	// separate process. Empty runs the sandbox in-process.
	Binary string `yaml:"binary"`

	// StepLimit bounds Starlark execution steps per run. Zero keeps
	// the built-in default.
	StepLimit uint64 `yaml:"step_limit"`

	// SyncInterval is the periodic scene broadcast interval, as a
	// duration string ("250ms", "1s"). Empty keeps the built-in
	// default.
	SyncInterval string `yaml:"sync_interval"`
}

// RepairConfig configures the automatic repair loop.
type RepairConfig struct {
	// Disabled turns automatic repair off; runtime errors are
	// surfaced but never sent back to the generation service.
	Disabled bool `yaml:"disabled"`

	// MaxAttempts bounds consecutive automated repairs. Zero keeps
	// the built-in default.
	MaxAttempts int `yaml:"max_attempts"`

	// GraceWindow is how long a program must run cleanly before it
	// is recorded as last known good, as a duration string ("2s").
	// Empty keeps the built-in default.
	GraceWindow string `yaml:"grace_window"`
}

// Interval parses the sandbox sync interval. Zero when unset.
func (c *SandboxConfig) Interval() (time.Duration, error) {
	return parseDuration(c.SyncInterval, "sandbox.sync_interval")
}

// Window parses the repair grace window. Zero when unset.
func (c *RepairConfig) Window() (time.Duration, error) {
	return parseDuration(c.GraceWindow, "repair.grace_window")
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", field)
	}
	return duration, nil
}

// Default returns the default configuration. It is the base onto which
// the config file is merged; a missing file is acceptable for local
// use, unlike most fields the generation endpoint has no default.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDirectory, ".local", "share", "easel")

	return &Config{
		Paths: PathsConfig{
			Root:     defaultRoot,
			Database: filepath.Join(defaultRoot, "projects.db"),
			Exports:  filepath.Join(defaultRoot, "exports"),
			Journals: filepath.Join(defaultRoot, "journals"),
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7474",
		},
		Generation: GenerationConfig{
			APIKeyEnv: "EASEL_API_KEY",
		},
	}
}

// Load loads configuration from the EASEL_CONFIG environment variable,
// falling back to defaults when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("EASEL_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// APIKey resolves the generation API key from the configured
// environment variable. Empty when unset.
func (c *Config) APIKey() string {
	if c.Generation.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Generation.APIKeyEnv)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"EASEL_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["EASEL_ROOT"] = c.Paths.Root // Dependent paths see the expanded root.

	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Exports = expandVars(c.Paths.Exports, vars)
	c.Paths.Journals = expandVars(c.Paths.Journals, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
	c.Sandbox.Binary = expandVars(c.Sandbox.Binary, vars)
}

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
	if c.Paths.Database == "" {
		errs = append(errs, fmt.Errorf("paths.database is required"))
	}
	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Repair.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("repair.max_attempts must not be negative"))
	}
	if _, err := c.Repair.Window(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Sandbox.Interval(); err != nil {
		errs = append(errs, err)
	}
	if c.Generation.BaseURL == "" && c.Generation.Model != "" {
		errs = append(errs, fmt.Errorf("generation.model is set but generation.base_url is empty"))
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
		c.Paths.Exports,
		c.Paths.Journals,
		filepath.Dir(c.Paths.Database),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
		}
	}
	return nil
}
