// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Listen != "127.0.0.1:7474" {
		t.Errorf("expected listen=127.0.0.1:7474, got %s", cfg.Server.Listen)
	}
	if cfg.Generation.APIKeyEnv != "EASEL_API_KEY" {
		t.Errorf("expected api_key_env=EASEL_API_KEY, got %s", cfg.Generation.APIKeyEnv)
	}
	if cfg.Paths.Database != filepath.Join(cfg.Paths.Root, "projects.db") {
		t.Errorf("expected database under root, got %s", cfg.Paths.Database)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadWithoutEaselConfigUsesDefaults(t *testing.T) {
	t.Setenv("EASEL_CONFIG", "")
	os.Unsetenv("EASEL_CONFIG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7474" {
		t.Errorf("expected default listen address, got %s", cfg.Server.Listen)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "easel.yaml")
	configContent := `
paths:
  root: /test/easel
server:
  listen: "0.0.0.0:9000"
generation:
  base_url: https://api.example.com
  model: draftsman-large
sandbox:
  step_limit: 10000000
  sync_interval: 250ms
repair:
  max_attempts: 5
  grace_window: 5s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("EASEL_CONFIG", configPath)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Paths.Root != "/test/easel" {
		t.Errorf("expected root=/test/easel, got %s", cfg.Paths.Root)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("expected listen=0.0.0.0:9000, got %s", cfg.Server.Listen)
	}
	if cfg.Generation.Model != "draftsman-large" {
		t.Errorf("expected model=draftsman-large, got %s", cfg.Generation.Model)
	}
	if cfg.Sandbox.StepLimit != 10_000_000 {
		t.Errorf("expected step_limit=10000000, got %d", cfg.Sandbox.StepLimit)
	}
	interval, err := cfg.Sandbox.Interval()
	if err != nil || interval != 250*time.Millisecond {
		t.Errorf("Interval() = %v, %v, want 250ms", interval, err)
	}
	window, err := cfg.Repair.Window()
	if err != nil || window != 5*time.Second {
		t.Errorf("Window() = %v, %v, want 5s", window, err)
	}
	if cfg.Repair.MaxAttempts != 5 {
		t.Errorf("expected max_attempts=5, got %d", cfg.Repair.MaxAttempts)
	}
	// Unset fields keep their defaults.
	if cfg.Generation.APIKeyEnv != "EASEL_API_KEY" {
		t.Errorf("expected default api_key_env, got %s", cfg.Generation.APIKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config failed validation: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestExpandVariables(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "easel.yaml")
	configContent := `
paths:
  root: /srv/easel
  database: ${EASEL_ROOT}/db/projects.db
  exports: ${EASEL_EXPORTS:-/srv/easel/exports}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	os.Unsetenv("EASEL_EXPORTS")
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Paths.Database != "/srv/easel/db/projects.db" {
		t.Errorf("expected ${EASEL_ROOT} expansion, got %s", cfg.Paths.Database)
	}
	if cfg.Paths.Exports != "/srv/easel/exports" {
		t.Errorf("expected default-value expansion, got %s", cfg.Paths.Exports)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Listen = ""
	cfg.Repair.MaxAttempts = -1
	cfg.Repair.GraceWindow = "sideways"
	cfg.Generation.Model = "draftsman-large" // without a base_url

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"server.listen", "repair.max_attempts", "repair.grace_window", "generation.model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	t.Setenv("EASEL_API_KEY", "sk-test")
	if key := cfg.APIKey(); key != "sk-test" {
		t.Errorf("APIKey() = %q, want sk-test", key)
	}

	cfg.Generation.APIKeyEnv = ""
	if key := cfg.APIKey(); key != "" {
		t.Errorf("APIKey() with no env name = %q, want empty", key)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "easel")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.Database = filepath.Join(root, "db", "projects.db")
	cfg.Paths.Exports = filepath.Join(root, "exports")
	cfg.Paths.Journals = filepath.Join(root, "journals")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() failed: %v", err)
	}
	for _, directory := range []string{root, filepath.Join(root, "db"), cfg.Paths.Exports, cfg.Paths.Journals} {
		info, err := os.Stat(directory)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", directory, err)
		}
	}
}
