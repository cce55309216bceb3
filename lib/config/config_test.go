// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/depot/lib/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /srv/depot
  state: /srv/depot/state
  payloads: /srv/depot/payloads
  socket: /run/depot.sock
limits:
  max_payload_bytes: 1048576
policy:
  auto_share_on_lookup: true
logging:
  level: debug
`)
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/srv/depot" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
	if cfg.Paths.Socket != "/run/depot.sock" {
		t.Errorf("socket = %q", cfg.Paths.Socket)
	}
	if cfg.Limits.MaxPayloadBytes != 1<<20 {
		t.Errorf("max_payload_bytes = %d", cfg.Limits.MaxPayloadBytes)
	}
	if !cfg.Policy.AutoShareOnLookup {
		t.Error("auto_share_on_lookup not applied")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	// Unspecified fields keep their defaults.
	if cfg.Limits.TraversalLimit != 100000 {
		t.Errorf("traversal_limit = %d, want default", cfg.Limits.TraversalLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestVariableExpansion(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /srv/depot
  state: ${DEPOT_ROOT}/state
  payloads: ${DEPOT_ROOT}/payloads
  socket: ${DEPOT_ROOT}/depot.sock
`)
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.State != "/srv/depot/state" {
		t.Errorf("state = %q", cfg.Paths.State)
	}
	if cfg.Paths.Socket != "/srv/depot/depot.sock" {
		t.Errorf("socket = %q", cfg.Paths.Socket)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.TraversalLimit = 0
	cfg.Logging.Level = "verbose"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted bad config")
	}
	if !strings.Contains(err.Error(), "traversal_limit") {
		t.Errorf("error does not mention traversal_limit: %v", err)
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error does not mention logging.level: %v", err)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("DEPOT_CONFIG", "")
	if _, err := config.Load(); err == nil {
		t.Error("Load succeeded without DEPOT_CONFIG")
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "paths:\n  root: /srv/depot\n")
	t.Setenv("DEPOT_CONFIG", path)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != "/srv/depot" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
}
