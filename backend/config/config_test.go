// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "test-encryption-key")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
}

func TestLoadDefaults(t *testing.T) {
	withSecrets(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Type != "postgres" {
		t.Errorf("store type = %q, want postgres", cfg.Store.Type)
	}
	if cfg.Scheduler.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %s, want 1m", cfg.Scheduler.SweepInterval)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	withSecrets(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
store:
  type: memory
security:
  max_password_attempts: 5
scheduler:
  sweep_interval: 30s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("store type = %q, want memory", cfg.Store.Type)
	}
	if cfg.Security.MaxPasswordAttempts != 5 {
		t.Errorf("MaxPasswordAttempts = %d, want 5", cfg.Security.MaxPasswordAttempts)
	}
	if cfg.Scheduler.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %s, want 30s", cfg.Scheduler.SweepInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	withSecrets(t)
	t.Setenv("PORT", "7070")
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("SWEEP_INTERVAL", "5m")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, env should win over file", cfg.Server.Port)
	}
	if cfg.Scheduler.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %s, want 5m from env", cfg.Scheduler.SweepInterval)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	withSecrets(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing encryption key", func(c *Config) { c.Security.EncryptionKey = "" }},
		{"missing jwt secret", func(c *Config) { c.Security.JWTSecret = "" }},
		{"bad store type", func(c *Config) { c.Store.Type = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Store.PostgresDSN = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero sweep interval", func(c *Config) { c.Scheduler.SweepInterval = 0 }},
		{"zero attempt budget", func(c *Config) { c.Security.MaxPasswordAttempts = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.Security.EncryptionKey = "k"
		cfg.Security.JWTSecret = "s"
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate passed, want error", tc.name)
		}
	}
}
