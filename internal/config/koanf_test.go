// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// isolate points the loader at an empty directory so that no stray
// snapvault.yaml in the working tree leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Backup.Retention != DefaultRetention {
		t.Errorf("expected retention %d, got %d", DefaultRetention, cfg.Backup.Retention)
	}
	if cfg.Database.FlushThresholdBytes != DefaultFlushThreshold {
		t.Errorf("expected flush threshold %d, got %d", DefaultFlushThreshold, cfg.Database.FlushThresholdBytes)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if !reflect.DeepEqual(cfg.Database.PreservedTables, []string{"users", "user_sessions", "auth_tokens"}) {
		t.Errorf("unexpected preserved tables: %v", cfg.Database.PreservedTables)
	}
	if cfg.Progress.ReportPause != 25*time.Millisecond {
		t.Errorf("expected 25ms report pause, got %s", cfg.Progress.ReportPause)
	}
	if cfg.Database.StrictRestore {
		t.Error("expected best-effort restore by default")
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := isolate(t)

	yaml := `
install:
  root_dir: /srv/app
  version: "4.2.0"
backup:
  dir: /var/backups/app
  retention: 9
  exclusions:
    - cache
    - tmp/uploads
database:
  strict_restore: true
`
	path := filepath.Join(dir, "snapvault.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SNAPVAULT_RETENTION", "3")
	t.Setenv("SNAPVAULT_PROTECTED_FILES", ".env, config/local.yaml ,")
	t.Setenv("SNAPVAULT_LOCK_TIMEOUT", "90s")
	t.Setenv("UNRELATED_VAR", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Install.RootDir != "/srv/app" || cfg.Install.Version != "4.2.0" {
		t.Errorf("file values not applied: %+v", cfg.Install)
	}
	if cfg.Backup.Retention != 3 {
		t.Errorf("expected env retention 3 to override file, got %d", cfg.Backup.Retention)
	}
	if !reflect.DeepEqual(cfg.Backup.Exclusions, []string{"cache", "tmp/uploads"}) {
		t.Errorf("unexpected exclusions: %v", cfg.Backup.Exclusions)
	}
	if !reflect.DeepEqual(cfg.Backup.ProtectedFiles, []string{".env", "config/local.yaml"}) {
		t.Errorf("unexpected protected files: %v", cfg.Backup.ProtectedFiles)
	}
	if cfg.Backup.LockTimeout != 90*time.Second {
		t.Errorf("expected 90s lock timeout, got %s", cfg.Backup.LockTimeout)
	}
	if !cfg.Database.StrictRestore {
		t.Error("expected strict restore from file")
	}
	if got := cfg.BackupDirAbs(); got != "/var/backups/app" {
		t.Errorf("expected absolute backup dir to be kept, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "Driver"},
		{"zero retention", func(c *Config) { c.Backup.Retention = 0 }, "Retention"},
		{"absolute exclusion", func(c *Config) { c.Backup.Exclusions = []string{"/etc"} }, "relative path"},
		{"external without command", func(c *Config) { c.Database.Strategy = "external" }, "dump_command"},
		{"schedule too frequent", func(c *Config) {
			c.Schedule.Enabled = true
			c.Schedule.Interval = time.Minute
		}, "schedule.interval"},
		{"bad listen addr", func(c *Config) { c.Server.ListenAddr = "nope" }, "host:port"},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitWindow = 0 }, "rate_limit_window"},
		{"rate limit disabled", func(c *Config) {
			c.Server.RateLimitRequests = 0
			c.Server.RateLimitWindow = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := defaultConfig()
	cfg.Install.RootDir = "/srv/app"

	if got := cfg.BackupDirAbs(); got != filepath.Join("/srv/app", "backups") {
		t.Errorf("BackupDirAbs() = %s", got)
	}
	if got := cfg.PluginsDirAbs(); got != filepath.Join("/srv/app", "plugins") {
		t.Errorf("PluginsDirAbs() = %s", got)
	}
	if got := cfg.ScratchDirAbs(); got != "" {
		t.Errorf("expected empty scratch dir, got %s", got)
	}
	if got := cfg.DatabaseDSN(); got != filepath.Join("/srv/app", "data", "app.db") {
		t.Errorf("DatabaseDSN() = %s", got)
	}

	cfg.Database.DSN = "file:app.db?mode=ro"
	if cfg.DatabaseFile() != "" || cfg.DatabaseDSN() != "file:app.db?mode=ro" {
		t.Errorf("URI DSN should be passed through, got %q / %q", cfg.DatabaseFile(), cfg.DatabaseDSN())
	}
}
