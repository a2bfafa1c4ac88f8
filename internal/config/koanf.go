// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when SNAPVAULT_CONFIG is unset.
var DefaultConfigPaths = []string{
	"snapvault.yaml",
	"snapvault.yml",
	"/etc/snapvault/snapvault.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SNAPVAULT_CONFIG"

// DefaultRetention is the number of snapshots kept per kind.
const DefaultRetention = 5

// DefaultFlushThreshold is the dump write buffer size.
const DefaultFlushThreshold = 1 << 20

// defaultConfig returns the values applied before the config file and env.
func defaultConfig() *Config {
	return &Config{
		Install: InstallConfig{
			RootDir:    ".",
			Version:    "unknown",
			PluginsDir: "plugins",
			SelfPlugin: "snapvault",
		},
		Database: DatabaseConfig{
			Driver:              "sqlite",
			DSN:                 "data/app.db",
			Strategy:            "native",
			PreservedTables:     []string{"users", "user_sessions", "auth_tokens"},
			StrictRestore:       false,
			KeepPreservedRows:   false,
			FlushThresholdBytes: DefaultFlushThreshold,
			ConnectTimeout:      10 * time.Second,
		},
		Backup: BackupConfig{
			Dir:                 "backups",
			Retention:           DefaultRetention,
			Exclusions:          []string{".git", ".svn", ".hg", "node_modules"},
			ProtectedFiles:      []string{".env"},
			CompressionLevel:    6,
			MaxExtractFileBytes: 4 << 30,
			LockTimeout:         5 * time.Second,
		},
		Progress: ProgressConfig{
			StateFile:        "backups/.progress.json",
			ReportPause:      25 * time.Millisecond,
			MinWriteInterval: 250 * time.Millisecond,
		},
		Schedule: ScheduleConfig{
			Enabled:        false,
			Interval:       24 * time.Hour,
			PreferredHour:  3,
			Type:           "complete",
			IncludePlugins: true,
		},
		Server: ServerConfig{
			ListenAddr:        "127.0.0.1:9470",
			CORSOrigins:       []string{},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration with precedence ENV > file > defaults,
// then validates it.
func LoadWithKoanf() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile loads configuration from an explicit YAML file plus env overrides.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SNAPVAULT_BACKUP_DIR -> backup.dir
	if err := k.Load(env.Provider("SNAPVAULT_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they come from env.
var sliceConfigPaths = []string{
	"database.dump_command",
	"database.restore_command",
	"database.preserved_tables",
	"backup.exclusions",
	"backup.protected_files",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps SNAPVAULT_-prefixed variables (prefix included,
// lower-cased) to config keys. Unmapped variables are ignored.
var envMappings = map[string]string{
	"snapvault_root_dir":    "install.root_dir",
	"snapvault_version":     "install.version",
	"snapvault_plugins_dir": "install.plugins_dir",
	"snapvault_self_plugin": "install.self_plugin",

	"snapvault_db_driver":             "database.driver",
	"snapvault_db_dsn":                "database.dsn",
	"snapvault_db_strategy":           "database.strategy",
	"snapvault_db_dump_command":       "database.dump_command",
	"snapvault_db_restore_command":    "database.restore_command",
	"snapvault_db_preserved_tables":   "database.preserved_tables",
	"snapvault_db_strict_restore":     "database.strict_restore",
	"snapvault_db_keep_preserved":     "database.keep_preserved_rows",
	"snapvault_db_flush_threshold":    "database.flush_threshold_bytes",
	"snapvault_db_connect_timeout":    "database.connect_timeout",
	"snapvault_backup_dir":            "backup.dir",
	"snapvault_scratch_dir":           "backup.scratch_dir",
	"snapvault_retention":             "backup.retention",
	"snapvault_exclusions":            "backup.exclusions",
	"snapvault_protected_files":       "backup.protected_files",
	"snapvault_compression_level":     "backup.compression_level",
	"snapvault_max_extract_bytes":     "backup.max_extract_file_bytes",
	"snapvault_lock_timeout":          "backup.lock_timeout",
	"snapvault_progress_file":         "progress.state_file",
	"snapvault_progress_pause":        "progress.report_pause",
	"snapvault_progress_min_interval": "progress.min_write_interval",
	"snapvault_schedule_enabled":      "schedule.enabled",
	"snapvault_schedule_interval":     "schedule.interval",
	"snapvault_schedule_hour":         "schedule.preferred_hour",
	"snapvault_schedule_type":         "schedule.type",
	"snapvault_schedule_plugins":      "schedule.include_plugins",
	"snapvault_listen_addr":           "server.listen_addr",
	"snapvault_cors_origins":          "server.cors_origins",
	"snapvault_rate_limit":            "server.rate_limit_requests",
	"snapvault_rate_limit_window":     "server.rate_limit_window",
	"snapvault_shutdown_timeout":      "server.shutdown_timeout",
	"snapvault_log_level":             "logging.level",
	"snapvault_log_format":            "logging.format",
	"snapvault_log_caller":            "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
