// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package config loads Snapvault configuration.
//
// Values are layered with koanf: built-in defaults, then an optional YAML
// file, then environment variables (highest priority). See LoadWithKoanf.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Install  InstallConfig  `koanf:"install"`
	Database DatabaseConfig `koanf:"database"`
	Backup   BackupConfig   `koanf:"backup"`
	Progress ProgressConfig `koanf:"progress"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// InstallConfig describes the installation being backed up.
type InstallConfig struct {
	// RootDir is the file tree that is archived and restored.
	RootDir string `koanf:"root_dir" validate:"required"`

	// Version is the installed system version recorded in every package.
	Version string `koanf:"version"`

	// PluginsDir is relative to RootDir. Each subdirectory is one plugin.
	PluginsDir string `koanf:"plugins_dir" validate:"omitempty,relpath"`

	// SelfPlugin is the name of the plugin hosting this engine. Its directory
	// is never archived so that a restore cannot roll the engine back.
	SelfPlugin string `koanf:"self_plugin"`
}

// DatabaseConfig controls dump and restore.
type DatabaseConfig struct {
	// Driver is "sqlite" or "duckdb".
	Driver string `koanf:"driver" validate:"oneof=sqlite duckdb"`
	DSN    string `koanf:"dsn" validate:"required"`

	// Strategy selects the dumper: native (in-process), external (command),
	// or auto (external when the command is available, native otherwise).
	Strategy       string   `koanf:"strategy" validate:"oneof=native external auto"`
	DumpCommand    []string `koanf:"dump_command"`
	RestoreCommand []string `koanf:"restore_command"`

	// PreservedTables survive the destructive reset before a replay.
	PreservedTables []string `koanf:"preserved_tables"`

	// StrictRestore aborts the replay on the first failing statement.
	StrictRestore bool `koanf:"strict_restore"`

	// KeepPreservedRows skips replayed statements that target a preserved table.
	KeepPreservedRows bool `koanf:"keep_preserved_rows"`

	FlushThresholdBytes int           `koanf:"flush_threshold_bytes" validate:"min=4096"`
	ConnectTimeout      time.Duration `koanf:"connect_timeout"`
}

// BackupConfig controls where snapshots live and what goes into them.
type BackupConfig struct {
	Dir        string `koanf:"dir" validate:"required"`
	ScratchDir string `koanf:"scratch_dir"`

	// Retention is the number of snapshots kept per kind.
	Retention int `koanf:"retention" validate:"min=1,max=1000"`

	// Exclusions are root-relative path prefixes never archived or overwritten.
	Exclusions []string `koanf:"exclusions" validate:"dive,relpath"`

	// ProtectedFiles are root-relative files never overwritten on restore.
	ProtectedFiles []string `koanf:"protected_files" validate:"dive,relpath"`

	CompressionLevel    int           `koanf:"compression_level" validate:"min=-1,max=9"`
	MaxExtractFileBytes int64         `koanf:"max_extract_file_bytes" validate:"min=0"`
	LockTimeout         time.Duration `koanf:"lock_timeout"`
}

// ProgressConfig controls progress reporting.
type ProgressConfig struct {
	// StateFile mirrors the last progress event for pollers. Empty disables it.
	StateFile string `koanf:"state_file"`

	// ReportPause bounds how long a reporter waits on a slow consumer.
	ReportPause time.Duration `koanf:"report_pause"`

	// MinWriteInterval paces non-terminal writes to the state file.
	MinWriteInterval time.Duration `koanf:"min_write_interval"`
}

// ScheduleConfig controls automatic backups under `snapvault serve`.
type ScheduleConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	PreferredHour  int           `koanf:"preferred_hour" validate:"min=-1,max=23"`
	Type           string        `koanf:"type" validate:"oneof=complete database files"`
	IncludePlugins bool          `koanf:"include_plugins"`
}

// ServerConfig controls the read-only status server.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr" validate:"omitempty,hostname_port"`

	// CORSOrigins lists dashboard origins allowed to read the status API.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// BackupDirAbs returns the backup directory resolved against the root dir.
func (c *Config) BackupDirAbs() string {
	return resolve(c.Install.RootDir, c.Backup.Dir)
}

// ScratchDirAbs returns the scratch parent directory, or "" for the OS default.
func (c *Config) ScratchDirAbs() string {
	if c.Backup.ScratchDir == "" {
		return ""
	}
	return resolve(c.Install.RootDir, c.Backup.ScratchDir)
}

// PluginsDirAbs returns the absolute plugins directory, or "" when unset.
func (c *Config) PluginsDirAbs() string {
	if c.Install.PluginsDir == "" {
		return ""
	}
	return filepath.Join(c.Install.RootDir, filepath.FromSlash(c.Install.PluginsDir))
}

// DatabaseFile returns the on-disk database path for file based drivers, or
// "" when the DSN is not a plain path.
func (c *Config) DatabaseFile() string {
	dsn := c.Database.DSN
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "?") {
		return ""
	}
	return resolve(c.Install.RootDir, dsn)
}

// DatabaseDSN returns the DSN with a relative database path resolved
// against the root dir.
func (c *Config) DatabaseDSN() string {
	if p := c.DatabaseFile(); p != "" {
		return p
	}
	return c.Database.DSN
}

// StateFileAbs returns the progress state file resolved against the root
// dir, or "" when disabled.
func (c *Config) StateFileAbs() string {
	if c.Progress.StateFile == "" {
		return ""
	}
	return resolve(c.Install.RootDir, c.Progress.StateFile)
}

// EnsureBackupDir creates the backup directory if needed.
func (c *Config) EnsureBackupDir() error {
	dir := c.BackupDirAbs()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
