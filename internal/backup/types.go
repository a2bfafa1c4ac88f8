// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/snapvault/internal/archive"
	"github.com/tomtom215/snapvault/internal/bundle"
	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
	"github.com/tomtom215/snapvault/internal/sqldump"
)

// BackupType selects what a create captures.
type BackupType string

const (
	// TypeComplete captures the database and the file tree and bundles both
	// into a unified package.
	TypeComplete BackupType = "complete"

	// TypeDatabase captures only the database dump.
	TypeDatabase BackupType = "database"

	// TypeFiles captures only the file tree.
	TypeFiles BackupType = "files"
)

// IsValid returns true if the backup type is valid
func (t BackupType) IsValid() bool {
	switch t {
	case TypeComplete, TypeDatabase, TypeFiles:
		return true
	default:
		return false
	}
}

func (t BackupType) includesDatabase() bool { return t == TypeComplete || t == TypeDatabase }
func (t BackupType) includesFiles() bool    { return t == TypeComplete || t == TypeFiles }

// ParseBackupType parses s, defaulting to TypeComplete when empty.
func ParseBackupType(s string) (BackupType, error) {
	if s == "" {
		return TypeComplete, nil
	}
	t := BackupType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid backup type %q: must be one of complete, database, files", s)
	}
	return t, nil
}

// RestoreScope selects what a restore writes back.
type RestoreScope string

const (
	ScopeComplete RestoreScope = "complete"
	ScopeFiles    RestoreScope = "files"
	ScopeDatabase RestoreScope = "database"
)

func (s RestoreScope) includesDatabase() bool { return s == ScopeComplete || s == ScopeDatabase }
func (s RestoreScope) includesFiles() bool    { return s == ScopeComplete || s == ScopeFiles }

var (
	// ErrLocked is returned when another operation holds the backup directory.
	ErrLocked = errors.New("another backup or restore operation is running")

	// ErrSnapshotNotFound is returned when no artifact can serve a restore.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotExists is returned when an explicit name is already in use.
	ErrSnapshotExists = errors.New("snapshot already exists")

	// ErrInternal replaces panics recovered at the engine boundary.
	ErrInternal = errors.New("internal error")
)

// CreateOptions configures a create.
type CreateOptions struct {
	// Name is the snapshot base name. Empty generates a timestamped name.
	Name string

	// Type defaults to TypeComplete.
	Type BackupType

	// IncludePlugins archives the plugins directory. The engine's own plugin
	// directory is never archived.
	IncludePlugins bool

	// Sink receives progress in addition to the engine's own sinks.
	Sink progress.Sink

	skipPrune bool
}

// CreateResult is the composite result of one create. It is also the record
// stored in the metadata index.
type CreateResult struct {
	Success     bool                   `json:"success"`
	BackupName  string                 `json:"backup_name"`
	BackupType  BackupType             `json:"backup_type"`
	OperationID string                 `json:"operation_id"`
	CreatedAt   time.Time              `json:"created_at"`
	Duration    time.Duration          `json:"duration"`
	VersionInfo bundle.VersionInfo     `json:"version_info"`
	Database    *sqldump.DumpResult    `json:"database,omitempty"`
	Files       *archive.ArchiveResult `json:"files,omitempty"`
	Package     *bundle.PackageResult  `json:"package,omitempty"`
	Retention   *retention.PruneResult `json:"retention,omitempty"`
	Messages    []string               `json:"messages,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
}

func (r *CreateResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *CreateResult) addMessage(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// RestoreOptions configures a restore.
type RestoreOptions struct {
	// Sink receives progress in addition to the engine's own sinks.
	Sink progress.Sink

	// SafetyBackup takes a database snapshot of the live system before the
	// database is replaced.
	SafetyBackup bool
}

// RestoreResult is the composite result of one restore.
type RestoreResult struct {
	Success      bool                   `json:"success"`
	BackupName   string                 `json:"backup_name"`
	Scope        RestoreScope           `json:"scope"`
	OperationID  string                 `json:"operation_id"`
	Source       string                 `json:"source"`
	Metadata     *bundle.Metadata       `json:"metadata,omitempty"`
	Files        *archive.CopyResult    `json:"files,omitempty"`
	Database     *sqldump.RestoreResult `json:"database,omitempty"`
	SafetyBackup string                 `json:"safety_backup,omitempty"`
	Duration     time.Duration          `json:"duration"`
	Messages     []string               `json:"messages,omitempty"`
	Errors       []string               `json:"errors,omitempty"`
}

func (r *RestoreResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *RestoreResult) addMessage(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}
