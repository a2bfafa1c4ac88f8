// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
engine.go - Backup Engine Core

This file holds the Engine type and the plumbing shared by create, restore
and management operations.

Every mutating operation:
 1. Takes the machine-wide advisory lock for the backup directory
 2. Builds a progress tracker feeding the caller's sink, the log, the
    progress state file and the progress gauge
 3. Recovers panics into a failed result with a generic error entry
 4. Records Prometheus metrics for the finished operation

Exclusions:
The effective exclusion set is computed per call from the configured
exclusions plus the locations the engine itself owns (backup directory,
scratch directory, progress state file, live database file and its journals,
the engine's own plugin directory). The same set is applied when archiving
and when copying a restore back.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/tomtom215/snapvault/internal/archive"
	"github.com/tomtom215/snapvault/internal/bundle"
	"github.com/tomtom215/snapvault/internal/config"
	"github.com/tomtom215/snapvault/internal/database"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/metrics"
	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
	"github.com/tomtom215/snapvault/internal/sqldump"
)

// Engine creates, restores and manages snapshots of one installation.
type Engine struct {
	cfg      *config.Config
	index    *Index
	archiver *archive.Archiver
	bundles  *bundle.Manager
	now      func() time.Time
}

// New returns an engine for cfg and makes sure the backup directory exists.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}
	if err := cfg.EnsureBackupDir(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		index:    NewIndex(filepath.Join(cfg.BackupDirAbs(), retention.IndexFile)),
		archiver: archive.NewArchiver(cfg.Backup.CompressionLevel),
		bundles:  bundle.NewManager(cfg.Backup.MaxExtractFileBytes),
		now:      time.Now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Index returns the metadata index.
func (e *Engine) Index() *Index {
	return e.index
}

// operation is the per-call state shared by create and restore.
type operation struct {
	id      string
	ctx     context.Context
	tracker *progress.Tracker
	started time.Time
	release func()
}

// begin takes the lock and sets up progress reporting for one operation.
func (e *Engine) begin(ctx context.Context, sink progress.Sink) (*operation, error) {
	id := logging.OperationIDFromContext(ctx)
	if id == "" {
		id = logging.GenerateOperationID()
		ctx = logging.ContextWithOperationID(ctx, id)
	}

	release, err := acquireLock(ctx, e.cfg.BackupDirAbs(), e.cfg.Backup.LockTimeout)
	if err != nil {
		return nil, err
	}

	sinks := []progress.Sink{
		sink,
		progress.NewLogSink(logging.WithComponent("progress")),
		progress.SinkFunc(func(ev progress.Event) { metrics.SetProgress(ev.Percent) }),
	}
	if stateFile := e.cfg.StateFileAbs(); stateFile != "" {
		sinks = append(sinks, progress.NewFileSink(stateFile, e.cfg.Progress.MinWriteInterval))
	}

	metrics.TrackOperation(true)
	return &operation{
		id:      id,
		ctx:     ctx,
		tracker: progress.NewTracker(progress.Multi(sinks...), id),
		started: e.now(),
		release: release,
	}, nil
}

// end releases the lock and records metrics.
func (op *operation) end(name string, success bool) {
	metrics.TrackOperation(false)
	metrics.RecordOperation(name, time.Since(op.started), success)
	op.release()
}

// recoverPanic converts a panic into an error entry and a terminal event.
func recoverPanic(op *operation, record func(string)) {
	r := recover()
	if r == nil {
		return
	}
	logging.Ctx(op.ctx).Error().
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("Recovered from panic in backup engine")
	record(ErrInternal.Error())
	op.tracker.Fail("Operation failed with an internal error")
}

// openDatabase connects to the live database.
func (e *Engine) openDatabase(ctx context.Context) (*database.DB, error) {
	return database.Open(ctx, database.Config{
		Driver:         e.cfg.Database.Driver,
		DSN:            e.cfg.DatabaseDSN(),
		ConnectTimeout: e.cfg.Database.ConnectTimeout,
	})
}

// dumpOptions maps the database configuration onto sqldump options.
func (e *Engine) dumpOptions() sqldump.Options {
	db := e.cfg.Database
	return sqldump.Options{
		Strategy:         db.Strategy,
		DumpCommand:      db.DumpCommand,
		RestoreCommand:   db.RestoreCommand,
		DSN:              e.cfg.DatabaseDSN(),
		FlushThreshold:   db.FlushThresholdBytes,
		CompressionLevel: e.cfg.Backup.CompressionLevel,
		Restore: sqldump.RestoreOptions{
			PreservedTables:   db.PreservedTables,
			Strict:            db.StrictRestore,
			KeepPreservedRows: db.KeepPreservedRows,
		},
	}
}

// baseExclusions is the set applied to both archiving and restore copies.
func (e *Engine) baseExclusions() archive.ExclusionSet {
	root := e.cfg.Install.RootDir
	var owned []string
	add := func(p string) {
		if p == "" {
			return
		}
		if rel := archive.RelativeTo(root, p); rel != "" {
			owned = append(owned, rel)
		}
	}

	add(e.cfg.BackupDirAbs())
	add(e.cfg.ScratchDirAbs())
	add(e.cfg.StateFileAbs())
	if db := e.cfg.DatabaseFile(); db != "" {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal", ".wal"} {
			add(db + suffix)
		}
	}
	if plugins := e.cfg.PluginsDirAbs(); plugins != "" && e.cfg.Install.SelfPlugin != "" {
		add(filepath.Join(plugins, e.cfg.Install.SelfPlugin))
	}

	return archive.Merge(archive.NewExclusionSet(e.cfg.Backup.Exclusions...), archive.NewExclusionSet(owned...))
}

// createExclusions extends the base set with the plugins directory when
// plugins are not wanted.
func (e *Engine) createExclusions(includePlugins bool) archive.ExclusionSet {
	base := e.baseExclusions()
	if includePlugins {
		return base
	}
	if rel := archive.RelativeTo(e.cfg.Install.RootDir, e.cfg.PluginsDirAbs()); rel != "" {
		return base.With(rel)
	}
	return base
}

// makeScratch creates a private staging directory for one restore.
func (e *Engine) makeScratch() (string, error) {
	parent := e.cfg.ScratchDirAbs()
	if parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "snapvault-restore-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

func (e *Engine) snapshotPath(base string, kind retention.Kind) string {
	return filepath.Join(e.cfg.BackupDirAbs(), retention.FileName(base, kind))
}
