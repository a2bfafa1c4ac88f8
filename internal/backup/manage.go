// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"context"
	"time"

	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/metrics"
	"github.com/tomtom215/snapvault/internal/retention"
)

// List returns every complete snapshot file, newest first.
func (e *Engine) List() ([]retention.Snapshot, error) {
	return retention.Scan(e.cfg.BackupDirAbs())
}

// ListGrouped returns snapshots grouped by base name, newest group first.
func (e *Engine) ListGrouped() ([]*retention.Group, error) {
	snapshots, err := e.List()
	if err != nil {
		return nil, err
	}
	return retention.GroupSnapshots(snapshots), nil
}

// DeleteGroup removes every snapshot file sharing base name name. The
// metadata index keeps its record.
func (e *Engine) DeleteGroup(ctx context.Context, name string) (*retention.DeleteResult, error) {
	release, err := acquireLock(ctx, e.cfg.BackupDirAbs(), e.cfg.Backup.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	result, err := retention.DeleteGroup(e.cfg.BackupDirAbs(), name)
	if err != nil {
		metrics.RecordOperation("delete", time.Since(started), false)
		return nil, err
	}
	metrics.RecordOperation("delete", time.Since(started), len(result.Errors) == 0)
	logging.Ctx(ctx).Debug().Str("backup_name", name).Int("deleted", len(result.Deleted)).Msg("Delete finished")
	return result, nil
}

// Prune applies the retention limit now.
func (e *Engine) Prune(ctx context.Context) (*retention.PruneResult, error) {
	release, err := acquireLock(ctx, e.cfg.BackupDirAbs(), e.cfg.Backup.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	result, err := retention.Prune(e.cfg.BackupDirAbs(), e.cfg.Backup.Retention)
	if err != nil {
		metrics.RecordOperation("prune", time.Since(started), false)
		return nil, err
	}
	metrics.RecordOperation("prune", time.Since(started), len(result.Errors) == 0)
	metrics.RecordRetention(len(result.Deleted))
	return result, nil
}

// PrunePreview reports what Prune would keep and delete.
func (e *Engine) PrunePreview() (*retention.Preview, error) {
	snapshots, err := e.List()
	if err != nil {
		return nil, err
	}
	return retention.Plan(snapshots, e.cfg.Backup.Retention), nil
}
