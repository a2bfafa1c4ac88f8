// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
restore.go - Snapshot Restoration

Restores run through a fixed sequence of steps:

	locating            0-5%    find the artifacts serving the requested scope
	extracting          5-20%   unpack package and files archive into scratch
	restoring_files     20-55%  overlay the extracted tree onto the root
	restoring_database  55-95%  reset and replay the dump
	cleanup             95-100% remove the scratch directory

Locating:
  - complete prefers {name}_complete.zip and otherwise needs both
    {name}_db.sql.gz and {name}_files.zip
  - files and database prefer their standalone artifact and otherwise use
    the member of {name}_complete.zip

The files step and the database step each report their own success; a
complete restore succeeds only when both do. A failed file copy does not
stop the database replay. A failed extraction stops the restore.

The effective exclusions used when copying back are the same ones used when
archiving, so nothing the engine owns is ever overwritten. Protected files
are never overwritten either.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomtom215/snapvault/internal/archive"
	"github.com/tomtom215/snapvault/internal/bundle"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/metrics"
	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
	"github.com/tomtom215/snapvault/internal/sqldump"
	"github.com/tomtom215/snapvault/internal/validation"
)

// sources are the artifacts a restore reads. Package, when set, supplies
// whichever of database and files is empty.
type sources struct {
	Package  string
	Database string
	Files    string
}

func (s sources) primary() string {
	switch {
	case s.Package != "":
		return s.Package
	case s.Database != "":
		return s.Database
	default:
		return s.Files
	}
}

// RestoreComplete restores the file tree and then the database.
func (e *Engine) RestoreComplete(ctx context.Context, name string, opts RestoreOptions) (*RestoreResult, error) {
	return e.restoreNamed(ctx, name, ScopeComplete, opts)
}

// RestoreFiles restores only the file tree.
func (e *Engine) RestoreFiles(ctx context.Context, name string, opts RestoreOptions) (*RestoreResult, error) {
	return e.restoreNamed(ctx, name, ScopeFiles, opts)
}

// RestoreDatabase restores only the database.
func (e *Engine) RestoreDatabase(ctx context.Context, name string, opts RestoreOptions) (*RestoreResult, error) {
	return e.restoreNamed(ctx, name, ScopeDatabase, opts)
}

func (e *Engine) restoreNamed(ctx context.Context, name string, scope RestoreScope, opts RestoreOptions) (*RestoreResult, error) {
	if !validation.IsSnapshotName(name) {
		return nil, fmt.Errorf("%w: %q", retention.ErrInvalidName, name)
	}
	return e.restore(ctx, name, scope, opts, func() (sources, error) {
		return e.locate(name, scope)
	})
}

// RestoreFromPath restores from an artifact outside the snapshot naming
// scheme, such as an uploaded package. The artifact kind is taken from its
// name; an unrecognised .zip is inspected and treated as a package when it
// has package members and as a files archive otherwise.
func (e *Engine) RestoreFromPath(ctx context.Context, path string, scope RestoreScope, opts RestoreOptions) (*RestoreResult, error) {
	if scope == "" {
		scope = ScopeComplete
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact path: %w", err)
	}
	name := filepath.Base(abs)
	if _, base, ok := retention.KindFromName(name); ok {
		name = base
	}
	return e.restore(ctx, name, scope, opts, func() (sources, error) {
		return classifyArtifact(abs, scope)
	})
}

// locate finds the artifacts for name in the backup directory.
func (e *Engine) locate(name string, scope RestoreScope) (sources, error) {
	exists := func(kind retention.Kind) string {
		p := e.snapshotPath(name, kind)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
		return ""
	}
	pkg := exists(retention.KindComplete)
	db := exists(retention.KindDatabase)
	files := exists(retention.KindFiles)

	switch scope {
	case ScopeComplete:
		if pkg != "" {
			return sources{Package: pkg}, nil
		}
		if db != "" && files != "" {
			return sources{Database: db, Files: files}, nil
		}
		if db != "" || files != "" {
			return sources{}, fmt.Errorf("%w: %s has no complete package and only one standalone artifact", ErrSnapshotNotFound, name)
		}
	case ScopeFiles:
		if files != "" {
			return sources{Files: files}, nil
		}
		if pkg != "" {
			return sources{Package: pkg}, nil
		}
	case ScopeDatabase:
		if db != "" {
			return sources{Database: db}, nil
		}
		if pkg != "" {
			return sources{Package: pkg}, nil
		}
	}
	return sources{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
}

// classifyArtifact maps a single artifact path onto restore sources.
func classifyArtifact(path string, scope RestoreScope) (sources, error) {
	info, err := os.Stat(path)
	if err != nil {
		return sources{}, fmt.Errorf("%w: %v", ErrSnapshotNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return sources{}, fmt.Errorf("%w: %s is not a regular file", ErrSnapshotNotFound, path)
	}

	var src sources
	kind, _, _ := retention.KindFromName(filepath.Base(path))
	lower := strings.ToLower(path)
	switch {
	case kind == retention.KindComplete:
		src.Package = path
	case kind == retention.KindDatabase, strings.HasSuffix(lower, ".sql.gz"), strings.HasSuffix(lower, ".sql"):
		src.Database = path
	case kind == retention.KindFiles:
		src.Files = path
	case strings.HasSuffix(lower, ".zip"):
		isPkg, err := bundle.IsPackage(path)
		if err != nil {
			return sources{}, err
		}
		if isPkg {
			src.Package = path
		} else {
			src.Files = path
		}
	default:
		return sources{}, fmt.Errorf("%w: unrecognised artifact %s", ErrSnapshotNotFound, filepath.Base(path))
	}

	if src.Package != "" {
		return src, nil
	}
	if scope.includesDatabase() && src.Database == "" {
		return sources{}, fmt.Errorf("%w: %s has no database dump", ErrSnapshotNotFound, filepath.Base(path))
	}
	if scope.includesFiles() && src.Files == "" {
		return sources{}, fmt.Errorf("%w: %s has no files archive", ErrSnapshotNotFound, filepath.Base(path))
	}
	return src, nil
}

// restore runs the restore state machine under the lock.
func (e *Engine) restore(ctx context.Context, name string, scope RestoreScope, opts RestoreOptions, locate func() (sources, error)) (res *RestoreResult, err error) {
	op, err := e.begin(ctx, opts.Sink)
	if err != nil {
		return nil, err
	}
	result := &RestoreResult{BackupName: name, Scope: scope, OperationID: op.id}
	defer func() { op.end("restore_"+string(scope), result.Success) }()
	defer recoverPanic(op, func(msg string) {
		result.Success = false
		result.addError("%s", msg)
		result.Duration = e.now().Sub(op.started)
		res, err = result, nil
	})

	ctx = op.ctx
	tr := op.tracker
	logger := logging.Ctx(ctx)

	locating := tr.Span(progress.StepLocating, 0, 5)
	locating.Start(fmt.Sprintf("Locating snapshot %s", name))
	src, err := locate()
	if err != nil {
		result.addError("%v", err)
		result.Duration = e.now().Sub(op.started)
		tr.Fail(err.Error())
		return nil, err
	}
	result.Source = src.primary()
	locating.Finish(fmt.Sprintf("Restoring from %s", filepath.Base(result.Source)))

	logger.Info().
		Str("backup_name", name).
		Str("scope", string(scope)).
		Str("source", result.Source).
		Msg("Starting restore")

	scratch, err := e.makeScratch()
	if err != nil {
		result.addError("%v", err)
		e.finishRestore(op, result, "")
		return result, nil
	}
	defer e.removeScratch(op.ctx, scratch)

	e.runRestore(op, scope, opts, src, scratch, result)
	e.finishRestore(op, result, scratch)
	return result, nil
}

// runRestore extracts and restores into the live installation.
func (e *Engine) runRestore(op *operation, scope RestoreScope, opts RestoreOptions, src sources, scratch string, result *RestoreResult) {
	ctx := op.ctx
	tr := op.tracker
	extracting := tr.Span(progress.StepExtracting, 5, 20)
	extracting.Start("Extracting snapshot")

	dbFile, filesArchive := src.Database, src.Files
	if src.Package != "" {
		contents, err := e.bundles.Disassemble(ctx, src.Package, filepath.Join(scratch, "package"), extracting.Sub(0, 40))
		if contents != nil {
			result.Metadata = contents.Metadata
			for _, w := range contents.Warnings {
				result.addMessage("%s", w)
			}
		}
		if err != nil && !errors.Is(err, bundle.ErrEmptyPackage) {
			result.addError("package extraction failed: %v", err)
			return
		}
		if contents != nil {
			if dbFile == "" {
				dbFile = contents.DatabaseFile
			}
			if filesArchive == "" {
				filesArchive = contents.FilesFile
			}
		}
	}

	filesOK, dbOK := true, true

	extractedTree := filepath.Join(scratch, "files")
	if scope.includesFiles() {
		if filesArchive == "" {
			result.addError("snapshot has no files archive")
			filesOK = false
		} else if _, err := archive.Extract(ctx, filesArchive, extractedTree, e.cfg.Backup.MaxExtractFileBytes, extracting.Sub(40, 100)); err != nil {
			result.addError("files archive extraction failed: %v", err)
			return
		}
	}
	extracting.Finish("Snapshot extracted")

	if scope.includesFiles() && filesOK {
		filesOK = e.restoreFiles(ctx, tr, extractedTree, result)
	}

	if scope.includesDatabase() {
		if dbFile == "" {
			result.addError("snapshot has no database dump")
			dbOK = false
		} else {
			dbOK = e.restoreDatabase(ctx, tr, dbFile, opts, result)
		}
	}

	result.Success = filesOK && dbOK
}

// restoreFiles overlays the extracted tree onto the installation root.
func (e *Engine) restoreFiles(ctx context.Context, tr *progress.Tracker, tree string, result *RestoreResult) bool {
	span := tr.Span(progress.StepRestoringFiles, 20, 55)
	copied, err := archive.CopyTree(ctx, tree, e.cfg.Install.RootDir, e.baseExclusions(), e.cfg.Backup.ProtectedFiles, span)
	result.Files = copied
	if err != nil {
		result.addError("file restore failed: %v", err)
		return false
	}
	if !copied.Success {
		result.Errors = append(result.Errors, copied.Errors...)
		result.addError("file restore failed for %d files", copied.Failed)
		return false
	}
	result.addMessage("Files restored: %d copied, %d excluded, %d protected", copied.Copied, copied.Excluded, copied.Protected)
	return true
}

// restoreDatabase takes the optional safety snapshot, then resets and
// replays the live database from dumpFile.
func (e *Engine) restoreDatabase(ctx context.Context, tr *progress.Tracker, dumpFile string, opts RestoreOptions, result *RestoreResult) bool {
	span := tr.Span(progress.StepRestoringDatabase, 55, 95)
	span.Start("Restoring database")

	if opts.SafetyBackup {
		e.createSafetyBackup(ctx, result)
	}

	db, err := e.openDatabase(ctx)
	if err != nil {
		result.Database = &sqldump.RestoreResult{Error: err.Error()}
		result.addError("database restore failed: %v", err)
		return false
	}
	defer db.Close() //nolint:errcheck // best effort after restore

	restored, err := sqldump.NewRestorer(db, e.dumpOptions()).Restore(ctx, dumpFile, span.Sub(5, 100))
	result.Database = restored
	if restored != nil {
		metrics.RecordReplayErrors(restored.FailedStatements)
	}
	if err != nil {
		result.addError("database restore failed: %v", err)
		return false
	}
	if restored.FailedStatements > 0 {
		result.addMessage("Database restored with %d failed statements", restored.FailedStatements)
	} else {
		result.addMessage("Database restored: %d statements", restored.Statements)
	}
	return restored.Success
}

// createSafetyBackup snapshots the live database before it is replaced.
// Failure is reported as a message and does not stop the restore.
func (e *Engine) createSafetyBackup(ctx context.Context, result *RestoreResult) {
	safety := &CreateResult{BackupType: TypeDatabase, OperationID: result.OperationID}
	opts := CreateOptions{Type: TypeDatabase, skipPrune: true}
	if err := e.create(ctx, progress.NewTracker(progress.Nop, result.OperationID), opts, safety); err != nil || !safety.Success {
		msg := strings.Join(safety.Errors, "; ")
		if err != nil {
			msg = err.Error()
		}
		result.addMessage("Safety backup failed: %s", msg)
		return
	}
	result.SafetyBackup = safety.BackupName
	result.addMessage("Safety backup %s created", safety.BackupName)
}

// removeScratch deletes a restore's staging directory. Removing a missing
// directory is not an error, so it is also deferred for the panic path.
func (e *Engine) removeScratch(ctx context.Context, scratch string) {
	if err := os.RemoveAll(scratch); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("dir", scratch).Msg("Failed to remove scratch directory")
	}
}

// finishRestore removes scratch and emits the terminal event.
func (e *Engine) finishRestore(op *operation, result *RestoreResult, scratch string) {
	tr := op.tracker
	tr.Span(progress.StepCleanup, 95, 100).Start("Removing scratch directory")
	if scratch != "" {
		e.removeScratch(op.ctx, scratch)
	}
	result.Duration = e.now().Sub(op.started)

	event := logging.Ctx(op.ctx).Info()
	if !result.Success {
		event = logging.Ctx(op.ctx).Error()
	}
	event.Str("backup_name", result.BackupName).
		Str("scope", string(result.Scope)).
		Bool("success", result.Success).
		Dur("duration", result.Duration).
		Strs("errors", result.Errors).
		Msg("Restore finished")

	if result.Success {
		tr.Complete(fmt.Sprintf("Snapshot %s restored", result.BackupName))
		return
	}
	tr.Fail(fmt.Sprintf("Restore of %s failed", result.BackupName))
}
