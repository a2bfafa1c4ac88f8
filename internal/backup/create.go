// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
create.go - Snapshot Creation

Create drives the snapshot state machine:

	gathering_metadata  0-5%    version info, snapshot name
	dumping_database    5-45%   {name}_db.sql.gz
	archiving_files     45-85%  {name}_files.zip
	assembling_package  85-95%  {name}_complete.zip (complete type only)
	pruning             95-99%  retention per kind
	complete            100%

A database failure aborts before any file is archived. A files failure
keeps the database artifact on disk but fails the result. A package failure
is recorded and leaves the standalone artifacts in place; once a package is
written its standalone artifacts are removed. Pruning and the index update
only follow a create whose database and files stages succeeded, and their
failures never change the success flag.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/snapvault/internal/bundle"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/metrics"
	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
	"github.com/tomtom215/snapvault/internal/sqldump"
	"github.com/tomtom215/snapvault/internal/validation"
)

// Name prefixes for generated snapshot names.
const (
	autoNamePrefix   = "snapshot"
	safetyNamePrefix = "pre-restore"
	nameTimeFormat   = "20060102-150405"
)

// Create takes a snapshot. Expected failures are reported through the
// result; the error is non-nil only when the create could not start
// (invalid options, lock contention, name collision).
func (e *Engine) Create(ctx context.Context, opts CreateOptions) (result *CreateResult, err error) {
	if opts.Type == "" {
		opts.Type = TypeComplete
	}
	if !opts.Type.IsValid() {
		return nil, fmt.Errorf("invalid backup type %q", opts.Type)
	}
	if opts.Name != "" && !validation.IsSnapshotName(opts.Name) {
		return nil, fmt.Errorf("%w: %q", retention.ErrInvalidName, opts.Name)
	}

	op, err := e.begin(ctx, opts.Sink)
	if err != nil {
		return nil, err
	}
	res := &CreateResult{BackupType: opts.Type, OperationID: op.id}
	defer func() { op.end("create", res.Success) }()
	defer recoverPanic(op, func(msg string) {
		res.Success = false
		res.addError("%s", msg)
		res.Duration = e.now().Sub(op.started)
		result, err = res, nil
	})

	if err := e.create(op.ctx, op.tracker, opts, res); err != nil {
		op.tracker.Fail(err.Error())
		return nil, err
	}
	return res, nil
}

// create runs the state machine without taking the lock. The returned error
// is reserved for failures that leave nothing to report.
func (e *Engine) create(ctx context.Context, tr *progress.Tracker, opts CreateOptions, result *CreateResult) error {
	logger := logging.Ctx(ctx)
	started := e.now()
	dir := e.cfg.BackupDirAbs()

	meta := tr.Span(progress.StepGatheringMetadata, 0, 5)
	meta.Start("Gathering version information")

	prefix := autoNamePrefix
	if opts.skipPrune {
		prefix = safetyNamePrefix
	}
	name, err := e.resolveName(opts.Name, prefix, started)
	if err != nil {
		return err
	}
	result.BackupName = name
	result.CreatedAt = started.UTC()
	result.VersionInfo = gatherVersionInfo(e.cfg.Install.Version, e.cfg.PluginsDirAbs(), started)
	meta.Finish(fmt.Sprintf("Creating %s snapshot %s", opts.Type, name))

	logger.Info().
		Str("backup_name", name).
		Str("backup_type", string(opts.Type)).
		Bool("include_plugins", opts.IncludePlugins).
		Msg("Creating snapshot")

	fail := func(msg string) {
		result.Duration = e.now().Sub(started)
		logger.Error().Str("backup_name", name).Strs("errors", result.Errors).Msg(msg)
		tr.Fail(msg)
	}

	var dbArtifact, filesArtifact string

	if opts.Type.includesDatabase() {
		dbArtifact = e.snapshotPath(name, retention.KindDatabase)
		dump, err := e.dumpDatabase(ctx, dbArtifact, tr.Span(progress.StepDumpingDatabase, 5, 45))
		result.Database = dump
		if err != nil {
			result.addError("database dump failed: %v", err)
			fail("Database dump failed")
			return nil
		}
		metrics.RecordArtifact(string(retention.KindDatabase), dump.SizeBytes)
		metrics.RecordDump(dump.Tables, dump.Rows)
		result.addMessage("Database dumped: %d tables, %d rows", dump.Tables, dump.Rows)
	}

	if opts.Type.includesFiles() {
		filesArtifact = e.snapshotPath(name, retention.KindFiles)
		archived, err := e.archiver.Create(ctx, e.cfg.Install.RootDir, filesArtifact,
			e.createExclusions(opts.IncludePlugins), tr.Span(progress.StepArchivingFiles, 45, 85))
		result.Files = archived
		if err != nil {
			result.addError("file archive failed: %v", err)
			if dbArtifact != "" {
				result.addMessage("Database artifact %s kept", retention.FileName(name, retention.KindDatabase))
			}
			fail("File archive failed")
			return nil
		}
		metrics.RecordArtifact(string(retention.KindFiles), archived.SizeBytes)
		result.addMessage("Files archived: %d files", archived.FileCount)
	}

	result.Success = true

	if opts.Type == TypeComplete {
		e.assemblePackage(ctx, tr, result, dbArtifact, filesArtifact)
	}

	if !opts.skipPrune {
		prune := tr.Span(progress.StepPruning, 95, 99)
		prune.Start("Applying retention policy")
		pruned, err := retention.Prune(dir, e.cfg.Backup.Retention)
		if err != nil {
			result.addError("retention failed: %v", err)
		} else {
			result.Retention = pruned
			result.Errors = append(result.Errors, pruned.Errors...)
			metrics.RecordRetention(len(pruned.Deleted))
			if len(pruned.Deleted) > 0 {
				result.addMessage("Retention removed %d snapshots", len(pruned.Deleted))
			}
		}
		prune.Finish("Retention applied")
	}

	result.Duration = e.now().Sub(started)
	if err := e.index.Append(result); err != nil {
		result.addError("metadata index update failed: %v", err)
	}

	logger.Info().
		Str("backup_name", name).
		Dur("duration", result.Duration).
		Int("errors", len(result.Errors)).
		Msg("Snapshot created")
	tr.Complete(fmt.Sprintf("Snapshot %s created", name))
	return nil
}

// assemblePackage bundles the artifacts into {name}_complete.zip. On
// success the standalone artifacts are removed; on failure they stay.
func (e *Engine) assemblePackage(ctx context.Context, tr *progress.Tracker, result *CreateResult, dbArtifact, filesArtifact string) {
	span := tr.Span(progress.StepAssemblingPackage, 85, 95)
	span.Start("Assembling unified package")

	name := result.BackupName
	meta := bundle.Metadata{
		BackupName:  name,
		BackupType:  string(result.BackupType),
		VersionInfo: result.VersionInfo,
		CreatedAt:   result.CreatedAt.Format(bundle.TimeFormat),
	}
	pkg, err := e.bundles.Assemble(ctx, dbArtifact, filesArtifact, meta, e.snapshotPath(name, retention.KindComplete))
	result.Package = pkg
	if err != nil {
		result.addError("package assembly failed: %v", err)
		result.addMessage("Standalone artifacts kept")
		span.Finish("Package assembly failed")
		return
	}

	metrics.RecordArtifact(string(retention.KindComplete), pkg.SizeBytes)
	for _, p := range []string{dbArtifact, filesArtifact} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("file", p).Msg("Failed to remove packaged artifact")
		}
	}
	result.addMessage("Unified package written")
	span.Finish("Package assembled")
}

// dumpDatabase opens the live database and dumps it to dest.
func (e *Engine) dumpDatabase(ctx context.Context, dest string, span *progress.Span) (*sqldump.DumpResult, error) {
	db, err := e.openDatabase(ctx)
	if err != nil {
		return &sqldump.DumpResult{File: dest, Error: err.Error()}, err
	}
	defer db.Close() //nolint:errcheck // read-only use

	return sqldump.NewDumper(db, e.dumpOptions()).Dump(ctx, dest, span)
}

// resolveName returns requested if it is free, or a generated name
// "{prefix}-{timestamp}" with a numeric suffix when needed.
func (e *Engine) resolveName(requested, prefix string, now time.Time) (string, error) {
	snapshots, err := retention.Scan(e.cfg.BackupDirAbs())
	if err != nil {
		return "", err
	}
	records, err := e.index.Load()
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(snapshots)+len(records))
	for _, s := range snapshots {
		taken[s.BaseName] = true
	}
	for name := range records {
		taken[name] = true
	}

	if requested != "" {
		if taken[requested] {
			return "", fmt.Errorf("%w: %s", ErrSnapshotExists, requested)
		}
		return requested, nil
	}

	base := prefix + "-" + now.UTC().Format(nameTimeFormat)
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name, nil
}
