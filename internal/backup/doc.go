// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package backup is the snapshot engine: it creates, restores, lists and
// deletes snapshots of an installation's file tree and SQL database.
//
// # Overview
//
// The engine orchestrates the lower-level packages:
//
//	sqldump   - database dump and replay (native or external command)
//	archive   - file tree archive, extraction and restore copy
//	bundle    - unified package assembly and disassembly
//	retention - snapshot scanning, grouping and pruning
//	progress  - ordered progress events delivered to sinks
//
// # Snapshot Types
//
// Three snapshot types are supported:
//
//	TypeComplete - database and files bundled into {name}_complete.zip
//	TypeDatabase - {name}_db.sql.gz only
//	TypeFiles    - {name}_files.zip only
//
// # Results
//
// Every operation returns a structured result whose Success flag and Errors
// list are authoritative. The error return is reserved for calls that could
// not start: invalid arguments, a missing snapshot, or another operation
// holding the backup directory (ErrLocked). Panics are recovered at the
// engine boundary and reported as ErrInternal in the result.
//
// # Concurrency
//
// Operations run synchronously on the calling goroutine. Create, restore,
// delete and prune take a machine-wide advisory lock named after the backup
// directory, so two processes cannot race on names or on pruning.
//
// # Usage
//
//	engine, err := backup.New(cfg)
//	if err != nil {
//		return err
//	}
//	result, err := engine.Create(ctx, backup.CreateOptions{Type: backup.TypeComplete})
//	if err != nil {
//		return err
//	}
//	if !result.Success {
//		return fmt.Errorf("backup failed: %v", result.Errors)
//	}
//
//	restored, err := engine.RestoreComplete(ctx, result.BackupName, backup.RestoreOptions{})
//
// # Metadata Index
//
// metadata.json in the backup directory maps each successful snapshot name to
// its CreateResult. Entries are only added; deleting a snapshot keeps its
// record.
package backup
