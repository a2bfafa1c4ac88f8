// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package sqldump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tomtom215/snapvault/internal/database"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

// StrategyAuto picks the external tool when present and falls back to native.
const StrategyAuto = "auto"

// dsnPlaceholder in a command argument is replaced with the database DSN.
const dsnPlaceholder = "{dsn}"

// maxStderr bounds how much tool output is kept for error messages.
const maxStderr = 4096

// ExternalDumper runs a command whose standard output is an SQL script and
// compresses it into the dump file, e.g. ["sqlite3", "{dsn}", ".dump"].
type ExternalDumper struct {
	command          []string
	dsn              string
	compressionLevel int
}

// NewExternalDumper returns a dumper running command.
func NewExternalDumper(command []string, dsn string, compressionLevel int) *ExternalDumper {
	return &ExternalDumper{command: command, dsn: dsn, compressionLevel: compressionLevel}
}

// Available reports whether the command's executable can be found.
func (d *ExternalDumper) Available() bool {
	if len(d.command) == 0 {
		return false
	}
	_, err := exec.LookPath(d.command[0])
	return err == nil
}

// Dump implements Dumper.
func (d *ExternalDumper) Dump(ctx context.Context, dest string, span *progress.Span) (*DumpResult, error) {
	result := &DumpResult{File: dest, Strategy: StrategyExternal}
	if len(d.command) == 0 {
		return failDump(result, errors.New("no dump command configured"))
	}
	span.Start("Running " + d.command[0])

	w, err := createDumpFile(dest, DefaultFlushThreshold, d.compressionLevel)
	if err != nil {
		return failDump(result, err)
	}
	defer w.abort()

	//nolint:gosec // G204: the command comes from operator configuration
	cmd := exec.CommandContext(ctx, d.command[0], expandArgs(d.command[1:], d.dsn)...)
	cmd.Stdout = w
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return failDump(result, fmt.Errorf("%s failed: %w: %s", d.command[0], err, strings.TrimSpace(stderr.String())))
	}
	if w.written == 0 {
		return failDump(result, fmt.Errorf("%s produced no output", d.command[0]))
	}

	size, err := w.commit()
	if err != nil {
		return failDump(result, err)
	}
	result.Success = true
	result.SizeBytes = size
	span.Finish("Database dump complete")
	return result, nil
}

// ExternalRestorer resets the schema in-process, then pipes the decompressed
// dump into a command such as ["sqlite3", "{dsn}"].
type ExternalRestorer struct {
	db      *database.DB
	command []string
	dsn     string
	opts    RestoreOptions
}

// NewExternalRestorer returns a restorer running command.
func NewExternalRestorer(db *database.DB, command []string, dsn string, opts RestoreOptions) *ExternalRestorer {
	return &ExternalRestorer{db: db, command: command, dsn: dsn, opts: opts}
}

// Restore implements Restorer. The tool either accepts the whole script or
// fails; per-statement accounting is not available.
func (r *ExternalRestorer) Restore(ctx context.Context, dumpFile string, span *progress.Span) (*RestoreResult, error) {
	result := &RestoreResult{Strategy: StrategyExternal}
	if len(r.command) == 0 {
		return failRestore(result, errors.New("no restore command configured"))
	}

	in, err := openDump(dumpFile)
	if err != nil {
		return failRestore(result, err)
	}
	defer in.Close()

	span.Start("Removing existing tables")
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return failRestore(result, fmt.Errorf("database connection failed: %w", err))
	}
	dropped, kept, err := resetSchema(ctx, conn, r.db.Dialect(), r.opts)
	_ = conn.Close()
	result.TablesDropped, result.TablesPreserved = dropped, kept
	if err != nil {
		return failRestore(result, err)
	}

	span.Sub(10, 100).Start("Running " + r.command[0])
	//nolint:gosec // G204: the command comes from operator configuration
	cmd := exec.CommandContext(ctx, r.command[0], expandArgs(r.command[1:], r.dsn)...)
	cmd.Stdin = in
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return failRestore(result, fmt.Errorf("%s failed: %w: %s", r.command[0], err, strings.TrimSpace(stderr.String())))
	}

	result.Success = true
	span.Finish("Database restored")
	return result, nil
}

// FallbackDumper tries Primary and, if it fails, Fallback.
type FallbackDumper struct {
	Primary  Dumper
	Fallback Dumper
}

// Dump implements Dumper.
func (f *FallbackDumper) Dump(ctx context.Context, dest string, span *progress.Span) (*DumpResult, error) {
	result, err := f.Primary.Dump(ctx, dest, span)
	if err == nil && result.Success {
		return result, nil
	}
	logging.Ctx(ctx).Warn().Err(err).Msg("Primary dump strategy failed, using fallback")
	return f.Fallback.Dump(ctx, dest, span)
}

// Options selects and tunes the dump and restore strategies.
type Options struct {
	Strategy         string
	DumpCommand      []string
	RestoreCommand   []string
	DSN              string
	FlushThreshold   int
	CompressionLevel int
	Restore          RestoreOptions
}

// NewDumper builds the dumper for opts.Strategy. The native dumper is
// always the fallback for "auto".
func NewDumper(db *database.DB, opts Options) Dumper {
	native := NewNativeDumper(db, opts.FlushThreshold, opts.CompressionLevel)
	external := NewExternalDumper(opts.DumpCommand, opts.DSN, opts.CompressionLevel)
	switch opts.Strategy {
	case StrategyExternal:
		return external
	case StrategyAuto:
		if external.Available() {
			return &FallbackDumper{Primary: external, Fallback: native}
		}
		return native
	default:
		return native
	}
}

// NewRestorer builds the restorer matching opts.Strategy.
func NewRestorer(db *database.DB, opts Options) Restorer {
	if len(opts.RestoreCommand) > 0 && opts.Strategy != StrategyNative {
		if opts.Strategy == StrategyExternal {
			return NewExternalRestorer(db, opts.RestoreCommand, opts.DSN, opts.Restore)
		}
		if _, err := exec.LookPath(opts.RestoreCommand[0]); err == nil {
			return NewExternalRestorer(db, opts.RestoreCommand, opts.DSN, opts.Restore)
		}
	}
	return NewNativeRestorer(db, opts.Restore)
}

func expandArgs(args []string, dsn string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, dsnPlaceholder, dsn)
	}
	return out
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string { return l.buf.String() }
