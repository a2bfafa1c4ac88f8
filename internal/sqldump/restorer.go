// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package sqldump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/snapvault/internal/database"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

// maxRecordedErrors caps RestoreResult.Errors; the failure count is exact.
const maxRecordedErrors = 100

// maxStatementPreview is how much of a failing statement is quoted in errors.
const maxStatementPreview = 160

// RestoreResult describes one restore attempt.
type RestoreResult struct {
	Success          bool     `json:"success"`
	Strategy         string   `json:"strategy"`
	TablesDropped    []string `json:"tables_dropped"`
	TablesPreserved  []string `json:"tables_preserved"`
	Statements       int      `json:"statements"`
	Skipped          int      `json:"skipped"`
	FailedStatements int      `json:"failed_statements"`
	Errors           []string `json:"errors,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Restorer replaces the database contents with a dump.
type Restorer interface {
	Restore(ctx context.Context, dumpFile string, span *progress.Span) (*RestoreResult, error)
}

// RestoreOptions tune a restore.
type RestoreOptions struct {
	// PreservedTables are not dropped during the reset. Matching is case-insensitive.
	PreservedTables []string

	// Strict aborts on the first failing statement.
	Strict bool

	// KeepPreservedRows skips dump statements that target a preserved table.
	KeepPreservedRows bool
}

func (o RestoreOptions) preserved() map[string]bool {
	set := make(map[string]bool, len(o.PreservedTables))
	for _, t := range o.PreservedTables {
		set[strings.ToLower(t)] = true
	}
	return set
}

// NativeRestorer resets the schema and replays a dump statement by statement.
type NativeRestorer struct {
	db   *database.DB
	opts RestoreOptions
}

// NewNativeRestorer returns an in-process restorer.
func NewNativeRestorer(db *database.DB, opts RestoreOptions) *NativeRestorer {
	return &NativeRestorer{db: db, opts: opts}
}

// Restore implements Restorer.
//
// Statement failures are logged and counted; the restore still succeeds if
// the whole dump was read, unless Strict is set.
func (r *NativeRestorer) Restore(ctx context.Context, dumpFile string, span *progress.Span) (*RestoreResult, error) {
	result := &RestoreResult{Strategy: StrategyNative}
	logger := logging.Ctx(ctx)

	in, err := openDump(dumpFile)
	if err != nil {
		return failRestore(result, err)
	}
	defer in.Close()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return failRestore(result, fmt.Errorf("database connection failed: %w", err))
	}
	defer func() { _ = conn.Close() }()

	span.Start("Removing existing tables")
	dialect := r.db.Dialect()
	dropped, kept, err := resetSchema(ctx, conn, dialect, r.opts)
	result.TablesDropped, result.TablesPreserved = dropped, kept
	if err != nil {
		return failRestore(result, err)
	}

	replay := span.Sub(10, 100)
	replay.Start("Replaying database dump")
	preserved := r.opts.preserved()
	reader := NewStatementReader(in)

	for {
		stmt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failRestore(result, fmt.Errorf("failed to read dump: %w", err))
		}
		if err := ctx.Err(); err != nil {
			return failRestore(result, fmt.Errorf("restore cancelled: %w", err))
		}

		if r.opts.KeepPreservedRows && preserved[strings.ToLower(StatementTable(stmt))] {
			result.Skipped++
			continue
		}

		result.Statements++
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			result.FailedStatements++
			msg := fmt.Sprintf("statement %d failed: %v: %s", result.Statements, err, preview(stmt))
			if len(result.Errors) < maxRecordedErrors {
				result.Errors = append(result.Errors, msg)
			}
			logger.Warn().Err(err).Int("statement", result.Statements).Str("sql", preview(stmt)).Msg("Dump statement failed")
			if r.opts.Strict {
				enableForeignKeys(ctx, conn, dialect)
				return failRestore(result, fmt.Errorf("strict restore aborted: %s", msg))
			}
		}

		if result.Statements%200 == 0 {
			replay.Update(in.Consumed(), in.Size(), fmt.Sprintf("Replayed %d statements", result.Statements))
		}
	}

	enableForeignKeys(ctx, conn, dialect)

	result.Success = true
	replay.Finish(fmt.Sprintf("Replayed %d statements (%d failed)", result.Statements, result.FailedStatements))
	logger.Info().
		Int("statements", result.Statements).
		Int("failed", result.FailedStatements).
		Int("skipped", result.Skipped).
		Strs("dropped", result.TablesDropped).
		Msg("Database restored")
	return result, nil
}

// resetSchema drops every table except the preserved ones with foreign key
// checks off, children before parents. Tables that fail to drop are retried
// while each pass makes progress.
func resetSchema(ctx context.Context, q database.Querier, d database.Dialect, opts RestoreOptions) (dropped, kept []string, err error) {
	tables, err := d.ListTables(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tables: %w", err)
	}

	preserved := opts.preserved()
	var pending []string
	for _, t := range tables {
		if preserved[strings.ToLower(t)] {
			kept = append(kept, t)
			continue
		}
		pending = append(pending, t)
	}
	// Referencing tables are listed after their parents; drop them first.
	slices.Reverse(pending)

	if stmt := d.ForeignKeyChecks(false); stmt != "" {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return nil, kept, fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer enableForeignKeys(ctx, q, d)
	}

	for len(pending) > 0 {
		var (
			failed  []string
			lastErr error
		)
		for _, t := range pending {
			if _, err := q.ExecContext(ctx, database.DropTableSQL(d, t)); err != nil {
				failed = append(failed, t)
				lastErr = err
				continue
			}
			dropped = append(dropped, t)
		}
		if len(failed) == len(pending) {
			return dropped, kept, fmt.Errorf("failed to drop tables %s: %w", strings.Join(failed, ", "), lastErr)
		}
		pending = failed
	}
	return dropped, kept, nil
}

func enableForeignKeys(ctx context.Context, q database.Querier, d database.Dialect) {
	stmt := d.ForeignKeyChecks(true)
	if stmt == "" {
		return
	}
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		logging.Warn().Err(err).Msg("Failed to re-enable foreign key checks")
	}
}

func preview(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > maxStatementPreview {
		return stmt[:maxStatementPreview] + "..."
	}
	return stmt
}

func failRestore(result *RestoreResult, err error) (*RestoreResult, error) {
	result.Success = false
	result.Error = err.Error()
	return result, err
}

// dumpInput is a decompressed view over a dump file that tracks how much of
// the file has been consumed.
type dumpInput struct {
	io.Reader
	file    *os.File
	counter *countingReader
	gz      *gzip.Reader
	size    int64
}

// openDump opens a gzip or plain SQL dump.
func openDump(path string) (*dumpInput, error) {
	//nolint:gosec // G304: path is a located backup artifact
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat dump: %w", err)
	}

	counter := &countingReader{r: f}
	br := bufio.NewReader(counter)
	in := &dumpInput{file: f, counter: counter, size: info.Size()}

	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		in.gz = gz
		in.Reader = gz
	} else {
		in.Reader = br
	}
	return in, nil
}

// Consumed returns the number of file bytes read so far.
func (in *dumpInput) Consumed() int64 { return in.counter.n }

// Size returns the file size.
func (in *dumpInput) Size() int64 { return in.size }

// Close closes the gzip stream and the file.
func (in *dumpInput) Close() error {
	if in.gz != nil {
		_ = in.gz.Close()
	}
	return in.file.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
