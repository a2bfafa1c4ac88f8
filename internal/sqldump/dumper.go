// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package sqldump writes gzip-compressed SQL dumps of a database and replays
// them back into it.
//
// Dump format: plain SQL, one statement per line terminated by ";". For
// every table the dump holds a DROP TABLE IF EXISTS, the CREATE TABLE, one
// INSERT per row, then the table's indexes and triggers. Trigger bodies
// contain ";" themselves, so they are wrapped in "DELIMITER ;;" and
// "DELIMITER ;" directives which StatementReader understands.
package sqldump

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/snapvault/internal/database"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

// DefaultFlushThreshold is the size of the in-memory write buffer.
const DefaultFlushThreshold = 1 << 20

// compoundDelimiter terminates statements whose bodies contain ";".
const compoundDelimiter = ";;"

// Strategy names.
const (
	StrategyNative   = "native"
	StrategyExternal = "external"
)

// DumpResult describes one dump attempt.
type DumpResult struct {
	Success   bool   `json:"success"`
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	Tables    int    `json:"tables"`
	Rows      int64  `json:"rows"`
	Strategy  string `json:"strategy"`
	Error     string `json:"error,omitempty"`
}

// Dumper writes a compressed dump of the database to dest.
//
// On failure no file is left at dest and the result carries the error. The
// returned error mirrors result.Error so callers can use either.
type Dumper interface {
	Dump(ctx context.Context, dest string, span *progress.Span) (*DumpResult, error)
}

// NativeDumper dumps through database/sql without external tools.
type NativeDumper struct {
	db               *database.DB
	flushThreshold   int
	compressionLevel int
}

// NewNativeDumper returns an in-process dumper.
func NewNativeDumper(db *database.DB, flushThreshold, compressionLevel int) *NativeDumper {
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}
	return &NativeDumper{db: db, flushThreshold: flushThreshold, compressionLevel: compressionLevel}
}

// Dump implements Dumper.
func (d *NativeDumper) Dump(ctx context.Context, dest string, span *progress.Span) (*DumpResult, error) {
	result := &DumpResult{File: dest, Strategy: StrategyNative}
	logger := logging.Ctx(ctx)
	span.Start("Connecting to database")

	if err := d.db.Ping(ctx); err != nil {
		return failDump(result, fmt.Errorf("database connection failed: %w", err))
	}

	dialect := d.db.Dialect()
	tables, err := dialect.ListTables(ctx, d.db.SQL())
	if err != nil {
		return failDump(result, err)
	}

	w, err := createDumpFile(dest, d.flushThreshold, d.compressionLevel)
	if err != nil {
		return failDump(result, err)
	}
	defer w.abort()

	if err := d.writeHeader(w, len(tables)); err != nil {
		return failDump(result, err)
	}

	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			return failDump(result, fmt.Errorf("dump cancelled: %w", err))
		}
		rows, err := d.dumpTable(ctx, w, table)
		if err != nil {
			return failDump(result, fmt.Errorf("failed to dump table %s: %w", table, err))
		}
		result.Tables++
		result.Rows += rows
		span.Update(int64(i+1), int64(len(tables)), fmt.Sprintf("Dumped table %s (%d/%d)", table, i+1, len(tables)))
	}

	if stmt := dialect.ForeignKeyChecks(true); stmt != "" {
		if err := w.statement(stmt, ";"); err != nil {
			return failDump(result, err)
		}
	}
	if err := w.line("-- Dump completed " + time.Now().UTC().Format(time.RFC3339)); err != nil {
		return failDump(result, err)
	}

	size, err := w.commit()
	if err != nil {
		return failDump(result, err)
	}

	result.Success = true
	result.SizeBytes = size
	span.Finish(fmt.Sprintf("Database dump complete (%d tables)", result.Tables))
	logger.Info().
		Str("file", dest).
		Int("tables", result.Tables).
		Int64("rows", result.Rows).
		Int64("size_bytes", size).
		Msg("Database dump written")
	return result, nil
}

func (d *NativeDumper) writeHeader(w *dumpFile, tables int) error {
	header := []string{
		"-- Snapvault SQL dump",
		"-- Dialect: " + d.db.Dialect().Name(),
		fmt.Sprintf("-- Tables: %d", tables),
		"-- Created: " + time.Now().UTC().Format(time.RFC3339),
		"",
	}
	for _, l := range header {
		if err := w.line(l); err != nil {
			return err
		}
	}
	if stmt := d.db.Dialect().ForeignKeyChecks(false); stmt != "" {
		return w.statement(stmt, ";")
	}
	return nil
}

func (d *NativeDumper) dumpTable(ctx context.Context, w *dumpFile, table string) (int64, error) {
	dialect := d.db.Dialect()
	q := d.db.SQL()

	ddl, err := dialect.TableDDL(ctx, q, table)
	if err != nil {
		return 0, err
	}
	objects, err := dialect.TableObjects(ctx, q, table)
	if err != nil {
		return 0, err
	}

	if err := w.line("\n-- Table structure for " + table); err != nil {
		return 0, err
	}
	if err := w.statement(database.DropTableSQL(dialect, table), ";"); err != nil {
		return 0, err
	}
	if err := w.statement(ddl, ";"); err != nil {
		return 0, err
	}

	rowCount, err := d.dumpRows(ctx, w, table)
	if err != nil {
		return rowCount, err
	}

	for _, obj := range objects {
		if !obj.CompoundBody() {
			if err := w.statement(obj.SQL, ";"); err != nil {
				return rowCount, err
			}
			continue
		}
		if err := w.line("DELIMITER " + compoundDelimiter); err != nil {
			return rowCount, err
		}
		if err := w.statement(obj.SQL, compoundDelimiter); err != nil {
			return rowCount, err
		}
		if err := w.line("DELIMITER ;"); err != nil {
			return rowCount, err
		}
	}
	return rowCount, nil
}

func (d *NativeDumper) dumpRows(ctx context.Context, w *dumpFile, table string) (int64, error) {
	dialect := d.db.Dialect()
	rows, err := d.db.SQL().QueryContext(ctx, "SELECT * FROM "+dialect.QuoteIdent(table))
	if err != nil {
		return 0, fmt.Errorf("failed to read rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to read columns: %w", err)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = dialect.QuoteIdent(c)
	}
	prefix := "INSERT INTO " + dialect.QuoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES ("

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var (
		count int64
		sb    strings.Builder
	)
	if err := w.line("-- Data for " + table); err != nil {
		return 0, err
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, fmt.Errorf("failed to scan row: %w", err)
		}
		sb.Reset()
		sb.WriteString(prefix)
		for i, v := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(dialect.Literal(v))
		}
		sb.WriteByte(')')
		if err := w.statement(sb.String(), ";"); err != nil {
			return count, err
		}
		count++
		if count%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return count, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return count, nil
}

func failDump(result *DumpResult, err error) (*DumpResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.SizeBytes = 0
	return result, err
}
