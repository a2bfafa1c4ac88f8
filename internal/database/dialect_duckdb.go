// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// duckdbDialect covers DuckDB databases in the "main" schema. DuckDB cannot
// switch foreign key enforcement off, so dumps list referenced tables first
// and the restorer drops in reverse order.
type duckdbDialect struct{}

var duckdbLiterals = literalStyle{
	blob:     func(b []byte) string { return "from_hex('" + hex.EncodeToString(b) + "')" },
	nan:      "'NaN'::DOUBLE",
	posInf:   "'Infinity'::DOUBLE",
	negInf:   "'-Infinity'::DOUBLE",
	trueLit:  "TRUE",
	falseLit: "FALSE",
}

func (duckdbDialect) Name() string           { return "duckdb" }
func (duckdbDialect) DriverName() string     { return "duckdb" }
func (duckdbDialect) SessionSetup() []string { return nil }

func (duckdbDialect) QuoteIdent(name string) string { return quoteIdent(name) }

func (duckdbDialect) Literal(v any) string { return formatLiteral(v, duckdbLiterals) }

func (duckdbDialect) ListTables(ctx context.Context, q Querier) ([]string, error) {
	return listTables(ctx, q,
		`SELECT table_name FROM duckdb_tables() WHERE schema_name = 'main' AND NOT internal ORDER BY table_name`,
		`SELECT table_name, referenced_table FROM duckdb_constraints()
		 WHERE schema_name = 'main' AND constraint_type = 'FOREIGN KEY'`)
}

func (duckdbDialect) TableDDL(ctx context.Context, q Querier, table string) (string, error) {
	var ddl sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT sql FROM duckdb_tables() WHERE schema_name = 'main' AND table_name = ?`, table).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ddl.Valid) {
		return "", fmt.Errorf("no definition found for table %s", table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read definition of table %s: %w", table, err)
	}
	return strings.TrimRight(strings.TrimSpace(ddl.String), ";"), nil
}

func (duckdbDialect) TableObjects(ctx context.Context, q Querier, table string) ([]SchemaObject, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT index_name, sql FROM duckdb_indexes()
		 WHERE schema_name = 'main' AND table_name = ? AND sql IS NOT NULL ORDER BY index_name`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of table %s: %w", table, err)
	}
	defer closeWithLog(rows, "index rows")

	var objects []SchemaObject
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		objects = append(objects, SchemaObject{
			Kind: ObjectIndex,
			Name: name,
			SQL:  strings.TrimRight(strings.TrimSpace(ddl), ";"),
		})
	}
	return objects, rows.Err()
}

func (duckdbDialect) ForeignKeyChecks(bool) string { return "" }
