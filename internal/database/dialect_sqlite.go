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

type sqliteDialect struct{}

var sqliteLiterals = literalStyle{
	blob:     func(b []byte) string { return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'" },
	nan:      "NULL",
	posInf:   "9e999",
	negInf:   "-9e999",
	trueLit:  "1",
	falseLit: "0",
}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) SessionSetup() []string {
	return []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"}
}

func (sqliteDialect) QuoteIdent(name string) string { return quoteIdent(name) }

func (sqliteDialect) Literal(v any) string { return formatLiteral(v, sqliteLiterals) }

func (sqliteDialect) ListTables(ctx context.Context, q Querier) ([]string, error) {
	return listTables(ctx, q,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`,
		`SELECT m.name, p."table" FROM sqlite_master AS m, pragma_foreign_key_list(m.name) AS p
		 WHERE m.type = 'table'`)
}

func (sqliteDialect) TableDDL(ctx context.Context, q Querier, table string) (string, error) {
	var ddl sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ddl.Valid) {
		return "", fmt.Errorf("no definition found for table %s", table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read definition of table %s: %w", table, err)
	}
	return strings.TrimRight(strings.TrimSpace(ddl.String), ";"), nil
}

func (sqliteDialect) TableObjects(ctx context.Context, q Querier, table string) ([]SchemaObject, error) {
	// Automatic indexes (UNIQUE/PRIMARY KEY) have NULL sql and are recreated
	// by the table definition itself.
	rows, err := q.QueryContext(ctx,
		`SELECT type, name, sql FROM sqlite_master
		 WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL
		 ORDER BY CASE type WHEN 'index' THEN 0 ELSE 1 END, name`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects of table %s: %w", table, err)
	}
	defer closeWithLog(rows, "schema object rows")

	var objects []SchemaObject
	for rows.Next() {
		var kind, name, ddl string
		if err := rows.Scan(&kind, &name, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan schema object: %w", err)
		}
		objects = append(objects, SchemaObject{
			Kind: ObjectKind(kind),
			Name: name,
			SQL:  strings.TrimRight(strings.TrimSpace(ddl), ";"),
		})
	}
	return objects, rows.Err()
}

func (sqliteDialect) ForeignKeyChecks(enabled bool) string {
	if enabled {
		return "PRAGMA foreign_keys = ON"
	}
	return "PRAGMA foreign_keys = OFF"
}
