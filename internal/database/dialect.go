// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ObjectKind classifies schema objects that follow a table in a dump.
type ObjectKind string

// Object kinds.
const (
	ObjectIndex   ObjectKind = "index"
	ObjectTrigger ObjectKind = "trigger"
)

// SchemaObject is an index or trigger attached to a table.
type SchemaObject struct {
	Kind ObjectKind
	Name string
	SQL  string
}

// CompoundBody reports whether the object's SQL contains inner statement
// terminators and has to be written under an alternate delimiter.
func (o SchemaObject) CompoundBody() bool {
	return o.Kind == ObjectTrigger
}

// Dialect hides the differences between supported databases.
type Dialect interface {
	// Name is the config driver name ("sqlite", "duckdb").
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// SessionSetup returns statements run once after connecting.
	SessionSetup() []string

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// Literal renders a scanned value as an SQL literal. nil becomes NULL.
	Literal(v any) string

	// ListTables returns user tables with every table referenced by a
	// foreign key ahead of the tables that reference it, otherwise by name.
	ListTables(ctx context.Context, q Querier) ([]string, error)

	// TableDDL returns the CREATE TABLE statement without a trailing terminator.
	TableDDL(ctx context.Context, q Querier, table string) (string, error)

	// TableObjects returns indexes and triggers defined on table.
	TableObjects(ctx context.Context, q Querier, table string) ([]SchemaObject, error)

	// ForeignKeyChecks returns the statement that toggles FK enforcement, or
	// "" when the database cannot toggle it.
	ForeignKeyChecks(enabled bool) string
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "duckdb":
		return duckdbDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// listTables runs tablesQuery (one name column, sorted by name) and
// refsQuery (child, parent pairs) and orders the names by dependency.
func listTables(ctx context.Context, q Querier, tablesQuery, refsQuery string) ([]string, error) {
	var tables []string
	err := scanRows(ctx, q, tablesQuery, "table list rows", func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	refs := make(map[string][]string)
	err = scanRows(ctx, q, refsQuery, "foreign key rows", func(rows *sql.Rows) error {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return err
		}
		refs[child] = append(refs[child], parent)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys: %w", err)
	}
	return OrderByDependency(tables, refs), nil
}

// scanRows runs query and calls fn for each row. The rows are closed before
// it returns, so callers on a single connection can issue the next query.
func scanRows(ctx context.Context, q Querier, query, resource string, fn func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer closeWithLog(rows, resource)
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// OrderByDependency returns tables with each table placed after the tables
// it references. Unrelated tables keep their input order, references to
// unknown tables are ignored and cycles are broken at the first table
// revisited.
func OrderByDependency(tables []string, refs map[string][]string) []string {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t] = true
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(tables))
	ordered := make([]string, 0, len(tables))

	var visit func(string)
	visit = func(t string) {
		if state[t] != 0 {
			return
		}
		state[t] = visiting
		parents := append([]string(nil), refs[t]...)
		sort.Strings(parents)
		for _, p := range parents {
			if p != t && known[p] {
				visit(p)
			}
		}
		state[t] = done
		ordered = append(ordered, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return ordered
}

// DropTableSQL returns a DROP TABLE IF EXISTS statement for table.
func DropTableSQL(d Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

// quoteIdent doubles embedded double quotes, which both dialects accept.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString renders s as a standard SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// literalTimeFormat keeps sub-second precision and the zone offset.
const literalTimeFormat = "2006-01-02 15:04:05.999999999-07:00"

// literalStyle captures the per-dialect rendering choices.
type literalStyle struct {
	blob     func([]byte) string
	nan      string
	posInf   string
	negInf   string
	trueLit  string
	falseLit string
}

func formatLiteral(v any, style literalStyle) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return style.blob(x)
	case string:
		return quoteString(x)
	case bool:
		if x {
			return style.trueLit
		}
		return style.falseLit
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x), 32, style)
	case float64:
		return formatFloat(x, 64, style)
	case time.Time:
		return quoteString(x.Format(literalTimeFormat))
	case fmt.Stringer:
		return quoteString(x.String())
	default:
		return quoteString(fmt.Sprint(x))
	}
}

func formatFloat(f float64, bits int, style literalStyle) string {
	switch {
	case math.IsNaN(f):
		return style.nan
	case math.IsInf(f, 1):
		return style.posInf
	case math.IsInf(f, -1):
		return style.negInf
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	// Keep the value a float on replay: "2" would be read back as an integer.
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
