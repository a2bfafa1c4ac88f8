// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package database

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exec(t *testing.T, db *DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.SQL().ExecContext(context.Background(), s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestDialectFor(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"sqlite", "SQLite3", "", "duckdb"} {
		if _, err := DialectFor(name); err != nil {
			t.Errorf("DialectFor(%q) error = %v", name, err)
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestOpenUnreachableDatabase(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "missing", "nested", "x.db"),
	})
	if err == nil {
		t.Fatal("expected connection error for unreachable database")
	}
}

func TestSQLiteSchemaIntrospection(t *testing.T) {
	t.Parallel()

	db := openTestSQLite(t)
	exec(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT UNIQUE)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER REFERENCES users(id), body TEXT)`,
		`CREATE INDEX idx_posts_user ON posts(user_id)`,
		`CREATE TRIGGER posts_touch AFTER INSERT ON posts BEGIN UPDATE posts SET body = body WHERE id = NEW.id; END`,
	)

	ctx := context.Background()
	d := db.Dialect()

	tables, err := d.ListTables(ctx, db.SQL())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"users", "posts"}) {
		t.Errorf("expected [users posts] without sqlite_sequence, got %v", tables)
	}

	ddl, err := d.TableDDL(ctx, db.SQL(), "users")
	if err != nil {
		t.Fatalf("TableDDL() error = %v", err)
	}
	if !strings.HasPrefix(ddl, "CREATE TABLE users") {
		t.Errorf("unexpected DDL: %s", ddl)
	}

	objects, err := d.TableObjects(ctx, db.SQL(), "posts")
	if err != nil {
		t.Fatalf("TableObjects() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected index and trigger, got %d objects", len(objects))
	}
	if objects[0].Kind != ObjectIndex || objects[1].Kind != ObjectTrigger {
		t.Errorf("expected index before trigger, got %s, %s", objects[0].Kind, objects[1].Kind)
	}
	if !objects[1].CompoundBody() || objects[0].CompoundBody() {
		t.Error("expected only the trigger to need an alternate delimiter")
	}

	if _, err := d.TableDDL(ctx, db.SQL(), "nope"); err == nil {
		t.Error("expected error for missing table")
	}
}

func TestOrderByDependency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tables []string
		refs   map[string][]string
		want   []string
	}{
		{
			name:   "no references keeps order",
			tables: []string{"a", "b", "c"},
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "parent moves ahead of child",
			tables: []string{"accounts", "users"},
			refs:   map[string][]string{"accounts": {"users"}},
			want:   []string{"users", "accounts"},
		},
		{
			name:   "chain",
			tables: []string{"a", "b", "c"},
			refs:   map[string][]string{"a": {"b"}, "b": {"c"}},
			want:   []string{"c", "b", "a"},
		},
		{
			name:   "self reference and unknown table ignored",
			tables: []string{"nodes", "tags"},
			refs:   map[string][]string{"nodes": {"nodes", "gone"}},
			want:   []string{"nodes", "tags"},
		},
		{
			name:   "cycle keeps every table once",
			tables: []string{"a", "b"},
			refs:   map[string][]string{"a": {"b"}, "b": {"a"}},
			want:   []string{"b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := OrderByDependency(tt.tables, tt.refs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("OrderByDependency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuckDBListTablesOrdersByForeignKey(t *testing.T) {
	t.Parallel()

	db, err := Open(context.Background(), Config{
		Driver: "duckdb",
		DSN:    filepath.Join(t.TempDir(), "test.duckdb"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	exec(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email VARCHAR)`,
		`CREATE TABLE accounts (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id))`,
		`CREATE TABLE zones (id INTEGER)`,
	)

	tables, err := db.Dialect().ListTables(context.Background(), db.SQL())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if want := []string{"users", "accounts", "zones"}; !reflect.DeepEqual(tables, want) {
		t.Errorf("ListTables() = %v, want %v", tables, want)
	}
}

func TestSQLiteLiteral(t *testing.T) {
	t.Parallel()

	d, _ := DialectFor("sqlite")
	ts := time.Date(2026, 10, 19, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, "NULL"},
		{"empty string", "", "''"},
		{"quote", "O'Brien", "'O''Brien'"},
		{"newline kept", "a\nb", "'a\nb'"},
		{"int64", int64(-42), "-42"},
		{"float whole", 2.0, "2.0"},
		{"float frac", 2.5, "2.5"},
		{"float exp", 1e21, "1e+21"},
		{"nan", math.NaN(), "NULL"},
		{"inf", math.Inf(1), "9e999"},
		{"bool", true, "1"},
		{"blob", []byte{0xde, 0xad}, "X'DEAD'"},
		{"empty blob", []byte{}, "X''"},
		{"time", ts, "'2026-10-19 03:04:05+00:00'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Literal(tt.in); got != tt.want {
				t.Errorf("Literal(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestDuckDBLiteral(t *testing.T) {
	t.Parallel()

	d, _ := DialectFor("duckdb")
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{false, "FALSE"},
		{[]byte{0x01, 0xff}, "from_hex('01ff')"},
		{math.Inf(-1), "'-Infinity'::DOUBLE"},
		{"it's", "'it''s'"},
	}
	for _, tt := range tests {
		if got := d.Literal(tt.in); got != tt.want {
			t.Errorf("Literal(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if d.ForeignKeyChecks(false) != "" {
		t.Error("expected duckdb to report no FK toggle")
	}
}

func TestQuoteIdentAndDrop(t *testing.T) {
	t.Parallel()

	d, _ := DialectFor("sqlite")
	if got := d.QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent() = %s", got)
	}
	if got := DropTableSQL(d, "users"); got != `DROP TABLE IF EXISTS "users"` {
		t.Errorf("DropTableSQL() = %s", got)
	}
}
