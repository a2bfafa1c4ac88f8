// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package database opens the installation's SQL database and describes its
// schema in a dialect-neutral way for the dumper and restorer.
//
// Two drivers are supported: "sqlite" (pure Go, modernc.org/sqlite) and
// "duckdb" (github.com/duckdb/duckdb-go). Both are registered with
// database/sql by blank import.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers "duckdb"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/tomtom215/snapvault/internal/logging"
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 10 * time.Second

// Config selects and locates the database.
type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB is an open database plus its dialect.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	cfg     Config
}

// Open connects to the configured database and verifies the connection.
// A failed ping is returned as an error; nothing is left open.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	conn, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	// One connection keeps session settings such as foreign key checks
	// consistent across statements.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	for _, stmt := range dialect.SessionSetup() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to configure connection (%s): %w", stmt, err)
		}
	}

	return &DB{conn: conn, dialect: dialect, cfg: cfg}, nil
}

// SQL returns the underlying pool.
func (db *DB) SQL() *sql.DB {
	return db.conn
}

// Dialect returns the database dialect.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.cfg.Driver
}

// Conn pins a single connection. Callers must Close it.
func (db *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// Ping verifies the connection is still alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the pool.
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on an error path where the close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
