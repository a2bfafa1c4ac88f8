// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/snapvault/internal/config"
	"github.com/tomtom215/snapvault/internal/database"
	"github.com/tomtom215/snapvault/internal/progress"
)

// testEnv holds an installation root with a three file tree and a seeded
// SQLite database:
//
//	app/index.html       archived
//	app/settings.yaml    archived
//	node_modules/dep.js  excluded
//	data/app.db          live database, always excluded
type testEnv struct {
	root   string
	dbPath string
	cfg    *config.Config
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	writeFile(t, root, "app/index.html", "<html>v1</html>")
	writeFile(t, root, "app/settings.yaml", "theme: dark\n")
	writeFile(t, root, "node_modules/dep.js", "module.exports = {}")

	dbPath := filepath.Join(root, "data", "app.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	execSQL(t, dbPath,
		`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`,
		`INSERT INTO notes (id, body) VALUES (1, 'first'), (2, 'second')`,
	)

	env := &testEnv{
		root:   root,
		dbPath: dbPath,
		cfg:    newTestConfig(root),
	}
	env.engine = env.newEngine(t)
	return env
}

// newTestConfig returns a configuration rooted at root.
func newTestConfig(root string) *config.Config {
	return &config.Config{
		Install: config.InstallConfig{
			RootDir:    root,
			Version:    "1.4.2",
			PluginsDir: "plugins",
			SelfPlugin: "snapvault",
		},
		Database: config.DatabaseConfig{
			Driver:              "sqlite",
			DSN:                 "data/app.db",
			Strategy:            "native",
			FlushThresholdBytes: 4096,
			ConnectTimeout:      5 * time.Second,
		},
		Backup: config.BackupConfig{
			Dir:              "backups",
			Retention:        5,
			Exclusions:       []string{"node_modules"},
			ProtectedFiles:   []string{".env"},
			CompressionLevel: 6,
			LockTimeout:      200 * time.Millisecond,
		},
		Progress: config.ProgressConfig{
			StateFile: "backups/.progress.json",
		},
		Schedule: config.ScheduleConfig{
			Interval:      24 * time.Hour,
			PreferredHour: 3,
			Type:          "complete",
		},
	}
}

// newEngine builds an engine from the current env configuration.
func (env *testEnv) newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(env.cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return engine
}

func (env *testEnv) backupDir() string {
	return filepath.Join(env.root, "backups")
}

// create runs a create and fails the test if it could not start.
func (env *testEnv) create(t *testing.T, opts CreateOptions) *CreateResult {
	t.Helper()
	result, err := env.engine.Create(context.Background(), opts)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return result
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatalf("failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

func openSQLite(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{Driver: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	return db
}

// execSQL runs stmts on a short-lived connection.
func execSQL(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db := openSQLite(t, path)
	defer db.Close()
	for _, s := range stmts {
		if _, err := db.SQL().Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

// noteBodies returns notes.body ordered by id.
func noteBodies(t *testing.T, path string) []string {
	t.Helper()
	db := openSQLite(t, path)
	defer db.Close()
	rows, err := db.SQL().Query(`SELECT body FROM notes ORDER BY id`)
	if err != nil {
		t.Fatalf("query notes: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, s)
	}
	return out
}

// zipNames lists the file entries of a zip archive, sorted.
func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open zip %s: %v", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func gunzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func countLinesWithPrefix(s, prefix string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// dirNames lists the entry names of dir, sorted.
func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// eventRecorder collects progress events.
type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Report(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

// assertStream checks ordering and termination of a progress stream.
func assertStream(t *testing.T, events []progress.Event, terminal progress.Step) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no progress events recorded")
	}
	last := -1
	terminals := 0
	for i, ev := range events {
		if ev.Percent < last {
			t.Errorf("event %d (%s) percent went backwards: %d after %d", i, ev.Step, ev.Percent, last)
		}
		last = ev.Percent
		if ev.Step.IsTerminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("expected exactly one terminal event, got %d", terminals)
	}
	final := events[len(events)-1]
	if final.Step != terminal {
		t.Errorf("final step = %s, want %s", final.Step, terminal)
	}
	if terminal == progress.StepComplete && final.Percent != 100 {
		t.Errorf("final percent = %d, want 100", final.Percent)
	}
}

// panicOnStep records events and panics on the first event of step.
func panicOnStep(rec *eventRecorder, step progress.Step) progress.Sink {
	return progress.SinkFunc(func(ev progress.Event) {
		rec.Report(ev)
		if ev.Step == step {
			panic("sink failure during " + string(step))
		}
	})
}

// writeZip writes a zip archive holding members.
func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}
