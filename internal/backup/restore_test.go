// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
)

func TestRestoreCompleteRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	writeFile(t, env.root, ".env", "SECRET=at-backup")
	created := env.create(t, CreateOptions{Name: "rt"})
	if !created.Success {
		t.Fatalf("create failed: %v", created.Errors)
	}

	// Drift the live installation.
	writeFile(t, env.root, "app/index.html", "<html>v2</html>")
	if err := os.Remove(filepath.Join(env.root, "app", "settings.yaml")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, env.root, "app/new.txt", "added after backup")
	writeFile(t, env.root, "node_modules/dep.js", "changed")
	writeFile(t, env.root, ".env", "SECRET=live")
	execSQL(t, env.dbPath,
		`DELETE FROM notes WHERE id = 1`,
		`INSERT INTO notes (id, body) VALUES (3, 'third')`,
	)

	rec := &eventRecorder{}
	result, err := env.engine.RestoreComplete(context.Background(), "rt", RestoreOptions{Sink: rec})
	if err != nil {
		t.Fatalf("RestoreComplete() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("restore failed: %v", result.Errors)
	}
	if result.Metadata == nil || result.Metadata.BackupName != "rt" {
		t.Errorf("expected package metadata, got %+v", result.Metadata)
	}
	if result.Files == nil || result.Files.Copied != 2 {
		t.Errorf("unexpected files result: %+v", result.Files)
	}
	if result.Database == nil || result.Database.FailedStatements != 0 {
		t.Errorf("unexpected database result: %+v", result.Database)
	}

	tests := []struct {
		rel  string
		want string
	}{
		{"app/index.html", "<html>v1</html>"},
		{"app/settings.yaml", "theme: dark\n"},
		{"app/new.txt", "added after backup"},
		{"node_modules/dep.js", "changed"},
		{".env", "SECRET=live"},
	}
	for _, tt := range tests {
		if got := readFile(t, env.root, tt.rel); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.rel, got, tt.want)
		}
	}

	if got, want := noteBodies(t, env.dbPath), []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("notes = %v, want %v", got, want)
	}

	events := rec.Events()
	assertStream(t, events, progress.StepComplete)
	var steps []progress.Step
	for _, ev := range events {
		if len(steps) == 0 || steps[len(steps)-1] != ev.Step {
			steps = append(steps, ev.Step)
		}
	}
	want := []progress.Step{
		progress.StepLocating,
		progress.StepExtracting,
		progress.StepRestoringFiles,
		progress.StepRestoringDatabase,
		progress.StepCleanup,
		progress.StepComplete,
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestRestoreRemovesScratch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.cfg.Backup.ScratchDir = "scratch"
	env.create(t, CreateOptions{Name: "s"})

	result, err := env.engine.RestoreComplete(context.Background(), "s", RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreComplete() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("restore failed: %v", result.Errors)
	}
	if names := dirNames(t, filepath.Join(env.root, "scratch")); len(names) != 0 {
		t.Errorf("scratch directory not cleaned: %v", names)
	}
}

func TestRestorePanicReturnsFailedResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.cfg.Backup.ScratchDir = "scratch"
	env.create(t, CreateOptions{Name: "p"})

	rec := &eventRecorder{}
	result, err := env.engine.RestoreComplete(context.Background(), "p", RestoreOptions{
		Sink: panicOnStep(rec, progress.StepRestoringFiles),
	})
	if err != nil {
		t.Fatalf("RestoreComplete() error = %v, want failed result", err)
	}
	if result == nil {
		t.Fatal("RestoreComplete() returned nil result after a panic")
	}
	if result.Success {
		t.Error("expected Success=false after a panic")
	}
	if !reflect.DeepEqual(result.Errors, []string{ErrInternal.Error()}) {
		t.Errorf("errors = %v, want [%s]", result.Errors, ErrInternal)
	}
	if names := dirNames(t, filepath.Join(env.root, "scratch")); len(names) != 0 {
		t.Errorf("scratch directory not cleaned after panic: %v", names)
	}
	assertStream(t, rec.Events(), progress.StepError)

	// The lock was released, so the next restore runs.
	again, err := env.engine.RestoreComplete(context.Background(), "p", RestoreOptions{})
	if err != nil {
		t.Fatalf("second RestoreComplete() error = %v", err)
	}
	if !again.Success {
		t.Errorf("second restore failed: %v", again.Errors)
	}
}

func TestRestoreExtractionFailureRemovesScratch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.cfg.Backup.ScratchDir = "scratch"
	env.create(t, CreateOptions{Name: "x", Type: TypeFiles})
	if err := os.WriteFile(filepath.Join(env.backupDir(), "x_files.zip"), []byte("not a zip"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := &eventRecorder{}
	result, err := env.engine.RestoreFiles(context.Background(), "x", RestoreOptions{Sink: rec})
	if err != nil {
		t.Fatalf("RestoreFiles() error = %v", err)
	}
	if result.Success || len(result.Errors) == 0 {
		t.Errorf("expected failed result with errors, got %+v", result)
	}
	if names := dirNames(t, filepath.Join(env.root, "scratch")); len(names) != 0 {
		t.Errorf("scratch directory not cleaned: %v", names)
	}
	assertStream(t, rec.Events(), progress.StepError)
}

func TestRestoreScopes(t *testing.T) {
	t.Parallel()

	t.Run("files from standalone archive", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.create(t, CreateOptions{Name: "f", Type: TypeFiles})
		writeFile(t, env.root, "app/index.html", "drift")
		execSQL(t, env.dbPath, `DELETE FROM notes`)

		result, err := env.engine.RestoreFiles(context.Background(), "f", RestoreOptions{})
		if err != nil {
			t.Fatalf("RestoreFiles() error = %v", err)
		}
		if !result.Success || result.Database != nil {
			t.Fatalf("unexpected result: %+v", result)
		}
		if got := readFile(t, env.root, "app/index.html"); got != "<html>v1</html>" {
			t.Errorf("index.html = %q", got)
		}
		if got := noteBodies(t, env.dbPath); len(got) != 0 {
			t.Errorf("files restore touched the database: %v", got)
		}
		if filepath.Base(result.Source) != "f"+retention.SuffixFiles {
			t.Errorf("source = %s", result.Source)
		}
	})

	t.Run("database from complete package", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.create(t, CreateOptions{Name: "c"})
		writeFile(t, env.root, "app/index.html", "drift")
		execSQL(t, env.dbPath, `DELETE FROM notes`)

		result, err := env.engine.RestoreDatabase(context.Background(), "c", RestoreOptions{})
		if err != nil {
			t.Fatalf("RestoreDatabase() error = %v", err)
		}
		if !result.Success || result.Files != nil {
			t.Fatalf("unexpected result: %+v", result)
		}
		if got := noteBodies(t, env.dbPath); len(got) != 2 {
			t.Errorf("notes = %v", got)
		}
		if got := readFile(t, env.root, "app/index.html"); got != "drift" {
			t.Errorf("database restore touched files: %q", got)
		}
	})

	t.Run("complete from separate artifacts", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.create(t, CreateOptions{Name: "sep", Type: TypeDatabase})
		// Pair a standalone archive with the dump under one base name.
		env.create(t, CreateOptions{Name: "other", Type: TypeFiles})
		if err := os.Rename(
			filepath.Join(env.backupDir(), "other"+retention.SuffixFiles),
			filepath.Join(env.backupDir(), "sep"+retention.SuffixFiles),
		); err != nil {
			t.Fatal(err)
		}

		result, err := env.engine.RestoreComplete(context.Background(), "sep", RestoreOptions{})
		if err != nil {
			t.Fatalf("RestoreComplete() error = %v", err)
		}
		if !result.Success || result.Files == nil || result.Database == nil {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestRestoreNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.create(t, CreateOptions{Name: "dbonly", Type: TypeDatabase})

	tests := []struct {
		name    string
		restore func() error
		want    error
	}{
		{
			name: "unknown name",
			restore: func() error {
				_, err := env.engine.RestoreComplete(context.Background(), "nope", RestoreOptions{})
				return err
			},
			want: ErrSnapshotNotFound,
		},
		{
			name: "files from database snapshot",
			restore: func() error {
				_, err := env.engine.RestoreFiles(context.Background(), "dbonly", RestoreOptions{})
				return err
			},
			want: ErrSnapshotNotFound,
		},
		{
			name: "complete needs both artifacts",
			restore: func() error {
				_, err := env.engine.RestoreComplete(context.Background(), "dbonly", RestoreOptions{})
				return err
			},
			want: ErrSnapshotNotFound,
		},
		{
			name: "traversal",
			restore: func() error {
				_, err := env.engine.RestoreDatabase(context.Background(), "../dbonly", RestoreOptions{})
				return err
			},
			want: retention.ErrInvalidName,
		},
	}

	for _, tt := range tests {
		if err := tt.restore(); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRestoreFromPathPlainTreeWithFilesDirectory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	upload := filepath.Join(t.TempDir(), "upload.zip")
	writeZip(t, upload, map[string]string{
		"files/readme.txt":   "docs\n",
		"database/notes.txt": "not a dump\n",
		"app/settings.yaml":  "theme: blue\n",
	})

	result, err := env.engine.RestoreFromPath(context.Background(), upload, ScopeFiles, RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreFromPath() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("restore failed: %v", result.Errors)
	}
	if got := readFile(t, env.root, "files/readme.txt"); got != "docs\n" {
		t.Errorf("files/readme.txt = %q", got)
	}
	if got := readFile(t, env.root, "app/settings.yaml"); got != "theme: blue\n" {
		t.Errorf("settings.yaml = %q", got)
	}
}

func TestRestoreFromPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.create(t, CreateOptions{Name: "up"})

	upload := filepath.Join(t.TempDir(), "upload.zip")
	data, err := os.ReadFile(filepath.Join(env.backupDir(), "up"+retention.SuffixComplete))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(upload, data, 0o600); err != nil {
		t.Fatal(err)
	}
	writeFile(t, env.root, "app/settings.yaml", "theme: light\n")

	result, err := env.engine.RestoreFromPath(context.Background(), upload, ScopeFiles, RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreFromPath() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("restore failed: %v", result.Errors)
	}
	if result.Source != upload {
		t.Errorf("source = %s, want %s", result.Source, upload)
	}
	if got := readFile(t, env.root, "app/settings.yaml"); got != "theme: dark\n" {
		t.Errorf("settings.yaml = %q", got)
	}

	if _, err := env.engine.RestoreFromPath(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), ScopeComplete, RestoreOptions{}); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound for a missing upload, got %v", err)
	}
}

func TestClassifyArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	dump := touch("legacy.sql")
	files := touch("x_files.zip")
	pkg := touch("x_complete.zip")

	tests := []struct {
		name    string
		path    string
		scope   RestoreScope
		want    sources
		wantErr bool
	}{
		{"plain sql dump", dump, ScopeDatabase, sources{Database: dump}, false},
		{"files archive", files, ScopeFiles, sources{Files: files}, false},
		{"package", pkg, ScopeDatabase, sources{Package: pkg}, false},
		{"dump for files scope", dump, ScopeFiles, sources{}, true},
		{"archive for complete scope", files, ScopeComplete, sources{}, true},
		{"unrecognised", touch("notes.txt"), ScopeComplete, sources{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifyArtifact(tt.path, tt.scope)
			if (err != nil) != tt.wantErr {
				t.Fatalf("classifyArtifact() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("classifyArtifact() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRestoreSafetyBackup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.create(t, CreateOptions{Name: "base", Type: TypeDatabase})
	execSQL(t, env.dbPath, `INSERT INTO notes (id, body) VALUES (9, 'live only')`)

	result, err := env.engine.RestoreDatabase(context.Background(), "base", RestoreOptions{SafetyBackup: true})
	if err != nil {
		t.Fatalf("RestoreDatabase() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("restore failed: %v", result.Errors)
	}
	if result.SafetyBackup == "" {
		t.Fatalf("expected a safety backup, messages: %v", result.Messages)
	}

	safety := filepath.Join(env.backupDir(), result.SafetyBackup+retention.SuffixDatabase)
	if n := countLinesWithPrefix(gunzip(t, safety), "INSERT INTO"); n != 3 {
		t.Errorf("safety dump has %d rows, want 3", n)
	}
	if got := noteBodies(t, env.dbPath); len(got) != 2 {
		t.Errorf("notes after restore = %v", got)
	}
}

func TestRestoreFailureEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.create(t, CreateOptions{Name: "bad", Type: TypeDatabase})
	env.cfg.Database.DSN = "missing/nested/app.db"

	rec := &eventRecorder{}
	result, err := env.engine.RestoreDatabase(context.Background(), "bad", RestoreOptions{Sink: rec})
	if err != nil {
		t.Fatalf("RestoreDatabase() error = %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when the database is unreachable")
	}
	if len(result.Errors) == 0 {
		t.Error("expected an error entry")
	}
	assertStream(t, rec.Events(), progress.StepError)
}
