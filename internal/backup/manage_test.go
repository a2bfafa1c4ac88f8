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
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/snapvault/internal/retention"
)

func TestListGroupedAndDeleteGroup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"a_db.sql.gz", "a_files.zip", "b_complete.zip"} {
		p := filepath.Join(env.backupDir(), name)
		if err := os.WriteFile(p, []byte("snapshot"), 0o600); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	groups, err := env.engine.ListGrouped()
	if err != nil {
		t.Fatalf("ListGrouped() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	byName := make(map[string]*retention.Group)
	for _, g := range groups {
		byName[g.BaseName] = g
	}
	a, b := byName["a"], byName["b"]
	if a == nil || a.Database == nil || a.Files == nil || a.Complete != nil {
		t.Errorf("unexpected group a: %+v", a)
	}
	if b == nil || b.Complete == nil || b.Database != nil || b.Files != nil {
		t.Errorf("unexpected group b: %+v", b)
	}

	deleted, err := env.engine.DeleteGroup(context.Background(), "a")
	if err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	slices.Sort(deleted.Deleted)
	if want := []string{"a_db.sql.gz", "a_files.zip"}; !slices.Equal(deleted.Deleted, want) {
		t.Errorf("deleted = %v, want %v", deleted.Deleted, want)
	}

	groups, err = env.engine.ListGrouped()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].BaseName != "b" {
		t.Errorf("expected only group b to remain, got %+v", groups)
	}

	if _, err := env.engine.DeleteGroup(context.Background(), "a"); !errors.Is(err, retention.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound on second delete, got %v", err)
	}
}

func TestDeleteGroupKeepsIndexRecord(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.create(t, CreateOptions{Name: "first", Type: TypeDatabase})
	env.create(t, CreateOptions{Name: "second", Type: TypeDatabase})

	if _, err := env.engine.DeleteGroup(context.Background(), "first"); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}

	records, err := env.engine.Index().Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"first", "second"} {
		rec, ok := records[name]
		if !ok {
			t.Errorf("index lost record %s", name)
			continue
		}
		if !rec.Success || rec.BackupType != TypeDatabase {
			t.Errorf("unexpected record %s: %+v", name, rec)
		}
	}

	// Deleted names stay reserved by their index record.
	if _, err := env.engine.Create(context.Background(), CreateOptions{Name: "first"}); !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("expected ErrSnapshotExists for an indexed name, got %v", err)
	}
}

func TestPruneAndPreview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.cfg.Backup.Retention = 1
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"old_files.zip", "mid_files.zip", "new_files.zip", "legacy.zip"} {
		p := filepath.Join(env.backupDir(), name)
		if err := os.WriteFile(p, []byte("snapshot"), 0o600); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	preview, err := env.engine.PrunePreview()
	if err != nil {
		t.Fatalf("PrunePreview() error = %v", err)
	}
	if len(preview.Delete) != 2 {
		t.Errorf("expected 2 planned deletions, got %+v", preview.Delete)
	}

	result, err := env.engine.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	slices.Sort(result.Deleted)
	if want := []string{"mid_files.zip", "old_files.zip"}; !slices.Equal(result.Deleted, want) {
		t.Errorf("deleted = %v, want %v", result.Deleted, want)
	}
	names := dirNames(t, env.backupDir())
	if !slices.Contains(names, "legacy.zip") || !slices.Contains(names, "new_files.zip") {
		t.Errorf("unexpected remaining files %v", names)
	}
}

func TestOperationsRefuseWhileLocked(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	release, err := acquireLock(context.Background(), env.backupDir(), time.Second)
	if err != nil {
		t.Fatalf("acquireLock() error = %v", err)
	}

	if _, err := env.engine.Create(context.Background(), CreateOptions{}); !errors.Is(err, ErrLocked) {
		t.Errorf("Create: expected ErrLocked, got %v", err)
	}
	if _, err := env.engine.RestoreComplete(context.Background(), "any", RestoreOptions{}); !errors.Is(err, ErrLocked) {
		t.Errorf("RestoreComplete: expected ErrLocked, got %v", err)
	}
	if _, err := env.engine.Prune(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("Prune: expected ErrLocked, got %v", err)
	}

	release()
	if result := env.create(t, CreateOptions{Type: TypeDatabase}); !result.Success {
		t.Errorf("create after release failed: %v", result.Errors)
	}
}

func TestLockName(t *testing.T) {
	t.Parallel()

	a := lockName("/srv/one/backups")
	if a != lockName("/srv/one/backups/") {
		t.Error("equivalent paths should share a lock")
	}
	if a == lockName("/srv/two/backups") {
		t.Error("different directories should not share a lock")
	}
	if len(a) != len("snapvault-")+16 {
		t.Errorf("unexpected lock name %q", a)
	}
}

func TestIndexAppend(t *testing.T) {
	t.Parallel()

	idx := NewIndex(filepath.Join(t.TempDir(), retention.IndexFile))

	records, err := idx.Load()
	if err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty index, got %v", records)
	}

	if err := idx.Append(&CreateResult{BackupName: "one", Success: true}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := idx.Append(&CreateResult{BackupName: "two", Success: true}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := idx.Append(&CreateResult{BackupName: "one"}); err == nil {
		t.Error("expected duplicate Append to fail")
	}

	rec, err := idx.Get("one")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || !rec.Success {
		t.Errorf("duplicate Append replaced the record: %+v", rec)
	}
	records, err = idx.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}
