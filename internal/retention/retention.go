// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package retention lists, groups and prunes snapshot files in a backup
// directory.
//
// Everything here is derived from file names alone:
//
//	{base}_db.sql.gz     KindDatabase
//	{base}_files.zip     KindFiles
//	{base}_complete.zip  KindComplete
//
// Other .zip, .sql.gz and .sql files are reported as KindUnknown and are
// never pruned. Files still being written (".partial") and the metadata index
// are ignored.
package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/validation"
)

// Kind is the type of a snapshot file.
type Kind string

// Snapshot kinds.
const (
	KindDatabase Kind = "database"
	KindFiles    Kind = "files"
	KindComplete Kind = "complete"
	KindUnknown  Kind = "unknown"
)

// Filename suffixes per kind.
const (
	SuffixDatabase = "_db.sql.gz"
	SuffixFiles    = "_files.zip"
	SuffixComplete = "_complete.zip"
)

// IndexFile is the aggregate metadata index kept in the backup directory.
const IndexFile = "metadata.json"

const partialSuffix = ".partial"

// DefaultKeep is the number of snapshots of each kind kept by Prune.
const DefaultKeep = 5

// PrunedKinds are the kinds retention applies to, in reporting order.
var PrunedKinds = []Kind{KindComplete, KindDatabase, KindFiles}

var (
	// ErrGroupNotFound is returned when no snapshot has the requested base name.
	ErrGroupNotFound = errors.New("snapshot group not found")

	// ErrInvalidName is returned for base names that could escape the
	// backup directory or never match a snapshot.
	ErrInvalidName = errors.New("invalid snapshot name")
)

// FileName returns the snapshot file name for base and kind.
func FileName(base string, kind Kind) string {
	switch kind {
	case KindDatabase:
		return base + SuffixDatabase
	case KindFiles:
		return base + SuffixFiles
	case KindComplete:
		return base + SuffixComplete
	default:
		return base
	}
}

// KindFromName infers the kind and base name of a snapshot file name. ok is
// false for names that are not snapshot files at all.
func KindFromName(name string) (kind Kind, base string, ok bool) {
	lower := strings.ToLower(name)
	for _, c := range []struct {
		suffix string
		kind   Kind
	}{
		{SuffixDatabase, KindDatabase},
		{SuffixComplete, KindComplete},
		{SuffixFiles, KindFiles},
	} {
		if strings.HasSuffix(lower, c.suffix) && len(name) > len(c.suffix) {
			return c.kind, name[:len(name)-len(c.suffix)], true
		}
	}
	for _, ext := range []string{".sql.gz", ".zip", ".sql"} {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return KindUnknown, name[:len(name)-len(ext)], true
		}
	}
	return KindUnknown, "", false
}

// Snapshot is one snapshot file on disk.
type Snapshot struct {
	BaseName  string    `json:"base_name"`
	Kind      Kind      `json:"kind"`
	FileName  string    `json:"file_name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Scan lists the snapshot files in dir, newest first. A missing directory
// yields an empty list.
func Scan(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == IndexFile || strings.HasSuffix(name, partialSuffix) {
			continue
		}
		kind, base, ok := KindFromName(name)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		snapshots = append(snapshots, Snapshot{
			BaseName:  base,
			Kind:      kind,
			FileName:  name,
			Path:      filepath.Join(dir, name),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sortNewestFirst(snapshots)
	return snapshots, nil
}

// sortNewestFirst orders by creation time, newest first, then by file name
// descending so timestamped names break ties the same way.
func sortNewestFirst(s []Snapshot) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].FileName > s[j].FileName
	})
}

// Group is every snapshot sharing one base name.
type Group struct {
	BaseName  string     `json:"base_name"`
	Database  *Snapshot  `json:"database"`
	Files     *Snapshot  `json:"files"`
	Complete  *Snapshot  `json:"complete"`
	Other     []Snapshot `json:"other,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SizeBytes int64      `json:"size_bytes"`
}

// Members returns the group's snapshots.
func (g *Group) Members() []Snapshot {
	var out []Snapshot
	for _, s := range []*Snapshot{g.Complete, g.Database, g.Files} {
		if s != nil {
			out = append(out, *s)
		}
	}
	return append(out, g.Other...)
}

// GroupSnapshots groups snapshots by base name, newest group first.
func GroupSnapshots(snapshots []Snapshot) []*Group {
	byName := make(map[string]*Group)
	var order []*Group
	for i := range snapshots {
		s := snapshots[i]
		g, ok := byName[s.BaseName]
		if !ok {
			g = &Group{BaseName: s.BaseName}
			byName[s.BaseName] = g
			order = append(order, g)
		}
		switch s.Kind {
		case KindDatabase:
			if g.Database == nil {
				g.Database = &s
			}
		case KindFiles:
			if g.Files == nil {
				g.Files = &s
			}
		case KindComplete:
			if g.Complete == nil {
				g.Complete = &s
			}
		default:
			g.Other = append(g.Other, s)
		}
		g.SizeBytes += s.SizeBytes
		if s.CreatedAt.After(g.CreatedAt) {
			g.CreatedAt = s.CreatedAt
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if !order[i].CreatedAt.Equal(order[j].CreatedAt) {
			return order[i].CreatedAt.After(order[j].CreatedAt)
		}
		return order[i].BaseName > order[j].BaseName
	})
	return order
}

// Preview shows what Prune would do.
type Preview struct {
	Keep        []Snapshot `json:"keep"`
	Delete      []Snapshot `json:"delete"`
	KeepBytes   int64      `json:"keep_bytes"`
	DeleteBytes int64      `json:"delete_bytes"`
}

// Plan splits snapshots into the ones a keep-N prune keeps and deletes.
// Each pruned kind is limited independently; unknown files are always kept.
func Plan(snapshots []Snapshot, keep int) *Preview {
	if keep < 1 {
		keep = 1
	}
	sorted := append([]Snapshot(nil), snapshots...)
	sortNewestFirst(sorted)

	p := &Preview{Keep: []Snapshot{}, Delete: []Snapshot{}}
	seen := make(map[Kind]int)
	for _, s := range sorted {
		if s.Kind == KindUnknown {
			p.Keep = append(p.Keep, s)
			p.KeepBytes += s.SizeBytes
			continue
		}
		seen[s.Kind]++
		if seen[s.Kind] > keep {
			p.Delete = append(p.Delete, s)
			p.DeleteBytes += s.SizeBytes
		} else {
			p.Keep = append(p.Keep, s)
			p.KeepBytes += s.SizeBytes
		}
	}
	return p
}

// PruneResult describes one Prune call.
type PruneResult struct {
	Deleted    []string `json:"deleted"`
	Kept       int      `json:"kept"`
	FreedBytes int64    `json:"freed_bytes"`
	Errors     []string `json:"errors,omitempty"`
}

// Prune deletes all but the newest keep snapshots of each kind in dir.
// Running it again immediately deletes nothing. Files that cannot be removed
// are reported in Errors and do not stop the rest.
func Prune(dir string, keep int) (*PruneResult, error) {
	snapshots, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	plan := Plan(snapshots, keep)
	result := &PruneResult{Deleted: []string{}, Kept: len(plan.Keep)}

	for _, s := range plan.Delete {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", s.FileName, err))
			logging.Warn().Err(err).Str("file", s.FileName).Msg("Failed to delete old snapshot")
			continue
		}
		result.Deleted = append(result.Deleted, s.FileName)
		result.FreedBytes += s.SizeBytes
	}

	if len(result.Deleted) > 0 {
		logging.Info().
			Int("deleted_count", len(result.Deleted)).
			Float64("freed_mb", float64(result.FreedBytes)/(1024*1024)).
			Int("keep", keep).
			Msg("Retention policy applied")
	}
	return result, nil
}

// DeleteResult describes one DeleteGroup call.
type DeleteResult struct {
	BaseName string   `json:"base_name"`
	Deleted  []string `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// DeleteGroup removes every snapshot whose base name is base.
func DeleteGroup(dir, base string) (*DeleteResult, error) {
	if !validation.IsSnapshotName(base) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	snapshots, err := Scan(dir)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{BaseName: base, Deleted: []string{}}
	found := false
	for _, s := range snapshots {
		if s.BaseName != base {
			continue
		}
		found = true
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", s.FileName, err))
			continue
		}
		result.Deleted = append(result.Deleted, s.FileName)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, base)
	}

	logging.Info().
		Str("base_name", base).
		Strs("deleted", result.Deleted).
		Int("errors", len(result.Errors)).
		Msg("Snapshot group deleted")
	return result, nil
}
