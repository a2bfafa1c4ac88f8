// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package archive

import (
	"path"
	"path/filepath"
	"strings"
)

// ExclusionSet is an immutable, ordered set of root-relative path prefixes.
//
// A path is excluded when it equals a prefix or starts with prefix + "/".
// Paths are compared in slash form regardless of the host OS, so the same
// set gives the same answer when archiving and when restoring.
type ExclusionSet struct {
	prefixes []string
}

// NewExclusionSet normalizes prefixes and drops empties and duplicates.
func NewExclusionSet(prefixes ...string) ExclusionSet {
	seen := make(map[string]bool, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		n := normalize(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return ExclusionSet{prefixes: out}
}

// Merge returns base followed by the entries of extra not already in base.
// Neither argument is modified.
func Merge(base, extra ExclusionSet) ExclusionSet {
	all := make([]string, 0, len(base.prefixes)+len(extra.prefixes))
	all = append(all, base.prefixes...)
	all = append(all, extra.prefixes...)
	return NewExclusionSet(all...)
}

// With is shorthand for Merge(s, NewExclusionSet(prefixes...)).
func (s ExclusionSet) With(prefixes ...string) ExclusionSet {
	return Merge(s, NewExclusionSet(prefixes...))
}

// Excludes reports whether the root-relative path rel is excluded.
func (s ExclusionSet) Excludes(rel string) bool {
	rel = normalize(rel)
	if rel == "" {
		return false
	}
	for _, p := range s.prefixes {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the normalized prefixes.
func (s ExclusionSet) Prefixes() []string {
	return append([]string(nil), s.prefixes...)
}

// Len returns the number of prefixes.
func (s ExclusionSet) Len() int {
	return len(s.prefixes)
}

func normalize(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// RelativeTo returns target relative to root in slash form, or "" when
// target is not inside root.
func RelativeTo(root, target string) string {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}
