// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
Package bundle builds and opens unified packages.

A unified package is a zip container holding one database dump and one
files archive plus a metadata document:

	{name}_complete.zip
	├── database/
	│   └── {name}_db.sql.gz
	├── files/
	│   └── {name}_files.zip
	└── backup_metadata.json

The inner members are already compressed and are stored as-is; only the
metadata document is deflated. The metadata is advisory: when it is missing,
malformed, or names files that are not present, Disassemble falls back to
searching each member directory by extension.
*/
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/snapvault/internal/archive"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

var (
	// ErrNoMetadata is returned by ReadMetadata when the package has no
	// metadata document.
	ErrNoMetadata = errors.New("package has no metadata")

	// ErrEmptyPackage is returned when a package holds neither a database
	// dump nor a files archive.
	ErrEmptyPackage = errors.New("package contains no database dump or files archive")
)

const partialSuffix = ".partial"

// PackageResult describes one Assemble call.
type PackageResult struct {
	Success   bool   `json:"success"`
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

// Contents is an extracted package.
type Contents struct {
	Dir          string    `json:"dir"`
	Metadata     *Metadata `json:"metadata,omitempty"`
	DatabaseFile string    `json:"database_file,omitempty"`
	FilesFile    string    `json:"files_file,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// Manager assembles and disassembles unified packages.
type Manager struct {
	maxFileBytes int64
}

// NewManager returns a Manager. maxFileBytes bounds each extracted member;
// zero uses archive.DefaultMaxFileBytes.
func NewManager(maxFileBytes int64) *Manager {
	return &Manager{maxFileBytes: maxFileBytes}
}

// Assemble writes dbArtifact, filesArtifact and meta into dest. Either
// artifact may be empty, but not both. The DatabaseFile and FilesFile fields
// of meta are set from the artifact names.
func (m *Manager) Assemble(ctx context.Context, dbArtifact, filesArtifact string, meta Metadata, dest string) (*PackageResult, error) {
	result := &PackageResult{File: dest}
	if dbArtifact == "" && filesArtifact == "" {
		return failPackage(result, ErrEmptyPackage)
	}

	meta.DatabaseFile = baseOrEmpty(dbArtifact)
	meta.FilesFile = baseOrEmpty(filesArtifact)
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(TimeFormat)
	}
	if meta.RestoreInstructions == (RestoreInstructions{}) {
		meta.RestoreInstructions = DefaultInstructions
	}
	doc, err := meta.Encode()
	if err != nil {
		return failPackage(result, err)
	}

	partial := dest + partialSuffix
	//nolint:gosec // G304: dest is built from the configured backup directory
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return failPackage(result, fmt.Errorf("failed to create package: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(partial)
		}
	}()

	zw := zip.NewWriter(f)
	if dbArtifact != "" {
		if err := storeMember(ctx, zw, dbArtifact, DatabaseDir+"/"+meta.DatabaseFile); err != nil {
			return failPackage(result, err)
		}
	}
	if filesArtifact != "" {
		if err := storeMember(ctx, zw, filesArtifact, FilesDir+"/"+meta.FilesFile); err != nil {
			return failPackage(result, err)
		}
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     MetadataFile,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return failPackage(result, fmt.Errorf("failed to add metadata: %w", err))
	}
	if _, err := w.Write(doc); err != nil {
		return failPackage(result, fmt.Errorf("failed to write metadata: %w", err))
	}

	if err := zw.Close(); err != nil {
		return failPackage(result, fmt.Errorf("failed to finish package: %w", err))
	}
	if err := f.Sync(); err != nil {
		return failPackage(result, fmt.Errorf("failed to sync package: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		return failPackage(result, fmt.Errorf("failed to stat package: %w", err))
	}
	if err := f.Close(); err != nil {
		return failPackage(result, fmt.Errorf("failed to close package: %w", err))
	}
	if err := os.Rename(partial, dest); err != nil {
		return failPackage(result, fmt.Errorf("failed to publish package: %w", err))
	}
	committed = true

	result.Success = true
	result.SizeBytes = info.Size()
	logging.Ctx(ctx).Info().
		Str("file", dest).
		Int64("size_bytes", result.SizeBytes).
		Msg("Unified package written")
	return result, nil
}

// storeMember copies src into the zip without recompressing it.
func storeMember(ctx context.Context, zw *zip.Writer, src, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	//nolint:gosec // G304: src is an artifact this process just wrote
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(src), err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Disassemble extracts the package at pkg into scratch and locates its
// members. The caller owns scratch and must remove it.
func (m *Manager) Disassemble(ctx context.Context, pkg, scratch string, span *progress.Span) (*Contents, error) {
	if _, err := archive.Extract(ctx, pkg, scratch, m.maxFileBytes, span); err != nil {
		return nil, fmt.Errorf("failed to extract package: %w", err)
	}

	c := &Contents{Dir: scratch}
	logger := logging.Ctx(ctx)

	data, err := os.ReadFile(filepath.Join(scratch, MetadataFile))
	switch {
	case err != nil:
		c.Warnings = append(c.Warnings, "package metadata missing, searching members by extension")
	default:
		meta, decodeErr := DecodeMetadata(data)
		if decodeErr != nil {
			c.Warnings = append(c.Warnings, decodeErr.Error())
		} else {
			c.Metadata = meta
		}
	}

	if c.Metadata != nil {
		c.DatabaseFile = memberIfPresent(scratch, DatabaseDir, c.Metadata.DatabaseFile)
		c.FilesFile = memberIfPresent(scratch, FilesDir, c.Metadata.FilesFile)
		if c.Metadata.DatabaseFile != "" && c.DatabaseFile == "" {
			c.Warnings = append(c.Warnings, fmt.Sprintf("metadata names missing database file %q", c.Metadata.DatabaseFile))
		}
		if c.Metadata.FilesFile != "" && c.FilesFile == "" {
			c.Warnings = append(c.Warnings, fmt.Sprintf("metadata names missing files archive %q", c.Metadata.FilesFile))
		}
	}
	if c.DatabaseFile == "" {
		c.DatabaseFile = findMember(filepath.Join(scratch, DatabaseDir), ".sql.gz", ".sql")
	}
	if c.FilesFile == "" {
		c.FilesFile = findMember(filepath.Join(scratch, FilesDir), ".zip")
	}

	for _, w := range c.Warnings {
		logger.Warn().Str("package", filepath.Base(pkg)).Msg(w)
	}
	if c.DatabaseFile == "" && c.FilesFile == "" {
		return c, ErrEmptyPackage
	}
	return c, nil
}

// memberIfPresent returns scratch/dir/name when name is a plain file name
// that exists.
func memberIfPresent(scratch, dir, name string) string {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return ""
	}
	p := filepath.Join(scratch, dir, name)
	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p
	}
	return ""
}

// findMember returns the first regular file in dir, by name, whose name ends
// with one of suffixes. Earlier suffixes win.
func findMember(dir string, suffixes ...string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, suffix := range suffixes {
		for _, n := range names {
			if strings.HasSuffix(strings.ToLower(n), suffix) {
				return filepath.Join(dir, n)
			}
		}
	}
	return ""
}

func baseOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

func failPackage(result *PackageResult, err error) (*PackageResult, error) {
	result.Success = false
	result.Error = err.Error()
	return result, err
}
