// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package archive packs a file tree into a zip archive and unpacks it again.
//
// The same ExclusionSet drives both directions: excluded paths are never
// written into an archive and never overwritten when a tree is copied back.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

// PartialSuffix marks an archive that is still being written.
const PartialSuffix = ".partial"

// ErrNoFiles is returned when a tree has nothing eligible to archive.
var ErrNoFiles = errors.New("no files to archive")

// ArchiveResult describes one archive attempt.
type ArchiveResult struct {
	Success     bool   `json:"success"`
	File        string `json:"file"`
	FileCount   int    `json:"file_count"`
	SizeBytes   int64  `json:"size_bytes"`
	SourceBytes int64  `json:"source_bytes"`
	Skipped     int    `json:"skipped"`
	Error       string `json:"error,omitempty"`
}

// Archiver writes zip archives of a directory tree.
type Archiver struct {
	level int
}

// NewArchiver returns an archiver using deflate at level (-1 for default).
func NewArchiver(level int) *Archiver {
	return &Archiver{level: level}
}

// Create archives every eligible regular file under root into dest.
//
// A first pass counts eligible files so the second can report
// processed/total. Directories, symlinks and files that cannot be opened are
// skipped without failing the archive. If nothing was written, ErrNoFiles is
// returned and no archive is left behind.
func (a *Archiver) Create(ctx context.Context, root, dest string, excl ExclusionSet, span *progress.Span) (*ArchiveResult, error) {
	result := &ArchiveResult{File: dest}
	logger := logging.Ctx(ctx)
	partial := dest + PartialSuffix
	ignore := map[string]bool{filepath.Clean(dest): true, filepath.Clean(partial): true}

	span.Start("Scanning files")
	total := 0
	err := walkEligible(ctx, root, excl, ignore, func(string, string, fs.DirEntry) error {
		total++
		return nil
	})
	if err != nil {
		return failArchive(result, fmt.Errorf("failed to scan %s: %w", root, err))
	}
	if total == 0 {
		return failArchive(result, ErrNoFiles)
	}

	//nolint:gosec // G304: dest is built from the configured backup directory
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return failArchive(result, fmt.Errorf("failed to create archive: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(partial)
		}
	}()

	zw := zip.NewWriter(f)
	level := a.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	processed := 0
	err = walkEligible(ctx, root, excl, ignore, func(abs, rel string, d fs.DirEntry) error {
		processed++
		n, err := addFile(zw, abs, rel, d)
		if err != nil {
			if errors.Is(err, errUnreadable) {
				result.Skipped++
				logger.Debug().Err(err).Str("path", rel).Msg("Skipping unreadable file")
				return nil
			}
			return err
		}
		result.FileCount++
		result.SourceBytes += n
		if processed%50 == 0 || processed == total {
			span.Update(int64(processed), int64(total), fmt.Sprintf("Archived %d/%d files", processed, total))
		}
		return nil
	})
	if err != nil {
		return failArchive(result, fmt.Errorf("failed to archive %s: %w", root, err))
	}
	if result.FileCount == 0 {
		return failArchive(result, ErrNoFiles)
	}

	if err := zw.Close(); err != nil {
		return failArchive(result, fmt.Errorf("failed to finish archive: %w", err))
	}
	if err := f.Sync(); err != nil {
		return failArchive(result, fmt.Errorf("failed to sync archive: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		return failArchive(result, fmt.Errorf("failed to stat archive: %w", err))
	}
	if err := f.Close(); err != nil {
		return failArchive(result, fmt.Errorf("failed to close archive: %w", err))
	}
	if err := os.Rename(partial, dest); err != nil {
		return failArchive(result, fmt.Errorf("failed to publish archive: %w", err))
	}
	committed = true

	result.Success = true
	result.SizeBytes = info.Size()
	span.Finish(fmt.Sprintf("Archived %d files", result.FileCount))
	logger.Info().
		Str("file", dest).
		Int("files", result.FileCount).
		Int("skipped", result.Skipped).
		Int64("size_bytes", result.SizeBytes).
		Msg("File archive written")
	return result, nil
}

var errUnreadable = errors.New("file not readable")

func addFile(zw *zip.Writer, abs, rel string, d fs.DirEntry) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	//nolint:gosec // G304: abs comes from walking the archive root
	src, err := os.Open(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	defer func() { _ = src.Close() }()

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("failed to build header for %s: %w", rel, err)
	}
	hdr.Name = rel
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", rel, err)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return n, nil
}

// walkEligible calls fn for every regular file under root that is not
// excluded. Unreadable directories are skipped.
func walkEligible(ctx context.Context, root string, excl ExclusionSet, ignore map[string]bool, fn func(abs, rel string, d fs.DirEntry) error) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			if p == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if excl.Excludes(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || ignore[filepath.Clean(p)] {
			return nil
		}
		return fn(p, rel, d)
	})
}

func failArchive(result *ArchiveResult, err error) (*ArchiveResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.SizeBytes = 0
	return result, err
}
