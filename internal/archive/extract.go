// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/progress"
)

// DefaultMaxFileBytes caps a single extracted entry.
const DefaultMaxFileBytes int64 = 4 << 30

// Extract unpacks the zip at archivePath into destDir and returns the number
// of files written. Entries that would escape destDir or exceed
// maxFileBytes abort the extraction.
func Extract(ctx context.Context, archivePath, destDir string, maxFileBytes int64, span *progress.Span) (int, error) {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive %s: %w", filepath.Base(archivePath), err)
	}
	defer func() { _ = zr.Close() }()

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	total := int64(len(zr.File))
	files := 0
	for i, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, fmt.Errorf("extraction cancelled: %w", err)
		}
		destPath, err := validateAndBuildDestPath(destDir, zf.Name)
		if err != nil {
			return files, err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o750); err != nil {
				return files, fmt.Errorf("failed to create directory %s: %w", zf.Name, err)
			}
			continue
		}
		if zf.UncompressedSize64 > uint64(maxFileBytes) {
			return files, fmt.Errorf("archive entry %s exceeds maximum size (%d > %d bytes)", zf.Name, zf.UncompressedSize64, maxFileBytes)
		}
		if err := extractEntry(zf, destPath, maxFileBytes); err != nil {
			return files, err
		}
		files++
		if (i+1)%50 == 0 || int64(i+1) == total {
			span.Update(int64(i+1), total, fmt.Sprintf("Extracted %d/%d entries", i+1, total))
		}
	}
	return files, nil
}

// validateAndBuildDestPath joins name onto dir and rejects results outside dir.
func validateAndBuildDestPath(dir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid file path in archive: %q", name)
	}
	destPath := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(destPath, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path in archive: %q", name)
	}
	return destPath, nil
}

func extractEntry(zf *zip.File, destPath string, maxFileBytes int64) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", zf.Name, err)
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", zf.Name, err)
	}
	defer func() { _ = rc.Close() }()

	mode := zf.Mode().Perm() | 0o600
	//nolint:gosec // G304: destPath is validated by validateAndBuildDestPath
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", zf.Name, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxFileBytes+1))
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", zf.Name, err)
	}
	if n > maxFileBytes {
		_ = out.Close()
		return fmt.Errorf("archive entry %s exceeds maximum size", zf.Name)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", zf.Name, err)
	}
	if !zf.Modified.IsZero() {
		_ = os.Chtimes(destPath, zf.Modified, zf.Modified)
	}
	return nil
}

// CopyResult describes copying an extracted tree onto the live root.
type CopyResult struct {
	Success   bool     `json:"success"`
	Copied    int      `json:"copied"`
	Excluded  int      `json:"excluded"`
	Protected int      `json:"protected"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CopyTree copies every regular file under src onto dstRoot, skipping
// paths in excl and the protected files. Files already present in dstRoot
// but absent from src are left alone. Per-file failures are collected and
// make the result unsuccessful without stopping the copy.
func CopyTree(ctx context.Context, src, dstRoot string, excl ExclusionSet, protected []string, span *progress.Span) (*CopyResult, error) {
	result := &CopyResult{}
	logger := logging.Ctx(ctx)
	keep := NewExclusionSet(protected...)

	var total int64
	_ = filepath.WalkDir(src, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			total++
		}
		return nil
	})
	span.Start(fmt.Sprintf("Restoring %d files", total))

	var processed int64
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == src {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if excl.Excludes(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			result.Excluded++
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		processed++
		if keep.Excludes(rel) {
			result.Protected++
			logger.Info().Str("path", rel).Msg("Keeping protected file")
			return nil
		}

		if err := copyFile(p, filepath.Join(dstRoot, filepath.FromSlash(rel))); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			logger.Warn().Err(err).Str("path", rel).Msg("Failed to restore file")
		} else {
			result.Copied++
		}
		if processed%50 == 0 || processed == total {
			span.Update(processed, total, fmt.Sprintf("Restored %d/%d files", processed, total))
		}
		return nil
	})
	if err != nil {
		result.Error = fmt.Sprintf("failed to walk extracted files: %v", err)
		return result, fmt.Errorf("failed to walk extracted files: %w", err)
	}

	result.Success = result.Failed == 0
	if !result.Success {
		result.Error = fmt.Sprintf("%d files could not be restored", result.Failed)
	}
	span.Finish(fmt.Sprintf("Restored %d files", result.Copied))
	return result, nil
}

func copyFile(src, dst string) error {
	//nolint:gosec // G304: src is inside the extraction directory
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	//nolint:gosec // G304: dst is the live root joined with a validated relative path
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
