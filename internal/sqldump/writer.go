// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package sqldump

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// PartialSuffix marks an output file that is still being written.
const PartialSuffix = ".partial"

// dumpFile buffers SQL text and flushes it into a gzip stream once the
// buffer reaches threshold bytes. Output goes to dest+PartialSuffix and is
// renamed to dest by commit.
type dumpFile struct {
	dest      string
	partial   string
	file      *os.File
	gz        *gzip.Writer
	buf       bytes.Buffer
	threshold int
	written   int64
	done      bool
}

func createDumpFile(dest string, threshold, level int) (*dumpFile, error) {
	partial := dest + PartialSuffix
	//nolint:gosec // G304: dest is built from the configured backup directory
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file: %w", err)
	}
	gz, err := gzip.NewWriterLevel(f, level)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	w := &dumpFile{dest: dest, partial: partial, file: f, gz: gz, threshold: threshold}
	w.buf.Grow(threshold)
	return w, nil
}

// line appends s and a newline.
func (w *dumpFile) line(s string) error {
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
	if w.buf.Len() >= w.threshold {
		return w.flush()
	}
	return nil
}

// statement appends s terminated by delim.
func (w *dumpFile) statement(s, delim string) error {
	w.buf.WriteString(s)
	return w.line(delim)
}

func (w *dumpFile) flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	n, err := w.gz.Write(w.buf.Bytes())
	w.written += int64(n)
	w.buf.Reset()
	if err != nil {
		return fmt.Errorf("failed to write dump data: %w", err)
	}
	return nil
}

// Write streams p straight into the compressed output.
func (w *dumpFile) Write(p []byte) (int, error) {
	if err := w.flush(); err != nil {
		return 0, err
	}
	n, err := w.gz.Write(p)
	w.written += int64(n)
	return n, err
}

// commit finishes the gzip stream, syncs and publishes the file. It
// returns the compressed size.
func (w *dumpFile) commit() (int64, error) {
	if err := w.flush(); err != nil {
		return 0, err
	}
	if err := w.gz.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync dump file: %w", err)
	}
	info, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat dump file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close dump file: %w", err)
	}
	if err := os.Rename(w.partial, w.dest); err != nil {
		return 0, fmt.Errorf("failed to publish dump file: %w", err)
	}
	w.done = true
	return info.Size(), nil
}

// abort discards everything written so far. Safe after commit.
func (w *dumpFile) abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.gz.Close()
	_ = w.file.Close()
	_ = os.Remove(w.partial)
}

var _ io.Writer = (*dumpFile)(nil)
