// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Index is the aggregate metadata document (metadata.json) mapping each
// backup name to the result of the create that produced it.
//
// Entries are only ever added. Deleting or pruning snapshots leaves their
// records in place so the history of what was taken survives.
type Index struct {
	path string
	mu   sync.Mutex
}

// NewIndex returns the index stored at path.
func NewIndex(path string) *Index {
	return &Index{path: path}
}

// Path returns the index file location.
func (i *Index) Path() string {
	return i.path
}

// Load returns every record. A missing file yields an empty map.
func (i *Index) Load() (map[string]*CreateResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loadLocked()
}

func (i *Index) loadLocked() (map[string]*CreateResult, error) {
	records := make(map[string]*CreateResult)
	data, err := os.ReadFile(i.path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, fmt.Errorf("failed to read metadata index: %w", err)
	}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse metadata index: %w", err)
	}
	return records, nil
}

// Get returns the record for name, or nil.
func (i *Index) Get(name string) (*CreateResult, error) {
	records, err := i.Load()
	if err != nil {
		return nil, err
	}
	return records[name], nil
}

// Append adds rec under its backup name. An existing record with the same
// name is kept and Append reports an error.
func (i *Index) Append(rec *CreateResult) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	records, err := i.loadLocked()
	if err != nil {
		return err
	}
	if _, exists := records[rec.BackupName]; exists {
		return fmt.Errorf("metadata index already has %q", rec.BackupName)
	}
	records[rec.BackupName] = rec
	return i.saveLocked(records)
}

// saveLocked replaces the index file atomically.
func (i *Index) saveLocked(records map[string]*CreateResult) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata index: %w", err)
	}
	dir := filepath.Dir(i.path)
	tmp, err := os.CreateTemp(dir, ".metadata-*")
	if err != nil {
		return fmt.Errorf("failed to write metadata index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write metadata index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync metadata index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close metadata index: %w", err)
	}
	if err := os.Rename(tmpName, i.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace metadata index: %w", err)
	}
	return nil
}
