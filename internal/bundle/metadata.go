// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package bundle

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
)

// MetadataFile is the name of the metadata document at the package root.
const MetadataFile = "backup_metadata.json"

// Member directories inside a unified package.
const (
	DatabaseDir = "database"
	FilesDir    = "files"
)

// TimeFormat is used for every timestamp written into a package.
const TimeFormat = time.RFC3339

// VersionInfo records what was installed when a snapshot was taken.
type VersionInfo struct {
	SystemVersion  string            `json:"system_version"`
	RuntimeVersion string            `json:"runtime_version"`
	Plugins        map[string]string `json:"plugins"`
	CreatedAt      string            `json:"created_at"`
}

// RestoreInstructions is the fixed help block embedded in every package.
type RestoreInstructions struct {
	Database string `json:"database"`
	Files    string `json:"files"`
	Complete string `json:"complete"`
	Note     string `json:"note"`
}

// DefaultInstructions is written into every package.
var DefaultInstructions = RestoreInstructions{
	Database: "gunzip the file under database/ and replay it with: snapvault restore <name> --database",
	Files:    "unzip the archive under files/ onto the installation root, or run: snapvault restore <name> --files",
	Complete: "snapvault restore <name> restores files first and then the database",
	Note:     "authentication tables and protected files such as .env are kept from the live system",
}

// Metadata is the backup_metadata.json document. Field order is part of the
// on-disk format.
type Metadata struct {
	BackupName          string              `json:"backup_name"`
	BackupType          string              `json:"backup_type"`
	VersionInfo         VersionInfo         `json:"version_info"`
	DatabaseFile        string              `json:"database_file"`
	FilesFile           string              `json:"files_file"`
	CreatedAt           string              `json:"created_at"`
	RestoreInstructions RestoreInstructions `json:"restore_instructions"`
}

// Created parses CreatedAt, returning the zero time when it is malformed.
func (m *Metadata) Created() time.Time {
	t, err := time.Parse(TimeFormat, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Encode renders the metadata document.
func (m *Metadata) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal package metadata: %w", err)
	}
	return data, nil
}

// DecodeMetadata parses a metadata document.
func DecodeMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse package metadata: %w", err)
	}
	return &m, nil
}

// ReadMetadata reads only the metadata member of the package at path.
func ReadMetadata(path string) (*Metadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if f.Name != MetadataFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", MetadataFile, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxMetadataBytes))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", MetadataFile, err)
		}
		return DecodeMetadata(data)
	}
	return nil, ErrNoMetadata
}

const maxMetadataBytes = 1 << 20

// IsPackage reports whether the zip at path looks like a unified package:
// it carries the metadata document, a dump directly under database/ or a
// zip archive directly under files/. A files archive whose tree merely has
// a files/ or database/ directory is not a package.
func IsPackage(path string) (bool, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if f.Name == MetadataFile || isArtifactMember(f.Name) {
			return true, nil
		}
	}
	return false, nil
}

// isArtifactMember matches the member names Disassemble falls back to.
func isArtifactMember(name string) bool {
	dir, file := path.Split(name)
	lower := strings.ToLower(file)
	switch dir {
	case DatabaseDir + "/":
		return strings.HasSuffix(lower, ".sql.gz") || strings.HasSuffix(lower, ".sql")
	case FilesDir + "/":
		return strings.HasSuffix(lower, ".zip")
	default:
		return false
	}
}
