// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestIsSnapshotName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"timestamp", "backup_2026-10-19_03-00-00", true},
		{"simple", "a", true},
		{"dots inside", "release.1.2", true},
		{"empty", "", false},
		{"leading dot", ".hidden", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"traversal", "a..b", false},
		{"space", "my backup", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSnapshotName(tt.input); got != tt.want {
				t.Errorf("IsSnapshotName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsRelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"plugins/updater", true},
		{".git", true},
		{"storage/backups/", true},
		{"", false},
		{"/etc/passwd", false},
		{"../outside", false},
		{"a/../../b", false},
		{`dir\file`, false},
	}

	for _, tt := range tests {
		if got := IsRelPath(tt.input); got != tt.want {
			t.Errorf("IsRelPath(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	type request struct {
		Name      string   `validate:"omitempty,snapshotname"`
		Keep      int      `validate:"min=1,max=100"`
		Kind      string   `validate:"oneof=complete database files"`
		Exclusion []string `validate:"dive,relpath"`
	}

	if err := ValidateStruct(&request{Name: "ok", Keep: 5, Kind: "files", Exclusion: []string{".git"}}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	err := ValidateStruct(&request{Name: "../x", Keep: 0, Kind: "tarball", Exclusion: []string{"/abs"}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verrs Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected Errors, got %T", err)
	}
	if len(verrs) != 4 {
		t.Errorf("expected 4 field errors, got %d: %v", len(verrs), verrs)
	}
	if !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("expected oneof message, got %q", err.Error())
	}
}
