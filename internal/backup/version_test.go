// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/tomtom215/snapvault/internal/bundle"
)

func TestGatherVersionInfo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "plugins/maps/plugin.yaml", "name: geo-maps\nversion: 2.1.0\n")
	writeFile(t, root, "plugins/stats/plugin.yml", "version: 0.9.0\n")
	writeFile(t, root, "plugins/raw/main.js", "noop")
	writeFile(t, root, "plugins/broken/plugin.yaml", "name: [unclosed\n")
	writeFile(t, root, "plugins/.cache/plugin.yaml", "name: hidden\n")
	writeFile(t, root, "plugins/README.md", "not a plugin")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	info := gatherVersionInfo("3.0.0", filepath.Join(root, "plugins"), now)

	if info.SystemVersion != "3.0.0" || info.RuntimeVersion != runtime.Version() {
		t.Errorf("unexpected versions: %+v", info)
	}
	if info.CreatedAt != now.Format(bundle.TimeFormat) {
		t.Errorf("created_at = %q", info.CreatedAt)
	}
	want := map[string]string{
		"geo-maps": "2.1.0",
		"stats":    "0.9.0",
		"raw":      unknownVersion,
		"broken":   unknownVersion,
	}
	if !reflect.DeepEqual(info.Plugins, want) {
		t.Errorf("plugins = %v, want %v", info.Plugins, want)
	}
}

func TestGatherVersionInfoWithoutPlugins(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{"", filepath.Join(t.TempDir(), "missing")} {
		info := gatherVersionInfo("1.0.0", dir, time.Now())
		if info.Plugins == nil || len(info.Plugins) != 0 {
			t.Errorf("dir %q: expected empty plugin map, got %v", dir, info.Plugins)
		}
	}
}
