// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package backup

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/snapvault/internal/bundle"
	"github.com/tomtom215/snapvault/internal/logging"
)

// pluginManifestNames are tried in order inside each plugin directory.
var pluginManifestNames = []string{"plugin.yaml", "plugin.yml"}

// unknownVersion is recorded for plugins without a readable manifest.
const unknownVersion = "unknown"

// pluginManifest is the part of a plugin.yaml the engine reads.
type pluginManifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// gatherVersionInfo records the installed system and plugin versions.
func gatherVersionInfo(systemVersion, pluginsDir string, now time.Time) bundle.VersionInfo {
	return bundle.VersionInfo{
		SystemVersion:  systemVersion,
		RuntimeVersion: runtime.Version(),
		Plugins:        installedPlugins(pluginsDir),
		CreatedAt:      now.UTC().Format(bundle.TimeFormat),
	}
}

// installedPlugins maps plugin name to version for every directory in
// pluginsDir. A missing directory yields an empty map.
func installedPlugins(pluginsDir string) map[string]string {
	plugins := make(map[string]string)
	if pluginsDir == "" {
		return plugins
	}
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("dir", pluginsDir).Msg("Failed to list plugins")
		}
		return plugins
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, version := readPluginManifest(filepath.Join(pluginsDir, e.Name()))
		if name == "" {
			name = e.Name()
		}
		plugins[name] = version
	}
	return plugins
}

func readPluginManifest(dir string) (name, version string) {
	for _, manifest := range pluginManifestNames {
		//nolint:gosec // G304: manifest path is inside the configured plugins directory
		data, err := os.ReadFile(filepath.Join(dir, manifest))
		if err != nil {
			continue
		}
		var m pluginManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			logging.Debug().Err(err).Str("plugin", filepath.Base(dir)).Msg("Ignoring malformed plugin manifest")
			break
		}
		if m.Version == "" {
			m.Version = unknownVersion
		}
		return strings.TrimSpace(m.Name), m.Version
	}
	return "", unknownVersion
}
