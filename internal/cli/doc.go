// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package cli implements the snapvault command line: create, restore, list,
// delete, prune, progress, serve and version.
//
// Commands print human readable output by default and the engine's result
// structs with --json. A command whose operation ran but did not succeed
// exits non-zero after printing the result.
package cli
