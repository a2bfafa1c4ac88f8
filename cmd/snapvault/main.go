// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Command snapvault backs up and restores an application's file tree and SQL
// database.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - SNAPVAULT_* environment variables
//   - Config file (snapvault.yaml, --config or SNAPVAULT_CONFIG)
//   - Built-in defaults
//
// # Example Usage
//
//	snapvault create --type complete
//	snapvault list --grouped
//	snapvault restore snapshot-20260101-030000 --yes
//	SNAPVAULT_SCHEDULE_ENABLED=true snapvault serve
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. A create interrupted this
// way removes its partial artifacts; serve stops the scheduler and shuts the
// status server down gracefully.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tomtom215/snapvault/internal/cli"
)

// version is set at build time:
//
//	go build -ldflags "-X main.version=1.2.0" ./cmd/snapvault
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		if !errors.Is(err, cli.ErrOperationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
