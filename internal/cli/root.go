// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/snapvault/internal/backup"
	"github.com/tomtom215/snapvault/internal/config"
	"github.com/tomtom215/snapvault/internal/logging"
)

// ErrOperationFailed marks a command whose operation ran but reported
// Success=false. The details were already printed.
var ErrOperationFailed = errors.New("operation did not succeed")

// skipSetup is set on commands that run without configuration.
const skipSetup = "snapvault/skip-setup"

// app holds the state shared by every command.
type app struct {
	version string

	configPath string
	logLevel   string
	rootDir    string
	jsonOutput bool

	cfg    *config.Config
	engine *backup.Engine
}

// NewRootCmd returns the snapvault command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "snapvault",
		Short: "Back up and restore an application's file tree and SQL database",
		Long: `snapvault snapshots an installation's file tree and SQL database into
standalone archives or a single unified package, restores them, and keeps
the newest N snapshots of each kind.

Snapshots live in the backup directory as:
  <name>_db.sql.gz     database dump
  <name>_files.zip     file tree archive
  <name>_complete.zip  both, with version metadata

Configuration is read from snapvault.yaml (or --config / SNAPVAULT_CONFIG)
and SNAPVAULT_* environment variables.`,
		Example: `  snapvault create                       # complete snapshot
  snapvault create --type database       # database only
  snapvault list --grouped
  snapvault restore snapshot-20260101-030000
  snapvault restore nightly --files      # file tree only
  snapvault prune --dry-run
  snapvault serve                        # status server and schedule`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: snapvault.yaml or $SNAPVAULT_CONFIG)")
	flags.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.StringVar(&a.rootDir, "root", "", "override install.root_dir")
	flags.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newCreateCmd(a),
		newRestoreCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newPruneCmd(a),
		newProgressCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the command tree until it finishes or SIGINT/SIGTERM
// cancels it.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(version).ExecuteContext(ctx)
}

// setup loads configuration, initializes logging and builds the engine.
func (a *app) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.LoadWithKoanf()
	}
	if err != nil {
		return err
	}
	if a.rootDir != "" {
		cfg.Install.RootDir = a.rootDir
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	if a.logLevel != "" {
		logging.SetLevelString(a.logLevel)
	}

	engine, err := backup.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize backup engine: %w", err)
	}
	a.cfg = cfg
	a.engine = engine
	return nil
}
