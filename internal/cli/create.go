// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/snapvault/internal/backup"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		name           string
		backupType     string
		includePlugins bool
		quiet          bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a snapshot",
		Long: `Create a database dump, a file tree archive, or a complete package
holding both. Without --name the snapshot is named snapshot-YYYYMMDD-HHMMSS.

After a successful create, older snapshots beyond backup.retention are
pruned per kind.`,
		Example: `  snapvault create
  snapvault create --type database --name before-migration
  snapvault create --type files --include-plugins=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, err := backup.ParseBackupType(backupType)
			if err != nil {
				return err
			}
			opts := backup.CreateOptions{Name: name, Type: typ, IncludePlugins: includePlugins}
			if !quiet && !a.jsonOutput {
				opts.Sink = newProgressBar(cmd.ErrOrStderr())
			}

			result, err := a.engine.Create(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printCreateResult(cmd.OutOrStdout(), result)
			}
			if !result.Success {
				return ErrOperationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "snapshot base name")
	cmd.Flags().StringVarP(&backupType, "type", "t", string(backup.TypeComplete), "snapshot type: complete, database, files")
	cmd.Flags().BoolVar(&includePlugins, "include-plugins", true, "archive the plugins directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show progress")
	return cmd
}

func printCreateResult(w io.Writer, r *backup.CreateResult) {
	status := "completed"
	if !r.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Snapshot %s (%s) %s in %s\n", r.BackupName, r.BackupType, status, r.Duration.Round(time.Millisecond))
	if r.Database != nil && r.Database.Success {
		fmt.Fprintf(w, "  database: %d tables, %d rows, %s\n", r.Database.Tables, r.Database.Rows, formatSize(r.Database.SizeBytes))
	}
	if r.Files != nil && r.Files.Success {
		fmt.Fprintf(w, "  files:    %d files, %s (from %s)\n", r.Files.FileCount, formatSize(r.Files.SizeBytes), formatSize(r.Files.SourceBytes))
	}
	if r.Package != nil && r.Package.Success {
		fmt.Fprintf(w, "  package:  %s, %s\n", r.Package.File, formatSize(r.Package.SizeBytes))
	}
	if r.Retention != nil && len(r.Retention.Deleted) > 0 {
		fmt.Fprintf(w, "  pruned:   %d old snapshot files, %s freed\n", len(r.Retention.Deleted), formatSize(r.Retention.FreedBytes))
	}
	renderNotes(w, r.Messages, r.Errors)
}
