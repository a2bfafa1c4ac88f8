// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/snapvault/internal/backup"
)

var errRestoreAborted = errors.New("restore aborted")

func newRestoreCmd(a *app) *cobra.Command {
	var (
		filesOnly    bool
		databaseOnly bool
		fromPath     string
		safety       bool
		yes          bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "restore [name]",
		Short: "Restore a snapshot",
		Long: `Restore a snapshot over the live installation.

A complete restore prefers the unified package and falls back to the
standalone dump and archive of the same name. Files in the snapshot are
written over the installation; files absent from the snapshot are left in
place. Protected files such as .env are never overwritten. Preserved
tables keep their live rows.

Before the database is replaced a pre-restore database snapshot is taken
unless --safety-backup=false.

On an interactive terminal the restore asks for confirmation unless --yes
is given.`,
		Example: `  snapvault restore snapshot-20260101-030000
  snapvault restore nightly --database
  snapvault restore --path /tmp/uploaded_complete.zip --yes`,
		Args: func(_ *cobra.Command, args []string) error {
			if fromPath != "" && len(args) > 0 {
				return errors.New("give either a snapshot name or --path, not both")
			}
			if fromPath == "" && len(args) != 1 {
				return errors.New("a snapshot name is required\n\nRun 'snapvault list --grouped' to see available snapshots")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := backup.ScopeComplete
			switch {
			case filesOnly:
				scope = backup.ScopeFiles
			case databaseOnly:
				scope = backup.ScopeDatabase
			}

			target := fromPath
			if target == "" {
				target = args[0]
			}
			if !yes && isTerminal(cmd.InOrStdin()) {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Restore %s (%s) over %s?", target, scope, a.cfg.Install.RootDir))
				if err != nil {
					return err
				}
				if !ok {
					return errRestoreAborted
				}
			}

			opts := backup.RestoreOptions{SafetyBackup: safety}
			if !quiet && !a.jsonOutput {
				opts.Sink = newProgressBar(cmd.ErrOrStderr())
			}

			var (
				result *backup.RestoreResult
				err    error
			)
			ctx := cmd.Context()
			switch {
			case fromPath != "":
				result, err = a.engine.RestoreFromPath(ctx, fromPath, scope, opts)
			case scope == backup.ScopeFiles:
				result, err = a.engine.RestoreFiles(ctx, target, opts)
			case scope == backup.ScopeDatabase:
				result, err = a.engine.RestoreDatabase(ctx, target, opts)
			default:
				result, err = a.engine.RestoreComplete(ctx, target, opts)
			}
			if err != nil {
				return err
			}

			if a.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printRestoreResult(cmd.OutOrStdout(), result)
			}
			if !result.Success {
				return ErrOperationFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&filesOnly, "files", false, "restore only the file tree")
	cmd.Flags().BoolVar(&databaseOnly, "database", false, "restore only the database")
	cmd.MarkFlagsMutuallyExclusive("files", "database")
	cmd.Flags().StringVar(&fromPath, "path", "", "restore from a snapshot file outside the backup directory")
	cmd.Flags().BoolVar(&safety, "safety-backup", true, "snapshot the live database before replacing it")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show progress")
	return cmd
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func printRestoreResult(w io.Writer, r *backup.RestoreResult) {
	status := "completed"
	if !r.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Restore of %s (%s) %s in %s\n", r.BackupName, r.Scope, status, r.Duration.Round(time.Millisecond))
	if r.Source != "" {
		fmt.Fprintf(w, "  source:   %s\n", r.Source)
	}
	if r.Metadata != nil {
		fmt.Fprintf(w, "  created:  %s by version %s\n", r.Metadata.CreatedAt, r.Metadata.VersionInfo.SystemVersion)
	}
	if f := r.Files; f != nil {
		fmt.Fprintf(w, "  files:    %d copied, %d protected, %d excluded, %d failed\n", f.Copied, f.Protected, f.Excluded, f.Failed)
	}
	if d := r.Database; d != nil {
		fmt.Fprintf(w, "  database: %d statements, %d failed, %d tables preserved\n", d.Statements, d.FailedStatements, len(d.TablesPreserved))
	}
	if r.SafetyBackup != "" {
		fmt.Fprintf(w, "  safety snapshot: %s\n", r.SafetyBackup)
	}
	renderNotes(w, r.Messages, r.Errors)
}
