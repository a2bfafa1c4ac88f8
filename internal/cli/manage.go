// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var grouped bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List snapshots, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if grouped {
				groups, err := a.engine.ListGrouped()
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return writeJSON(out, groups)
				}
				renderGroups(out, groups)
				return nil
			}

			snapshots, err := a.engine.List()
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(out, snapshots)
			}
			renderSnapshots(out, snapshots)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&grouped, "grouped", "g", false, "group files sharing a snapshot name")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete every file of a snapshot",
		Long: `Delete the database dump, file archive and package sharing a snapshot
name. The snapshot's record in the metadata index is kept, so the name
cannot be reused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.engine.DeleteGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Deleted %d files of snapshot %s\n", len(result.Deleted), result.BaseName)
				for _, name := range result.Deleted {
					fmt.Fprintf(out, "  %s\n", name)
				}
				renderNotes(out, nil, result.Errors)
			}
			if len(result.Errors) > 0 {
				return ErrOperationFailed
			}
			return nil
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots of each kind",
		Long: `Keep the newest backup.retention snapshots of each kind (database,
files, complete) and delete the rest. Files that do not follow the
snapshot naming scheme are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if dryRun {
				preview, err := a.engine.PrunePreview()
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return writeJSON(out, preview)
				}
				fmt.Fprintf(out, "Would keep %d files (%s) and delete %d files (%s)\n",
					len(preview.Keep), formatSize(preview.KeepBytes), len(preview.Delete), formatSize(preview.DeleteBytes))
				renderSnapshots(out, preview.Delete)
				return nil
			}

			result, err := a.engine.Prune(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Deleted %d files, kept %d, freed %s\n", len(result.Deleted), result.Kept, formatSize(result.FreedBytes))
				renderNotes(out, nil, result.Errors)
			}
			if len(result.Errors) > 0 {
				return ErrOperationFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted")
	return cmd
}
