// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/snapvault/internal/progress"
)

func newProgressCmd(a *app) *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress of the running or last operation",
		Long: `Read the progress state file written by create and restore. With
--follow, keep polling until the operation completes or fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.StateFileAbs()
			if path == "" {
				return errors.New("progress.state_file is not configured")
			}
			out := cmd.OutOrStdout()

			ev, err := progress.ReadState(path)
			if errors.Is(err, fs.ErrNotExist) && !follow {
				fmt.Fprintln(out, "No operation has reported progress yet.")
				return nil
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if !follow {
				if a.jsonOutput {
					return writeJSON(out, ev)
				}
				fmt.Fprintf(out, "%s %3d%% %s: %s\n", formatAge(ev.Timestamp), ev.Percent, ev.Step, ev.Message)
				return nil
			}

			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			bar := newProgressBar(out)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			var last time.Time
			for {
				if ev != nil && ev.Timestamp.After(last) {
					last = ev.Timestamp
					bar.Report(*ev)
					if ev.Step.IsTerminal() {
						return nil
					}
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
				}
				next, err := progress.ReadState(path)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				if next != nil {
					ev = next
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "poll until the operation finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval for --follow")
	return cmd
}
