// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tomtom215/snapvault/internal/api"
	"github.com/tomtom215/snapvault/internal/backup"
	"github.com/tomtom215/snapvault/internal/logging"
	"github.com/tomtom215/snapvault/internal/metrics"
	"github.com/tomtom215/snapvault/internal/supervisor"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status server and the backup schedule",
		Long: `Run the read-only status server and, when schedule.enabled is set,
the backup scheduler, both under a supervisor that restarts them on
failure. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Server.ListenAddr = listen
			}
			if a.cfg.Server.ListenAddr == "" && !a.cfg.Schedule.Enabled {
				return errors.New("nothing to serve: server.listen_addr is empty and schedule.enabled is false")
			}
			metrics.BuildInfo.WithLabelValues(a.version, runtime.Version()).Set(1)

			tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			})

			var schedule api.ScheduleSource
			if a.cfg.Schedule.Enabled {
				scheduler, err := backup.NewScheduler(a.engine)
				if err != nil {
					return fmt.Errorf("failed to configure schedule: %w", err)
				}
				tree.AddJob(scheduler)
				schedule = scheduler
			}

			if a.cfg.Server.ListenAddr != "" {
				srv := api.NewServer(a.cfg, a.engine, schedule)
				tree.AddAPIService(supervisor.NewHTTPService(srv.HTTPServer(), a.cfg.Server.ListenAddr, a.cfg.Server.ShutdownTimeout))
			}

			logging.Info().
				Str("version", a.version).
				Str("root_dir", a.cfg.Install.RootDir).
				Str("backup_dir", a.cfg.BackupDirAbs()).
				Str("listen_addr", a.cfg.Server.ListenAddr).
				Bool("schedule", a.cfg.Schedule.Enabled).
				Msg("Starting snapvault")

			err := tree.Serve(cmd.Context())
			if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
				for _, svc := range report {
					logging.Warn().Str("service", svc.Name).Msg("Service did not stop before the shutdown timeout")
				}
			}
			if err != nil && !errors.Is(err, cmd.Context().Err()) {
				return err
			}
			logging.Info().Msg("snapvault stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen_addr")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the snapvault version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := struct {
				Version   string `json:"version"`
				GoVersion string `json:"go_version"`
				Platform  string `json:"platform"`
			}{a.version, runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapvault %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
			return nil
		},
	}
}
