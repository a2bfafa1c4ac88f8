// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
Package supervisor runs the long-lived parts of `snapvault serve` under
suture v4.

# Overview

	RootSupervisor ("snapvault")
	├── JobsSupervisor ("jobs-layer")
	│   └── backup.Scheduler (if schedule.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPService (status server)

A crashed status server is restarted without touching a backup in flight,
and a panicking scheduler run does not take the status server down.
Supervisor events are logged through sutureslog into the zerolog logger:

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddJob(scheduler)
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ListenAddr, cfg.Server.ShutdownTimeout))
	err := tree.Serve(ctx)

# Failure Handling

Each service failure increments a counter that decays over FailureDecay
seconds. Past FailureThreshold the supervisor waits FailureBackoff before
restarting. Returning nil from Serve stops a service for good.

# What Is NOT Supervised

One-shot CLI commands (create, restore, delete, prune) run directly in the
calling process. The backup lock, not the supervisor, keeps them from
overlapping with a scheduled run.

# Debugging Shutdown Issues

	report, err := tree.UnstoppedServiceReport()

lists services that ignored context cancellation past ShutdownTimeout.
*/
package supervisor
