// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
Package api provides the read-only HTTP status server for Snapvault.

The server never starts, restores or deletes snapshots. It reports what the
engine and scheduler are doing so a dashboard or monitoring system can poll
it while `snapvault serve` runs.

Endpoints:

  - GET /healthz: liveness check
  - GET /metrics: Prometheus metrics (see package metrics)
  - GET /api/v1/progress: last progress event of the running or finished operation
  - GET /api/v1/snapshots: snapshot groups, newest first
  - GET /api/v1/snapshots/{name}: one snapshot group
  - GET /api/v1/retention/preview: what the next prune would delete
  - GET /api/v1/schedule: scheduler state, when a schedule is enabled

Response Format:

Every /api/v1 endpoint answers with the same envelope:

	{
	  "status": "success",
	  "data": { ... },
	  "metadata": {"timestamp": "2026-01-01T00:00:00Z"}
	}

Errors set status to "error" and carry {"code", "message"} in the error field.

Middleware:

Requests pass through chi's RequestID, RealIP and Recoverer middleware,
go-chi/cors for configured dashboard origins and go-chi/httprate per-IP
limiting on /api/v1. Request IDs are attached to the request logger.
*/
package api
