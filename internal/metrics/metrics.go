// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
Package metrics exposes Prometheus instrumentation for backup and restore
operations.

Metrics are registered with the default registry on import and served at
/metrics by the status server:

	curl http://127.0.0.1:9470/metrics

Operation Metrics:
  - snapvault_operations_total: Finished operations (counter)
    Labels: operation (create, restore, delete, prune), status (success, failure)
  - snapvault_operation_duration_seconds: Operation duration (histogram)
    Labels: operation
  - snapvault_operation_in_progress: 1 while an operation runs (gauge)
  - snapvault_operation_progress_percent: Last reported percent (gauge)

Artifact Metrics:
  - snapvault_artifact_bytes: Size of the last artifact written (gauge)
    Labels: kind (database, files, complete)
  - snapvault_dump_tables_total / snapvault_dump_rows_total (counters)
  - snapvault_replay_statement_errors_total: Failed replayed statements (counter)
  - snapvault_retention_deleted_total: Snapshots removed by pruning (counter)
  - snapvault_last_success_timestamp_seconds: Last successful create (gauge)

Status Server Metrics:
  - snapvault_http_requests_total: Requests served (counter)
    Labels: route, status
  - snapvault_http_request_duration_seconds: Request latency (histogram)
    Labels: route
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapvault_operations_total",
			Help: "Total number of finished backup and restore operations",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapvault_operation_duration_seconds",
			Help:    "Duration of backup and restore operations in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"operation"},
	)

	OperationInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapvault_operation_in_progress",
			Help: "1 while a backup or restore operation is running",
		},
	)

	ProgressPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapvault_operation_progress_percent",
			Help: "Last progress percent reported by the running operation",
		},
	)

	ArtifactBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_artifact_bytes",
			Help: "Size in bytes of the most recently written artifact",
		},
		[]string{"kind"},
	)

	DumpTables = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_dump_tables_total",
			Help: "Total number of tables written to database dumps",
		},
	)

	DumpRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_dump_rows_total",
			Help: "Total number of rows written to database dumps",
		},
	)

	ReplayStatementErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_replay_statement_errors_total",
			Help: "Total number of statements that failed during database restore",
		},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_retention_deleted_total",
			Help: "Total number of snapshot files removed by retention",
		},
	)

	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapvault_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapvault_http_requests_total",
			Help: "Total number of status server requests",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapvault_http_request_duration_seconds",
			Help:    "Status server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordOperation records a finished operation.
func RecordOperation(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if success && operation == "create" {
		LastSuccess.Set(float64(time.Now().Unix()))
	}
}

// TrackOperation marks an operation as running or finished.
func TrackOperation(running bool) {
	if running {
		OperationInProgress.Set(1)
		ProgressPercent.Set(0)
	} else {
		OperationInProgress.Set(0)
	}
}

// RecordArtifact records the size of a written artifact.
func RecordArtifact(kind string, sizeBytes int64) {
	ArtifactBytes.WithLabelValues(kind).Set(float64(sizeBytes))
}

// RecordDump records the tables and rows written by one dump.
func RecordDump(tables int, rows int64) {
	DumpTables.Add(float64(tables))
	DumpRows.Add(float64(rows))
}

// RecordReplayErrors records failed statements from one restore.
func RecordReplayErrors(n int) {
	if n > 0 {
		ReplayStatementErrors.Add(float64(n))
	}
}

// RecordRetention records snapshot files deleted by pruning.
func RecordRetention(deleted int) {
	if deleted > 0 {
		RetentionDeleted.Add(float64(deleted))
	}
}

// SetProgress records the percent of the running operation.
func SetProgress(percent int) {
	ProgressPercent.Set(float64(percent))
}

// RecordHTTPRequest records one status server request. route is the chi
// route pattern, never the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
