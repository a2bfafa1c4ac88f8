// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/snapvault/internal/backup"
	"github.com/tomtom215/snapvault/internal/config"
	"github.com/tomtom215/snapvault/internal/retention"
)

// SnapshotSource lists snapshots. *backup.Engine implements it.
type SnapshotSource interface {
	ListGrouped() ([]*retention.Group, error)
	PrunePreview() (*retention.Preview, error)
}

// ScheduleSource reports scheduler state. *backup.Scheduler implements it.
type ScheduleSource interface {
	Status() backup.ScheduleStatus
}

// Server serves the status API.
type Server struct {
	snapshots SnapshotSource
	schedule  ScheduleSource
	stateFile string
	cfg       config.ServerConfig
	started   time.Time
}

// NewServer returns a status server. schedule may be nil when no schedule
// is enabled.
func NewServer(cfg *config.Config, snapshots SnapshotSource, schedule ScheduleSource) *Server {
	return &Server{
		snapshots: snapshots,
		schedule:  schedule,
		stateFile: cfg.StateFileAbs(),
		cfg:       cfg.Server,
		started:   time.Now(),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.cfg.CORSOrigins))
	r.Use(requestMetrics)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		r.Use(securityHeaders)

		r.Get("/progress", s.progress)
		r.Get("/snapshots", s.listSnapshots)
		r.Get("/snapshots/{name}", s.getSnapshot)
		r.Get("/retention/preview", s.retentionPreview)
		r.Get("/schedule", s.scheduleStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is supported", nil)
	})

	return r
}

// HTTPServer returns an http.Server bound to the configured listen address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
