// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/validation"
)

// HealthStatus is the /healthz body.
type HealthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, HealthStatus{
		Status: "ok",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	})
}

// progress returns the last event written to the progress state file.
func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	if s.stateFile == "" {
		respondError(w, r, http.StatusNotFound, "PROGRESS_DISABLED", "Progress state file is not configured", nil)
		return
	}
	ev, err := progress.ReadState(s.stateFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondError(w, r, http.StatusNotFound, "NO_OPERATION", "No operation has reported progress yet", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "PROGRESS_UNREADABLE", "Failed to read progress state", err)
		return
	}
	respondData(w, ev)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	groups, err := s.snapshots.ListGrouped()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "LIST_FAILED", "Failed to list snapshots", err)
		return
	}
	respondList(w, groups, len(groups))
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validation.IsSnapshotName(name) {
		respondError(w, r, http.StatusBadRequest, "INVALID_NAME", "Invalid snapshot name", nil)
		return
	}
	groups, err := s.snapshots.ListGrouped()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "LIST_FAILED", "Failed to list snapshots", err)
		return
	}
	for _, g := range groups {
		if g.BaseName == name {
			respondData(w, g)
			return
		}
	}
	respondError(w, r, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "Snapshot not found", nil)
}

func (s *Server) retentionPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.snapshots.PrunePreview()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "PREVIEW_FAILED", "Failed to compute retention preview", err)
		return
	}
	respondData(w, preview)
}

func (s *Server) scheduleStatus(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		respondError(w, r, http.StatusNotFound, "SCHEDULE_DISABLED", "No backup schedule is enabled", nil)
		return
	}
	respondData(w, s.schedule.Status())
}
