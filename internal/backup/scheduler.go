// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

/*
scheduler.go - Backup Scheduling

The Scheduler creates snapshots at a fixed interval while `snapvault serve`
runs. It implements suture.Service and is added to the supervisor tree.

Timer Logic:
  - For intervals >= 24h with a preferred hour: the next run is the next
    occurrence of that hour, plus whole extra days for longer intervals
  - Otherwise: the interval is added to the current time
  - The timer is reset after each run completes

Retention is applied by Create itself, so the scheduler does not prune.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/snapvault/internal/logging"
)

// ScheduleStatus is the scheduler state exposed by the status server.
type ScheduleStatus struct {
	Enabled    bool       `json:"enabled"`
	Interval   string     `json:"interval"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastName   string     `json:"last_backup_name,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
}

// Scheduler runs periodic creates.
type Scheduler struct {
	engine *Engine
	opts   CreateOptions

	mu     sync.Mutex
	status ScheduleStatus
	now    func() time.Time
}

// NewScheduler returns a scheduler using the engine's schedule settings.
func NewScheduler(engine *Engine) (*Scheduler, error) {
	sc := engine.cfg.Schedule
	if sc.Interval <= 0 {
		return nil, errors.New("schedule interval must be positive")
	}
	typ, err := ParseBackupType(sc.Type)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		engine: engine,
		opts:   CreateOptions{Type: typ, IncludePlugins: sc.IncludePlugins},
		status: ScheduleStatus{Enabled: true, Interval: sc.Interval.String()},
		now:    time.Now,
	}, nil
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	next := s.scheduleNext()
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.runOnce(ctx)
			next = s.scheduleNext()
			timer.Reset(time.Until(next))
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// Status returns a copy of the scheduler state.
func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) runOnce(ctx context.Context) {
	ranAt := s.now()
	outcome := "success"
	var name string

	result, err := s.engine.Create(ctx, s.opts)
	switch {
	case err != nil:
		outcome = err.Error()
		logging.Error().Err(err).Msg("Scheduled backup failed")
	case !result.Success:
		outcome = "failed"
		name = result.BackupName
		logging.Error().Str("backup_name", name).Strs("errors", result.Errors).Msg("Scheduled backup failed")
	default:
		name = result.BackupName
		logging.Info().Str("backup_name", name).Msg("Scheduled backup completed")
	}

	s.mu.Lock()
	s.status.LastRun = &ranAt
	s.status.LastName = name
	s.status.LastResult = outcome
	s.mu.Unlock()
}

func (s *Scheduler) scheduleNext() time.Time {
	sc := s.engine.cfg.Schedule
	next := nextRunTime(s.now(), sc.Interval, sc.PreferredHour)
	s.mu.Lock()
	s.status.NextRun = &next
	s.mu.Unlock()
	logging.Debug().Time("next_run", next).Msg("Next scheduled backup")
	return next
}

// nextRunTime determines when the next scheduled backup should run. A
// preferredHour of -1 disables hour alignment.
func nextRunTime(now time.Time, interval time.Duration, preferredHour int) time.Time {
	if interval < 24*time.Hour || preferredHour < 0 || preferredHour > 23 {
		return now.Add(interval)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), preferredHour, 0, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	if days := int(interval.Hours() / 24); days > 1 {
		next = next.AddDate(0, 0, days-1)
	}
	return next
}
