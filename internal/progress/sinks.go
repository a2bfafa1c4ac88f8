// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// terminalWait is how long a ChannelSink waits to deliver the terminal event.
const terminalWait = time.Second

// LogSink writes events to a zerolog logger. Step changes and terminal
// events are logged at info level, percent updates at debug.
type LogSink struct {
	logger zerolog.Logger
	mu     sync.Mutex
	last   Step
}

// NewLogSink returns a LogSink writing to logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Report logs ev.
func (s *LogSink) Report(ev Event) {
	s.mu.Lock()
	changed := ev.Step != s.last
	s.last = ev.Step
	s.mu.Unlock()

	var e *zerolog.Event
	switch {
	case ev.Step == StepError:
		e = s.logger.Error()
	case changed || ev.Step.IsTerminal():
		e = s.logger.Info()
	default:
		e = s.logger.Debug()
	}
	e.Str("step", string(ev.Step)).
		Int("percent", ev.Percent).
		Str("operation_id", ev.OperationID).
		Msg(ev.Message)
}

// FileSink mirrors the latest event to a JSON file so another process can
// poll it. Non-terminal writes are paced by a rate limiter. The file is
// replaced atomically so readers never see a torn write.
type FileSink struct {
	path    string
	limiter *rate.Limiter
	mu      sync.Mutex
	err     error
}

// NewFileSink returns a sink writing to path at most once per minInterval
// (terminal events always land).
func NewFileSink(path string, minInterval time.Duration) *FileSink {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &FileSink{path: path, limiter: rate.NewLimiter(limit, 1)}
}

// Report writes ev if the pacing allows it.
func (s *FileSink) Report(ev Event) {
	if !ev.Step.IsTerminal() && !s.limiter.Allow() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteState(s.path, ev); err != nil && s.err == nil {
		s.err = err
	}
}

// Err returns the first write failure, if any.
func (s *FileSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// WriteState atomically replaces the state file at path with ev.
func WriteState(path string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*")
	if err != nil {
		return fmt.Errorf("failed to create progress temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close progress file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}

// ReadState returns the last event written to path.
func ReadState(path string) (*Event, error) {
	//nolint:gosec // G304: path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse progress file: %w", err)
	}
	return &ev, nil
}

// ChannelSink delivers events to another goroutine without ever stalling
// the producer for long. Each non-terminal event waits at most pause for
// buffer space and is dropped afterwards. The terminal event waits up to a
// second.
type ChannelSink struct {
	ch      chan Event
	pause   time.Duration
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewChannelSink returns a sink with the given buffer size and pause.
func NewChannelSink(buffer int, pause time.Duration) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer), pause: pause}
}

// Events returns the receive side. It is closed by Close.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Report tries to deliver ev within the sink's pause.
func (s *ChannelSink) Report(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	wait := s.pause
	if ev.Step.IsTerminal() {
		wait = terminalWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- ev:
	case <-timer.C:
		s.dropped++
	}
}

// Dropped returns how many events were discarded because the consumer lagged.
func (s *ChannelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close closes the event channel. Later reports are discarded.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
