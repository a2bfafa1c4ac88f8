// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package progress carries step/percent events from long-running backup and
// restore operations to whoever is watching.
//
// A Tracker owns the stream for one operation. It guarantees that percent
// never decreases and that exactly one terminal event (StepComplete or
// StepError) is emitted. Components receive a *Span, which maps their own
// done/total counts into the sub-range the caller assigned them. A nil *Span
// is valid and discards everything, so components can run without a tracker.
package progress

import (
	"sync"
	"time"
)

// Step names a phase of an operation.
type Step string

// Create steps.
const (
	StepStart             Step = "start"
	StepGatheringMetadata Step = "gathering_metadata"
	StepDumpingDatabase   Step = "dumping_database"
	StepArchivingFiles    Step = "archiving_files"
	StepAssemblingPackage Step = "assembling_package"
	StepPruning           Step = "pruning"
)

// Restore steps.
const (
	StepLocating          Step = "locating"
	StepExtracting        Step = "extracting"
	StepRestoringFiles    Step = "restoring_files"
	StepRestoringDatabase Step = "restoring_database"
	StepCleanup           Step = "cleanup"
)

// Terminal steps.
const (
	StepComplete Step = "complete"
	StepError    Step = "error"
)

// IsTerminal reports whether s ends a stream.
func (s Step) IsTerminal() bool {
	return s == StepComplete || s == StepError
}

// Event is one progress report.
type Event struct {
	Step        Step      `json:"step"`
	Message     string    `json:"message"`
	Percent     int       `json:"percent"`
	Timestamp   time.Time `json:"timestamp"`
	OperationID string    `json:"operation_id,omitempty"`
}

// Sink receives progress events. Implementations must return quickly: a
// sink that can stall has to bound its own wait (see ChannelSink).
type Sink interface {
	Report(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Report calls f(ev).
func (f SinkFunc) Report(ev Event) { f(ev) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

type multiSink []Sink

func (m multiSink) Report(ev Event) {
	for _, s := range m {
		s.Report(ev)
	}
}

// Multi fans each event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Tracker enforces stream ordering for one operation.
type Tracker struct {
	mu          sync.Mutex
	sink        Sink
	operationID string
	percent     int
	step        Step
	done        bool
	now         func() time.Time
}

// NewTracker returns a tracker writing to sink. A nil sink discards events.
func NewTracker(sink Sink, operationID string) *Tracker {
	if sink == nil {
		sink = Nop
	}
	return &Tracker{sink: sink, operationID: operationID, now: time.Now}
}

// Report emits a non-terminal event. Percent is clamped to [current, 99]
// so that only Complete reaches 100. Reports after the terminal event are
// dropped.
func (t *Tracker) Report(step Step, message string, percent int) {
	if step.IsTerminal() {
		if step == StepComplete {
			t.Complete(message)
		} else {
			t.Fail(message)
		}
		return
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if percent > 99 {
		percent = 99
	}
	if percent < t.percent {
		percent = t.percent
	}
	t.percent = percent
	t.step = step
	ev := t.eventLocked(step, message)
	t.mu.Unlock()

	t.sink.Report(ev)
}

// Complete emits the terminal success event at 100 percent.
func (t *Tracker) Complete(message string) {
	t.terminate(StepComplete, message, 100)
}

// Fail emits the terminal error event at the current percent.
func (t *Tracker) Fail(message string) {
	t.terminate(StepError, message, -1)
}

func (t *Tracker) terminate(step Step, message string, percent int) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if percent > t.percent {
		t.percent = percent
	}
	t.step = step
	ev := t.eventLocked(step, message)
	t.mu.Unlock()

	t.sink.Report(ev)
}

func (t *Tracker) eventLocked(step Step, message string) Event {
	return Event{
		Step:        step,
		Message:     message,
		Percent:     t.percent,
		Timestamp:   t.now(),
		OperationID: t.operationID,
	}
}

// Percent returns the last reported percent.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Done reports whether the terminal event has been emitted.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Span returns a reporter for step mapped into [lo, hi] of the operation.
func (t *Tracker) Span(step Step, lo, hi int) *Span {
	if hi < lo {
		hi = lo
	}
	return &Span{tracker: t, step: step, lo: lo, hi: hi}
}

// Span reports one component's progress inside a sub-range.
type Span struct {
	tracker *Tracker
	step    Step
	lo, hi  int
}

// Start reports the beginning of the span.
func (s *Span) Start(message string) {
	if s == nil {
		return
	}
	s.tracker.Report(s.step, message, s.lo)
}

// Update reports done out of total units of work.
func (s *Span) Update(done, total int64, message string) {
	if s == nil {
		return
	}
	s.tracker.Report(s.step, message, s.at(done, total))
}

// Finish reports the end of the span.
func (s *Span) Finish(message string) {
	if s == nil {
		return
	}
	s.tracker.Report(s.step, message, s.hi)
}

// Sub returns a span covering [from, to] percent of this span's range.
func (s *Span) Sub(from, to int) *Span {
	if s == nil {
		return nil
	}
	return &Span{tracker: s.tracker, step: s.step, lo: s.at(int64(from), 100), hi: s.at(int64(to), 100)}
}

func (s *Span) at(done, total int64) int {
	if total <= 0 || done <= 0 {
		return s.lo
	}
	if done > total {
		done = total
	}
	return s.lo + int(int64(s.hi-s.lo)*done/total)
}
