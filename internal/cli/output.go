// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"

	"github.com/tomtom215/snapvault/internal/progress"
	"github.com/tomtom215/snapvault/internal/retention"
)

// isTerminal reports whether stream is a terminal. Buffers never are.
func isTerminal(stream any) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := stream.(fder); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// progressBar renders progress events. On a terminal it redraws one line;
// otherwise it prints one line per step so logs stay readable.
type progressBar struct {
	mu       sync.Mutex
	w        io.Writer
	tty      bool
	width    int
	lastStep progress.Step
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, tty: isTerminal(w), width: 30}
}

// Report implements progress.Sink.
func (p *progressBar) Report(ev progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		if ev.Step != p.lastStep || ev.Step.IsTerminal() {
			fmt.Fprintf(p.w, "[%3d%%] %s: %s\n", ev.Percent, ev.Step, ev.Message)
		}
		p.lastStep = ev.Step
		return
	}

	filled := min(max(ev.Percent, 0), 100) * p.width / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	fmt.Fprintf(p.w, "\r[%s] %3d%% %-50s", bar, ev.Percent, truncate(ev.Message, 50))
	if ev.Step.IsTerminal() {
		fmt.Fprintln(p.w)
	}
	p.lastStep = ev.Step
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// renderSnapshots prints one line per snapshot file.
func renderSnapshots(w io.Writer, snapshots []retention.Snapshot) {
	if len(snapshots) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return
	}
	fmt.Fprintf(w, "%-40s %-9s %10s  %s\n", "FILE", "KIND", "SIZE", "CREATED")
	for _, s := range snapshots {
		fmt.Fprintf(w, "%-40s %-9s %10s  %s\n",
			truncate(s.FileName, 40), s.Kind, formatSize(s.SizeBytes), formatAge(s.CreatedAt))
	}
}

// renderGroups prints one line per base name with the kinds present.
func renderGroups(w io.Writer, groups []*retention.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return
	}
	fmt.Fprintf(w, "%-32s %-26s %10s  %s\n", "NAME", "CONTENTS", "SIZE", "CREATED")
	for _, g := range groups {
		var kinds []string
		if g.Complete != nil {
			kinds = append(kinds, "complete")
		}
		if g.Database != nil {
			kinds = append(kinds, "database")
		}
		if g.Files != nil {
			kinds = append(kinds, "files")
		}
		if len(g.Other) > 0 {
			kinds = append(kinds, fmt.Sprintf("+%d other", len(g.Other)))
		}
		fmt.Fprintf(w, "%-32s %-26s %10s  %s\n",
			truncate(g.BaseName, 32), strings.Join(kinds, ","), formatSize(g.SizeBytes), formatAge(g.CreatedAt))
	}
}

// renderNotes prints result messages and errors under a heading.
func renderNotes(w io.Writer, messages, errs []string) {
	for _, m := range messages {
		fmt.Fprintf(w, "  note: %s\n", m)
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}
