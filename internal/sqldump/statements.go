// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package sqldump

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
)

// StatementReader splits an SQL script into statements.
//
// It understands "DELIMITER x" directive lines, ignores "--" comment lines
// between statements, and never splits inside a quoted string or
// identifier. A final statement without a terminator is still returned.
type StatementReader struct {
	r       *bufio.Reader
	delim   string
	buf     strings.Builder
	quote   byte
	pending []string
	eof     bool
}

// NewStatementReader returns a reader over r with ";" as the delimiter.
func NewStatementReader(r io.Reader) *StatementReader {
	return &StatementReader{r: bufio.NewReaderSize(r, 64*1024), delim: ";"}
}

// Next returns the next statement without its terminator, or io.EOF.
func (s *StatementReader) Next() (string, error) {
	for {
		if len(s.pending) > 0 {
			stmt := s.pending[0]
			s.pending = s.pending[1:]
			return stmt, nil
		}
		if s.eof {
			if rest := strings.TrimSpace(s.buf.String()); rest != "" {
				s.buf.Reset()
				return rest, nil
			}
			return "", io.EOF
		}

		line, err := s.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", err
			}
			s.eof = true
		}
		if line != "" {
			s.consume(line)
		}
	}
}

// Delimiter returns the delimiter currently in effect.
func (s *StatementReader) Delimiter() string {
	return s.delim
}

func (s *StatementReader) consume(line string) {
	if s.buf.Len() == 0 && s.quote == 0 {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			return
		}
		if d, ok := delimiterDirective(trimmed); ok {
			s.delim = d
			return
		}
	}

	for i := 0; i < len(line); {
		c := line[i]
		if s.quote != 0 {
			// A doubled quote toggles out and straight back in.
			if c == s.quote {
				s.quote = 0
			}
			s.buf.WriteByte(c)
			i++
			continue
		}
		if c == '\'' || c == '"' || c == '`' {
			s.quote = c
			s.buf.WriteByte(c)
			i++
			continue
		}
		if strings.HasPrefix(line[i:], s.delim) {
			if stmt := strings.TrimSpace(s.buf.String()); stmt != "" {
				s.pending = append(s.pending, stmt)
			}
			s.buf.Reset()
			i += len(s.delim)
			continue
		}
		s.buf.WriteByte(c)
		i++
	}

	if s.quote == 0 && strings.TrimSpace(s.buf.String()) == "" {
		s.buf.Reset()
	}
}

func delimiterDirective(line string) (string, bool) {
	const kw = "DELIMITER"
	if len(line) <= len(kw) || !strings.EqualFold(line[:len(kw)], kw) {
		return "", false
	}
	if line[len(kw)] != ' ' && line[len(kw)] != '\t' {
		return "", false
	}
	d := strings.TrimSpace(line[len(kw):])
	if d == "" {
		return "", false
	}
	return d, true
}

var statementTablePattern = regexp.MustCompile(
	`(?is)^\s*(?:` +
		`DROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?` +
		`|CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?` +
		`|INSERT\s+(?:OR\s+\w+\s+)?INTO\s+` +
		`|CREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?\S+\s+ON\s+` +
		`|CREATE\s+(?:TEMP(?:ORARY)?\s+)?TRIGGER\s+.*?\s+ON\s+` +
		`)(?:(?:"[^"]*"|\w+)\.)?("(?:[^"]|"")*"|` + "`[^`]*`" + `|\[[^\]]*\]|[^\s(;,]+)`)

// StatementTable returns the table a DROP, CREATE, INSERT, index or
// trigger statement targets, unquoted. It returns "" for anything else.
func StatementTable(stmt string) string {
	m := statementTablePattern.FindStringSubmatch(stmt)
	if m == nil {
		return ""
	}
	name := m[1]
	switch {
	case strings.HasPrefix(name, `"`):
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	case strings.HasPrefix(name, "`"), strings.HasPrefix(name, "["):
		return name[1 : len(name)-1]
	default:
		return name
	}
}
