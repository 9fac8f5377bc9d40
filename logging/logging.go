// Package logging builds the zerolog loggers used across the module and keeps
// an in-memory, redacted copy of the session log for export.
package logging

import (
	"encoding/json"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxEntries is the number of log lines a Ring keeps.
const MaxEntries = 1000

// New returns a console logger on w at level. When ring is non-nil every
// event is also written, as JSON, to the ring.
func New(w io.Writer, level zerolog.Level, ring *Ring) zerolog.Logger {
	out := io.Writer(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	if ring != nil {
		out = zerolog.MultiLevelWriter(out, ring)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Ring is an io.Writer holding the last MaxEntries zerolog lines of the
// session. Lines are redacted before they are stored and never touch disk.
type Ring struct {
	mu      sync.Mutex
	entries []json.RawMessage
	next    int
	full    bool
	started time.Time
	now     func() time.Time
}

// NewRing returns an empty ring whose session starts now.
func NewRing() *Ring {
	return &Ring{
		entries: make([]json.RawMessage, MaxEntries),
		started: time.Now(),
		now:     time.Now,
	}
}

// Write stores each newline-separated line of p. JSON objects have their
// string values redacted; anything else is kept as a redacted JSON string.
func (r *Ring) Write(p []byte) (int, error) {
	for _, line := range splitLines(p) {
		entry := redactLine(line)
		r.mu.Lock()
		r.entries[r.next] = entry
		r.next = (r.next + 1) % len(r.entries)
		if r.next == 0 {
			r.full = true
		}
		r.mu.Unlock()
	}
	return len(p), nil
}

// Len returns the number of stored lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Entries returns the stored lines, oldest first.
func (r *Ring) Entries() []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]json.RawMessage(nil), r.entries[:r.next]...)
	}
	out := make([]json.RawMessage, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Export is the document produced by Ring.Export.
type Export struct {
	ExportTime   string            `json:"export_time"`
	SessionStart string            `json:"session_start"`
	AppVersion   string            `json:"app_version"`
	OS           string            `json:"os"`
	Entries      []json.RawMessage `json:"entries"`
}

// Export renders the session log as indented JSON.
func (r *Ring) Export(appVersion string) ([]byte, error) {
	entries := r.Entries()
	if entries == nil {
		entries = []json.RawMessage{}
	}
	doc := Export{
		ExportTime:   r.now().UTC().Format(time.RFC3339),
		SessionStart: r.started.UTC().Format(time.RFC3339),
		AppVersion:   appVersion,
		OS:           runtime.GOOS + "/" + runtime.GOARCH,
		Entries:      entries,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func splitLines(p []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range p {
		if b == '\n' {
			if i > start {
				lines = append(lines, p[start:i])
			}
			start = i + 1
		}
	}
	if start < len(p) {
		lines = append(lines, p[start:])
	}
	return lines
}

// redactLine redacts every top-level string value of a JSON log line. Other
// values are kept byte for byte, so large integers survive unchanged.
func redactLine(line []byte) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err == nil {
		for k, v := range fields {
			var s string
			if len(v) == 0 || v[0] != '"' || json.Unmarshal(v, &s) != nil {
				continue
			}
			if redacted, err := json.Marshal(RedactMessage(s)); err == nil {
				fields[k] = redacted
			}
		}
		if out, err := json.Marshal(fields); err == nil {
			return out
		}
	}
	out, _ := json.Marshal(RedactMessage(string(line)))
	return out
}
