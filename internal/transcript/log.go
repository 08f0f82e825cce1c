// Package transcript collects the final turns of a voice session in arrival
// order.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Role identifies who spoke a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known speaker roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label is the prefix used when rendering the role in a dialogue.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ErrInvalidEntry is returned when an entry has an unknown role or no text.
var ErrInvalidEntry = errors.New("invalid transcript entry")

// Entry is one final utterance. Timestamp is Unix milliseconds at capture.
type Entry struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Log is an append-only, concurrency-safe list of entries for one session.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

// Append adds entry to the end of the log. Order is call order, not
// timestamp order.
func (l *Log) Append(entry Entry) error {
	entry.Text = strings.TrimSpace(entry.Text)
	if !entry.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidEntry, entry.Role)
	}
	if entry.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidEntry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Snapshot returns a copy of the current entries, or nil when empty.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dialogue renders entries as "User: ..." / "Assistant: ..." lines.
func Dialogue(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Role.Label()+": "+e.Text)
	}
	return strings.Join(lines, "\n")
}
