package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capacity is the maximum number of entries a Log retains.
const Capacity = 50

// Level is the severity of an Entry.
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Entry is one immutable activity record.
type Entry struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Level      Level     `json:"level"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Log is a thread-safe fixed-capacity log. Entries are kept newest first;
// recording past Capacity drops the oldest.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time // injectable for deterministic tests
}

// New creates an empty Log.
func New() *Log {
	return &Log{
		entries: make([]Entry, 0, Capacity),
		now:     time.Now,
	}
}

// Record prepends a new entry and returns it.
func (l *Log) Record(message string, level Level) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record(message, level)
}

func (l *Log) record(message string, level Level) Entry {
	e := Entry{
		ID:         uuid.NewString(),
		Message:    message,
		Level:      level,
		OccurredAt: l.now(),
	}
	if len(l.entries) < Capacity {
		l.entries = append(l.entries, Entry{})
	}
	copy(l.entries[1:], l.entries[:len(l.entries)-1])
	l.entries[0] = e
	return e
}

// Clear empties the log and records a single entry noting that it did.
func (l *Log) Clear() Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
	return l.record("activity log cleared", Info)
}

// Snapshot returns a newest-first copy of the entries.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
