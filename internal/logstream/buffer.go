package logstream

import (
	"sync"
	"time"
)

// Level classifies an entry. Values match what the HTTP log stream renders.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Entry is one line of operator-visible progress output.
type Entry struct {
	At    time.Time
	Level Level
	Text  string
}

// String renders the entry the way it is shown to log-stream consumers.
func (e Entry) String() string {
	return e.At.Format("2006-01-02 15:04:05") + " - " + string(e.Level) + " - " + e.Text
}

// Buffer is an append-only FIFO of log entries shared between the dispatch
// worker and the request path.
//
// Contract:
//   - Append never blocks and never fails; safe from any goroutine.
//   - DrainAll atomically empties the buffer and returns entries in
//     emission order. Once drained, entries are gone: the stream has a
//     single logical observer.
//
// Entries accumulate without bound between drains. Runs are short-lived and
// the stream endpoint drains on a sub-second interval, so no cap is applied.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Buffer { return &Buffer{} }

func (b *Buffer) Append(level Level, text string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.entries = append(b.entries, Entry{At: time.Now(), Level: level, Text: text})
	b.mu.Unlock()
}

// DrainAll returns everything queued so far, oldest first, and resets the
// buffer. It returns nil when nothing is queued.
func (b *Buffer) DrainAll() []Entry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	out := b.entries
	b.entries = nil
	b.mu.Unlock()
	return out
}

// Len reports how many entries are currently queued.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
