package consumer

import (
	"sync"
	"time"
)

const DefaultLogLimit = 200

// Entry is one received event.
type Entry struct {
	At       time.Time `json:"at"`
	Receiver string    `json:"receiver"`
	Action   string    `json:"action"`
	EventID  string    `json:"event_id"`
}

// EventLog keeps the most recent entries, newest first.
type EventLog struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return &EventLog{limit: limit}
}

func (l *EventLog) Add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
}

func (l *EventLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry{}, l.entries...)
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
