package board

import (
	"slices"
	"sync"
	"time"
)

// Log is the ordered record of all messages currently visible to clients.
type Log struct {
	mu     sync.RWMutex
	items  []Message
	lastID int64
	now    func() time.Time
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithLogClock overrides the time source used to stamp messages.
func WithLogClock(now func() time.Time) LogOption {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates an empty Log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append validates d, assigns the next id and the current time, and stores
// the resulting message at the end of the log.
//
// Ids continue from the highest id ever assigned, so they are never reused
// after Delete or Clear.
func (l *Log) Append(d Draft) (Message, error) {
	d, err := d.normalize()
	if err != nil {
		return Message{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	msg := Message{
		ID:        l.lastID,
		Sender:    d.Sender,
		Timestamp: l.now(),
		Kind:      d.Kind,
		Content:   d.Content,
		FileID:    d.FileID,
		Filename:  d.Filename,
		Size:      d.Size,
	}
	l.items = append(l.items, msg)
	return msg, nil
}

// Delete removes the message with the given id and reports whether it was
// present. Deleting an unknown id is a no-op.
func (l *Log) Delete(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Ids are strictly increasing, so the slice is sorted by id.
	i, found := slices.BinarySearchFunc(l.items, id, func(m Message, target int64) int {
		switch {
		case m.ID < target:
			return -1
		case m.ID > target:
			return 1
		}
		return 0
	})
	if !found {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// Clear removes every message and returns how many were dropped. The id
// counter keeps its value.
func (l *Log) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	l.items = nil
	return n
}

// Snapshot returns a copy of the log in append order.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of live messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// LastID returns the highest id assigned so far, or 0 for a fresh log.
func (l *Log) LastID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastID
}
