package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept for /api/logs.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the newest entries up to a fixed capacity.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int // slot the next Write lands in once full
}

// NewRingBuffer returns an empty buffer holding at most capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{entries: make([]LogEntry, 0, capacity)}
}

// Write appends entry, evicting the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < cap(rb.entries) {
		rb.entries = append(rb.entries, entry)
		return
	}
	rb.entries[rb.next] = entry
	rb.next = (rb.next + 1) % len(rb.entries)
}

// Len returns the number of stored entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Snapshot returns every stored entry, oldest first.
func (rb *RingBuffer) Snapshot() []LogEntry {
	return rb.Tail(0)
}

// Tail returns the newest n entries, oldest first. n <= 0 returns all.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	total := len(rb.entries)
	if total == 0 {
		return nil
	}
	if n <= 0 || n > total {
		n = total
	}

	out := make([]LogEntry, n)
	start := rb.next + total - n
	for i := range out {
		out[i] = rb.entries[(start+i)%total]
	}
	return out
}
