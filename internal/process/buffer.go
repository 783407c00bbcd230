package process

import (
	"strings"
	"sync"
)

// LineBuffer is a thread-safe ring buffer keeping the most recent lines an
// engine wrote to stderr.
type LineBuffer struct {
	lines    []string
	capacity int
	start    int // Index of oldest line
	count    int
	mu       sync.RWMutex
}

// NewLineBuffer creates a LineBuffer. Capacity must be at least 1.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LineBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Write appends a line, overwriting the oldest one when full.
func (b *LineBuffer) Write(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.capacity {
		b.lines[(b.start+b.count)%b.capacity] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.capacity
}

// Lines returns a copy of the stored lines, oldest first.
func (b *LineBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.lines[(b.start+i)%b.capacity]
	}
	return result
}

// Len returns the number of stored lines.
func (b *LineBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// String joins the stored lines with newlines.
func (b *LineBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}
