package core

import (
	"sync"

	"github.com/inframind/inframind/schema"
)

// logBuffer keeps the newest runner output lines for a plan. Older lines
// are dropped once maxLines is exceeded. Safe for concurrent use; the
// runner goroutine appends while reads serve the live tail.
type logBuffer struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	dropped  int
}

func newLogBuffer(maxLines int) *logBuffer {
	if maxLines <= 0 {
		maxLines = schema.DefaultPlanLogMaxLines
	}
	return &logBuffer{maxLines: maxLines}
}

// Append adds lines, trimming from the front past the cap.
func (b *logBuffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, lines...)
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = b.lines[trim:]
		b.dropped += trim
	}
}

// Tail returns a copy of the retained lines.
func (b *logBuffer) Tail() []string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return nil
	}
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Dropped reports how many lines fell off the front.
func (b *logBuffer) Dropped() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
