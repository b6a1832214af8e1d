package runner

import (
	"strings"
	"sync"
)

const tailLimit = 200

// lineWriter splits container output into lines, forwards each to the
// callback, and keeps a bounded tail for summary extraction.
type lineWriter struct {
	mu     sync.Mutex
	rest   string
	tail   []string
	onLine func(string)
}

func newLineWriter(onLine func(string)) *lineWriter {
	return &lineWriter{onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	data := w.rest + string(p)
	var lines []string
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(data[:idx], "\r"))
		data = data[idx+1:]
	}
	w.rest = data
	for _, line := range lines {
		w.appendLocked(line)
	}
	w.mu.Unlock()
	for _, line := range lines {
		if w.onLine != nil {
			w.onLine(line)
		}
	}
	return len(p), nil
}

// Flush emits a trailing partial line, if any.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	line := strings.TrimRight(w.rest, "\r")
	pending := w.rest != ""
	if pending {
		w.rest = ""
		w.appendLocked(line)
	}
	w.mu.Unlock()
	if pending && w.onLine != nil {
		w.onLine(line)
	}
}

func (w *lineWriter) appendLocked(line string) {
	w.tail = append(w.tail, line)
	if len(w.tail) > tailLimit {
		w.tail = w.tail[len(w.tail)-tailLimit:]
	}
}

// Tail returns a copy of the retained output lines.
func (w *lineWriter) Tail() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.tail))
	copy(out, w.tail)
	return out
}

// summaryLine picks the change summary out of run output. Terraform prints
// "Plan: N to add, ..." for plans and "Apply complete! ..." for applies.
func summaryLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "Plan: ") || strings.HasPrefix(line, "Apply complete!") {
			return line
		}
	}
	return ""
}
