package command

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/schema"
)

func auditTestContext(t *testing.T) (context.Context, *logCapture) {
	t.Helper()
	capture := newLogCapture(t)
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	return pslog.ContextWithLogger(context.Background(), logger), capture
}

func TestHandleAuditLog(t *testing.T) {
	ctx, capture := auditTestContext(t)
	svc := &fakeService{
		getDashboardFn: func(context.Context, schema.GetDashboardRequest) (schema.GetDashboardResponse, error) {
			return schema.GetDashboardResponse{}, nil
		},
	}
	handler := NewHandler(svc, HandlerConfig{})
	if _, err := handler.Handle(ctx, "alice", schema.RoleViewer, "  kpis  "); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !hasAuditCommand(capture.Entries(), "kpis") {
		t.Fatalf("expected audit log entry, got %d entries", len(capture.Entries()))
	}
}

func TestHandleAuditLogDisabled(t *testing.T) {
	ctx, capture := auditTestContext(t)
	svc := &fakeService{
		getDashboardFn: func(context.Context, schema.GetDashboardRequest) (schema.GetDashboardResponse, error) {
			return schema.GetDashboardResponse{}, nil
		},
	}
	handler := NewHandler(svc, HandlerConfig{DisableAuditLogging: true})
	if _, err := handler.Handle(ctx, "alice", schema.RoleViewer, "kpis"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if hasAuditCommand(capture.Entries(), "kpis") {
		t.Fatal("expected no audit log entry when disabled")
	}
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

type logCapture struct {
	t     *testing.T
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func newLogCapture(t *testing.T) *logCapture {
	t.Helper()
	return &logCapture{t: t}
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.buf.Write(p)
	for {
		data := c.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		line := string(data[:idx])
		c.lines = append(c.lines, line)
		c.buf.Next(idx + 1)
	}
	return len(p), nil
}

func (c *logCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 {
		c.lines = append(c.lines, c.buf.String())
		c.buf.Reset()
	}
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *logCapture) Entries() []logEntry {
	lines := c.Lines()
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogEntry(line))
	}
	return entries
}

func parseLogEntry(line string) logEntry {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return logEntry{Raw: line}
	}
	level := ""
	if value, ok := payload["level"].(string); ok {
		level = value
	} else if value, ok := payload["lvl"].(string); ok {
		level = value
	}
	message := ""
	if value, ok := payload["message"].(string); ok {
		message = value
	} else if value, ok := payload["msg"].(string); ok {
		message = value
	}
	return logEntry{Level: level, Message: message, Fields: payload, Raw: line}
}

func hasAuditCommand(entries []logEntry, command string) bool {
	for _, entry := range entries {
		if entry.Level != "debug" || entry.Message != "audit command" {
			continue
		}
		if entry.Fields == nil || entry.Fields["command"] != command {
			continue
		}
		return true
	}
	return false
}
