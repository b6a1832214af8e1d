package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

const streamKeepalive = 25 * time.Second

// handleStream serves the live event feed as server-sent events. A
// fresh connection opens with a dashboard snapshot; a reconnect with
// Last-Event-ID replays missed events instead.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, p principal) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeBadRequest(w, fmt.Errorf("streaming unsupported by connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var afterSeq uint64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			afterSeq = n
		}
	}
	sub := s.hub.Subscribe(afterSeq)
	defer sub.cancel()

	log := logx.WithUser(r.Context(), p.UserID)
	log.Debug("stream attached", "after_seq", afterSeq)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if afterSeq == 0 {
		if snap, err := s.streamSnapshot(r.Context(), p); err == nil {
			snap.Seq = sub.seq
			if writeSSEvent(w, snap) != nil {
				return
			}
		} else {
			log.Warn("stream snapshot failed", "err", err)
		}
	}
	for _, ev := range sub.replay {
		if writeSSEvent(w, ev) != nil {
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Debug("stream detached")
			return
		case ev := <-sub.events:
			if writeSSEvent(w, ev) != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// streamSnapshot builds the opening event from the dashboard state.
func (s *Server) streamSnapshot(ctx context.Context, p principal) (StreamEvent, error) {
	resp, err := s.service.GetDashboard(ctx, schema.GetDashboardRequest{UserID: p.UserID})
	if err != nil {
		return StreamEvent{}, err
	}
	snap := &streamSnapshot{
		KPIs:              resp.KPIs,
		RecentAssessments: resp.RecentAssessments,
		RecentPlans:       resp.RecentPlans,
		RecentFeedback:    resp.RecentFeedback,
		ActiveAssessment:  resp.ActiveAssessment,
	}
	if limit := s.cfg.SnapshotLimit; limit > 0 {
		if len(snap.RecentAssessments) > limit {
			snap.RecentAssessments = snap.RecentAssessments[:limit]
		}
		if len(snap.RecentPlans) > limit {
			snap.RecentPlans = snap.RecentPlans[:limit]
		}
		if len(snap.RecentFeedback) > limit {
			snap.RecentFeedback = snap.RecentFeedback[:limit]
		}
	}
	return StreamEvent{
		Type:      "snapshot",
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
	}, nil
}

// writeSSEvent emits one event in wire format. The sequence number is
// the event id so EventSource reconnects resume correctly.
func writeSSEvent(w io.Writer, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", ev.Seq); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
