package httpapi

import (
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

const (
	defaultStreamHistory = 256
	subscriberBuffer     = 64
)

// StreamEvent is one server-sent event on /api/stream. Type selects
// which payload field is set; Seq doubles as the SSE event id so
// clients resume with Last-Event-ID after a reconnect.
type StreamEvent struct {
	Seq        uint64                 `json:"seq"`
	Type       string                 `json:"type"`
	Plan       *schema.DeploymentPlan `json:"plan,omitempty"`
	Line       string                 `json:"line,omitempty"`
	Assessment *schema.Assessment     `json:"assessment,omitempty"`
	Feedback   *schema.FeedbackRecord `json:"feedback,omitempty"`
	KPIs       []schema.KPI           `json:"kpis,omitempty"`
	Snapshot   *streamSnapshot        `json:"snapshot,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// streamSnapshot is the opening event of a fresh stream: the dashboard
// state as of connect, so clients render before any delta arrives.
type streamSnapshot struct {
	KPIs              []schema.KPI            `json:"kpis"`
	RecentAssessments []schema.Assessment     `json:"recent_assessments"`
	RecentPlans       []schema.DeploymentPlan `json:"recent_plans"`
	RecentFeedback    []schema.FeedbackRecord `json:"recent_feedback"`
	ActiveAssessment  schema.AssessmentID     `json:"active_assessment"`
}

// Hub fans domain events out to every connected stream. Events are
// global: the dashboard is shared state, so every viewer sees the same
// feed. A bounded history backs Last-Event-ID replay.
type Hub struct {
	log   pslog.Logger
	limit int

	mu      sync.Mutex
	seq     uint64
	history []StreamEvent
	subs    map[*subscriber]struct{}
}

type subscriber struct {
	ch chan StreamEvent
}

// NewHub builds a hub retaining historyLimit events for replay.
func NewHub(historyLimit int, logger pslog.Logger) *Hub {
	if historyLimit <= 0 {
		historyLimit = defaultStreamHistory
	}
	return &Hub{
		log:   logger,
		limit: historyLimit,
		subs:  make(map[*subscriber]struct{}),
	}
}

var _ core.EventSink = (*Hub)(nil)

func (h *Hub) OnPlanEvent(event schema.PlanEvent) {
	plan := event.Plan
	h.publish(StreamEvent{Type: "plan", Plan: &plan, Line: event.Line})
}

func (h *Hub) OnAssessmentEvent(event schema.AssessmentEvent) {
	assessment := event.Assessment
	h.publish(StreamEvent{Type: "assessment", Assessment: &assessment})
}

func (h *Hub) OnFeedbackEvent(event schema.FeedbackEvent) {
	feedback := event.Feedback
	h.publish(StreamEvent{Type: "feedback", Feedback: &feedback})
}

func (h *Hub) OnKPIEvent(event schema.KPIEvent) {
	h.publish(StreamEvent{Type: "kpis", KPIs: event.KPIs})
}

// publish assigns the next sequence number, records the event for
// replay, and delivers it without blocking. A subscriber whose buffer
// is full misses the event and recovers via replay on reconnect.
func (h *Hub) publish(ev StreamEvent) {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.history = append(h.history, ev)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	targets := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()
	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			if h.log != nil {
				h.log.Debug("stream event dropped", "seq", ev.Seq, "type", ev.Type)
			}
		}
	}
}

// subscription is one attached stream. seq is the hub position at
// subscribe time; replay holds retained events after the caller's
// Last-Event-ID.
type subscription struct {
	events <-chan StreamEvent
	replay []StreamEvent
	seq    uint64
	cancel func()
}

// Subscribe attaches a stream. Events published after the call arrive
// on the channel; retained events with Seq > afterSeq are returned for
// replay first.
func (h *Hub) Subscribe(afterSeq uint64) subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{ch: make(chan StreamEvent, subscriberBuffer)}
	h.subs[sub] = struct{}{}
	var replay []StreamEvent
	if afterSeq > 0 {
		for _, ev := range h.history {
			if ev.Seq > afterSeq {
				replay = append(replay, ev)
			}
		}
	}
	return subscription{
		events: sub.ch,
		replay: replay,
		seq:    h.seq,
		cancel: func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		},
	}
}
