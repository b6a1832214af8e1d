package inframind

import (
	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

// composeEventSinks collapses the configured sinks to what the service
// expects: nil when nothing listens, the sink itself for one, a fanout
// otherwise.
func composeEventSinks(sinks []core.EventSink) core.EventSink {
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return eventFanout{sinks: sinks}
	}
}

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnPlanEvent(event schema.PlanEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPlanEvent(event)
	}
}

func (f eventFanout) OnAssessmentEvent(event schema.AssessmentEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnAssessmentEvent(event)
	}
}

func (f eventFanout) OnFeedbackEvent(event schema.FeedbackEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnFeedbackEvent(event)
	}
}

func (f eventFanout) OnKPIEvent(event schema.KPIEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnKPIEvent(event)
	}
}

// auditSink writes one structured line per domain event, forming the
// audit trail next to the request log. Plan output lines and KPI
// refreshes log at debug; they are high volume.
type auditSink struct {
	log pslog.Logger
}

func (a auditSink) OnPlanEvent(event schema.PlanEvent) {
	if a.log == nil {
		return
	}
	if event.Line != "" {
		a.log.Debug("audit plan output", "plan", event.Plan.ID, "line", event.Line)
		return
	}
	a.log.Info("audit plan event", "plan", event.Plan.ID, "status", event.Plan.Status)
}

func (a auditSink) OnAssessmentEvent(event schema.AssessmentEvent) {
	if a.log == nil {
		return
	}
	a.log.Info("audit assessment event",
		"assessment", event.Assessment.ID, "status", event.Assessment.Status)
}

func (a auditSink) OnFeedbackEvent(event schema.FeedbackEvent) {
	if a.log == nil {
		return
	}
	a.log.Info("audit feedback event",
		"feedback", event.Feedback.ID, "rating", event.Feedback.Rating, "category", event.Feedback.Category)
}

func (a auditSink) OnKPIEvent(event schema.KPIEvent) {
	if a.log == nil {
		return
	}
	a.log.Debug("audit kpi refresh", "cards", len(event.KPIs))
}
