package core

import "github.com/inframind/inframind/schema"

// EventSink receives domain events from the core service.
type EventSink interface {
	OnPlanEvent(event schema.PlanEvent)
	OnAssessmentEvent(event schema.AssessmentEvent)
	OnFeedbackEvent(event schema.FeedbackEvent)
	OnKPIEvent(event schema.KPIEvent)
}
