package schema

// PlanEvent represents a deployment plan status change or log append.
// Line is empty for pure status transitions.
type PlanEvent struct {
	Plan DeploymentPlan
	Line string
}

// AssessmentEvent represents an assessment lifecycle or progress change.
type AssessmentEvent struct {
	Assessment Assessment
}

// FeedbackEvent represents a newly submitted feedback record.
type FeedbackEvent struct {
	Feedback FeedbackRecord
}

// KPIEvent carries a recomputed KPI set for live dashboards.
type KPIEvent struct {
	KPIs []KPI
}
