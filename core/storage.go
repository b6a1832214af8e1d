package core

import (
	"context"
	"time"

	"github.com/inframind/inframind/schema"
)

// AssessmentStore persists assessments and their reports.
type AssessmentStore interface {
	Create(ctx context.Context, a schema.Assessment) error
	Get(ctx context.Context, id schema.AssessmentID) (schema.Assessment, error)
	// ListByOwner returns a page of the owner's assessments plus the total
	// match count. Archived rows are excluded unless status selects them.
	ListByOwner(ctx context.Context, owner schema.UserID, status schema.AssessmentStatus, offset, limit int) ([]schema.Assessment, int, error)
	// Update replaces the row if the stored revision matches expected and
	// returns the new row. A mismatch fails with schema.ErrRevisionConflict.
	Update(ctx context.Context, a schema.Assessment, expected int64) (schema.Assessment, error)
	SaveReport(ctx context.Context, r schema.Report) error
	GetReport(ctx context.Context, id schema.AssessmentID) (schema.Report, error)
	Recent(ctx context.Context, limit int) ([]schema.Assessment, error)
}

// VariantCount is the raw event tally for one experiment variant.
type VariantCount struct {
	VariantID   schema.VariantID
	Exposures   int
	Conversions int
}

// ExperimentStore persists experiments, assignments, and events.
type ExperimentStore interface {
	Create(ctx context.Context, e schema.Experiment) error
	Get(ctx context.Context, id schema.ExperimentID) (schema.Experiment, error)
	List(ctx context.Context, status schema.ExperimentStatus) ([]schema.Experiment, error)
	Update(ctx context.Context, e schema.Experiment) error
	Delete(ctx context.Context, id schema.ExperimentID) error
	// SaveAssignment records subject->variant first-write-wins and returns
	// the winning variant id.
	SaveAssignment(ctx context.Context, id schema.ExperimentID, subject string, variant schema.VariantID) (schema.VariantID, error)
	GetAssignment(ctx context.Context, id schema.ExperimentID, subject string) (schema.VariantID, bool, error)
	RecordEvent(ctx context.Context, id schema.ExperimentID, subject string, variant schema.VariantID, kind schema.ExperimentEventKind, at time.Time) error
	Counts(ctx context.Context, id schema.ExperimentID) ([]VariantCount, error)
}

// RepositoryStore persists connected git repositories.
type RepositoryStore interface {
	Create(ctx context.Context, r schema.GitRepository) error
	Get(ctx context.Context, id schema.RepositoryID) (schema.GitRepository, error)
	GetByCloneURL(ctx context.Context, cloneURL string) (schema.GitRepository, error)
	List(ctx context.Context) ([]schema.GitRepository, error)
	Update(ctx context.Context, r schema.GitRepository) error
	Delete(ctx context.Context, id schema.RepositoryID) error
}

// PlanStore persists deployment plans.
type PlanStore interface {
	Create(ctx context.Context, p schema.DeploymentPlan) error
	Get(ctx context.Context, id schema.PlanID) (schema.DeploymentPlan, error)
	List(ctx context.Context, status schema.PlanStatus, offset, limit int) ([]schema.DeploymentPlan, int, error)
	Update(ctx context.Context, p schema.DeploymentPlan) error
	Recent(ctx context.Context, limit int) ([]schema.DeploymentPlan, error)
}

// FeedbackStore persists feedback records.
type FeedbackStore interface {
	Create(ctx context.Context, f schema.FeedbackRecord) error
	List(ctx context.Context, category schema.FeedbackCategory, minRating, offset, limit int) ([]schema.FeedbackRecord, int, error)
	Stats(ctx context.Context) (schema.FeedbackStats, error)
	Recent(ctx context.Context, limit int) ([]schema.FeedbackRecord, error)
}

// PreferenceStore persists per-user settings and selections.
type PreferenceStore interface {
	Get(ctx context.Context, user schema.UserID) (schema.Preferences, bool, error)
	Set(ctx context.Context, user schema.UserID, p schema.Preferences) error
	ActiveAssessment(ctx context.Context, user schema.UserID) (schema.AssessmentID, error)
	SetActiveAssessment(ctx context.Context, user schema.UserID, id schema.AssessmentID) error
}

// DayCount is one day's bucket of a time series.
type DayCount struct {
	Day   time.Time
	Count int
	Value float64
}

// PlanDayCount is one day's deployment outcomes.
type PlanDayCount struct {
	Day       time.Time
	Succeeded int
	Failed    int
}

// StatsStore answers the aggregate queries behind KPIs and charts. All
// ranges are half-open [from, to).
type StatsStore interface {
	RecordPageView(ctx context.Context, user schema.UserID, page string, durationMS int, at time.Time) error
	AssessmentsCompleted(ctx context.Context, from, to time.Time) (int, error)
	AssessmentsCompletedDaily(ctx context.Context, from, to time.Time) ([]DayCount, error)
	AverageReadinessScore(ctx context.Context, from, to time.Time) (avg float64, n int, err error)
	PlansApplied(ctx context.Context, from, to time.Time) (succeeded, failed int, err error)
	PlansDaily(ctx context.Context, from, to time.Time) ([]PlanDayCount, error)
	ActiveUsers(ctx context.Context, from, to time.Time) (int, error)
	AverageFeedbackRating(ctx context.Context, from, to time.Time) (avg float64, n int, err error)
	FeedbackRatingDaily(ctx context.Context, from, to time.Time) ([]DayCount, error)
	PageViewsDaily(ctx context.Context, from, to time.Time) ([]DayCount, error)
	MonthlyCostTotal(ctx context.Context) (float64, error)
}
