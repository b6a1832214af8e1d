package schema

import (
	"encoding/json"
	"time"
)

// User is the account record exposed over the API. Credentials never leave
// the auth store.
type User struct {
	ID          UserID     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AssessmentStatus describes where an assessment is in its lifecycle.
type AssessmentStatus string

const (
	// AssessmentDraft is a created assessment with no saved responses.
	AssessmentDraft AssessmentStatus = "draft"
	// AssessmentInProgress has at least one saved response step.
	AssessmentInProgress AssessmentStatus = "in_progress"
	// AssessmentReview has been submitted and awaits completion.
	AssessmentReview AssessmentStatus = "review"
	// AssessmentCompleted has a generated report.
	AssessmentCompleted AssessmentStatus = "completed"
	// AssessmentArchived is hidden from default listings.
	AssessmentArchived AssessmentStatus = "archived"
)

// Assessment is an infrastructure readiness questionnaire and its progress.
type Assessment struct {
	ID            AssessmentID            `json:"id"`
	OwnerID       UserID                  `json:"owner_id"`
	Title         string                  `json:"title"`
	OrgName       string                  `json:"org_name"`
	Provider      CloudProvider           `json:"provider"`
	Status        AssessmentStatus        `json:"status"`
	CurrentStep   int                     `json:"current_step"`
	TotalSteps    int                     `json:"total_steps"`
	CompletionPct float64                 `json:"completion_pct"`
	Responses     map[int]json.RawMessage `json:"responses,omitempty"`
	Scores        []ScoreEntry            `json:"scores,omitempty"`
	Revision      int64                   `json:"revision"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// ScoreEntry is one category result in an assessment score breakdown.
type ScoreEntry struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// ReportSeverity orders report sections by how urgent their findings are.
type ReportSeverity string

const (
	// SeverityCritical findings block AI workloads entirely.
	SeverityCritical ReportSeverity = "critical"
	// SeverityWarning findings degrade reliability or cost.
	SeverityWarning ReportSeverity = "warning"
	// SeverityInfo findings are informational.
	SeverityInfo ReportSeverity = "info"
)

// Report is the generated outcome of a completed assessment.
type Report struct {
	AssessmentID    AssessmentID     `json:"assessment_id"`
	OverallScore    float64          `json:"overall_score"`
	Sections        []ReportSection  `json:"sections"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// ReportSection is one narrative block of a report.
type ReportSection struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Severity ReportSeverity `json:"severity"`
}

// Recommendation is an actionable item attached to a report.
type Recommendation struct {
	Title             string  `json:"title"`
	Impact            string  `json:"impact"`
	Effort            string  `json:"effort"`
	MonthlySavingsUSD float64 `json:"monthly_savings_usd"`
}

// ExperimentStatus describes where an experiment is in its lifecycle.
type ExperimentStatus string

const (
	// ExperimentDraft is editable and does not assign subjects.
	ExperimentDraft ExperimentStatus = "draft"
	// ExperimentRunning assigns subjects and records events.
	ExperimentRunning ExperimentStatus = "running"
	// ExperimentPaused keeps assignments but rejects new events.
	ExperimentPaused ExperimentStatus = "paused"
	// ExperimentCompleted is terminal.
	ExperimentCompleted ExperimentStatus = "completed"
)

// Experiment is an A/B test over a single metric.
type Experiment struct {
	ID          ExperimentID     `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Hypothesis  string           `json:"hypothesis,omitempty"`
	Metric      string           `json:"metric"`
	Status      ExperimentStatus `json:"status"`
	Variants    []Variant        `json:"variants"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Variant is one arm of an experiment. Weights are integer percents and sum
// to 100 across the experiment.
type Variant struct {
	ID      VariantID `json:"id"`
	Name    string    `json:"name"`
	Weight  int       `json:"weight"`
	Control bool      `json:"control"`
}

// ExperimentEventKind classifies recorded experiment events.
type ExperimentEventKind string

const (
	// EventExposure records that a subject saw its assigned variant.
	EventExposure ExperimentEventKind = "exposure"
	// EventConversion records that a subject hit the experiment metric.
	EventConversion ExperimentEventKind = "conversion"
)

// ExperimentResults aggregates per-variant outcomes.
type ExperimentResults struct {
	ExperimentID ExperimentID    `json:"experiment_id"`
	Variants     []VariantResult `json:"variants"`
}

// VariantResult is the aggregate outcome for one variant. Lift is relative
// to the control variant and nil when the control has no exposures.
type VariantResult struct {
	VariantID      VariantID `json:"variant_id"`
	Name           string    `json:"name"`
	Control        bool      `json:"control"`
	Exposures      int       `json:"exposures"`
	Conversions    int       `json:"conversions"`
	ConversionRate float64   `json:"conversion_rate"`
	LiftPct        *float64  `json:"lift_pct,omitempty"`
}

// RepoSyncStatus describes the state of the local mirror of a repository.
type RepoSyncStatus string

const (
	// SyncPending means the repository has never been synced.
	SyncPending RepoSyncStatus = "pending"
	// SyncInProgress means a sync is currently running.
	SyncInProgress RepoSyncStatus = "syncing"
	// SyncOK means the last sync succeeded.
	SyncOK RepoSyncStatus = "ok"
	// SyncError means the last sync failed.
	SyncError RepoSyncStatus = "error"
)

// GitRepository is a connected repository used for GitOps flows.
type GitRepository struct {
	ID            RepositoryID   `json:"id"`
	Provider      GitProvider    `json:"provider"`
	Name          string         `json:"name"`
	CloneURL      string         `json:"clone_url"`
	DefaultBranch string         `json:"default_branch"`
	SyncStatus    RepoSyncStatus `json:"sync_status"`
	LastSyncedAt  *time.Time     `json:"last_synced_at,omitempty"`
	LastSyncError string         `json:"last_sync_error,omitempty"`
	ConnectedAt   time.Time      `json:"connected_at"`
}

// PullRequestStatus describes the provider-side state of a pull request.
type PullRequestStatus string

const (
	// PullRequestOpen is awaiting review or merge.
	PullRequestOpen PullRequestStatus = "open"
	// PullRequestMerged has been merged.
	PullRequestMerged PullRequestStatus = "merged"
	// PullRequestClosed was closed without merging.
	PullRequestClosed PullRequestStatus = "closed"
)

// PullRequest mirrors a provider pull request tied to a deployment plan or
// listed for a connected repository.
type PullRequest struct {
	ID           PullRequestID     `json:"id"`
	RepositoryID RepositoryID      `json:"repository_id"`
	Number       int               `json:"number"`
	Title        string            `json:"title"`
	Branch       string            `json:"branch"`
	Status       PullRequestStatus `json:"status"`
	URL          string            `json:"url,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TemplateKind identifies the IaC tool a template targets.
type TemplateKind string

const (
	// TemplateTerraform is a Terraform module.
	TemplateTerraform TemplateKind = "terraform"
	// TemplatePulumi is a Pulumi program.
	TemplatePulumi TemplateKind = "pulumi"
	// TemplateCloudFormation is an AWS CloudFormation stack.
	TemplateCloudFormation TemplateKind = "cloudformation"
)

// IaCTemplate describes a deployable infrastructure template.
type IaCTemplate struct {
	ID          TemplateID          `json:"id"`
	Name        string              `json:"name"`
	Kind        TemplateKind        `json:"kind"`
	Provider    CloudProvider       `json:"provider"`
	Description string              `json:"description,omitempty"`
	Version     string              `json:"version"`
	Parameters  []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is one input a template accepts.
type TemplateParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// PlanStatus describes where a deployment plan is in its lifecycle.
type PlanStatus string

const (
	// PlanPending is created but not yet planning.
	PlanPending PlanStatus = "pending"
	// PlanPlanning is rendering and estimating the change set.
	PlanPlanning PlanStatus = "planning"
	// PlanAwaitingApproval has an estimate and needs an admin decision.
	PlanAwaitingApproval PlanStatus = "awaiting_approval"
	// PlanApplying has been approved and is being applied.
	PlanApplying PlanStatus = "applying"
	// PlanSucceeded applied cleanly.
	PlanSucceeded PlanStatus = "succeeded"
	// PlanFailed stopped with an error at any stage.
	PlanFailed PlanStatus = "failed"
)

// DeploymentPlan ties an assessment to a rendered template targeting a
// connected repository.
type DeploymentPlan struct {
	ID             PlanID            `json:"id"`
	AssessmentID   AssessmentID      `json:"assessment_id"`
	RepositoryID   RepositoryID      `json:"repository_id"`
	TemplateID     TemplateID        `json:"template_id"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Status         PlanStatus        `json:"status"`
	PullRequestID  PullRequestID     `json:"pull_request_id,omitempty"`
	MonthlyCostUSD *float64          `json:"monthly_cost_usd,omitempty"`
	ApprovedBy     UserID            `json:"approved_by,omitempty"`
	LogTail        []string          `json:"log_tail,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// FeedbackCategory groups feedback by product surface.
type FeedbackCategory string

const (
	// FeedbackAssessment concerns the assessment wizard.
	FeedbackAssessment FeedbackCategory = "assessment"
	// FeedbackReport concerns generated reports.
	FeedbackReport FeedbackCategory = "report"
	// FeedbackExperiment concerns the experiments surface.
	FeedbackExperiment FeedbackCategory = "experiment"
	// FeedbackGitOps concerns the GitOps panels.
	FeedbackGitOps FeedbackCategory = "gitops"
	// FeedbackDashboard concerns the executive dashboard.
	FeedbackDashboard FeedbackCategory = "dashboard"
	// FeedbackOther is everything else.
	FeedbackOther FeedbackCategory = "other"
)

// FeedbackRecord is one submitted rating with optional comment.
type FeedbackRecord struct {
	ID        FeedbackID       `json:"id"`
	UserID    UserID           `json:"user_id"`
	Category  FeedbackCategory `json:"category"`
	Rating    int              `json:"rating"`
	Comment   string           `json:"comment,omitempty"`
	Page      string           `json:"page,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// FeedbackStats aggregates submitted feedback.
type FeedbackStats struct {
	Total         int                      `json:"total"`
	AverageRating float64                  `json:"average_rating"`
	ByCategory    map[FeedbackCategory]int `json:"by_category"`
	ByRating      map[int]int              `json:"by_rating"`
}

// Trend describes the direction of a KPI relative to the previous window.
type Trend string

const (
	// TrendUp means the value rose by more than one percent.
	TrendUp Trend = "up"
	// TrendDown means the value fell by more than one percent.
	TrendDown Trend = "down"
	// TrendFlat means the value moved one percent or less.
	TrendFlat Trend = "flat"
)

// KPI is one executive dashboard card.
type KPI struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Trend    Trend   `json:"trend"`
	DeltaPct float64 `json:"delta_pct"`
	Window   string  `json:"window"`
}

// ChartSeries is the wire shape shared by all chart endpoints: one label per
// x position with parallel value series.
type ChartSeries struct {
	Labels []string    `json:"labels"`
	Series []ChartData `json:"series"`
}

// ChartData is one named series of a chart.
type ChartData struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Preferences are per-user dashboard settings.
type Preferences struct {
	Theme             Theme         `json:"theme"`
	DefaultProvider   CloudProvider `json:"default_provider,omitempty"`
	NotifyPlanUpdates bool          `json:"notify_plan_updates"`
	NotifyWeeklyMail  bool          `json:"notify_weekly_mail"`
}
