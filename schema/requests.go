package schema

import "encoding/json"

// Assessment lifecycle.

// CreateAssessmentRequest describes a request to create an assessment.
type CreateAssessmentRequest struct {
	UserID   UserID
	Title    string
	OrgName  string
	Provider CloudProvider
}

// CreateAssessmentResponse reports the created assessment.
type CreateAssessmentResponse struct {
	Assessment Assessment
}

// GetAssessmentRequest describes a request to fetch one assessment.
type GetAssessmentRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// GetAssessmentResponse reports the assessment.
type GetAssessmentResponse struct {
	Assessment Assessment
}

// ListAssessmentsRequest describes a request to list assessments.
// Status narrows the listing when set. Archived assessments are excluded
// unless requested explicitly.
type ListAssessmentsRequest struct {
	UserID UserID
	Status AssessmentStatus
	Offset int
	Limit  int
}

// ListAssessmentsResponse reports a page of assessments.
type ListAssessmentsResponse struct {
	Assessments []Assessment
	Total       int
}

// SaveAssessmentDraftRequest describes an autosave of one wizard step.
// Revision must match the stored revision or the save is rejected.
type SaveAssessmentDraftRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
	Step         int
	Responses    json.RawMessage
	Revision     int64
}

// SaveAssessmentDraftResponse reports the assessment after the save.
type SaveAssessmentDraftResponse struct {
	Assessment Assessment
}

// SubmitAssessmentRequest describes a request to submit for review.
type SubmitAssessmentRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// SubmitAssessmentResponse reports the assessment after submission.
type SubmitAssessmentResponse struct {
	Assessment Assessment
}

// CompleteAssessmentRequest describes a request to complete an assessment
// and generate its report.
type CompleteAssessmentRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// CompleteAssessmentResponse reports the completed assessment and report.
type CompleteAssessmentResponse struct {
	Assessment Assessment
	Report     Report
}

// ArchiveAssessmentRequest describes a request to archive an assessment.
type ArchiveAssessmentRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// ArchiveAssessmentResponse reports the archived assessment.
type ArchiveAssessmentResponse struct {
	Assessment Assessment
}

// SelectAssessmentRequest describes a request to mark the user's active
// assessment. An empty AssessmentID clears the selection.
type SelectAssessmentRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// SelectAssessmentResponse reports the active assessment id.
type SelectAssessmentResponse struct {
	AssessmentID AssessmentID
}

// GetReportRequest describes a request to fetch a generated report.
type GetReportRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// GetReportResponse reports the report.
type GetReportResponse struct {
	Report Report
}

// ExportReportPDFRequest describes a request to render a report as PDF.
type ExportReportPDFRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
}

// ExportReportPDFResponse reports the rendered document.
type ExportReportPDFResponse struct {
	Filename string
	PDF      []byte
}

// Experiments.

// VariantSpec describes one variant when creating an experiment.
type VariantSpec struct {
	Name    string
	Weight  int
	Control bool
}

// CreateExperimentRequest describes a request to create an experiment.
type CreateExperimentRequest struct {
	UserID      UserID
	Name        string
	Description string
	Hypothesis  string
	Metric      string
	Variants    []VariantSpec
}

// CreateExperimentResponse reports the created experiment.
type CreateExperimentResponse struct {
	Experiment Experiment
}

// GetExperimentRequest describes a request to fetch one experiment.
type GetExperimentRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// GetExperimentResponse reports the experiment.
type GetExperimentResponse struct {
	Experiment Experiment
}

// ListExperimentsRequest describes a request to list experiments.
type ListExperimentsRequest struct {
	UserID UserID
	Status ExperimentStatus
}

// ListExperimentsResponse reports all matching experiments.
type ListExperimentsResponse struct {
	Experiments []Experiment
}

// DeleteExperimentRequest describes a request to delete a draft experiment.
type DeleteExperimentRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// DeleteExperimentResponse reports completion of the delete.
type DeleteExperimentResponse struct{}

// StartExperimentRequest describes a request to start an experiment.
type StartExperimentRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// StartExperimentResponse reports the started experiment.
type StartExperimentResponse struct {
	Experiment Experiment
}

// PauseExperimentRequest describes a request to pause a running experiment.
type PauseExperimentRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// PauseExperimentResponse reports the paused experiment.
type PauseExperimentResponse struct {
	Experiment Experiment
}

// EndExperimentRequest describes a request to end an experiment.
type EndExperimentRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// EndExperimentResponse reports the completed experiment.
type EndExperimentResponse struct {
	Experiment Experiment
}

// AssignVariantRequest describes a request to assign a subject to a variant.
type AssignVariantRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
	SubjectID    string
}

// AssignVariantResponse reports the assigned variant. Reused is true when
// the subject already had a persisted assignment.
type AssignVariantResponse struct {
	Variant Variant
	Reused  bool
}

// RecordExperimentEventRequest describes an exposure or conversion event.
type RecordExperimentEventRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
	SubjectID    string
	Kind         ExperimentEventKind
}

// RecordExperimentEventResponse reports completion of the write.
type RecordExperimentEventResponse struct{}

// ExperimentResultsRequest describes a request for aggregated results.
type ExperimentResultsRequest struct {
	UserID       UserID
	ExperimentID ExperimentID
}

// ExperimentResultsResponse reports per-variant outcomes.
type ExperimentResultsResponse struct {
	Results ExperimentResults
}

// GitOps repositories.

// ConnectRepositoryRequest describes a request to connect a repository by
// clone URL. Provider is inferred from the host when empty.
type ConnectRepositoryRequest struct {
	UserID   UserID
	URL      string
	Provider GitProvider
}

// ConnectRepositoryResponse reports the connected repository and the public
// half of its freshly minted deploy key.
type ConnectRepositoryResponse struct {
	Repository      GitRepository
	DeployPublicKey string
}

// ListRepositoriesRequest describes a request to list connected repositories.
type ListRepositoriesRequest struct {
	UserID UserID
}

// ListRepositoriesResponse reports connected repositories.
type ListRepositoriesResponse struct {
	Repositories []GitRepository
}

// GetRepositoryRequest describes a request to fetch one repository.
type GetRepositoryRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// GetRepositoryResponse reports the repository.
type GetRepositoryResponse struct {
	Repository GitRepository
}

// SyncRepositoryRequest describes a request to refresh the local mirror.
type SyncRepositoryRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// SyncRepositoryResponse reports the repository after the sync attempt.
type SyncRepositoryResponse struct {
	Repository GitRepository
}

// DisconnectRepositoryRequest describes a request to remove a repository.
type DisconnectRepositoryRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// DisconnectRepositoryResponse reports completion of the removal.
type DisconnectRepositoryResponse struct{}

// RotateDeployKeyRequest describes a request to mint a new deploy key.
type RotateDeployKeyRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// RotateDeployKeyResponse reports the new public key.
type RotateDeployKeyResponse struct {
	PublicKey string
}

// GetDeployKeyRequest describes a request for the public deploy key.
type GetDeployKeyRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// GetDeployKeyResponse reports the public key.
type GetDeployKeyResponse struct {
	PublicKey string
}

// ListPullRequestsRequest describes a request to list provider pull requests.
type ListPullRequestsRequest struct {
	UserID       UserID
	RepositoryID RepositoryID
}

// ListPullRequestsResponse reports pull requests and whether they came from
// the provider or the fallback catalog.
type ListPullRequestsResponse struct {
	PullRequests []PullRequest
	Source       ResultSource
}

// IaC templates.

// ListTemplatesRequest describes a request to list templates, optionally
// narrowed by kind and cloud provider.
type ListTemplatesRequest struct {
	UserID   UserID
	Kind     TemplateKind
	Provider CloudProvider
}

// ListTemplatesResponse reports matching templates.
type ListTemplatesResponse struct {
	Templates []IaCTemplate
	Source    ResultSource
}

// GetTemplateRequest describes a request to fetch one template.
type GetTemplateRequest struct {
	UserID     UserID
	TemplateID TemplateID
}

// GetTemplateResponse reports the template with its parameter schema.
type GetTemplateResponse struct {
	Template IaCTemplate
}

// Deployment plans.

// CreatePlanRequest describes a request to create a deployment plan.
type CreatePlanRequest struct {
	UserID       UserID
	AssessmentID AssessmentID
	RepositoryID RepositoryID
	TemplateID   TemplateID
	Parameters   map[string]string
}

// CreatePlanResponse reports the created plan.
type CreatePlanResponse struct {
	Plan DeploymentPlan
}

// GetPlanRequest describes a request to fetch one plan.
type GetPlanRequest struct {
	UserID UserID
	PlanID PlanID
}

// GetPlanResponse reports the plan with its log tail.
type GetPlanResponse struct {
	Plan DeploymentPlan
}

// ListPlansRequest describes a request to list plans.
type ListPlansRequest struct {
	UserID UserID
	Status PlanStatus
	Offset int
	Limit  int
}

// ListPlansResponse reports a page of plans.
type ListPlansResponse struct {
	Plans []DeploymentPlan
	Total int
}

// ApprovePlanRequest describes an admin approval of a plan.
type ApprovePlanRequest struct {
	UserID UserID
	PlanID PlanID
}

// ApprovePlanResponse reports the plan after approval.
type ApprovePlanResponse struct {
	Plan DeploymentPlan
}

// Dashboard.

// GetDashboardRequest describes a request for the executive dashboard.
type GetDashboardRequest struct {
	UserID UserID
}

// GetDashboardResponse reports KPI cards and recent activity.
type GetDashboardResponse struct {
	KPIs              []KPI
	RecentAssessments []Assessment
	RecentPlans       []DeploymentPlan
	RecentFeedback    []FeedbackRecord
	ActiveAssessment  AssessmentID
}

// ChartKey identifies a chart endpoint.
type ChartKey string

const (
	// ChartAssessments is daily assessment completions.
	ChartAssessments ChartKey = "assessments"
	// ChartFeedback is the daily average feedback rating.
	ChartFeedback ChartKey = "feedback"
	// ChartDeployments is daily deployment outcomes.
	ChartDeployments ChartKey = "deployments"
	// ChartUsage is daily page view counts.
	ChartUsage ChartKey = "usage"
)

// ChartPeriod selects the time window of a chart.
type ChartPeriod string

const (
	// Period7d is the trailing seven days.
	Period7d ChartPeriod = "7d"
	// Period30d is the trailing thirty days.
	Period30d ChartPeriod = "30d"
	// Period90d is the trailing ninety days.
	Period90d ChartPeriod = "90d"
	// Period1y is the trailing year.
	Period1y ChartPeriod = "1y"
)

// GetChartRequest describes a request for one chart series.
type GetChartRequest struct {
	UserID UserID
	Chart  ChartKey
	Period ChartPeriod
}

// GetChartResponse reports the chart series.
type GetChartResponse struct {
	Chart ChartSeries
}

// Feedback.

// SubmitFeedbackRequest describes a feedback submission.
type SubmitFeedbackRequest struct {
	UserID   UserID
	Category FeedbackCategory
	Rating   int
	Comment  string
	Page     string
}

// SubmitFeedbackResponse reports the stored record.
type SubmitFeedbackResponse struct {
	Feedback FeedbackRecord
}

// ListFeedbackRequest describes a request to list feedback records.
type ListFeedbackRequest struct {
	UserID    UserID
	Category  FeedbackCategory
	MinRating int
	Offset    int
	Limit     int
}

// ListFeedbackResponse reports a page of feedback records.
type ListFeedbackResponse struct {
	Records []FeedbackRecord
	Total   int
}

// FeedbackStatsRequest describes a request for aggregate feedback stats.
type FeedbackStatsRequest struct {
	UserID UserID
}

// FeedbackStatsResponse reports the aggregates.
type FeedbackStatsResponse struct {
	Stats FeedbackStats
}

// Analytics.

// RecordPageViewRequest describes a page view ingest.
type RecordPageViewRequest struct {
	UserID     UserID
	Page       string
	DurationMS int
}

// RecordPageViewResponse reports completion of the write.
type RecordPageViewResponse struct{}

// Preferences.

// GetPreferencesRequest describes a request for per-user settings.
type GetPreferencesRequest struct {
	UserID UserID
}

// GetPreferencesResponse reports the settings and the user's active
// assessment selection.
type GetPreferencesResponse struct {
	Preferences      Preferences
	ActiveAssessment AssessmentID
}

// UpdatePreferencesRequest describes a settings update.
type UpdatePreferencesRequest struct {
	UserID      UserID
	Preferences Preferences
}

// UpdatePreferencesResponse reports the stored settings.
type UpdatePreferencesResponse struct {
	Preferences Preferences
}
