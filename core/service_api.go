package core

import (
	"context"

	"github.com/inframind/inframind/schema"
)

// Service is the core application API. Every operation validates its
// request, touches storage, and emits events for the dashboard stream.
type Service interface {
	// Assessments.
	CreateAssessment(ctx context.Context, req schema.CreateAssessmentRequest) (schema.CreateAssessmentResponse, error)
	GetAssessment(ctx context.Context, req schema.GetAssessmentRequest) (schema.GetAssessmentResponse, error)
	ListAssessments(ctx context.Context, req schema.ListAssessmentsRequest) (schema.ListAssessmentsResponse, error)
	SaveAssessmentDraft(ctx context.Context, req schema.SaveAssessmentDraftRequest) (schema.SaveAssessmentDraftResponse, error)
	SubmitAssessment(ctx context.Context, req schema.SubmitAssessmentRequest) (schema.SubmitAssessmentResponse, error)
	CompleteAssessment(ctx context.Context, req schema.CompleteAssessmentRequest) (schema.CompleteAssessmentResponse, error)
	ArchiveAssessment(ctx context.Context, req schema.ArchiveAssessmentRequest) (schema.ArchiveAssessmentResponse, error)
	SelectAssessment(ctx context.Context, req schema.SelectAssessmentRequest) (schema.SelectAssessmentResponse, error)
	GetReport(ctx context.Context, req schema.GetReportRequest) (schema.GetReportResponse, error)
	ExportReportPDF(ctx context.Context, req schema.ExportReportPDFRequest) (schema.ExportReportPDFResponse, error)

	// Experiments.
	CreateExperiment(ctx context.Context, req schema.CreateExperimentRequest) (schema.CreateExperimentResponse, error)
	GetExperiment(ctx context.Context, req schema.GetExperimentRequest) (schema.GetExperimentResponse, error)
	ListExperiments(ctx context.Context, req schema.ListExperimentsRequest) (schema.ListExperimentsResponse, error)
	DeleteExperiment(ctx context.Context, req schema.DeleteExperimentRequest) (schema.DeleteExperimentResponse, error)
	StartExperiment(ctx context.Context, req schema.StartExperimentRequest) (schema.StartExperimentResponse, error)
	PauseExperiment(ctx context.Context, req schema.PauseExperimentRequest) (schema.PauseExperimentResponse, error)
	EndExperiment(ctx context.Context, req schema.EndExperimentRequest) (schema.EndExperimentResponse, error)
	AssignVariant(ctx context.Context, req schema.AssignVariantRequest) (schema.AssignVariantResponse, error)
	RecordExperimentEvent(ctx context.Context, req schema.RecordExperimentEventRequest) (schema.RecordExperimentEventResponse, error)
	ExperimentResults(ctx context.Context, req schema.ExperimentResultsRequest) (schema.ExperimentResultsResponse, error)

	// GitOps repositories and templates.
	ConnectRepository(ctx context.Context, req schema.ConnectRepositoryRequest) (schema.ConnectRepositoryResponse, error)
	ListRepositories(ctx context.Context, req schema.ListRepositoriesRequest) (schema.ListRepositoriesResponse, error)
	GetRepository(ctx context.Context, req schema.GetRepositoryRequest) (schema.GetRepositoryResponse, error)
	SyncRepository(ctx context.Context, req schema.SyncRepositoryRequest) (schema.SyncRepositoryResponse, error)
	DisconnectRepository(ctx context.Context, req schema.DisconnectRepositoryRequest) (schema.DisconnectRepositoryResponse, error)
	RotateDeployKey(ctx context.Context, req schema.RotateDeployKeyRequest) (schema.RotateDeployKeyResponse, error)
	GetDeployKey(ctx context.Context, req schema.GetDeployKeyRequest) (schema.GetDeployKeyResponse, error)
	ListPullRequests(ctx context.Context, req schema.ListPullRequestsRequest) (schema.ListPullRequestsResponse, error)
	ListTemplates(ctx context.Context, req schema.ListTemplatesRequest) (schema.ListTemplatesResponse, error)
	GetTemplate(ctx context.Context, req schema.GetTemplateRequest) (schema.GetTemplateResponse, error)

	// Deployment plans.
	CreatePlan(ctx context.Context, req schema.CreatePlanRequest) (schema.CreatePlanResponse, error)
	GetPlan(ctx context.Context, req schema.GetPlanRequest) (schema.GetPlanResponse, error)
	ListPlans(ctx context.Context, req schema.ListPlansRequest) (schema.ListPlansResponse, error)
	ApprovePlan(ctx context.Context, req schema.ApprovePlanRequest) (schema.ApprovePlanResponse, error)

	// Dashboard.
	GetDashboard(ctx context.Context, req schema.GetDashboardRequest) (schema.GetDashboardResponse, error)
	GetChart(ctx context.Context, req schema.GetChartRequest) (schema.GetChartResponse, error)

	// Feedback and analytics.
	SubmitFeedback(ctx context.Context, req schema.SubmitFeedbackRequest) (schema.SubmitFeedbackResponse, error)
	ListFeedback(ctx context.Context, req schema.ListFeedbackRequest) (schema.ListFeedbackResponse, error)
	FeedbackStats(ctx context.Context, req schema.FeedbackStatsRequest) (schema.FeedbackStatsResponse, error)
	RecordPageView(ctx context.Context, req schema.RecordPageViewRequest) (schema.RecordPageViewResponse, error)

	// Preferences.
	GetPreferences(ctx context.Context, req schema.GetPreferencesRequest) (schema.GetPreferencesResponse, error)
	UpdatePreferences(ctx context.Context, req schema.UpdatePreferencesRequest) (schema.UpdatePreferencesResponse, error)

	// Close releases background workers and waits for running plans to
	// detach.
	Close() error
}
