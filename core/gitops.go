package core

import (
	"context"

	"github.com/inframind/inframind/schema"
)

// ProviderClient talks to the git hosting provider's REST API.
type ProviderClient interface {
	ListPullRequests(ctx context.Context, repo schema.GitRepository) ([]schema.PullRequest, error)
	CreatePullRequest(ctx context.Context, repo schema.GitRepository, input CreatePullRequestInput) (schema.PullRequest, error)
}

// CreatePullRequestInput describes a pull request to open.
type CreatePullRequestInput struct {
	Title  string
	Body   string
	Branch string
	Base   string
}

// DeployKeys mints and serves per-repository deploy keys. Private keys
// never leave the key store.
type DeployKeys interface {
	Mint(ctx context.Context, id schema.RepositoryID) (publicKey string, err error)
	PublicKey(ctx context.Context, id schema.RepositoryID) (string, error)
	Remove(ctx context.Context, id schema.RepositoryID) error
}

// RepoSyncer refreshes the local mirror of a connected repository.
type RepoSyncer interface {
	Sync(ctx context.Context, repo schema.GitRepository) error
	Drop(repo schema.GitRepository) error
}

// TemplateCatalog serves the built-in IaC template registry.
type TemplateCatalog interface {
	List(kind schema.TemplateKind, provider schema.CloudProvider) []schema.IaCTemplate
	Get(id schema.TemplateID) (schema.IaCTemplate, error)
	// Render materializes the template files with parameters applied.
	// Missing required parameters fail with schema.ErrMissingParameter.
	Render(id schema.TemplateID, params map[string]string) (map[string]string, error)
}

// PublishRequest describes a rendered change set to push and open a
// pull request for.
type PublishRequest struct {
	Repo   schema.GitRepository
	Branch string
	Title  string
	Body   string
	Files  map[string]string
}

// PlanPublisher pushes a plan branch and opens the pull request.
type PlanPublisher interface {
	Publish(ctx context.Context, req PublishRequest) (schema.PullRequest, error)
}

// RunRequest describes one runner invocation for a deployment plan.
type RunRequest struct {
	Plan   schema.DeploymentPlan
	Files  map[string]string
	OnLine func(line string)
}

// RunResult summarizes a finished runner invocation.
type RunResult struct {
	MonthlyCostUSD float64
	Summary        string
}

// PlanRunner executes the plan and apply stages of a deployment plan.
type PlanRunner interface {
	Plan(ctx context.Context, req RunRequest) (RunResult, error)
	Apply(ctx context.Context, req RunRequest) (RunResult, error)
}

// ReportRenderer renders a report to PDF.
type ReportRenderer interface {
	RenderPDF(ctx context.Context, a schema.Assessment, r schema.Report) ([]byte, error)
}
