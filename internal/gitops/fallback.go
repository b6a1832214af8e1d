package gitops

import (
	"time"

	"github.com/inframind/inframind/schema"
)

// Response payloads shared by the live handlers and the fallback catalog,
// so both modes serve the same shape.

// RepositoryPayload is the repos.get response body.
type RepositoryPayload struct {
	Repository schema.GitRepository `json:"repository"`
	Source     schema.ResultSource  `json:"source"`
}

// BranchesPayload is the repos.branches response body.
type BranchesPayload struct {
	RepositoryID schema.RepositoryID `json:"repository_id"`
	Branches     []Branch            `json:"branches"`
	Source       schema.ResultSource `json:"source"`
}

// PullRequestPayload is the pulls.create response body.
type PullRequestPayload struct {
	PullRequest schema.PullRequest  `json:"pull_request"`
	Source      schema.ResultSource `json:"source"`
}

// PullRequestsPayload is the pulls.list response body.
type PullRequestsPayload struct {
	PullRequests []schema.PullRequest `json:"pull_requests"`
	Source       schema.ResultSource  `json:"source"`
}

// TemplatesPayload is the templates.catalog response body.
type TemplatesPayload struct {
	Templates []schema.IaCTemplate `json:"templates"`
	Source    schema.ResultSource  `json:"source"`
}

// EstimatePayload is the plans.estimate response body.
type EstimatePayload struct {
	PlanID         schema.PlanID       `json:"plan_id,omitempty"`
	MonthlyCostUSD *float64            `json:"monthly_cost_usd"`
	Summary        string              `json:"summary,omitempty"`
	Source         schema.ResultSource `json:"source"`
}

// Fallback returns the static payload for a mapped endpoint, or nil for an
// unknown endpoint. Every call builds a fresh value so callers can't alter
// the catalog.
func Fallback(ep Endpoint) any {
	demoTime := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	switch ep {
	case EndpointReposGet:
		return &RepositoryPayload{
			Repository: schema.GitRepository{
				ID:            "demo-repo",
				Provider:      schema.GitProviderGitHub,
				Name:          "acme/infra-live",
				CloneURL:      "https://github.com/acme/infra-live.git",
				DefaultBranch: "main",
				SyncStatus:    schema.SyncOK,
				LastSyncedAt:  &demoTime,
				ConnectedAt:   demoTime.Add(-30 * 24 * time.Hour),
			},
			Source: schema.SourceFallback,
		}
	case EndpointReposBranches:
		return &BranchesPayload{
			RepositoryID: "demo-repo",
			Branches: []Branch{
				{Name: "main", SHA: "9f2c5e1a8b3d47c6905f12ab34cd56ef78901234", Default: true},
				{Name: "inframind/plan-demo1234", SHA: "4a1b2c3d4e5f60718293a4b5c6d7e8f901234567"},
				{Name: "renovate/terraform-aws", SHA: "0d9c8b7a6f5e4d3c2b1a09f8e7d6c5b4a3928170"},
			},
			Source: schema.SourceFallback,
		}
	case EndpointPullsCreate:
		return &PullRequestPayload{
			PullRequest: schema.PullRequest{
				ID:           "demo-pr-42",
				RepositoryID: "demo-repo",
				Number:       42,
				Title:        "Deploy AWS landing zone to acme/infra-live",
				Branch:       "inframind/plan-demo1234",
				Status:       schema.PullRequestOpen,
				URL:          "https://github.com/acme/infra-live/pull/42",
				CreatedAt:    demoTime,
			},
			Source: schema.SourceFallback,
		}
	case EndpointPullsList:
		return &PullRequestsPayload{
			PullRequests: []schema.PullRequest{
				{
					ID:           "demo-pr-42",
					RepositoryID: "demo-repo",
					Number:       42,
					Title:        "Deploy AWS landing zone to acme/infra-live",
					Branch:       "inframind/plan-demo1234",
					Status:       schema.PullRequestOpen,
					URL:          "https://github.com/acme/infra-live/pull/42",
					CreatedAt:    demoTime,
				},
				{
					ID:           "demo-pr-41",
					RepositoryID: "demo-repo",
					Number:       41,
					Title:        "Baseline VPC for staging",
					Branch:       "inframind/plan-demo0987",
					Status:       schema.PullRequestMerged,
					URL:          "https://github.com/acme/infra-live/pull/41",
					CreatedAt:    demoTime.Add(-6 * 24 * time.Hour),
				},
			},
			Source: schema.SourceFallback,
		}
	case EndpointTemplatesCatalog:
		return &TemplatesPayload{
			Templates: []schema.IaCTemplate{
				{
					ID:          "terraform/aws-landing-zone",
					Name:        "AWS landing zone",
					Kind:        schema.TemplateTerraform,
					Provider:    schema.CloudAWS,
					Description: "Multi-account AWS foundation with centralized logging, CloudTrail, and baseline guardrails.",
					Version:     "1.3.0",
					Parameters: []schema.TemplateParameter{
						{Name: "org_name", Type: "string", Required: true},
						{Name: "region", Type: "string", Default: "us-east-1"},
					},
				},
				{
					ID:          "cloudformation/aws-vpc",
					Name:        "AWS VPC",
					Kind:        schema.TemplateCloudFormation,
					Provider:    schema.CloudAWS,
					Description: "CloudFormation stack for a two-AZ VPC with public and private subnets.",
					Version:     "1.0.0",
					Parameters: []schema.TemplateParameter{
						{Name: "stack_name", Type: "string", Required: true},
						{Name: "cidr_block", Type: "string", Default: "10.0.0.0/16"},
					},
				},
			},
			Source: schema.SourceFallback,
		}
	case EndpointPlansEstimate:
		cost := 1284.50
		return &EstimatePayload{
			MonthlyCostUSD: &cost,
			Summary:        "12 resources to add, 0 to change, 0 to destroy.",
			Source:         schema.SourceFallback,
		}
	default:
		return nil
	}
}
