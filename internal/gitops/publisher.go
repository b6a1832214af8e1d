package gitops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

// Publisher pushes a rendered change set through the provider API and opens
// the pull request. Everything goes over REST so no local checkout or push
// credential is needed.
type Publisher struct {
	client *Client
	log    pslog.Logger
}

var _ core.PlanPublisher = (*Publisher)(nil)

// NewPublisher returns a publisher backed by the provider client.
func NewPublisher(client *Client, logger pslog.Logger) *Publisher {
	return &Publisher{client: client, log: logger}
}

// Publish creates the branch off the default branch, commits the files, and
// opens the pull request. Safe to retry; an existing branch is reused and
// files are updated in place.
func (p *Publisher) Publish(ctx context.Context, req core.PublishRequest) (schema.PullRequest, error) {
	if req.Branch == "" {
		return schema.PullRequest{}, errors.New("branch is required")
	}
	if len(req.Files) == 0 {
		return schema.PullRequest{}, errors.New("no files to publish")
	}
	base := req.Repo.DefaultBranch
	if base == "" {
		base = "main"
	}
	if err := p.client.CreateBranch(ctx, req.Repo, req.Branch, base); err != nil {
		return schema.PullRequest{}, fmt.Errorf("create branch %s: %w", req.Branch, err)
	}
	if err := p.client.PushFiles(ctx, req.Repo, req.Branch, req.Title, req.Files); err != nil {
		return schema.PullRequest{}, fmt.Errorf("push change set: %w", err)
	}
	pr, err := p.client.CreatePullRequest(ctx, req.Repo, core.CreatePullRequestInput{
		Title:  req.Title,
		Body:   req.Body,
		Branch: req.Branch,
		Base:   base,
	})
	if err != nil {
		return schema.PullRequest{}, fmt.Errorf("open pull request: %w", err)
	}
	if p.log != nil {
		p.log.Info("gitops change set published", "repo", req.Repo.Name, "branch", req.Branch, "pull_request", pr.Number)
	}
	return pr, nil
}

// FallbackPublisher stands in when no provider token is configured or
// fallback mode is forced. It answers with the catalog's canned pull
// request stamped with the real repository and branch, so approved
// plans keep moving through the apply stage in demo mode.
type FallbackPublisher struct {
	now func() time.Time
	log pslog.Logger
}

var _ core.PlanPublisher = (*FallbackPublisher)(nil)

// NewFallbackPublisher returns the demo publisher.
func NewFallbackPublisher(logger pslog.Logger) *FallbackPublisher {
	return &FallbackPublisher{now: time.Now, log: logger}
}

// Publish synthesizes the pull request without touching any provider.
func (p *FallbackPublisher) Publish(_ context.Context, req core.PublishRequest) (schema.PullRequest, error) {
	payload, ok := Fallback(EndpointPullsCreate).(*PullRequestPayload)
	if !ok {
		return schema.PullRequest{}, errors.New("no pulls.create fallback payload")
	}
	pr := payload.PullRequest
	pr.RepositoryID = req.Repo.ID
	pr.Branch = req.Branch
	if req.Title != "" {
		pr.Title = req.Title
	}
	pr.CreatedAt = p.now().UTC()
	if p.log != nil {
		p.log.Info("gitops fallback pull request", "repo", req.Repo.Name, "branch", req.Branch, "pull_request", pr.Number)
	}
	return pr, nil
}
