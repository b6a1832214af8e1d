package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/schema"
)

// newFallbackEnv is newTestServer with a live mapper, so tests can
// exercise forced mode and the provider-outage path.
func newFallbackEnv(t *testing.T, svc core.Service, forced bool) (*testEnv, *gitops.Mapper) {
	t.Helper()
	dir := t.TempDir()
	store, err := auth.NewStoreWithLogger(filepath.Join(dir, "users.json"), nil, auth.DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new auth store: %v", err)
	}
	mapper, err := gitops.NewMapper(forced, nil)
	if err != nil {
		t.Fatalf("new mapper: %v", err)
	}
	cfg := Config{
		SessionCookie:       "inframind_session",
		SessionTTLHours:     1,
		SessionStorePath:    filepath.Join(dir, "sessions.json"),
		ChallengeTTLMinutes: 5,
		TOTPIssuer:          "Infra Mind",
	}
	return &testEnv{server: NewServer(cfg, svc, store, mapper, nil, nil, nil), store: store}, mapper
}

// Forced mode must answer every mapped read from the catalog without
// touching the domain service. The fake's stubs are left nil, so any
// service call would panic into a 500 and fail the status check.
func TestForcedFallbackServesMappedReads(t *testing.T) {
	env, _ := newFallbackEnv(t, &fakeService{}, true)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	paths := []string{
		"/api/gitops/repositories/any-id",
		"/api/gitops/repositories/any-id/branches",
		"/api/gitops/repositories/any-id/pulls",
		"/api/gitops/templates",
	}
	for _, path := range paths {
		rec := env.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d body %s", path, rec.Code, rec.Body.String())
		}
		var body struct {
			Source schema.ResultSource `json:"source"`
		}
		decodeBody(t, rec, &body)
		if body.Source != schema.SourceFallback {
			t.Errorf("GET %s source = %q, want fallback", path, body.Source)
		}
	}
}

func TestPullsFallBackOnProviderOutage(t *testing.T) {
	svc := &fakeService{
		listPulls: func(schema.ListPullRequestsRequest) (schema.ListPullRequestsResponse, error) {
			return schema.ListPullRequestsResponse{}, fmt.Errorf("%w: 502 from forge", schema.ErrProviderUnavailable)
		},
	}
	env, _ := newFallbackEnv(t, svc, false)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/api/gitops/repositories/r1/pulls", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var body gitops.PullRequestsPayload
	decodeBody(t, rec, &body)
	if body.Source != schema.SourceFallback {
		t.Errorf("source = %q, want fallback", body.Source)
	}
	if len(body.PullRequests) == 0 {
		t.Error("expected canned pull requests")
	}
}

// Domain errors must not trigger fallback; a missing repository is a
// 404 whether or not a mapper is wired.
func TestPullsDomainErrorPassesThrough(t *testing.T) {
	svc := &fakeService{
		listPulls: func(schema.ListPullRequestsRequest) (schema.ListPullRequestsResponse, error) {
			return schema.ListPullRequestsResponse{}, schema.ErrRepositoryNotFound
		},
	}
	env, _ := newFallbackEnv(t, svc, false)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/api/gitops/repositories/r1/pulls", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != "repository_not_found" {
		t.Errorf("error code = %s", code)
	}
}

func TestPlanEstimateLive(t *testing.T) {
	cost := 321.75
	svc := &fakeService{
		getPlan: func(req schema.GetPlanRequest) (schema.GetPlanResponse, error) {
			return schema.GetPlanResponse{Plan: schema.DeploymentPlan{
				ID:             req.PlanID,
				Status:         schema.PlanAwaitingApproval,
				MonthlyCostUSD: &cost,
			}}, nil
		},
	}
	env, _ := newFallbackEnv(t, svc, false)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/api/gitops/plans/p1/estimate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var body gitops.EstimatePayload
	decodeBody(t, rec, &body)
	if body.Source != schema.SourceLive {
		t.Errorf("source = %q, want live", body.Source)
	}
	if body.PlanID != "p1" {
		t.Errorf("plan id = %s", body.PlanID)
	}
	if body.MonthlyCostUSD == nil || *body.MonthlyCostUSD != cost {
		t.Errorf("cost = %v, want %v", body.MonthlyCostUSD, cost)
	}
}

func TestPlanEstimateForcedStampsPlanID(t *testing.T) {
	env, _ := newFallbackEnv(t, &fakeService{}, true)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/api/gitops/plans/p42/estimate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var body gitops.EstimatePayload
	decodeBody(t, rec, &body)
	if body.Source != schema.SourceFallback {
		t.Errorf("source = %q, want fallback", body.Source)
	}
	if body.PlanID != "p42" {
		t.Errorf("plan id = %s, want p42", body.PlanID)
	}
	if body.MonthlyCostUSD == nil {
		t.Error("expected a canned cost")
	}
}

// Flipping forced mode off mid-flight must route the next read to the
// live path again.
func TestFallbackToggleRoutesLive(t *testing.T) {
	svc := &fakeService{
		listTemplates: func(schema.ListTemplatesRequest) (schema.ListTemplatesResponse, error) {
			return schema.ListTemplatesResponse{
				Templates: []schema.IaCTemplate{{ID: "terraform/aws-landing-zone", Name: "AWS landing zone"}},
				Source:    schema.SourceLive,
			}, nil
		},
	}
	env, mapper := newFallbackEnv(t, svc, true)
	env.addUser(t, "viewer@example.com", "pw123456", schema.RoleViewer)
	token := env.login(t, "viewer@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/api/gitops/templates", token, nil)
	var forced gitops.TemplatesPayload
	decodeBody(t, rec, &forced)
	if forced.Source != schema.SourceFallback {
		t.Fatalf("forced source = %q", forced.Source)
	}

	mapper.SetForced(false)
	rec = env.do(t, http.MethodGet, "/api/gitops/templates", token, nil)
	var live gitops.TemplatesPayload
	decodeBody(t, rec, &live)
	if live.Source != schema.SourceLive {
		t.Fatalf("live source = %q", live.Source)
	}
	if len(live.Templates) != 1 {
		t.Errorf("templates = %d, want 1", len(live.Templates))
	}
}
