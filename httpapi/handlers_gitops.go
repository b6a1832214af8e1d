package httpapi

import (
	"context"
	"net/http"

	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/schema"
)

type connectRepositoryRequest struct {
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

func (s *Server) handleConnectRepository(w http.ResponseWriter, r *http.Request, p principal) {
	var body connectRepositoryRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.ConnectRepository(r.Context(), schema.ConnectRepositoryRequest{
		UserID:   p.UserID,
		URL:      body.URL,
		Provider: schema.GitProvider(body.Provider),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"repository":        resp.Repository,
		"deploy_public_key": resp.DeployPublicKey,
	})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ListRepositories(r.Context(), schema.ListRepositoriesRequest{UserID: p.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": resp.Repositories})
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request, p principal) {
	if s.mapper != nil && s.mapper.Forced() {
		writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointReposGet))
		return
	}
	resp, err := s.service.GetRepository(r.Context(), schema.GetRepositoryRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gitops.RepositoryPayload{
		Repository: resp.Repository,
		Source:     schema.SourceLive,
	})
}

func (s *Server) handleSyncRepository(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.SyncRepository(r.Context(), schema.SyncRepositoryRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repository": resp.Repository})
}

func (s *Server) handleDisconnectRepository(w http.ResponseWriter, r *http.Request, p principal) {
	_, err := s.service.DisconnectRepository(r.Context(), schema.DisconnectRepositoryRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetDeployKey(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetDeployKey(r.Context(), schema.GetDeployKeyRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"public_key": resp.PublicKey})
}

func (s *Server) handleRotateDeployKey(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.RotateDeployKey(r.Context(), schema.RotateDeployKeyRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"public_key": resp.PublicKey})
}

// handleListBranches is the one GitOps read served from this layer
// rather than the domain service, because branch listings never touch
// stored state. Forced fallback short-circuits before the repository
// lookup so demo mode works with an empty store; the same rule applies
// to the other mapped reads below.
func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request, p principal) {
	if s.mapper != nil && s.mapper.Forced() {
		writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointReposBranches))
		return
	}
	repoResp, err := s.service.GetRepository(r.Context(), schema.GetRepositoryRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	branches, err := s.liveBranches(r.Context(), repoResp.Repository)
	if err != nil {
		if s.mapper != nil && s.mapper.ShouldFallback(err) {
			writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointReposBranches))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gitops.BranchesPayload{
		RepositoryID: repoResp.Repository.ID,
		Branches:     branches,
		Source:       schema.SourceLive,
	})
}

func (s *Server) liveBranches(ctx context.Context, repo schema.GitRepository) ([]gitops.Branch, error) {
	if s.provider == nil {
		return nil, schema.ErrProviderUnavailable
	}
	return s.provider.ListBranches(ctx, repo)
}

func (s *Server) handleListPullRequests(w http.ResponseWriter, r *http.Request, p principal) {
	if s.mapper != nil && s.mapper.Forced() {
		writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointPullsList))
		return
	}
	resp, err := s.service.ListPullRequests(r.Context(), schema.ListPullRequestsRequest{
		UserID:       p.UserID,
		RepositoryID: schema.RepositoryID(r.PathValue("id")),
	})
	if err != nil {
		if s.mapper != nil && s.mapper.ShouldFallback(err) {
			writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointPullsList))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gitops.PullRequestsPayload{
		PullRequests: resp.PullRequests,
		Source:       resp.Source,
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request, p principal) {
	if s.mapper != nil && s.mapper.Forced() {
		writeJSON(w, http.StatusOK, s.mapper.Payload(gitops.EndpointTemplatesCatalog))
		return
	}
	resp, err := s.service.ListTemplates(r.Context(), schema.ListTemplatesRequest{
		UserID:   p.UserID,
		Kind:     schema.TemplateKind(r.URL.Query().Get("kind")),
		Provider: schema.CloudProvider(r.URL.Query().Get("provider")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gitops.TemplatesPayload{
		Templates: resp.Templates,
		Source:    resp.Source,
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetTemplate(r.Context(), schema.GetTemplateRequest{
		UserID:     p.UserID,
		TemplateID: schema.TemplateID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template": resp.Template})
}

type createPlanRequest struct {
	AssessmentID string            `json:"assessment_id"`
	RepositoryID string            `json:"repository_id"`
	TemplateID   string            `json:"template_id"`
	Parameters   map[string]string `json:"parameters"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request, p principal) {
	var body createPlanRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.CreatePlan(r.Context(), schema.CreatePlanRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(body.AssessmentID),
		RepositoryID: schema.RepositoryID(body.RepositoryID),
		TemplateID:   schema.TemplateID(body.TemplateID),
		Parameters:   body.Parameters,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"plan": resp.Plan})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ListPlans(r.Context(), schema.ListPlansRequest{
		UserID: p.UserID,
		Status: schema.PlanStatus(r.URL.Query().Get("status")),
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": resp.Plans,
		"total": resp.Total,
	})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetPlan(r.Context(), schema.GetPlanRequest{
		UserID: p.UserID,
		PlanID: schema.PlanID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": resp.Plan})
}

// handleGetPlanEstimate serves the cost panel. The estimate is written
// by the plan stage, so a live plan that has not finished planning yet
// answers with a null cost rather than the canned figure.
func (s *Server) handleGetPlanEstimate(w http.ResponseWriter, r *http.Request, p principal) {
	planID := schema.PlanID(r.PathValue("id"))
	if s.mapper != nil && s.mapper.Forced() {
		payload, ok := s.mapper.Payload(gitops.EndpointPlansEstimate).(*gitops.EstimatePayload)
		if ok {
			payload.PlanID = planID
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	resp, err := s.service.GetPlan(r.Context(), schema.GetPlanRequest{
		UserID: p.UserID,
		PlanID: planID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gitops.EstimatePayload{
		PlanID:         resp.Plan.ID,
		MonthlyCostUSD: resp.Plan.MonthlyCostUSD,
		Source:         schema.SourceLive,
	})
}

func (s *Server) handleApprovePlan(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ApprovePlan(r.Context(), schema.ApprovePlanRequest{
		UserID: p.UserID,
		PlanID: schema.PlanID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": resp.Plan})
}
