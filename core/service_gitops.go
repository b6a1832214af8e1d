package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

func (s *service) ConnectRepository(ctx context.Context, req schema.ConnectRepositoryRequest) (schema.ConnectRepositoryResponse, error) {
	if ctx == nil {
		return schema.ConnectRepositoryResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ConnectRepositoryResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	ref, err := schema.ParseCloneURL(req.URL, req.Provider)
	if err != nil {
		return schema.ConnectRepositoryResponse{}, err
	}
	if existing, err := s.repositories.GetByCloneURL(ctx, ref.CloneURL); err == nil {
		return schema.ConnectRepositoryResponse{}, fmt.Errorf("%w: %s", schema.ErrRepositoryExists, existing.CloneURL)
	} else if !errors.Is(err, schema.ErrRepositoryNotFound) {
		return schema.ConnectRepositoryResponse{}, err
	}

	repo := schema.GitRepository{
		ID:            schema.RepositoryID(newID()),
		Provider:      ref.Provider,
		Name:          ref.Name,
		CloneURL:      ref.CloneURL,
		DefaultBranch: "main",
		SyncStatus:    schema.SyncPending,
		ConnectedAt:   s.now().UTC(),
	}
	var publicKey string
	if s.keys != nil {
		publicKey, err = s.keys.Mint(ctx, repo.ID)
		if err != nil {
			log.Warn("service repository key mint failed", "repository", repo.ID, "err", err)
			return schema.ConnectRepositoryResponse{}, err
		}
	}
	if err := s.repositories.Create(ctx, repo); err != nil {
		if s.keys != nil {
			_ = s.keys.Remove(ctx, repo.ID)
		}
		log.Warn("service repository connect failed", "url", ref.CloneURL, "err", err)
		return schema.ConnectRepositoryResponse{}, err
	}
	s.startSync(repo)
	logx.WithRepository(log, repo).Info("service repository connected", "provider", repo.Provider)
	return schema.ConnectRepositoryResponse{Repository: repo, DeployPublicKey: publicKey}, nil
}

func (s *service) ListRepositories(ctx context.Context, req schema.ListRepositoriesRequest) (schema.ListRepositoriesResponse, error) {
	if ctx == nil {
		return schema.ListRepositoriesResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListRepositoriesResponse{}, err
	}
	repos, err := s.repositories.List(ctx)
	if err != nil {
		return schema.ListRepositoriesResponse{}, err
	}
	return schema.ListRepositoriesResponse{Repositories: repos}, nil
}

func (s *service) GetRepository(ctx context.Context, req schema.GetRepositoryRequest) (schema.GetRepositoryResponse, error) {
	if ctx == nil {
		return schema.GetRepositoryResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetRepositoryResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.GetRepositoryResponse{}, err
	}
	return schema.GetRepositoryResponse{Repository: repo}, nil
}

func (s *service) SyncRepository(ctx context.Context, req schema.SyncRepositoryRequest) (schema.SyncRepositoryResponse, error) {
	if ctx == nil {
		return schema.SyncRepositoryResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.SyncRepositoryResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.SyncRepositoryResponse{}, err
	}
	s.mu.Lock()
	_, active := s.activeSyncs[repo.ID]
	if !active {
		s.activeSyncs[repo.ID] = struct{}{}
	}
	s.mu.Unlock()
	if active {
		// A sync is already in flight; report the stored state.
		return schema.SyncRepositoryResponse{Repository: repo}, nil
	}
	repo = s.runSync(ctx, logx.WithUser(ctx, userID), repo)
	return schema.SyncRepositoryResponse{Repository: repo}, nil
}

func (s *service) DisconnectRepository(ctx context.Context, req schema.DisconnectRepositoryRequest) (schema.DisconnectRepositoryResponse, error) {
	if ctx == nil {
		return schema.DisconnectRepositoryResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.DisconnectRepositoryResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.DisconnectRepositoryResponse{}, err
	}
	log := logx.WithRepository(logx.WithUser(ctx, userID), repo)
	if s.keys != nil {
		if err := s.keys.Remove(ctx, repo.ID); err != nil {
			log.Warn("service repository key remove failed", "err", err)
		}
	}
	if s.syncer != nil {
		if err := s.syncer.Drop(repo); err != nil {
			log.Warn("service repository mirror drop failed", "err", err)
		}
	}
	if err := s.repositories.Delete(ctx, repo.ID); err != nil {
		log.Warn("service repository disconnect failed", "err", err)
		return schema.DisconnectRepositoryResponse{}, err
	}
	log.Info("service repository disconnected")
	return schema.DisconnectRepositoryResponse{}, nil
}

func (s *service) RotateDeployKey(ctx context.Context, req schema.RotateDeployKeyRequest) (schema.RotateDeployKeyResponse, error) {
	if ctx == nil {
		return schema.RotateDeployKeyResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.RotateDeployKeyResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.RotateDeployKeyResponse{}, err
	}
	if s.keys == nil {
		return schema.RotateDeployKeyResponse{}, errors.New("deploy keys not configured")
	}
	publicKey, err := s.keys.Mint(ctx, repo.ID)
	if err != nil {
		return schema.RotateDeployKeyResponse{}, err
	}
	logx.WithRepository(logx.WithUser(ctx, userID), repo).Info("service deploy key rotated")
	return schema.RotateDeployKeyResponse{PublicKey: publicKey}, nil
}

func (s *service) GetDeployKey(ctx context.Context, req schema.GetDeployKeyRequest) (schema.GetDeployKeyResponse, error) {
	if ctx == nil {
		return schema.GetDeployKeyResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetDeployKeyResponse{}, err
	}
	if _, err := s.repositories.Get(ctx, req.RepositoryID); err != nil {
		return schema.GetDeployKeyResponse{}, err
	}
	if s.keys == nil {
		return schema.GetDeployKeyResponse{}, errors.New("deploy keys not configured")
	}
	publicKey, err := s.keys.PublicKey(ctx, req.RepositoryID)
	if err != nil {
		return schema.GetDeployKeyResponse{}, err
	}
	return schema.GetDeployKeyResponse{PublicKey: publicKey}, nil
}

func (s *service) ListPullRequests(ctx context.Context, req schema.ListPullRequestsRequest) (schema.ListPullRequestsResponse, error) {
	if ctx == nil {
		return schema.ListPullRequestsResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ListPullRequestsResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.ListPullRequestsResponse{}, err
	}
	if s.provider == nil {
		return schema.ListPullRequestsResponse{}, schema.ErrProviderUnavailable
	}
	prs, err := s.provider.ListPullRequests(ctx, repo)
	if err != nil {
		logx.WithRepository(logx.WithUser(ctx, userID), repo).Warn("service pull request list failed", "err", err)
		return schema.ListPullRequestsResponse{}, fmt.Errorf("%w: %v", schema.ErrProviderUnavailable, err)
	}
	return schema.ListPullRequestsResponse{PullRequests: prs, Source: schema.SourceLive}, nil
}

func (s *service) ListTemplates(ctx context.Context, req schema.ListTemplatesRequest) (schema.ListTemplatesResponse, error) {
	if ctx == nil {
		return schema.ListTemplatesResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListTemplatesResponse{}, err
	}
	if req.Kind != "" {
		switch req.Kind {
		case schema.TemplateTerraform, schema.TemplatePulumi, schema.TemplateCloudFormation:
		default:
			return schema.ListTemplatesResponse{}, fmt.Errorf("%w: unknown template kind %q", schema.ErrInvalidRequest, req.Kind)
		}
	}
	provider := req.Provider
	if req.Provider != "" {
		normalized, err := schema.NormalizeCloudProvider(string(req.Provider))
		if err != nil {
			return schema.ListTemplatesResponse{}, err
		}
		provider = normalized
	}
	var templates []schema.IaCTemplate
	if s.templates != nil {
		templates = s.templates.List(req.Kind, provider)
	}
	return schema.ListTemplatesResponse{Templates: templates, Source: schema.SourceLive}, nil
}

func (s *service) GetTemplate(ctx context.Context, req schema.GetTemplateRequest) (schema.GetTemplateResponse, error) {
	if ctx == nil {
		return schema.GetTemplateResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetTemplateResponse{}, err
	}
	if s.templates == nil {
		return schema.GetTemplateResponse{}, schema.ErrTemplateNotFound
	}
	template, err := s.templates.Get(req.TemplateID)
	if err != nil {
		return schema.GetTemplateResponse{}, err
	}
	return schema.GetTemplateResponse{Template: template}, nil
}

// startSync kicks off the initial mirror sync after connect. Deduplicated
// per repository; the goroutine is owned by Close via the wait group.
func (s *service) startSync(repo schema.GitRepository) {
	if s.syncer == nil {
		return
	}
	s.mu.Lock()
	if _, active := s.activeSyncs[repo.ID]; active {
		s.mu.Unlock()
		return
	}
	s.activeSyncs[repo.ID] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(s.runCtx, logx.WithRepository(s.logger, repo), repo)
	}()
}

// runSync performs one mirror sync and records the outcome. The caller must
// hold the activeSyncs slot; runSync releases it.
func (s *service) runSync(ctx context.Context, log pslog.Logger, repo schema.GitRepository) schema.GitRepository {
	defer func() {
		s.mu.Lock()
		delete(s.activeSyncs, repo.ID)
		s.mu.Unlock()
	}()
	if s.syncer == nil {
		return repo
	}
	repo.SyncStatus = schema.SyncInProgress
	if err := s.repositories.Update(ctx, repo); err != nil {
		log.Warn("service repository sync mark failed", "repository", repo.ID, "err", err)
		return repo
	}
	syncErr := s.syncer.Sync(ctx, repo)
	now := s.now().UTC()
	repo.LastSyncedAt = &now
	if syncErr != nil {
		repo.SyncStatus = schema.SyncError
		repo.LastSyncError = syncErr.Error()
		log.Warn("service repository sync failed", "repository", repo.ID, "err", syncErr)
	} else {
		repo.SyncStatus = schema.SyncOK
		repo.LastSyncError = ""
		log.Info("service repository sync done", "repository", repo.ID)
	}
	if err := s.repositories.Update(ctx, repo); err != nil {
		log.Warn("service repository sync record failed", "repository", repo.ID, "err", err)
	}
	return repo
}
