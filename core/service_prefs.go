package core

import (
	"context"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

func (s *service) GetPreferences(ctx context.Context, req schema.GetPreferencesRequest) (schema.GetPreferencesResponse, error) {
	if ctx == nil {
		return schema.GetPreferencesResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.GetPreferencesResponse{}, err
	}
	prefs, ok, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return schema.GetPreferencesResponse{}, err
	}
	if !ok {
		prefs = schema.Preferences{Theme: s.cfg.DefaultTheme}
	}
	if prefs.Theme == "" {
		prefs.Theme = s.cfg.DefaultTheme
	}
	active, err := s.preferences.ActiveAssessment(ctx, userID)
	if err != nil {
		return schema.GetPreferencesResponse{}, err
	}
	return schema.GetPreferencesResponse{Preferences: prefs, ActiveAssessment: active}, nil
}

func (s *service) UpdatePreferences(ctx context.Context, req schema.UpdatePreferencesRequest) (schema.UpdatePreferencesResponse, error) {
	if ctx == nil {
		return schema.UpdatePreferencesResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.UpdatePreferencesResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	prefs := req.Preferences
	if prefs.Theme == "" {
		prefs.Theme = s.cfg.DefaultTheme
	}
	theme, err := schema.NormalizeTheme(string(prefs.Theme))
	if err != nil {
		return schema.UpdatePreferencesResponse{}, err
	}
	prefs.Theme = theme
	if prefs.DefaultProvider != "" {
		provider, err := schema.NormalizeCloudProvider(string(prefs.DefaultProvider))
		if err != nil {
			return schema.UpdatePreferencesResponse{}, err
		}
		prefs.DefaultProvider = provider
	}
	if err := s.preferences.Set(ctx, userID, prefs); err != nil {
		log.Warn("service preferences update failed", "err", err)
		return schema.UpdatePreferencesResponse{}, err
	}
	log.Debug("service preferences updated", "theme", prefs.Theme)
	return schema.UpdatePreferencesResponse{Preferences: prefs}, nil
}
