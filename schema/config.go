package schema

import (
	"errors"
	"os"
	"path/filepath"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// StateDir holds file-backed state: deploy keys, plan workspaces.
	StateDir string
	// KPIWindowDays is the trailing window KPI cards are computed over.
	KPIWindowDays int
	// AssessmentSteps is the number of wizard steps per assessment.
	AssessmentSteps int
	// DraftMaxBytes caps one autosaved step payload.
	DraftMaxBytes int
	// CommentMaxLen caps feedback comments.
	CommentMaxLen int
	// PlanLogMaxLines caps the retained plan log tail.
	PlanLogMaxLines int
	// PageSizeDefault and PageSizeMax bound list pagination.
	PageSizeDefault int
	PageSizeMax     int
	// PlanBranchPrefix prefixes branches opened for deployment plans.
	PlanBranchPrefix string
	// DefaultTheme applies to users without stored preferences.
	DefaultTheme Theme
}

// DefaultPlanLogMaxLines is the default plan log tail limit.
const DefaultPlanLogMaxLines = 500

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".inframind", "state")
	}
	if cfg.KPIWindowDays <= 0 {
		cfg.KPIWindowDays = 30
	}
	if cfg.AssessmentSteps <= 0 {
		cfg.AssessmentSteps = 8
	}
	if cfg.DraftMaxBytes <= 0 {
		cfg.DraftMaxBytes = 64 * 1024
	}
	if cfg.CommentMaxLen <= 0 {
		cfg.CommentMaxLen = 2000
	}
	if cfg.PlanLogMaxLines <= 0 {
		cfg.PlanLogMaxLines = DefaultPlanLogMaxLines
	}
	if cfg.PageSizeDefault <= 0 {
		cfg.PageSizeDefault = 20
	}
	if cfg.PageSizeMax <= 0 {
		cfg.PageSizeMax = 100
	}
	if cfg.PlanBranchPrefix == "" {
		cfg.PlanBranchPrefix = "inframind/plan-"
	}
	if cfg.DefaultTheme == "" {
		cfg.DefaultTheme = ThemeSystem
	}
	if cfg.PageSizeDefault > cfg.PageSizeMax {
		return ServiceConfig{}, errors.New("default page size must not exceed max page size")
	}
	return cfg, nil
}
