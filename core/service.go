package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg          schema.ServiceConfig
	assessments  AssessmentStore
	experiments  ExperimentStore
	repositories RepositoryStore
	plans        PlanStore
	feedback     FeedbackStore
	preferences  PreferenceStore
	stats        StatsStore
	provider     ProviderClient
	keys         DeployKeys
	syncer       RepoSyncer
	templates    TemplateCatalog
	publisher    PlanPublisher
	runner       PlanRunner
	reporter     ReportRenderer
	sink         EventSink
	logger       pslog.Logger
	now          func() time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	mu          sync.Mutex
	activeRuns  map[schema.PlanID]*planRun
	activeSyncs map[schema.RepositoryID]struct{}
}

// planRun tracks one in-flight runner stage so reads can serve the live
// log tail and Close can cancel it.
type planRun struct {
	cancel context.CancelFunc
	buf    *logBuffer
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	switch {
	case deps.Assessments == nil:
		return nil, errors.New("assessment store is required")
	case deps.Experiments == nil:
		return nil, errors.New("experiment store is required")
	case deps.Repositories == nil:
		return nil, errors.New("repository store is required")
	case deps.Plans == nil:
		return nil, errors.New("plan store is required")
	case deps.Feedback == nil:
		return nil, errors.New("feedback store is required")
	case deps.Preferences == nil:
		return nil, errors.New("preference store is required")
	case deps.Stats == nil:
		return nil, errors.New("stats store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &service{
		cfg:          cfg,
		assessments:  deps.Assessments,
		experiments:  deps.Experiments,
		repositories: deps.Repositories,
		plans:        deps.Plans,
		feedback:     deps.Feedback,
		preferences:  deps.Preferences,
		stats:        deps.Stats,
		provider:     deps.Provider,
		keys:         deps.Keys,
		syncer:       deps.Syncer,
		templates:    deps.Templates,
		publisher:    deps.Publisher,
		runner:       deps.Runner,
		reporter:     deps.Reporter,
		sink:         deps.EventSink,
		logger:       logger,
		now:          time.Now,
		runCtx:       runCtx,
		runCancel:    runCancel,
		activeRuns:   make(map[schema.PlanID]*planRun),
		activeSyncs:  make(map[schema.RepositoryID]struct{}),
	}, nil
}

// Close stops background plan runs and waits for them to detach.
func (s *service) Close() error {
	s.runCancel()
	s.wg.Wait()
	return nil
}

func normalizeUserID(userID schema.UserID) (schema.UserID, error) {
	if err := schema.ValidateUserID(userID); err != nil {
		return "", err
	}
	return userID, nil
}

// clampPage applies configured pagination bounds.
func (s *service) clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}
	if limit > s.cfg.PageSizeMax {
		limit = s.cfg.PageSizeMax
	}
	return offset, limit
}

func (s *service) emitPlan(event schema.PlanEvent) {
	if s.sink != nil {
		s.sink.OnPlanEvent(event)
	}
}

func (s *service) emitAssessment(event schema.AssessmentEvent) {
	if s.sink != nil {
		s.sink.OnAssessmentEvent(event)
	}
}

func (s *service) emitFeedback(event schema.FeedbackEvent) {
	if s.sink != nil {
		s.sink.OnFeedbackEvent(event)
	}
}

func (s *service) emitKPIs(ctx context.Context) {
	if s.sink == nil {
		return
	}
	kpis, err := s.computeKPIs(ctx)
	if err != nil {
		s.logger.Debug("service kpi recompute skipped", "err", err)
		return
	}
	s.sink.OnKPIEvent(schema.KPIEvent{KPIs: kpis})
}

var errMissingContext = errors.New("missing context")
