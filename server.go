// Package inframind composes the Infra Mind services: the REST API the
// dashboard consumes, the SSH ops console, and behind both the domain
// service with its Postgres stores, GitOps pipeline, plan runner, and
// report renderer.
package inframind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/httpapi"
	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/command"
	"github.com/inframind/inframind/internal/deploykeys"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/internal/report"
	"github.com/inframind/inframind/internal/runner"
	"github.com/inframind/inframind/internal/storage"
	"github.com/inframind/inframind/schema"
	"github.com/inframind/inframind/sshserver"
)

// Server composes the enabled listeners over one domain service.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the REST API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH ops console.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New builds the full service graph from configuration: account store,
// Postgres stores, GitOps provider client with its fallback mapper,
// deploy keys, plan runner, report renderer, and the domain service
// they feed. ctx bounds the database connect and the containerd dial.
func New(ctx context.Context, cfg appconfig.Config, logger pslog.Logger, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}

	authStore, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, cfg.Auth.SeedUsers, lockoutPolicy(cfg.Auth), logger)
	if err != nil {
		return nil, fmt.Errorf("auth store: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tokens, err := gitops.NewTokenStore(cfg.GitOps.TokenStorePath, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("gitops token store: %w", err)
	}
	provider := gitops.NewClient(cfg.GitOps.GitHubAPI, cfg.GitOps.GitLabAPI, tokens, logger)
	mapper, err := gitops.NewMapper(cfg.GitOps.ForceFallback, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	catalog, err := gitops.NewCatalog()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("template catalog: %w", err)
	}
	keys, err := deploykeys.NewStore(cfg.GitOps.KeyStorePath, cfg.GitOps.KeyDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("deploy key store: %w", err)
	}
	syncer := gitops.NewMirrorSyncer(cfg.GitOps.MirrorDir,
		time.Duration(cfg.GitOps.SyncTimeoutMinutes)*time.Minute, logger)

	// Forced fallback swaps the publisher at boot rather than per call:
	// flipping publishers under in-flight plan stages would hand one
	// plan a live branch and the next a canned one.
	var publisher core.PlanPublisher
	if cfg.GitOps.ForceFallback {
		publisher = gitops.NewFallbackPublisher(logger)
	} else {
		publisher = gitops.NewPublisher(provider, logger)
	}

	planRunner, err := runner.New(ctx, runnerConfig(cfg), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("plan runner: %w", err)
	}
	renderer, err := report.NewRenderer(cfg.Report.ChromeURL, logger)
	if err != nil {
		closeRunner(planRunner, logger)
		db.Close()
		return nil, fmt.Errorf("report renderer: %w", err)
	}

	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(0, logger)
	}
	sinks := make([]core.EventSink, 0, 2)
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if !cfg.Logging.DisableAuditTrails {
		sinks = append(sinks, auditSink{log: logger})
	}

	service, err := core.NewService(serviceConfig(cfg), core.ServiceDeps{
		Assessments:  storage.NewAssessmentStore(db),
		Experiments:  storage.NewExperimentStore(db),
		Repositories: storage.NewRepositoryStore(db),
		Plans:        storage.NewPlanStore(db),
		Feedback:     storage.NewFeedbackStore(db),
		Preferences:  storage.NewPreferenceStore(db),
		Stats:        storage.NewStatsStore(db),
		Provider:     provider,
		Keys:         keys,
		Syncer:       syncer,
		Templates:    catalog,
		Publisher:    publisher,
		Runner:       planRunner,
		Reporter:     renderer,
		EventSink:    composeEventSinks(sinks),
		Logger:       logger,
	})
	if err != nil {
		closeRunner(planRunner, logger)
		db.Close()
		return nil, err
	}

	cmdHandler := command.NewHandler(service, command.HandlerConfig{
		Mapper:              mapper,
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	})

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(httpConfig(cfg), service, authStore, mapper, provider, hub, logger)
	}
	var sshSrv *sshserver.Server
	if options.enableSSH {
		sshSrv = &sshserver.Server{
			Addr:        cfg.SSH.Addr,
			HostKeyPath: cfg.SSH.HostKeyPath,
			Handler:     cmdHandler,
			AuthStore:   authStore,
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		httpSrv: httpSrv,
		sshSrv:  sshSrv,
		service: service,
		runner:  planRunner,
		db:      db,
		logger:  logger,
	}, nil
}

type compositeServer struct {
	cfg     appconfig.Config
	options serverOptions
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	service core.Service
	runner  core.PlanRunner
	db      *storage.DB
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	stopped bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	if s.logger == nil {
		s.logger = pslog.Ctx(s.ctx)
	}
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := s.httpSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop cancels the listeners, drains in-flight plan runs through the
// service, and releases the runner and database. Safe to call again
// after the first stop.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	stopped := s.stopped
	s.stopped = true
	log := s.logger
	s.mu.Unlock()
	if !started || stopped {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if s.service != nil {
		if err := s.service.Close(); err != nil {
			log.Warn("server service close failed", "err", err)
		}
	}
	closeRunner(s.runner, log)
	if s.db != nil {
		s.db.Close()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

// closeRunner releases the container runtime connection when the
// configured runner holds one. The local runner has nothing to close.
func closeRunner(r core.PlanRunner, log pslog.Logger) {
	closer, ok := r.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		if log != nil {
			log.Warn("server runner close failed", "err", err)
		}
		return
	}
	if log != nil {
		log.Info("server runner close ok")
	}
}

func lockoutPolicy(cfg appconfig.AuthConfig) auth.Policy {
	policy := auth.DefaultPolicy()
	if cfg.LockoutThreshold > 0 {
		policy.LockoutThreshold = cfg.LockoutThreshold
	}
	if cfg.LockoutMinutes > 0 {
		policy.LockoutWindow = time.Duration(cfg.LockoutMinutes) * time.Minute
	}
	return policy
}

func serviceConfig(cfg appconfig.Config) schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir:        cfg.StateDir,
		KPIWindowDays:   cfg.Service.KPIWindowDays,
		AssessmentSteps: cfg.Service.AssessmentSteps,
		CommentMaxLen:   cfg.Service.CommentMaxLen,
		PlanLogMaxLines: cfg.Service.PlanLogMaxLines,
		PageSizeDefault: cfg.Service.PageSizeDefault,
		PageSizeMax:     cfg.Service.PageSizeMax,
	}
}

func httpConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:                cfg.HTTP.Addr,
		SessionCookie:       cfg.HTTP.SessionCookie,
		SessionTTLHours:     cfg.HTTP.SessionTTLHours,
		SessionStorePath:    cfg.HTTP.SessionStorePath,
		BasePath:            cfg.HTTP.BasePath,
		ChallengeTTLMinutes: cfg.Auth.ChallengeTTLMinutes,
		TOTPIssuer:          cfg.Auth.TOTPIssuer,
		GoogleClientID:      cfg.Auth.GoogleClientID,
	}
}

func runnerConfig(cfg appconfig.Config) runner.Config {
	return runner.Config{
		Mode:        cfg.Runner.Mode,
		Image:       cfg.Runner.Image,
		Address:     cfg.Runner.Containerd.Address,
		Namespace:   cfg.Runner.Containerd.Namespace,
		HealthAddr:  cfg.Runner.HealthAddr,
		WorkDir:     filepath.Join(cfg.StateDir, "runs"),
		RunTimeout:  time.Duration(cfg.Runner.RunTimeoutMinutes) * time.Minute,
		PullTimeout: time.Duration(cfg.Runner.PullTimeoutMinutes) * time.Minute,
	}
}
