// Package httpapi serves the Infra Mind REST API. Every operation of
// core.Service is reachable here, with cookie or bearer sessions, MFA
// login flows, role gates, and a server-sent event stream for live
// dashboard updates.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

// UserStore is the account surface the API consumes. *auth.Store
// implements it.
type UserStore interface {
	Authenticate(email, password string) (auth.User, error)
	ValidateTOTP(email, code string) error
	ConsumeBackupCode(email, code string) error
	BackupCodesRemaining(email string) (int, error)
	SetBackupCodes(email string, hashes []string) error
	Lookup(email string) (auth.User, bool)
	Get(id schema.UserID) (auth.User, bool)
	LookupByGoogleSubject(sub string) (auth.User, bool)
	LinkGoogleSubject(email, sub string) error
	ChangePassword(email, currentPassword, newPassword string) error
	UpdateTOTP(email, secret string, enabled bool) error
	TouchLogin(email string) error
}

// Server carries the HTTP state: session and challenge stores, the
// domain service, and the GitOps fallback mapper consulted by the
// mapped read endpoints.
type Server struct {
	cfg         Config
	service     core.Service
	users       UserStore
	sessions    *sessionStore
	challenges  *challengeStore
	enrollments *enrollmentStore
	google      *googleVerifier
	mapper      *gitops.Mapper
	provider    *gitops.Client
	hub         *Hub
	log         pslog.Logger
	basePath    string
}

// NewServer wires the API around the domain service and account store.
// mapper and provider may be nil when GitOps live calls are not
// configured; mapped reads then pass provider errors through instead
// of falling back.
func NewServer(cfg Config, svc core.Service, users UserStore, mapper *gitops.Mapper, provider *gitops.Client, hub *Hub, logger pslog.Logger) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	challengeTTL := time.Duration(cfg.ChallengeTTLMinutes) * time.Minute
	if hub == nil {
		hub = NewHub(cfg.StreamHistory, logger)
	}
	return &Server{
		cfg:         cfg,
		service:     svc,
		users:       users,
		sessions:    newSessionStore(ttl, cfg.SessionStorePath),
		challenges:  newChallengeStore(challengeTTL),
		enrollments: newEnrollmentStore(),
		google:      newGoogleVerifier(cfg.GoogleClientID, logger),
		mapper:      mapper,
		provider:    provider,
		hub:         hub,
		log:         logger,
		basePath:    normalizeBasePath(cfg.BasePath),
	}
}

// Hub exposes the event hub so the composition root can register it as
// the service event sink.
func (s *Server) Hub() *Hub { return s.hub }

// principal is the authenticated caller attached to each request after
// session validation.
type principal struct {
	UserID schema.UserID
	Email  string
	Name   string
	Role   schema.Role
}

// Handler builds the routing table. All routes live under /api; when a
// base path is configured the whole tree is mounted beneath it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/mfa/verify", s.handleMFAVerify)
	mux.HandleFunc("POST /api/auth/mfa/backup", s.handleMFABackup)
	mux.HandleFunc("POST /api/auth/oauth/google", s.handleGoogleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.requireSession(s.handleLogout))
	mux.HandleFunc("GET /api/auth/me", s.requireSession(s.handleMe))
	mux.HandleFunc("POST /api/auth/password", s.requireSession(s.handleChangePassword))
	mux.HandleFunc("POST /api/auth/mfa/enroll/begin", s.requireSession(s.handleEnrollBegin))
	mux.HandleFunc("POST /api/auth/mfa/enroll/confirm", s.requireSession(s.handleEnrollConfirm))
	mux.HandleFunc("POST /api/auth/mfa/enroll/complete", s.requireSession(s.handleEnrollComplete))
	mux.HandleFunc("POST /api/auth/mfa/backup-codes", s.requireSession(s.handleRegenerateBackupCodes))

	mux.HandleFunc("POST /api/assessments", s.analyst(s.handleCreateAssessment))
	mux.HandleFunc("GET /api/assessments", s.viewer(s.handleListAssessments))
	mux.HandleFunc("GET /api/assessments/{id}", s.viewer(s.handleGetAssessment))
	mux.HandleFunc("PUT /api/assessments/{id}/draft", s.analyst(s.handleSaveAssessmentDraft))
	mux.HandleFunc("POST /api/assessments/{id}/submit", s.analyst(s.handleSubmitAssessment))
	mux.HandleFunc("POST /api/assessments/{id}/complete", s.analyst(s.handleCompleteAssessment))
	mux.HandleFunc("POST /api/assessments/{id}/archive", s.analyst(s.handleArchiveAssessment))
	mux.HandleFunc("POST /api/assessments/{id}/select", s.viewer(s.handleSelectAssessment))
	mux.HandleFunc("DELETE /api/assessments/selection", s.viewer(s.handleClearSelection))
	mux.HandleFunc("GET /api/assessments/{id}/report", s.viewer(s.handleGetReport))
	mux.HandleFunc("GET /api/assessments/{id}/report/pdf", s.viewer(s.handleExportReportPDF))

	mux.HandleFunc("POST /api/experiments", s.analyst(s.handleCreateExperiment))
	mux.HandleFunc("GET /api/experiments", s.viewer(s.handleListExperiments))
	mux.HandleFunc("GET /api/experiments/{id}", s.viewer(s.handleGetExperiment))
	mux.HandleFunc("DELETE /api/experiments/{id}", s.analyst(s.handleDeleteExperiment))
	mux.HandleFunc("POST /api/experiments/{id}/start", s.analyst(s.handleStartExperiment))
	mux.HandleFunc("POST /api/experiments/{id}/pause", s.analyst(s.handlePauseExperiment))
	mux.HandleFunc("POST /api/experiments/{id}/end", s.analyst(s.handleEndExperiment))
	mux.HandleFunc("POST /api/experiments/{id}/assign", s.viewer(s.handleAssignVariant))
	mux.HandleFunc("POST /api/experiments/{id}/events", s.viewer(s.handleRecordExperimentEvent))
	mux.HandleFunc("GET /api/experiments/{id}/results", s.viewer(s.handleExperimentResults))

	mux.HandleFunc("POST /api/gitops/repositories", s.analyst(s.handleConnectRepository))
	mux.HandleFunc("GET /api/gitops/repositories", s.viewer(s.handleListRepositories))
	mux.HandleFunc("GET /api/gitops/repositories/{id}", s.viewer(s.handleGetRepository))
	mux.HandleFunc("DELETE /api/gitops/repositories/{id}", s.analyst(s.handleDisconnectRepository))
	mux.HandleFunc("POST /api/gitops/repositories/{id}/sync", s.analyst(s.handleSyncRepository))
	mux.HandleFunc("GET /api/gitops/repositories/{id}/deploy-key", s.viewer(s.handleGetDeployKey))
	mux.HandleFunc("POST /api/gitops/repositories/{id}/deploy-key/rotate", s.analyst(s.handleRotateDeployKey))
	mux.HandleFunc("GET /api/gitops/repositories/{id}/branches", s.viewer(s.handleListBranches))
	mux.HandleFunc("GET /api/gitops/repositories/{id}/pulls", s.viewer(s.handleListPullRequests))
	mux.HandleFunc("GET /api/gitops/templates", s.viewer(s.handleListTemplates))
	mux.HandleFunc("GET /api/gitops/templates/{id...}", s.viewer(s.handleGetTemplate))
	mux.HandleFunc("POST /api/gitops/plans", s.analyst(s.handleCreatePlan))
	mux.HandleFunc("GET /api/gitops/plans", s.viewer(s.handleListPlans))
	mux.HandleFunc("GET /api/gitops/plans/{id}", s.viewer(s.handleGetPlan))
	mux.HandleFunc("GET /api/gitops/plans/{id}/estimate", s.viewer(s.handleGetPlanEstimate))
	mux.HandleFunc("POST /api/gitops/plans/{id}/approve", s.admin(s.handleApprovePlan))

	mux.HandleFunc("GET /api/dashboard", s.viewer(s.handleDashboard))
	mux.HandleFunc("GET /api/charts/{chart}", s.viewer(s.handleChart))

	mux.HandleFunc("POST /api/feedback", s.viewer(s.handleSubmitFeedback))
	mux.HandleFunc("GET /api/feedback", s.analyst(s.handleListFeedback))
	mux.HandleFunc("GET /api/feedback/stats", s.analyst(s.handleFeedbackStats))
	mux.HandleFunc("POST /api/analytics/pageview", s.viewer(s.handleRecordPageView))

	mux.HandleFunc("GET /api/preferences", s.viewer(s.handleGetPreferences))
	mux.HandleFunc("PUT /api/preferences", s.viewer(s.handleUpdatePreferences))

	mux.HandleFunc("GET /api/stream", s.requireSession(s.handleStream))

	var handler http.Handler = s.withLogging(s.withRecovery(mux))
	if s.basePath != "" {
		outer := http.NewServeMux()
		outer.Handle(s.basePath+"/", http.StripPrefix(s.basePath, handler))
		outer.HandleFunc(s.basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, s.basePath+"/", http.StatusMovedPermanently)
		})
		handler = outer
	}
	return handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionToken extracts the caller's token. A bearer header wins over
// the cookie so API clients can pair with a browser session without
// clobbering it.
func (s *Server) sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requireSession resolves the token to a live account. Sessions for
// deleted accounts are dropped on sight.
func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		if token == "" {
			writeError(w, schema.ErrSessionExpired)
			return
		}
		sess, ok := s.sessions.get(token)
		if !ok {
			writeError(w, schema.ErrSessionExpired)
			return
		}
		user, ok := s.users.Get(sess.userID)
		if !ok {
			s.sessions.delete(token)
			writeError(w, schema.ErrSessionExpired)
			return
		}
		r = r.WithContext(logx.ContextWithUser(r.Context(), user.ID))
		next(w, r, principal{UserID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
	}
}

// roleRank orders roles for gate checks. Unknown roles rank below
// viewer and fail every gate.
func roleRank(role schema.Role) int {
	switch role {
	case schema.RoleAdmin:
		return 2
	case schema.RoleAnalyst:
		return 1
	case schema.RoleViewer:
		return 0
	default:
		return -1
	}
}

func (s *Server) requireRole(min schema.Role, next func(http.ResponseWriter, *http.Request, principal)) func(http.ResponseWriter, *http.Request, principal) {
	return func(w http.ResponseWriter, r *http.Request, p principal) {
		if roleRank(p.Role) < roleRank(min) {
			logx.WithUser(r.Context(), p.UserID).Warn("role gate denied",
				"role", p.Role, "need", min, "path", r.URL.Path)
			writeError(w, schema.ErrForbidden)
			return
		}
		next(w, r, p)
	}
}

func (s *Server) viewer(next func(http.ResponseWriter, *http.Request, principal)) http.HandlerFunc {
	return s.requireSession(s.requireRole(schema.RoleViewer, next))
}

func (s *Server) analyst(next func(http.ResponseWriter, *http.Request, principal)) http.HandlerFunc {
	return s.requireSession(s.requireRole(schema.RoleAnalyst, next))
}

func (s *Server) admin(next func(http.ResponseWriter, *http.Request, principal)) http.HandlerFunc {
	return s.requireSession(s.requireRole(schema.RoleAdmin, next))
}

// withRecovery turns handler panics into the internal error envelope so
// a single bad request cannot take the process down.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if s.log != nil {
					s.log.Error("handler panic", "err", v, "method", r.Method, "path", r.URL.Path)
				}
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": errorBody{
					Code:      "internal",
					Message:   "internal error",
					Retryable: true,
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
