// Package command parses and executes ops console commands. The SSH
// console and anything else that speaks line-oriented commands routes
// input through Handler.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/internal/format"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/internal/version"
	"github.com/inframind/inframind/schema"
)

const defaultListLimit = 10

// HandlerConfig configures console command behavior.
type HandlerConfig struct {
	Mapper              *gitops.Mapper
	DisableAuditLogging bool
}

// Handler routes console commands to service operations and returns
// the lines to print.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
	render  *format.PlainRenderer
}

// NewHandler constructs a console command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		render:  format.NewPlainRenderer(),
	}
}

// Handle executes one console line. Blank input returns no lines and
// no error; unknown commands return an error the console prints.
func (h *Handler) Handle(ctx context.Context, userID schema.UserID, role schema.Role, input string) ([]string, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return nil, nil
	}
	log := logx.WithUser(ctx, userID).With("command", cmd.Name, "args", len(cmd.Args))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command", strings.TrimSpace(input))
	}
	log.Info("console command")
	switch cmd.Name {
	case "":
		log.Warn("console command rejected", "reason", "empty")
		return nil, fmt.Errorf("invalid command")
	case "help":
		return h.helpLines(role), nil
	case "status":
		return h.handleStatus(ctx, userID)
	case "kpis":
		return h.handleKPIs(ctx, userID)
	case "assessments":
		return h.handleAssessments(ctx, userID, cmd)
	case "plans":
		return h.handlePlans(ctx, userID, cmd)
	case "feedback":
		return h.handleFeedback(ctx, userID, cmd)
	case "fallback":
		return h.handleFallback(ctx, userID, role, cmd)
	case "whoami":
		return []string{fmt.Sprintf("%s (%s)", userID, role)}, nil
	case "version":
		return []string{version.CurrentWithDirty()}, nil
	default:
		log.Warn("console command rejected", "reason", "unknown")
		return nil, fmt.Errorf("unknown command: %s (try help)", cmd.Name)
	}
}

func (h *Handler) helpLines(role schema.Role) []string {
	lines := []string{
		"status                  service summary and provider mode",
		"kpis                    dashboard KPI cards",
		"assessments [n]         recent assessments",
		"plans [n]               recent deployment plans",
		"feedback [n|stats]      recent feedback or aggregates",
	}
	if role == schema.RoleAdmin {
		lines = append(lines, "fallback [on|off|status]  force or release demo fallback data")
	} else {
		lines = append(lines, "fallback status         show provider fallback mode")
	}
	lines = append(lines,
		"whoami                  current user and role",
		"version                 server version",
		"exit                    close the console",
	)
	return lines
}

func (h *Handler) handleStatus(ctx context.Context, userID schema.UserID) ([]string, error) {
	resp, err := h.service.GetDashboard(ctx, schema.GetDashboardRequest{UserID: userID})
	if err != nil {
		logx.WithUser(ctx, userID).Warn("console status failed", "err", err)
		return nil, err
	}
	active := "none"
	if resp.ActiveAssessment != "" {
		active = string(resp.ActiveAssessment)
	}
	return []string{
		fmt.Sprintf("inframind %s", version.CurrentWithDirty()),
		fmt.Sprintf("provider mode: %s", h.fallbackMode()),
		fmt.Sprintf("kpi cards: %d", len(resp.KPIs)),
		fmt.Sprintf("recent: %d assessments, %d plans, %d feedback",
			len(resp.RecentAssessments), len(resp.RecentPlans), len(resp.RecentFeedback)),
		fmt.Sprintf("active assessment: %s", active),
	}, nil
}

func (h *Handler) handleKPIs(ctx context.Context, userID schema.UserID) ([]string, error) {
	resp, err := h.service.GetDashboard(ctx, schema.GetDashboardRequest{UserID: userID})
	if err != nil {
		logx.WithUser(ctx, userID).Warn("console kpis failed", "err", err)
		return nil, err
	}
	return h.render.KPIs(resp.KPIs), nil
}

func (h *Handler) handleAssessments(ctx context.Context, userID schema.UserID, cmd Command) ([]string, error) {
	limit, err := listLimit(cmd.Args)
	if err != nil {
		return nil, fmt.Errorf("usage: assessments [n]")
	}
	resp, err := h.service.ListAssessments(ctx, schema.ListAssessmentsRequest{UserID: userID, Limit: limit})
	if err != nil {
		logx.WithUser(ctx, userID).Warn("console assessments failed", "err", err)
		return nil, err
	}
	lines := h.render.Assessments(resp.Assessments)
	return append(lines, fmt.Sprintf("total: %d", resp.Total)), nil
}

func (h *Handler) handlePlans(ctx context.Context, userID schema.UserID, cmd Command) ([]string, error) {
	limit, err := listLimit(cmd.Args)
	if err != nil {
		return nil, fmt.Errorf("usage: plans [n]")
	}
	resp, err := h.service.ListPlans(ctx, schema.ListPlansRequest{UserID: userID, Limit: limit})
	if err != nil {
		logx.WithUser(ctx, userID).Warn("console plans failed", "err", err)
		return nil, err
	}
	lines := h.render.Plans(resp.Plans)
	return append(lines, fmt.Sprintf("total: %d", resp.Total)), nil
}

func (h *Handler) handleFeedback(ctx context.Context, userID schema.UserID, cmd Command) ([]string, error) {
	if len(cmd.Args) > 0 && strings.EqualFold(cmd.Args[0], "stats") {
		resp, err := h.service.FeedbackStats(ctx, schema.FeedbackStatsRequest{UserID: userID})
		if err != nil {
			logx.WithUser(ctx, userID).Warn("console feedback stats failed", "err", err)
			return nil, err
		}
		return h.render.FeedbackStats(resp.Stats), nil
	}
	limit, err := listLimit(cmd.Args)
	if err != nil {
		return nil, fmt.Errorf("usage: feedback [n|stats]")
	}
	resp, err := h.service.ListFeedback(ctx, schema.ListFeedbackRequest{UserID: userID, Limit: limit})
	if err != nil {
		logx.WithUser(ctx, userID).Warn("console feedback failed", "err", err)
		return nil, err
	}
	lines := h.render.Feedback(resp.Records)
	return append(lines, fmt.Sprintf("total: %d", resp.Total)), nil
}

func (h *Handler) handleFallback(ctx context.Context, userID schema.UserID, role schema.Role, cmd Command) ([]string, error) {
	mode := "status"
	if len(cmd.Args) > 0 {
		mode = strings.ToLower(cmd.Args[0])
	}
	log := logx.WithUser(ctx, userID).With("mode", mode)
	switch mode {
	case "status":
		return []string{fmt.Sprintf("provider mode: %s", h.fallbackMode())}, nil
	case "on", "off":
		if role != schema.RoleAdmin {
			log.Warn("console fallback denied", "role", role)
			return nil, schema.ErrForbidden
		}
		if h.cfg.Mapper == nil {
			return nil, fmt.Errorf("fallback data is not configured")
		}
		h.cfg.Mapper.SetForced(mode == "on")
		log.Info("console fallback toggled", "forced", mode == "on")
		return []string{fmt.Sprintf("provider mode: %s", h.fallbackMode())}, nil
	default:
		return nil, fmt.Errorf("usage: fallback [on|off|status]")
	}
}

// fallbackMode names the live/demo state the way the dashboard does.
func (h *Handler) fallbackMode() string {
	if h.cfg.Mapper != nil && h.cfg.Mapper.Forced() {
		return "forced demo fallback"
	}
	return "live"
}

func listLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", args[0])
	}
	return n, nil
}
