package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

func (s *service) CreatePlan(ctx context.Context, req schema.CreatePlanRequest) (schema.CreatePlanResponse, error) {
	if ctx == nil {
		return schema.CreatePlanResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CreatePlanResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.CreatePlanResponse{}, err
	}
	repo, err := s.repositories.Get(ctx, req.RepositoryID)
	if err != nil {
		return schema.CreatePlanResponse{}, err
	}
	if s.templates == nil {
		return schema.CreatePlanResponse{}, schema.ErrTemplateNotFound
	}
	if _, err := s.templates.Get(req.TemplateID); err != nil {
		return schema.CreatePlanResponse{}, err
	}
	files, err := s.templates.Render(req.TemplateID, req.Parameters)
	if err != nil {
		return schema.CreatePlanResponse{}, err
	}

	now := s.now().UTC()
	plan := schema.DeploymentPlan{
		ID:           schema.PlanID(newID()),
		AssessmentID: assessment.ID,
		RepositoryID: repo.ID,
		TemplateID:   req.TemplateID,
		Parameters:   req.Parameters,
		Status:       schema.PlanPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		log.Warn("service plan create failed", "err", err)
		return schema.CreatePlanResponse{}, err
	}
	planLog := logx.WithPlan(ctx, userID, plan.ID)
	planLog.Info("service plan created", "template", plan.TemplateID, "repository", plan.RepositoryID)
	s.emitPlan(schema.PlanEvent{Plan: plan})
	s.startPlanRun(plan, files, s.runPlanStage)
	return schema.CreatePlanResponse{Plan: plan}, nil
}

func (s *service) GetPlan(ctx context.Context, req schema.GetPlanRequest) (schema.GetPlanResponse, error) {
	if ctx == nil {
		return schema.GetPlanResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetPlanResponse{}, err
	}
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return schema.GetPlanResponse{}, err
	}
	// An in-flight run has a fresher tail than the stored row.
	s.mu.Lock()
	run := s.activeRuns[plan.ID]
	s.mu.Unlock()
	if run != nil {
		if tail := run.buf.Tail(); len(tail) > 0 {
			plan.LogTail = tail
		}
	}
	return schema.GetPlanResponse{Plan: plan}, nil
}

func (s *service) ListPlans(ctx context.Context, req schema.ListPlansRequest) (schema.ListPlansResponse, error) {
	if ctx == nil {
		return schema.ListPlansResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListPlansResponse{}, err
	}
	if req.Status != "" {
		switch req.Status {
		case schema.PlanPending, schema.PlanPlanning, schema.PlanAwaitingApproval,
			schema.PlanApplying, schema.PlanSucceeded, schema.PlanFailed:
		default:
			return schema.ListPlansResponse{}, fmt.Errorf("%w: unknown plan status %q", schema.ErrInvalidRequest, req.Status)
		}
	}
	offset, limit := s.clampPage(req.Offset, req.Limit)
	plans, total, err := s.plans.List(ctx, req.Status, offset, limit)
	if err != nil {
		return schema.ListPlansResponse{}, err
	}
	return schema.ListPlansResponse{Plans: plans, Total: total}, nil
}

func (s *service) ApprovePlan(ctx context.Context, req schema.ApprovePlanRequest) (schema.ApprovePlanResponse, error) {
	if ctx == nil {
		return schema.ApprovePlanResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ApprovePlanResponse{}, err
	}
	log := logx.WithPlan(ctx, userID, req.PlanID)
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return schema.ApprovePlanResponse{}, err
	}
	if plan.Status != schema.PlanAwaitingApproval {
		return schema.ApprovePlanResponse{}, fmt.Errorf("%w: plan is %s", schema.ErrPlanNotApprovable, plan.Status)
	}
	repo, err := s.repositories.Get(ctx, plan.RepositoryID)
	if err != nil {
		return schema.ApprovePlanResponse{}, err
	}
	if s.templates == nil {
		return schema.ApprovePlanResponse{}, schema.ErrTemplateNotFound
	}
	template, err := s.templates.Get(plan.TemplateID)
	if err != nil {
		return schema.ApprovePlanResponse{}, err
	}
	files, err := s.templates.Render(plan.TemplateID, plan.Parameters)
	if err != nil {
		return schema.ApprovePlanResponse{}, err
	}
	if s.publisher == nil {
		return schema.ApprovePlanResponse{}, schema.ErrProviderUnavailable
	}

	pr, err := s.publisher.Publish(ctx, PublishRequest{
		Repo:   repo,
		Branch: s.planBranch(plan.ID),
		Title:  fmt.Sprintf("Deploy %s to %s", template.Name, repo.Name),
		Body:   planBody(plan, template),
		Files:  files,
	})
	if err != nil {
		log.Warn("service plan publish failed", "err", err)
		return schema.ApprovePlanResponse{}, fmt.Errorf("%w: %v", schema.ErrProviderUnavailable, err)
	}
	plan.PullRequestID = pr.ID
	plan.ApprovedBy = userID
	plan.Status = schema.PlanApplying
	plan.UpdatedAt = s.now().UTC()
	if err := s.plans.Update(ctx, plan); err != nil {
		log.Warn("service plan approve store failed", "err", err)
		return schema.ApprovePlanResponse{}, err
	}
	log.Info("service plan approved", "pull_request", pr.Number, "branch", pr.Branch)
	s.emitPlan(schema.PlanEvent{Plan: plan})
	s.startPlanRun(plan, files, s.runApplyStage)
	return schema.ApprovePlanResponse{Plan: plan}, nil
}

func (s *service) planBranch(id schema.PlanID) string {
	return s.cfg.PlanBranchPrefix + shortID(string(id))
}

func planBody(plan schema.DeploymentPlan, template schema.IaCTemplate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated change set for assessment %s.\n\n", plan.AssessmentID)
	fmt.Fprintf(&b, "Template: %s (%s, %s)\n", template.Name, template.Kind, template.Provider)
	if plan.MonthlyCostUSD != nil {
		fmt.Fprintf(&b, "Estimated monthly cost: $%.2f\n", *plan.MonthlyCostUSD)
	}
	if len(plan.Parameters) > 0 {
		b.WriteString("\nParameters:\n")
		for _, name := range sortedKeys(plan.Parameters) {
			fmt.Fprintf(&b, "  %s = %s\n", name, plan.Parameters[name])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// startPlanRun launches one runner stage in the background. The run is
// registered so Close cancels it and reads see the live tail.
func (s *service) startPlanRun(plan schema.DeploymentPlan, files map[string]string, stage func(context.Context, schema.DeploymentPlan, map[string]string, *logBuffer)) {
	ctx, cancel := context.WithCancel(s.runCtx)
	buf := newLogBuffer(s.cfg.PlanLogMaxLines)
	buf.Append(plan.LogTail...)
	s.mu.Lock()
	s.activeRuns[plan.ID] = &planRun{cancel: cancel, buf: buf}
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.activeRuns, plan.ID)
			s.mu.Unlock()
		}()
		stage(ctx, plan, files, buf)
	}()
}

func (s *service) runPlanStage(ctx context.Context, plan schema.DeploymentPlan, files map[string]string, buf *logBuffer) {
	log := s.logger.With("plan", plan.ID)
	s.storePlan(ctx, log, &plan, schema.PlanPlanning, buf)
	log.Info("service plan stage start", "template", plan.TemplateID)
	if s.runner == nil {
		buf.Append("runner unavailable")
		s.storePlan(ctx, log, &plan, schema.PlanFailed, buf)
		log.Warn("service plan stage failed", "err", schema.ErrRunnerUnavailable)
		s.emitKPIs(ctx)
		return
	}
	result, err := s.runner.Plan(ctx, RunRequest{
		Plan:   plan,
		Files:  files,
		OnLine: s.planLineFn(plan, buf),
	})
	if err != nil {
		buf.Append("plan failed: " + err.Error())
		s.storePlan(ctx, log, &plan, schema.PlanFailed, buf)
		log.Warn("service plan stage failed", "err", err)
		s.emitKPIs(ctx)
		return
	}
	cost := result.MonthlyCostUSD
	plan.MonthlyCostUSD = &cost
	if result.Summary != "" {
		buf.Append(result.Summary)
	}
	s.storePlan(ctx, log, &plan, schema.PlanAwaitingApproval, buf)
	log.Info("service plan stage done", "monthly_cost_usd", cost)
}

func (s *service) runApplyStage(ctx context.Context, plan schema.DeploymentPlan, files map[string]string, buf *logBuffer) {
	log := s.logger.With("plan", plan.ID)
	log.Info("service apply stage start", "pull_request", plan.PullRequestID)
	if s.runner == nil {
		buf.Append("runner unavailable")
		s.storePlan(ctx, log, &plan, schema.PlanFailed, buf)
		log.Warn("service apply stage failed", "err", schema.ErrRunnerUnavailable)
		s.emitKPIs(ctx)
		return
	}
	result, err := s.runner.Apply(ctx, RunRequest{
		Plan:   plan,
		Files:  files,
		OnLine: s.planLineFn(plan, buf),
	})
	if err != nil {
		buf.Append("apply failed: " + err.Error())
		s.storePlan(ctx, log, &plan, schema.PlanFailed, buf)
		log.Warn("service apply stage failed", "err", err)
		s.emitKPIs(ctx)
		return
	}
	if result.MonthlyCostUSD > 0 {
		cost := result.MonthlyCostUSD
		plan.MonthlyCostUSD = &cost
	}
	if result.Summary != "" {
		buf.Append(result.Summary)
	}
	s.storePlan(ctx, log, &plan, schema.PlanSucceeded, buf)
	log.Info("service apply stage done")
	s.emitKPIs(ctx)
}

// planLineFn streams runner output into the buffer and out to the sink.
func (s *service) planLineFn(plan schema.DeploymentPlan, buf *logBuffer) func(string) {
	return func(line string) {
		buf.Append(line)
		s.emitPlan(schema.PlanEvent{Plan: plan, Line: line})
	}
}

// storePlan records a status transition with the current tail and emits it.
func (s *service) storePlan(ctx context.Context, log pslog.Logger, plan *schema.DeploymentPlan, status schema.PlanStatus, buf *logBuffer) {
	plan.Status = status
	plan.UpdatedAt = s.now().UTC()
	plan.LogTail = buf.Tail()
	if err := s.plans.Update(ctx, *plan); err != nil {
		log.Warn("service plan store failed", "status", status, "err", err)
	}
	s.emitPlan(schema.PlanEvent{Plan: *plan})
}
