package logx

import (
	"context"

	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	userKey contextKey = iota
	assessmentKey
	planKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithUser annotates the logger with the user id if present.
func WithUser(ctx context.Context, userID schema.UserID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if userID != "" {
		if current, ok := ctx.Value(userKey).(schema.UserID); ok && current == userID {
			return log
		}
		log = log.With("user", userID)
	}
	return log
}

// WithAssessment annotates the logger with user and assessment identifiers.
func WithAssessment(ctx context.Context, userID schema.UserID, assessmentID schema.AssessmentID) pslog.Logger {
	log := WithUser(ctx, userID)
	if assessmentID != "" {
		if current, ok := ctx.Value(assessmentKey).(schema.AssessmentID); ok && current == assessmentID {
			return log
		}
		log = log.With("assessment", assessmentID)
	}
	return log
}

// WithPlan annotates the logger with user and plan identifiers.
func WithPlan(ctx context.Context, userID schema.UserID, planID schema.PlanID) pslog.Logger {
	log := WithUser(ctx, userID)
	if planID != "" {
		if current, ok := ctx.Value(planKey).(schema.PlanID); ok && current == planID {
			return log
		}
		log = log.With("plan", planID)
	}
	return log
}

// WithRepository annotates the logger with repository metadata when available.
func WithRepository(log pslog.Logger, repo schema.GitRepository) pslog.Logger {
	if repo.ID != "" {
		log = log.With("repository", repo.ID)
	}
	if repo.Name != "" {
		log = log.With("repo_name", repo.Name)
	}
	return log
}

// WithExperiment annotates the logger with an experiment id when available.
func WithExperiment(log pslog.Logger, experimentID schema.ExperimentID) pslog.Logger {
	if experimentID != "" {
		log = log.With("experiment", experimentID)
	}
	return log
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, userID schema.UserID) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// ContextWithAssessment stores the assessment marker on the context for log de-duplication.
func ContextWithAssessment(ctx context.Context, assessmentID schema.AssessmentID) context.Context {
	if ctx == nil || assessmentID == "" {
		return ctx
	}
	return context.WithValue(ctx, assessmentKey, assessmentID)
}

// ContextWithPlan stores the plan marker on the context for log de-duplication.
func ContextWithPlan(ctx context.Context, planID schema.PlanID) context.Context {
	if ctx == nil || planID == "" {
		return ctx
	}
	return context.WithValue(ctx, planKey, planID)
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, userID schema.UserID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, userID)
}

// ContextWithPlanLogger attaches the logger and user/plan markers to the context.
func ContextWithPlanLogger(ctx context.Context, log pslog.Logger, userID schema.UserID, planID schema.PlanID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithPlan(ContextWithUser(ctx, userID), planID)
}

// CopyContextFields copies user/assessment/plan markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if user, ok := src.Value(userKey).(schema.UserID); ok && user != "" {
		dst = ContextWithUser(dst, user)
	}
	if assessment, ok := src.Value(assessmentKey).(schema.AssessmentID); ok && assessment != "" {
		dst = ContextWithAssessment(dst, assessment)
	}
	if plan, ok := src.Value(planKey).(schema.PlanID); ok && plan != "" {
		dst = ContextWithPlan(dst, plan)
	}
	return dst
}
