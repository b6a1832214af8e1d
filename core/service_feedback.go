package core

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

func (s *service) SubmitFeedback(ctx context.Context, req schema.SubmitFeedbackRequest) (schema.SubmitFeedbackResponse, error) {
	if ctx == nil {
		return schema.SubmitFeedbackResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.SubmitFeedbackResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	if err := schema.ValidateRating(req.Rating); err != nil {
		return schema.SubmitFeedbackResponse{}, err
	}
	category := req.Category
	if category == "" {
		category = schema.FeedbackOther
	}
	category, err = schema.NormalizeCategory(string(category))
	if err != nil {
		return schema.SubmitFeedbackResponse{}, err
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > s.cfg.CommentMaxLen {
		return schema.SubmitFeedbackResponse{}, fmt.Errorf("%w: comment exceeds %d characters", schema.ErrInvalidRequest, s.cfg.CommentMaxLen)
	}
	record := schema.FeedbackRecord{
		ID:        schema.FeedbackID(newID()),
		UserID:    userID,
		Category:  category,
		Rating:    req.Rating,
		Comment:   comment,
		Page:      strings.TrimSpace(req.Page),
		CreatedAt: s.now().UTC(),
	}
	if err := s.feedback.Create(ctx, record); err != nil {
		log.Warn("service feedback submit failed", "err", err)
		return schema.SubmitFeedbackResponse{}, err
	}
	s.emitFeedback(schema.FeedbackEvent{Feedback: record})
	log.Info("service feedback submitted", "category", record.Category, "rating", record.Rating)
	return schema.SubmitFeedbackResponse{Feedback: record}, nil
}

func (s *service) ListFeedback(ctx context.Context, req schema.ListFeedbackRequest) (schema.ListFeedbackResponse, error) {
	if ctx == nil {
		return schema.ListFeedbackResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListFeedbackResponse{}, err
	}
	if req.Category != "" {
		if _, err := schema.NormalizeCategory(string(req.Category)); err != nil {
			return schema.ListFeedbackResponse{}, err
		}
	}
	if req.MinRating < 0 || req.MinRating > 5 {
		return schema.ListFeedbackResponse{}, schema.ErrInvalidRating
	}
	offset, limit := s.clampPage(req.Offset, req.Limit)
	records, total, err := s.feedback.List(ctx, req.Category, req.MinRating, offset, limit)
	if err != nil {
		return schema.ListFeedbackResponse{}, err
	}
	return schema.ListFeedbackResponse{Records: records, Total: total}, nil
}

func (s *service) FeedbackStats(ctx context.Context, req schema.FeedbackStatsRequest) (schema.FeedbackStatsResponse, error) {
	if ctx == nil {
		return schema.FeedbackStatsResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.FeedbackStatsResponse{}, err
	}
	stats, err := s.feedback.Stats(ctx)
	if err != nil {
		return schema.FeedbackStatsResponse{}, err
	}
	return schema.FeedbackStatsResponse{Stats: stats}, nil
}

func (s *service) RecordPageView(ctx context.Context, req schema.RecordPageViewRequest) (schema.RecordPageViewResponse, error) {
	if ctx == nil {
		return schema.RecordPageViewResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.RecordPageViewResponse{}, err
	}
	page := strings.TrimSpace(req.Page)
	if page == "" {
		return schema.RecordPageViewResponse{}, fmt.Errorf("%w: page is required", schema.ErrInvalidRequest)
	}
	if req.DurationMS < 0 {
		return schema.RecordPageViewResponse{}, fmt.Errorf("%w: duration must not be negative", schema.ErrInvalidRequest)
	}
	if err := s.stats.RecordPageView(ctx, userID, page, req.DurationMS, s.now().UTC()); err != nil {
		logx.WithUser(ctx, userID).Warn("service page view failed", "page", page, "err", err)
		return schema.RecordPageViewResponse{}, err
	}
	return schema.RecordPageViewResponse{}, nil
}
