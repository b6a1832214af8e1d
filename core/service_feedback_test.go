package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/inframind/inframind/schema"
)

func TestSubmitFeedback(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")

	resp, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{
		UserID:   user,
		Category: "Report",
		Rating:   4,
		Comment:  "  charts are helpful  ",
		Page:     "/reports/a-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	record := resp.Feedback
	if record.Category != schema.FeedbackReport {
		t.Fatalf("expected normalized category, got %s", record.Category)
	}
	if record.Comment != "charts are helpful" {
		t.Fatalf("expected trimmed comment, got %q", record.Comment)
	}
	if record.CreatedAt.IsZero() {
		t.Fatalf("expected created timestamp")
	}
	if len(env.sink.feedbackEvents()) != 1 {
		t.Fatalf("expected feedback event emitted")
	}
}

func TestSubmitFeedbackDefaultsCategory(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)

	resp, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{UserID: "u-alice", Rating: 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Feedback.Category != schema.FeedbackOther {
		t.Fatalf("expected other category, got %s", resp.Feedback.Category)
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")

	for _, rating := range []int{0, 6, -1} {
		if _, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{UserID: user, Rating: rating}); !errors.Is(err, schema.ErrInvalidRating) {
			t.Fatalf("rating %d: expected invalid rating, got %v", rating, err)
		}
	}

	if _, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{UserID: user, Rating: 3, Category: "grumbling"}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected category error, got %v", err)
	}

	long := strings.Repeat("x", 2001)
	if _, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{UserID: user, Rating: 3, Comment: long}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected comment length error, got %v", err)
	}
	if _, err := svc.SubmitFeedback(context.Background(), schema.SubmitFeedbackRequest{UserID: user, Rating: 3, Comment: strings.Repeat("x", 2000)}); err != nil {
		t.Fatalf("comment at the cap: %v", err)
	}
}

func TestListFeedbackFilters(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")
	ctx := context.Background()

	seed := []struct {
		category schema.FeedbackCategory
		rating   int
	}{
		{schema.FeedbackAssessment, 5},
		{schema.FeedbackAssessment, 2},
		{schema.FeedbackReport, 4},
	}
	for _, s := range seed {
		if _, err := svc.SubmitFeedback(ctx, schema.SubmitFeedbackRequest{UserID: user, Category: s.category, Rating: s.rating}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	byCategory, err := svc.ListFeedback(ctx, schema.ListFeedbackRequest{UserID: user, Category: schema.FeedbackAssessment})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if byCategory.Total != 2 {
		t.Fatalf("expected two assessment records, got %d", byCategory.Total)
	}

	byRating, err := svc.ListFeedback(ctx, schema.ListFeedbackRequest{UserID: user, MinRating: 4})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if byRating.Total != 2 {
		t.Fatalf("expected two records rated 4+, got %d", byRating.Total)
	}

	if _, err := svc.ListFeedback(ctx, schema.ListFeedbackRequest{UserID: user, MinRating: 9}); !errors.Is(err, schema.ErrInvalidRating) {
		t.Fatalf("expected rating bound error, got %v", err)
	}
	if _, err := svc.ListFeedback(ctx, schema.ListFeedbackRequest{UserID: user, Category: "nope"}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected category error, got %v", err)
	}
}

func TestFeedbackStats(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")
	ctx := context.Background()

	for _, r := range []int{5, 3, 4, 4} {
		if _, err := svc.SubmitFeedback(ctx, schema.SubmitFeedbackRequest{UserID: user, Category: schema.FeedbackDashboard, Rating: r}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	resp, err := svc.FeedbackStats(ctx, schema.FeedbackStatsRequest{UserID: user})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	stats := resp.Stats
	if stats.Total != 4 {
		t.Fatalf("expected four records, got %d", stats.Total)
	}
	if stats.AverageRating != 4 {
		t.Fatalf("expected average 4, got %v", stats.AverageRating)
	}
	if stats.ByCategory[schema.FeedbackDashboard] != 4 {
		t.Fatalf("unexpected category counts %v", stats.ByCategory)
	}
	if stats.ByRating[4] != 2 {
		t.Fatalf("unexpected rating counts %v", stats.ByRating)
	}
}

func TestRecordPageView(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	ctx := context.Background()

	if _, err := svc.RecordPageView(ctx, schema.RecordPageViewRequest{UserID: "u-alice", Page: "dashboard", DurationMS: 1200}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.RecordPageView(ctx, schema.RecordPageViewRequest{UserID: "u-alice", Page: "  "}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected page required, got %v", err)
	}
	if _, err := svc.RecordPageView(ctx, schema.RecordPageViewRequest{UserID: "u-alice", Page: "dashboard", DurationMS: -5}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected duration error, got %v", err)
	}

	actives, err := env.stats.ActiveUsers(ctx, env.now.AddDate(0, 0, -1), env.now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("actives: %v", err)
	}
	if actives != 1 {
		t.Fatalf("expected the page view recorded, got %d active users", actives)
	}
}

func TestPreferencesDefaults(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")
	ctx := context.Background()

	resp, err := svc.GetPreferences(ctx, schema.GetPreferencesRequest{UserID: user})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Preferences.Theme != schema.ThemeSystem {
		t.Fatalf("expected system theme default, got %s", resp.Preferences.Theme)
	}

	updated, err := svc.UpdatePreferences(ctx, schema.UpdatePreferencesRequest{
		UserID: user,
		Preferences: schema.Preferences{
			Theme:             "Dark",
			DefaultProvider:   "AWS",
			NotifyPlanUpdates: true,
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Preferences.Theme != schema.ThemeDark {
		t.Fatalf("expected normalized theme, got %s", updated.Preferences.Theme)
	}
	if updated.Preferences.DefaultProvider != schema.CloudAWS {
		t.Fatalf("expected normalized provider, got %s", updated.Preferences.DefaultProvider)
	}

	stored, err := svc.GetPreferences(ctx, schema.GetPreferencesRequest{UserID: user})
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if !stored.Preferences.NotifyPlanUpdates {
		t.Fatalf("expected notify flag persisted")
	}
}

func TestUpdatePreferencesValidation(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	user := schema.UserID("u-alice")
	ctx := context.Background()

	if _, err := svc.UpdatePreferences(ctx, schema.UpdatePreferencesRequest{
		UserID:      user,
		Preferences: schema.Preferences{Theme: "solarized"},
	}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected theme error, got %v", err)
	}
	if _, err := svc.UpdatePreferences(ctx, schema.UpdatePreferencesRequest{
		UserID:      user,
		Preferences: schema.Preferences{DefaultProvider: "oraclecloud"},
	}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected provider error, got %v", err)
	}

	// An empty theme falls back to the default rather than failing.
	resp, err := svc.UpdatePreferences(ctx, schema.UpdatePreferencesRequest{UserID: user, Preferences: schema.Preferences{}})
	if err != nil {
		t.Fatalf("update with empty theme: %v", err)
	}
	if resp.Preferences.Theme != schema.ThemeSystem {
		t.Fatalf("expected default theme, got %s", resp.Preferences.Theme)
	}
}
