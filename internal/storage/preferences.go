package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.PreferenceStore = (*PreferenceStore)(nil)

// PreferenceStore persists per-user settings and the active assessment
// selection in a single row per user. Settings writes and selection
// writes touch disjoint columns so neither clobbers the other.
type PreferenceStore struct {
	db *DB
}

func NewPreferenceStore(db *DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

func (s *PreferenceStore) Get(ctx context.Context, user schema.UserID) (schema.Preferences, bool, error) {
	var p schema.Preferences
	err := s.db.pool.QueryRow(ctx, `
		SELECT theme, default_provider, notify_plan_updates, notify_weekly_mail
		FROM preferences WHERE user_id = $1
	`, user).Scan(&p.Theme, &p.DefaultProvider, &p.NotifyPlanUpdates, &p.NotifyWeeklyMail)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Preferences{}, false, nil
	}
	if err != nil {
		return schema.Preferences{}, false, fmt.Errorf("select preferences: %w", err)
	}
	return p, true, nil
}

func (s *PreferenceStore) Set(ctx context.Context, user schema.UserID, p schema.Preferences) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, theme, default_provider,
			notify_plan_updates, notify_weekly_mail, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE
		SET theme = EXCLUDED.theme,
			default_provider = EXCLUDED.default_provider,
			notify_plan_updates = EXCLUDED.notify_plan_updates,
			notify_weekly_mail = EXCLUDED.notify_weekly_mail,
			updated_at = now()
	`, user, p.Theme, p.DefaultProvider, p.NotifyPlanUpdates, p.NotifyWeeklyMail)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func (s *PreferenceStore) ActiveAssessment(ctx context.Context, user schema.UserID) (schema.AssessmentID, error) {
	var id schema.AssessmentID
	err := s.db.pool.QueryRow(ctx, `
		SELECT active_assessment FROM preferences WHERE user_id = $1
	`, user).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select active assessment: %w", err)
	}
	return id, nil
}

func (s *PreferenceStore) SetActiveAssessment(ctx context.Context, user schema.UserID, id schema.AssessmentID) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, active_assessment, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET active_assessment = EXCLUDED.active_assessment,
			updated_at = now()
	`, user, id)
	if err != nil {
		return fmt.Errorf("set active assessment: %w", err)
	}
	return nil
}
