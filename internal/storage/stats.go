package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.StatsStore = (*StatsStore)(nil)

// StatsStore answers the aggregate queries behind dashboard KPIs and
// charts. It reads the tables the other stores write: reports for
// completions, plans for deployment outcomes, feedback for ratings,
// and its own page_views for usage. All windows are half-open [from, to).
type StatsStore struct {
	db *DB
}

func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) RecordPageView(ctx context.Context, user schema.UserID, page string, durationMS int, at time.Time) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO page_views (user_id, page, duration_ms, viewed_at)
		VALUES ($1, $2, $3, $4)
	`, user, page, durationMS, at)
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}

func (s *StatsStore) AssessmentsCompleted(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE generated_at >= $1 AND generated_at < $2
	`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed assessments: %w", err)
	}
	return n, nil
}

func (s *StatsStore) AssessmentsCompletedDaily(ctx context.Context, from, to time.Time) ([]core.DayCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT (generated_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)
		FROM reports
		WHERE generated_at >= $1 AND generated_at < $2
		GROUP BY day ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily completed assessments: %w", err)
	}
	return scanDayCounts(rows)
}

func (s *StatsStore) AverageReadinessScore(ctx context.Context, from, to time.Time) (float64, int, error) {
	var (
		avg float64
		n   int
	)
	err := s.db.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(overall_score), 0), COUNT(*)
		FROM reports
		WHERE generated_at >= $1 AND generated_at < $2
	`, from, to).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("average readiness score: %w", err)
	}
	return avg, n, nil
}

func (s *StatsStore) PlansApplied(ctx context.Context, from, to time.Time) (int, int, error) {
	var succeeded, failed int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM plans
		WHERE status IN ('succeeded', 'failed')
			AND updated_at >= $1 AND updated_at < $2
	`, from, to).Scan(&succeeded, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count applied plans: %w", err)
	}
	return succeeded, failed, nil
}

func (s *StatsStore) PlansDaily(ctx context.Context, from, to time.Time) ([]core.PlanDayCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT (updated_at AT TIME ZONE 'UTC')::date AS day,
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM plans
		WHERE status IN ('succeeded', 'failed')
			AND updated_at >= $1 AND updated_at < $2
		GROUP BY day ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily plan outcomes: %w", err)
	}
	defer rows.Close()

	var out []core.PlanDayCount
	for rows.Next() {
		var c core.PlanDayCount
		if err := rows.Scan(&c.Day, &c.Succeeded, &c.Failed); err != nil {
			return nil, fmt.Errorf("scan plan day: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *StatsStore) ActiveUsers(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM page_views
		WHERE viewed_at >= $1 AND viewed_at < $2
	`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

func (s *StatsStore) AverageFeedbackRating(ctx context.Context, from, to time.Time) (float64, int, error) {
	var (
		avg float64
		n   int
	)
	err := s.db.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0)::double precision, COUNT(*)
		FROM feedback
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("average feedback rating: %w", err)
	}
	return avg, n, nil
}

func (s *StatsStore) FeedbackRatingDaily(ctx context.Context, from, to time.Time) ([]core.DayCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT (created_at AT TIME ZONE 'UTC')::date AS day,
			COUNT(*), AVG(rating)::double precision
		FROM feedback
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily feedback ratings: %w", err)
	}
	defer rows.Close()

	var out []core.DayCount
	for rows.Next() {
		var c core.DayCount
		if err := rows.Scan(&c.Day, &c.Count, &c.Value); err != nil {
			return nil, fmt.Errorf("scan feedback day: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *StatsStore) PageViewsDaily(ctx context.Context, from, to time.Time) ([]core.DayCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT (viewed_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)
		FROM page_views
		WHERE viewed_at >= $1 AND viewed_at < $2
		GROUP BY day ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily page views: %w", err)
	}
	return scanDayCounts(rows)
}

func (s *StatsStore) MonthlyCostTotal(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(monthly_cost_usd), 0) FROM plans
		WHERE status = 'succeeded' AND monthly_cost_usd IS NOT NULL
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum monthly cost: %w", err)
	}
	return total, nil
}

func scanDayCounts(rows pgx.Rows) ([]core.DayCount, error) {
	defer rows.Close()
	var out []core.DayCount
	for rows.Next() {
		var c core.DayCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
