package storage

import (
	"context"
	"fmt"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.FeedbackStore = (*FeedbackStore)(nil)

// FeedbackStore persists submitted ratings and answers the aggregate
// stats behind the admin feedback panel.
type FeedbackStore struct {
	db *DB
}

func NewFeedbackStore(db *DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

func (s *FeedbackStore) Create(ctx context.Context, f schema.FeedbackRecord) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO feedback (id, user_id, category, rating, comment, page, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.UserID, f.Category, f.Rating, f.Comment, f.Page, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *FeedbackStore) List(ctx context.Context, category schema.FeedbackCategory, minRating, offset, limit int) ([]schema.FeedbackRecord, int, error) {
	var total int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM feedback
		WHERE ($1 = '' OR category = $1) AND rating >= $2
	`, string(category), minRating).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count feedback: %w", err)
	}
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, user_id, category, rating, comment, page, created_at
		FROM feedback
		WHERE ($1 = '' OR category = $1) AND rating >= $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, string(category), minRating, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("select feedback: %w", err)
	}
	defer rows.Close()

	var out []schema.FeedbackRecord
	for rows.Next() {
		var f schema.FeedbackRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.Rating,
			&f.Comment, &f.Page, &f.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return out, total, nil
}

func (s *FeedbackStore) Stats(ctx context.Context) (schema.FeedbackStats, error) {
	stats := schema.FeedbackStats{
		ByCategory: make(map[schema.FeedbackCategory]int),
		ByRating:   make(map[int]int),
	}
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(rating), 0)::double precision FROM feedback
	`).Scan(&stats.Total, &stats.AverageRating)
	if err != nil {
		return schema.FeedbackStats{}, fmt.Errorf("feedback totals: %w", err)
	}

	rows, err := s.db.pool.Query(ctx, `
		SELECT category, rating, COUNT(*) FROM feedback GROUP BY category, rating
	`)
	if err != nil {
		return schema.FeedbackStats{}, fmt.Errorf("feedback breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category schema.FeedbackCategory
			rating   int
			n        int
		)
		if err := rows.Scan(&category, &rating, &n); err != nil {
			return schema.FeedbackStats{}, fmt.Errorf("scan feedback breakdown: %w", err)
		}
		stats.ByCategory[category] += n
		stats.ByRating[rating] += n
	}
	if rows.Err() != nil {
		return schema.FeedbackStats{}, rows.Err()
	}
	return stats, nil
}

func (s *FeedbackStore) Recent(ctx context.Context, limit int) ([]schema.FeedbackRecord, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, user_id, category, rating, comment, page, created_at
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent feedback: %w", err)
	}
	defer rows.Close()

	var out []schema.FeedbackRecord
	for rows.Next() {
		var f schema.FeedbackRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.Rating,
			&f.Comment, &f.Page, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
