package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.AssessmentStore = (*AssessmentStore)(nil)

// AssessmentStore persists assessments and their generated reports.
type AssessmentStore struct {
	db *DB
}

func NewAssessmentStore(db *DB) *AssessmentStore {
	return &AssessmentStore{db: db}
}

const assessmentColumns = `id, owner_id, title, org_name, provider, status,
	current_step, total_steps, completion_pct, responses, scores, revision,
	created_at, updated_at`

func (s *AssessmentStore) Create(ctx context.Context, a schema.Assessment) error {
	responses, scores, err := marshalAssessmentBlobs(a)
	if err != nil {
		return err
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO assessments (id, owner_id, title, org_name, provider,
			status, current_step, total_steps, completion_pct, responses,
			scores, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.OwnerID, a.Title, a.OrgName, a.Provider, a.Status,
		a.CurrentStep, a.TotalSteps, a.CompletionPct, responses, scores,
		a.Revision, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *AssessmentStore) Get(ctx context.Context, id schema.AssessmentID) (schema.Assessment, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+assessmentColumns+` FROM assessments WHERE id = $1
	`, id)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schema.Assessment{}, schema.ErrAssessmentNotFound
		}
		return schema.Assessment{}, fmt.Errorf("select assessment: %w", err)
	}
	return a, nil
}

func (s *AssessmentStore) ListByOwner(ctx context.Context, owner schema.UserID, status schema.AssessmentStatus, offset, limit int) ([]schema.Assessment, int, error) {
	var (
		total int
		rows  pgx.Rows
		err   error
	)
	if status == "" {
		err = s.db.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM assessments
			WHERE owner_id = $1 AND status <> 'archived'
		`, owner).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("count assessments: %w", err)
		}
		rows, err = s.db.pool.Query(ctx, `
			SELECT `+assessmentColumns+` FROM assessments
			WHERE owner_id = $1 AND status <> 'archived'
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, owner, limit, offset)
	} else {
		err = s.db.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM assessments
			WHERE owner_id = $1 AND status = $2
		`, owner, status).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("count assessments: %w", err)
		}
		rows, err = s.db.pool.Query(ctx, `
			SELECT `+assessmentColumns+` FROM assessments
			WHERE owner_id = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`, owner, status, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select assessments: %w", err)
	}
	defer rows.Close()

	var out []schema.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return out, total, nil
}

func (s *AssessmentStore) Update(ctx context.Context, a schema.Assessment, expected int64) (schema.Assessment, error) {
	responses, scores, err := marshalAssessmentBlobs(a)
	if err != nil {
		return schema.Assessment{}, err
	}
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE assessments
		SET title = $2, org_name = $3, provider = $4, status = $5,
			current_step = $6, total_steps = $7, completion_pct = $8,
			responses = $9, scores = $10, revision = $11, updated_at = $12
		WHERE id = $1 AND revision = $13
	`, a.ID, a.Title, a.OrgName, a.Provider, a.Status, a.CurrentStep,
		a.TotalSteps, a.CompletionPct, responses, scores, expected+1,
		a.UpdatedAt, expected)
	if err != nil {
		return schema.Assessment{}, fmt.Errorf("update assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale revision.
		if _, err := s.Get(ctx, a.ID); err != nil {
			return schema.Assessment{}, err
		}
		return schema.Assessment{}, schema.ErrRevisionConflict
	}
	a.Revision = expected + 1
	return a, nil
}

func (s *AssessmentStore) SaveReport(ctx context.Context, r schema.Report) error {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return fmt.Errorf("marshal report sections: %w", err)
	}
	recommendations, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal report recommendations: %w", err)
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO reports (assessment_id, overall_score, sections,
			recommendations, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (assessment_id) DO UPDATE
		SET overall_score = EXCLUDED.overall_score,
			sections = EXCLUDED.sections,
			recommendations = EXCLUDED.recommendations,
			generated_at = EXCLUDED.generated_at
	`, r.AssessmentID, r.OverallScore, sections, recommendations, r.GeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return nil
}

func (s *AssessmentStore) GetReport(ctx context.Context, id schema.AssessmentID) (schema.Report, error) {
	var (
		r               schema.Report
		sections        []byte
		recommendations []byte
	)
	err := s.db.pool.QueryRow(ctx, `
		SELECT assessment_id, overall_score, sections, recommendations, generated_at
		FROM reports WHERE assessment_id = $1
	`, id).Scan(&r.AssessmentID, &r.OverallScore, &sections, &recommendations, &r.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schema.Report{}, schema.ErrReportNotFound
		}
		return schema.Report{}, fmt.Errorf("select report: %w", err)
	}
	if err := json.Unmarshal(sections, &r.Sections); err != nil {
		return schema.Report{}, fmt.Errorf("unmarshal report sections: %w", err)
	}
	if err := json.Unmarshal(recommendations, &r.Recommendations); err != nil {
		return schema.Report{}, fmt.Errorf("unmarshal report recommendations: %w", err)
	}
	return r, nil
}

func (s *AssessmentStore) Recent(ctx context.Context, limit int) ([]schema.Assessment, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+assessmentColumns+` FROM assessments
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent assessments: %w", err)
	}
	defer rows.Close()

	var out []schema.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalAssessmentBlobs(a schema.Assessment) (responses, scores []byte, err error) {
	if a.Responses == nil {
		responses = []byte("{}")
	} else if responses, err = json.Marshal(a.Responses); err != nil {
		return nil, nil, fmt.Errorf("marshal responses: %w", err)
	}
	if a.Scores == nil {
		scores = []byte("[]")
	} else if scores, err = json.Marshal(a.Scores); err != nil {
		return nil, nil, fmt.Errorf("marshal scores: %w", err)
	}
	return responses, scores, nil
}

func scanAssessment(row pgx.Row) (schema.Assessment, error) {
	var (
		a         schema.Assessment
		responses []byte
		scores    []byte
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.OrgName, &a.Provider,
		&a.Status, &a.CurrentStep, &a.TotalSteps, &a.CompletionPct,
		&responses, &scores, &a.Revision, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return schema.Assessment{}, err
	}
	if len(responses) > 0 && string(responses) != "{}" {
		if err := json.Unmarshal(responses, &a.Responses); err != nil {
			return schema.Assessment{}, fmt.Errorf("unmarshal responses: %w", err)
		}
	}
	if len(scores) > 0 && string(scores) != "[]" {
		if err := json.Unmarshal(scores, &a.Scores); err != nil {
			return schema.Assessment{}, fmt.Errorf("unmarshal scores: %w", err)
		}
	}
	return a, nil
}
