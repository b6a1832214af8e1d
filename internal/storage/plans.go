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

var _ core.PlanStore = (*PlanStore)(nil)

// PlanStore persists deployment plans. The log tail rides along as a
// text array so GetPlan can serve it without a separate query.
type PlanStore struct {
	db *DB
}

func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, assessment_id, repository_id, template_id,
	parameters, status, pull_request_id, monthly_cost_usd, approved_by,
	log_tail, created_at, updated_at`

func (s *PlanStore) Create(ctx context.Context, p schema.DeploymentPlan) error {
	parameters, err := marshalParameters(p.Parameters)
	if err != nil {
		return err
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO plans (id, assessment_id, repository_id, template_id,
			parameters, status, pull_request_id, monthly_cost_usd,
			approved_by, log_tail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.AssessmentID, p.RepositoryID, p.TemplateID, parameters,
		p.Status, p.PullRequestID, p.MonthlyCostUSD, p.ApprovedBy,
		logTail(p.LogTail), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *PlanStore) Get(ctx context.Context, id schema.PlanID) (schema.DeploymentPlan, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+planColumns+` FROM plans WHERE id = $1
	`, id)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schema.DeploymentPlan{}, schema.ErrPlanNotFound
		}
		return schema.DeploymentPlan{}, fmt.Errorf("select plan: %w", err)
	}
	return p, nil
}

func (s *PlanStore) List(ctx context.Context, status schema.PlanStatus, offset, limit int) ([]schema.DeploymentPlan, int, error) {
	var total int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM plans WHERE ($1 = '' OR status = $1)
	`, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count plans: %w", err)
	}
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+planColumns+` FROM plans
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("select plans: %w", err)
	}
	defer rows.Close()

	var out []schema.DeploymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return out, total, nil
}

func (s *PlanStore) Update(ctx context.Context, p schema.DeploymentPlan) error {
	parameters, err := marshalParameters(p.Parameters)
	if err != nil {
		return err
	}
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE plans
		SET status = $2, pull_request_id = $3, monthly_cost_usd = $4,
			approved_by = $5, log_tail = $6, parameters = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Status, p.PullRequestID, p.MonthlyCostUSD, p.ApprovedBy,
		logTail(p.LogTail), parameters, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schema.ErrPlanNotFound
	}
	return nil
}

func (s *PlanStore) Recent(ctx context.Context, limit int) ([]schema.DeploymentPlan, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+planColumns+` FROM plans
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent plans: %w", err)
	}
	defer rows.Close()

	var out []schema.DeploymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func marshalParameters(params map[string]string) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal plan parameters: %w", err)
	}
	return blob, nil
}

// logTail keeps array parameters non-nil so the column default never
// masks an intentional empty tail.
func logTail(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}

func scanPlan(row pgx.Row) (schema.DeploymentPlan, error) {
	var (
		p          schema.DeploymentPlan
		parameters []byte
		tail       []string
	)
	err := row.Scan(&p.ID, &p.AssessmentID, &p.RepositoryID, &p.TemplateID,
		&parameters, &p.Status, &p.PullRequestID, &p.MonthlyCostUSD,
		&p.ApprovedBy, &tail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return schema.DeploymentPlan{}, err
	}
	if len(parameters) > 0 && string(parameters) != "{}" {
		if err := json.Unmarshal(parameters, &p.Parameters); err != nil {
			return schema.DeploymentPlan{}, fmt.Errorf("unmarshal plan parameters: %w", err)
		}
	}
	if len(tail) > 0 {
		p.LogTail = tail
	}
	return p, nil
}
