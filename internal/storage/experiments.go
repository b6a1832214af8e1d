package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.ExperimentStore = (*ExperimentStore)(nil)

// ExperimentStore persists experiments with their variants, sticky
// assignments, and raw exposure/conversion events.
type ExperimentStore struct {
	db *DB
}

func NewExperimentStore(db *DB) *ExperimentStore {
	return &ExperimentStore{db: db}
}

func (s *ExperimentStore) Create(ctx context.Context, e schema.Experiment) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO experiments (id, name, description, hypothesis,
				metric, status, started_at, ended_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.ID, e.Name, e.Description, e.Hypothesis, e.Metric, e.Status,
			e.StartedAt, e.EndedAt, e.CreatedAt)
		if err != nil {
			return err
		}
		return insertVariants(ctx, tx, e.ID, e.Variants)
	})
	if err != nil {
		return fmt.Errorf("insert experiment: %w", translateError(err))
	}
	return nil
}

func (s *ExperimentStore) Get(ctx context.Context, id schema.ExperimentID) (schema.Experiment, error) {
	var e schema.Experiment
	err := s.db.pool.QueryRow(ctx, `
		SELECT id, name, description, hypothesis, metric, status,
			started_at, ended_at, created_at
		FROM experiments WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Description, &e.Hypothesis, &e.Metric,
		&e.Status, &e.StartedAt, &e.EndedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schema.Experiment{}, schema.ErrExperimentNotFound
		}
		return schema.Experiment{}, fmt.Errorf("select experiment: %w", err)
	}
	variants, err := s.loadVariants(ctx, []schema.ExperimentID{e.ID})
	if err != nil {
		return schema.Experiment{}, err
	}
	e.Variants = variants[e.ID]
	return e, nil
}

func (s *ExperimentStore) List(ctx context.Context, status schema.ExperimentStatus) ([]schema.Experiment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.pool.Query(ctx, `
			SELECT id, name, description, hypothesis, metric, status,
				started_at, ended_at, created_at
			FROM experiments ORDER BY created_at DESC
		`)
	} else {
		rows, err = s.db.pool.Query(ctx, `
			SELECT id, name, description, hypothesis, metric, status,
				started_at, ended_at, created_at
			FROM experiments WHERE status = $1 ORDER BY created_at DESC
		`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("select experiments: %w", err)
	}
	defer rows.Close()

	var (
		out []schema.Experiment
		ids []schema.ExperimentID
	)
	for rows.Next() {
		var e schema.Experiment
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Hypothesis,
			&e.Metric, &e.Status, &e.StartedAt, &e.EndedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	variants, err := s.loadVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Variants = variants[out[i].ID]
	}
	return out, nil
}

func (s *ExperimentStore) Update(ctx context.Context, e schema.Experiment) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE experiments
			SET name = $2, description = $3, hypothesis = $4, metric = $5,
				status = $6, started_at = $7, ended_at = $8
			WHERE id = $1
		`, e.ID, e.Name, e.Description, e.Hypothesis, e.Metric, e.Status,
			e.StartedAt, e.EndedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return schema.ErrExperimentNotFound
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM experiment_variants WHERE experiment_id = $1
		`, e.ID); err != nil {
			return err
		}
		return insertVariants(ctx, tx, e.ID, e.Variants)
	})
	if err != nil {
		if errors.Is(err, schema.ErrExperimentNotFound) {
			return err
		}
		return fmt.Errorf("update experiment: %w", err)
	}
	return nil
}

func (s *ExperimentStore) Delete(ctx context.Context, id schema.ExperimentID) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schema.ErrExperimentNotFound
	}
	return nil
}

func (s *ExperimentStore) SaveAssignment(ctx context.Context, id schema.ExperimentID, subject string, variant schema.VariantID) (schema.VariantID, error) {
	var winner schema.VariantID
	err := s.db.pool.QueryRow(ctx, `
		INSERT INTO experiment_assignments (experiment_id, subject, variant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (experiment_id, subject) DO NOTHING
		RETURNING variant_id
	`, id, subject, variant).Scan(&winner)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another writer got there first; serve its assignment.
		err = s.db.pool.QueryRow(ctx, `
			SELECT variant_id FROM experiment_assignments
			WHERE experiment_id = $1 AND subject = $2
		`, id, subject).Scan(&winner)
	}
	if err != nil {
		return "", fmt.Errorf("save assignment: %w", err)
	}
	return winner, nil
}

func (s *ExperimentStore) GetAssignment(ctx context.Context, id schema.ExperimentID, subject string) (schema.VariantID, bool, error) {
	var variant schema.VariantID
	err := s.db.pool.QueryRow(ctx, `
		SELECT variant_id FROM experiment_assignments
		WHERE experiment_id = $1 AND subject = $2
	`, id, subject).Scan(&variant)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select assignment: %w", err)
	}
	return variant, true, nil
}

func (s *ExperimentStore) RecordEvent(ctx context.Context, id schema.ExperimentID, subject string, variant schema.VariantID, kind schema.ExperimentEventKind, at time.Time) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO experiment_events (experiment_id, subject, variant_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, subject, variant, kind, at)
	if err != nil {
		return fmt.Errorf("insert experiment event: %w", err)
	}
	return nil
}

func (s *ExperimentStore) Counts(ctx context.Context, id schema.ExperimentID) ([]core.VariantCount, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT variant_id,
			COUNT(*) FILTER (WHERE kind = 'exposure'),
			COUNT(*) FILTER (WHERE kind = 'conversion')
		FROM experiment_events
		WHERE experiment_id = $1
		GROUP BY variant_id
		ORDER BY variant_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("count experiment events: %w", err)
	}
	defer rows.Close()

	var out []core.VariantCount
	for rows.Next() {
		var c core.VariantCount
		if err := rows.Scan(&c.VariantID, &c.Exposures, &c.Conversions); err != nil {
			return nil, fmt.Errorf("scan variant count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ExperimentStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertVariants(ctx context.Context, tx pgx.Tx, id schema.ExperimentID, variants []schema.Variant) error {
	for i, v := range variants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO experiment_variants (experiment_id, id, name, weight, control, ord)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, v.ID, v.Name, v.Weight, v.Control, i); err != nil {
			return err
		}
	}
	return nil
}

// loadVariants fetches variants for a batch of experiments, preserving
// each experiment's creation order.
func (s *ExperimentStore) loadVariants(ctx context.Context, ids []schema.ExperimentID) (map[schema.ExperimentID][]schema.Variant, error) {
	out := make(map[schema.ExperimentID][]schema.Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.db.pool.Query(ctx, `
		SELECT experiment_id, id, name, weight, control
		FROM experiment_variants
		WHERE experiment_id = ANY($1)
		ORDER BY experiment_id, ord
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("select variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner schema.ExperimentID
			v     schema.Variant
		)
		if err := rows.Scan(&owner, &v.ID, &v.Name, &v.Weight, &v.Control); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out[owner] = append(out[owner], v)
	}
	return out, rows.Err()
}
