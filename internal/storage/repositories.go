package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

var _ core.RepositoryStore = (*RepositoryStore)(nil)

// RepositoryStore persists connected git repositories. The clone URL
// carries a unique constraint so concurrent connects of the same
// repository surface as schema.ErrRepositoryExists.
type RepositoryStore struct {
	db *DB
}

func NewRepositoryStore(db *DB) *RepositoryStore {
	return &RepositoryStore{db: db}
}

const repositoryColumns = `id, provider, name, clone_url, default_branch,
	sync_status, last_synced_at, last_sync_error, connected_at`

func (s *RepositoryStore) Create(ctx context.Context, r schema.GitRepository) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO repositories (id, provider, name, clone_url,
			default_branch, sync_status, last_synced_at, last_sync_error,
			connected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Provider, r.Name, r.CloneURL, r.DefaultBranch, r.SyncStatus,
		r.LastSyncedAt, r.LastSyncError, r.ConnectedAt)
	if err != nil {
		if translated := translateError(err); errors.Is(translated, schema.ErrRepositoryExists) {
			return translated
		}
		return fmt.Errorf("insert repository: %w", err)
	}
	return nil
}

func (s *RepositoryStore) Get(ctx context.Context, id schema.RepositoryID) (schema.GitRepository, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+repositoryColumns+` FROM repositories WHERE id = $1
	`, id)
	return scanRepository(row, "select repository")
}

func (s *RepositoryStore) GetByCloneURL(ctx context.Context, cloneURL string) (schema.GitRepository, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+repositoryColumns+` FROM repositories WHERE clone_url = $1
	`, cloneURL)
	return scanRepository(row, "select repository by clone url")
}

func (s *RepositoryStore) List(ctx context.Context) ([]schema.GitRepository, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT ` + repositoryColumns + ` FROM repositories
		ORDER BY connected_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select repositories: %w", err)
	}
	defer rows.Close()

	var out []schema.GitRepository
	for rows.Next() {
		var r schema.GitRepository
		if err := rows.Scan(&r.ID, &r.Provider, &r.Name, &r.CloneURL,
			&r.DefaultBranch, &r.SyncStatus, &r.LastSyncedAt,
			&r.LastSyncError, &r.ConnectedAt); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RepositoryStore) Update(ctx context.Context, r schema.GitRepository) error {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE repositories
		SET provider = $2, name = $3, clone_url = $4, default_branch = $5,
			sync_status = $6, last_synced_at = $7, last_sync_error = $8
		WHERE id = $1
	`, r.ID, r.Provider, r.Name, r.CloneURL, r.DefaultBranch, r.SyncStatus,
		r.LastSyncedAt, r.LastSyncError)
	if err != nil {
		return fmt.Errorf("update repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schema.ErrRepositoryNotFound
	}
	return nil
}

func (s *RepositoryStore) Delete(ctx context.Context, id schema.RepositoryID) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schema.ErrRepositoryNotFound
	}
	return nil
}

func scanRepository(row pgx.Row, op string) (schema.GitRepository, error) {
	var r schema.GitRepository
	err := row.Scan(&r.ID, &r.Provider, &r.Name, &r.CloneURL,
		&r.DefaultBranch, &r.SyncStatus, &r.LastSyncedAt, &r.LastSyncError,
		&r.ConnectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schema.GitRepository{}, schema.ErrRepositoryNotFound
		}
		return schema.GitRepository{}, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}
