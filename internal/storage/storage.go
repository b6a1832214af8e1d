// Package storage implements the persistence interfaces of core on
// Postgres. One store per aggregate, all sharing a single pgx pool.
// pgx.ErrNoRows is translated to the matching not-found sentinel at
// this boundary so callers only ever see domain errors.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"pkt.systems/pslog"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/storage/migrations"
	"github.com/inframind/inframind/schema"
)

// DB owns the connection pool shared by the aggregate stores.
type DB struct {
	pool *pgxpool.Pool
	log  pslog.Logger
}

// Open connects to Postgres and, when cfg.Migrate is set, applies the
// embedded migrations in filename order.
func Open(ctx context.Context, cfg appconfig.DatabaseConfig, log pslog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := &DB{pool: pool, log: log}
	if cfg.Migrate {
		if err := db.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close releases the pool. Safe to call once after all stores are done.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping reports connectivity, used by health checks and doctor.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		src, err := fs.ReadFile(migrations.Files, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := db.pool.Exec(ctx, string(src)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if db.log != nil {
			db.log.Debug("storage migration applied", "file", entry.Name())
		}
	}
	return nil
}

// translateError maps unique-constraint violations to domain sentinels.
// Everything else passes through for the caller to wrap.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "repositories_clone_url_key" {
			return schema.ErrRepositoryExists
		}
	}
	return err
}
