// Package db holds the Postgres pool plumbing shared by the store and its tests.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
	// Prepared maps statement names to SQL prepared on every new connection.
	Prepared map[string]string
}

// Open creates a pgx pool and verifies connectivity.
func Open(ctx context.Context, connString string, cfg PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if cfg.MaxConns > 0 {
		pgxCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pgxCfg.MinConns = cfg.MinConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if len(cfg.Prepared) > 0 {
		pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			for name, sql := range cfg.Prepared {
				if _, err := conn.Prepare(ctx, name, sql); err != nil {
					return eris.Wrapf(err, "db: prepare %s", name)
				}
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "db: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping")
	}
	return pool, nil
}

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on error.
func InTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "db: commit tx")
}
