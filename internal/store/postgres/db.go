// Package postgres holds the PostgreSQL seat ledger: registrations, the
// waitlist and the atomic functions that decide between them.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type pool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// connectPostgres is overridable for tests.
var connectPostgres = func(ctx context.Context, dsn string) (pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return p, nil
}

// DB wraps the connection pool used by the ledger.
type DB struct {
	pool pool
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	p, err := connectPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{pool: p}, nil
}

// Ping checks connectivity. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return errors.New("postgres is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return errors.New("postgres is not initialized")
	}
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

// QueryRow lets DB serve as the ledger's querier.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Close releases the pool.
func (db *DB) Close() {
	if db != nil && db.pool != nil {
		db.pool.Close()
	}
}
