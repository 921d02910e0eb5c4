// Package db provides the Postgres connection pool used by all repositories.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds Postgres pool settings.
type Config struct {
	URL      string
	MaxConns int
}

// Pool wraps a pgx connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// New creates a Postgres connection pool. The pool connects lazily; use
// WaitForReady to block until the database accepts connections.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Pgx exposes the underlying pgx pool for repositories.
func (p *Pool) Pgx() *pgxpool.Pool { return p.pool }

// Ping verifies a connection can be acquired.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// WaitForReady pings the database until it responds or the timeout elapses.
func (p *Pool) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = p.Ping(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for database: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("database not ready after %s: %w", timeout, lastErr)
}

// Close releases all pool connections.
func (p *Pool) Close() { p.pool.Close() }
