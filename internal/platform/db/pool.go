// Package db owns the Postgres connection pool, the schema migrator,
// and the database health endpoint.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// connMaxLifetime recycles connections so long-lived ones do not pin
	// a failed-over primary.
	connMaxLifetime = 30 * time.Minute

	// connMaxIdleTime releases idle connections between the morning
	// ingest burst and the rest of the day.
	connMaxIdleTime = 5 * time.Minute

	pingTimeout = 5 * time.Second
)

// NewPool opens a pgx pool against databaseURL and verifies it with a
// bounded ping before handing it back.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = connMaxLifetime
	cfg.MaxConnIdleTime = connMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
