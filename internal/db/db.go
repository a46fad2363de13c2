// Package db provides database connection handling for the API server.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	// DefaultMaxOpenConns bounds the connection pool. Grade recomputes fan
	// out queries per market bucket, so the pool must not grow unbounded.
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns keeps warm connections for the steady-state
	// interaction write path.
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime recycles connections so load balancer and
	// failover changes propagate.
	DefaultConnMaxLifetime = 30 * time.Minute

	// pingTimeout bounds the initial connectivity check.
	pingTimeout = 5 * time.Second
)

// Connect opens a PostgreSQL connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(DefaultMaxOpenConns)
	pool.SetMaxIdleConns(DefaultMaxIdleConns)
	pool.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
