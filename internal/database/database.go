// Package database holds the optional Postgres store for auth events.
// The dashboard runs without it; events then stay in memory.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName       = "mps-dashboard"
	defaultConnectTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("auth event store is not connected")

type Options struct {
	URL      string
	MaxConns int32
	MinConns int32
	// ConnectTimeout bounds start-up; a dead database must not hang boot.
	ConnectTimeout time.Duration
}

type DB struct {
	Pool *pgxpool.Pool
}

// New connects the auth event pool and verifies it with a ping.
func New(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open auth event pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach auth event store: %w", err)
	}

	slog.Info("auth event store connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return &DB{Pool: pool}, nil
}

// poolConfig sizes the pool for short single-row event writes and the
// occasional per-user listing.
func poolConfig(opts Options) (*pgxpool.Config, error) {
	if opts.URL == "" {
		return nil, errors.New("database URL is required")
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	minConns := min(max(opts.MinConns, 0), maxConns)

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	return cfg, nil
}

func (db *DB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}

// Health backs the "database" readiness check.
func (db *DB) Health(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return ErrNotConnected
	}
	return db.Pool.Ping(ctx)
}
