//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package database provides PostgreSQL connectivity and the hybrid
// lexical+vector evidence search.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evidentiary/evidentiary-server/internal/config"
)

const (
	// DefaultAcquireTimeout bounds how long a query waits for a pooled
	// connection before falling back to a direct one.
	DefaultAcquireTimeout = 3 * time.Second
)

// Pool wraps a pgxpool connection pool. Connections are checked out for
// the duration of a single query and returned immediately; callers never
// hold one across a pipeline node boundary.
type Pool struct {
	pool           *pgxpool.Pool
	connStr        string
	config         config.DatabaseConfig
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// NewPool creates a new database connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connStr := buildConnectionString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	acquireTimeout := DefaultAcquireTimeout
	if cfg.AcquireTimeoutSeconds > 0 {
		acquireTimeout = time.Duration(cfg.AcquireTimeoutSeconds) * time.Second
	}

	return &Pool{
		pool:           pool,
		connStr:        connStr,
		config:         cfg,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}, nil
}

// buildConnectionString constructs a PostgreSQL connection string.
func buildConnectionString(cfg config.DatabaseConfig) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("host=%s", cfg.Host))
	parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
	parts = append(parts, fmt.Sprintf("dbname=%s", cfg.Database))

	// Username: config > PGUSER > USER
	username := cfg.Username
	if username == "" {
		username = os.Getenv("PGUSER")
	}
	if username == "" {
		username = os.Getenv("USER")
	}
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", username))
	}

	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}

	if cfg.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
	}

	// Certificate-based authentication
	if cfg.SSLCert != "" {
		parts = append(parts, fmt.Sprintf("sslcert=%s", cfg.SSLCert))
	}
	if cfg.SSLKey != "" {
		parts = append(parts, fmt.Sprintf("sslkey=%s", cfg.SSLKey))
	}
	if cfg.SSLRootCA != "" {
		parts = append(parts, fmt.Sprintf("sslrootcert=%s", cfg.SSLRootCA))
	}

	return strings.Join(parts, " ")
}

// query runs a query on a pooled connection, falling back to a direct
// unpooled connection when the pool stays exhausted past the acquire
// timeout.
func (p *Pool) query(
	ctx context.Context,
	sql string,
	args ...interface{},
) (pgx.Rows, func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	conn, err := p.pool.Acquire(acquireCtx)
	cancel()
	if err == nil {
		rows, qerr := conn.Query(ctx, sql, args...)
		if qerr != nil {
			conn.Release()
			return nil, nil, qerr
		}
		return rows, conn.Release, nil
	}

	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	p.logger.Warn("connection pool exhausted, using direct connection")

	direct, derr := pgx.Connect(ctx, p.connStr)
	if derr != nil {
		return nil, nil, fmt.Errorf("direct connection failed: %w", derr)
	}

	rows, qerr := direct.Query(ctx, sql, args...)
	if qerr != nil {
		_ = direct.Close(context.Background())
		return nil, nil, qerr
	}

	release := func() {
		_ = direct.Close(context.Background())
	}
	return rows, release, nil
}

// Ping verifies the database connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
