// Package database opens the Postgres pool backing the mint ledger and applies
// the embedded schema.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mintgate/internal/platform/config"
)

const pingTimeout = 5 * time.Second

// ErrNotConfigured is returned by Health on a pool that was never opened.
var ErrNotConfigured = errors.New("database not configured")

// Pool owns the *sql.DB shared by the ledger store and the tools.
type Pool struct {
	db *sql.DB
}

// New opens and pings the pool. It returns (nil, nil) when no URL is set so
// callers can fall back to the in-memory ledger.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate brings the schema up to date with fsys.
func (p *Pool) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	if p == nil || p.db == nil {
		return nil, ErrNotConfigured
	}
	return Migrate(ctx, p.db, fsys)
}

// Health pings the database; admission is impossible without it.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNotConfigured
	}
	return p.db.PingContext(ctx)
}

// Close closes the pool. Safe on a nil pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
