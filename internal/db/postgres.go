package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolOptions tunes the database/sql pool. Zero fields keep the defaults below.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

const (
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

// Open opens a Postgres pool through the pgx stdlib driver and pings it within PingTimeout.
// Caller must call Close when done.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: DATABASE_URL is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(orInt(opts.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orInt(opts.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(orDuration(opts.ConnMaxLifetime, defaultConnMaxLifetime))

	pingCtx, cancel := context.WithTimeout(ctx, orDuration(opts.PingTimeout, defaultPingTimeout))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
