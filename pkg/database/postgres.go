// Package database opens the connections ekaya-dbmeta owns outright: the
// PostgreSQL pool used by the seed command and the Redis client behind the
// shared refresh tracker.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/retry"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnIdleTime time.Duration
	// Retry controls the initial ping; nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// NewConnection creates a PostgreSQL pool and waits until it answers a ping,
// retrying transient failures.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ResolveURLForDocker(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 4
	}
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	if err := retry.DoIfRetryable(ctx, cfg.Retry, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		logger.Error("PostgreSQL ping failed",
			zap.String("url", logging.SanitizeConnectionString(cfg.URL)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
