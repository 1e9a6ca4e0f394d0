// Package postgres implements the datasource Introspector for PostgreSQL
// and wire-compatible engines.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/retry"
)

var errNotConnected = errors.New("postgres adapter is not connected")

// Adapter provides PostgreSQL introspection over a pgx pool.
type Adapter struct {
	poolConfig *pgxpool.Config
	opts       datasource.Options
	logger     *zap.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

var _ datasource.Introspector = (*Adapter)(nil)

// NewAdapter parses rawURL and prepares the pool configuration. No connection
// is made until Connect. When running in Docker, localhost is resolved to
// host.docker.internal.
func NewAdapter(rawURL string, opts datasource.Options, logger *zap.Logger) (*Adapter, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ResolveURLForDocker(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	if opts.PoolMaxConns > 0 {
		poolConfig.MaxConns = opts.PoolMaxConns
	}
	if opts.PoolMinConns > 0 {
		poolConfig.MinConns = opts.PoolMinConns
	}
	if opts.ConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.ConnIdleTime
	}

	return &Adapter{
		poolConfig: poolConfig,
		opts:       opts,
		logger:     logger.Named("postgres"),
	}, nil
}

// Connect opens the pool and pings the server. Transient failures are retried;
// authentication and unknown-database errors fail immediately.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		return nil
	}

	var pool *pgxpool.Pool
	err := retry.DoIfRetryable(ctx, a.opts.Retry, func() error {
		p, err := pgxpool.NewWithConfig(ctx, a.poolConfig.Copy())
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		a.logger.Error("Failed to connect",
			zap.String("host", a.poolConfig.ConnConfig.Host),
			zap.String("database", a.poolConfig.ConnConfig.Database),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	a.pool = pool
	a.logger.Info("Connected",
		zap.String("host", a.poolConfig.ConnConfig.Host),
		zap.String("database", a.poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", a.poolConfig.MaxConns))
	return nil
}

// Close releases the pool. Safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// Engine returns "postgres".
func (a *Adapter) Engine() string {
	return config.EnginePostgres
}

func (a *Adapter) getPool() (*pgxpool.Pool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.pool == nil {
		return nil, errNotConnected
	}
	return a.pool, nil
}

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return pgx.Identifier{tableName}.Sanitize()
	}
	return pgx.Identifier{schemaName, tableName}.Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
