// Package mysql implements the datasource Introspector for MySQL using
// database/sql and the go-sql-driver driver.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/retry"
)

var errNotConnected = errors.New("mysql adapter is not connected")

// Adapter provides MySQL introspection. A schema maps to a MySQL database.
type Adapter struct {
	dsn    *mysqldriver.Config
	opts   datasource.Options
	logger *zap.Logger

	mu sync.RWMutex
	db *sql.DB
}

var _ datasource.Introspector = (*Adapter)(nil)

// NewAdapter parses rawURL into a driver config. No connection is made
// until Connect.
func NewAdapter(rawURL string, opts datasource.Options, logger *zap.Logger) (*Adapter, error) {
	dsn, err := dsnFromURL(config.ResolveURLForDocker(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}
	return &Adapter{
		dsn:    dsn,
		opts:   opts,
		logger: logger.Named("mysql"),
	}, nil
}

// newAdapterWithDB wraps an already opened handle.
func newAdapterWithDB(db *sql.DB, opts datasource.Options, logger *zap.Logger) *Adapter {
	return &Adapter{
		dsn:    mysqldriver.NewConfig(),
		opts:   opts,
		logger: logger.Named("mysql"),
		db:     db,
	}
}

// Connect opens the handle, sizes its pool and pings the server.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return nil
	}

	connector, err := mysqldriver.NewConnector(a.dsn)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}
	db := sql.OpenDB(connector)
	if a.opts.PoolMaxConns > 0 {
		db.SetMaxOpenConns(int(a.opts.PoolMaxConns))
	}
	if a.opts.PoolMinConns > 0 {
		db.SetMaxIdleConns(int(a.opts.PoolMinConns))
	}
	if a.opts.ConnIdleTime > 0 {
		db.SetConnMaxIdleTime(a.opts.ConnIdleTime)
	}

	err = retry.DoIfRetryable(ctx, a.opts.Retry, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		a.logger.Error("Failed to connect",
			zap.String("addr", a.dsn.Addr),
			zap.String("database", a.dsn.DBName),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	a.db = db
	a.logger.Info("Connected",
		zap.String("addr", a.dsn.Addr),
		zap.String("database", a.dsn.DBName),
		zap.Int32("max_conns", a.opts.PoolMaxConns))
	return nil
}

// Close releases the handle. Safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Engine returns "mysql".
func (a *Adapter) Engine() string {
	return config.EngineMySQL
}

func (a *Adapter) getDB() (*sql.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errNotConnected
	}
	return a.db, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// qualifiedTableName returns `schema`.`table`, or just `table` when schema
// is empty.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return quoteIdent(tableName)
	}
	return quoteIdent(schemaName) + "." + quoteIdent(tableName)
}
