package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/refresh"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services/workqueue"
)

// MetadataService is the cached view of one database that the MCP tools and
// the CLI drive. Reads never touch the live database except ListTables and
// RunReadOnlyQuery; refreshes are always explicit.
type MetadataService interface {
	// Connect opens the introspector's pool.
	Connect(ctx context.Context) error

	// Close waits for background refreshes and releases the pool.
	Close(ctx context.Context) error

	// Engine returns the engine name of the connected database.
	Engine() string

	// RunReadOnlyQuery runs caller SQL in a read-only, rolled-back transaction.
	RunReadOnlyQuery(ctx context.Context, query string) *datasource.QueryResult

	// ListTables returns base tables of schema from the live database.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// ListCachedTables returns tables with a cached document, without touching
	// the live database.
	ListCachedTables(ctx context.Context, schema string) ([]string, error)

	// GetTableSchema returns the cached document for table. A table mid-refresh
	// yields ErrRefreshInProgress; a missing document yields ErrCacheNotReady.
	GetTableSchema(ctx context.Context, table, schema string) (*models.TableMetadata, error)

	// ResolveTablesToRefresh returns [table] when named, else every base table
	// of schema. More than the table limit yields ErrTooManyTables.
	ResolveTablesToRefresh(ctx context.Context, schema, table string) ([]string, error)

	// GetAlreadyRefreshingTables returns the subset of tables currently
	// marked, in request order.
	GetAlreadyRefreshingTables(ctx context.Context, schema string, tables []string) ([]string, error)

	// RefreshTableMetadata refreshes synchronously and reports per-table outcomes.
	RefreshTableMetadata(ctx context.Context, schema, table string) (*RefreshResult, error)

	// StartRefresh resolves and marks tables, then refreshes them in the
	// background. The returned handle identifies the task.
	StartRefresh(ctx context.Context, schema, table string) (*RefreshHandle, error)

	// RefreshStatus reports a background task, or the tables currently
	// marked in schema when taskID is empty.
	RefreshStatus(ctx context.Context, schema, taskID string) (*RefreshStatus, error)

	// ClearCache drops cached documents: one table, a schema (empty table) or
	// everything (empty schema).
	ClearCache(ctx context.Context, schema, table string) error
}

// MetadataConfig carries the refresh settings of a MetadataService.
type MetadataConfig struct {
	TableLimit       int
	TableConcurrency int
	// MaxInFlight caps introspection round trips across all running batches.
	// It must stay below the pool size so other callers keep a connection.
	MaxInFlight int
	// BackgroundBatches caps how many StartRefresh batches run at once.
	BackgroundBatches int
	// TaskHistory is how many finished background tasks RefreshStatus can report.
	TaskHistory int
	Limits      RefreshLimits
}

// DefaultMetadataConfig returns the default refresh settings.
func DefaultMetadataConfig() MetadataConfig {
	return MetadataConfig{
		TableLimit:        5,
		TableConcurrency:  5,
		MaxInFlight:       8,
		BackgroundBatches: 2,
		TaskHistory:       100,
		Limits:            DefaultRefreshLimits(),
	}
}

type metadataService struct {
	introspector datasource.Introspector
	store        cache.Store
	tracker      refresh.Tracker
	refresher    *TableRefresher
	queue        *workqueue.Queue
	cfg          MetadataConfig
	logger       *zap.Logger
}

var _ MetadataService = (*metadataService)(nil)

// NewMetadataService wires the cache store, the refresh tracker and the
// introspector together. The introspector is connected by Connect.
func NewMetadataService(
	introspector datasource.Introspector,
	store cache.Store,
	tracker refresh.Tracker,
	cfg MetadataConfig,
	logger *zap.Logger,
) MetadataService {
	if cfg.TableLimit <= 0 {
		cfg.TableLimit = DefaultMetadataConfig().TableLimit
	}
	if cfg.TableConcurrency <= 0 {
		cfg.TableConcurrency = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	queue := workqueue.New(logger,
		workqueue.WithMaxConcurrent(cfg.BackgroundBatches),
		workqueue.WithHistoryLimit(cfg.TaskHistory))
	queueLogger := logger.Named("refresh-tasks")
	queue.SetOnUpdate(func(snap workqueue.TaskSnapshot) {
		queueLogger.Debug("Refresh task state",
			zap.String("task_id", snap.ID),
			zap.String("status", string(snap.Status)))
	})

	return &metadataService{
		introspector: introspector,
		store:        store,
		tracker:      tracker,
		refresher:    NewTableRefresher(newBoundedIntrospector(introspector, cfg.MaxInFlight), store, cfg.Limits, logger),
		queue:        queue,
		cfg:          cfg,
		logger:       logger.Named("metadata"),
	}
}

func (s *metadataService) Connect(ctx context.Context) error {
	return s.introspector.Connect(ctx)
}

func (s *metadataService) Close(ctx context.Context) error {
	s.queue.Close()
	if err := s.queue.Wait(ctx); err != nil && ctx.Err() != nil {
		s.logger.Warn("Closing with refreshes still running", zap.Error(err))
	}
	return s.introspector.Close()
}

func (s *metadataService) Engine() string {
	return s.introspector.Engine()
}

func (s *metadataService) RunReadOnlyQuery(ctx context.Context, query string) *datasource.QueryResult {
	return s.introspector.RunReadOnlyQuery(ctx, query)
}

func (s *metadataService) ListTables(ctx context.Context, schema string) ([]string, error) {
	tables, err := s.introspector.ListTables(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	return tables, nil
}

func (s *metadataService) ListCachedTables(ctx context.Context, schema string) ([]string, error) {
	return s.store.ListCachedTables(ctx, schema)
}

func (s *metadataService) GetTableSchema(ctx context.Context, table, schema string) (*models.TableMetadata, error) {
	marked, err := s.tracker.IsMarked(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("check refresh state of %s: %w", table, err)
	}
	if marked {
		return nil, apperrors.New(apperrors.ErrRefreshInProgress,
			fmt.Sprintf("Table '%s' is currently being refreshed. Please try again later.", table))
	}

	doc, err := s.store.Read(ctx, schema, table)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrCacheNotReady, "Metadata cache not ready. Please run refresh_metadata.")
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *metadataService) ClearCache(ctx context.Context, schema, table string) error {
	if err := refresh.EnsureClearable(ctx, s.tracker, schema, table); err != nil {
		return err
	}

	if err := s.store.Clear(ctx, schema, table); err != nil {
		return err
	}
	s.logger.Info("Cache cleared", zap.String("schema", schema), zap.String("table", table))
	return nil
}
