package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// RefreshLimits bounds what one table refresh reads from the database.
type RefreshLimits struct {
	SampleLimit       int
	TopValues         int
	ColumnConcurrency int
}

// DefaultRefreshLimits returns the limits used when none are configured.
func DefaultRefreshLimits() RefreshLimits {
	return RefreshLimits{
		SampleLimit:       5,
		TopValues:         3,
		ColumnConcurrency: 4,
	}
}

// TableRefresher builds and stores the metadata document for one table.
type TableRefresher struct {
	introspector datasource.Introspector
	store        cache.Store
	limits       RefreshLimits
	logger       *zap.Logger
	now          func() time.Time
}

// NewTableRefresher creates a refresher over an already connected introspector.
func NewTableRefresher(introspector datasource.Introspector, store cache.Store, limits RefreshLimits, logger *zap.Logger) *TableRefresher {
	if limits.ColumnConcurrency <= 0 {
		limits.ColumnConcurrency = 1
	}
	return &TableRefresher{
		introspector: introspector,
		store:        store,
		limits:       limits,
		logger:       logger.Named("table-refresher"),
		now:          time.Now,
	}
}

// RefreshTable reads columns, samples, per-column stats and foreign keys,
// then replaces the cached document. Only a failure to enumerate columns, a
// table with no columns (it does not exist) or a failed write fails the
// table; every other read degrades to an empty value.
func (r *TableRefresher) RefreshTable(ctx context.Context, schema, table string) (*models.TableMetadata, error) {
	columns, err := r.introspector.DiscoverColumns(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("discover columns of %s.%s: %w", schema, table, err)
	}
	if len(columns) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("Table '%s' not found in schema '%s'.", table, schema))
	}

	samples, err := r.introspector.SampleRows(ctx, schema, table, models.SampleOrderColumn(columns), r.limits.SampleLimit)
	if err != nil {
		r.logger.Warn("Sample rows unavailable",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err))
		samples = []map[string]any{}
	}

	relationships, err := r.introspector.DiscoverForeignKeys(ctx, schema, table)
	if err != nil {
		r.logger.Warn("Foreign keys unavailable",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err))
		relationships = []models.Relationship{}
	}

	refreshedAt := r.now().UTC()
	doc := &models.TableMetadata{
		Columns:       columns,
		Relationships: relationships,
		Samples:       samples,
		ColumnStats:   r.collectColumnStats(ctx, schema, table, columns),
		RefreshedAt:   &refreshedAt,
	}

	if err := r.store.Write(ctx, schema, table, doc); err != nil {
		return nil, fmt.Errorf("write metadata for %s.%s: %w", schema, table, err)
	}

	r.logger.Debug("Table refreshed",
		zap.String("schema", schema),
		zap.String("table", table),
		zap.Strings("columns", doc.ColumnNames()),
		zap.Int("samples", len(samples)),
		zap.Int("relationships", len(relationships)))
	return doc, nil
}

// collectColumnStats computes stats for every column with bounded fan-out.
func (r *TableRefresher) collectColumnStats(ctx context.Context, schema, table string, columns []models.Column) map[string]models.ColumnStat {
	results := make([]models.ColumnStat, len(columns))

	var g errgroup.Group
	g.SetLimit(r.limits.ColumnConcurrency)
	for i, col := range columns {
		g.Go(func() error {
			results[i] = r.columnStat(ctx, schema, table, col.Name)
			return nil
		})
	}
	_ = g.Wait()

	stats := make(map[string]models.ColumnStat, len(columns))
	for i, col := range columns {
		stats[col.Name] = results[i]
	}
	return stats
}

// columnStat runs the three stat queries for one column. Each failure leaves
// its fields at the degraded default and records the stat as unavailable.
func (r *TableRefresher) columnStat(ctx context.Context, schema, table, column string) models.ColumnStat {
	stat := models.NewColumnStat()
	fields := []zap.Field{
		zap.String("schema", schema),
		zap.String("table", table),
		zap.String("column", column),
	}

	if distinct, nulls, err := r.introspector.CountValues(ctx, schema, table, column); err != nil {
		r.logger.Debug("Counts unavailable", append(fields, zap.Error(err))...)
		stat.Unavailable = append(stat.Unavailable, models.StatCounts)
	} else {
		stat.Distinct = distinct
		stat.NullCount = nulls
	}

	if top, err := r.introspector.TopValues(ctx, schema, table, column, r.limits.TopValues); err != nil {
		r.logger.Debug("Top values unavailable", append(fields, zap.Error(err))...)
		stat.Unavailable = append(stat.Unavailable, models.StatTopValues)
	} else if top != nil {
		stat.TopValues = top
	}

	if minVal, maxVal, err := r.introspector.MinMax(ctx, schema, table, column); err != nil {
		r.logger.Debug("Min/max unavailable", append(fields, zap.Error(err))...)
		stat.Unavailable = append(stat.Unavailable, models.StatMinMax)
	} else {
		stat.Min = minVal
		stat.Max = maxVal
	}

	return stat
}
