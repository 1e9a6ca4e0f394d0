package services

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// boundedIntrospector holds one slot of a shared semaphore for every
// introspection round trip, so table and column fan-out together never
// occupy more than the slot count of pooled connections.
type boundedIntrospector struct {
	datasource.Introspector
	slots *semaphore.Weighted
}

func newBoundedIntrospector(inner datasource.Introspector, maxInFlight int) *boundedIntrospector {
	return &boundedIntrospector{
		Introspector: inner,
		slots:        semaphore.NewWeighted(int64(maxInFlight)),
	}
}

func (b *boundedIntrospector) DiscoverColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.slots.Release(1)
	return b.Introspector.DiscoverColumns(ctx, schema, table)
}

func (b *boundedIntrospector) SampleRows(ctx context.Context, schema, table, orderBy string, limit int) ([]map[string]any, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.slots.Release(1)
	return b.Introspector.SampleRows(ctx, schema, table, orderBy, limit)
}

func (b *boundedIntrospector) CountValues(ctx context.Context, schema, table, column string) (int64, int64, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return 0, 0, err
	}
	defer b.slots.Release(1)
	return b.Introspector.CountValues(ctx, schema, table, column)
}

func (b *boundedIntrospector) TopValues(ctx context.Context, schema, table, column string, limit int) (map[string]int64, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.slots.Release(1)
	return b.Introspector.TopValues(ctx, schema, table, column, limit)
}

func (b *boundedIntrospector) MinMax(ctx context.Context, schema, table, column string) (any, any, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer b.slots.Release(1)
	return b.Introspector.MinMax(ctx, schema, table, column)
}

func (b *boundedIntrospector) DiscoverForeignKeys(ctx context.Context, schema, table string) ([]models.Relationship, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.slots.Release(1)
	return b.Introspector.DiscoverForeignKeys(ctx, schema, table)
}
