package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/cache"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

func newTestRefresher(t *testing.T, f *fakeIntrospector) (*TableRefresher, *cache.FileStore) {
	t.Helper()
	store := cache.NewFileStore(t.TempDir(), zap.NewNop())
	r := NewTableRefresher(f, store, DefaultRefreshLimits(), zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, store
}

func TestTableRefresher_OrdersScenario(t *testing.T) {
	f := shopIntrospector()
	r, store := newTestRefresher(t, f)
	ctx := context.Background()

	_, err := r.RefreshTable(ctx, "public", "orders")
	require.NoError(t, err)

	doc, err := store.Read(ctx, "public", "orders")
	require.NoError(t, err)

	assert.Equal(t, "created_at", f.sampleOrder["orders"])
	assert.Equal(t, []string{"id", "user_id", "created_at"}, doc.ColumnNames())
	require.Len(t, doc.Samples, 3)
	assert.Equal(t, "2024-02-03T10:00:00Z", doc.Samples[0]["created_at"])

	idStat := doc.ColumnStats["id"]
	assert.Equal(t, int64(3), idStat.Distinct)
	assert.Equal(t, int64(0), idStat.NullCount)
	assert.Equal(t, json.Number("1"), idStat.Min)
	assert.Equal(t, json.Number("3"), idStat.Max)
	assert.Empty(t, idStat.Unavailable)

	assert.Equal(t, []models.Relationship{{SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"}}, doc.Relationships)
	require.NotNil(t, doc.RefreshedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), *doc.RefreshedAt)
}

func TestTableRefresher_SampleOrderFallsBackToID(t *testing.T) {
	f := shopIntrospector()
	r, _ := newTestRefresher(t, f)

	_, err := r.RefreshTable(context.Background(), "public", "users")
	require.NoError(t, err)
	assert.Equal(t, "id", f.sampleOrder["users"])
}

func TestTableRefresher_StatDegradationIsIsolated(t *testing.T) {
	f := shopIntrospector()
	f.countErr["user_id"] = errBoom
	f.minMaxErr["created_at"] = errBoom
	r, _ := newTestRefresher(t, f)

	doc, err := r.RefreshTable(context.Background(), "public", "orders")
	require.NoError(t, err)

	userID := doc.ColumnStats["user_id"]
	assert.Equal(t, []string{models.StatCounts}, userID.Unavailable)
	assert.Zero(t, userID.Distinct)
	assert.NotEmpty(t, userID.TopValues, "top values still computed when counts fail")
	assert.EqualValues(t, 1, userID.Min)

	createdAt := doc.ColumnStats["created_at"]
	assert.Contains(t, createdAt.Unavailable, models.StatMinMax)
	assert.Nil(t, createdAt.Min)
	assert.Nil(t, createdAt.Max)
	assert.Equal(t, int64(3), createdAt.Distinct)

	assert.Empty(t, doc.ColumnStats["id"].Unavailable)
}

func TestTableRefresher_SamplesAndForeignKeysDegrade(t *testing.T) {
	f := shopIntrospector()
	f.sampleErr = errBoom
	f.fkErr = errBoom
	r, store := newTestRefresher(t, f)

	_, err := r.RefreshTable(context.Background(), "public", "orders")
	require.NoError(t, err)

	doc, err := store.Read(context.Background(), "public", "orders")
	require.NoError(t, err)
	assert.NotNil(t, doc.Samples)
	assert.Empty(t, doc.Samples)
	assert.NotNil(t, doc.Relationships)
	assert.Empty(t, doc.Relationships)
	assert.Len(t, doc.Columns, 3)
}

func TestTableRefresher_ColumnFailureFailsTable(t *testing.T) {
	f := shopIntrospector()
	f.columnsErr["orders"] = errBoom
	r, store := newTestRefresher(t, f)

	_, err := r.RefreshTable(context.Background(), "public", "orders")
	require.ErrorIs(t, err, errBoom)

	cached, err := store.ListCachedTables(context.Background(), "public")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestTableRefresher_MissingTableFails(t *testing.T) {
	f := shopIntrospector()
	r, store := newTestRefresher(t, f)
	ctx := context.Background()

	_, err := r.RefreshTable(ctx, "public", "ghosts")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "Table 'ghosts' not found in schema 'public'.", err.Error())
	assert.NotContains(t, f.sampleOrder, "ghosts", "no further reads after an empty column list")

	cached, err := store.ListCachedTables(ctx, "public")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestTableRefresher_EmptyTable(t *testing.T) {
	f := newFakeIntrospector()
	f.tables["tags"] = fakeTable{columns: []models.Column{{Name: "label", DataType: "text"}}}
	r, _ := newTestRefresher(t, f)

	doc, err := r.RefreshTable(context.Background(), "public", "tags")
	require.NoError(t, err)

	assert.Equal(t, "", f.sampleOrder["tags"])
	stat := doc.ColumnStats["label"]
	assert.Zero(t, stat.Distinct)
	assert.Empty(t, stat.TopValues)
	assert.Nil(t, stat.Min)
	assert.Empty(t, stat.Unavailable)
}
