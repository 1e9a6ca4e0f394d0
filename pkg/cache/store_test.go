package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), zap.NewNop())
}

func ordersDoc() *models.TableMetadata {
	stat := models.NewColumnStat()
	stat.Distinct = 3
	stat.TopValues = map[string]int64{"1": 1, "2": 1, "3": 1}
	stat.Min = json.Number("1")
	stat.Max = json.Number("3")

	return &models.TableMetadata{
		Columns: []models.Column{
			{Name: "id", DataType: "integer"},
			{Name: "user_id", DataType: "integer"},
			{Name: "created_at", DataType: "timestamp without time zone"},
		},
		Relationships: []models.Relationship{
			{SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"},
		},
		Samples:     []map[string]any{{"id": json.Number("3"), "user_id": json.Number("1")}},
		ColumnStats: map[string]models.ColumnStat{"id": stat},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := ordersDoc()
	require.NoError(t, store.Write(ctx, "public", "orders", doc))

	got, err := store.Read(ctx, "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = os.Stat(filepath.Join(store.Dir(), "public", "orders.json"))
	assert.NoError(t, err, "document should live at <dir>/<schema>/<table>.json")
}

func TestFileStore_RoundTripKeepsBigintPrecision(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const big = int64(9007199254740993) // 2^53 + 1
	stat := models.NewColumnStat()
	stat.Min = int64(1)
	stat.Max = big
	doc := &models.TableMetadata{
		Columns:     []models.Column{{Name: "id", DataType: "bigint"}},
		Samples:     []map[string]any{{"id": big}, {"id": int64(1)}},
		ColumnStats: map[string]models.ColumnStat{"id": stat},
	}
	require.NoError(t, store.Write(ctx, "public", "ledger", doc))

	got, err := store.Read(ctx, "public", "ledger")
	require.NoError(t, err)

	assert.Equal(t, json.Number("9007199254740993"), got.Samples[0]["id"])
	maxVal, ok := got.ColumnStats["id"].Max.(json.Number)
	require.True(t, ok, "max decoded as %T", got.ColumnStats["id"].Max)
	n, err := maxVal.Int64()
	require.NoError(t, err)
	assert.Equal(t, big, n)

	want, err := json.Marshal(doc)
	require.NoError(t, err)
	again, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(again), "a read document re-encodes byte for byte")
}

func TestFileStore_ReadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read(context.Background(), "public", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFileStore_WriteReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Write(ctx, "public", "orders", ordersDoc()))

	replacement := &models.TableMetadata{
		Columns:       []models.Column{{Name: "id", DataType: "bigint"}},
		Relationships: []models.Relationship{},
		Samples:       []map[string]any{},
		ColumnStats:   map[string]models.ColumnStat{},
	}
	require.NoError(t, store.Write(ctx, "public", "orders", replacement))

	got, err := store.Read(ctx, "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestFileStore_SchemasArePartitioned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Write(ctx, "public", "orders", ordersDoc()))

	_, err := store.Read(ctx, "sales", "orders")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFileStore_ListCachedTables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tables, err := store.ListCachedTables(ctx, "public")
	require.NoError(t, err)
	assert.Empty(t, tables)

	for _, name := range []string{"users", "orders", "order items"} {
		require.NoError(t, store.Write(ctx, "public", name, ordersDoc()))
	}
	// Stray temp file from an interrupted write is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "public", ".orders.123.tmp"), []byte("{"), 0644))

	tables, err = store.ListCachedTables(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"order items", "orders", "users"}, tables)
}

func TestFileStore_NamesCannotEscapeCacheDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(filepath.Join(root, "cache"), zap.NewNop())

	require.NoError(t, store.Write(ctx, "..", "../../escape", ordersDoc()))

	_, err := os.Stat(filepath.Join(root, "escape.json"))
	assert.True(t, os.IsNotExist(err), "write must stay inside the cache dir")

	got, err := store.Read(ctx, "..", "../../escape")
	require.NoError(t, err)
	assert.Len(t, got.Columns, 3)

	tables, err := store.ListCachedTables(ctx, "..")
	require.NoError(t, err)
	assert.Equal(t, []string{"../../escape"}, tables)
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Write(ctx, "public", "orders", ordersDoc()))
	require.NoError(t, store.Write(ctx, "public", "users", ordersDoc()))
	require.NoError(t, store.Write(ctx, "sales", "leads", ordersDoc()))
	definitions := filepath.Join(store.Dir(), "_definitions.json")
	require.NoError(t, os.WriteFile(definitions, []byte("{}"), 0644))

	// Single table
	require.NoError(t, store.Clear(ctx, "public", "orders"))
	tables, err := store.ListCachedTables(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)

	// Missing target is a no-op
	require.NoError(t, store.Clear(ctx, "public", "orders"))
	require.NoError(t, store.Clear(ctx, "nope", ""))

	// Whole schema
	require.NoError(t, store.Clear(ctx, "public", ""))
	tables, err = store.ListCachedTables(ctx, "public")
	require.NoError(t, err)
	assert.Empty(t, tables)

	// Everything, leaving root files alone
	require.NoError(t, store.Clear(ctx, "", ""))
	_, err = store.Read(ctx, "sales", "leads")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = os.Stat(definitions)
	assert.NoError(t, err)
}

func TestFileStore_UnwritableDir(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// The cache root is a regular file, so the schema directory cannot be created.
	store := NewFileStore(blocker, zap.NewNop())
	err := store.Write(context.Background(), "public", "orders", ordersDoc())
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
}

func TestFileStore_ConcurrentReadersSeeWholeDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Write(ctx, "public", "orders", ordersDoc()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, store.Write(ctx, "public", "orders", ordersDoc()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				doc, err := store.Read(ctx, "public", "orders")
				if assert.NoError(t, err) {
					assert.Len(t, doc.Columns, 3)
				}
			}
		}()
	}
	wg.Wait()
}
