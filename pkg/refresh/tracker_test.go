package refresh

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTrackerContract exercises behavior every Tracker implementation shares.
func runTrackerContract(t *testing.T, newTracker func(t *testing.T) Tracker) {
	t.Run("mark clear is_marked", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		marked, err := tr.IsMarked(ctx, "public", "orders")
		require.NoError(t, err)
		assert.False(t, marked)

		require.NoError(t, tr.Mark(ctx, "public", "orders"))
		require.NoError(t, tr.Mark(ctx, "public", "orders"), "marking twice is a no-op")

		marked, err = tr.IsMarked(ctx, "public", "orders")
		require.NoError(t, err)
		assert.True(t, marked)

		require.NoError(t, tr.Clear(ctx, "public", "orders"))
		require.NoError(t, tr.Clear(ctx, "public", "orders"), "clear is idempotent")

		marked, err = tr.IsMarked(ctx, "public", "orders")
		require.NoError(t, err)
		assert.False(t, marked)
	})

	t.Run("snapshot is per schema and sorted", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		require.NoError(t, tr.Mark(ctx, "public", "users"))
		require.NoError(t, tr.Mark(ctx, "public", "orders"))
		require.NoError(t, tr.Mark(ctx, "sales", "leads"))

		snap, err := tr.Snapshot(ctx, "public")
		require.NoError(t, err)
		assert.Equal(t, []string{"orders", "users"}, snap)

		snap, err = tr.Snapshot(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("names with separators stay distinct", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		require.NoError(t, tr.Mark(ctx, "a:b", "c"))

		marked, err := tr.IsMarked(ctx, "a", "b:c")
		require.NoError(t, err)
		assert.False(t, marked)

		snap, err := tr.Snapshot(ctx, "a:b")
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, snap)
	})

	t.Run("try mark all is all or nothing", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		require.NoError(t, tr.Mark(ctx, "public", "orders"))

		conflicts, err := tr.TryMarkAll(ctx, "public", []string{"users", "orders", "events"})
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, conflicts)

		for _, table := range []string{"users", "events"} {
			marked, err := tr.IsMarked(ctx, "public", table)
			require.NoError(t, err)
			assert.False(t, marked, "%s must not be marked after a rejected batch", table)
		}

		require.NoError(t, tr.Clear(ctx, "public", "orders"))
		conflicts, err = tr.TryMarkAll(ctx, "public", []string{"users", "orders"})
		require.NoError(t, err)
		assert.Empty(t, conflicts)

		snap, err := tr.Snapshot(ctx, "public")
		require.NoError(t, err)
		assert.Equal(t, []string{"orders", "users"}, snap)
	})

	t.Run("concurrent batches never both win", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		const contenders = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conflicts, err := tr.TryMarkAll(ctx, "public", []string{"orders", "users"})
				assert.NoError(t, err)
				if len(conflicts) == 0 {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestMemoryTracker(t *testing.T) {
	runTrackerContract(t, func(t *testing.T) Tracker {
		return NewMemoryTracker()
	})
}

func TestMemoryTracker_ClearDropsEmptySchema(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Mark(ctx, "public", fmt.Sprintf("t%d", i)))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Clear(ctx, "public", fmt.Sprintf("t%d", i)))
	}
	assert.Empty(t, tr.marked)
}

func TestIntersect(t *testing.T) {
	got := Intersect([]string{"users", "orders", "events"}, []string{"events", "users", "other"})
	assert.Equal(t, []string{"users", "events"}, got)

	assert.Empty(t, Intersect([]string{"a"}, nil))
}
