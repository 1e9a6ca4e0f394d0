//go:build integration

package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/testhelpers"
)

func newRedisTracker(t *testing.T, lease time.Duration) *RedisTracker {
	t.Helper()
	client := testhelpers.GetTestRedis(t)
	// Unique prefix per test keeps runs isolated on the shared container.
	tr := NewRedisTracker(client, "test-"+uuid.NewString(), lease, zap.NewNop())
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestRedisTracker(t *testing.T) {
	runTrackerContract(t, func(t *testing.T) Tracker {
		return newRedisTracker(t, time.Minute)
	})
}

func TestRedisTracker_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	client := testhelpers.GetTestRedis(t)
	prefix := "test-" + uuid.NewString()

	crashed := NewRedisTracker(client, prefix, 300*time.Millisecond, zap.NewNop())
	require.NoError(t, crashed.Mark(ctx, "public", "orders"))
	// Stop keep-alive without clearing, as a crashed process would.
	require.NoError(t, crashed.Close())

	survivor := NewRedisTracker(client, prefix, time.Minute, zap.NewNop())
	t.Cleanup(func() { survivor.Close() })

	assert.Eventually(t, func() bool {
		marked, err := survivor.IsMarked(ctx, "public", "orders")
		return err == nil && !marked
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRedisTracker_KeepAliveExtendsLease(t *testing.T) {
	ctx := context.Background()
	tr := newRedisTracker(t, 600*time.Millisecond)

	require.NoError(t, tr.Mark(ctx, "public", "orders"))
	time.Sleep(1500 * time.Millisecond)

	marked, err := tr.IsMarked(ctx, "public", "orders")
	require.NoError(t, err)
	assert.True(t, marked, "lease should have been extended while held")
}

func TestRedisTracker_ClearOnlyReleasesOwnLease(t *testing.T) {
	ctx := context.Background()
	client := testhelpers.GetTestRedis(t)
	prefix := "test-" + uuid.NewString()

	a := NewRedisTracker(client, prefix, time.Minute, zap.NewNop())
	b := NewRedisTracker(client, prefix, time.Minute, zap.NewNop())
	t.Cleanup(func() { a.Close(); b.Close() })

	require.NoError(t, a.Mark(ctx, "public", "orders"))
	require.NoError(t, b.Clear(ctx, "public", "orders"))

	marked, err := a.IsMarked(ctx, "public", "orders")
	require.NoError(t, err)
	assert.True(t, marked, "another owner must not release the lease")

	conflicts, err := b.TryMarkAll(ctx, "public", []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, conflicts)
}
