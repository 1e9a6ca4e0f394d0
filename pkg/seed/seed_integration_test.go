//go:build integration

package seed

import (
	"context"
	"math/rand"
	"testing"

	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/database"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/testhelpers"
)

func TestSeed_Postgres(t *testing.T) {
	testDB := testhelpers.GetTestPostgres(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	db, err := database.NewConnection(ctx, &database.Config{URL: testDB.URL}, logger)
	require.NoError(t, err)
	defer db.Close()

	sizes := Sizes{Users: 10, Products: 5, Orders: 20, OrderItems: 40, Events: 30}
	ds := Generate(faker.NewWithSeed(rand.NewSource(3)), sizes)

	// Seeding twice replaces the tables.
	require.NoError(t, Seed(ctx, db, "seed_sample", ds, logger))
	require.NoError(t, Seed(ctx, db, "seed_sample", ds, logger))

	var users, items int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM seed_sample.users`).Scan(&users))
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM seed_sample.order_items`).Scan(&items))
	assert.Equal(t, sizes.Users, users)
	assert.Equal(t, sizes.OrderItems, items)

	var mismatched int
	require.NoError(t, db.QueryRow(ctx, `
SELECT COUNT(*) FROM seed_sample.orders o
WHERE o.total IS DISTINCT FROM (SELECT SUM(price * quantity) FROM seed_sample.order_items WHERE order_id = o.id)`).Scan(&mismatched))
	assert.Zero(t, mismatched)
}
