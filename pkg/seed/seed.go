package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/database"
)

// Tables lists the sample tables in dependency order.
var Tables = []string{"users", "products", "orders", "order_items", "events"}

func ddl(schema string) string {
	q := func(table string) string { return pgx.Identifier{schema, table}.Sanitize() }
	return fmt.Sprintf(`
CREATE TABLE %[1]s (
  id SERIAL PRIMARY KEY,
  name VARCHAR(100),
  email VARCHAR(100) UNIQUE,
  created_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE %[2]s (
  id SERIAL PRIMARY KEY,
  name VARCHAR(100),
  price NUMERIC(10,2),
  category VARCHAR(50)
);
CREATE TABLE %[3]s (
  id SERIAL PRIMARY KEY,
  user_id INTEGER REFERENCES %[1]s(id),
  order_date TIMESTAMP,
  total NUMERIC(10,2)
);
CREATE TABLE %[4]s (
  id SERIAL PRIMARY KEY,
  order_id INTEGER REFERENCES %[3]s(id),
  product_id INTEGER REFERENCES %[2]s(id),
  quantity INTEGER,
  price NUMERIC(10,2)
);
CREATE TABLE %[5]s (
  id SERIAL PRIMARY KEY,
  user_id INTEGER REFERENCES %[1]s(id),
  event_type VARCHAR(50),
  event_time TIMESTAMP
);`, q("users"), q("products"), q("orders"), q("order_items"), q("events"))
}

// Seed drops and recreates the sample tables in schema and loads ds into
// them in one transaction.
func Seed(ctx context.Context, db *database.DB, schema string, ds *Dataset, logger *zap.Logger) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	schemaIdent := pgx.Identifier{schema}.Sanitize()
	drops := make([]string, 0, len(Tables))
	for _, t := range Tables {
		drops = append(drops, pgx.Identifier{schema, t}.Sanitize())
	}
	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + schemaIdent,
		"DROP TABLE IF EXISTS " + strings.Join(drops, ", ") + " CASCADE",
		ddl(schema),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare schema %s: %w", schema, err)
		}
	}

	loads := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"users", []string{"name", "email", "created_at"}, ds.Users},
		{"products", []string{"name", "price", "category"}, ds.Products},
		{"orders", []string{"user_id", "order_date"}, ds.Orders},
		{"order_items", []string{"order_id", "product_id", "quantity", "price"}, ds.OrderItems},
		{"events", []string{"user_id", "event_type", "event_time"}, ds.Events},
	}
	for _, l := range loads {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{schema, l.table}, l.columns, pgx.CopyFromRows(l.rows))
		if err != nil {
			return fmt.Errorf("load %s: %w", l.table, err)
		}
		logger.Info("Seeded table", zap.String("schema", schema), zap.String("table", l.table), zap.Int64("rows", n))
	}

	orders := pgx.Identifier{schema, "orders"}.Sanitize()
	items := pgx.Identifier{schema, "order_items"}.Sanitize()
	totals := fmt.Sprintf(`UPDATE %s o SET total = (
  SELECT SUM(oi.price * oi.quantity) FROM %s oi WHERE oi.order_id = o.id
)`, orders, items)
	if _, err := tx.Exec(ctx, totals); err != nil {
		return fmt.Errorf("compute order totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
