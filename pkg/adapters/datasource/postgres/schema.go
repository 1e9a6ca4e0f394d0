package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// ListTables returns base tables in schema, sorted by name. Views are excluded.
func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a table in ordinal order.
func (a *Adapter) DiscoverColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	const query = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := make([]models.Column, 0)
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// DiscoverForeignKeys returns foreign key edges originating from table.
func (a *Adapter) DiscoverForeignKeys(ctx context.Context, schema, table string) ([]models.Relationship, error) {
	const query = `
		SELECT
			kcu.column_name AS source_column,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	rels := make([]models.Relationship, 0)
	for rows.Next() {
		var r models.Relationship
		if err := rows.Scan(&r.SourceColumn, &r.TargetTable, &r.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return rels, nil
}
