package mysql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// ListTables returns base tables in the schema (database), sorted by name.
func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, query, schema)
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
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, query, schema, table)
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
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position
	`

	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, query, schema, table)
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
