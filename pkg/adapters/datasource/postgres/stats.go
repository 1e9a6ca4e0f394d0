package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/jsonutil"
)

func sampleQuery(schema, table, orderBy string) string {
	q := "SELECT * FROM " + qualifiedTableName(schema, table)
	if orderBy != "" {
		q += " ORDER BY " + quoteIdent(orderBy) + " DESC NULLS LAST"
	}
	return q + " LIMIT $1"
}

func countQuery(schema, table, column string) string {
	col := quoteIdent(column)
	return fmt.Sprintf("SELECT COUNT(DISTINCT %s), COUNT(*) - COUNT(%s) FROM %s",
		col, col, qualifiedTableName(schema, table))
}

// topValuesQuery groups on the text form so types without equality operators
// (json, point) still work. Equal counts put NULL last, then sort by value.
func topValuesQuery(schema, table, column string) string {
	val := quoteIdent(column) + "::text"
	return fmt.Sprintf(
		"SELECT %[1]s AS value, COUNT(*) AS cnt FROM %[2]s GROUP BY %[1]s ORDER BY cnt DESC, (%[1]s IS NULL), %[1]s LIMIT $1",
		val, qualifiedTableName(schema, table))
}

func minMaxQuery(schema, table, column string) string {
	col := quoteIdent(column)
	return fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, qualifiedTableName(schema, table))
}

// SampleRows returns up to limit rows, newest first by orderBy when given.
func (a *Adapter) SampleRows(ctx context.Context, schema, table, orderBy string, limit int) ([]map[string]any, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, sampleQuery(schema, table, orderBy), limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	_, out, _, err := collectRows(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return out, nil
}

// CountValues returns distinct non-NULL values and NULL rows for a column.
func (a *Adapter) CountValues(ctx context.Context, schema, table, column string) (int64, int64, error) {
	pool, err := a.getPool()
	if err != nil {
		return 0, 0, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	var distinct, nulls int64
	if err := pool.QueryRow(ctx, countQuery(schema, table, column)).Scan(&distinct, &nulls); err != nil {
		return 0, 0, fmt.Errorf("count values of %s: %w", column, err)
	}
	return distinct, nulls, nil
}

// TopValues returns the most frequent values of a column.
func (a *Adapter) TopValues(ctx context.Context, schema, table, column string, limit int) (map[string]int64, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, topValuesQuery(schema, table, column), limit)
	if err != nil {
		return nil, fmt.Errorf("top values of %s: %w", column, err)
	}
	defer rows.Close()

	top := make(map[string]int64, limit)
	for rows.Next() {
		var (
			value *string
			count int64
		)
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("scan top value: %w", err)
		}
		key := "null"
		if value != nil {
			key = *value
		}
		top[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top values: %w", err)
	}
	return top, nil
}

// MinMax returns the minimum and maximum of a column.
func (a *Adapter) MinMax(ctx context.Context, schema, table, column string) (any, any, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	var minVal, maxVal any
	if err := pool.QueryRow(ctx, minMaxQuery(schema, table, column)).Scan(&minVal, &maxVal); err != nil {
		return nil, nil, fmt.Errorf("min/max of %s: %w", column, err)
	}
	return jsonutil.NormalizeValue(minVal), jsonutil.NormalizeValue(maxVal), nil
}

// collectRows drains rows into normalized maps, keeping at most limit rows.
// truncated reports whether more rows were available. rows is always closed.
func collectRows(rows pgx.Rows, limit int) (columns []string, out []map[string]any, truncated bool, err error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns = make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	out = make([]map[string]any, 0)
	for rows.Next() {
		if len(out) == limit {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, nil, false, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = jsonutil.NormalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	return columns, out, truncated, nil
}
