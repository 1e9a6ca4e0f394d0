package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/jsonutil"
)

func sampleQuery(schema, table, orderBy string) string {
	q := "SELECT * FROM " + qualifiedTableName(schema, table)
	if orderBy != "" {
		// MySQL sorts NULL first ascending, so last when descending.
		q += " ORDER BY " + quoteIdent(orderBy) + " DESC"
	}
	return q + " LIMIT ?"
}

func countQuery(schema, table, column string) string {
	col := quoteIdent(column)
	return fmt.Sprintf("SELECT COUNT(DISTINCT %s), COUNT(*) - COUNT(%s) FROM %s",
		col, col, qualifiedTableName(schema, table))
}

// topValuesQuery orders by count, then NULL last, then value.
func topValuesQuery(schema, table, column string) string {
	col := quoteIdent(column)
	return fmt.Sprintf(
		"SELECT CAST(%[1]s AS CHAR) AS value, COUNT(*) AS cnt FROM %[2]s GROUP BY %[1]s ORDER BY cnt DESC, (%[1]s IS NULL), %[1]s LIMIT ?",
		col, qualifiedTableName(schema, table))
}

func minMaxQuery(schema, table, column string) string {
	col := quoteIdent(column)
	return fmt.Sprintf("SELECT MIN(%s) AS min_value, MAX(%s) AS max_value FROM %s",
		col, col, qualifiedTableName(schema, table))
}

// SampleRows returns up to limit rows, newest first by orderBy when given.
func (a *Adapter) SampleRows(ctx context.Context, schema, table, orderBy string, limit int) ([]map[string]any, error) {
	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, sampleQuery(schema, table, orderBy), limit)
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
	db, err := a.getDB()
	if err != nil {
		return 0, 0, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	var distinct, nulls int64
	if err := db.QueryRowContext(ctx, countQuery(schema, table, column)).Scan(&distinct, &nulls); err != nil {
		return 0, 0, fmt.Errorf("count values of %s: %w", column, err)
	}
	return distinct, nulls, nil
}

// TopValues returns the most frequent values of a column.
func (a *Adapter) TopValues(ctx context.Context, schema, table, column string, limit int) (map[string]int64, error) {
	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, topValuesQuery(schema, table, column), limit)
	if err != nil {
		return nil, fmt.Errorf("top values of %s: %w", column, err)
	}
	defer rows.Close()

	top := make(map[string]int64, limit)
	for rows.Next() {
		var (
			value sql.NullString
			count int64
		)
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("scan top value: %w", err)
		}
		key := "null"
		if value.Valid {
			key = value.String
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
	db, err := a.getDB()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := a.opts.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, minMaxQuery(schema, table, column))
	if err != nil {
		return nil, nil, fmt.Errorf("min/max of %s: %w", column, err)
	}
	_, out, _, err := collectRows(rows, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("min/max of %s: %w", column, err)
	}
	if len(out) == 0 {
		return nil, nil, nil
	}
	return out[0]["min_value"], out[0]["max_value"], nil
}

// collectRows drains rows into normalized maps, keeping at most limit rows.
// truncated reports whether more rows were available. rows is always closed.
func collectRows(rows *sql.Rows, limit int) (columns []string, out []map[string]any, truncated bool, err error) {
	defer rows.Close()

	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, false, fmt.Errorf("read column types: %w", err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	out = make([]map[string]any, 0)
	for rows.Next() {
		if len(out) == limit {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(types[i].DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	return columns, out, truncated, nil
}

// convertValue turns text-protocol bytes into numbers where the column type
// says so. Everything else goes through jsonutil.NormalizeValue.
func convertValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return jsonutil.NormalizeValue(v)
	}
	s := string(b)
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "DECIMAL", "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return jsonutil.NormalizeValue(b)
}
