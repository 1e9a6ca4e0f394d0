package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/retry"
)

// MaxQueryRows caps the rows returned by RunReadOnlyQuery.
const MaxQueryRows = 1000

// Introspector is the engine capability set the refresh pipeline drives.
// Implementations own one connection pool and must be closed when done.
// All methods are safe for concurrent use once Connect has returned.
type Introspector interface {
	// Connect opens the pool and verifies the target is reachable.
	// Unreachable or unauthenticated targets return apperrors.ErrConnection.
	Connect(ctx context.Context) error

	// Close releases the pool. Safe to call more than once.
	Close() error

	// Engine returns the registered engine name ("postgres", "mysql").
	Engine() string

	// ListTables returns base table names in schema (views excluded).
	ListTables(ctx context.Context, schema string) ([]string, error)

	// RunReadOnlyQuery runs one statement inside a read-only transaction that
	// is always rolled back. Failures are reported in the envelope, never as
	// a Go error.
	RunReadOnlyQuery(ctx context.Context, query string) *QueryResult

	// DiscoverColumns returns the table's columns in ordinal order.
	DiscoverColumns(ctx context.Context, schema, table string) ([]models.Column, error)

	// SampleRows returns up to limit rows ordered by orderBy DESC, or in
	// engine order when orderBy is empty.
	SampleRows(ctx context.Context, schema, table, orderBy string, limit int) ([]map[string]any, error)

	// CountValues returns the distinct non-NULL count and the NULL count.
	CountValues(ctx context.Context, schema, table, column string) (distinct, nulls int64, err error)

	// TopValues returns the limit most frequent values keyed by their string
	// form, NULL included as "null". Ties favor non-NULL values.
	TopValues(ctx context.Context, schema, table, column string, limit int) (map[string]int64, error)

	// MinMax returns the column's minimum and maximum, nil for an empty table.
	MinMax(ctx context.Context, schema, table, column string) (min, max any, err error)

	// DiscoverForeignKeys returns FK edges originating from table.
	DiscoverForeignKeys(ctx context.Context, schema, table string) ([]models.Relationship, error)
}

// QueryResult is the envelope returned by RunReadOnlyQuery.
type QueryResult struct {
	Columns   []string         `json:"columns,omitempty"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"rowCount"`
	Truncated bool             `json:"truncated,omitempty"`
	IsError   bool             `json:"isError"`
	Error     string           `json:"error,omitempty"`

	// Err is the driver error behind Error, when there is one.
	Err error `json:"-"`
}

// ErrorResult builds a failed envelope.
func ErrorResult(msg string) *QueryResult {
	return &QueryResult{Rows: []map[string]any{}, IsError: true, Error: msg}
}

// FailedResult builds a failed envelope that keeps err for classification.
func FailedResult(err error) *QueryResult {
	r := ErrorResult(err.Error())
	r.Err = err
	return r
}

// Options carries pool and timeout settings shared by every engine.
type Options struct {
	PoolMaxConns int32
	PoolMinConns int32
	ConnIdleTime time.Duration
	// QueryTimeout bounds each introspection statement. Zero disables it.
	QueryTimeout time.Duration
	// Retry controls connect retries; nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// WithQueryTimeout derives a context bounded by o.QueryTimeout.
func (o Options) WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.QueryTimeout)
}
