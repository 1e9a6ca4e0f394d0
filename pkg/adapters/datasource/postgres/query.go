package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	sqlvalidator "github.com/ekaya-inc/ekaya-dbmeta/pkg/sql"
)

// RunReadOnlyQuery runs one caller statement inside a READ ONLY transaction
// that is always rolled back. Writes fail inside the transaction; nothing the
// statement does survives it.
func (a *Adapter) RunReadOnlyQuery(ctx context.Context, query string) *datasource.QueryResult {
	validation := sqlvalidator.ValidateAndNormalize(query)
	if validation.Error != nil {
		return datasource.ErrorResult(validation.Error.Error())
	}

	pool, err := a.getPool()
	if err != nil {
		return datasource.ErrorResult(err.Error())
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return datasource.ErrorResult(logging.SanitizeError(err))
	}
	defer func() {
		// Rollback even when the caller's context is already done.
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			a.logger.Warn("Rollback of read-only query failed", zap.Error(err))
		}
	}()

	rows, err := tx.Query(ctx, validation.NormalizedSQL)
	if err != nil {
		a.logger.Debug("Read-only query failed",
			zap.String("query", logging.SanitizeQuery(validation.NormalizedSQL)),
			zap.Error(err))
		return datasource.FailedResult(err)
	}

	columns, out, truncated, err := collectRows(rows, datasource.MaxQueryRows)
	if err != nil {
		return datasource.FailedResult(err)
	}

	return &datasource.QueryResult{
		Columns:   columns,
		Rows:      out,
		RowCount:  len(out),
		Truncated: truncated,
	}
}
