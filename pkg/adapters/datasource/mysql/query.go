package mysql

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
	sqlvalidator "github.com/ekaya-inc/ekaya-dbmeta/pkg/sql"
)

// RunReadOnlyQuery runs one caller statement inside START TRANSACTION READ
// ONLY and always rolls back.
func (a *Adapter) RunReadOnlyQuery(ctx context.Context, query string) *datasource.QueryResult {
	validation := sqlvalidator.ValidateAndNormalize(query)
	if validation.Error != nil {
		return datasource.ErrorResult(validation.Error.Error())
	}

	db, err := a.getDB()
	if err != nil {
		return datasource.ErrorResult(err.Error())
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return datasource.ErrorResult(logging.SanitizeError(err))
	}
	defer func() {
		// database/sql already rolls back when ctx is cancelled.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			a.logger.Warn("Rollback of read-only query failed", zap.Error(err))
		}
	}()

	rows, err := tx.QueryContext(ctx, validation.NormalizedSQL)
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
