package refresh

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

// AlreadyRefreshingMessage is the user-facing text naming tables that are
// mid-refresh.
func AlreadyRefreshingMessage(tables []string) string {
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = "'" + t + "'"
	}
	return fmt.Sprintf("Tables %s are already being refreshed. Please wait until they complete.",
		strings.Join(quoted, ", "))
}

// BusyTables returns the marked tables within a clear scope: one table, a
// whole schema (empty table), or every schema (empty schema). Markers are
// per schema, so the every-schema scope is never busy.
func BusyTables(ctx context.Context, t Tracker, schema, table string) ([]string, error) {
	switch {
	case schema == "":
		return nil, nil
	case table != "":
		marked, err := t.IsMarked(ctx, schema, table)
		if err != nil || !marked {
			return nil, err
		}
		return []string{table}, nil
	default:
		return t.Snapshot(ctx, schema)
	}
}

// EnsureClearable returns apperrors.ErrRefreshInProgress when any table in
// the clear scope is mid-refresh.
func EnsureClearable(ctx context.Context, t Tracker, schema, table string) error {
	busy, err := BusyTables(ctx, t, schema, table)
	if err != nil {
		return fmt.Errorf("check refresh state: %w", err)
	}
	if len(busy) > 0 {
		return apperrors.New(apperrors.ErrRefreshInProgress, AlreadyRefreshingMessage(busy))
	}
	return nil
}
