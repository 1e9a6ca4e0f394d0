// Package refresh tracks which tables are mid-refresh.
//
// Markers are advisory: they gate the read path and reject overlapping
// refresh requests, nothing more.
package refresh

import (
	"context"
	"sort"
)

// Tracker records the set of (schema, table) pairs currently being refreshed.
type Tracker interface {
	// Mark records table as refreshing. Marking an already-marked table is a no-op.
	Mark(ctx context.Context, schema, table string) error
	// Clear removes the marker. Clearing an unmarked table is a no-op.
	Clear(ctx context.Context, schema, table string) error
	// IsMarked reports whether table is currently marked.
	IsMarked(ctx context.Context, schema, table string) (bool, error)
	// Snapshot returns the sorted names of marked tables in schema.
	Snapshot(ctx context.Context, schema string) ([]string, error)
	// TryMarkAll marks every table in tables, or none of them. When any table
	// is already marked, nothing is marked and the already-marked tables are
	// returned in request order.
	TryMarkAll(ctx context.Context, schema string, tables []string) (conflicts []string, err error)
}

// Intersect returns the members of tables that appear in marked, preserving
// the order of tables.
func Intersect(tables, marked []string) []string {
	set := make(map[string]struct{}, len(marked))
	for _, m := range marked {
		set[m] = struct{}{}
	}
	out := make([]string, 0)
	for _, t := range tables {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
