package refresh

import (
	"context"
	"sync"
)

// MemoryTracker keeps markers in process memory. Markers vanish with the
// process, so a crash can never leave a table stuck.
type MemoryTracker struct {
	mu     sync.Mutex
	marked map[string]map[string]struct{}
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker returns an empty in-process tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{marked: make(map[string]map[string]struct{})}
}

func (t *MemoryTracker) Mark(_ context.Context, schema, table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markLocked(schema, table)
	return nil
}

func (t *MemoryTracker) markLocked(schema, table string) {
	tables, ok := t.marked[schema]
	if !ok {
		tables = make(map[string]struct{})
		t.marked[schema] = tables
	}
	tables[table] = struct{}{}
}

func (t *MemoryTracker) Clear(_ context.Context, schema, table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tables, ok := t.marked[schema]
	if !ok {
		return nil
	}
	delete(tables, table)
	if len(tables) == 0 {
		delete(t.marked, schema)
	}
	return nil
}

func (t *MemoryTracker) IsMarked(_ context.Context, schema, table string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.marked[schema][table]
	return ok, nil
}

func (t *MemoryTracker) Snapshot(_ context.Context, schema string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return sortedKeys(t.marked[schema]), nil
}

func (t *MemoryTracker) TryMarkAll(_ context.Context, schema string, tables []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var conflicts []string
	for _, table := range tables {
		if _, ok := t.marked[schema][table]; ok {
			conflicts = append(conflicts, table)
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	for _, table := range tables {
		t.markLocked(schema, table)
	}
	return nil, nil
}
