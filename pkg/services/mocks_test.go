package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// fakeTable is one table served by fakeIntrospector.
type fakeTable struct {
	columns []models.Column
	rows    []map[string]any
	fks     []models.Relationship
}

// fakeIntrospector serves canned metadata and records what was asked of it.
type fakeIntrospector struct {
	mu     sync.Mutex
	tables map[string]fakeTable

	columnsErr map[string]error // per table
	sampleErr  error
	fkErr      error
	countErr   map[string]error // per column
	topErr     map[string]error
	minMaxErr  map[string]error
	panicOn    string

	// gate, when set, blocks DiscoverColumns until closed.
	gate chan struct{}

	// latency is added to every introspection call; inFlight and peak count
	// overlapping calls.
	latency  time.Duration
	inFlight int
	peak     int

	sampleOrder  map[string]string
	columnsCalls int
	connected    bool
	closed       bool
}

var _ datasource.Introspector = (*fakeIntrospector)(nil)

func newFakeIntrospector() *fakeIntrospector {
	return &fakeIntrospector{
		tables:      map[string]fakeTable{},
		columnsErr:  map[string]error{},
		countErr:    map[string]error{},
		topErr:      map[string]error{},
		minMaxErr:   map[string]error{},
		sampleOrder: map[string]string{},
	}
}

// shopIntrospector serves the orders/users fixture used across tests.
func shopIntrospector() *fakeIntrospector {
	f := newFakeIntrospector()
	f.tables["users"] = fakeTable{
		columns: []models.Column{{Name: "id", DataType: "integer"}, {Name: "email", DataType: "text"}},
		rows: []map[string]any{
			{"id": int64(1), "email": "ada@example.com"},
			{"id": int64(2), "email": nil},
		},
	}
	f.tables["orders"] = fakeTable{
		columns: []models.Column{
			{Name: "id", DataType: "integer"},
			{Name: "user_id", DataType: "integer"},
			{Name: "created_at", DataType: "timestamp without time zone"},
		},
		rows: []map[string]any{
			{"id": int64(3), "user_id": int64(1), "created_at": "2024-02-03T10:00:00Z"},
			{"id": int64(2), "user_id": int64(2), "created_at": "2024-02-02T10:00:00Z"},
			{"id": int64(1), "user_id": int64(1), "created_at": "2024-02-01T10:00:00Z"},
		},
		fks: []models.Relationship{{SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"}},
	}
	return f
}

func (f *fakeIntrospector) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeIntrospector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeIntrospector) Engine() string { return "postgres" }

func (f *fakeIntrospector) ListTables(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeIntrospector) RunReadOnlyQuery(_ context.Context, query string) *datasource.QueryResult {
	if query == "fail" {
		return datasource.ErrorResult("syntax error")
	}
	return &datasource.QueryResult{Rows: []map[string]any{{"n": int64(1)}}, RowCount: 1}
}

// roundTrip records one introspection call; the returned func ends it.
func (f *fakeIntrospector) roundTrip() func() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	time.Sleep(f.latency)
	return func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
}

func (f *fakeIntrospector) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *fakeIntrospector) table(name string) (fakeTable, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[name]
	return t, ok
}

func (f *fakeIntrospector) DiscoverColumns(_ context.Context, _, table string) ([]models.Column, error) {
	if f.gate != nil {
		<-f.gate
	}
	defer f.roundTrip()()
	f.mu.Lock()
	f.columnsCalls++
	err := f.columnsErr[table]
	f.mu.Unlock()

	if table == f.panicOn {
		panic("introspector exploded")
	}
	if err != nil {
		return nil, err
	}
	t, ok := f.table(table)
	if !ok {
		return []models.Column{}, nil
	}
	return t.columns, nil
}

func (f *fakeIntrospector) SampleRows(_ context.Context, _, table, orderBy string, limit int) ([]map[string]any, error) {
	defer f.roundTrip()()
	f.mu.Lock()
	f.sampleOrder[table] = orderBy
	f.mu.Unlock()
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	t, _ := f.table(table)
	rows := t.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeIntrospector) CountValues(_ context.Context, _, table, column string) (int64, int64, error) {
	defer f.roundTrip()()
	if err := f.countErr[column]; err != nil {
		return 0, 0, err
	}
	t, _ := f.table(table)
	seen := map[any]bool{}
	var nulls int64
	for _, r := range t.rows {
		if r[column] == nil {
			nulls++
			continue
		}
		seen[r[column]] = true
	}
	return int64(len(seen)), nulls, nil
}

func (f *fakeIntrospector) TopValues(_ context.Context, _, table, column string, limit int) (map[string]int64, error) {
	defer f.roundTrip()()
	if err := f.topErr[column]; err != nil {
		return nil, err
	}
	t, _ := f.table(table)
	top := map[string]int64{}
	for _, r := range t.rows {
		if len(top) == limit {
			break
		}
		key := "null"
		if r[column] != nil {
			key = fmt.Sprint(r[column])
		}
		top[key]++
	}
	return top, nil
}

func (f *fakeIntrospector) MinMax(_ context.Context, _, table, column string) (any, any, error) {
	defer f.roundTrip()()
	if err := f.minMaxErr[column]; err != nil {
		return nil, nil, err
	}
	t, _ := f.table(table)
	var minVal, maxVal any
	for _, r := range t.rows {
		v, ok := r[column].(int64)
		if !ok {
			continue
		}
		if minVal == nil || v < minVal.(int64) {
			minVal = v
		}
		if maxVal == nil || v > maxVal.(int64) {
			maxVal = v
		}
	}
	return minVal, maxVal, nil
}

func (f *fakeIntrospector) DiscoverForeignKeys(_ context.Context, _, table string) ([]models.Relationship, error) {
	defer f.roundTrip()()
	if f.fkErr != nil {
		return nil, f.fkErr
	}
	t, _ := f.table(table)
	if t.fks == nil {
		return []models.Relationship{}, nil
	}
	return t.fks, nil
}

var errBoom = errors.New("boom")
