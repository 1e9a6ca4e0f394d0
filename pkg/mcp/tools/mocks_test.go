package tools

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/definitions"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services"
)

// mockMetadataService is a MetadataService over in-memory documents.
type mockMetadataService struct {
	engine     string
	live       []string
	cached     map[string]*models.TableMetadata
	refreshing map[string]bool

	queryResult *datasource.QueryResult
	lastQuery   string
	startErr    error
	started     []string
}

func newMockMetadataService() *mockMetadataService {
	return &mockMetadataService{
		engine:     "postgres",
		cached:     map[string]*models.TableMetadata{},
		refreshing: map[string]bool{},
	}
}

var _ services.MetadataService = (*mockMetadataService)(nil)

func (m *mockMetadataService) Connect(ctx context.Context) error { return nil }
func (m *mockMetadataService) Close(ctx context.Context) error   { return nil }
func (m *mockMetadataService) Engine() string                    { return m.engine }

func (m *mockMetadataService) RunReadOnlyQuery(ctx context.Context, query string) *datasource.QueryResult {
	m.lastQuery = query
	if m.queryResult != nil {
		return m.queryResult
	}
	return &datasource.QueryResult{Rows: []map[string]any{}}
}

func (m *mockMetadataService) ListTables(ctx context.Context, schema string) ([]string, error) {
	return m.live, nil
}

func (m *mockMetadataService) ListCachedTables(ctx context.Context, schema string) ([]string, error) {
	names := make([]string, 0, len(m.cached))
	for t := range m.cached {
		names = append(names, t)
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockMetadataService) GetTableSchema(ctx context.Context, table, schema string) (*models.TableMetadata, error) {
	if m.refreshing[table] {
		return nil, apperrors.New(apperrors.ErrRefreshInProgress,
			"Table '"+table+"' is currently being refreshed. Please try again later.")
	}
	doc, ok := m.cached[table]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCacheNotReady, "Metadata cache not ready. Please run refresh_metadata.")
	}
	return doc, nil
}

func (m *mockMetadataService) ResolveTablesToRefresh(ctx context.Context, schema, table string) ([]string, error) {
	if table != "" {
		return []string{table}, nil
	}
	return m.live, nil
}

func (m *mockMetadataService) GetAlreadyRefreshingTables(ctx context.Context, schema string, tables []string) ([]string, error) {
	var out []string
	for _, t := range tables {
		if m.refreshing[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockMetadataService) RefreshTableMetadata(ctx context.Context, schema, table string) (*services.RefreshResult, error) {
	tables, _ := m.ResolveTablesToRefresh(ctx, schema, table)
	return &services.RefreshResult{Success: true, Tables: tables}, nil
}

func (m *mockMetadataService) StartRefresh(ctx context.Context, schema, table string) (*services.RefreshHandle, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	tables, _ := m.ResolveTablesToRefresh(ctx, schema, table)
	if tables == nil {
		tables = []string{}
	}
	m.started = tables
	handle := &services.RefreshHandle{Schema: schema, Tables: tables}
	if len(tables) > 0 {
		handle.TaskID = "task-1"
	}
	return handle, nil
}

func (m *mockMetadataService) RefreshStatus(ctx context.Context, schema, taskID string) (*services.RefreshStatus, error) {
	if taskID != "" && taskID != "task-1" {
		return nil, apperrors.New(apperrors.ErrNotFound, "Unknown refresh task '"+taskID+"'.")
	}
	var marked []string
	for t := range m.refreshing {
		marked = append(marked, t)
	}
	sort.Strings(marked)
	return &services.RefreshStatus{Schema: schema, Refreshing: marked}, nil
}

func (m *mockMetadataService) ClearCache(ctx context.Context, schema, table string) error {
	return nil
}

func shopDocs() map[string]*models.TableMetadata {
	return map[string]*models.TableMetadata{
		"users": {
			Columns:       []models.Column{{Name: "id", DataType: "integer"}, {Name: "email", DataType: "text"}},
			Relationships: []models.Relationship{},
			Samples:       []map[string]any{},
			ColumnStats:   map[string]models.ColumnStat{},
		},
		"orders": {
			Columns:       []models.Column{{Name: "id", DataType: "integer"}, {Name: "user_id", DataType: "integer"}},
			Relationships: []models.Relationship{{SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"}},
			Samples:       []map[string]any{{"id": 3, "user_id": 1}},
			ColumnStats:   map[string]models.ColumnStat{},
		},
		"order_items": {
			Columns:       []models.Column{{Name: "order_id", DataType: "integer"}, {Name: "product_id", DataType: "integer"}},
			Relationships: []models.Relationship{{SourceColumn: "order_id", TargetTable: "orders", TargetColumn: "id"}, {SourceColumn: "product_id", TargetTable: "products", TargetColumn: "id"}},
			Samples:       []map[string]any{},
			ColumnStats:   map[string]models.ColumnStat{},
		},
	}
}

type toolFixture struct {
	server *server.MCPServer
	svc    *mockMetadataService
	defs   *definitions.Store
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	svc := newMockMetadataService()
	defs := definitions.NewStore(t.TempDir(), zap.NewNop())
	s := server.NewMCPServer("test", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
	)
	RegisterAll(s, &ToolDeps{
		Metadata:    svc,
		Definitions: defs,
		Schema:      "public",
		Version:     "1.2.3",
		Logger:      zap.NewNop(),
	})
	return &toolFixture{server: s, svc: svc, defs: defs}
}

// toolCallResponse is the decoded result of a tools/call message.
type toolCallResponse struct {
	IsError bool
	Text    string
}

func (f *toolFixture) call(t *testing.T, name string, args map[string]any) toolCallResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(f.server.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var response struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	require.Nil(t, response.Error, "unexpected protocol error: %s", raw)
	require.NotEmpty(t, response.Result.Content)
	return toolCallResponse{IsError: response.Result.IsError, Text: response.Result.Content[0].Text}
}

func (r toolCallResponse) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(r.Text), v), r.Text)
}
