package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

func TestToolsList(t *testing.T) {
	f := newToolFixture(t)

	raw, err := json.Marshal(f.server.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"health", "list_tables", "list_cached_tables", "describe_table", "refresh_metadata",
		"refresh_status", "run_query", "get_definition", "store_definition",
		"get_all_definitions", "generate_sql",
	}, names)
}

func TestListTablesTool(t *testing.T) {
	f := newToolFixture(t)
	f.svc.live = []string{"orders", "users"}

	var out struct {
		Tables []string `json:"tables"`
	}
	f.call(t, "list_tables", nil).decode(t, &out)
	assert.Equal(t, []string{"orders", "users"}, out.Tables)
}

func TestListCachedTablesTool(t *testing.T) {
	f := newToolFixture(t)
	f.svc.cached = shopDocs()

	var out struct {
		Schema string   `json:"schema"`
		Tables []string `json:"tables"`
	}
	f.call(t, "list_cached_tables", map[string]any{"schema": "sales"}).decode(t, &out)
	assert.Equal(t, "sales", out.Schema)
	assert.Equal(t, []string{"order_items", "orders", "users"}, out.Tables)
}

func TestDescribeTableTool(t *testing.T) {
	f := newToolFixture(t)
	f.svc.cached = shopDocs()

	var doc models.TableMetadata
	res := f.call(t, "describe_table", map[string]any{"table": "orders"})
	assert.False(t, res.IsError)
	res.decode(t, &doc)
	assert.Equal(t, []string{"id", "user_id"}, doc.ColumnNames())
	assert.Len(t, doc.Relationships, 1)
}

func TestDescribeTableTool_Gated(t *testing.T) {
	f := newToolFixture(t)
	f.svc.cached = shopDocs()
	f.svc.refreshing["orders"] = true

	res := f.call(t, "describe_table", map[string]any{"table": "orders"})
	assert.True(t, res.IsError)
	var resp ErrorResponse
	res.decode(t, &resp)
	assert.Equal(t, "refresh_in_progress", resp.Code)
	assert.Equal(t, "Table 'orders' is currently being refreshed. Please try again later.", resp.Message)

	res = f.call(t, "describe_table", map[string]any{"table": "events"})
	res.decode(t, &resp)
	assert.Equal(t, "cache_not_ready", resp.Code)
	assert.Equal(t, "Metadata cache not ready. Please run refresh_metadata.", resp.Message)

	res = f.call(t, "describe_table", map[string]any{"table": "  "})
	res.decode(t, &resp)
	assert.Equal(t, "invalid_parameters", resp.Code)
}

func TestRefreshMetadataTool(t *testing.T) {
	f := newToolFixture(t)
	f.svc.live = []string{"orders", "users"}

	var out refreshStarted
	f.call(t, "refresh_metadata", nil).decode(t, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "Metadata refresh started.", out.Message)
	assert.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, []string{"orders", "users"}, out.Tables)

	f.call(t, "refresh_metadata", map[string]any{"table": "orders"}).decode(t, &out)
	assert.Equal(t, "Metadata refresh started for table: orders", out.Message)
	assert.Equal(t, []string{"orders"}, f.svc.started)
}

func TestRefreshMetadataTool_NoTables(t *testing.T) {
	f := newToolFixture(t)

	var out refreshStarted
	f.call(t, "refresh_metadata", nil).decode(t, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "No tables to refresh.", out.Message)
	assert.Empty(t, out.TaskID)
}

func TestRefreshMetadataTool_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "too many tables",
			err:      apperrors.New(apperrors.ErrTooManyTables, "Too many tables (6) to refresh at once. Please refresh tables individually."),
			wantCode: "too_many_tables",
		},
		{
			name:     "already refreshing",
			err:      apperrors.New(apperrors.ErrAlreadyRefreshing, "Tables 'users' are already being refreshed. Please wait until they complete."),
			wantCode: "already_refreshing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newToolFixture(t)
			f.svc.startErr = tt.err

			res := f.call(t, "refresh_metadata", nil)
			assert.True(t, res.IsError)
			var resp map[string]any
			res.decode(t, &resp)
			assert.Equal(t, map[string]any{
				"success": false,
				"error":   tt.err.Error(),
				"code":    tt.wantCode,
			}, resp)
		})
	}

	t.Run("system failure passes through", func(t *testing.T) {
		res, err := refreshRejection(errors.New("redis: connection refused"))
		require.EqualError(t, err, "redis: connection refused")
		assert.Nil(t, res)
	})
}

func TestRefreshStatusTool(t *testing.T) {
	f := newToolFixture(t)
	f.svc.refreshing["users"] = true

	var status struct {
		Schema     string   `json:"schema"`
		Refreshing []string `json:"refreshing"`
	}
	f.call(t, "refresh_status", map[string]any{"taskId": "task-1"}).decode(t, &status)
	assert.Equal(t, "public", status.Schema)
	assert.Equal(t, []string{"users"}, status.Refreshing)

	res := f.call(t, "refresh_status", map[string]any{"taskId": "missing"})
	assert.True(t, res.IsError)
	var resp ErrorResponse
	res.decode(t, &resp)
	assert.Equal(t, "not_found", resp.Code)
}
