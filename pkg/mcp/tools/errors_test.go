package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if text, ok := mcp.AsTextContent(result.Content[0]); ok {
		return text.Text
	}
	return ""
}

func decodeErrorResponse(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()
	require.NotNil(t, result)
	require.True(t, result.IsError)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &resp))
	return resp
}

func TestNewErrorResult(t *testing.T) {
	resp := decodeErrorResponse(t, NewErrorResult("cache_not_ready", "Metadata cache not ready. Please run refresh_metadata."))

	assert.True(t, resp.Error)
	assert.Equal(t, "cache_not_ready", resp.Code)
	assert.Equal(t, "Metadata cache not ready. Please run refresh_metadata.", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("already_refreshing", "busy", map[string]any{
		"tables": []string{"orders", "users"},
	})
	resp := decodeErrorResponse(t, result)

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"orders", "users"}, details["tables"])
}

func TestToolError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{
			name:     "cache not ready",
			err:      apperrors.New(apperrors.ErrCacheNotReady, "Metadata cache not ready. Please run refresh_metadata."),
			wantCode: "cache_not_ready",
			wantMsg:  "Metadata cache not ready. Please run refresh_metadata.",
		},
		{
			name:     "wrapped too many tables",
			err:      fmt.Errorf("resolve: %w", apperrors.New(apperrors.ErrTooManyTables, "Too many tables (6) to refresh at once. Please refresh tables individually.")),
			wantCode: "too_many_tables",
			wantMsg:  "Too many tables (6) to refresh at once. Please refresh tables individually.",
		},
		{
			name:     "overlapping refresh",
			err:      apperrors.New(apperrors.ErrAlreadyRefreshing, "Tables 'users' are already being refreshed. Please wait until they complete."),
			wantCode: "already_refreshing",
			wantMsg:  "Tables 'users' are already being refreshed. Please wait until they complete.",
		},
		{
			name:     "bare sentinel",
			err:      apperrors.ErrRefreshInProgress,
			wantCode: "refresh_in_progress",
			wantMsg:  "refresh in progress",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := toolError(tt.err)
			require.NoError(t, err)
			resp := decodeErrorResponse(t, result)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}

	t.Run("system failure passes through", func(t *testing.T) {
		boom := fmt.Errorf("%w: disk full", apperrors.ErrIOFailure)
		result, err := toolError(boom)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, apperrors.ErrIOFailure)
	})
}

func TestIsSQLUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     bool
		wantCode string
	}{
		{"nil", nil, false, ""},
		{"pg syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, true, "syntax_error"},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, true, "undefined_table"},
		{"pg read only", &pgconn.PgError{Code: "25006"}, true, "read_only_violation"},
		{"pg connection", &pgconn.PgError{Code: "08006"}, false, ""},
		{"wrapped sqlstate text", errors.New("query failed: ERROR: boom (SQLSTATE 22012)"), true, "division_by_zero"},
		{"mysql with state", &mysqldriver.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}}, true, "undefined_table"},
		{"mysql number only", &mysqldriver.MySQLError{Number: 1064}, true, "syntax_error"},
		{"mysql read only", &mysqldriver.MySQLError{Number: 1792}, true, "read_only_violation"},
		{"mysql access denied", &mysqldriver.MySQLError{Number: 1045, SQLState: [5]byte{'2', '8', '0', '0', '0'}}, false, ""},
		{"plain error", errors.New("connection refused"), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSQLUserError(tt.err))
			assert.Equal(t, tt.wantCode, SQLUserErrorCode(tt.err))
		})
	}
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(apperrors.ErrMultipleStatements))
	assert.True(t, IsInputError(errors.New("query is empty")))
	assert.True(t, IsInputError(&pgconn.PgError{Code: "42703"}))
	assert.False(t, IsInputError(errors.New("connection reset by peer")))
	assert.False(t, IsInputError(nil))
}
