package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

// RegisterMetadataTools registers the table listing, describe and refresh tools.
func RegisterMetadataTools(s *server.MCPServer, deps *ToolDeps) {
	registerListTablesTool(s, deps)
	registerListCachedTablesTool(s, deps)
	registerDescribeTableTool(s, deps)
	registerRefreshMetadataTool(s, deps)
	registerRefreshStatusTool(s, deps)
}

func withSchemaArg() mcp.ToolOption {
	return mcp.WithString(
		"schema",
		mcp.Description("Schema to use (default: the server's configured schema)"),
	)
}

func registerListTablesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("List all tables in the connected database. Returns an array of table names."),
		withSchemaArg(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema := deps.schemaFor(getOptionalString(req, "schema"))
		tables, err := deps.Metadata.ListTables(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		return jsonResult(struct {
			Tables []string `json:"tables"`
		}{Tables: tables})
	})
}

func registerListCachedTablesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_cached_tables",
		mcp.WithDescription("List tables whose metadata is cached and can be described without a refresh."),
		withSchemaArg(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema := deps.schemaFor(getOptionalString(req, "schema"))
		tables, err := deps.Metadata.ListCachedTables(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to list cached tables: %w", err)
		}
		return jsonResult(struct {
			Schema string   `json:"schema"`
			Tables []string `json:"tables"`
		}{Schema: schema, Tables: tables})
	})
}

func registerDescribeTableTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"describe_table",
		mcp.WithDescription(
			"Describe the columns, relationships, and sample data for a given table. "+
				"Input: table name. Output: schema, relationships, samples, and column stats. "+
				"Reads the metadata cache only; run refresh_metadata first if the cache is not ready.",
		),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		withSchemaArg(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		table = trimString(table)
		if table == "" {
			return NewErrorResult("invalid_parameters", "table cannot be empty"), nil
		}
		schema := deps.schemaFor(getOptionalString(req, "schema"))

		doc, err := deps.Metadata.GetTableSchema(ctx, table, schema)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(doc)
	})
}

type refreshStarted struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	TaskID  string   `json:"taskId,omitempty"`
	Schema  string   `json:"schema"`
	Tables  []string `json:"tables"`
}

// refreshRejected is the body of a refused refresh_metadata call.
type refreshRejected struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// refreshRejection reports an actionable refusal as {success:false, error}
// and passes system failures through as Go errors.
func refreshRejection(err error) (*mcp.CallToolResult, error) {
	code := ErrorCode(err)
	if code == "" {
		return nil, err
	}
	body, _ := json.Marshal(refreshRejected{Error: apperrors.Message(err), Code: code})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result, nil
}

func registerRefreshMetadataTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"refresh_metadata",
		mcp.WithDescription(
			"Refresh the cached database metadata (schemas, samples, stats). "+
				"Optional input: table. Without a table every table in the schema is refreshed, up to a small limit. "+
				"Runs in the background; poll refresh_status with the returned taskId.",
		),
		mcp.WithString("table", mcp.Description("Refresh only this table")),
		withSchemaArg(),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table := getOptionalString(req, "table")
		schema := deps.schemaFor(getOptionalString(req, "schema"))

		handle, err := deps.Metadata.StartRefresh(ctx, schema, table)
		if err != nil {
			deps.Logger.Debug("Refresh rejected",
				zap.String("schema", schema),
				zap.String("table", table),
				zap.Error(err))
			return refreshRejection(err)
		}

		msg := "Metadata refresh started."
		switch {
		case table != "":
			msg = "Metadata refresh started for table: " + table
		case len(handle.Tables) == 0:
			msg = "No tables to refresh."
		}
		return jsonResult(refreshStarted{
			Success: true,
			Message: msg,
			TaskID:  handle.TaskID,
			Schema:  handle.Schema,
			Tables:  handle.Tables,
		})
	})
}

func registerRefreshStatusTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"refresh_status",
		mcp.WithDescription(
			"Report the progress of a refresh started by refresh_metadata. "+
				"With taskId, returns that task's state and per-table outcome; without it, lists tables currently being refreshed.",
		),
		mcp.WithString("taskId", mcp.Description("Task ID returned by refresh_metadata")),
		withSchemaArg(),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema := deps.schemaFor(getOptionalString(req, "schema"))
		status, err := deps.Metadata.RefreshStatus(ctx, schema, getOptionalString(req, "taskId"))
		if err != nil {
			return toolError(err)
		}
		return jsonResult(status)
	})
}
