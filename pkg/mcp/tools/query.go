package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/logging"
)

// RegisterQueryTools registers the read-only query tool.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"run_query",
		mcp.WithDescription(
			"Run a read-only SQL SELECT query against the database. Input: SQL string. Output: query result rows. "+
				"Only one statement is allowed; it runs in a read-only transaction that is always rolled back.",
		),
		mcp.WithString("sql", mcp.Required(), mcp.Description("A single SQL statement")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result := deps.Metadata.RunReadOnlyQuery(ctx, sql)
		if result.IsError {
			fields := []zap.Field{
				zap.String("query", logging.SanitizeQuery(sql)),
				zap.String("error", result.Error),
			}
			if code := SQLUserErrorCode(result.Err); code != "" {
				fields = append(fields, zap.String("code", code))
			}
			if result.Err == nil || IsInputError(result.Err) {
				deps.Logger.Debug("Query rejected", fields...)
			} else {
				deps.Logger.Error("Query failed", fields...)
			}
		}

		out, err := jsonResult(result)
		if err != nil {
			return nil, err
		}
		out.IsError = result.IsError
		return out, nil
	})
}
