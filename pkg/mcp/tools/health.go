package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/adapters/datasource"
)

type healthResult struct {
	Status       string                   `json:"status"`
	Version      string                   `json:"version"`
	Engine       string                   `json:"engine"`
	Engines      []datasource.AdapterInfo `json:"engines"`
	Schema       string                   `json:"schema"`
	CachedTables int                      `json:"cached_tables"`
	Refreshing   int                      `json:"refreshing"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool reports the server version, the connected engine, the engines
// compiled into the binary and the cache state of the default schema without
// touching the live database.
func RegisterHealthTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{
			Status:  "ok",
			Version: deps.Version,
			Engine:  deps.Metadata.Engine(),
			Engines: datasource.RegisteredAdapters(),
			Schema:  deps.Schema,
		}

		cached, err := deps.Metadata.ListCachedTables(ctx, deps.Schema)
		if err != nil {
			deps.Logger.Warn("Health check could not list cache", zap.Error(err))
			result.Status = "degraded"
		}
		result.CachedTables = len(cached)

		if status, err := deps.Metadata.RefreshStatus(ctx, deps.Schema, ""); err == nil {
			result.Refreshing = len(status.Refreshing)
		} else {
			deps.Logger.Warn("Health check could not read refresh state", zap.Error(err))
			result.Status = "degraded"
		}

		return jsonResult(result)
	})
}
