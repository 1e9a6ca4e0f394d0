package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/definitions"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services"
)

// ToolDeps contains dependencies shared by every tool.
type ToolDeps struct {
	Metadata    services.MetadataService
	Definitions *definitions.Store
	// Schema is used when a tool call does not name one.
	Schema  string
	Version string
	Logger  *zap.Logger
}

// schemaFor returns the schema argument of a call or the default.
func (d *ToolDeps) schemaFor(schema string) string {
	if schema != "" {
		return schema
	}
	return d.Schema
}

// RegisterAll registers every tool and the generate-sql prompt.
func RegisterAll(s *server.MCPServer, deps *ToolDeps) {
	RegisterHealthTool(s, deps)
	RegisterMetadataTools(s, deps)
	RegisterQueryTools(s, deps)
	RegisterDefinitionTools(s, deps)
	RegisterGenerateSQLTool(s, deps)
	RegisterGenerateSQLPrompt(s, deps)
}
