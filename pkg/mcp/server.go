package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer with the tools, resources and prompt
// of ekaya-dbmeta.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger) *Server {
	calls := NewCallLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(calls.Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// NewMetadataServer creates a server with every tool, resource and prompt
// registered against deps.
func NewMetadataServer(name string, deps *tools.ToolDeps) *Server {
	s := NewServer(name, deps.Version, deps.Logger)
	tools.RegisterAll(s.mcp, deps)
	RegisterResources(s.mcp, deps)
	return s
}

// ServeStdio serves the MCP protocol over in/out until ctx is done or in is
// closed. Transport errors are logged through the server's logger since
// stdout belongs to the protocol.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("Serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}
