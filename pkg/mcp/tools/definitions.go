package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterDefinitionTools registers the business glossary tools.
func RegisterDefinitionTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetDefinitionTool(s, deps)
	registerStoreDefinitionTool(s, deps)
	registerGetAllDefinitionsTool(s, deps)
}

func registerGetDefinitionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_definition",
		mcp.WithDescription("Retrieve the business definition for a given term. Input: term string. Output: definition text."),
		mcp.WithString("term", mcp.Required(), mcp.Description("Business term")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term, err := req.RequireString("term")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		term = trimString(term)

		definition, ok, err := deps.Definitions.Get(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("failed to read definitions: %w", err)
		}

		resp := struct {
			Term       string  `json:"term"`
			Definition *string `json:"definition"`
		}{Term: term}
		if ok {
			resp.Definition = &definition
		}
		return jsonResult(resp)
	})
}

func registerStoreDefinitionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"store_definition",
		mcp.WithDescription("Store or update a business definition for a term. Input: term and value strings. Output: success status."),
		mcp.WithString("term", mcp.Required(), mcp.Description("Business term")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Definition of the term")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term, err := req.RequireString("term")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if trimString(term) == "" {
			return NewErrorResult("invalid_parameters", "term cannot be empty"), nil
		}

		if err := deps.Definitions.Put(ctx, term, value); err != nil {
			return nil, fmt.Errorf("failed to store definition: %w", err)
		}
		return jsonResult(struct {
			Success bool `json:"success"`
		}{Success: true})
	})
}

func registerGetAllDefinitionsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_all_definitions",
		mcp.WithDescription("List all stored business definitions. No input. Output: map of term to definition."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		defs, err := deps.Definitions.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read definitions: %w", err)
		}
		return jsonResult(defs)
	})
}
