package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/mcp/tools"
)

const (
	tableMetadataScheme = "table-metadata://"
	tableMetadataAllURI = tableMetadataScheme + "all"
	definitionsAllURI   = "definitions://all"
	jsonMIMEType        = "application/json"
)

type tableEntry struct {
	Name   string `json:"name"`
	Cached bool   `json:"cached"`
}

// RegisterResources registers the table metadata and definitions resources.
func RegisterResources(s *server.MCPServer, deps *tools.ToolDeps) {
	s.AddResource(
		mcp.NewResource(tableMetadataAllURI, "table-metadata",
			mcp.WithResourceDescription("Every table of the default schema, one entry per table"),
			mcp.WithMIMEType(jsonMIMEType),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return listTableResources(ctx, deps)
		},
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(tableMetadataScheme+"{table}", "table-metadata-table",
			mcp.WithTemplateDescription("Cached metadata of one table: columns, relationships, samples and column stats"),
			mcp.WithTemplateMIMEType(jsonMIMEType),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return readTableResource(ctx, deps, req.Params.URI)
		},
	)

	s.AddResource(
		mcp.NewResource(definitionsAllURI, "definitions",
			mcp.WithResourceDescription("All stored business definitions"),
			mcp.WithMIMEType(jsonMIMEType),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			defs, err := deps.Definitions.All(ctx)
			if err != nil {
				return nil, err
			}
			return jsonContents(req.Params.URI, defs)
		},
	)
}

func listTableResources(ctx context.Context, deps *tools.ToolDeps) ([]mcp.ResourceContents, error) {
	tables, err := deps.Metadata.ListTables(ctx, deps.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	cached, err := deps.Metadata.ListCachedTables(ctx, deps.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached tables: %w", err)
	}
	isCached := make(map[string]bool, len(cached))
	for _, t := range cached {
		isCached[t] = true
	}

	contents := make([]mcp.ResourceContents, 0, len(tables))
	for _, t := range tables {
		c, err := jsonContents(tableMetadataScheme+t, tableEntry{Name: t, Cached: isCached[t]})
		if err != nil {
			return nil, err
		}
		contents = append(contents, c...)
	}
	return contents, nil
}

// readTableResource serves a cached document. Cache-not-ready and
// refresh-in-progress are reported in the body so the reader sees them.
func readTableResource(ctx context.Context, deps *tools.ToolDeps, uri string) ([]mcp.ResourceContents, error) {
	table := strings.TrimPrefix(uri, tableMetadataScheme)
	if table == "" || table == uri {
		return nil, fmt.Errorf("invalid table-metadata URI: %s", uri)
	}

	doc, err := deps.Metadata.GetTableSchema(ctx, table, deps.Schema)
	if err != nil {
		if tools.ErrorCode(err) == "" {
			return nil, err
		}
		return jsonContents(uri, map[string]string{"error": apperrors.Message(err)})
	}
	return jsonContents(uri, doc)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: jsonMIMEType, Text: string(data)},
	}, nil
}
