package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/services"
)

const defaultRelatedDepth = 1

// sqlContext is the cached metadata and glossary a SQL prompt is built from.
type sqlContext struct {
	Schema      string
	Tables      map[string]*models.TableMetadata
	Related     []string
	Uncached    []string
	Definitions map[string]string
}

// gatherSQLContext reads the named tables from the cache, or every cached
// table when none are named. With includeRelated, FK neighbours up to depth
// hops away are added; neighbours without a cached document are reported in
// Uncached instead of failing the call.
func gatherSQLContext(ctx context.Context, deps *ToolDeps, schema string, tables []string, includeRelated bool, depth int) (*sqlContext, error) {
	out := &sqlContext{
		Schema: schema,
		Tables: map[string]*models.TableMetadata{},
	}

	if len(tables) == 0 {
		cached, err := deps.Metadata.ListCachedTables(ctx, schema)
		if err != nil {
			return nil, err
		}
		if len(cached) == 0 {
			return nil, apperrors.New(apperrors.ErrCacheNotReady, "Metadata cache not ready. Please run refresh_metadata.")
		}
		tables = cached
	}

	for _, t := range tables {
		doc, err := deps.Metadata.GetTableSchema(ctx, t, schema)
		if err != nil {
			return nil, err
		}
		out.Tables[t] = doc
	}

	if includeRelated {
		if err := addRelatedTables(ctx, deps, out, tables, depth); err != nil {
			return nil, err
		}
	}

	defs, err := deps.Definitions.All(ctx)
	if err != nil {
		return nil, err
	}
	out.Definitions = defs
	return out, nil
}

func addRelatedTables(ctx context.Context, deps *ToolDeps, out *sqlContext, seeds []string, depth int) error {
	cached, err := deps.Metadata.ListCachedTables(ctx, out.Schema)
	if err != nil {
		return err
	}

	docs := make(map[string]*models.TableMetadata, len(cached))
	for _, t := range cached {
		if doc, ok := out.Tables[t]; ok {
			docs[t] = doc
			continue
		}
		doc, err := deps.Metadata.GetTableSchema(ctx, t, out.Schema)
		if err != nil {
			// Tables mid-refresh simply contribute no edges.
			continue
		}
		docs[t] = doc
	}

	out.Related = services.NewRelationshipGraph(docs).Related(seeds, depth)
	for _, t := range out.Related {
		if doc, ok := docs[t]; ok {
			out.Tables[t] = doc
		} else {
			out.Uncached = append(out.Uncached, t)
		}
	}
	return nil
}

type generateSQLParams struct {
	Question      string                           `json:"question"`
	TableMetadata map[string]*models.TableMetadata `json:"tableMetadata"`
	Definitions   map[string]string                `json:"definitions"`
}

type generateSQLResponse struct {
	Prompt         string            `json:"prompt"`
	Dialect        string            `json:"dialect"`
	Params         generateSQLParams `json:"params"`
	RelatedTables  []string          `json:"relatedTables,omitempty"`
	UncachedTables []string          `json:"uncachedTables,omitempty"`
	Text           string            `json:"text"`
}

// RegisterGenerateSQLTool registers generate_sql, which assembles the
// generate-sql prompt from cached metadata and stored definitions.
func RegisterGenerateSQLTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"generate_sql",
		mcp.WithDescription(
			"Generate a SQL query for a natural language question, using available schema and definitions. "+
				"Input: question string and optional tables. Output: the generate-sql prompt with the table metadata and definitions it uses.",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithArray(
			"tables",
			mcp.Description("Optional: tables to include (default: every cached table)"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean(
			"include_related",
			mcp.Description("Also include tables linked to the named tables by foreign keys (default: false)"),
		),
		mcp.WithNumber(
			"related_depth",
			mcp.Description("Foreign-key hops to follow when include_related is set (default: 1)"),
		),
		withSchemaArg(),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if trimString(question) == "" {
			return NewErrorResult("invalid_parameters", "question cannot be empty"), nil
		}

		tables, err := extractStringSlice(argumentsOf(req), "tables", deps.Logger)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		includeRelated := getOptionalBoolWithDefault(req, "include_related", false)
		depth := getOptionalInt(req, "related_depth", defaultRelatedDepth)
		schema := deps.schemaFor(getOptionalString(req, "schema"))

		sc, err := gatherSQLContext(ctx, deps, schema, tables, includeRelated, depth)
		if err != nil {
			return toolError(err)
		}

		engine := deps.Metadata.Engine()
		text, err := prompts.BuildGenerateSQLPrompt(prompts.GenerateSQLInput{
			Question:    question,
			Engine:      engine,
			Tables:      sc.Tables,
			Definitions: sc.Definitions,
		})
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		deps.Logger.Debug("Built generate-sql prompt",
			zap.String("schema", schema),
			zap.Int("tables", len(sc.Tables)),
			zap.Strings("related", sc.Related))

		return jsonResult(generateSQLResponse{
			Prompt:  prompts.GenerateSQLPromptName,
			Dialect: prompts.DialectName(engine),
			Params: generateSQLParams{
				Question:      question,
				TableMetadata: sc.Tables,
				Definitions:   sc.Definitions,
			},
			RelatedTables:  sc.Related,
			UncachedTables: sc.Uncached,
			Text:           text,
		})
	})
}

// RegisterGenerateSQLPrompt registers the generate-sql prompt. Callers may
// pass tableMetadata and definitions as JSON; anything omitted is read from
// the cache and the definitions store.
func RegisterGenerateSQLPrompt(s *server.MCPServer, deps *ToolDeps) {
	prompt := mcp.NewPrompt(
		prompts.GenerateSQLPromptName,
		mcp.WithPromptDescription("Generate SQL for a question using the cached table metadata and business definitions"),
		mcp.WithArgument("question", mcp.RequiredArgument(), mcp.ArgumentDescription("Natural language question")),
		mcp.WithArgument("tables", mcp.ArgumentDescription("Comma-separated table names (default: every cached table)")),
		mcp.WithArgument("schema", mcp.ArgumentDescription("Schema to use")),
		mcp.WithArgument("tableMetadata", mcp.ArgumentDescription("Table metadata as a JSON object keyed by table name")),
		mcp.WithArgument("definitions", mcp.ArgumentDescription("Definitions as a JSON object of term to definition")),
	)

	s.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		question := trimString(args["question"])
		if question == "" {
			return nil, errors.New("question cannot be empty")
		}

		in := prompts.GenerateSQLInput{Question: question, Engine: deps.Metadata.Engine()}

		if raw := trimString(args["tableMetadata"]); raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.Tables); err != nil {
				return nil, fmt.Errorf("invalid tableMetadata: %w", err)
			}
		}
		if raw := trimString(args["definitions"]); raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.Definitions); err != nil {
				return nil, fmt.Errorf("invalid definitions: %w", err)
			}
		}

		switch {
		case in.Tables == nil:
			sc, err := gatherSQLContext(ctx, deps, deps.schemaFor(trimString(args["schema"])), splitList(args["tables"]), false, 0)
			if err != nil {
				return nil, errors.New(apperrors.Message(err))
			}
			in.Tables = sc.Tables
			if in.Definitions == nil {
				in.Definitions = sc.Definitions
			}
		case in.Definitions == nil:
			defs, err := deps.Definitions.All(ctx)
			if err != nil {
				return nil, err
			}
			in.Definitions = defs
		}

		text, err := prompts.BuildGenerateSQLPrompt(in)
		if err != nil {
			return nil, err
		}
		return mcp.NewGetPromptResult(
			"Generate SQL",
			[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))},
		), nil
	})
}

// splitList splits a comma-separated argument, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = trimString(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
