package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/config"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// GenerateSQLPromptName is the MCP prompt name for SQL generation.
const GenerateSQLPromptName = "generate-sql"

// GenerateSQLInput is everything the SQL generation prompt is built from.
type GenerateSQLInput struct {
	Question    string
	Engine      string
	Tables      map[string]*models.TableMetadata
	Definitions map[string]string
}

// DialectName returns the SQL dialect the model should write for engine.
func DialectName(engine string) string {
	switch engine {
	case config.EnginePostgres:
		return "PostgreSQL"
	case config.EngineMySQL:
		return "MySQL"
	default:
		return "standard SQL"
	}
}

// BuildGenerateSQLSystemMessage returns the instruction part of the prompt.
func BuildGenerateSQLSystemMessage(engine string) string {
	return fmt.Sprintf("You are a helpful SQL assistant. Generate valid SQL using %s syntax. Only answer with SQL.",
		DialectName(engine))
}

// BuildGenerateSQLPrompt creates the user message for SQL generation. Table
// metadata and definitions are embedded as indented JSON so the model sees
// the cached documents exactly as describe_table returns them.
func BuildGenerateSQLPrompt(in GenerateSQLInput) (string, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	tables := in.Tables
	if tables == nil {
		tables = map[string]*models.TableMetadata{}
	}
	definitions := in.Definitions
	if definitions == nil {
		definitions = map[string]string{}
	}

	tableJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode table metadata: %w", err)
	}
	defJSON, err := json.MarshalIndent(definitions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode definitions: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString(BuildGenerateSQLSystemMessage(in.Engine))
	prompt.WriteString(" Question: ")
	prompt.WriteString(question)

	if names := relationshipHints(tables); len(names) > 0 {
		prompt.WriteString("\n\nJoin paths:\n")
		for _, n := range names {
			prompt.WriteString("- ")
			prompt.WriteString(n)
			prompt.WriteString("\n")
		}
	}

	prompt.WriteString("\n\nTable Metadata: ")
	prompt.Write(tableJSON)
	prompt.WriteString("\n\nDefinitions: ")
	prompt.Write(defJSON)

	return prompt.String(), nil
}

// relationshipHints lists FK edges as "orders.user_id → users.id", sorted.
func relationshipHints(tables map[string]*models.TableMetadata) []string {
	var hints []string
	for name, doc := range tables {
		if doc == nil {
			continue
		}
		for _, rel := range doc.Relationships {
			hints = append(hints, fmt.Sprintf("%s.%s → %s.%s", name, rel.SourceColumn, rel.TargetTable, rel.TargetColumn))
		}
	}
	sort.Strings(hints)
	return hints
}
