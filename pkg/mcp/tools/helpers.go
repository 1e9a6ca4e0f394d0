package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return trimString(val)
}

// getOptionalBoolWithDefault extracts an optional boolean argument.
func getOptionalBoolWithDefault(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val
		}
	}
	return defaultVal
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64.
func getOptionalInt(req mcp.CallToolRequest, key string, defaultVal int) int {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(float64); ok {
			return int(val)
		}
	}
	return defaultVal
}

// argumentsOf returns the request arguments as a map, empty when absent.
func argumentsOf(req mcp.CallToolRequest) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		return args
	}
	return map[string]any{}
}

// extractArrayParam reads an array argument. Some clients send arrays as a
// JSON-encoded string; those are decoded with a warning. An absent key
// yields nil, nil.
func extractArrayParam(args map[string]any, key string, logger *zap.Logger) ([]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		var parsed []any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("parameter %q could not be parsed as an array; send a native JSON array", key)
		}
		if logger != nil {
			logger.Warn("Array parameter sent as stringified JSON", zap.String("param", key))
		}
		if parsed == nil {
			parsed = []any{}
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("parameter %q must be an array, got %T", key, raw)
	}
}

// extractStringSlice reads an array-of-strings argument.
func extractStringSlice(args map[string]any, key string, logger *zap.Logger) ([]string, error) {
	items, err := extractArrayParam(args, key, logger)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q element %d must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// jsonResult marshals v as an indented text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
