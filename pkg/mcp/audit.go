package mcp

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// CallLogger logs MCP tool calls with their duration and outcome. Arguments
// are sanitized before they reach the log.
type CallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewCallLogger creates a CallLogger writing to logger.
func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{logger: logger.Named("mcp-calls")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, req *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
	c.logger.Debug("MCP request",
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", sanitizeArguments(req.GetArguments())))
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	duration := c.elapsed(id)
	if result != nil && result.IsError {
		c.logger.Info("MCP tool returned error result",
			zap.String("tool", req.Params.Name),
			zap.Duration("duration", duration))
		return
	}
	c.logger.Debug("MCP response success",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", duration))
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		c.logger.Debug("MCP request failed", zap.String("method", string(method)), zap.Error(err))
		return
	}
	tool := ""
	if req, ok := message.(*mcplib.CallToolRequest); ok {
		tool = req.Params.Name
	}
	c.logger.Error("MCP tool call failed",
		zap.String("tool", tool),
		zap.Duration("duration", c.elapsed(id)),
		zap.Error(err))
}

func (c *CallLogger) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

const maxLoggedValue = 200

var (
	sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

	// sqlStringLiteralPattern matches SQL string literals, including '' escapes.
	sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)
)

// sanitizeArguments redacts sensitive fields, hides SQL string literals and
// truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		if isSensitiveKey(lowerKey) {
			result[k] = "[REDACTED]"
			continue
		}

		str, ok := v.(string)
		if !ok {
			result[k] = v
			continue
		}
		if lowerKey == "sql" || lowerKey == "query" {
			str = sqlStringLiteralPattern.ReplaceAllString(str, "'***'")
		}
		if len(str) > maxLoggedValue {
			str = str[:maxLoggedValue] + "..."
		}
		result[k] = str
	}
	return result
}

func isSensitiveKey(lowerKey string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
