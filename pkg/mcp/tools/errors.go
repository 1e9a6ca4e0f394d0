package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the message visible to the calling
// agent instead of surfacing as a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (refresh first, wait, narrow the
// request). System failures are returned as Go errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// actionableCodes maps caller-actionable error kinds to result codes.
var actionableCodes = []struct {
	kind error
	code string
}{
	{apperrors.ErrCacheNotReady, "cache_not_ready"},
	{apperrors.ErrAlreadyRefreshing, "already_refreshing"},
	{apperrors.ErrRefreshInProgress, "refresh_in_progress"},
	{apperrors.ErrTooManyTables, "too_many_tables"},
	{apperrors.ErrNotFound, "not_found"},
	{apperrors.ErrMultipleStatements, "invalid_sql"},
}

// ErrorCode returns the result code for an actionable error, or "" when err
// is a system failure.
func ErrorCode(err error) string {
	for _, c := range actionableCodes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ""
}

// toolError turns err into a structured result when the caller can act on
// it and passes it through as a Go error otherwise.
func toolError(err error) (*mcp.CallToolResult, error) {
	if code := ErrorCode(err); code != "" {
		return NewErrorResult(code, apperrors.Message(err)), nil
	}
	return nil, err
}

// sqlStateRegex matches SQLSTATE codes in error messages like "(SQLSTATE 42601)"
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError returns true if the error is a SQL user error (bad SQL,
// missing table, write attempted in the read-only transaction) rather than
// a server error.
//
// SQLSTATE classes treated as user errors, shared by PostgreSQL and MySQL:
//   - 22xxx: Data Exception
//   - 23xxx: Integrity Constraint Violation
//   - 25xxx: Invalid Transaction State (read-only violations)
//   - 42xxx: Syntax Error or Access Rule Violation
//   - 44xxx: WITH CHECK OPTION Violation
func IsSQLUserError(err error) bool {
	state := sqlState(err)
	return state != "" && isSQLStateUserError(state)
}

// sqlState extracts the SQLSTATE of a pgx or MySQL driver error, or from a
// "(SQLSTATE xxxxx)" suffix of a wrapped message.
func sqlState(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		if state := string(myErr.SQLState[:]); strings.Trim(state, "\x00") != "" {
			return state
		}
		return mysqlNumberToState(myErr.Number)
	}

	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// mysqlNumberToState covers server errors reported without a SQLSTATE.
func mysqlNumberToState(number uint16) string {
	switch number {
	case 1064: // ER_PARSE_ERROR
		return "42000"
	case 1146: // ER_NO_SUCH_TABLE
		return "42S02"
	case 1054: // ER_BAD_FIELD_ERROR
		return "42S22"
	case 1792: // ER_CANT_EXECUTE_IN_READ_ONLY_TRANSACTION
		return "25006"
	}
	return ""
}

// isSQLStateUserError returns true if the SQLSTATE code indicates a user error.
func isSQLStateUserError(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", "23", "25", "42", "44":
		return true
	}
	return false
}

// SQLUserErrorCode returns a readable code for a SQL user error, or "" when
// err is not one.
func SQLUserErrorCode(err error) string {
	if !IsSQLUserError(err) {
		return ""
	}
	return mapSQLStateToCode(sqlState(err))
}

// mapSQLStateToCode maps a SQLSTATE code to a human-readable error code.
func mapSQLStateToCode(state string) string {
	switch state {
	case "42601", "42000":
		return "syntax_error"
	case "42703", "42S22":
		return "undefined_column"
	case "42P01", "42S02":
		return "undefined_table"
	case "25006":
		return "read_only_violation"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	}

	switch state[:2] {
	case "22":
		return "data_exception"
	case "23":
		return "constraint_violation"
	case "25":
		return "transaction_state"
	case "44":
		return "check_option_violation"
	}
	return "sql_error"
}

// inputErrorPatterns are substrings of errors caused by caller input.
var inputErrorPatterns = []string{
	"not found",
	"multiple sql statements",
	"query is empty",
	"cannot be empty",
}

// IsInputError reports whether err was caused by caller input rather than a
// server failure. Input errors are logged at DEBUG, not ERROR.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if IsSQLUserError(err) || ErrorCode(err) != "" {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range inputErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
