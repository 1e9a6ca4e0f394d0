// Package sql provides SQL validation utilities.
package sql

import (
	"errors"
	"strings"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = apperrors.ErrMultipleStatements
	// ErrEmptyQuery indicates the query has no statement at all.
	ErrEmptyQuery = errors.New("query is empty")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks that sqlQuery is exactly one statement. The
// normalized form has comments removed and no trailing semicolon.
// This is the only syntactic check applied to caller SQL.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	statements := SplitStatements(sqlQuery)

	switch len(statements) {
	case 0:
		return ValidationResult{Error: ErrEmptyQuery}
	case 1:
		return ValidationResult{NormalizedSQL: statements[0]}
	default:
		return ValidationResult{Error: ErrMultipleStatements}
	}
}

// SplitStatements strips comments and splits sqlQuery on semicolons that sit
// outside string literals and quoted identifiers. Empty statements are dropped.
func SplitStatements(sqlQuery string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			statements = append(statements, s)
		}
		current.Reset()
	}

	scan(sqlQuery, func(r rune, state int) {
		switch state {
		case stateComment:
			return
		case stateNormal:
			if r == ';' {
				flush()
				return
			}
		}
		current.WriteRune(r)
	})
	flush()

	return statements
}

const (
	stateNormal = iota
	stateLiteral
	stateComment
)

// scan walks sqlQuery and reports every rune with whether it belongs to plain
// SQL, a quoted literal/identifier, or a comment (markers included).
//
// Single and double quotes accept backslash escapes and doubled quotes;
// MySQL backtick identifiers accept doubled backticks. Line comments start
// with "--" or "#"; block comments are "/* ... */" and do not nest.
func scan(sqlQuery string, visit func(r rune, state int)) {
	runes := []rune(sqlQuery)
	n := len(runes)

	for i := 0; i < n; i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < n {
			next = runes[i+1]
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			visit(r, stateLiteral)
			i = scanQuoted(runes, i+1, r, visit)
		case (r == '-' && next == '-') || r == '#':
			for ; i < n && runes[i] != '\n'; i++ {
				visit(runes[i], stateComment)
			}
			if i < n {
				visit(runes[i], stateNormal)
			}
		case r == '/' && next == '*':
			visit(r, stateComment)
			visit(next, stateComment)
			i += 2
			for ; i < n; i++ {
				visit(runes[i], stateComment)
				if runes[i] == '*' && i+1 < n && runes[i+1] == '/' {
					i++
					visit(runes[i], stateComment)
					break
				}
			}
		default:
			visit(r, stateNormal)
		}
	}
}

// scanQuoted consumes a quoted section starting after the opening quote and
// returns the index of the closing quote (or the last rune if unterminated).
func scanQuoted(runes []rune, i int, quote rune, visit func(r rune, state int)) int {
	n := len(runes)
	for ; i < n; i++ {
		r := runes[i]
		visit(r, stateLiteral)
		if r == '\\' && quote != '`' && i+1 < n {
			i++
			visit(runes[i], stateLiteral)
			continue
		}
		if r == quote {
			if i+1 < n && runes[i+1] == quote {
				i++
				visit(runes[i], stateLiteral)
				continue
			}
			return i
		}
	}
	return n - 1
}
