package filter

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Encoder converts filters to SQL condition strings.
// Implementations handle dialect-specific syntax.
type Encoder interface {
	// Encode converts a filter to the body of a WHERE clause.
	// Returns empty string if nothing in the filter can be pushed down.
	Encode(f Filter) string
}

// EncoderOptions configures encoding behavior.
type EncoderOptions struct {
	// ColumnMapping maps field paths (as rendered by FieldPath.String) to column names.
	// Fields not in the map are addressed by their path segments.
	ColumnMapping map[string]string

	// ColumnExpressions maps field paths to SQL expressions.
	// Takes precedence over ColumnMapping.
	ColumnExpressions map[string]string

	// Schema, when set, lets the encoder skip comparisons whose value type
	// cannot match the column type. Such comparisons never match a document,
	// so leaving them to residual evaluation is safe.
	Schema *arrow.Schema
}

// escapeString escapes single quotes in a string value for SQL.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteLiteral returns a SQL string literal with proper escaping.
func quoteLiteral(s string) string {
	return "'" + escapeString(s) + "'"
}

// quoteIdentifier returns a quoted identifier if needed.
// DuckDB uses double quotes for identifiers.
func quoteIdentifier(name string) string {
	if needsQuoting(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

func needsQuoting(name string) bool {
	if len(name) == 0 {
		return true
	}
	c := name[0]
	if !isLetter(c) && c != '_' {
		return true
	}
	for i := 1; i < len(name); i++ {
		c = name[i]
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return true
		}
	}
	return reservedWords[strings.ToUpper(name)]
}

var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"NULL": true, "TRUE": true, "FALSE": true, "TABLE": true, "IN": true, "IS": true,
	"LIKE": true, "BETWEEN": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true, "ORDER": true, "BY": true, "GROUP": true, "LIMIT": true, "AS": true,
	"ON": true, "ALL": true, "DISTINCT": true, "KEY": true, "DEFAULT": true, "ASC": true,
	"DESC": true, "CAST": true, "DATE": true, "TIME": true, "TIMESTAMP": true, "ARRAY": true,
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
