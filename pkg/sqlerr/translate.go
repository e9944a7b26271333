// Package sqlerr maps raw query-engine error strings to human-readable
// explanations while preserving the original message as technical detail.
package sqlerr

import (
	"fmt"
	"regexp"
	"strings"
)

type pattern struct {
	re      *regexp.Regexp
	explain func(match []string, columns []string) string
}

// Patterns are tried in order; the first match wins.
var patterns = []pattern{
	{
		re: regexp.MustCompile(`no such column:?\s*([^\s,)]+)`),
		explain: func(match []string, columns []string) string {
			msg := fmt.Sprintf("The column %q does not exist in the dataset.", match[1])
			if len(columns) > 0 {
				msg += " Available columns: " + strings.Join(columns, ", ") + "."
			}
			return msg
		},
	},
	{
		re: regexp.MustCompile(`(?i)\bilike\b`),
		explain: func(match []string, columns []string) string {
			return "Case-insensitive pattern matching with ILIKE is not supported. " +
				"Use LOWER(column) LIKE LOWER(pattern) instead."
		},
	},
	{
		re: regexp.MustCompile(`(?i)(datatype|type) mismatch`),
		explain: func(match []string, columns []string) string {
			return "The query compares or combines values of incompatible types. " +
				"Cast the values to a common type with CAST(... AS ...) first."
		},
	},
	{
		re: regexp.MustCompile(`no such table:?\s*([^\s,)]+)`),
		explain: func(match []string, columns []string) string {
			return fmt.Sprintf("The table %q does not exist in the attached datasets. "+
				"Check the table name against the dataset schema.", match[1])
		},
	},
	{
		re: regexp.MustCompile(`(?i)syntax error`),
		explain: func(match []string, columns []string) string {
			return "The SQL statement has a syntax error. Check for missing keywords, " +
				"unbalanced quotes, or misplaced commas."
		},
	},
	{
		re: regexp.MustCompile(`(?i)division by zero`),
		explain: func(match []string, columns []string) string {
			return "The query divides by zero. Guard the divisor with NULLIF(divisor, 0)."
		},
	},
	{
		re: regexp.MustCompile(`no such function:?\s*([^\s(,)]+)`),
		explain: func(match []string, columns []string) string {
			return fmt.Sprintf("The function %q is not available in this SQL dialect.", match[1])
		},
	},
	{
		re: regexp.MustCompile(`(?i)misuse of aggregate`),
		explain: func(match []string, columns []string) string {
			return "Aggregate functions need a GROUP BY clause when mixed with plain columns."
		},
	},
}

// Translate returns a friendly explanation for a raw execution error, keeping
// the original message as technical detail. Unrecognized messages are returned
// unchanged; a misleading explanation is worse than none. The optional column
// list enriches unknown-column errors.
func Translate(msg string, columns []string) string {
	for _, p := range patterns {
		if match := p.re.FindStringSubmatch(msg); match != nil {
			return p.explain(match, columns) + "\n\nTechnical details: " + msg
		}
	}
	return msg
}
