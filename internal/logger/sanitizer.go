package logger

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultSensitiveFields is used when NewSanitizer receives no field names.
var DefaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey",
	"secret", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "private_key",
}

// Sanitizer masks parameter values bound to sensitive columns before they
// reach a log record. Each "?" placeholder is attributed to a column: for
// INSERT statements by its position in the column list, otherwise by the
// nearest identifier to its left ("password" = ?, email IN (?, ?)).
type Sanitizer struct {
	fields    []string
	maskValue string
}

// NewSanitizer creates a sanitizer for the given column names.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = DefaultSensitiveFields
	}
	fields := make([]string, len(sensitiveFields))
	for i, f := range sensitiveFields {
		fields[i] = strings.ToLower(f)
	}
	return &Sanitizer{fields: fields, maskValue: "***REDACTED***"}
}

// MaskParams returns a copy of params with sensitive values replaced.
// The query must use "?" placeholders.
func (s *Sanitizer) MaskParams(query string, params []any) []any {
	if len(params) == 0 {
		return params
	}
	columns := placeholderColumns(query)
	var masked []any
	for i, col := range columns {
		if i >= len(params) || !s.isSensitive(col) {
			continue
		}
		if masked == nil {
			masked = append([]any(nil), params...)
		}
		masked[i] = s.maskValue
	}
	if masked == nil {
		return params
	}
	return masked
}

func (s *Sanitizer) isSensitive(column string) bool {
	if column == "" {
		return false
	}
	column = strings.ToLower(column)
	for _, f := range s.fields {
		if strings.Contains(column, f) {
			return true
		}
	}
	return false
}

// FormatParams renders params for a log line, truncating long values.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

var keywords = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "IN": true, "IS": true, "NULL": true,
	"LIKE": true, "BETWEEN": true, "SET": true, "VALUES": true, "WHERE": true,
	"SELECT": true, "FROM": true, "ON": true, "AS": true, "LIMIT": true, "OFFSET": true,
	"HAVING": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
}

// placeholderColumns returns, for each "?" in query, the column it binds.
func placeholderColumns(query string) []string {
	insertCols := insertColumnList(query)
	var out []string
	last := ""
	valuesDepth, valuesIndex := -1, 0
	depth := 0

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			i = skipQuoted(query, i, '\'')
		case c == '"' || c == '`':
			end := skipQuoted(query, i, c)
			if end > i {
				last = query[i+1 : end]
			}
			i = end
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == valuesDepth:
			valuesIndex++
		case c == '?':
			col := last
			if insertCols != nil && valuesDepth >= 0 && depth == valuesDepth && valuesIndex < len(insertCols) {
				col = insertCols[valuesIndex]
			}
			out = append(out, col)
		case isWordStart(c):
			j := i
			for j < len(query) && isWordPart(query[j]) {
				j++
			}
			word := query[i:j]
			switch kw := strings.ToUpper(word); {
			case kw == "VALUES" && insertCols != nil:
				// The next "(" opens a row group.
				valuesDepth, valuesIndex = depth+1, 0
			case kw == "SET" || kw == "WHERE":
				last = ""
			case !keywords[kw]:
				last = word
			}
			i = j - 1
		}
		if c == '(' && valuesDepth == depth && insertCols != nil {
			valuesIndex = 0
		}
	}
	return out
}

// insertColumnList returns the column names of an INSERT ... (cols) VALUES statement.
func insertColumnList(query string) []string {
	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "INSERT") {
		return nil
	}
	open := strings.Index(trimmed, "(")
	values := strings.Index(upper, "VALUES")
	if open < 0 || values < 0 || open > values {
		return nil
	}
	closeIdx := strings.LastIndex(trimmed[:values], ")")
	if closeIdx < open {
		return nil
	}
	parts := strings.Split(trimmed[open+1:closeIdx], ",")
	cols := make([]string, len(parts))
	for i, p := range parts {
		cols[i] = strings.Trim(strings.TrimSpace(p), "\"`")
	}
	return cols
}

func skipQuoted(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] == quote {
			if j+1 < len(s) && s[j+1] == quote {
				j++
				continue
			}
			return j
		}
	}
	return len(s) - 1
}

func isWordStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isWordPart(c byte) bool {
	return c == '_' || c == '.' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
