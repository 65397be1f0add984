package core

import (
	"regexp"
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

var (
	// identPattern accepts "col", "table.col" and "table.*".
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?$`)
	// aliasPattern splits "expr AS alias" where expr carries no spaces.
	aliasPattern = regexp.MustCompile(`(?i)^(\S+)\s+as\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	// tableAliasPattern splits "table alias".
	tableAliasPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s+([A-Za-z_][A-Za-z0-9_]*)$`)
)

// isIdentifier reports whether name would be quoted by quoteName.
func isIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// quoteName quotes a column reference. Names that are not plain identifiers
// (function calls, arithmetic, already quoted text) pass through unchanged.
func quoteName(d dialects.Dialect, name string) string {
	name = strings.TrimSpace(name)
	if name == "*" || name == "" {
		return name
	}
	if m := aliasPattern.FindStringSubmatch(name); m != nil {
		return quoteName(d, m[1]) + " AS " + d.QuoteIdentifier(m[2])
	}
	if !identPattern.MatchString(name) {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "*" {
			parts[i] = d.QuoteIdentifier(p)
		}
	}
	return strings.Join(parts, ".")
}

// quoteTable quotes a table reference, accepting "table", "table AS t" and "table t".
func quoteTable(d dialects.Dialect, name string) string {
	name = strings.TrimSpace(name)
	if m := tableAliasPattern.FindStringSubmatch(name); m != nil && !strings.EqualFold(m[2], "as") {
		return quoteName(d, m[1]) + " AS " + d.QuoteIdentifier(m[2])
	}
	return quoteName(d, name)
}

// quoteNames quotes every name in cols.
func quoteNames(d dialects.Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteName(d, c)
	}
	return out
}

// tableReference returns the name used to qualify columns of a table
// expression: the alias if one is given, else the table name itself.
func tableReference(table string) string {
	table = strings.TrimSpace(table)
	if m := aliasPattern.FindStringSubmatch(table); m != nil {
		return m[2]
	}
	if m := tableAliasPattern.FindStringSubmatch(table); m != nil {
		return m[2]
	}
	return table
}
