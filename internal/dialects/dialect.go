// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, MySQL, and SQLite. A dialect owns every per-database branch the
// statement compiler needs: identifier quoting, placeholders, upsert and
// insert-ignore syntax, lock suffixes, random ordering and JSON path functions.
package dialects

import (
	"fmt"
	"strings"
)

// LockMode selects the row-locking suffix appended to a SELECT.
type LockMode int

const (
	// LockNone renders no suffix.
	LockNone LockMode = iota
	// LockForUpdate renders an exclusive row lock.
	LockForUpdate
	// LockShared renders a shared row lock.
	LockShared
)

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical dialect name (postgres, mysql, sqlite).
	Name() string
	QuoteIdentifier(string) string
	Placeholder(int) string
	// UpsertSQL returns the conflict clause appended after INSERT ... VALUES.
	// Column names are expected to be quoted already. A nil updateCols
	// requests "do nothing" semantics.
	UpsertSQL(table string, conflictCols, updateCols []string) string
	// InsertIgnore returns the leading verb and trailing clause of an
	// insert that silently skips conflicting rows.
	InsertIgnore() (verb, suffix string)
	// LockSQL returns the suffix for the lock mode, or "" when unsupported.
	LockSQL(LockMode) string
	// RandomOrder returns the expression used by ORDER BY for random ordering.
	RandomOrder() string
	// JSONExtract renders the scalar at path inside the (quoted) column.
	JSONExtract(column string, path []string) string
	// JSONContains renders a predicate with exactly one placeholder holding
	// the JSON encoded needle.
	JSONContains(column string, path []string) string
	// JSONLength renders the array length at path inside the column.
	JSONLength(column string, path []string) string
}

var dialects = make(map[string]Dialect)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	if d, ok := dialects[name]; ok {
		return d
	}
	panic("unsupported dialect: " + name)
}

// LookupDialect retrieves a registered dialect by driver name.
func LookupDialect(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}

// jsonPath renders a path list as a quoted JSON path literal: '$."a"."b"'.
// Array indexes stay unquoted: '$."a"[0]'.
func jsonPath(path []string) string {
	var sb strings.Builder
	sb.WriteString("'$")
	for _, p := range path {
		if isIndex(p) {
			fmt.Fprintf(&sb, "[%s]", p)
			continue
		}
		sb.WriteString(`."`)
		sb.WriteString(strings.ReplaceAll(p, "'", "''"))
		sb.WriteString(`"`)
	}
	sb.WriteString("'")
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func buildAssignments(cols []string, format string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf(format, col, col)
	}
	return strings.Join(parts, ", ")
}
