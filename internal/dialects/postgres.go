package dialects

import (
	"fmt"
	"strings"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
	RegisterDialect("pgx", &PostgresDialect{})
}

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// UpsertSQL generates PostgreSQL UPSERT syntax using ON CONFLICT.
func (d *PostgresDialect) UpsertSQL(_ string, conflictCols, updateCols []string) string {
	if updateCols == nil {
		if len(conflictCols) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictCols, ", "))
		}
		return " ON CONFLICT DO NOTHING"
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictCols, ", "),
		buildAssignments(updateCols, "%s = EXCLUDED.%s"),
	)
}

// InsertIgnore uses ON CONFLICT DO NOTHING.
func (d *PostgresDialect) InsertIgnore() (string, string) {
	return "INSERT INTO", " ON CONFLICT DO NOTHING"
}

// LockSQL returns FOR UPDATE or FOR SHARE.
func (d *PostgresDialect) LockSQL(mode LockMode) string {
	switch mode {
	case LockForUpdate:
		return "FOR UPDATE"
	case LockShared:
		return "FOR SHARE"
	default:
		return ""
	}
}

// RandomOrder returns RANDOM().
func (d *PostgresDialect) RandomOrder() string { return "RANDOM()" }

// JSONExtract uses the -> and ->> operators.
func (d *PostgresDialect) JSONExtract(column string, path []string) string {
	if len(path) == 0 {
		return column
	}
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(column)
	for i, p := range path {
		op := "->"
		if i == len(path)-1 {
			op = "->>"
		}
		sb.WriteString(op)
		sb.WriteString(pgPathElement(p))
	}
	sb.WriteString(")")
	return sb.String()
}

// JSONContains uses jsonb containment.
func (d *PostgresDialect) JSONContains(column string, path []string) string {
	return "(" + pgJSONPath(column, path) + ")::jsonb @> ?"
}

// JSONLength uses jsonb_array_length.
func (d *PostgresDialect) JSONLength(column string, path []string) string {
	return "jsonb_array_length((" + pgJSONPath(column, path) + ")::jsonb)"
}

func pgJSONPath(column string, path []string) string {
	var sb strings.Builder
	sb.WriteString(column)
	for _, p := range path {
		sb.WriteString("->")
		sb.WriteString(pgPathElement(p))
	}
	return sb.String()
}

func pgPathElement(p string) string {
	if isIndex(p) {
		return p
	}
	return "'" + strings.ReplaceAll(p, "'", "''") + "'"
}
