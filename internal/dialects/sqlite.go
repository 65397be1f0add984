package dialects

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// UpsertSQL generates SQLite UPSERT syntax using ON CONFLICT.
func (d *SQLiteDialect) UpsertSQL(_ string, conflictCols, updateCols []string) string {
	if updateCols == nil {
		if len(conflictCols) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictCols, ", "))
		}
		return " ON CONFLICT DO NOTHING"
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictCols, ", "),
		buildAssignments(updateCols, "%s = excluded.%s"))
}

// InsertIgnore uses INSERT OR IGNORE.
func (d *SQLiteDialect) InsertIgnore() (string, string) {
	return "INSERT OR IGNORE INTO", ""
}

// LockSQL returns "" since SQLite locks whole databases, not rows.
func (d *SQLiteDialect) LockSQL(_ LockMode) string { return "" }

// RandomOrder returns RANDOM().
func (d *SQLiteDialect) RandomOrder() string { return "RANDOM()" }

// JSONExtract uses json_extract.
func (d *SQLiteDialect) JSONExtract(column string, path []string) string {
	return fmt.Sprintf("json_extract(%s, %s)", column, jsonPath(path))
}

// JSONContains checks membership through json_each.
func (d *SQLiteDialect) JSONContains(column string, path []string) string {
	return fmt.Sprintf("exists (select 1 from json_each(%s, %s) where json_each.value = json_extract(?, '$'))", column, jsonPath(path))
}

// JSONLength uses json_array_length.
func (d *SQLiteDialect) JSONLength(column string, path []string) string {
	return fmt.Sprintf("json_array_length(%s, %s)", column, jsonPath(path))
}
