package dialects

import (
	"fmt"
	"strings"
)

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// UpsertSQL generates MySQL UPSERT syntax using ON DUPLICATE KEY UPDATE.
// MySQL has no "do nothing" form; callers wanting it use InsertIgnore.
func (d *MySQLDialect) UpsertSQL(_ string, _, updateCols []string) string {
	if len(updateCols) == 0 {
		return ""
	}
	return " ON DUPLICATE KEY UPDATE " + buildAssignments(updateCols, "%s = VALUES(%s)")
}

// InsertIgnore uses INSERT IGNORE.
func (d *MySQLDialect) InsertIgnore() (string, string) {
	return "INSERT IGNORE INTO", ""
}

// LockSQL returns FOR UPDATE or LOCK IN SHARE MODE.
func (d *MySQLDialect) LockSQL(mode LockMode) string {
	switch mode {
	case LockForUpdate:
		return "FOR UPDATE"
	case LockShared:
		return "LOCK IN SHARE MODE"
	default:
		return ""
	}
}

// RandomOrder returns RAND().
func (d *MySQLDialect) RandomOrder() string { return "RAND()" }

// JSONExtract uses json_unquote(json_extract(...)).
func (d *MySQLDialect) JSONExtract(column string, path []string) string {
	return fmt.Sprintf("json_unquote(json_extract(%s, %s))", column, jsonPath(path))
}

// JSONContains uses json_contains.
func (d *MySQLDialect) JSONContains(column string, path []string) string {
	return fmt.Sprintf("json_contains(%s, ?, %s)", column, jsonPath(path))
}

// JSONLength uses json_length.
func (d *MySQLDialect) JSONLength(column string, path []string) string {
	return fmt.Sprintf("json_length(%s, %s)", column, jsonPath(path))
}
