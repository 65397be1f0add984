// Package analyzer turns EXPLAIN output of PostgreSQL, MySQL and SQLite into
// one Plan shape.
package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// ErrUnsupported is returned for a dialect or mode without EXPLAIN support.
var ErrUnsupported = errors.New("explain not supported")

// Plan is a query plan summary.
type Plan struct {
	Dialect       string
	Cost          float64 // dialect units; zero on SQLite
	EstimatedRows int64
	UsesIndex     bool
	IndexName     string // first index seen
	FullScan      bool
	Steps         []string // node or detail lines, outermost first

	// Only set by an analyzing explain.
	ActualRows  int64
	ActualTime  time.Duration
	BuffersHit  int64
	BuffersMiss int64

	Raw string
}

// Prefix returns the EXPLAIN keyword sequence to put before a statement.
// analyze executes the statement and is only available on PostgreSQL.
func Prefix(dialect string, analyze bool) (string, error) {
	switch dialect {
	case "postgres":
		if analyze {
			return "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) ", nil
		}
		return "EXPLAIN (FORMAT JSON) ", nil
	case "mysql":
		if !analyze {
			return "EXPLAIN FORMAT=JSON ", nil
		}
	case "sqlite":
		if !analyze {
			return "EXPLAIN QUERY PLAN ", nil
		}
	}
	mode := "explain"
	if analyze {
		mode = "explain analyze"
	}
	return "", fmt.Errorf("%w: %s on %q", ErrUnsupported, mode, dialect)
}

// Parse reads the rows an EXPLAIN produced.
func Parse(dialect string, rows []map[string]any) (*Plan, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty explain output")
	}
	var (
		plan *Plan
		err  error
	)
	switch dialect {
	case "postgres":
		plan, err = parsePostgres(firstColumn(rows[0], "QUERY PLAN"))
	case "mysql":
		plan, err = parseMySQL(firstColumn(rows[0], "EXPLAIN"))
	case "sqlite":
		lines := make([]string, 0, len(rows))
		for _, r := range rows {
			lines = append(lines, cast.ToString(r["detail"]))
		}
		plan = parseSQLite(lines)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s explain: %w", dialect, err)
	}
	plan.Dialect = dialect
	return plan, nil
}

// firstColumn returns the named column, or the only column when the driver
// labels it differently.
func firstColumn(row map[string]any, name string) string {
	if v, ok := row[name]; ok {
		return cast.ToString(v)
	}
	for _, v := range row {
		return cast.ToString(v)
	}
	return ""
}
