package core

import (
	"context"
	"time"

	"github.com/coregx/strata/internal/tracer"
)

// QueryEvent contains information about one driver call.
// It is passed to QueryHook callbacks for logging, metrics, or tracing.
type QueryEvent struct {
	// SQL is the executed statement.
	SQL string
	// Args are the bound values, unmasked.
	Args []any
	// Duration is how long the driver call took.
	Duration time.Duration
	// RowsAffected is set for Exec calls.
	RowsAffected int64
	// Rows is the number of rows fetched.
	Rows int
	// Error is the driver error, nil on success.
	Error error
	// Operation is SELECT, INSERT, UPDATE, DELETE, BEGIN or UNKNOWN.
	Operation string
}

// QueryHook is a callback invoked after each driver call.
//
// Example:
//
//	db, _ := strata.Open("postgres", dsn,
//	    strata.WithQueryHook(func(ctx context.Context, e strata.QueryEvent) {
//	        metrics.Observe(e.Operation, e.Duration)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

// DetectOperation returns the statement verb, looking past a CTE prefix.
func DetectOperation(sql string) string {
	return tracer.DetectOperation(sql)
}

type callStats struct {
	rowsAffected int64
	rows         int
}

// record logs, annotates the span and invokes the hook for one driver call.
func (db *DB) record(ctx context.Context, span tracer.Span, query string, args []any, elapsed time.Duration, stats callStats, err error) {
	op := DetectOperation(query)
	if query == "BEGIN" {
		op = "BEGIN"
	}

	params := db.sanitizer.FormatParams(db.sanitizer.MaskParams(query, args))
	switch {
	case err != nil:
		db.logger.Error("query failed",
			"sql", query,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"database", db.driverName,
			"error", err,
		)
	default:
		db.logger.Debug("query executed",
			"sql", query,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"rows_affected", stats.rowsAffected,
			"rows", stats.rows,
			"database", db.driverName,
		)
	}

	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:          query,
		Args:         args,
		Duration:     elapsed,
		RowsAffected: stats.rowsAffected,
		Rows:         stats.rows,
		Error:        err,
		Database:     db.dialect.Name(),
		Operation:    op,
	})

	if db.queryHook != nil {
		db.queryHook(ctx, QueryEvent{
			SQL:          query,
			Args:         args,
			Duration:     elapsed,
			RowsAffected: stats.rowsAffected,
			Rows:         stats.rows,
			Error:        err,
			Operation:    op,
		})
	}
}
