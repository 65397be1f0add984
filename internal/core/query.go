package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/strata/internal/util"
)

// Query is compiled SQL text with its ordered bindings, ready to run.
// Placeholders are already in the dialect's style.
type Query struct {
	sql     string
	params  []any
	builder *QueryBuilder
	ctx     context.Context
	err     error // deferred compile error
}

// SQL returns the statement text.
func (q *Query) SQL() string {
	return q.sql
}

// Params returns the bound values in placeholder order.
func (q *Query) Params() []any {
	return q.params
}

// Err returns the compile error carried by the query, if any.
func (q *Query) Err() error {
	return q.err
}

// WithContext sets the context for this query.
func (q *Query) WithContext(ctx context.Context) *Query {
	q.ctx = ctx
	return q
}

func (q *Query) context() context.Context {
	if q.ctx != nil {
		return q.ctx
	}
	if q.builder != nil {
		return q.builder.context()
	}
	return context.Background()
}

// run executes one driver call with logging, tracing and the query hook.
func (q *Query) run(op string, call func(ctx context.Context, d Driver) (callStats, error)) error {
	if q.err != nil {
		return q.err
	}
	if q.builder == nil || q.builder.db == nil {
		return ErrNoConnection
	}
	driver, err := q.builder.executor()
	if err != nil {
		return err
	}

	db := q.builder.db
	ctx, span := db.tracer.StartSpan(q.context(), "strata.query."+op)
	defer span.End()

	start := time.Now()
	stats, err := call(ctx, driver)
	db.record(ctx, span, q.sql, q.params, time.Since(start), stats, err)
	return err
}

// Execute runs a statement that returns no rows.
func (q *Query) Execute() (sql.Result, error) {
	var result sql.Result
	err := q.run("exec", func(ctx context.Context, d Driver) (callStats, error) {
		var err error
		result, err = d.Exec(ctx, q.sql, q.params)
		var stats callStats
		if err == nil && result != nil {
			stats.rowsAffected, _ = result.RowsAffected()
		}
		return stats, err
	})
	return result, err
}

// Row fetches the first row, or nil when none matched.
func (q *Query) Row() (Row, error) {
	var row Row
	err := q.run("fetch_one", func(ctx context.Context, d Driver) (callStats, error) {
		var err error
		row, err = d.FetchOne(ctx, q.sql, q.params)
		if row != nil {
			return callStats{rows: 1}, err
		}
		return callStats{}, err
	})
	return row, err
}

// Rows fetches every row.
func (q *Query) Rows() ([]Row, error) {
	var rows []Row
	err := q.run("fetch_all", func(ctx context.Context, d Driver) (callStats, error) {
		var err error
		rows, err = d.FetchAll(ctx, q.sql, q.params)
		return callStats{rows: len(rows)}, err
	})
	return rows, err
}

// One decodes the first row into dest (a struct pointer) using db tags.
// It returns sql.ErrNoRows when nothing matched.
func (q *Query) One(dest any) error {
	row, err := q.Row()
	if err != nil {
		return err
	}
	if row == nil {
		return sql.ErrNoRows
	}
	return util.Decode(map[string]any(row), dest)
}

// All decodes every row into dest, a pointer to a slice of structs.
func (q *Query) All(dest any) error {
	rows, err := q.Rows()
	if err != nil {
		return err
	}
	input := make([]map[string]any, len(rows))
	for i, r := range rows {
		input[i] = r
	}
	return util.Decode(input, dest)
}
