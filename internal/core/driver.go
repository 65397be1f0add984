package core

import (
	"context"
	"database/sql"

	"github.com/coregx/strata/internal/cache"
)

// Row is one result row keyed by column name. []byte column values are
// converted to string.
type Row map[string]any

// Driver is the capability strata needs from a database connection.
type Driver interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args []any) (sql.Result, error)
	// FetchOne returns the first row, or nil when the query matched nothing.
	FetchOne(ctx context.Context, query string, args []any) (Row, error)
	// FetchAll returns every row.
	FetchAll(ctx context.Context, query string, args []any) ([]Row, error)
	// Begin starts a transaction.
	Begin(ctx context.Context) (TxDriver, error)
}

// TxDriver is a Driver bound to an open transaction.
type TxDriver interface {
	Driver
	Commit() error
	Rollback() error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// sqlDriver adapts database/sql. Statements outside a transaction are
// prepared once and kept in the LRU cache when one is configured.
type sqlDriver struct {
	db    *sql.DB
	tx    *sql.Tx
	cache *cache.StmtCache
}

func newSQLDriver(db *sql.DB, stmtCache *cache.StmtCache) *sqlDriver {
	return &sqlDriver{db: db, cache: stmtCache}
}

func (d *sqlDriver) conn() queryer {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// prepared returns a cached statement in use by the caller, or nil when
// caching does not apply. Callers release it through the cache.
func (d *sqlDriver) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	if d.tx != nil || d.cache == nil {
		return nil, nil
	}
	if stmt, ok := d.cache.Get(query); ok {
		return stmt, nil
	}
	stmt, err := d.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return d.cache.Set(query, stmt), nil
}

func (d *sqlDriver) Exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	stmt, err := d.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	if stmt != nil {
		defer d.cache.Release(stmt)
		return stmt.ExecContext(ctx, args...)
	}
	return d.conn().ExecContext(ctx, query, args...)
}

// query runs a SELECT. done closes the rows and releases the cached
// statement.
func (d *sqlDriver) query(ctx context.Context, query string, args []any) (rows *sql.Rows, done func(), err error) {
	stmt, err := d.prepared(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if stmt == nil {
		rows, err = d.conn().QueryContext(ctx, query, args...)
		if err != nil {
			return nil, nil, err
		}
		return rows, func() { _ = rows.Close() }, nil
	}
	rows, err = stmt.QueryContext(ctx, args...)
	if err != nil {
		d.cache.Release(stmt)
		return nil, nil, err
	}
	return rows, func() {
		_ = rows.Close()
		d.cache.Release(stmt)
	}, nil
}

func (d *sqlDriver) FetchOne(ctx context.Context, query string, args []any) (Row, error) {
	rows, done, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer done()

	out, err := scanRows(rows, 1)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (d *sqlDriver) FetchAll(ctx context.Context, query string, args []any) ([]Row, error) {
	rows, done, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer done()
	return scanRows(rows, 0)
}

func (d *sqlDriver) Begin(ctx context.Context) (TxDriver, error) {
	if d.tx != nil {
		return nil, logicf("nested transactions are not supported")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTxDriver{sqlDriver{db: d.db, tx: tx}}, nil
}

type sqlTxDriver struct {
	sqlDriver
}

func (d *sqlTxDriver) Commit() error   { return d.tx.Commit() }
func (d *sqlTxDriver) Rollback() error { return d.tx.Rollback() }

// scanRows reads rows into maps. limit <= 0 reads everything.
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}
