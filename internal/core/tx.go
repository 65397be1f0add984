package core

import (
	"context"
	"time"
)

// Tx is an open transaction. Statements built from it run on the
// transaction's connection.
type Tx struct {
	db     *DB
	conn   *DB
	driver TxDriver
	ctx    context.Context
	done   bool
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if db.driver == nil {
		return nil, ErrNoConnection
	}
	if db.tx != nil {
		return nil, logicf("transaction already open on this connection")
	}

	ctx, span := db.tracer.StartSpan(ctx, "strata.query.begin")
	defer span.End()

	start := time.Now()
	driver, err := db.driver.Begin(ctx)
	db.record(ctx, span, "BEGIN", nil, time.Since(start), callStats{}, err)
	if err != nil {
		return nil, err
	}
	tx := &Tx{db: db, driver: driver, ctx: ctx}
	conn := db.WithContext(ctx)
	conn.tx = tx
	conn.health = nil
	tx.conn = conn
	return tx, nil
}

// Transactional runs fn inside a transaction. The transaction is committed
// when fn returns nil. It is rolled back when fn returns an error, which is
// then returned unchanged, or when fn panics, in which case the panic is
// re-raised after the rollback. On a connection already bound to a
// transaction fn joins it; there are no savepoints.
func (db *DB) Transactional(ctx context.Context, fn func(tx *Tx) error) (err error) {
	if db.tx != nil {
		if db.tx.done {
			return ErrTxDone
		}
		return fn(db.tx)
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Builder returns a query builder whose statements run in the transaction.
func (tx *Tx) Builder() *QueryBuilder {
	return &QueryBuilder{db: tx.db, tx: tx, ctx: tx.ctx}
}

// Table starts a statement against table inside the transaction.
func (tx *Tx) Table(table string) *Statement {
	return tx.Builder().Table(table)
}

// DB returns the database the transaction was started on.
func (tx *Tx) DB() *DB {
	return tx.db
}

// Conn returns a handle whose statements, records and relations all run on
// the transaction. Records bound to it with SetConnection or created by a
// factory from it take part in the transaction.
func (tx *Tx) Conn() *DB {
	return tx.conn
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.driver.Commit()
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.driver.Rollback()
}
