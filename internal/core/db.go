// Package core provides connection management, the statement compiler, the
// record facade and the relationship layer for strata.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/strata/internal/cache"
	"github.com/coregx/strata/internal/dialects"
	"github.com/coregx/strata/internal/logger"
	"github.com/coregx/strata/internal/security"
	"github.com/coregx/strata/internal/tracer"
)

// DB is a database handle: a Driver plus the dialect and instrumentation
// used for every statement built from it.
type DB struct {
	sqlDB      *sql.DB // nil when built over a custom Driver
	driver     Driver
	driverName string
	dialect    dialects.Dialect
	stmtCache  *cache.StmtCache
	noCache    bool
	logger     logger.Logger
	sanitizer  *logger.Sanitizer
	tracer     tracer.Tracer
	queryHook  QueryHook
	validator  *security.Validator
	relations  *relationRegistry
	ctx        context.Context
	tx         *Tx // set on the handle returned by Tx.Conn

	healthInterval time.Duration
	health         *healthChecker
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		if db.sqlDB != nil {
			db.sqlDB.SetMaxOpenConns(n)
		}
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) {
		if db.sqlDB != nil {
			db.sqlDB.SetMaxIdleConns(n)
		}
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.stmtCache = cache.NewStmtCacheWithCapacity(capacity)
		db.noCache = false
	}
}

// WithoutStmtCache executes every statement directly instead of preparing it.
func WithoutStmtCache() Option {
	return func(db *DB) {
		db.noCache = true
	}
}

// WithLogger enables query logging. Parameters are masked by the sanitizer.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// WithSensitiveFields replaces the column names whose values are masked in logs.
func WithSensitiveFields(fields []string) Option {
	return func(db *DB) {
		db.sanitizer = logger.NewSanitizer(fields)
	}
}

// WithTracer enables span creation for every driver call.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		if t != nil {
			db.tracer = t
		}
	}
}

// WithQueryHook registers a callback invoked after every driver call.
func WithQueryHook(hook QueryHook) Option {
	return func(db *DB) {
		db.queryHook = hook
	}
}

// WithRawValidator checks every raw SQL fragment (SelectRaw, WhereRaw,
// JoinRaw, OrderByRaw, HavingRaw, WindowRaw) before it is accepted.
func WithRawValidator(v *security.Validator) Option {
	return func(db *DB) {
		db.validator = v
	}
}

// WithHealthCheck pings the connection pool every interval in the
// background. Failures are logged at Warn and reported by IsHealthy.
func WithHealthCheck(interval time.Duration) Option {
	return func(db *DB) {
		db.healthInterval = interval
	}
}

func newDB(driverName string) (*DB, error) {
	dialect, ok := dialects.LookupDialect(driverName)
	if !ok {
		return nil, invalidArgf("unsupported dialect %q", driverName)
	}
	return &DB{
		driverName: driverName,
		dialect:    dialect,
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
		relations:  &relationRegistry{resolvers: make(map[string]RelationResolver)},
	}, nil
}

// Open opens a database/sql connection and wraps it.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db, err := WrapDB(sqlDB, driverName, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// WrapDB wraps an existing *sql.DB. The caller keeps ownership of sqlDB
// only until Close is called on the returned DB.
func WrapDB(sqlDB *sql.DB, driverName string, opts ...Option) (*DB, error) {
	db, err := newDB(driverName)
	if err != nil {
		return nil, err
	}
	db.sqlDB = sqlDB
	db.stmtCache = cache.NewStmtCache()
	for _, opt := range opts {
		opt(db)
	}
	stmtCache := db.stmtCache
	if db.noCache {
		stmtCache = nil
	}
	db.driver = newSQLDriver(sqlDB, stmtCache)
	if db.healthInterval > 0 {
		db.health = newHealthChecker(sqlDB, db.logger, db.healthInterval)
		db.health.start()
	}
	return db, nil
}

// NewDriverDB builds a DB over a custom Driver. dialectName selects the SQL
// dialect ("postgres", "mysql", "sqlite").
func NewDriverDB(driver Driver, dialectName string, opts ...Option) (*DB, error) {
	if driver == nil {
		return nil, invalidArgf("driver is nil")
	}
	db, err := newDB(dialectName)
	if err != nil {
		return nil, err
	}
	db.driver = driver
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close releases cached statements and closes the connection pool.
func (db *DB) Close() error {
	if db.health != nil {
		db.health.shutdown()
		db.health = nil
	}
	if db.stmtCache != nil {
		db.stmtCache.Clear()
	}
	if db.sqlDB != nil {
		return db.sqlDB.Close()
	}
	return nil
}

// WithContext returns a shallow copy of db whose statements use ctx.
func (db *DB) WithContext(ctx context.Context) *DB {
	newDB := *db
	newDB.ctx = ctx
	return &newDB
}

// Dialect returns the SQL dialect.
func (db *DB) Dialect() dialects.Dialect {
	return db.dialect
}

// DriverName returns the driver or dialect name the DB was opened with.
func (db *DB) DriverName() string {
	return db.driverName
}

// SQLDB returns the underlying *sql.DB, or nil for custom drivers.
func (db *DB) SQLDB() *sql.DB {
	return db.sqlDB
}

// Driver returns the driver used to execute statements.
func (db *DB) Driver() Driver {
	return db.driver
}

// CacheStats reports prepared statement cache statistics.
func (db *DB) CacheStats() cache.Stats {
	if db.stmtCache == nil || db.noCache {
		return cache.Stats{}
	}
	return db.stmtCache.Stats()
}

// Builder returns a query builder for this database.
func (db *DB) Builder() *QueryBuilder {
	return &QueryBuilder{db: db, tx: db.tx, ctx: db.ctx}
}

// InTransaction reports whether db is bound to an open transaction.
func (db *DB) InTransaction() bool {
	return db.tx != nil && !db.tx.done
}

// Table starts a statement against table.
func (db *DB) Table(table string) *Statement {
	return db.Builder().Table(table)
}

// NewQuery wraps a hand-written SQL statement. Placeholders must already
// be in the dialect's style.
func (db *DB) NewQuery(query string, args ...any) *Query {
	return db.Builder().NewQuery(query, args...)
}

// RelationResolver builds the relation named at registration for parent.
type RelationResolver func(parent Record) Relation

// relationRegistry is shared by a DB and the copies made by WithContext
// and Tx.Conn.
type relationRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]RelationResolver
}

// DefineRelation registers a relation on records of table without a
// method on the record type. Eager loading consults the registry before
// looking for a method. It is safe to call concurrently with queries.
func (db *DB) DefineRelation(table, name string, resolver RelationResolver) {
	db.relations.mu.Lock()
	defer db.relations.mu.Unlock()
	db.relations.resolvers[table+"."+name] = resolver
}

func (db *DB) relationResolver(table, name string) (RelationResolver, bool) {
	if db == nil {
		return nil, false
	}
	db.relations.mu.RLock()
	defer db.relations.mu.RUnlock()
	fn, ok := db.relations.resolvers[table+"."+name]
	return fn, ok
}

// validateRaw checks a raw fragment when a validator is configured.
func (db *DB) validateRaw(fragment string) error {
	if db == nil || db.validator == nil {
		return nil
	}
	if err := db.validator.ValidateFragment(fragment); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

// QueryBuilder creates statements bound to a DB or a transaction.
type QueryBuilder struct {
	db  *DB
	tx  *Tx
	ctx context.Context
}

// NewQueryBuilder creates a query builder. When tx is not nil, statements
// execute inside that transaction.
func NewQueryBuilder(db *DB, tx *Tx) *QueryBuilder {
	return &QueryBuilder{db: db, tx: tx}
}

// WithContext sets the context for statements built by this builder.
func (qb *QueryBuilder) WithContext(ctx context.Context) *QueryBuilder {
	qb.ctx = ctx
	return qb
}

// DB returns the database the builder is bound to.
func (qb *QueryBuilder) DB() *DB {
	return qb.db
}

// Table starts a statement against table.
func (qb *QueryBuilder) Table(table string) *Statement {
	return newStatement(qb, qb.db.dialect).Table(table)
}

// Select starts a statement selecting cols. Call From to name the table.
func (qb *QueryBuilder) Select(cols ...string) *Statement {
	return newStatement(qb, qb.db.dialect).Select(cols...)
}

// NewQuery wraps a hand-written SQL statement.
func (qb *QueryBuilder) NewQuery(query string, args ...any) *Query {
	return &Query{sql: query, params: args, builder: qb}
}

func (qb *QueryBuilder) context() context.Context {
	if qb.ctx != nil {
		return qb.ctx
	}
	if qb.tx != nil && qb.tx.ctx != nil {
		return qb.tx.ctx
	}
	if qb.db.ctx != nil {
		return qb.db.ctx
	}
	return context.Background()
}

func (qb *QueryBuilder) executor() (Driver, error) {
	if qb.tx != nil {
		if qb.tx.done {
			return nil, ErrTxDone
		}
		return qb.tx.driver, nil
	}
	if qb.db.driver == nil {
		return nil, ErrNoConnection
	}
	return qb.db.driver, nil
}
