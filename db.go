// Package strata is a fluent SQL statement compiler with a record layer and
// relationship loading for PostgreSQL, MySQL and SQLite. Statements compile to
// SQL text plus bindings ordered like their placeholders; records declare
// has-many, has-one, belongs-to, belongs-to-many and through relations that
// can be queried, counted in subqueries or eager loaded in batches.
package strata

import (
	"os"

	"github.com/coregx/strata/internal/analyzer"
	"github.com/coregx/strata/internal/config"
	"github.com/coregx/strata/internal/core"
	"github.com/coregx/strata/internal/dialects"
	"github.com/coregx/strata/internal/logger"
	"github.com/coregx/strata/internal/security"
	"github.com/coregx/strata/internal/tracer"
)

type (
	// DB is a database handle: a driver plus dialect and instrumentation.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// Driver executes compiled SQL. Implement it to run statements elsewhere.
	Driver = core.Driver
	// TxDriver is a Driver bound to a transaction.
	TxDriver = core.TxDriver
	// Row is one fetched row keyed by column name.
	Row = core.Row
	// Query is compiled SQL with its bindings, ready to execute.
	Query = core.Query
	// QueryBuilder creates statements bound to a DB or transaction.
	QueryBuilder = core.QueryBuilder
	// Statement is the fluent statement builder.
	Statement = core.Statement
	// StatementKind is the SQL verb a Statement compiles to.
	StatementKind = core.StatementKind
	// Builder is the constraint-facing subset of Statement.
	Builder = core.Builder
	// Bindings holds a statement's values bucketed by clause.
	Bindings = core.Bindings
	// BindingKind names one binding bucket.
	BindingKind = core.BindingKind
	// Window describes an OVER clause.
	Window = core.Window
	// Tx is an open transaction.
	Tx = core.Tx
	// Params holds values for named {:name} placeholders.
	Params = core.Params
	// QueryEvent describes one driver call.
	QueryEvent = core.QueryEvent
	// QueryHook is called after every driver call.
	QueryHook = core.QueryHook

	// Condition is one node of a WHERE expression tree.
	Condition = core.Condition
	// Expression is a SQL fragment with its own bound values.
	Expression = core.Expression
	// HashExp maps columns to values joined with AND.
	HashExp = core.HashExp
	// LikeExp is a LIKE match with wildcard escaping.
	LikeExp = core.LikeExp
	// CaseExp is a CASE expression.
	CaseExp = core.CaseExp
	// FuncExp is a SQL function call.
	FuncExp = core.FuncExp

	// Model is the record base type to embed.
	Model = core.Model
	// Record is implemented by every type embedding Model.
	Record = core.Record
	// Factory creates fresh records bound to a DB.
	Factory = core.Factory
	// ModelOption configures a Model during Boot.
	ModelOption = core.ModelOption
	// Paginator is one page of records with totals.
	Paginator = core.Paginator
	// SimplePaginator is one page of records without a total.
	SimplePaginator = core.SimplePaginator

	// Relation is implemented by every relationship object.
	Relation = core.Relation
	// RelationDescriptor is the closed description of a relation's keys.
	RelationDescriptor = core.RelationDescriptor
	// RelationResolver builds a relation for a parent record.
	RelationResolver = core.RelationResolver
	// HasMany is a one-to-many relation.
	HasMany = core.HasMany
	// HasOne is a one-to-one relation.
	HasOne = core.HasOne
	// BelongsTo is the inverse of HasMany and HasOne.
	BelongsTo = core.BelongsTo
	// BelongsToMany is a many-to-many relation through a pivot table.
	BelongsToMany = core.BelongsToMany
	// HasManyThrough reaches related rows through an intermediate table.
	HasManyThrough = core.HasManyThrough
	// HasOneThrough is HasManyThrough returning one record.
	HasOneThrough = core.HasOneThrough
	// SyncResult reports the ids touched by a pivot sync.
	SyncResult = core.SyncResult
	// AttachOption configures Attach.
	AttachOption = core.AttachOption
	// NotFoundError is returned when a demanded row does not exist.
	NotFoundError = core.NotFoundError

	// Plan summarizes EXPLAIN output.
	Plan = analyzer.Plan

	// Logger receives query logs.
	Logger = logger.Logger
	// Tracer starts a span per driver call.
	Tracer = tracer.Tracer
	// Config holds connection settings.
	Config = config.Config
	// LoadOptions controls where LoadConfig looks for settings.
	LoadOptions = config.LoadOptions
)

// Statement kinds.
const (
	KindSelect       = core.KindSelect
	KindInsert       = core.KindInsert
	KindUpdate       = core.KindUpdate
	KindDelete       = core.KindDelete
	KindInsertIgnore = core.KindInsertIgnore
	KindUpsert       = core.KindUpsert
)

// Binding buckets in read order.
const (
	SelectBindings   = core.SelectBindings
	JoinBindings     = core.JoinBindings
	WhereBindings    = core.WhereBindings
	HavingBindings   = core.HavingBindings
	OrderBindings    = core.OrderBindings
	UnionBindings    = core.UnionBindings
	MutationBindings = core.MutationBindings
)

// Errors.
var (
	ErrInvalidArgument    = core.ErrInvalidArgument
	ErrLogic              = core.ErrLogic
	ErrNotFound           = core.ErrNotFound
	ErrDeleteWithoutWhere = core.ErrDeleteWithoutWhere
	ErrNoConnection       = core.ErrNoConnection
	ErrParentNotBound     = core.ErrParentNotBound
	ErrParentAlreadyBound = core.ErrParentAlreadyBound
	ErrMissingParentKey   = core.ErrMissingParentKey
	ErrRelationNotFound   = core.ErrRelationNotFound
	ErrTxDone             = core.ErrTxDone
	ErrUnsafeFragment     = security.ErrUnsafeFragment
	ErrInvalidConfig      = config.ErrInvalidConfig
	ErrExplainUnsupported = analyzer.ErrUnsupported

	IsNotFound = core.IsNotFound
	WrapError  = core.WrapError
)

// Connections and options.
var (
	Open            = core.Open
	WrapDB          = core.WrapDB
	NewDriverDB     = core.NewDriverDB
	NewQueryBuilder = core.NewQueryBuilder
	NewStatement    = core.NewStatement
	LoadConfig      = config.Load
	LookupDialect   = dialects.LookupDialect

	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithoutStmtCache      = core.WithoutStmtCache
	WithLogger            = core.WithLogger
	WithSensitiveFields   = core.WithSensitiveFields
	WithTracer            = core.WithTracer
	WithQueryHook         = core.WithQueryHook
	WithRawValidator      = core.WithRawValidator
	WithHealthCheck       = core.WithHealthCheck

	NewSlogAdapter            = logger.NewSlogAdapter
	NewTextLogger             = logger.NewTextLogger
	NewOtelTracer             = tracer.NewOtelTracer
	NewOtelTracerFromProvider = tracer.NewOtelTracerFromProvider
	NewValidator              = security.NewValidator
	DetectOperation           = core.DetectOperation
)

// Records and relations.
var (
	NewRecord        = core.NewRecord
	GenericFactory   = core.GenericFactory
	WithTable        = core.WithTable
	WithPrimaryKey   = core.WithPrimaryKey
	WithSoftDeletes  = core.WithSoftDeletes
	WithUUIDKeys     = core.WithUUIDKeys
	WithTimestamps   = core.WithTimestamps
	Load             = core.Load
	LoadMissing      = core.LoadMissing
	ResolveRelation  = core.ResolveRelation
	IgnoreDuplicates = core.IgnoreDuplicates
)

// Expression builders.
var (
	Raw            = core.Raw
	NewExp         = core.NewExp
	Eq             = core.Eq
	NotEq          = core.NotEq
	GreaterThan    = core.GreaterThan
	LessThan       = core.LessThan
	GreaterOrEqual = core.GreaterOrEqual
	LessOrEqual    = core.LessOrEqual
	In             = core.In
	NotIn          = core.NotIn
	Range          = core.Range
	NotRange       = core.NotRange
	Like           = core.Like
	NotLike        = core.NotLike
	OrLike         = core.OrLike
	And            = core.And
	Or             = core.Or
	Not            = core.Not
	Case           = core.Case
	CaseWhen       = core.CaseWhen
	Coalesce       = core.Coalesce
	NullIf         = core.NullIf
	Greatest       = core.Greatest
	Least          = core.Least
	Concat         = core.Concat
)

// FactoryOf returns a Factory for a record type embedding Model.
//
//	type Post struct{ strata.Model }
//	var posts = strata.FactoryOf[Post](strata.WithSoftDeletes())
func FactoryOf[T any, P interface {
	*T
	Record
}](opts ...ModelOption) Factory {
	return core.FactoryOf[T, P](opts...)
}

// OpenConfig opens the database described by cfg. Extra options are
// applied after the ones derived from cfg.
func OpenConfig(cfg *Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var options []Option
	if cfg.MaxOpenConns > 0 {
		options = append(options, WithMaxOpenConns(cfg.MaxOpenConns))
	}
	if cfg.MaxIdleConns > 0 {
		options = append(options, WithMaxIdleConns(cfg.MaxIdleConns))
	}
	if cfg.StmtCacheCapacity > 0 {
		options = append(options, WithStmtCacheCapacity(cfg.StmtCacheCapacity))
	} else {
		options = append(options, WithoutStmtCache())
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		options = append(options, WithLogger(logger.NewTextLogger(os.Stderr, level)))
	}
	if len(cfg.SensitiveFields) > 0 {
		options = append(options, WithSensitiveFields(cfg.SensitiveFields))
	}
	if cfg.ValidateRaw {
		options = append(options, WithRawValidator(security.NewValidator()))
	}
	if cfg.HealthCheck > 0 {
		options = append(options, WithHealthCheck(cfg.HealthCheck))
	}
	return Open(cfg.Driver, cfg.DSN, append(options, opts...)...)
}
