package core

import (
	"context"
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// StatementKind is the SQL verb a Statement compiles to.
type StatementKind int

// Statement kinds.
const (
	KindSelect StatementKind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindInsertIgnore
	KindUpsert
)

var kindNames = [...]string{"SELECT", "INSERT", "UPDATE", "DELETE", "INSERT_IGNORE", "UPSERT"}

// String returns the kind name.
func (k StatementKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

type trashedMode int

const (
	trashedExcluded trashedMode = iota
	trashedIncluded
	trashedOnly
)

type cteDef struct {
	name      string
	sql       string
	args      []any
	recursive bool
	columns   []string
}

type unionDef struct {
	all bool
	sql string
}

// Statement is a chainable SQL statement under construction.
//
// Every method that adds placeholders appends the matching values to one
// binding bucket in the same call, so ToSQL only concatenates the buckets.
// Misuse is recorded as the statement's first error and returned by ToSQL,
// Build and every executing method before any driver call.
//
// A Statement is not safe for concurrent use.
type Statement struct {
	builder *QueryBuilder
	dialect dialects.Dialect
	ctx     context.Context

	kind     StatementKind
	table    string
	rawTable bool
	columns  []string // nil renders the wildcard
	distinct bool
	joins    []string
	wheres   []Condition
	// whereExtra holds raw fragments (JSON helpers) AND-appended after the
	// structured conditions.
	whereExtra   []string
	groupBy      []string
	rollup       bool
	groupingSets [][]string
	having       string
	orders       []string
	windows      []string
	ctes         []cteDef
	unions       []unionDef
	lock         dialects.LockMode
	limit        int64
	offset       int64
	payload      mutation

	softDelete string
	trashed    trashedMode

	eager       []string
	constraints map[string]any
	factory     Factory
	// recordTable names the records hydrated from a derived table.
	recordTable string

	bindings Bindings
	err      error
}

func newStatement(qb *QueryBuilder, d dialects.Dialect) *Statement {
	return &Statement{
		builder: qb,
		dialect: d,
		limit:   -1,
		offset:  -1,
	}
}

// NewStatement creates a statement that only compiles SQL for dialect.
// Executing it returns ErrNoConnection.
func NewStatement(dialect string) *Statement {
	return newStatement(nil, dialects.GetDialect(dialect))
}

// newChild creates an empty statement sharing the connection and dialect,
// used for nested where groups and subqueries.
func (s *Statement) newChild() *Statement {
	child := newStatement(s.builder, s.dialect)
	child.table = s.table
	child.rawTable = s.rawTable
	return child
}

// Sub starts an independent statement on the same connection.
func (s *Statement) Sub(table string) *Statement {
	return newStatement(s.builder, s.dialect).Table(table)
}

// fail records the first error.
func (s *Statement) fail(err error) *Statement {
	if s.err == nil {
		s.err = err
	}
	return s
}

// Err returns the first builder error, if any.
func (s *Statement) Err() error {
	return s.err
}

// Kind returns the statement kind.
func (s *Statement) Kind() StatementKind {
	return s.kind
}

// TableName returns the table the statement targets.
func (s *Statement) TableName() string {
	return s.table
}

// Dialect returns the dialect used for compilation.
func (s *Statement) Dialect() dialects.Dialect {
	return s.dialect
}

// Bindings returns a copy of the binding buckets.
func (s *Statement) Bindings() Bindings {
	return s.bindings.Clone()
}

// WithContext sets the context used by executing methods.
func (s *Statement) WithContext(ctx context.Context) *Statement {
	s.ctx = ctx
	return s
}

// Table sets the target table. "table AS t" and "table t" declare an alias.
func (s *Statement) Table(table string) *Statement {
	if strings.TrimSpace(table) == "" {
		return s.fail(invalidArgf("table name cannot be empty"))
	}
	s.table = strings.TrimSpace(table)
	s.rawTable = false
	return s
}

// From is an alias of Table.
func (s *Statement) From(table string) *Statement {
	return s.Table(table)
}

// FromRaw sets a raw FROM expression that is not quoted.
func (s *Statement) FromRaw(expr string) *Statement {
	if err := s.validateRaw(expr); err != nil {
		return s.fail(err)
	}
	s.table = expr
	s.rawTable = true
	return s
}

func (s *Statement) validateRaw(fragment string) error {
	if s.builder == nil {
		return nil
	}
	return s.builder.db.validateRaw(fragment)
}

// tableRef is the name used to qualify this statement's columns.
func (s *Statement) tableRef() string {
	return tableReference(s.table)
}

// qualify prefixes a bare column with the table reference.
func (s *Statement) qualify(column string) string {
	if strings.Contains(column, ".") || s.rawTable || s.table == "" {
		return column
	}
	return s.tableRef() + "." + column
}

// Clone returns a deep copy. Mutating the copy never affects s.
func (s *Statement) Clone() *Statement {
	c := *s
	c.columns = cloneStrings(s.columns)
	c.joins = cloneStrings(s.joins)
	c.wheres = cloneConditions(s.wheres)
	c.whereExtra = cloneStrings(s.whereExtra)
	c.groupBy = cloneStrings(s.groupBy)
	if s.groupingSets != nil {
		c.groupingSets = make([][]string, len(s.groupingSets))
		for i, set := range s.groupingSets {
			c.groupingSets[i] = cloneStrings(set)
		}
	}
	c.orders = cloneStrings(s.orders)
	c.windows = cloneStrings(s.windows)
	if s.ctes != nil {
		c.ctes = make([]cteDef, len(s.ctes))
		for i, d := range s.ctes {
			d.args = append([]any(nil), d.args...)
			d.columns = cloneStrings(d.columns)
			c.ctes[i] = d
		}
	}
	c.unions = append([]unionDef(nil), s.unions...)
	c.payload = s.payload.clone()
	c.eager = cloneStrings(s.eager)
	if s.constraints != nil {
		c.constraints = make(map[string]any, len(s.constraints))
		for k, v := range s.constraints {
			c.constraints[k] = v
		}
	}
	c.bindings = s.bindings.Clone()
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// Select replaces the column list.
func (s *Statement) Select(cols ...string) *Statement {
	s.columns = nil
	s.bindings.Set(SelectBindings, nil)
	return s.AddSelect(cols...)
}

// AddSelect appends columns. The wildcard default is dropped on the first
// real column.
func (s *Statement) AddSelect(cols ...string) *Statement {
	for _, c := range cols {
		for _, part := range splitColumns(c) {
			s.columns = append(s.columns, quoteName(s.dialect, part))
		}
	}
	return s
}

// splitColumns splits "a, b" into separate names when no parentheses are involved.
func splitColumns(c string) []string {
	if strings.ContainsAny(c, "()") || !strings.Contains(c, ",") {
		return []string{c}
	}
	parts := strings.Split(c, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SelectRaw appends a raw column expression; its args go to the select bucket.
func (s *Statement) SelectRaw(expr string, args ...any) *Statement {
	if err := s.validateRaw(expr); err != nil {
		return s.fail(err)
	}
	s.columns = append(s.columns, expr)
	s.bindings.Add(SelectBindings, args...)
	return s
}

// SelectSub appends "(sub) AS alias".
func (s *Statement) SelectSub(sub *Statement, alias string) *Statement {
	sqlText, args, err := s.compileSub(sub)
	if err != nil {
		return s.fail(err)
	}
	if alias == "" {
		return s.fail(invalidArgf("subquery alias cannot be empty"))
	}
	s.columns = append(s.columns, "("+sqlText+") AS "+s.dialect.QuoteIdentifier(alias))
	s.bindings.Add(SelectBindings, args...)
	return s
}

// Distinct renders SELECT DISTINCT.
func (s *Statement) Distinct() *Statement {
	s.distinct = true
	return s
}

// ensureColumns replaces the wildcard by "table".* so columns can be
// appended to it.
func (s *Statement) ensureColumns() {
	if len(s.columns) > 0 {
		return
	}
	if s.table == "" || s.rawTable {
		s.columns = []string{"*"}
		return
	}
	s.columns = []string{quoteName(s.dialect, s.tableRef()+".*")}
}

// compileSub compiles a subquery with ? placeholders. Its deferred error
// is propagated.
func (s *Statement) compileSub(sub *Statement) (string, []any, error) {
	if sub == nil {
		return "", nil, invalidArgf("subquery cannot be nil")
	}
	return sub.ToSQL()
}
