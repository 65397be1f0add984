package core

import (
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// Join adds "INNER JOIN table ON first op second".
func (s *Statement) Join(table, first, op, second string) *Statement {
	return s.join("INNER JOIN", table, first, op, second)
}

// LeftJoin adds "LEFT JOIN table ON first op second".
func (s *Statement) LeftJoin(table, first, op, second string) *Statement {
	return s.join("LEFT JOIN", table, first, op, second)
}

// RightJoin adds "RIGHT JOIN table ON first op second".
func (s *Statement) RightJoin(table, first, op, second string) *Statement {
	return s.join("RIGHT JOIN", table, first, op, second)
}

// CrossJoin adds "CROSS JOIN table".
func (s *Statement) CrossJoin(table string) *Statement {
	if strings.TrimSpace(table) == "" {
		return s.fail(invalidArgf("join table cannot be empty"))
	}
	s.joins = append(s.joins, "CROSS JOIN "+quoteTable(s.dialect, table))
	return s
}

func (s *Statement) join(kind, table, first, op, second string) *Statement {
	if strings.TrimSpace(table) == "" {
		return s.fail(invalidArgf("join table cannot be empty"))
	}
	on, err := s.joinCondition(first, op, second)
	if err != nil {
		return s.fail(err)
	}
	s.joins = append(s.joins, kind+" "+quoteTable(s.dialect, table)+" ON "+on)
	return s
}

func (s *Statement) joinCondition(first, op, second string) (string, error) {
	op, err := normalizeOperator(op)
	if err != nil {
		return "", err
	}
	return quoteName(s.dialect, first) + " " + op + " " + quoteName(s.dialect, second), nil
}

// JoinRaw adds a raw join fragment; args go to the join bucket.
func (s *Statement) JoinRaw(fragment string, args ...any) *Statement {
	if err := s.validateRaw(fragment); err != nil {
		return s.fail(err)
	}
	s.joins = append(s.joins, fragment)
	s.bindings.Add(JoinBindings, args...)
	return s
}

// JoinSub adds "INNER JOIN (sub) AS alias ON first op second".
func (s *Statement) JoinSub(sub *Statement, alias, first, op, second string) *Statement {
	return s.joinSub("INNER JOIN", sub, alias, first, op, second)
}

// LeftJoinSub adds "LEFT JOIN (sub) AS alias ON first op second".
func (s *Statement) LeftJoinSub(sub *Statement, alias, first, op, second string) *Statement {
	return s.joinSub("LEFT JOIN", sub, alias, first, op, second)
}

func (s *Statement) joinSub(kind string, sub *Statement, alias, first, op, second string) *Statement {
	sqlText, args, err := s.compileSub(sub)
	if err != nil {
		return s.fail(err)
	}
	if alias == "" {
		return s.fail(invalidArgf("join subquery alias cannot be empty"))
	}
	on, err := s.joinCondition(first, op, second)
	if err != nil {
		return s.fail(err)
	}
	s.joins = append(s.joins, kind+" ("+sqlText+") AS "+s.dialect.QuoteIdentifier(alias)+" ON "+on)
	s.bindings.Add(JoinBindings, args...)
	return s
}

// GroupBy appends grouping columns.
func (s *Statement) GroupBy(cols ...string) *Statement {
	s.groupBy = append(s.groupBy, cols...)
	return s
}

// GroupByRollup appends grouping columns and renders them WITH ROLLUP.
func (s *Statement) GroupByRollup(cols ...string) *Statement {
	s.rollup = true
	return s.GroupBy(cols...)
}

// GroupingSets renders GROUP BY GROUPING SETS ((a, b), (a), ()). It takes
// precedence over GroupBy.
func (s *Statement) GroupingSets(sets ...[]string) *Statement {
	s.groupingSets = append(s.groupingSets, sets...)
	return s
}

// Having adds "column op value" to HAVING, joined with AND.
func (s *Statement) Having(column, op string, value any) *Statement {
	return s.addHaving(column, op, value, BoolAnd)
}

// OrHaving adds "column op value" to HAVING, joined with OR.
func (s *Statement) OrHaving(column, op string, value any) *Statement {
	return s.addHaving(column, op, value, BoolOr)
}

func (s *Statement) addHaving(column, op string, value any, boolean string) *Statement {
	cond, args, err := s.buildCondition(column, op, value, boolean)
	if err != nil {
		return s.fail(err)
	}
	s.appendHaving(compileCondition(s.dialect, cond), boolean)
	s.bindings.Add(HavingBindings, args...)
	return s
}

// HavingRaw adds a raw HAVING expression joined with AND.
func (s *Statement) HavingRaw(sql string, args ...any) *Statement {
	if err := s.validateRaw(sql); err != nil {
		return s.fail(err)
	}
	s.appendHaving(sql, BoolAnd)
	s.bindings.Add(HavingBindings, args...)
	return s
}

func (s *Statement) appendHaving(expr, boolean string) {
	if s.having == "" {
		s.having = expr
		return
	}
	s.having += " " + boolean + " " + expr
}

// OrderBy adds "column ASC|DESC". An empty direction means ASC.
func (s *Statement) OrderBy(column, direction string) *Statement {
	if strings.TrimSpace(column) == "" {
		return s.fail(invalidArgf("order column cannot be empty"))
	}
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "ASC"
	}
	if dir != "ASC" && dir != "DESC" {
		return s.fail(invalidArgf("order direction must be ASC or DESC, got %q", direction))
	}
	s.orders = append(s.orders, quoteName(s.dialect, column)+" "+dir)
	return s
}

// OrderByDesc adds "column DESC".
func (s *Statement) OrderByDesc(column string) *Statement {
	return s.OrderBy(column, "DESC")
}

// OrderByRaw adds a raw ORDER BY expression; args go to the order bucket.
func (s *Statement) OrderByRaw(expr string, args ...any) *Statement {
	if err := s.validateRaw(expr); err != nil {
		return s.fail(err)
	}
	s.orders = append(s.orders, expr)
	s.bindings.Add(OrderBindings, args...)
	return s
}

// Latest orders by column (default created_at) descending.
func (s *Statement) Latest(column ...string) *Statement {
	return s.OrderBy(firstOr(column, "created_at"), "DESC")
}

// Oldest orders by column (default created_at) ascending.
func (s *Statement) Oldest(column ...string) *Statement {
	return s.OrderBy(firstOr(column, "created_at"), "ASC")
}

// InRandomOrder orders by the dialect's random function.
func (s *Statement) InRandomOrder() *Statement {
	s.orders = append(s.orders, s.dialect.RandomOrder())
	return s
}

// Reorder drops every ORDER BY expression and its bindings.
func (s *Statement) Reorder() *Statement {
	s.orders = nil
	s.bindings.Set(OrderBindings, nil)
	return s
}

func firstOr(values []string, def string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return def
}

// Limit sets LIMIT. A negative n removes it.
func (s *Statement) Limit(n int64) *Statement {
	s.limit = n
	return s
}

// Offset sets OFFSET. A negative n removes it.
func (s *Statement) Offset(n int64) *Statement {
	s.offset = n
	return s
}

// ForPage sets LIMIT and OFFSET for a 1-based page.
func (s *Statement) ForPage(page, perPage int64) *Statement {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return s.fail(invalidArgf("per page must be positive, got %d", perPage))
	}
	return s.Offset((page - 1) * perPage).Limit(perPage)
}

// Window describes the OVER clause of a window function. OrderBy entries
// may carry a direction: "salary DESC".
type Window struct {
	PartitionBy []string
	OrderBy     []string
}

func (s *Statement) renderWindow(w Window) string {
	var parts []string
	if len(w.PartitionBy) > 0 {
		parts = append(parts, "PARTITION BY "+strings.Join(quoteNames(s.dialect, w.PartitionBy), ", "))
	}
	if len(w.OrderBy) > 0 {
		terms := make([]string, len(w.OrderBy))
		for i, t := range w.OrderBy {
			terms[i] = orderTerm(s.dialect, t)
		}
		parts = append(parts, "ORDER BY "+strings.Join(terms, ", "))
	}
	return "OVER (" + strings.Join(parts, " ") + ")"
}

// orderTerm quotes "col [ASC|DESC]".
func orderTerm(d dialects.Dialect, term string) string {
	fields := strings.Fields(term)
	if len(fields) == 2 {
		dir := strings.ToUpper(fields[1])
		if dir == "ASC" || dir == "DESC" {
			return quoteName(d, fields[0]) + " " + dir
		}
	}
	return quoteName(d, term)
}

func (s *Statement) addWindow(fn, alias string, w Window) *Statement {
	if alias == "" {
		return s.fail(invalidArgf("window alias cannot be empty"))
	}
	s.windows = append(s.windows, fn+" "+s.renderWindow(w)+" AS "+s.dialect.QuoteIdentifier(alias))
	return s
}

// RowNumber adds ROW_NUMBER() OVER (...) AS alias.
func (s *Statement) RowNumber(alias string, w Window) *Statement {
	return s.addWindow("ROW_NUMBER()", alias, w)
}

// Rank adds RANK() OVER (...) AS alias.
func (s *Statement) Rank(alias string, w Window) *Statement {
	return s.addWindow("RANK()", alias, w)
}

// DenseRank adds DENSE_RANK() OVER (...) AS alias.
func (s *Statement) DenseRank(alias string, w Window) *Statement {
	return s.addWindow("DENSE_RANK()", alias, w)
}

// SumOver adds SUM(column) OVER (...) AS alias.
func (s *Statement) SumOver(column, alias string, w Window) *Statement {
	return s.addWindow("SUM("+quoteName(s.dialect, column)+")", alias, w)
}

// AvgOver adds AVG(column) OVER (...) AS alias.
func (s *Statement) AvgOver(column, alias string, w Window) *Statement {
	return s.addWindow("AVG("+quoteName(s.dialect, column)+")", alias, w)
}

// MinOver adds MIN(column) OVER (...) AS alias.
func (s *Statement) MinOver(column, alias string, w Window) *Statement {
	return s.addWindow("MIN("+quoteName(s.dialect, column)+")", alias, w)
}

// MaxOver adds MAX(column) OVER (...) AS alias.
func (s *Statement) MaxOver(column, alias string, w Window) *Statement {
	return s.addWindow("MAX("+quoteName(s.dialect, column)+")", alias, w)
}

// WindowRaw adds a raw window expression such as
// "LAG(price) OVER (ORDER BY day) AS prev".
func (s *Statement) WindowRaw(expr string) *Statement {
	if err := s.validateRaw(expr); err != nil {
		return s.fail(err)
	}
	s.windows = append(s.windows, expr)
	return s
}

// WithExpression adds a common table expression "name [(cols)] AS (sub)".
func (s *Statement) WithExpression(name string, sub *Statement, cols ...string) *Statement {
	if name == "" {
		return s.fail(invalidArgf("CTE name cannot be empty"))
	}
	sqlText, args, err := s.compileSub(sub)
	if err != nil {
		return s.fail(err)
	}
	s.ctes = append(s.ctes, cteDef{name: name, sql: sqlText, args: args, columns: cols})
	return s
}

// WithRawExpression adds a common table expression from raw SQL.
func (s *Statement) WithRawExpression(name, sql string, args []any, cols ...string) *Statement {
	if name == "" {
		return s.fail(invalidArgf("CTE name cannot be empty"))
	}
	if err := s.validateRaw(sql); err != nil {
		return s.fail(err)
	}
	s.ctes = append(s.ctes, cteDef{name: name, sql: sql, args: append([]any(nil), args...), columns: cols})
	return s
}

// WithRecursiveExpression adds "name AS (anchor UNION ALL recursive)" and
// marks the WITH clause RECURSIVE.
func (s *Statement) WithRecursiveExpression(name string, anchor, recursive *Statement, cols ...string) *Statement {
	if name == "" {
		return s.fail(invalidArgf("CTE name cannot be empty"))
	}
	anchorSQL, anchorArgs, err := s.compileSub(anchor)
	if err != nil {
		return s.fail(err)
	}
	recSQL, recArgs, err := s.compileSub(recursive)
	if err != nil {
		return s.fail(err)
	}
	s.ctes = append(s.ctes, cteDef{
		name:      name,
		sql:       anchorSQL + " UNION ALL " + recSQL,
		args:      append(anchorArgs, recArgs...),
		recursive: true,
		columns:   cols,
	})
	return s
}

// Union appends "UNION sub".
func (s *Statement) Union(sub *Statement) *Statement {
	return s.union(sub, false)
}

// UnionAll appends "UNION ALL sub".
func (s *Statement) UnionAll(sub *Statement) *Statement {
	return s.union(sub, true)
}

func (s *Statement) union(sub *Statement, all bool) *Statement {
	sqlText, args, err := s.compileSub(sub)
	if err != nil {
		return s.fail(err)
	}
	s.unions = append(s.unions, unionDef{all: all, sql: sqlText})
	s.bindings.Add(UnionBindings, args...)
	return s
}

// LockForUpdate appends the dialect's exclusive row lock.
func (s *Statement) LockForUpdate() *Statement {
	s.lock = dialects.LockForUpdate
	return s
}

// SharedLock appends the dialect's shared row lock.
func (s *Statement) SharedLock() *Statement {
	s.lock = dialects.LockShared
	return s
}

// SoftDeletes scopes the statement to rows whose column (default
// deleted_at) is NULL.
func (s *Statement) SoftDeletes(column ...string) *Statement {
	s.softDelete = firstOr(column, "deleted_at")
	s.trashed = trashedExcluded
	return s
}

// WithSoftDeletes removes the soft-delete scope so trashed rows are included.
func (s *Statement) WithSoftDeletes() *Statement {
	s.trashed = trashedIncluded
	return s
}

// WithTrashed is an alias of WithSoftDeletes.
func (s *Statement) WithTrashed() *Statement {
	return s.WithSoftDeletes()
}

// OnlyTrashed restricts the statement to soft-deleted rows.
func (s *Statement) OnlyTrashed() *Statement {
	s.trashed = trashedOnly
	return s
}

// softDeleteCondition returns the scope condition, if one applies.
func (s *Statement) softDeleteCondition() (Condition, bool) {
	if s.softDelete == "" || s.trashed == trashedIncluded {
		return nil, false
	}
	column := s.softDelete
	if len(s.joins) > 0 {
		column = s.qualify(column)
	}
	op := "IS"
	if s.trashed == trashedOnly {
		op = "IS NOT"
	}
	return Comparison{Column: column, Operator: op, Operand: "NULL", Boolean: BoolAnd}, true
}
