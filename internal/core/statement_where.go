package core

import (
	"strings"

	"github.com/coregx/strata/internal/util"
)

// allowedOperators is the WHERE operator allow-list.
var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true,
	"BETWEEN": true, "IS": true, "IS NOT": true,
}

// normalizeOperator upper-cases op, collapses inner spaces and maps <> to !=.
func normalizeOperator(op string) (string, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if norm == "<>" {
		norm = "!="
	}
	if !allowedOperators[norm] {
		return "", invalidArgf("operator %q is not allowed", op)
	}
	return norm, nil
}

func normalizeBoolean(boolean string) string {
	if strings.EqualFold(strings.TrimSpace(boolean), BoolOr) {
		return BoolOr
	}
	return BoolAnd
}

// Where adds "column op value" joined with AND.
//
// value may be a scalar, a slice (IN, NOT IN, BETWEEN), nil (IS, IS NOT, or
// = / != which become IS NULL / IS NOT NULL), a *Statement (subquery) or an
// Expression rendered inline.
func (s *Statement) Where(column, op string, value any) *Statement {
	return s.WhereBool(column, op, value, BoolAnd)
}

// OrWhere adds "column op value" joined with OR.
func (s *Statement) OrWhere(column, op string, value any) *Statement {
	return s.WhereBool(column, op, value, BoolOr)
}

// WhereBool adds a condition with an explicit boolean connector.
func (s *Statement) WhereBool(column, op string, value any, boolean string) *Statement {
	cond, args, err := s.buildCondition(column, op, value, normalizeBoolean(boolean))
	if err != nil {
		return s.fail(err)
	}
	s.wheres = append(s.wheres, cond)
	s.bindings.Add(WhereBindings, args...)
	return s
}

// buildCondition turns one where call into a condition plus the values
// its placeholders consume, in rendering order.
func (s *Statement) buildCondition(column, op string, value any, boolean string) (Condition, []any, error) {
	if strings.TrimSpace(column) == "" {
		return nil, nil, invalidArgf("where column cannot be empty")
	}
	op, err := normalizeOperator(op)
	if err != nil {
		return nil, nil, err
	}

	if value == nil {
		switch op {
		case "IS", "=":
			return Comparison{Column: column, Operator: "IS", Operand: "NULL", Boolean: boolean}, nil, nil
		case "IS NOT", "!=":
			return Comparison{Column: column, Operator: "IS NOT", Operand: "NULL", Boolean: boolean}, nil, nil
		}
		return nil, nil, invalidArgf("operator %s does not accept nil", op)
	}
	if op == "IS" || op == "IS NOT" {
		return nil, nil, invalidArgf("operator %s only accepts nil", op)
	}

	switch v := value.(type) {
	case *Statement:
		sqlText, args, err := s.compileSub(v)
		if err != nil {
			return nil, nil, err
		}
		return Comparison{Column: column, Operator: op, Operand: "(" + sqlText + ")", Boolean: boolean}, args, nil
	case Expression:
		sqlText, args := v.Build(s.dialect)
		return Comparison{Column: column, Operator: op, Operand: sqlText, Boolean: boolean}, args, nil
	}

	switch op {
	case "IN", "NOT IN":
		values := util.Flatten(value)
		if len(values) == 0 {
			return nil, nil, invalidArgf("%s requires a non-empty list", op)
		}
		return ListMembership{Column: column, Not: op == "NOT IN", Count: len(values), Boolean: boolean}, values, nil
	case "BETWEEN":
		values := util.Flatten(value)
		if len(values) != 2 {
			return nil, nil, invalidArgf("BETWEEN requires exactly two values, got %d", len(values))
		}
		return Between{Column: column, Boolean: boolean}, values, nil
	}
	return Comparison{Column: column, Operator: op, Operand: "?", Boolean: boolean}, []any{value}, nil
}

// WhereGroup adds a parenthesized group built by fn on a fresh statement.
// A group that adds no conditions is dropped.
func (s *Statement) WhereGroup(fn func(q *Statement)) *Statement {
	return s.whereGroup(fn, BoolAnd)
}

// OrWhereGroup is WhereGroup joined with OR.
func (s *Statement) OrWhereGroup(fn func(q *Statement)) *Statement {
	return s.whereGroup(fn, BoolOr)
}

func (s *Statement) whereGroup(fn func(q *Statement), boolean string) *Statement {
	if fn == nil {
		return s.fail(invalidArgf("where group callback cannot be nil"))
	}
	child := s.newChild()
	fn(child)
	if child.err != nil {
		return s.fail(child.err)
	}

	conds := child.wheres
	for _, extra := range child.whereExtra {
		conds = append(conds, RawSQL{SQL: extra, Boolean: BoolAnd})
	}
	if len(conds) == 0 {
		return s
	}
	s.wheres = append(s.wheres, Nested{Conditions: conds, Boolean: boolean})
	s.bindings.Add(WhereBindings, child.bindings.ForWhere()...)
	return s
}

// WhereIn adds "column IN (...)".
func (s *Statement) WhereIn(column string, values ...any) *Statement {
	return s.whereIn(column, values, false, BoolAnd)
}

// WhereNotIn adds "column NOT IN (...)".
func (s *Statement) WhereNotIn(column string, values ...any) *Statement {
	return s.whereIn(column, values, true, BoolAnd)
}

// OrWhereIn adds "column IN (...)" joined with OR.
func (s *Statement) OrWhereIn(column string, values ...any) *Statement {
	return s.whereIn(column, values, false, BoolOr)
}

// OrWhereNotIn adds "column NOT IN (...)" joined with OR.
func (s *Statement) OrWhereNotIn(column string, values ...any) *Statement {
	return s.whereIn(column, values, true, BoolOr)
}

func (s *Statement) whereIn(column string, values []any, not bool, boolean string) *Statement {
	op := "IN"
	if not {
		op = "NOT IN"
	}
	// A single slice argument is spread.
	if len(values) == 1 {
		if sub, ok := values[0].(*Statement); ok {
			return s.WhereBool(column, op, sub, boolean)
		}
		values = util.Flatten(values[0])
	}
	return s.WhereBool(column, op, values, boolean)
}

// WhereInSub adds "column IN (subquery)".
func (s *Statement) WhereInSub(column string, sub *Statement) *Statement {
	return s.WhereBool(column, "IN", sub, BoolAnd)
}

// WhereNotInSub adds "column NOT IN (subquery)".
func (s *Statement) WhereNotInSub(column string, sub *Statement) *Statement {
	return s.WhereBool(column, "NOT IN", sub, BoolAnd)
}

// WhereBetween adds "column BETWEEN ? AND ?".
func (s *Statement) WhereBetween(column string, from, to any) *Statement {
	return s.whereBetween(column, from, to, false, BoolAnd)
}

// WhereNotBetween adds "column NOT BETWEEN ? AND ?".
func (s *Statement) WhereNotBetween(column string, from, to any) *Statement {
	return s.whereBetween(column, from, to, true, BoolAnd)
}

// OrWhereBetween adds "column BETWEEN ? AND ?" joined with OR.
func (s *Statement) OrWhereBetween(column string, from, to any) *Statement {
	return s.whereBetween(column, from, to, false, BoolOr)
}

func (s *Statement) whereBetween(column string, from, to any, negated bool, boolean string) *Statement {
	if strings.TrimSpace(column) == "" {
		return s.fail(invalidArgf("where column cannot be empty"))
	}
	s.wheres = append(s.wheres, Between{Column: column, Negated: negated, Boolean: boolean})
	s.bindings.Add(WhereBindings, from, to)
	return s
}

// WhereColumn compares two columns.
func (s *Statement) WhereColumn(left, op, right string) *Statement {
	return s.whereColumn(left, op, right, BoolAnd)
}

// OrWhereColumn compares two columns, joined with OR.
func (s *Statement) OrWhereColumn(left, op, right string) *Statement {
	return s.whereColumn(left, op, right, BoolOr)
}

func (s *Statement) whereColumn(left, op, right, boolean string) *Statement {
	if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
		return s.fail(invalidArgf("where column cannot be empty"))
	}
	op, err := normalizeOperator(op)
	if err != nil {
		return s.fail(err)
	}
	switch op {
	case "IN", "NOT IN", "BETWEEN", "IS", "IS NOT":
		return s.fail(invalidArgf("operator %s cannot compare two columns", op))
	}
	s.wheres = append(s.wheres, ColumnToColumn{Left: left, Operator: op, Right: right, Boolean: boolean})
	return s
}

// WhereExists adds "EXISTS (subquery)".
func (s *Statement) WhereExists(sub *Statement) *Statement {
	return s.whereExists(sub, false, BoolAnd)
}

// WhereNotExists adds "NOT EXISTS (subquery)".
func (s *Statement) WhereNotExists(sub *Statement) *Statement {
	return s.whereExists(sub, true, BoolAnd)
}

// OrWhereExists adds "EXISTS (subquery)" joined with OR.
func (s *Statement) OrWhereExists(sub *Statement) *Statement {
	return s.whereExists(sub, false, BoolOr)
}

func (s *Statement) whereExists(sub *Statement, negated bool, boolean string) *Statement {
	sqlText, args, err := s.compileSub(sub)
	if err != nil {
		return s.fail(err)
	}
	s.wheres = append(s.wheres, Exists{Negated: negated, SQL: sqlText, Boolean: boolean})
	s.bindings.Add(WhereBindings, args...)
	return s
}

// WhereRaw adds a raw condition; args fill its placeholders.
func (s *Statement) WhereRaw(sql string, args ...any) *Statement {
	return s.whereRaw(sql, args, BoolAnd)
}

// OrWhereRaw adds a raw condition joined with OR.
func (s *Statement) OrWhereRaw(sql string, args ...any) *Statement {
	return s.whereRaw(sql, args, BoolOr)
}

func (s *Statement) whereRaw(sql string, args []any, boolean string) *Statement {
	if strings.TrimSpace(sql) == "" {
		return s.fail(invalidArgf("raw where cannot be empty"))
	}
	if err := s.validateRaw(sql); err != nil {
		return s.fail(err)
	}
	s.wheres = append(s.wheres, RawSQL{SQL: sql, Boolean: boolean})
	s.bindings.Add(WhereBindings, args...)
	return s
}

// WhereExp adds an Expression (Eq, In, Like, And, Or, HashExp, ...).
// Empty expressions are ignored.
func (s *Statement) WhereExp(exp Expression) *Statement {
	return s.whereExp(exp, BoolAnd)
}

// OrWhereExp adds an Expression joined with OR.
func (s *Statement) OrWhereExp(exp Expression) *Statement {
	return s.whereExp(exp, BoolOr)
}

func (s *Statement) whereExp(exp Expression, boolean string) *Statement {
	if exp == nil {
		return s
	}
	sqlText, args := exp.Build(s.dialect)
	if sqlText == "" {
		return s
	}
	if _, ok := exp.(*AndOrExp); ok {
		sqlText = "(" + sqlText + ")"
	}
	s.wheres = append(s.wheres, RawSQL{SQL: sqlText, Boolean: boolean})
	s.bindings.Add(WhereBindings, args...)
	return s
}

// WhereNull adds "column IS NULL".
func (s *Statement) WhereNull(column string) *Statement {
	return s.WhereBool(column, "IS", nil, BoolAnd)
}

// OrWhereNull adds "column IS NULL" joined with OR.
func (s *Statement) OrWhereNull(column string) *Statement {
	return s.WhereBool(column, "IS", nil, BoolOr)
}

// WhereNotNull adds "column IS NOT NULL". It first removes an earlier
// "column IS NULL" with the same connector and does nothing when an equal
// IS NOT NULL condition is already present.
func (s *Statement) WhereNotNull(column string) *Statement {
	return s.whereNotNull(column, BoolAnd)
}

// OrWhereNotNull is WhereNotNull joined with OR.
func (s *Statement) OrWhereNotNull(column string) *Statement {
	return s.whereNotNull(column, BoolOr)
}

func (s *Statement) whereNotNull(column, boolean string) *Statement {
	if strings.TrimSpace(column) == "" {
		return s.fail(invalidArgf("where column cannot be empty"))
	}
	kept := make([]Condition, 0, len(s.wheres)+1)
	for _, c := range s.wheres {
		if cmp, ok := c.(Comparison); ok && cmp.Column == column && cmp.Boolean == boolean && cmp.Operator == "IS" {
			continue
		}
		kept = append(kept, c)
	}
	s.wheres = kept

	for _, c := range s.wheres {
		if cmp, ok := c.(Comparison); ok && cmp.Column == column && cmp.Boolean == boolean && cmp.Operator == "IS NOT" {
			return s
		}
	}
	s.wheres = append(s.wheres, Comparison{Column: column, Operator: "IS NOT", Operand: "NULL", Boolean: boolean})
	return s
}

// Conditions returns a copy of the structured where conditions.
func (s *Statement) Conditions() []Condition {
	return cloneConditions(s.wheres)
}

// hasWhere reports whether any caller-supplied filter is present.
func (s *Statement) hasWhere() bool {
	return len(s.wheres) > 0 || len(s.whereExtra) > 0
}
