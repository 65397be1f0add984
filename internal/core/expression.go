// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// Expression is a SQL fragment with its own bound values. Expressions can be
// passed to Statement.WhereExp, used as a Where value, or assigned in UPDATE
// payloads (e.g. Raw("count + 1")).
//
// Example:
//
//	db.Table("users").WhereExp(strata.And(
//	    strata.HashExp{"status": 1},
//	    strata.GreaterThan("age", 18),
//	))
type Expression interface {
	// Build returns SQL text with "?" placeholders and its values in order.
	// Placeholder renumbering to the dialect format happens at Build time of the query.
	Build(dialect dialects.Dialect) (sql string, args []any)
}

// RawExp is a raw SQL expression with optional parameter bindings.
type RawExp struct {
	SQL  string
	Args []any
}

// Raw creates a raw SQL expression.
//
//	strata.Raw("COALESCE(nickname, name)")
//	strata.Raw("price * ?", 1.2)
func Raw(sql string, args ...any) Expression {
	return &RawExp{SQL: sql, Args: args}
}

// NewExp is an alias of Raw.
func NewExp(sql string, args ...any) Expression {
	return Raw(sql, args...)
}

// Build returns the raw text unchanged.
func (e *RawExp) Build(_ dialects.Dialect) (string, []any) {
	return e.SQL, e.Args
}

// HashExp maps columns to values, joined with AND in sorted key order.
//
// A nil value renders IS NULL, a []any renders IN, an Expression is nested.
type HashExp map[string]any

// Build renders the map.
func (e HashExp) Build(d dialects.Dialect) (string, []any) {
	if len(e) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, key := range keys {
		var sql string
		var sub []any
		switch v := e[key].(type) {
		case nil:
			sql = quoteName(d, key) + " IS NULL"
		case Expression:
			sql, sub = v.Build(d)
			if sql != "" {
				sql = "(" + sql + ")"
			}
		case []any:
			sql, sub = In(key, v...).Build(d)
		default:
			sql, sub = quoteName(d, key)+" = ?", []any{v}
		}
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, sub...)
		}
	}
	return strings.Join(parts, " AND "), args
}

// CompareExp is a single comparison against a value.
type CompareExp struct {
	Col      string
	Operator string
	Value    any
}

// Eq generates "col = value", or "col IS NULL" for a nil value.
func Eq(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "=", Value: value}
}

// NotEq generates "col <> value", or "col IS NOT NULL" for a nil value.
func NotEq(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<>", Value: value}
}

// GreaterThan generates "col > value".
func GreaterThan(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: ">", Value: value}
}

// LessThan generates "col < value".
func LessThan(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<", Value: value}
}

// GreaterOrEqual generates "col >= value".
func GreaterOrEqual(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: ">=", Value: value}
}

// LessOrEqual generates "col <= value".
func LessOrEqual(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<=", Value: value}
}

// Build renders the comparison.
func (e *CompareExp) Build(d dialects.Dialect) (string, []any) {
	col := quoteName(d, e.Col)
	switch v := e.Value.(type) {
	case nil:
		if e.Operator == "<>" {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case Expression:
		sql, args := v.Build(d)
		return col + " " + e.Operator + " (" + sql + ")", args
	}
	return col + " " + e.Operator + " ?", []any{e.Value}
}

// InExp is an IN or NOT IN list.
type InExp struct {
	Col    string
	Values []any
	Not    bool
}

// In generates "col IN (...)". An empty list renders "0=1".
func In(col string, values ...any) Expression {
	return &InExp{Col: col, Values: values}
}

// NotIn generates "col NOT IN (...)". An empty list renders nothing.
func NotIn(col string, values ...any) Expression {
	return &InExp{Col: col, Values: values, Not: true}
}

// Build renders the list; nil members render as NULL literals.
func (e *InExp) Build(d dialects.Dialect) (string, []any) {
	if len(e.Values) == 0 {
		if e.Not {
			return "", nil
		}
		return "0=1", nil
	}
	marks := make([]string, 0, len(e.Values))
	args := make([]any, 0, len(e.Values))
	for _, v := range e.Values {
		if v == nil {
			marks = append(marks, "NULL")
			continue
		}
		marks = append(marks, "?")
		args = append(args, v)
	}
	op := "IN"
	if e.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", quoteName(d, e.Col), op, strings.Join(marks, ", ")), args
}

// BetweenExp is a BETWEEN range.
type BetweenExp struct {
	Col      string
	From, To any
	Not      bool
}

// Range generates "col BETWEEN from AND to".
func Range(col string, from, to any) Expression {
	return &BetweenExp{Col: col, From: from, To: to}
}

// NotRange generates "col NOT BETWEEN from AND to".
func NotRange(col string, from, to any) Expression {
	return &BetweenExp{Col: col, From: from, To: to, Not: true}
}

// Build renders the range.
func (e *BetweenExp) Build(d dialects.Dialect) (string, []any) {
	op := "BETWEEN"
	if e.Not {
		op = "NOT BETWEEN"
	}
	return quoteName(d, e.Col) + " " + op + " ? AND ?", []any{e.From, e.To}
}

// LikeExp is a LIKE match with wildcard escaping.
type LikeExp struct {
	Col         string
	Values      []string
	Like        string
	Or          bool
	Left, Right bool
	Escape      []string
}

// DefaultLikeEscape pairs special characters with their escaped forms.
var DefaultLikeEscape = []string{"\\", "\\\\", "%", "\\%", "_", "\\_"}

// Like generates "col LIKE %value%" for every value, joined with AND.
func Like(col string, values ...string) *LikeExp {
	return &LikeExp{Col: col, Values: values, Like: "LIKE", Left: true, Right: true, Escape: DefaultLikeEscape}
}

// NotLike generates "col NOT LIKE %value%".
func NotLike(col string, values ...string) *LikeExp {
	exp := Like(col, values...)
	exp.Like = "NOT LIKE"
	return exp
}

// OrLike is Like joined with OR.
func OrLike(col string, values ...string) *LikeExp {
	exp := Like(col, values...)
	exp.Or = true
	return exp
}

// Match sets wildcard matching on the left and/or right of the values.
func (e *LikeExp) Match(left, right bool) *LikeExp {
	e.Left, e.Right = left, right
	return e
}

// Build renders the match.
func (e *LikeExp) Build(d dialects.Dialect) (string, []any) {
	if len(e.Values) == 0 {
		return "", nil
	}
	col := quoteName(d, e.Col)
	parts := make([]string, 0, len(e.Values))
	args := make([]any, 0, len(e.Values))
	for _, val := range e.Values {
		for j := 0; j+1 < len(e.Escape); j += 2 {
			val = strings.ReplaceAll(val, e.Escape[j], e.Escape[j+1])
		}
		if e.Left {
			val = "%" + val
		}
		if e.Right {
			val += "%"
		}
		parts = append(parts, col+" "+e.Like+" ?")
		args = append(args, val)
	}
	join := " AND "
	if e.Or {
		join = " OR "
	}
	return strings.Join(parts, join), args
}

// AndOrExp joins expressions with AND or OR.
type AndOrExp struct {
	Exps []Expression
	Op   string
}

// And joins expressions with AND. Nil and empty expressions are skipped.
func And(exps ...Expression) Expression {
	return &AndOrExp{Exps: exps, Op: "AND"}
}

// Or joins expressions with OR.
func Or(exps ...Expression) Expression {
	return &AndOrExp{Exps: exps, Op: "OR"}
}

// Build renders each part parenthesized.
func (e *AndOrExp) Build(d dialects.Dialect) (string, []any) {
	var parts []string
	var args []any
	for _, exp := range e.Exps {
		if exp == nil {
			continue
		}
		sql, sub := exp.Build(d)
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, sub...)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], args
	}
	return "(" + strings.Join(parts, ") "+e.Op+" (") + ")", args
}

// NotExp negates an expression.
type NotExp struct {
	Exp Expression
}

// Not generates "NOT (exp)".
func Not(exp Expression) Expression {
	return &NotExp{Exp: exp}
}

// Build renders the negation.
func (e *NotExp) Build(d dialects.Dialect) (string, []any) {
	if e.Exp == nil {
		return "", nil
	}
	sql, args := e.Exp.Build(d)
	if sql == "" {
		return "", nil
	}
	return "NOT (" + sql + ")", args
}
