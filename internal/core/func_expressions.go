// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// Function expressions render SQL functions for SelectExp, WhereExp and
// UPDATE payloads. Their operands follow one rule: a string is a column
// name unless it starts with a quote (a literal kept as written), an
// Expression is nested, and anything else is bound as a value.

// operandSQL renders one function operand.
func operandSQL(d dialects.Dialect, v any) (string, []any) {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, "'") || strings.HasPrefix(x, `"`) {
			return x, nil
		}
		return quoteName(d, x), nil
	case Expression:
		return x.Build(d)
	default:
		return "?", []any{v}
	}
}

func operandsSQL(d dialects.Dialect, values []any) ([]string, []any) {
	parts := make([]string, 0, len(values))
	var args []any
	for _, v := range values {
		sql, a := operandSQL(d, v)
		parts = append(parts, sql)
		args = append(args, a...)
	}
	return parts, args
}

func withAlias(d dialects.Dialect, sql, alias string) string {
	if alias == "" {
		return sql
	}
	return sql + " AS " + d.QuoteIdentifier(alias)
}

// CaseExp is a CASE expression. With a column it is a simple CASE whose
// WHEN values are bound; without one each WHEN is a raw condition.
type CaseExp struct {
	column string
	whens  [][2]any
	orElse any
	alias  string
}

// Case starts "CASE column WHEN ? THEN ? ... END".
//
//	strata.Case("status").When(1, "active").When(0, "inactive").Else("unknown").As("label")
func Case(column string) *CaseExp {
	return &CaseExp{column: column}
}

// CaseWhen starts a searched "CASE WHEN cond THEN ? ... END".
func CaseWhen() *CaseExp {
	return &CaseExp{}
}

// When adds a branch.
func (c *CaseExp) When(condition, result any) *CaseExp {
	c.whens = append(c.whens, [2]any{condition, result})
	return c
}

// Else sets the fallback result.
func (c *CaseExp) Else(value any) *CaseExp {
	c.orElse = value
	return c
}

// As sets the column alias.
func (c *CaseExp) As(alias string) *CaseExp {
	c.alias = alias
	return c
}

// Build renders the CASE expression.
func (c *CaseExp) Build(d dialects.Dialect) (string, []any) {
	if len(c.whens) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var args []any
	sb.WriteString("CASE")
	if c.column != "" {
		sb.WriteString(" " + quoteName(d, c.column))
	}
	for _, w := range c.whens {
		sb.WriteString(" WHEN ")
		if c.column != "" {
			sb.WriteString("?")
			args = append(args, w[0])
		} else if exp, ok := w[0].(Expression); ok {
			sql, a := exp.Build(d)
			sb.WriteString(sql)
			args = append(args, a...)
		} else {
			sb.WriteString(toText(w[0]))
		}
		sb.WriteString(" THEN ?")
		args = append(args, w[1])
	}
	if c.orElse != nil {
		sb.WriteString(" ELSE ?")
		args = append(args, c.orElse)
	}
	sb.WriteString(" END")
	return withAlias(d, sb.String(), c.alias), args
}

func toText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// FuncExp is a SQL function call over operands.
type FuncExp struct {
	name   string
	values []any
	alias  string
}

// As sets the column alias.
func (f *FuncExp) As(alias string) *FuncExp {
	f.alias = alias
	return f
}

// Coalesce renders COALESCE(values...).
//
//	strata.Coalesce("nickname", "name", "'anonymous'").As("display_name")
func Coalesce(values ...any) *FuncExp {
	return &FuncExp{name: "COALESCE", values: values}
}

// NullIf renders NULLIF(a, b).
func NullIf(a, b any) *FuncExp {
	return &FuncExp{name: "NULLIF", values: []any{a, b}}
}

// Greatest renders GREATEST(values...), MAX(...) on SQLite.
func Greatest(values ...any) *FuncExp {
	return &FuncExp{name: "GREATEST", values: values}
}

// Least renders LEAST(values...), MIN(...) on SQLite.
func Least(values ...any) *FuncExp {
	return &FuncExp{name: "LEAST", values: values}
}

// Concat joins strings: CONCAT(...) on MySQL, the || operator elsewhere.
//
//	strata.Concat("first_name", "' '", "last_name").As("full_name")
func Concat(values ...any) *FuncExp {
	return &FuncExp{name: "CONCAT", values: values}
}

// Build renders the call.
func (f *FuncExp) Build(d dialects.Dialect) (string, []any) {
	if len(f.values) == 0 {
		return "", nil
	}
	parts, args := operandsSQL(d, f.values)
	name := f.name
	switch {
	case name == "CONCAT" && d.Name() != "mysql":
		return withAlias(d, strings.Join(parts, " || "), f.alias), args
	case name == "GREATEST" && d.Name() == "sqlite":
		name = "MAX"
	case name == "LEAST" && d.Name() == "sqlite":
		name = "MIN"
	}
	return withAlias(d, name+"("+strings.Join(parts, ", ")+")", f.alias), args
}

// SelectExp appends an expression column; its values go to the select bucket.
func (s *Statement) SelectExp(exp Expression) *Statement {
	if exp == nil {
		return s.fail(invalidArgf("select expression cannot be nil"))
	}
	sql, args := exp.Build(s.dialect)
	if sql == "" {
		return s.fail(invalidArgf("select expression is empty"))
	}
	s.columns = append(s.columns, sql)
	s.bindings.Add(SelectBindings, args...)
	return s
}
