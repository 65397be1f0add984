package core

import (
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// Boolean connectors joining a condition to the one before it.
const (
	BoolAnd = "AND"
	BoolOr  = "OR"
)

// Condition is one node of a WHERE expression tree.
//
// The set of implementations is closed: Comparison, ListMembership, Between,
// ColumnToColumn, Exists, RawSQL and Nested. Each variant that renders N
// placeholders had its N values pushed to the where bindings, in rendering
// order, when it was added to a Statement.
type Condition interface {
	// Conjunction returns the boolean keyword joining this condition to the previous one.
	Conjunction() string
	sealedCondition()
}

// Comparison renders "column operator operand". Operand is "?" for a bound
// value, "NULL" for IS / IS NOT, or a parenthesized subquery.
type Comparison struct {
	Column   string
	Operator string
	Operand  string
	Boolean  string
}

// ListMembership renders "column [NOT] IN (?, ...)" with Count placeholders.
type ListMembership struct {
	Column  string
	Not     bool
	Count   int
	Boolean string
}

// Between renders "column [NOT] BETWEEN ? AND ?".
type Between struct {
	Column  string
	Negated bool
	Boolean string
}

// ColumnToColumn renders "left operator right" with both sides quoted.
type ColumnToColumn struct {
	Left     string
	Operator string
	Right    string
	Boolean  string
}

// Exists renders "[NOT] EXISTS (sql)".
type Exists struct {
	Negated bool
	SQL     string
	Boolean string
}

// RawSQL renders its text verbatim.
type RawSQL struct {
	SQL     string
	Boolean string
}

// Nested renders its children in parentheses.
type Nested struct {
	Conditions []Condition
	Boolean    string
}

func (c Comparison) Conjunction() string     { return c.Boolean }
func (c ListMembership) Conjunction() string { return c.Boolean }
func (c Between) Conjunction() string        { return c.Boolean }
func (c ColumnToColumn) Conjunction() string { return c.Boolean }
func (c Exists) Conjunction() string         { return c.Boolean }
func (c RawSQL) Conjunction() string         { return c.Boolean }
func (c Nested) Conjunction() string         { return c.Boolean }

func (Comparison) sealedCondition()     {}
func (ListMembership) sealedCondition() {}
func (Between) sealedCondition()        {}
func (ColumnToColumn) sealedCondition() {}
func (Exists) sealedCondition()         {}
func (RawSQL) sealedCondition()         {}
func (Nested) sealedCondition()         {}

// compileConditions renders a condition list, dropping the leading
// connector of the first entry.
func compileConditions(d dialects.Dialect, conds []Condition) string {
	var sb strings.Builder
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(c.Conjunction())
			sb.WriteString(" ")
		}
		sb.WriteString(compileCondition(d, c))
	}
	return sb.String()
}

func compileCondition(d dialects.Dialect, c Condition) string {
	switch c := c.(type) {
	case Comparison:
		return quoteName(d, c.Column) + " " + c.Operator + " " + c.Operand
	case ListMembership:
		op := " IN ("
		if c.Not {
			op = " NOT IN ("
		}
		return quoteName(d, c.Column) + op + placeholders(c.Count) + ")"
	case Between:
		op := " BETWEEN ? AND ?"
		if c.Negated {
			op = " NOT BETWEEN ? AND ?"
		}
		return quoteName(d, c.Column) + op
	case ColumnToColumn:
		return quoteName(d, c.Left) + " " + c.Operator + " " + quoteName(d, c.Right)
	case Exists:
		if c.Negated {
			return "NOT EXISTS (" + c.SQL + ")"
		}
		return "EXISTS (" + c.SQL + ")"
	case RawSQL:
		return c.SQL
	case Nested:
		return "(" + compileConditions(d, c.Conditions) + ")"
	}
	// Unreachable: the interface is sealed to the variants above.
	return ""
}

// cloneConditions deep-copies a condition list, recursing into Nested groups.
func cloneConditions(conds []Condition) []Condition {
	if conds == nil {
		return nil
	}
	out := make([]Condition, len(conds))
	for i, c := range conds {
		if n, ok := c.(Nested); ok {
			n.Conditions = cloneConditions(n.Conditions)
			out[i] = n
			continue
		}
		out[i] = c
	}
	return out
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
