package core

import (
	"strconv"
	"strings"

	"github.com/coregx/strata/internal/dialects"
)

// ToSQL compiles the statement to SQL with ? placeholders and the ordered
// bindings. It never mutates the statement, so repeated calls return equal
// results.
func (s *Statement) ToSQL() (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}

	prefix, args := s.compileCTEs()

	var body string
	switch s.kind {
	case KindSelect:
		body = s.compileSelect()
		args = append(args, s.bindings.ForSelect()...)
	default:
		var err error
		body, err = s.compileMutation()
		if err != nil {
			return "", nil, err
		}
		args = append(args, s.bindings.ForMutation()...)
	}
	return prefix + body, args, nil
}

// Build compiles the statement into an executable Query with placeholders
// renumbered for the dialect. A builder error is carried by the Query.
func (s *Statement) Build() *Query {
	sqlText, args, err := s.ToSQL()
	return &Query{
		sql:     renumberPlaceholders(s.dialect, sqlText),
		params:  args,
		builder: s.builder,
		ctx:     s.ctx,
		err:     err,
	}
}

// String returns the compiled SQL, or the error text.
func (s *Statement) String() string {
	sqlText, _, err := s.ToSQL()
	if err != nil {
		return "error: " + err.Error()
	}
	return sqlText
}

func (s *Statement) compileCTEs() (string, []any) {
	if len(s.ctes) == 0 {
		return "", nil
	}
	var args []any
	recursive := false
	parts := make([]string, len(s.ctes))
	for i, c := range s.ctes {
		part := s.dialect.QuoteIdentifier(c.name)
		if len(c.columns) > 0 {
			part += " (" + strings.Join(quoteNames(s.dialect, c.columns), ", ") + ")"
		}
		parts[i] = part + " AS (" + c.sql + ")"
		args = append(args, c.args...)
		recursive = recursive || c.recursive
	}
	keyword := "WITH "
	if recursive {
		keyword = "WITH RECURSIVE "
	}
	return keyword + strings.Join(parts, ", ") + " ", args
}

func (s *Statement) tableSQL() string {
	if s.rawTable {
		return s.table
	}
	return quoteTable(s.dialect, s.table)
}

func (s *Statement) compileSelect() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.distinct {
		sb.WriteString("DISTINCT ")
	}

	cols := s.columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	if len(s.windows) > 0 {
		cols = append(append([]string(nil), cols...), s.windows...)
	}
	sb.WriteString(strings.Join(cols, ", "))

	if s.table != "" {
		sb.WriteString(" FROM ")
		sb.WriteString(s.tableSQL())
	}
	if len(s.joins) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(s.joins, " "))
	}
	sb.WriteString(s.compileWhere())
	sb.WriteString(s.compileGroupBy())
	if s.having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(s.having)
	}
	if len(s.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(s.orders, ", "))
	}
	sb.WriteString(s.compileLimit())
	for _, u := range s.unions {
		if u.all {
			sb.WriteString(" UNION ALL ")
		} else {
			sb.WriteString(" UNION ")
		}
		sb.WriteString(u.sql)
	}
	if lock := s.dialect.LockSQL(s.lock); lock != "" {
		sb.WriteString(" ")
		sb.WriteString(lock)
	}
	return sb.String()
}

// compileWhere renders " WHERE ..." from the structured conditions, the
// soft-delete scope and the raw extra fragments, or "" when none apply.
func (s *Statement) compileWhere() string {
	conds := s.wheres
	if scope, ok := s.softDeleteCondition(); ok {
		if hasOr(conds) {
			conds = []Condition{Nested{Conditions: conds, Boolean: BoolAnd}}
		} else {
			conds = append([]Condition(nil), conds...)
		}
		conds = append(conds, scope)
	}

	text := compileConditions(s.dialect, conds)
	if len(s.whereExtra) > 0 {
		extra := strings.Join(s.whereExtra, " AND ")
		if text == "" {
			text = extra
		} else {
			text += " AND " + extra
		}
	}
	if text == "" {
		return ""
	}
	return " WHERE " + text
}

func hasOr(conds []Condition) bool {
	for i, c := range conds {
		if i > 0 && c.Conjunction() == BoolOr {
			return true
		}
	}
	return false
}

func (s *Statement) compileGroupBy() string {
	if len(s.groupingSets) > 0 {
		sets := make([]string, len(s.groupingSets))
		for i, set := range s.groupingSets {
			sets[i] = "(" + strings.Join(quoteNames(s.dialect, set), ", ") + ")"
		}
		return " GROUP BY GROUPING SETS (" + strings.Join(sets, ", ") + ")"
	}
	if len(s.groupBy) == 0 {
		return ""
	}
	cols := strings.Join(quoteNames(s.dialect, s.groupBy), ", ")
	if !s.rollup {
		return " GROUP BY " + cols
	}
	if s.dialect.Name() == "mysql" {
		return " GROUP BY " + cols + " WITH ROLLUP"
	}
	return " GROUP BY ROLLUP (" + cols + ")"
}

func (s *Statement) compileLimit() string {
	var sb strings.Builder
	switch {
	case s.limit >= 0:
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.FormatInt(s.limit, 10))
	case s.offset >= 0:
		// MySQL and SQLite reject OFFSET without LIMIT.
		switch s.dialect.Name() {
		case "mysql":
			sb.WriteString(" LIMIT 18446744073709551615")
		case "sqlite":
			sb.WriteString(" LIMIT -1")
		}
	}
	if s.offset >= 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.FormatInt(s.offset, 10))
	}
	return sb.String()
}

func (s *Statement) compileMutation() (string, error) {
	if s.table == "" {
		return "", invalidArgf("%s statement requires a table", s.kind)
	}
	table := s.tableSQL()
	p := s.payload

	switch s.kind {
	case KindInsert:
		if len(p.rows) == 0 {
			return "", invalidArgf("insert requires at least one row")
		}
		return "INSERT INTO " + table + p.valuesSQL(), nil

	case KindInsertIgnore:
		if len(p.rows) == 0 {
			return "", invalidArgf("insert requires at least one row")
		}
		verb, suffix := s.dialect.InsertIgnore()
		return verb + " " + table + p.valuesSQL() + suffix, nil

	case KindUpsert:
		if len(p.rows) == 0 {
			return "", invalidArgf("upsert requires at least one row")
		}
		update := p.updateColumns()
		clause := s.dialect.UpsertSQL(table, quoteNames(s.dialect, p.uniqueBy), update)
		if clause == "" {
			verb, suffix := s.dialect.InsertIgnore()
			return verb + " " + table + p.valuesSQL() + suffix, nil
		}
		return "INSERT INTO " + table + p.valuesSQL() + clause, nil

	case KindUpdate:
		if len(p.sets) == 0 {
			return "", invalidArgf("update requires at least one column")
		}
		return "UPDATE " + table + " SET " + strings.Join(p.sets, ", ") + s.compileWhere(), nil

	case KindDelete:
		if !s.hasWhere() {
			return "", ErrDeleteWithoutWhere
		}
		return "DELETE FROM " + table + s.compileWhere(), nil
	}
	return "", logicf("unknown statement kind %d", s.kind)
}

// renumberPlaceholders rewrites ? to the dialect's positional form ($1,
// $2, ...), leaving quoted literals and identifiers untouched.
func renumberPlaceholders(d dialects.Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch c {
		case '\'', '"', '`':
			end := i + 1
			for end < len(query) && query[end] != c {
				end++
			}
			sb.WriteString(query[i:min(end+1, len(query))])
			i = end
		case '?':
			n++
			sb.WriteString(d.Placeholder(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
