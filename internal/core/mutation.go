package core

import (
	"reflect"
	"sort"
	"strings"

	"github.com/coregx/strata/internal/util"
)

// mutation is the payload of an INSERT, UPSERT or UPDATE. Fragments are
// rendered when the payload is set; their values are in the mutation bucket.
type mutation struct {
	columns  []string // quoted
	names    []string // unquoted, sorted
	rows     []string // "(?, ?)" per row
	sets     []string // "col = ?" per column
	uniqueBy []string
	update   []string
	hasSpec  bool // update list given explicitly
}

func (m mutation) clone() mutation {
	m.columns = cloneStrings(m.columns)
	m.names = cloneStrings(m.names)
	m.rows = cloneStrings(m.rows)
	m.sets = cloneStrings(m.sets)
	m.uniqueBy = cloneStrings(m.uniqueBy)
	m.update = cloneStrings(m.update)
	return m
}

func (m mutation) valuesSQL() string {
	return " (" + strings.Join(m.columns, ", ") + ") VALUES " + strings.Join(m.rows, ", ")
}

// updateColumns returns the quoted upsert update list. nil means do nothing.
func (m mutation) updateColumns() []string {
	return m.update
}

// rowMaps normalizes insert input: maps, structs, pointers to structs and
// slices of those.
func rowMaps(values []any) ([]map[string]any, error) {
	var out []map[string]any
	for _, v := range values {
		switch r := v.(type) {
		case map[string]any:
			out = append(out, r)
			continue
		case []map[string]any:
			out = append(out, r...)
			continue
		case Record:
			out = append(out, r.Attributes())
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			for i := 0; i < rv.Len(); i++ {
				nested, err := rowMaps([]any{rv.Index(i).Interface()})
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
			}
			continue
		}
		m, err := util.StructToMap(v)
		if err != nil {
			return nil, invalidArgf("row: %v", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valueSQL renders one value: inline for an Expression, "?" otherwise.
func (s *Statement) valueSQL(v any) (string, []any) {
	if exp, ok := v.(Expression); ok {
		return exp.Build(s.dialect)
	}
	return "?", []any{v}
}

func (s *Statement) setRows(kind StatementKind, values []any) *Statement {
	rows, err := rowMaps(values)
	if err != nil {
		return s.fail(err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return s.fail(invalidArgf("%s requires at least one non-empty row", kind))
	}

	names := sortedKeys(rows[0])
	var p mutation
	p.names = names
	p.columns = quoteNames(s.dialect, names)

	var args []any
	for i, row := range rows {
		if len(row) != len(names) {
			return s.fail(invalidArgf("row %d has %d columns, expected %d", i, len(row), len(names)))
		}
		ph := make([]string, len(names))
		for j, name := range names {
			v, ok := row[name]
			if !ok {
				return s.fail(invalidArgf("row %d is missing column %q", i, name))
			}
			var vArgs []any
			ph[j], vArgs = s.valueSQL(v)
			args = append(args, vArgs...)
		}
		p.rows = append(p.rows, "("+strings.Join(ph, ", ")+")")
	}

	s.kind = kind
	s.payload = p
	s.bindings.Set(MutationBindings, args)
	return s
}

// InsertValues turns the statement into an INSERT of rows. Each row is a
// map, a struct with db tags, or a slice of those. Columns are taken from
// the first row in sorted order; every row must carry the same columns.
func (s *Statement) InsertValues(rows ...any) *Statement {
	return s.setRows(KindInsert, rows)
}

// InsertIgnoreValues is InsertValues that skips conflicting rows.
func (s *Statement) InsertIgnoreValues(rows ...any) *Statement {
	return s.setRows(KindInsertIgnore, rows)
}

// UpsertValues turns the statement into an insert that updates the update
// columns when a row conflicts on uniqueBy. A nil update list updates every
// inserted column not in uniqueBy; an empty non-nil list does nothing on
// conflict.
func (s *Statement) UpsertValues(rows any, uniqueBy, update []string) *Statement {
	s.setRows(KindUpsert, []any{rows})
	if s.err != nil {
		return s
	}
	if len(uniqueBy) == 0 && s.dialect.Name() != "mysql" {
		return s.fail(invalidArgf("upsert requires the unique-by columns"))
	}

	if update == nil {
		unique := make(map[string]bool, len(uniqueBy))
		for _, u := range uniqueBy {
			unique[u] = true
		}
		for _, name := range s.payload.names {
			if !unique[name] {
				update = append(update, name)
			}
		}
	}
	s.payload.uniqueBy = append([]string(nil), uniqueBy...)
	if len(update) > 0 {
		s.payload.update = quoteNames(s.dialect, update)
	}
	return s
}

// UpdateValues turns the statement into an UPDATE. values is a map or a
// struct; Expression values are rendered inline.
func (s *Statement) UpdateValues(values any) *Statement {
	var m map[string]any
	if mv, ok := values.(map[string]any); ok {
		m = mv
	} else {
		var err error
		if m, err = util.StructToMap(values); err != nil {
			return s.fail(invalidArgf("update values: %v", err))
		}
	}
	if len(m) == 0 {
		return s.fail(invalidArgf("update requires at least one column"))
	}

	var p mutation
	var args []any
	for _, name := range sortedKeys(m) {
		ph, vArgs := s.valueSQL(m[name])
		p.sets = append(p.sets, quoteName(s.dialect, name)+" = "+ph)
		args = append(args, vArgs...)
	}
	s.kind = KindUpdate
	s.payload = p
	s.bindings.Set(MutationBindings, args)
	return s
}

// AsDelete turns the statement into a DELETE. A WHERE clause is required.
func (s *Statement) AsDelete() *Statement {
	s.kind = KindDelete
	s.payload = mutation{}
	s.bindings.Set(MutationBindings, nil)
	return s
}

// incrementValues builds "col = col + ?" followed by extra assignments.
func (s *Statement) incrementValues(column, op string, amount any, extra map[string]any) *Statement {
	if strings.TrimSpace(column) == "" {
		return s.fail(invalidArgf("increment column cannot be empty"))
	}
	values := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		values[k] = v
	}
	quoted := quoteName(s.dialect, column)
	values[column] = NewExp(quoted+" "+op+" ?", amount)
	return s.UpdateValues(values)
}
