package core

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/coregx/strata/internal/dialects"
)

// Get runs the SELECT and hydrates the rows into records, then loads the
// relations registered with With.
func (s *Statement) Get() ([]Record, error) {
	rows, err := s.GetRows()
	if err != nil {
		return nil, err
	}
	records := s.hydrateAll(rows)
	if len(s.eager) > 0 && len(records) > 0 {
		if err := loadRelations(records, s.eager, s.constraints, false); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Statement) hydrateAll(rows []Row) []Record {
	records := make([]Record, len(rows))
	var db *DB
	if s.builder != nil {
		db = s.builder.db
	}
	table := stripAlias(s.table)
	if s.recordTable != "" {
		table = s.recordTable
	}
	for i, row := range rows {
		records[i] = hydrate(s.factory, db, table, row)
	}
	return records
}

// GetRows runs the SELECT and returns raw rows.
func (s *Statement) GetRows() ([]Row, error) {
	if s.kind != KindSelect {
		return nil, logicf("cannot fetch rows from a %s statement", s.kind)
	}
	return s.Build().Rows()
}

// rowQuery returns a clone of s that LIMIT, OFFSET and a new column list
// apply to as a whole. A statement with unions becomes
// "SELECT * FROM (<s>) AS union_table".
func (s *Statement) rowQuery() *Statement {
	c := s.Clone()
	if len(c.unions) == 0 || c.err != nil {
		return c
	}
	w := newStatement(c.builder, c.dialect)
	w.ctx = c.ctx
	w.lock, c.lock = c.lock, dialects.LockNone
	inner, args, err := c.ToSQL()
	if err != nil {
		return w.fail(err)
	}
	w.table = "(" + inner + ") AS " + c.dialect.QuoteIdentifier("union_table")
	w.rawTable = true
	w.recordTable = stripAlias(c.table)
	if c.recordTable != "" {
		w.recordTable = c.recordTable
	}
	// The derived table renders between the columns and the joins.
	w.bindings.Add(JoinBindings, args...)
	w.factory = c.factory
	w.eager = c.eager
	w.constraints = c.constraints
	return w
}

// First returns the first record, or nil when none matched.
func (s *Statement) First() (Record, error) {
	records, err := s.rowQuery().Limit(1).Get()
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// FirstOrFail is First returning a *NotFoundError when nothing matched.
func (s *Statement) FirstOrFail() (Record, error) {
	r, err := s.First()
	if err != nil {
		return nil, err
	}
	if r == nil {
		if s.builder != nil {
			s.builder.db.logger.Warn("no record found", "table", s.table)
		}
		return nil, &NotFoundError{Table: stripAlias(s.table)}
	}
	return r, nil
}

func (s *Statement) primaryKey() string {
	if s.factory != nil && s.builder != nil {
		return s.factory(s.builder.db).PrimaryKey()
	}
	return "id"
}

// Find returns the record with the primary key id, or nil.
func (s *Statement) Find(id any) (Record, error) {
	return s.Clone().Where(s.qualify(s.primaryKey()), "=", id).First()
}

// FindOrFail is Find returning a *NotFoundError when nothing matched.
func (s *Statement) FindOrFail(id any) (Record, error) {
	r, err := s.Find(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Table: stripAlias(s.table), ID: id}
	}
	return r, nil
}

// Value returns column of the first row, or nil.
func (s *Statement) Value(column string) (any, error) {
	row, err := s.rowQuery().Select(column).Limit(1).Build().Row()
	if err != nil || row == nil {
		return nil, err
	}
	return row[columnKey(column)], nil
}

// Pluck returns column from every row.
func (s *Statement) Pluck(column string) ([]any, error) {
	rows, err := s.rowQuery().Select(column).Build().Rows()
	if err != nil {
		return nil, err
	}
	key := columnKey(column)
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[key]
	}
	return out, nil
}

// columnKey returns the row key a selected column comes back under.
func columnKey(column string) string {
	if m := aliasPattern.FindStringSubmatch(column); m != nil {
		return m[2]
	}
	if i := lastDot(column); i >= 0 {
		return column[i+1:]
	}
	return column
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// Exists reports whether any row matches. It runs on a clone.
func (s *Statement) Exists() (bool, error) {
	c := s.rowQuery()
	c.columns = []string{"1"}
	c.bindings.Set(SelectBindings, nil)
	c.windows = nil
	c.eager = nil
	c.Reorder().Limit(1).Offset(-1)
	row, err := c.Build().Row()
	return row != nil, err
}

// DoesntExist is the negation of Exists.
func (s *Statement) DoesntExist() (bool, error) {
	ok, err := s.Exists()
	return !ok, err
}

// aggregateQuery builds "SELECT fn(column) AS aggregate" over a clone.
// Grouped, distinct and union statements are wrapped in a derived table.
func (s *Statement) aggregateQuery(fn, column string) *Query {
	c := s.Clone()
	c.eager = nil
	c.Reorder().Limit(-1).Offset(-1)

	expr := "*"
	if column != "*" {
		expr = quoteName(s.dialect, column)
	}
	selectExpr := fn + "(" + expr + ") AS " + s.dialect.QuoteIdentifier("aggregate")

	if len(c.groupBy) > 0 || len(c.groupingSets) > 0 || len(c.unions) > 0 || c.distinct {
		inner, args, err := c.ToSQL()
		outer := "SELECT " + fn + "(*) AS " + s.dialect.QuoteIdentifier("aggregate") +
			" FROM (" + inner + ") AS " + s.dialect.QuoteIdentifier("aggregate_table")
		if column != "*" {
			outer = "SELECT " + fn + "(" + s.dialect.QuoteIdentifier(columnKey(column)) + ") AS " +
				s.dialect.QuoteIdentifier("aggregate") + " FROM (" + inner + ") AS " +
				s.dialect.QuoteIdentifier("aggregate_table")
		}
		return &Query{
			sql:     renumberPlaceholders(s.dialect, outer),
			params:  args,
			builder: s.builder,
			ctx:     s.ctx,
			err:     err,
		}
	}

	c.columns = []string{selectExpr}
	c.bindings.Set(SelectBindings, nil)
	c.windows = nil
	return c.Build()
}

func (s *Statement) aggregate(fn, column string) (any, error) {
	row, err := s.aggregateQuery(fn, column).Row()
	if err != nil || row == nil {
		return nil, err
	}
	return row["aggregate"], nil
}

// CountQuery is the query Count runs.
func (s *Statement) CountQuery(column ...string) *Query {
	return s.aggregateQuery("COUNT", firstOr(column, "*"))
}

// Count returns the number of matching rows, or of non-null values of
// column when one is given.
func (s *Statement) Count(column ...string) (int64, error) {
	v, err := s.aggregate("COUNT", firstOr(column, "*"))
	if err != nil {
		return 0, err
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Sum returns SUM(column); 0 when no rows matched.
func (s *Statement) Sum(column string) (float64, error) {
	return s.numericAggregate("SUM", column)
}

// Avg returns AVG(column); 0 when no rows matched.
func (s *Statement) Avg(column string) (float64, error) {
	return s.numericAggregate("AVG", column)
}

func (s *Statement) numericAggregate(fn, column string) (float64, error) {
	v, err := s.aggregate(fn, column)
	if err != nil || v == nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	return f, nil
}

// Min returns MIN(column), or nil when no rows matched.
func (s *Statement) Min(column string) (any, error) {
	return s.aggregate("MIN", column)
}

// Max returns MAX(column), or nil when no rows matched.
func (s *Statement) Max(column string) (any, error) {
	return s.aggregate("MAX", column)
}

func (s *Statement) exec(c *Statement) (int64, error) {
	res, err := c.Build().Execute()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert inserts rows (maps, structs or slices of those).
func (s *Statement) Insert(rows ...any) (int64, error) {
	return s.exec(s.Clone().InsertValues(rows...))
}

// InsertOrIgnore inserts rows, skipping those that conflict.
func (s *Statement) InsertOrIgnore(rows ...any) (int64, error) {
	return s.exec(s.Clone().InsertIgnoreValues(rows...))
}

// InsertGetID inserts one row and returns its generated key. On postgres
// the key column (default id) is read back with RETURNING.
func (s *Statement) InsertGetID(row any, keyColumn ...string) (int64, error) {
	c := s.Clone().InsertValues(row)
	if s.dialect.Name() == "postgres" {
		q := c.Build()
		q.sql += " RETURNING " + s.dialect.QuoteIdentifier(firstOr(keyColumn, "id"))
		r, err := q.Row()
		if err != nil {
			return 0, err
		}
		for _, v := range r {
			return cast.ToInt64E(v)
		}
		return 0, logicf("insert returned no key")
	}
	res, err := c.Build().Execute()
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Upsert inserts rows, updating the update columns on a uniqueBy conflict.
func (s *Statement) Upsert(rows any, uniqueBy, update []string) (int64, error) {
	return s.exec(s.Clone().UpsertValues(rows, uniqueBy, update))
}

// Update sets values on every matching row.
func (s *Statement) Update(values any) (int64, error) {
	return s.exec(s.Clone().UpdateValues(values))
}

// Increment adds amount to column, optionally setting extra columns.
func (s *Statement) Increment(column string, amount any, extra ...map[string]any) (int64, error) {
	return s.exec(s.Clone().incrementValues(column, "+", amount, firstMap(extra)))
}

// Decrement subtracts amount from column.
func (s *Statement) Decrement(column string, amount any, extra ...map[string]any) (int64, error) {
	return s.exec(s.Clone().incrementValues(column, "-", amount, firstMap(extra)))
}

func firstMap(ms []map[string]any) map[string]any {
	if len(ms) > 0 {
		return ms[0]
	}
	return nil
}

// Delete deletes the matching rows. A WHERE clause is required.
func (s *Statement) Delete() (int64, error) {
	return s.exec(s.Clone().AsDelete())
}

// Chunk fetches the matching records size at a time and passes each page
// to fn. It stops when fn returns false or a page comes back short. Add an
// ORDER BY for stable pages.
func (s *Statement) Chunk(size int64, fn func([]Record) bool) error {
	if size <= 0 {
		return invalidArgf("chunk size must be positive, got %d", size)
	}
	for page := int64(1); ; page++ {
		records, err := s.rowQuery().ForPage(page, size).Get()
		if err != nil {
			return err
		}
		if len(records) == 0 || !fn(records) || int64(len(records)) < size {
			return nil
		}
	}
}
