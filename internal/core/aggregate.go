package core

import (
	"fmt"
	"strings"
)

// selfAlias names the related table in subqueries on the parent's own table.
const selfAlias = "strata_self"

// WithCount adds a "<name>_count" column counting the related rows of
// each relation.
func (s *Statement) WithCount(names ...string) *Statement {
	for _, name := range names {
		s.withAggregate(name, "*", "count", nil)
	}
	return s
}

// WithSum adds a "<name>_sum_<column>" column.
func (s *Statement) WithSum(name, column string) *Statement {
	return s.withAggregate(name, column, "sum", nil)
}

// WithAvg adds a "<name>_avg_<column>" column.
func (s *Statement) WithAvg(name, column string) *Statement {
	return s.withAggregate(name, column, "avg", nil)
}

// WithMin adds a "<name>_min_<column>" column.
func (s *Statement) WithMin(name, column string) *Statement {
	return s.withAggregate(name, column, "min", nil)
}

// WithMax adds a "<name>_max_<column>" column.
func (s *Statement) WithMax(name, column string) *Statement {
	return s.withAggregate(name, column, "max", nil)
}

// WithAggregate adds a correlated fn(column) subquery over the relation.
func (s *Statement) WithAggregate(name, column, fn string) *Statement {
	return s.withAggregate(name, column, fn, nil)
}

// WithCountWhere adds "<name>_count" counting only related rows where
// column op value holds.
func (s *Statement) WithCountWhere(name, column, op string, value any) *Statement {
	return s.withAggregate(name, "*", "count", func(sub *Statement) {
		sub.Where(sub.qualify(column), op, value)
	})
}

var aggregateFuncs = map[string]bool{"count": true, "sum": true, "avg": true, "min": true, "max": true}

func (s *Statement) withAggregate(name, column, fn string, constrain func(*Statement)) *Statement {
	if s.err != nil {
		return s
	}
	fn = strings.ToLower(strings.TrimSpace(fn))
	if !aggregateFuncs[fn] {
		return s.fail(invalidArgf("unsupported aggregate function %q", fn))
	}
	if column == "" {
		return s.fail(invalidArgf("aggregate column cannot be empty"))
	}
	rel, err := s.aggregateRelation(name)
	if err != nil {
		return s.fail(err)
	}
	sub, err := s.relationSubquery(rel)
	if err != nil {
		return s.fail(err)
	}

	expr := "*"
	if column != "*" {
		expr = quoteName(s.dialect, sub.qualify(column))
	}
	sub.columns = []string{strings.ToUpper(fn) + "(" + expr + ")"}
	if constrain != nil {
		constrain(sub)
	}

	alias := name + "_count"
	if fn != "count" || column != "*" {
		alias = name + "_" + fn + "_" + columnKey(column)
	}
	s.ensureColumns()
	return s.SelectSub(sub, alias)
}

// aggregateRelation resolves name on a prototype of the statement's
// record type.
func (s *Statement) aggregateRelation(name string) (Relation, error) {
	if s.factory == nil {
		return nil, fmt.Errorf("%w: relation %q needs a statement started from a record query", ErrRelationNotFound, name)
	}
	var db *DB
	if s.builder != nil {
		db = s.builder.db
	}
	return ResolveRelation(s.factory(db), name)
}

// relationSubquery builds the correlated subquery of rel against s,
// joined on the relation keys.
func (s *Statement) relationSubquery(rel Relation) (*Statement, error) {
	parent := s.tableRef()
	related := rel.base().prototype
	sub := newStatement(s.builder, s.dialect)

	switch d := rel.Descriptor().(type) {
	case HasManyDescriptor:
		table := sub.fromRelated(d.Related, parent)
		sub.WhereColumn(table+"."+d.ForeignKey, "=", parent+"."+d.LocalKey)
	case HasOneDescriptor:
		table := sub.fromRelated(d.Related, parent)
		sub.WhereColumn(table+"."+d.ForeignKey, "=", parent+"."+d.LocalKey)
	case BelongsToDescriptor:
		table := sub.fromRelated(d.Related, parent)
		sub.WhereColumn(table+"."+d.OwnerKey, "=", parent+"."+d.ForeignKey)
	case BelongsToManyDescriptor:
		sub.Table(d.Related+" AS "+relatedAlias).
			Join(d.Pivot+" AS "+pivotAlias, relatedAlias+"."+d.RelatedKey, "=", pivotAlias+"."+d.RelatedPivotKey).
			WhereColumn(pivotAlias+"."+d.ForeignPivotKey, "=", parent+"."+d.ParentKey)
	case HasManyThroughDescriptor:
		throughSubquery(sub, d.ThroughKeys, parent)
	case HasOneThroughDescriptor:
		throughSubquery(sub, d.ThroughKeys, parent)
	default:
		return nil, logicf("unsupported relation %T", rel)
	}
	if related != nil {
		if col := related.model().softDelete; col != "" {
			sub.SoftDeletes(col)
		}
	}
	return sub, sub.err
}

// fromRelated sets the subquery table and returns the name to qualify its
// columns with. A relation on the parent's own table is aliased so the
// correlation does not compare each row with itself.
func (s *Statement) fromRelated(related, parent string) string {
	if related == parent {
		s.Table(related + " AS " + selfAlias)
		return selfAlias
	}
	s.Table(related)
	return related
}

func throughSubquery(sub *Statement, k ThroughKeys, parent string) {
	sub.Table(k.Related+" AS "+throughRelatedAlias).
		Join(k.Through+" AS "+throughAlias,
			throughAlias+"."+k.SecondLocalKey, "=", throughRelatedAlias+"."+k.SecondKey).
		WhereColumn(throughAlias+"."+k.FirstKey, "=", parent+"."+k.LocalKey)
}
