package core

import "github.com/coregx/strata/internal/util"

const (
	throughRelatedAlias = "r"
	throughAlias        = "t"
	throughKeyColumn    = "through_key"
)

// through holds the keys shared by HasManyThrough and HasOneThrough.
type through struct {
	relation
	throughTable   string
	firstKey       string // through column referencing the parent
	secondKey      string // related column referencing the through row
	localKey       string // parent column
	secondLocalKey string // through column matched by secondKey
}

func (r *through) keys() ThroughKeys {
	return ThroughKeys{
		Parent:         parentTable(r.parent),
		Related:        relatedTable(r.prototype),
		Through:        r.throughTable,
		FirstKey:       r.firstKey,
		SecondKey:      r.secondKey,
		LocalKey:       r.localKey,
		SecondLocalKey: r.secondLocalKey,
	}
}

func (r *through) newQuery() *Statement {
	return r.relatedQuery(throughRelatedAlias).
		Select(throughRelatedAlias+".*").
		Join(r.throughTable+" AS "+throughAlias,
			throughAlias+"."+r.secondLocalKey, "=", throughRelatedAlias+"."+r.secondKey)
}

// constrain filters on the through table; batches also select the through
// key so rows can be matched back to their parents.
func (r *through) constrain(q *Statement, keys []any, batch bool) {
	column := throughAlias + "." + r.firstKey
	constrainKey(q, column, keys, batch)
	if batch {
		q.AddSelect(column + " AS " + throughKeyColumn)
	}
}

func (r *through) parentKeyName() string   { return r.localKey }
func (r *through) matchKey(rec Record) any { return rec.GetAttribute(throughKeyColumn) }

// prepare drops the helper key selected by batched loads.
func (r *through) prepare(records []Record) []Record {
	for _, rec := range records {
		m := rec.model()
		if m.HasAttribute(throughKeyColumn) {
			m.UnsetAttribute(throughKeyColumn)
			m.syncOriginal()
		}
	}
	return records
}

// HasManyThrough reaches related rows through an intermediate table.
type HasManyThrough struct {
	through
}

// Descriptor reports the relation keys.
func (r *HasManyThrough) Descriptor() RelationDescriptor {
	return HasManyThroughDescriptor{r.keys()}
}

// ForKey matches through rows against a literal parent key.
func (r *HasManyThrough) ForKey(key any) *HasManyThrough {
	r.forKey(key)
	return r
}

// Get returns every related record.
func (r *HasManyThrough) Get() ([]Record, error) {
	records, err := r.fetch(0)
	if records == nil && err == nil {
		records = []Record{}
	}
	return records, err
}

// First returns the first related record, or nil.
func (r *HasManyThrough) First() (Record, error) { return r.first() }

func (r *HasManyThrough) single() bool { return false }

// HasOneThrough is HasManyThrough for a single related row.
type HasOneThrough struct {
	through
	defaults defaultValue
}

// Descriptor reports the relation keys.
func (r *HasOneThrough) Descriptor() RelationDescriptor {
	return HasOneThroughDescriptor{r.keys()}
}

// ForKey matches through rows against a literal parent key.
func (r *HasOneThrough) ForKey(key any) *HasOneThrough {
	r.forKey(key)
	return r
}

// WithDefault makes Get return a new record filled with attrs instead of nil.
func (r *HasOneThrough) WithDefault(attrs ...map[string]any) *HasOneThrough {
	r.defaults.withAttributes(attrs)
	return r
}

// WithDefaultFunc makes Get return a new record passed through fn.
func (r *HasOneThrough) WithDefaultFunc(fn func(Record)) *HasOneThrough {
	r.defaults.withFunc(fn)
	return r
}

// Get returns the related record, the default, or nil.
func (r *HasOneThrough) Get() (Record, error) {
	v, err := results(r)
	if err != nil || v == nil {
		return nil, err
	}
	return v.(Record), nil
}

// First returns the related record, or nil.
func (r *HasOneThrough) First() (Record, error) { return r.first() }

func (r *HasOneThrough) single() bool { return true }

// newThrough fills the keys with their defaults: firstKey is the parent's
// foreign key name, secondKey the through table's, localKey and
// secondLocalKey the primary keys.
func (m *Model) newThrough(self Relation, related Factory, throughTable, firstKey, secondKey, localKey, secondLocalKey string) through {
	t := through{
		throughTable:   throughTable,
		firstKey:       firstOr([]string{firstKey}, util.ForeignKey(m.table)),
		secondKey:      firstOr([]string{secondKey}, util.ForeignKey(throughTable)),
		localKey:       firstOr([]string{localKey}, m.primaryKey),
		secondLocalKey: firstOr([]string{secondLocalKey}, "id"),
	}
	t.relation = newRelation(self, m.db, related)
	return t
}

// HasManyThrough declares a has-many-through relation bound to m.
func (m *Model) HasManyThrough(related Factory, throughTable, firstKey, secondKey, localKey, secondLocalKey string) *HasManyThrough {
	r := &HasManyThrough{}
	r.through = m.newThrough(r, related, throughTable, firstKey, secondKey, localKey, secondLocalKey)
	r.bind(m)
	return r
}

// HasOneThrough declares a has-one-through relation bound to m.
func (m *Model) HasOneThrough(related Factory, throughTable, firstKey, secondKey, localKey, secondLocalKey string) *HasOneThrough {
	r := &HasOneThrough{}
	r.through = m.newThrough(r, related, throughTable, firstKey, secondKey, localKey, secondLocalKey)
	r.bind(m)
	return r
}
