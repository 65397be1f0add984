package core

import (
	"github.com/coregx/strata/internal/dialects"
	"github.com/coregx/strata/internal/util"
)

// Relation is a declared association between a parent record and the
// records of a related table. Relations returned by the Model helpers
// (HasMany, BelongsTo, ...) are already bound to their parent.
//
// The set of implementations is closed: the six concrete types in this
// package.
type Relation interface {
	// Descriptor reports the relation's shape and keys.
	Descriptor() RelationDescriptor
	// Query returns the relation's statement, constrained by the parent
	// key once a parent is bound. Constraints added to it apply to Get.
	Query() *Statement
	// SetParent binds the owning record. It can only be called once.
	SetParent(parent Record) error
	// Parent returns the bound record, or nil.
	Parent() Record
	// Related returns a prototype of the related record type.
	Related() Record
	// Err returns the error recorded while declaring the relation.
	Err() error

	base() *relation
	newQuery() *Statement
	constrain(q *Statement, keys []any, batch bool)
	parentKeyName() string
	matchKey(r Record) any
	single() bool
	prepare(records []Record) []Record
}

// relation holds the state shared by every variant.
type relation struct {
	self      Relation
	db        *DB
	related   Factory
	prototype Record
	parent    Record
	key       any // literal key for unbound use
	hasKey    bool
	query     *Statement
	keyed     bool
	err       error
}

func newRelation(self Relation, db *DB, related Factory) relation {
	r := relation{self: self, db: db, related: related}
	if related == nil {
		r.err = ErrRelationNotFound
		return r
	}
	r.prototype = related(db)
	if r.prototype == nil {
		r.err = logicf("relation factory returned no record")
	}
	return r
}

func (r *relation) base() *relation { return r }

// Err returns the declaration error, if any.
func (r *relation) Err() error { return r.err }

// Parent returns the bound record.
func (r *relation) Parent() Record { return r.parent }

// Related returns a prototype of the related record type.
func (r *relation) Related() Record { return r.prototype }

// SetParent binds the owning record.
func (r *relation) SetParent(parent Record) error {
	if r.parent != nil {
		return ErrParentAlreadyBound
	}
	if parent == nil {
		return invalidArgf("parent record cannot be nil")
	}
	r.parent = parent
	if r.db == nil {
		r.db = parent.Connection()
	}
	r.query = nil
	r.keyed = false
	return nil
}

// unbind forgets the parent and the constrained query so the relation can
// be reused as a template for batched loading.
func (r *relation) unbind() {
	r.parent = nil
	r.hasKey = false
	r.key = nil
	r.query = nil
	r.keyed = false
}

// forKey sets the literal key used by unbound relations.
func (r *relation) forKey(key any) {
	r.key = key
	r.hasKey = true
	r.query = nil
	r.keyed = false
}

// keyValue returns the value matched against the related table and
// whether one is available at all.
func (r *relation) keyValue() (any, bool) {
	if r.parent != nil {
		return r.parent.GetAttribute(r.self.parentKeyName()), true
	}
	if r.hasKey {
		return r.key, true
	}
	return nil, false
}

// Query returns the relation statement, adding the key constraint once.
func (r *relation) Query() *Statement {
	if r.query == nil {
		r.query = r.self.newQuery()
	}
	if !r.keyed {
		if key, ok := r.keyValue(); ok && !util.IsNilKey(key) {
			r.self.constrain(r.query, []any{key}, false)
			r.keyed = true
		}
	}
	return r.query
}

// relatedQuery starts a statement on the related table, aliased when alias
// is set, hydrating through the related factory.
func (r *relation) relatedQuery(alias string) *Statement {
	if r.err != nil {
		return failedStatement(r.db, r.err)
	}
	if r.db == nil {
		return failedStatement(nil, ErrNoConnection)
	}
	table := r.prototype.TableName()
	if alias != "" {
		table += " AS " + alias
	}
	q := r.db.Table(table)
	q.factory = r.related
	if col := r.prototype.model().softDelete; col != "" {
		q.SoftDeletes(col)
	}
	return q
}

func failedStatement(db *DB, err error) *Statement {
	if db == nil {
		return newStatement(nil, dialects.GetDialect("postgres")).fail(err)
	}
	return newStatement(db.Builder(), db.dialect).fail(err)
}

// fetch runs the relation query. A nil key returns no records without a
// driver call.
func (r *relation) fetch(limit int64) ([]Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	key, ok := r.keyValue()
	if !ok {
		return nil, ErrParentNotBound
	}
	if util.IsNilKey(key) {
		return nil, nil
	}
	q := r.Query()
	if limit > 0 {
		q = q.Clone().Limit(limit)
	}
	records, err := q.Get()
	if err != nil {
		return nil, err
	}
	return r.self.prepare(records), nil
}

// first returns the first related record, or nil.
func (r *relation) first() (Record, error) {
	records, err := r.fetch(1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// results returns the value attached to a parent by eager loading: a
// []Record for multi-valued relations, a Record (possibly the default)
// for single-valued ones.
func results(rel Relation) (any, error) {
	r := rel.base()
	if rel.single() {
		rec, err := r.first()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return singleDefault(rel, r.parent), nil
		}
		return rec, nil
	}
	records, err := r.fetch(0)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// singleDefault returns the default record of a single-valued relation
// for parent, or nil when none is configured.
func singleDefault(rel Relation, parent Record) Record {
	switch v := rel.(type) {
	case *HasOne:
		return v.defaults.resolve(&v.relation, func(rec Record) {
			if parent != nil {
				rec.SetAttribute(v.foreignKey, parent.GetAttribute(v.localKey))
			}
		})
	case *BelongsTo:
		return v.defaults.resolve(&v.relation, nil)
	case *HasOneThrough:
		return v.defaults.resolve(&v.relation, nil)
	}
	return nil
}

// defaultValue configures the record returned by a single-valued relation
// when no related row exists.
type defaultValue struct {
	set   bool
	attrs map[string]any
	fn    func(Record)
}

func (d *defaultValue) withAttributes(attrs []map[string]any) {
	d.set = true
	d.attrs = make(map[string]any)
	for _, m := range attrs {
		for k, v := range m {
			d.attrs[k] = v
		}
	}
}

func (d *defaultValue) withFunc(fn func(Record)) {
	d.set = true
	d.fn = fn
}

func (d *defaultValue) resolve(r *relation, fill func(Record)) Record {
	if !d.set || r.related == nil {
		return nil
	}
	rec := r.related(r.db)
	rec.MarkNew()
	if fill != nil {
		fill(rec)
	}
	if len(d.attrs) > 0 {
		attrs := make(map[string]any, len(d.attrs))
		for k, v := range d.attrs {
			attrs[k] = v
		}
		rec.ForceFill(attrs)
	}
	if d.fn != nil {
		d.fn(rec)
	}
	return rec
}

// constrainKey adds "column = key", or "column IN (keys)" for batches.
func constrainKey(q *Statement, column string, keys []any, batch bool) {
	if !batch && len(keys) == 1 {
		q.Where(column, "=", keys[0])
		return
	}
	q.WhereIn(column, keys...)
}

// HasMany is a one-to-many relation.
type HasMany struct {
	relation
	foreignKey string
	localKey   string
}

// Descriptor reports the relation keys.
func (r *HasMany) Descriptor() RelationDescriptor {
	return HasManyDescriptor{
		Parent:     parentTable(r.parent),
		Related:    relatedTable(r.prototype),
		ForeignKey: r.foreignKey,
		LocalKey:   r.localKey,
	}
}

// ForKey matches related rows against a literal key instead of a parent.
func (r *HasMany) ForKey(key any) *HasMany {
	r.forKey(key)
	return r
}

// Get returns every related record. A parent without a key returns none.
func (r *HasMany) Get() ([]Record, error) {
	records, err := r.fetch(0)
	if records == nil && err == nil {
		records = []Record{}
	}
	return records, err
}

// First returns the first related record, or nil.
func (r *HasMany) First() (Record, error) { return r.first() }

func (r *HasMany) newQuery() *Statement { return r.relatedQuery("") }

func (r *HasMany) constrain(q *Statement, keys []any, batch bool) {
	constrainKey(q, q.qualify(r.foreignKey), keys, batch)
}

func (r *HasMany) parentKeyName() string        { return r.localKey }
func (r *HasMany) matchKey(rec Record) any      { return rec.GetAttribute(r.foreignKey) }
func (r *HasMany) single() bool                 { return false }
func (r *HasMany) prepare(rs []Record) []Record { return rs }

// HasOne is a one-to-one relation where the related table holds the key.
type HasOne struct {
	relation
	foreignKey string
	localKey   string
	defaults   defaultValue
}

// Descriptor reports the relation keys.
func (r *HasOne) Descriptor() RelationDescriptor {
	return HasOneDescriptor{
		Parent:     parentTable(r.parent),
		Related:    relatedTable(r.prototype),
		ForeignKey: r.foreignKey,
		LocalKey:   r.localKey,
	}
}

// ForKey matches the related row against a literal key.
func (r *HasOne) ForKey(key any) *HasOne {
	r.forKey(key)
	return r
}

// WithDefault makes Get return a new record filled with attrs instead of
// nil. The foreign key is set to the parent key.
func (r *HasOne) WithDefault(attrs ...map[string]any) *HasOne {
	r.defaults.withAttributes(attrs)
	return r
}

// WithDefaultFunc makes Get return a new record passed through fn.
func (r *HasOne) WithDefaultFunc(fn func(Record)) *HasOne {
	r.defaults.withFunc(fn)
	return r
}

// Get returns the related record, the default, or nil.
func (r *HasOne) Get() (Record, error) {
	v, err := results(r)
	if err != nil || v == nil {
		return nil, err
	}
	return v.(Record), nil
}

// First returns the related record, or nil.
func (r *HasOne) First() (Record, error) { return r.first() }

func (r *HasOne) newQuery() *Statement { return r.relatedQuery("") }

func (r *HasOne) constrain(q *Statement, keys []any, batch bool) {
	constrainKey(q, q.qualify(r.foreignKey), keys, batch)
}

func (r *HasOne) parentKeyName() string        { return r.localKey }
func (r *HasOne) matchKey(rec Record) any      { return rec.GetAttribute(r.foreignKey) }
func (r *HasOne) single() bool                 { return true }
func (r *HasOne) prepare(rs []Record) []Record { return rs }

// BelongsTo is the inverse of HasMany/HasOne: the parent holds the key.
type BelongsTo struct {
	relation
	foreignKey string
	ownerKey   string
	defaults   defaultValue
}

// Descriptor reports the relation keys.
func (r *BelongsTo) Descriptor() RelationDescriptor {
	return BelongsToDescriptor{
		Child:      parentTable(r.parent),
		Related:    relatedTable(r.prototype),
		ForeignKey: r.foreignKey,
		OwnerKey:   r.ownerKey,
	}
}

// ForKey matches the owner against a literal key.
func (r *BelongsTo) ForKey(key any) *BelongsTo {
	r.forKey(key)
	return r
}

// WithDefault makes Get return a new record filled with attrs instead of nil.
func (r *BelongsTo) WithDefault(attrs ...map[string]any) *BelongsTo {
	r.defaults.withAttributes(attrs)
	return r
}

// WithDefaultFunc makes Get return a new record passed through fn.
func (r *BelongsTo) WithDefaultFunc(fn func(Record)) *BelongsTo {
	r.defaults.withFunc(fn)
	return r
}

// Get returns the owner, the default, or nil.
func (r *BelongsTo) Get() (Record, error) {
	v, err := results(r)
	if err != nil || v == nil {
		return nil, err
	}
	return v.(Record), nil
}

// First returns the owner, or nil.
func (r *BelongsTo) First() (Record, error) { return r.first() }

func (r *BelongsTo) newQuery() *Statement { return r.relatedQuery("") }

func (r *BelongsTo) constrain(q *Statement, keys []any, batch bool) {
	constrainKey(q, q.qualify(r.ownerKey), keys, batch)
}

func (r *BelongsTo) parentKeyName() string        { return r.foreignKey }
func (r *BelongsTo) matchKey(rec Record) any      { return rec.GetAttribute(r.ownerKey) }
func (r *BelongsTo) single() bool                 { return true }
func (r *BelongsTo) prepare(rs []Record) []Record { return rs }

func parentTable(r Record) string {
	if r == nil {
		return ""
	}
	return r.TableName()
}

func relatedTable(r Record) string {
	if r == nil {
		return ""
	}
	return r.TableName()
}

// HasMany declares a one-to-many relation bound to m. foreignKey defaults
// to the singular table name plus _id, localKey to the primary key.
func (m *Model) HasMany(related Factory, foreignKey, localKey string) *HasMany {
	r := &HasMany{
		foreignKey: firstOr([]string{foreignKey}, util.ForeignKey(m.table)),
		localKey:   firstOr([]string{localKey}, m.primaryKey),
	}
	r.relation = newRelation(r, m.db, related)
	r.bind(m)
	return r
}

// HasOne declares a one-to-one relation bound to m.
func (m *Model) HasOne(related Factory, foreignKey, localKey string) *HasOne {
	r := &HasOne{
		foreignKey: firstOr([]string{foreignKey}, util.ForeignKey(m.table)),
		localKey:   firstOr([]string{localKey}, m.primaryKey),
	}
	r.relation = newRelation(r, m.db, related)
	r.bind(m)
	return r
}

// BelongsTo declares the inverse relation bound to m. foreignKey defaults
// to the related table's singular name plus _id, ownerKey to the related
// primary key.
func (m *Model) BelongsTo(related Factory, foreignKey, ownerKey string) *BelongsTo {
	r := &BelongsTo{}
	r.relation = newRelation(r, m.db, related)
	if r.prototype != nil {
		r.foreignKey = firstOr([]string{foreignKey}, util.ForeignKey(r.prototype.TableName()))
		r.ownerKey = firstOr([]string{ownerKey}, r.prototype.PrimaryKey())
	} else {
		r.foreignKey, r.ownerKey = foreignKey, ownerKey
	}
	r.bind(m)
	return r
}

// bind binds a freshly declared relation to the record embedding m. A
// failure is kept as the relation's error and returned by every query.
func (r *relation) bind(m *Model) {
	if r.err != nil {
		return
	}
	if m.self == nil {
		r.err = logicf("relation declared on a model that was not booted")
		return
	}
	if err := r.SetParent(m.self); err != nil {
		r.err = err
	}
}
