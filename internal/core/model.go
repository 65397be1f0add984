package core

import (
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/coregx/strata/internal/dialects"
	"github.com/coregx/strata/internal/util"
)

// Record is implemented by every type embedding Model.
type Record interface {
	TableName() string
	PrimaryKey() string
	GetAttribute(name string) any
	SetAttribute(name string, value any)
	ForceFill(attrs map[string]any)
	Attributes() map[string]any
	MarkExisting()
	MarkNew()
	Exists() bool
	SetRelation(name string, value any)
	GetRelation(name string) (any, bool)
	RelationLoaded(name string) bool
	Connection() *DB
	model() *Model
}

// Factory creates a fresh, booted record bound to db.
type Factory func(db *DB) Record

// FactoryOf returns a Factory for a record type embedding Model:
//
//	type Post struct{ strata.Model }
//	posts := strata.FactoryOf[Post]()
func FactoryOf[T any, P interface {
	*T
	Record
}](opts ...ModelOption) Factory {
	var f Factory
	f = func(db *DB) Record {
		p := P(new(T))
		m := p.model()
		m.Boot(p, db, opts...)
		m.factory = f
		return p
	}
	return f
}

// GenericFactory returns a Factory producing plain Models on table.
func GenericFactory(table string, opts ...ModelOption) Factory {
	var f Factory
	f = func(db *DB) Record {
		m := NewRecord(db, table, opts...)
		m.factory = f
		return m
	}
	return f
}

// NewRecord returns a plain Model on table, useful for ad-hoc rows.
func NewRecord(db *DB, table string, opts ...ModelOption) *Model {
	m := &Model{}
	m.Boot(m, db, append([]ModelOption{WithTable(table)}, opts...)...)
	return m
}

// ModelOption configures a Model during Boot.
type ModelOption func(*Model)

// WithTable overrides the table inferred from the type name.
func WithTable(table string) ModelOption {
	return func(m *Model) { m.table = table }
}

// WithPrimaryKey overrides the primary key column (default id).
func WithPrimaryKey(column string) ModelOption {
	return func(m *Model) { m.primaryKey = column }
}

// WithSoftDeletes enables soft deletes on column (default deleted_at).
func WithSoftDeletes(column ...string) ModelOption {
	return func(m *Model) { m.softDelete = firstOr(column, "deleted_at") }
}

// WithUUIDKeys generates a random UUID primary key on insert.
func WithUUIDKeys() ModelOption {
	return func(m *Model) { m.uuidKeys = true }
}

// WithTimestamps maintains created_at and updated_at.
func WithTimestamps() ModelOption {
	return func(m *Model) { m.timestamps = true }
}

// Model is the record base type. Embed it and call Boot from the
// constructor:
//
//	type Post struct{ strata.Model }
//
//	func NewPost(db *strata.DB) strata.Record {
//	    p := &Post{}
//	    p.Boot(p, db, strata.WithTimestamps())
//	    return p
//	}
//
//	func (p *Post) Comments() *strata.HasMany {
//	    return p.HasMany(NewComment, "post_id", "id")
//	}
type Model struct {
	self       Record
	db         *DB
	opts       []ModelOption
	factory    Factory
	table      string
	primaryKey string
	softDelete string
	uuidKeys   bool
	timestamps bool

	attributes map[string]any
	original   map[string]any
	relations  map[string]any
	exists     bool
}

// Boot initializes the model. self is the outer record embedding m; its
// type name gives the default table (BlogPost -> blog_posts).
func (m *Model) Boot(self Record, db *DB, opts ...ModelOption) {
	m.self = self
	m.db = db
	m.opts = opts
	m.primaryKey = "id"
	if t := reflect.TypeOf(self); t != nil {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		m.table = util.TableName(t.Name())
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.attributes == nil {
		m.attributes = make(map[string]any)
	}
	if m.original == nil {
		m.original = make(map[string]any)
	}
	if m.relations == nil {
		m.relations = make(map[string]any)
	}
}

func (m *Model) model() *Model { return m }

// record returns the outer record, or m when not booted.
func (m *Model) record() Record {
	if m.self != nil {
		return m.self
	}
	return m
}

// newInstance creates a fresh record of the same type.
func (m *Model) newInstance() Record {
	if m.factory != nil {
		return m.factory(m.db)
	}
	t := reflect.TypeOf(m.record())
	if t.Kind() != reflect.Ptr {
		return NewRecord(m.db, m.table, m.opts...)
	}
	r, ok := reflect.New(t.Elem()).Interface().(Record)
	if !ok {
		return NewRecord(m.db, m.table, m.opts...)
	}
	r.model().Boot(r, m.db, m.opts...)
	if _, isModel := r.(*Model); isModel {
		r.model().table = m.table
	}
	return r
}

// Factory returns a factory producing records of the same type.
func (m *Model) Factory() Factory {
	if m.factory != nil {
		return m.factory
	}
	return func(db *DB) Record {
		r := m.newInstance()
		r.model().db = db
		return r
	}
}

// TableName returns the table.
func (m *Model) TableName() string { return m.table }

// PrimaryKey returns the primary key column.
func (m *Model) PrimaryKey() string { return m.primaryKey }

// SoftDeleteColumn returns the soft-delete column, or "" when disabled.
func (m *Model) SoftDeleteColumn() string { return m.softDelete }

// Connection returns the database the record is bound to.
func (m *Model) Connection() *DB { return m.db }

// SetConnection rebinds the record, e.g. to run inside another handle.
func (m *Model) SetConnection(db *DB) { m.db = db }

// GetKey returns the primary key value.
func (m *Model) GetKey() any { return m.GetAttribute(m.primaryKey) }

// GetAttribute returns an attribute, or nil.
func (m *Model) GetAttribute(name string) any {
	return m.attributes[name]
}

// SetAttribute sets an attribute.
func (m *Model) SetAttribute(name string, value any) {
	if m.attributes == nil {
		m.attributes = make(map[string]any)
	}
	m.attributes[name] = value
}

// ForceFill sets every attribute in attrs.
func (m *Model) ForceFill(attrs map[string]any) {
	for k, v := range attrs {
		m.SetAttribute(k, v)
	}
}

// Attributes returns a copy of the attributes.
func (m *Model) Attributes() map[string]any {
	out := make(map[string]any, len(m.attributes))
	for k, v := range m.attributes {
		out[k] = v
	}
	return out
}

// HasAttribute reports whether name is set, even to nil.
func (m *Model) HasAttribute(name string) bool {
	_, ok := m.attributes[name]
	return ok
}

// UnsetAttribute removes an attribute.
func (m *Model) UnsetAttribute(name string) {
	delete(m.attributes, name)
	delete(m.original, name)
}

// MarkExisting flags the record as persisted and snapshots its attributes.
func (m *Model) MarkExisting() {
	m.exists = true
	m.syncOriginal()
}

// MarkNew flags the record as not persisted.
func (m *Model) MarkNew() { m.exists = false }

// Exists reports whether the record was loaded from or saved to the database.
func (m *Model) Exists() bool { return m.exists }

func (m *Model) syncOriginal() {
	m.original = make(map[string]any, len(m.attributes))
	for k, v := range m.attributes {
		m.original[k] = v
	}
}

// GetDirty returns attributes changed since the last sync.
func (m *Model) GetDirty() map[string]any {
	dirty := make(map[string]any)
	for k, v := range m.attributes {
		orig, ok := m.original[k]
		if !ok || !reflect.DeepEqual(orig, v) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty reports whether any (or any of the named) attributes changed.
func (m *Model) IsDirty(names ...string) bool {
	dirty := m.GetDirty()
	if len(names) == 0 {
		return len(dirty) > 0
	}
	for _, n := range names {
		if _, ok := dirty[n]; ok {
			return true
		}
	}
	return false
}

// GetString returns an attribute converted with spf13/cast.
func (m *Model) GetString(name string) string {
	return cast.ToString(m.GetAttribute(name))
}

// GetInt64 returns an attribute converted to int64.
func (m *Model) GetInt64(name string) int64 {
	return cast.ToInt64(m.GetAttribute(name))
}

// GetFloat64 returns an attribute converted to float64.
func (m *Model) GetFloat64(name string) float64 {
	return cast.ToFloat64(m.GetAttribute(name))
}

// GetBool returns an attribute converted to bool.
func (m *Model) GetBool(name string) bool {
	return cast.ToBool(m.GetAttribute(name))
}

// Decode copies the attributes into dest, a struct pointer with db tags.
func (m *Model) Decode(dest any) error {
	return util.Decode(m.attributes, dest)
}

// FillStruct sets attributes from a struct with db tags (or a map).
func (m *Model) FillStruct(src any) error {
	attrs, err := util.StructToMap(src)
	if err != nil {
		return invalidArgf("fill: %v", err)
	}
	m.ForceFill(attrs)
	return nil
}

// SetRelation attaches a loaded relation value.
func (m *Model) SetRelation(name string, value any) {
	if m.relations == nil {
		m.relations = make(map[string]any)
	}
	m.relations[name] = value
}

// GetRelation returns a loaded relation value.
func (m *Model) GetRelation(name string) (any, bool) {
	v, ok := m.relations[name]
	return v, ok
}

// RelationLoaded reports whether name was loaded.
func (m *Model) RelationLoaded(name string) bool {
	_, ok := m.relations[name]
	return ok
}

// Related returns a loaded single-valued relation as a Record, or nil.
func (m *Model) Related(name string) Record {
	r, _ := m.relations[name].(Record)
	return r
}

// RelatedMany returns a loaded multi-valued relation, or nil.
func (m *Model) RelatedMany(name string) []Record {
	rs, _ := m.relations[name].([]Record)
	return rs
}

// UnsetRelation forgets a loaded relation.
func (m *Model) UnsetRelation(name string) {
	delete(m.relations, name)
}

// RelationNames returns the loaded relation names, sorted.
func (m *Model) RelationNames() []string {
	names := make([]string, 0, len(m.relations))
	for k := range m.relations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ToMap returns the attributes with loaded relations nested under their names.
func (m *Model) ToMap() map[string]any {
	out := m.Attributes()
	for name, v := range m.relations {
		switch rel := v.(type) {
		case Record:
			if rel == nil || reflect.ValueOf(rel).IsNil() {
				out[name] = nil
			} else {
				out[name] = rel.model().ToMap()
			}
		case []Record:
			items := make([]map[string]any, len(rel))
			for i, r := range rel {
				items[i] = r.model().ToMap()
			}
			out[name] = items
		default:
			out[name] = v
		}
	}
	return out
}

// Query starts a statement on the record's table that hydrates records of
// the same type and applies the soft-delete scope when enabled.
func (m *Model) Query() *Statement {
	if m.db == nil {
		return newStatement(nil, dialects.GetDialect("postgres")).Table(m.table).fail(ErrNoConnection)
	}
	s := m.db.Table(m.table)
	s.factory = m.Factory()
	if m.softDelete != "" {
		s.SoftDeletes(m.softDelete)
	}
	return s
}

// hydrate fills a fresh record from a row and marks it existing.
func hydrate(factory Factory, db *DB, table string, row Row) Record {
	var r Record
	if factory != nil {
		r = factory(db)
	} else {
		r = NewRecord(db, table)
	}
	m := r.model()
	m.attributes = make(map[string]any, len(row))
	for k, v := range row {
		m.attributes[k] = v
	}
	m.MarkExisting()
	return r
}

// stripAlias returns the table name without an alias.
func stripAlias(table string) string {
	if m := aliasPattern.FindStringSubmatch(table); m != nil {
		return m[1]
	}
	if m := tableAliasPattern.FindStringSubmatch(table); m != nil {
		return m[1]
	}
	return strings.TrimSpace(table)
}
