package core

import (
	"reflect"
	"sort"
	"strings"

	"github.com/coregx/strata/internal/util"
)

const (
	relatedAlias = "related"
	pivotAlias   = "pivot"
	pivotPrefix  = "pivot_"
)

// BelongsToMany is a many-to-many relation through a pivot table.
// Related rows carry the pivot columns as a "pivot" relation holding a
// record of the pivot table.
type BelongsToMany struct {
	relation
	pivotTable      string
	foreignPivotKey string
	relatedPivotKey string
	parentKey       string
	relatedKey      string
	pivotColumns    []string
	timestamps      bool
}

// SyncResult lists the related ids touched by Sync and Toggle.
type SyncResult struct {
	Attached []any
	Detached []any
	Updated  []any
}

type attachOptions struct {
	ignoreDuplicates bool
}

// AttachOption configures Attach.
type AttachOption func(*attachOptions)

// IgnoreDuplicates controls whether Attach looks up already attached ids
// and updates their pivot attributes instead of inserting again. It is on
// by default.
func IgnoreDuplicates(ignore bool) AttachOption {
	return func(o *attachOptions) { o.ignoreDuplicates = ignore }
}

// BelongsToMany declares a many-to-many relation bound to m. The pivot
// table defaults to the two singular table names in alphabetical order
// (role_user), the pivot keys to each side's singular name plus _id.
func (m *Model) BelongsToMany(related Factory, pivotTable, foreignPivotKey, relatedPivotKey string) *BelongsToMany {
	r := &BelongsToMany{parentKey: m.primaryKey}
	r.relation = newRelation(r, m.db, related)
	r.foreignPivotKey = firstOr([]string{foreignPivotKey}, util.ForeignKey(m.table))
	r.pivotTable = pivotTable
	r.relatedPivotKey = relatedPivotKey
	r.relatedKey = "id"
	if r.prototype != nil {
		r.pivotTable = firstOr([]string{pivotTable}, util.PivotTable(m.table, r.prototype.TableName()))
		r.relatedPivotKey = firstOr([]string{relatedPivotKey}, util.ForeignKey(r.prototype.TableName()))
		r.relatedKey = r.prototype.PrimaryKey()
	}
	r.bind(m)
	return r
}

// Descriptor reports the relation keys.
func (r *BelongsToMany) Descriptor() RelationDescriptor {
	return BelongsToManyDescriptor{
		Parent:          parentTable(r.parent),
		Related:         relatedTable(r.prototype),
		Pivot:           r.pivotTable,
		ForeignPivotKey: r.foreignPivotKey,
		RelatedPivotKey: r.relatedPivotKey,
		ParentKey:       r.parentKey,
		RelatedKey:      r.relatedKey,
	}
}

// ForKey matches pivot rows against a literal parent key.
func (r *BelongsToMany) ForKey(key any) *BelongsToMany {
	r.forKey(key)
	return r
}

// Keys overrides the parent and related key columns (both default to the
// primary keys).
func (r *BelongsToMany) Keys(parentKey, relatedKey string) *BelongsToMany {
	r.parentKey = firstOr([]string{parentKey}, r.parentKey)
	r.relatedKey = firstOr([]string{relatedKey}, r.relatedKey)
	r.query = nil
	r.keyed = false
	return r
}

// WithPivot selects extra pivot columns into the pivot record.
func (r *BelongsToMany) WithPivot(columns ...string) *BelongsToMany {
	r.pivotColumns = append(r.pivotColumns, columns...)
	if r.query != nil {
		for _, c := range columns {
			r.query.AddSelect(pivotAlias + "." + c + " AS " + pivotPrefix + c)
		}
	}
	return r
}

// WithTimestamps maintains created_at and updated_at on pivot rows and
// selects them.
func (r *BelongsToMany) WithTimestamps() *BelongsToMany {
	r.timestamps = true
	return r.WithPivot("created_at", "updated_at")
}

// WherePivot filters on a pivot column.
func (r *BelongsToMany) WherePivot(column, op string, value any) *BelongsToMany {
	r.Query().Where(pivotAlias+"."+column, op, value)
	return r
}

// Get returns every related record with its pivot record attached.
func (r *BelongsToMany) Get() ([]Record, error) {
	records, err := r.fetch(0)
	if records == nil && err == nil {
		records = []Record{}
	}
	return records, err
}

// First returns the first related record, or nil.
func (r *BelongsToMany) First() (Record, error) { return r.first() }

func (r *BelongsToMany) newQuery() *Statement {
	q := r.relatedQuery(relatedAlias)
	q.Select(relatedAlias + ".*")
	for _, c := range r.selectedPivotColumns() {
		q.AddSelect(pivotAlias + "." + c + " AS " + pivotPrefix + c)
	}
	return q.Join(r.pivotTable+" AS "+pivotAlias,
		relatedAlias+"."+r.relatedKey, "=", pivotAlias+"."+r.relatedPivotKey)
}

func (r *BelongsToMany) selectedPivotColumns() []string {
	cols := []string{r.foreignPivotKey, r.relatedPivotKey}
	seen := map[string]bool{r.foreignPivotKey: true, r.relatedPivotKey: true}
	for _, c := range r.pivotColumns {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return cols
}

func (r *BelongsToMany) constrain(q *Statement, keys []any, batch bool) {
	constrainKey(q, pivotAlias+"."+r.foreignPivotKey, keys, batch)
}

func (r *BelongsToMany) parentKeyName() string { return r.parentKey }

func (r *BelongsToMany) matchKey(rec Record) any {
	if v := rec.GetAttribute(pivotPrefix + r.foreignPivotKey); v != nil {
		return v
	}
	if p, ok := rec.GetRelation(pivotAlias); ok {
		if pivot, ok := p.(Record); ok {
			return pivot.GetAttribute(r.foreignPivotKey)
		}
	}
	return nil
}

func (r *BelongsToMany) single() bool { return false }

// prepare moves the pivot_* columns of each record into its pivot record.
func (r *BelongsToMany) prepare(records []Record) []Record {
	for _, rec := range records {
		m := rec.model()
		attrs := make(map[string]any)
		for k, v := range m.attributes {
			if strings.HasPrefix(k, pivotPrefix) {
				attrs[strings.TrimPrefix(k, pivotPrefix)] = v
				delete(m.attributes, k)
			}
		}
		m.syncOriginal()
		pivot := NewRecord(r.db, r.pivotTable)
		pivot.ForceFill(attrs)
		pivot.MarkNew()
		rec.SetRelation(pivotAlias, pivot)
	}
	return records
}

// pivotKey returns the bound parent's key for pivot writes.
func (r *BelongsToMany) pivotKey() (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.db == nil {
		return nil, ErrNoConnection
	}
	key, ok := r.keyValue()
	if !ok {
		return nil, ErrParentNotBound
	}
	if util.IsNilKey(key) {
		return nil, ErrMissingParentKey
	}
	return key, nil
}

// pivotQuery starts a statement on the pivot rows of the parent.
func (r *BelongsToMany) pivotQuery(key any) *Statement {
	return r.db.Table(r.pivotTable).Where(r.foreignPivotKey, "=", key)
}

// AttachedIDs returns the related ids currently in the pivot table.
func (r *BelongsToMany) AttachedIDs() ([]any, error) {
	key, err := r.pivotKey()
	if err != nil {
		return nil, err
	}
	return r.pivotQuery(key).Pluck(r.relatedPivotKey)
}

// Attach inserts pivot rows for ids: a single id, a slice of ids or
// records, or a map of id to pivot attributes. attrs apply to every row.
// Ids already attached get their pivot attributes updated instead, unless
// IgnoreDuplicates(false) is given.
func (r *BelongsToMany) Attach(ids any, attrs map[string]any, opts ...AttachOption) error {
	o := attachOptions{ignoreDuplicates: true}
	for _, opt := range opts {
		opt(&o)
	}
	key, err := r.pivotKey()
	if err != nil {
		return err
	}
	entries, err := pivotEntries(ids)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	attached := map[string]bool{}
	if o.ignoreDuplicates {
		current, err := r.pivotQuery(key).Pluck(r.relatedPivotKey)
		if err != nil {
			return err
		}
		for _, id := range current {
			attached[util.KeyString(id)] = true
		}
	}

	var rows []map[string]any
	for _, e := range entries {
		values := mergeAttrs(attrs, e.attrs)
		k := util.KeyString(e.id)
		if attached[k] {
			if len(values) > 0 {
				if _, err := r.updatePivot(key, e.id, values); err != nil {
					return err
				}
			}
			continue
		}
		attached[k] = true
		rows = append(rows, r.pivotRow(key, e.id, values))
	}
	return r.insertPivotRows(rows)
}

func mergeAttrs(sets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

func (r *BelongsToMany) pivotRow(key, id any, attrs map[string]any) map[string]any {
	row := make(map[string]any, len(attrs)+4)
	for k, v := range attrs {
		row[k] = v
	}
	row[r.foreignPivotKey] = key
	row[r.relatedPivotKey] = id
	if r.timestamps {
		now := nowFunc()
		row["created_at"] = now
		row["updated_at"] = now
	}
	return row
}

// insertPivotRows inserts rows, one statement per distinct column set.
func (r *BelongsToMany) insertPivotRows(rows []map[string]any) error {
	var order []string
	groups := make(map[string][]any)
	for _, row := range rows {
		sig := strings.Join(sortedKeys(row), ",")
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], row)
	}
	for _, sig := range order {
		if _, err := r.db.Table(r.pivotTable).Insert(groups[sig]...); err != nil {
			return err
		}
	}
	return nil
}

// Detach deletes the pivot rows for ids, or every pivot row of the parent
// when ids is nil. It returns the number of rows deleted.
func (r *BelongsToMany) Detach(ids any) (int64, error) {
	key, err := r.pivotKey()
	if err != nil {
		return 0, err
	}
	q := r.pivotQuery(key)
	if ids != nil {
		entries, err := pivotEntries(ids)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			return 0, nil
		}
		list := make([]any, len(entries))
		for i, e := range entries {
			list[i] = e.id
		}
		q.WhereIn(r.relatedPivotKey, list...)
	}
	return q.Delete()
}

// UpdateExistingPivot updates the pivot attributes of an attached id.
func (r *BelongsToMany) UpdateExistingPivot(id any, attrs map[string]any) (int64, error) {
	key, err := r.pivotKey()
	if err != nil {
		return 0, err
	}
	entries, err := pivotEntries(id)
	if err != nil {
		return 0, err
	}
	if len(entries) != 1 {
		return 0, invalidArgf("update existing pivot needs exactly one id")
	}
	return r.updatePivot(key, entries[0].id, attrs)
}

func (r *BelongsToMany) updatePivot(key, id any, attrs map[string]any) (int64, error) {
	values := mergeAttrs(attrs)
	if len(values) == 0 {
		return 0, nil
	}
	if r.timestamps {
		values["updated_at"] = nowFunc()
	}
	return r.pivotQuery(key).Where(r.relatedPivotKey, "=", id).Update(values)
}

// Sync makes the pivot rows of the parent match ids exactly.
func (r *BelongsToMany) Sync(ids any) (*SyncResult, error) {
	return r.SyncWithDetaching(ids, true)
}

// SyncWithoutDetaching attaches missing ids and updates present ones,
// leaving other pivot rows in place.
func (r *BelongsToMany) SyncWithoutDetaching(ids any) (*SyncResult, error) {
	return r.SyncWithDetaching(ids, false)
}

// SyncWithDetaching attaches the ids that are missing and updates the
// pivot attributes of those present. When detaching is set, attached ids
// not listed are detached.
func (r *BelongsToMany) SyncWithDetaching(ids any, detaching bool) (*SyncResult, error) {
	var res *SyncResult
	err := r.atomically(func() error {
		var err error
		res, err = r.sync(ids, detaching)
		return err
	})
	return res, err
}

// atomically runs fn in a transaction on the relation's connection, or
// in the one already open on it, with the relation rebound to it.
func (r *BelongsToMany) atomically(fn func() error) error {
	if _, err := r.pivotKey(); err != nil {
		return err
	}
	if r.db.InTransaction() {
		return fn()
	}
	prev := r.db
	return prev.Transactional(prev.ctx, func(tx *Tx) error {
		r.db = tx.Conn()
		defer func() { r.db = prev }()
		return fn()
	})
}

func (r *BelongsToMany) sync(ids any, detaching bool) (*SyncResult, error) {
	key, err := r.pivotKey()
	if err != nil {
		return nil, err
	}
	entries, err := pivotEntries(ids)
	if err != nil {
		return nil, err
	}
	current, err := r.pivotQuery(key).Pluck(r.relatedPivotKey)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Attached: []any{}, Detached: []any{}, Updated: []any{}}
	wanted := make(map[string]bool, len(entries))
	for _, e := range entries {
		wanted[util.KeyString(e.id)] = true
	}
	present := make(map[string]bool, len(current))
	for _, id := range current {
		k := util.KeyString(id)
		present[k] = true
		if detaching && !wanted[k] {
			res.Detached = append(res.Detached, id)
		}
	}
	if len(res.Detached) > 0 {
		if _, err := r.Detach(res.Detached); err != nil {
			return nil, err
		}
	}

	var rows []map[string]any
	for _, e := range entries {
		k := util.KeyString(e.id)
		if present[k] {
			if len(e.attrs) == 0 {
				continue
			}
			n, err := r.updatePivot(key, e.id, e.attrs)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				res.Updated = append(res.Updated, e.id)
			}
			continue
		}
		present[k] = true
		rows = append(rows, r.pivotRow(key, e.id, e.attrs))
		res.Attached = append(res.Attached, e.id)
	}
	if err := r.insertPivotRows(rows); err != nil {
		return nil, err
	}
	return res, nil
}

// Toggle detaches the listed ids that are attached and attaches the rest.
func (r *BelongsToMany) Toggle(ids any) (*SyncResult, error) {
	var res *SyncResult
	err := r.atomically(func() error {
		var err error
		res, err = r.toggle(ids)
		return err
	})
	return res, err
}

func (r *BelongsToMany) toggle(ids any) (*SyncResult, error) {
	key, err := r.pivotKey()
	if err != nil {
		return nil, err
	}
	entries, err := pivotEntries(ids)
	if err != nil {
		return nil, err
	}
	current, err := r.pivotQuery(key).Pluck(r.relatedPivotKey)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(current))
	for _, id := range current {
		present[util.KeyString(id)] = true
	}

	res := &SyncResult{Attached: []any{}, Detached: []any{}, Updated: []any{}}
	var rows []map[string]any
	for _, e := range entries {
		k := util.KeyString(e.id)
		if present[k] {
			res.Detached = append(res.Detached, e.id)
			continue
		}
		present[k] = true
		rows = append(rows, r.pivotRow(key, e.id, e.attrs))
		res.Attached = append(res.Attached, e.id)
	}
	if len(res.Detached) > 0 {
		if _, err := r.Detach(res.Detached); err != nil {
			return nil, err
		}
	}
	if err := r.insertPivotRows(rows); err != nil {
		return nil, err
	}
	return res, nil
}

type pivotEntry struct {
	id    any
	attrs map[string]any
}

// pivotEntries normalizes the accepted id shapes: a scalar id, a Record,
// a slice of those, or a map from id to pivot attributes (nil values
// allowed). Duplicate ids keep their first occurrence.
func pivotEntries(ids any) ([]pivotEntry, error) {
	if ids == nil {
		return nil, nil
	}
	var entries []pivotEntry
	switch v := ids.(type) {
	case Record:
		e, err := scalarEntry(v)
		if err != nil {
			return nil, err
		}
		entries = []pivotEntry{e}
	case []Record:
		for _, rec := range v {
			e, err := scalarEntry(rec)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	default:
		rv := reflect.ValueOf(ids)
		switch rv.Kind() {
		case reflect.Map:
			var err error
			if entries, err = mapEntries(rv); err != nil {
				return nil, err
			}
		case reflect.Slice:
			if _, isBytes := ids.([]byte); isBytes {
				e, err := scalarEntry(ids)
				if err != nil {
					return nil, err
				}
				entries = []pivotEntry{e}
				break
			}
			for i := 0; i < rv.Len(); i++ {
				e, err := scalarEntry(rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				entries = append(entries, e)
			}
		default:
			e, err := scalarEntry(ids)
			if err != nil {
				return nil, err
			}
			entries = []pivotEntry{e}
		}
	}

	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		k := util.KeyString(e.id)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out, nil
}

func mapEntries(rv reflect.Value) ([]pivotEntry, error) {
	entries := make([]pivotEntry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		e, err := scalarEntry(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		val := iter.Value().Interface()
		switch attrs := val.(type) {
		case nil:
		case map[string]any:
			e.attrs = attrs
		default:
			return nil, invalidArgf("pivot attributes for id %v must be map[string]any, got %T", e.id, val)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return util.KeyString(entries[i].id) < util.KeyString(entries[j].id)
	})
	return entries, nil
}

func scalarEntry(v any) (pivotEntry, error) {
	if rec, ok := v.(Record); ok {
		key := rec.GetAttribute(rec.PrimaryKey())
		if util.IsNilKey(key) {
			return pivotEntry{}, invalidArgf("%s record has no key", rec.TableName())
		}
		return pivotEntry{id: key}, nil
	}
	if util.IsNilKey(v) {
		return pivotEntry{}, invalidArgf("pivot id cannot be nil")
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Array:
		return pivotEntry{id: v}, nil
	}
	if _, ok := v.([]byte); ok {
		return pivotEntry{id: v}, nil
	}
	return pivotEntry{}, invalidArgf("unsupported pivot id type %T", v)
}
