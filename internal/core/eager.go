package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/coregx/strata/internal/util"
)

// Builder is the part of the Statement API available to eager-load
// constraints declared as func(Builder).
type Builder interface {
	Select(cols ...string) *Statement
	Where(column, op string, value any) *Statement
	OrWhere(column, op string, value any) *Statement
	WhereIn(column string, values ...any) *Statement
	WhereNotIn(column string, values ...any) *Statement
	WhereBetween(column string, from, to any) *Statement
	WhereNull(column string) *Statement
	WhereNotNull(column string) *Statement
	WhereRaw(sql string, args ...any) *Statement
	WhereExp(exp Expression) *Statement
	OrderBy(column, direction string) *Statement
	OrderByDesc(column string) *Statement
	Limit(n int64) *Statement
	Offset(n int64) *Statement
}

var _ Builder = (*Statement)(nil)

// With registers relations to load on the records returned by Get.
// Nested relations use dots: "posts.comments" loads posts, then the
// comments of every post.
func (s *Statement) With(names ...string) *Statement {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return s.fail(invalidArgf("relation name cannot be empty"))
		}
		s.eager = appendUnique(s.eager, n)
	}
	s.ensureColumns()
	return s
}

// WithConstraint registers a relation with a constraint callback. The
// callback is one of func(*Statement), func(Builder), func(Relation), a
// func taking one of the concrete relation types, or func().
func (s *Statement) WithConstraint(name string, constraint any) *Statement {
	if !isConstraint(constraint) {
		return s.fail(invalidArgf("unsupported constraint type %T for relation %q", constraint, name))
	}
	s.With(name)
	if s.constraints == nil {
		s.constraints = make(map[string]any)
	}
	s.constraints[name] = constraint
	return s
}

// WithConstraints registers several constrained relations.
func (s *Statement) WithConstraints(constraints map[string]any) *Statement {
	names := make([]string, 0, len(constraints))
	for name := range constraints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.WithConstraint(name, constraints[name])
	}
	return s
}

// EagerLoads returns the registered relation names.
func (s *Statement) EagerLoads() []string {
	return cloneStrings(s.eager)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func isConstraint(cb any) bool {
	switch cb.(type) {
	case nil, func(), func(*Statement), func(Builder), func(Relation),
		func(*HasMany), func(*HasOne), func(*BelongsTo), func(*BelongsToMany),
		func(*HasManyThrough), func(*HasOneThrough):
		return true
	}
	return false
}

// applyConstraint calls cb with the relation's statement or the relation
// itself, depending on its declared parameter.
func applyConstraint(rel Relation, name string, cb any) error {
	mismatch := func(want string) error {
		return invalidArgf("constraint for %q expects %s, relation is %T", name, want, rel)
	}
	switch fn := cb.(type) {
	case nil:
	case func():
		fn()
	case func(*Statement):
		fn(rel.Query())
	case func(Builder):
		fn(rel.Query())
	case func(Relation):
		fn(rel)
	case func(*HasMany):
		r, ok := rel.(*HasMany)
		if !ok {
			return mismatch("*HasMany")
		}
		fn(r)
	case func(*HasOne):
		r, ok := rel.(*HasOne)
		if !ok {
			return mismatch("*HasOne")
		}
		fn(r)
	case func(*BelongsTo):
		r, ok := rel.(*BelongsTo)
		if !ok {
			return mismatch("*BelongsTo")
		}
		fn(r)
	case func(*BelongsToMany):
		r, ok := rel.(*BelongsToMany)
		if !ok {
			return mismatch("*BelongsToMany")
		}
		fn(r)
	case func(*HasManyThrough):
		r, ok := rel.(*HasManyThrough)
		if !ok {
			return mismatch("*HasManyThrough")
		}
		fn(r)
	case func(*HasOneThrough):
		r, ok := rel.(*HasOneThrough)
		if !ok {
			return mismatch("*HasOneThrough")
		}
		fn(r)
	default:
		return invalidArgf("unsupported constraint type %T for relation %q", cb, name)
	}
	return nil
}

// ResolveRelation returns the relation name of parent, bound to parent.
// Relations registered with DB.DefineRelation win over methods; otherwise
// the exported zero-argument method named after the relation
// ("author_profile" -> AuthorProfile) is called.
func ResolveRelation(parent Record, name string) (Relation, error) {
	if parent == nil {
		return nil, invalidArgf("cannot resolve relation %q on a nil record", name)
	}
	var rel Relation
	if fn, ok := parent.Connection().relationResolver(parent.TableName(), name); ok {
		rel = fn(parent)
	} else {
		var err error
		if rel, err = relationMethod(parent, name); err != nil {
			return nil, err
		}
	}
	if rel == nil {
		return nil, fmt.Errorf("%w: %s.%s returned no relation", ErrRelationNotFound, parent.TableName(), name)
	}
	if err := rel.Err(); err != nil {
		return nil, err
	}
	if rel.Parent() == nil {
		if err := rel.SetParent(parent); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

var relationType = reflect.TypeOf((*Relation)(nil)).Elem()

func relationMethod(parent Record, name string) (Relation, error) {
	method := reflect.ValueOf(parent.model().record()).MethodByName(util.MethodName(name))
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %s has no relation %q", ErrRelationNotFound, parent.TableName(), name)
	}
	t := method.Type()
	if t.NumIn() != 0 || t.NumOut() != 1 || !t.Out(0).Implements(relationType) {
		return nil, fmt.Errorf("%w: %s.%s is not a relation method", ErrRelationNotFound, parent.TableName(), util.MethodName(name))
	}
	out := method.Call(nil)[0]
	if out.Kind() == reflect.Ptr && out.IsNil() {
		return nil, nil
	}
	rel, _ := out.Interface().(Relation)
	return rel, nil
}

// eagerNode is one level of a dotted relation path.
type eagerNode struct {
	name     string
	children []string
}

// eagerTree groups "a", "a.b" and "a.c" into a -> [b, c], keeping the
// order of first appearance.
func eagerTree(names []string) []*eagerNode {
	var nodes []*eagerNode
	index := make(map[string]*eagerNode)
	for _, n := range names {
		head, rest, nested := strings.Cut(n, ".")
		node, ok := index[head]
		if !ok {
			node = &eagerNode{name: head}
			index[head] = node
			nodes = append(nodes, node)
		}
		if nested {
			node.children = appendUnique(node.children, rest)
		}
	}
	return nodes
}

// nestedConstraints returns the constraints under prefix with the prefix
// removed.
func nestedConstraints(constraints map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range constraints {
		if rest, ok := strings.CutPrefix(k, prefix+"."); ok {
			out[rest] = v
		}
	}
	return out
}

// loadRelations loads names onto records. With missing set, relations
// already attached to a record are left alone and never fetched again.
func loadRelations(records []Record, names []string, constraints map[string]any, missing bool) error {
	for _, node := range eagerTree(names) {
		targets := records
		if missing {
			targets = make([]Record, 0, len(records))
			for _, r := range records {
				if !r.RelationLoaded(node.name) {
					targets = append(targets, r)
				}
			}
		}
		if len(targets) > 0 {
			if err := loadRelation(targets, node.name, constraints[node.name]); err != nil {
				return err
			}
		}
		if len(node.children) > 0 {
			related := relatedRecords(records, node.name)
			if len(related) == 0 {
				continue
			}
			if err := loadRelations(related, node.children, nestedConstraints(constraints, node.name), missing); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadRelation attaches one relation to every record. A single record is
// loaded through its bound relation; several records share one query with
// an IN list over their keys.
func loadRelation(records []Record, name string, constraint any) error {
	rel, err := ResolveRelation(records[0], name)
	if err != nil {
		return err
	}
	if len(records) == 1 {
		if err := applyConstraint(rel, name, constraint); err != nil {
			return err
		}
		v, err := results(rel)
		if err != nil {
			return err
		}
		records[0].SetRelation(name, v)
		return nil
	}

	rel.base().unbind()
	if err := applyConstraint(rel, name, constraint); err != nil {
		return err
	}
	keyName := rel.parentKeyName()
	keys := make([]any, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.GetAttribute(keyName))
	}
	keys = util.UniqueKeys(keys)

	var rows []Record
	if len(keys) > 0 {
		q := rel.Query().Clone()
		rel.constrain(q, keys, true)
		if rows, err = q.Get(); err != nil {
			return err
		}
	}

	// Match keys are read before prepare strips the helper columns.
	dict := make(map[string][]Record, len(rows))
	for _, row := range rows {
		k := util.KeyString(rel.matchKey(row))
		dict[k] = append(dict[k], row)
	}
	rel.prepare(rows)
	for _, r := range records {
		key := r.GetAttribute(keyName)
		var matches []Record
		if !util.IsNilKey(key) {
			matches = dict[util.KeyString(key)]
		}
		if rel.single() {
			if len(matches) > 0 {
				r.SetRelation(name, matches[0])
			} else {
				r.SetRelation(name, singleDefault(rel, r))
			}
			continue
		}
		if matches == nil {
			matches = []Record{}
		}
		r.SetRelation(name, matches)
	}
	return nil
}

// relatedRecords collects the records attached under name, each once.
func relatedRecords(records []Record, name string) []Record {
	var out []Record
	seen := make(map[Record]bool)
	add := func(r Record) {
		if r != nil && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range records {
		v, ok := r.GetRelation(name)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case Record:
			add(val)
		case []Record:
			for _, x := range val {
				add(x)
			}
		}
	}
	return out
}

// Load fetches the named relations and attaches them to the record.
func (m *Model) Load(names ...string) error {
	return loadRelations([]Record{m.record()}, names, nil, false)
}

// LoadWith is Load with a constraint per relation name.
func (m *Model) LoadWith(constraints map[string]any) error {
	names := make([]string, 0, len(constraints))
	for name, cb := range constraints {
		if !isConstraint(cb) {
			return invalidArgf("unsupported constraint type %T for relation %q", cb, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return loadRelations([]Record{m.record()}, names, constraints, false)
}

// LoadMissing is Load for the relations not attached yet.
func (m *Model) LoadMissing(names ...string) error {
	return loadRelations([]Record{m.record()}, names, nil, true)
}

// LoadMissing loads relations onto a collection, skipping records that
// already have them.
func LoadMissing(records []Record, names ...string) error {
	if len(records) == 0 {
		return nil
	}
	return loadRelations(records, names, nil, true)
}

// Load loads relations onto a collection with one query per relation.
func Load(records []Record, names ...string) error {
	if len(records) == 0 {
		return nil
	}
	return loadRelations(records, names, nil, false)
}
