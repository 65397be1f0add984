package core

// BindingKind names one of the seven binding buckets of a Statement.
type BindingKind int

// Binding buckets in canonical SELECT read order, followed by the mutation bucket.
const (
	SelectBindings BindingKind = iota
	JoinBindings
	WhereBindings
	HavingBindings
	OrderBindings
	UnionBindings
	MutationBindings

	bindingKinds
)

var bindingKindNames = [bindingKinds]string{
	"select", "join", "where", "having", "order", "union", "mutation",
}

// String returns the bucket name.
func (k BindingKind) String() string {
	if k < 0 || k >= bindingKinds {
		return "unknown"
	}
	return bindingKindNames[k]
}

// Bindings holds the parameter values of a Statement, one ordered bucket per
// clause category. Values appended by a builder call land in the bucket of the
// clause whose text that call produced, so concatenating the buckets in
// canonical order reproduces the left-to-right order of placeholders.
//
// The raw extra WHERE fragment (JSON helpers) renders after the structured
// WHERE conditions; its values are kept beside the where bucket and read
// immediately after it.
type Bindings struct {
	buckets    [bindingKinds][]any
	whereExtra []any
}

// Add appends values to a bucket.
func (b *Bindings) Add(kind BindingKind, values ...any) {
	b.buckets[kind] = append(b.buckets[kind], values...)
}

// Set replaces a bucket.
func (b *Bindings) Set(kind BindingKind, values []any) {
	b.buckets[kind] = append([]any(nil), values...)
}

// Get returns a copy of one bucket.
func (b *Bindings) Get(kind BindingKind) []any {
	return append([]any(nil), b.buckets[kind]...)
}

// Len returns the total number of values held.
func (b *Bindings) Len() int {
	n := len(b.whereExtra)
	for _, bucket := range b.buckets {
		n += len(bucket)
	}
	return n
}

func (b *Bindings) addWhereExtra(values ...any) {
	b.whereExtra = append(b.whereExtra, values...)
}

// ForSelect assembles select, join, where, having, order and union values.
func (b *Bindings) ForSelect() []any {
	out := make([]any, 0, b.Len())
	for k := SelectBindings; k <= UnionBindings; k++ {
		out = append(out, b.buckets[k]...)
		if k == WhereBindings {
			out = append(out, b.whereExtra...)
		}
	}
	return out
}

// ForMutation assembles mutation values followed by where values.
func (b *Bindings) ForMutation() []any {
	out := make([]any, 0, len(b.buckets[MutationBindings])+len(b.buckets[WhereBindings])+len(b.whereExtra))
	out = append(out, b.buckets[MutationBindings]...)
	out = append(out, b.buckets[WhereBindings]...)
	return append(out, b.whereExtra...)
}

// ForWhere assembles only the where values.
func (b *Bindings) ForWhere() []any {
	out := append([]any(nil), b.buckets[WhereBindings]...)
	return append(out, b.whereExtra...)
}

// Clone returns a deep copy.
func (b Bindings) Clone() Bindings {
	var c Bindings
	for k := range b.buckets {
		if b.buckets[k] != nil {
			c.buckets[k] = append([]any(nil), b.buckets[k]...)
		}
	}
	if b.whereExtra != nil {
		c.whereExtra = append([]any(nil), b.whereExtra...)
	}
	return c
}
