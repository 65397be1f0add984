package core

// RelationDescriptor is the closed set of relation shapes. Compilers that
// need a relation's keys (aggregate subqueries, eager matching) switch on
// the concrete variant.
type RelationDescriptor interface {
	relationDescriptor()
}

// HasManyDescriptor describes a one-to-many relation: Related.ForeignKey
// references the parent's LocalKey.
type HasManyDescriptor struct {
	Parent     string
	Related    string
	ForeignKey string
	LocalKey   string
}

// HasOneDescriptor is HasManyDescriptor for a single related row.
type HasOneDescriptor struct {
	Parent     string
	Related    string
	ForeignKey string
	LocalKey   string
}

// BelongsToDescriptor describes the inverse side: the child's ForeignKey
// references Related.OwnerKey.
type BelongsToDescriptor struct {
	Child      string
	Related    string
	ForeignKey string
	OwnerKey   string
}

// BelongsToManyDescriptor describes a many-to-many relation through a
// pivot table.
type BelongsToManyDescriptor struct {
	Parent          string
	Related         string
	Pivot           string
	ForeignPivotKey string // pivot column referencing the parent
	RelatedPivotKey string // pivot column referencing the related row
	ParentKey       string
	RelatedKey      string
}

// ThroughKeys names the columns of a two-hop relation. The parent's
// LocalKey matches Through.FirstKey, and Through.SecondLocalKey matches
// Related.SecondKey.
type ThroughKeys struct {
	Parent         string
	Related        string
	Through        string
	FirstKey       string
	SecondKey      string
	LocalKey       string
	SecondLocalKey string
}

// HasManyThroughDescriptor describes a has-many-through relation.
type HasManyThroughDescriptor struct{ ThroughKeys }

// HasOneThroughDescriptor describes a has-one-through relation.
type HasOneThroughDescriptor struct{ ThroughKeys }

func (HasManyDescriptor) relationDescriptor()        {}
func (HasOneDescriptor) relationDescriptor()         {}
func (BelongsToDescriptor) relationDescriptor()      {}
func (BelongsToManyDescriptor) relationDescriptor()  {}
func (HasManyThroughDescriptor) relationDescriptor() {}
func (HasOneThroughDescriptor) relationDescriptor()  {}
