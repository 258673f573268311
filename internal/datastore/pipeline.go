package datastore

// Stage is one step of an aggregation pipeline. The supported stages are the
// ones the core's read-side views need: match, project, lookup (join),
// addFields/set, with size, first, cond, and in expressions.
type Stage interface {
	stage()
}

// Match filters the working set by field equality.
type Match struct {
	Filter Filter
}

// Project keeps only the named fields. The "_id" field always survives.
type Project struct {
	Fields []string
}

// Lookup joins documents from another collection as an embedded array.
// LocalField may hold a scalar or a list of ids; the joined array preserves
// the local list order. An optional sub-pipeline is applied to the joined
// documents.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Pipeline     []Stage
}

// AddFields computes new fields from expressions over the current document.
type AddFields struct {
	Fields map[string]Expr
}

// Set is the conditional-set stage; it behaves exactly like AddFields and
// exists so pipelines mirror their wire-level counterparts.
type Set struct {
	Fields map[string]Expr
}

func (Match) stage()     {}
func (Project) stage()   {}
func (Lookup) stage()    {}
func (AddFields) stage() {}
func (Set) stage()       {}

// Expr computes a value from the current document.
type Expr interface {
	expr()
}

// Size evaluates to the length of the array at Field.
type Size struct {
	Field string
}

// First evaluates to the first element of the array at Field, or nil.
type First struct {
	Field string
}

// In evaluates to whether Value occurs at the (possibly dotted) Field path.
// A dotted path collects the named field across an embedded document array.
type In struct {
	Value any
	Field string
}

// Cond evaluates to Then when If is truthy, Else otherwise.
type Cond struct {
	If   Expr
	Then any
	Else any
}

// Literal evaluates to a constant value.
type Literal struct {
	Value any
}

func (Size) expr()    {}
func (First) expr()   {}
func (In) expr()      {}
func (Cond) expr()    {}
func (Literal) expr() {}
