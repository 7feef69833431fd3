package filter

import (
	"errors"

	"github.com/cespare/xxhash/v2"
)

// Operator is a field comparison operator.
type Operator string

const (
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpEqual              Operator = "=="
	OpNotEqual           Operator = "!="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpArrayContains      Operator = "array-contains"
	OpArrayContainsAny   Operator = "array-contains-any"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not-in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpLessThan, OpLessThanOrEqual, OpEqual, OpNotEqual, OpGreaterThan,
		OpGreaterThanOrEqual, OpArrayContains, OpArrayContainsAny, OpIn, OpNotIn:
		return true
	}
	return false
}

// IsInequality reports whether op restricts a range rather than a point.
func (op Operator) IsInequality() bool {
	switch op {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpNotEqual, OpNotIn:
		return true
	}
	return false
}

// IsDisjunctive reports whether op takes an array operand and matches any of its elements.
func (op Operator) IsDisjunctive() bool {
	switch op {
	case OpIn, OpArrayContainsAny, OpNotIn:
		return true
	}
	return false
}

// IsArrayOperator reports whether op tests membership in the document's array field.
func (op Operator) IsArrayOperator() bool {
	return op == OpArrayContains || op == OpArrayContainsAny
}

// CompositeOp is the logical operator of a composite filter.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// EmptyFilterString is the string form of the empty filter.
const EmptyFilterString = "<empty>"

// ErrFlattenFailed is raised (as a panic) when computing a composite's leaves fails.
// It indicates a corrupted tree and is never retried.
var ErrFlattenFailed = errors.New("filter: flatten failed")

// node is implemented by *FieldFilter and *CompositeFilter only.
type node interface {
	equal(other node) bool
	String() string
	canonicalID() string
	matches(doc Document) bool
	flattened(chain *flattenChain) []FieldFilter

	// nodeMarker prevents external implementation.
	nodeMarker()
}

// Filter is a copyable handle to an immutable filter tree.
// The zero Filter is the empty filter. Copies share the underlying node.
type Filter struct {
	rep node
}

// Equal reports whether two filters are structurally equal.
// Two empty filters are equal; an empty filter never equals a non-empty one.
func (f Filter) Equal(other Filter) bool {
	if f.rep == nil {
		return other.rep == nil
	}
	return other.rep != nil && f.rep.equal(other.rep)
}

// String renders the filter: "age > 21", "and(a > 1, or(b == 2, c < 3))".
func (f Filter) String() string {
	if f.rep == nil {
		return EmptyFilterString
	}
	return f.rep.String()
}

// CanonicalID returns a compact, whitespace-free rendering that is equal for equal filters.
func (f Filter) CanonicalID() string {
	if f.rep == nil {
		return ""
	}
	return f.rep.canonicalID()
}

// Hash returns a hash consistent with Equal.
func (f Filter) Hash() uint64 {
	return xxhash.Sum64String(f.CanonicalID())
}

// IsEmpty reports whether f is the empty filter or an empty composite.
func (f Filter) IsEmpty() bool {
	if f.rep == nil {
		return true
	}
	cf, ok := f.rep.(*CompositeFilter)
	return ok && len(cf.filters) == 0
}

// IsFieldFilter reports whether f is a leaf.
func (f Filter) IsFieldFilter() bool {
	_, ok := f.rep.(*FieldFilter)
	return ok
}

// IsCompositeFilter reports whether f is an and/or composite.
func (f Filter) IsCompositeFilter() bool {
	_, ok := f.rep.(*CompositeFilter)
	return ok
}

// AsFieldFilter returns the leaf if f is one.
func (f Filter) AsFieldFilter() (*FieldFilter, bool) {
	ff, ok := f.rep.(*FieldFilter)
	return ff, ok
}

// AsCompositeFilter returns the composite if f is one.
func (f Filter) AsCompositeFilter() (*CompositeFilter, bool) {
	cf, ok := f.rep.(*CompositeFilter)
	return cf, ok
}

// Matches reports whether doc satisfies the filter. The empty filter matches everything.
func (f Filter) Matches(doc Document) bool {
	if f.rep == nil {
		return true
	}
	return f.rep.matches(doc)
}

// FlattenedFilters returns every leaf reachable from f in depth-first, left-to-right order.
// A field filter returns itself. For composites the result is computed once and shared;
// callers must treat it as read-only.
func (f Filter) FlattenedFilters() []FieldFilter {
	if f.rep == nil {
		return nil
	}
	return f.rep.flattened(nil)
}

// Filters returns the direct children of a composite, or f itself for a leaf.
func (f Filter) Filters() []Filter {
	switch n := f.rep.(type) {
	case *CompositeFilter:
		return n.Filters()
	case *FieldFilter:
		return []Filter{f}
	default:
		return nil
	}
}

// IsInequality reports whether f is a leaf with an inequality operator.
func (f Filter) IsInequality() bool {
	ff, ok := f.rep.(*FieldFilter)
	return ok && ff.op.IsInequality()
}
