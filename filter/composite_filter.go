package filter

import (
	"fmt"
	"strings"
)

// CompositeFilter combines child filters with a logical operator.
// Child order is preserved for rendering and equality but does not affect matching.
type CompositeFilter struct {
	op      CompositeOp
	filters []Filter
	cache   *flattenCache
}

// NewCompositeFilter builds an and/or composite over children.
// Empty children are dropped; the children slice is copied.
func NewCompositeFilter(op CompositeOp, children []Filter) (Filter, error) {
	if op != CompositeAnd && op != CompositeOr {
		return Filter{}, fmt.Errorf("filter: unknown composite operator %q", op)
	}
	filters := make([]Filter, 0, len(children))
	for _, child := range children {
		if child.rep == nil {
			continue
		}
		filters = append(filters, child)
	}
	return Filter{rep: &CompositeFilter{op: op, filters: filters, cache: newFlattenCache()}}, nil
}

// And returns the conjunction of children.
func And(children ...Filter) Filter {
	f, _ := NewCompositeFilter(CompositeAnd, children)
	return f
}

// Or returns the disjunction of children.
func Or(children ...Filter) Filter {
	f, _ := NewCompositeFilter(CompositeOr, children)
	return f
}

// Filter wraps the composite back into a Filter handle.
func (cf *CompositeFilter) Filter() Filter { return Filter{rep: cf} }

// Op returns the logical operator.
func (cf *CompositeFilter) Op() CompositeOp { return cf.op }

// Filters returns a copy of the direct children.
func (cf *CompositeFilter) Filters() []Filter {
	out := make([]Filter, len(cf.filters))
	copy(out, cf.filters)
	return out
}

// Len returns the number of direct children.
func (cf *CompositeFilter) Len() int { return len(cf.filters) }

// IsConjunction reports whether the operator is And.
func (cf *CompositeFilter) IsConjunction() bool { return cf.op == CompositeAnd }

// IsDisjunction reports whether the operator is Or.
func (cf *CompositeFilter) IsDisjunction() bool { return cf.op == CompositeOr }

// IsFlat reports whether every child is a field filter.
func (cf *CompositeFilter) IsFlat() bool {
	for _, f := range cf.filters {
		if !f.IsFieldFilter() {
			return false
		}
	}
	return true
}

// IsFlatConjunction reports whether cf is an And of field filters only.
func (cf *CompositeFilter) IsFlatConjunction() bool {
	return cf.IsConjunction() && cf.IsFlat()
}

// FlattenedFilters returns all reachable leaves, descending into every nested
// composite whatever its operator. Computed once per node.
func (cf *CompositeFilter) FlattenedFilters() []FieldFilter {
	return cf.flattened(nil)
}

func (cf *CompositeFilter) flattened(chain *flattenChain) []FieldFilter {
	return cf.cache.get(chain, func(chain *flattenChain, out *[]FieldFilter) {
		for _, child := range cf.filters {
			*out = append(*out, child.rep.flattened(chain)...)
		}
	})
}

// FirstInequalityField returns the field of the first inequality leaf, if any.
func (cf *CompositeFilter) FirstInequalityField() (FieldPath, bool) {
	ff := cf.FindFirstMatchingFilter(func(ff *FieldFilter) bool { return ff.IsInequality() })
	if ff == nil {
		return FieldPath{}, false
	}
	return ff.Field(), true
}

// FindFirstMatchingFilter returns the first leaf (in flattened order) satisfying pred, or nil.
func (cf *CompositeFilter) FindFirstMatchingFilter(pred func(*FieldFilter) bool) *FieldFilter {
	leaves := cf.FlattenedFilters()
	for i := range leaves {
		if pred(&leaves[i]) {
			ff := leaves[i]
			return &ff
		}
	}
	return nil
}

// WithAddedFilters returns a new composite with the same operator and extra children appended.
func (cf *CompositeFilter) WithAddedFilters(extra ...Filter) Filter {
	children := make([]Filter, 0, len(cf.filters)+len(extra))
	children = append(children, cf.filters...)
	children = append(children, extra...)
	f, _ := NewCompositeFilter(cf.op, children)
	return f
}

// Matches evaluates the composite. An empty composite matches everything.
func (cf *CompositeFilter) Matches(doc Document) bool {
	if len(cf.filters) == 0 {
		return true
	}
	if cf.op == CompositeAnd {
		for _, f := range cf.filters {
			if !f.rep.matches(doc) {
				return false
			}
		}
		return true
	}
	for _, f := range cf.filters {
		if f.rep.matches(doc) {
			return true
		}
	}
	return false
}

func (cf *CompositeFilter) matches(doc Document) bool { return cf.Matches(doc) }

func (cf *CompositeFilter) equal(other node) bool {
	o, ok := other.(*CompositeFilter)
	if !ok {
		return false
	}
	if cf == o {
		return true
	}
	if cf.op != o.op || len(cf.filters) != len(o.filters) {
		return false
	}
	for i := range cf.filters {
		if !cf.filters[i].Equal(o.filters[i]) {
			return false
		}
	}
	return true
}

// String renders "op(child1, child2, ...)" in child order.
func (cf *CompositeFilter) String() string {
	parts := make([]string, len(cf.filters))
	for i, f := range cf.filters {
		parts[i] = f.String()
	}
	return string(cf.op) + "(" + strings.Join(parts, ", ") + ")"
}

func (cf *CompositeFilter) canonicalID() string {
	parts := make([]string, len(cf.filters))
	for i, f := range cf.filters {
		parts[i] = f.CanonicalID()
	}
	return string(cf.op) + "(" + strings.Join(parts, ",") + ")"
}

func (cf *CompositeFilter) nodeMarker() {}
