package filter

import (
	"fmt"
)

// FieldFilter is a single field comparison: path, operator and value.
type FieldFilter struct {
	path  FieldPath
	op    Operator
	value Value
}

// NewFieldFilter builds a leaf filter.
// Disjunctive operators (in, not-in, array-contains-any) require an array value.
func NewFieldFilter(path FieldPath, op Operator, value Value) (Filter, error) {
	if path.IsEmpty() {
		return Filter{}, fmt.Errorf("filter: field filter requires a field path")
	}
	if !op.Valid() {
		return Filter{}, fmt.Errorf("filter: unknown operator %q", op)
	}
	if op.IsDisjunctive() && value.Kind() != KindArray {
		return Filter{}, fmt.Errorf("filter: operator %q requires an array value, got %s", op, value.Kind())
	}
	return Filter{rep: &FieldFilter{path: path, op: op, value: value}}, nil
}

// Where is a convenience builder that parses the path and converts the value.
// It panics on invalid input and is meant for tests and static filters.
func Where(path string, op Operator, value any) Filter {
	f, err := NewFieldFilter(MustFieldPath(path), op, MustValueOf(value))
	if err != nil {
		panic(err)
	}
	return f
}

// Filter wraps the leaf back into a Filter handle.
func (ff *FieldFilter) Filter() Filter { return Filter{rep: ff} }

// Field returns the field path.
func (ff *FieldFilter) Field() FieldPath { return ff.path }

// Op returns the operator.
func (ff *FieldFilter) Op() Operator { return ff.op }

// Value returns the comparison operand.
func (ff *FieldFilter) Value() Value { return ff.value }

// IsInequality reports whether the operator is an inequality.
func (ff *FieldFilter) IsInequality() bool { return ff.op.IsInequality() }

// Equal compares two leaves by field, operator and value.
func (ff *FieldFilter) Equal(other *FieldFilter) bool {
	if ff == other {
		return true
	}
	if ff == nil || other == nil {
		return false
	}
	return ff.op == other.op && ff.path.Equal(other.path) && ff.value.Equal(other.value)
}

func (ff *FieldFilter) equal(other node) bool {
	o, ok := other.(*FieldFilter)
	return ok && ff.Equal(o)
}

// String renders "field op value".
func (ff *FieldFilter) String() string {
	return ff.path.String() + " " + string(ff.op) + " " + ff.value.String()
}

func (ff *FieldFilter) canonicalID() string {
	return ff.path.String() + string(ff.op) + ff.value.canonicalID()
}

func (ff *FieldFilter) flattened(*flattenChain) []FieldFilter {
	return []FieldFilter{*ff}
}

func (ff *FieldFilter) nodeMarker() {}

func (ff *FieldFilter) matches(doc Document) bool { return ff.Matches(doc) }

// Matches evaluates the comparison against a document.
// Missing fields never match.
func (ff *FieldFilter) Matches(doc Document) bool {
	actual, ok := doc.Field(ff.path)
	if !ok {
		return false
	}

	switch ff.op {
	case OpArrayContains:
		return actual.Kind() == KindArray && actual.Contains(ff.value)
	case OpArrayContainsAny:
		if actual.Kind() != KindArray {
			return false
		}
		for _, want := range ff.value.ArrayValue() {
			if actual.Contains(want) {
				return true
			}
		}
		return false
	case OpIn:
		return ff.value.Contains(actual)
	case OpNotIn:
		if ff.value.Contains(Null()) || actual.IsNull() {
			return false
		}
		return !ff.value.Contains(actual)
	case OpNotEqual:
		return !actual.IsNull() && !actual.Equivalent(ff.value)
	case OpEqual:
		return actual.Equivalent(ff.value)
	}

	// Relational operators only order values of the same type class.
	if !Comparable(actual, ff.value) || actual.IsNaN() || ff.value.IsNaN() {
		return false
	}
	c := Compare(actual, ff.value)
	switch ff.op {
	case OpLessThan:
		return c < 0
	case OpLessThanOrEqual:
		return c <= 0
	case OpGreaterThan:
		return c > 0
	case OpGreaterThanOrEqual:
		return c >= 0
	default:
		return false
	}
}
