package query

import (
	"errors"
	"fmt"

	"github.com/hugr-lab/docquery/filter"
)

// ErrInvalidQuery is wrapped by every ValidationError.
var ErrInvalidQuery = errors.New("query: invalid query")

const (
	// MaxDisjunctiveValues bounds "in" and "array-contains-any" value lists.
	MaxDisjunctiveValues = 30
	// MaxNotInValues bounds "not-in" value lists.
	MaxNotInValues = 10
	// MaxDisjunctions bounds the number of terms after DNF expansion.
	MaxDisjunctions = 30
)

// ValidationError describes why a query was rejected.
type ValidationError struct {
	Field  string
	Op     filter.Operator
	Reason string
}

func (e *ValidationError) Error() string {
	return "query: invalid query: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidQuery }

func invalid(ff *filter.FieldFilter, format string, args ...any) error {
	e := &ValidationError{Reason: fmt.Sprintf(format, args...)}
	if ff != nil {
		e.Field = ff.Field().String()
		e.Op = ff.Op()
	}
	return e
}

// Validate checks the whole query: every filter leaf, operator conflicts,
// the inequality field, orderBy against the inequality, and the DNF size.
func (q Query) Validate() error {
	if q.collection == "" {
		return &ValidationError{Reason: "collection name is required"}
	}
	if q.limit < 0 {
		return &ValidationError{Reason: fmt.Sprintf("limit must be non-negative, got %d", q.limit)}
	}

	rebuilt := New(q.collection)
	rebuilt.orderBy = q.orderBy
	for _, f := range q.filters {
		var err error
		if rebuilt, err = rebuilt.WithFilter(f); err != nil {
			return err
		}
	}
	return validateOrderBy(q)
}

// validateNewFilter checks f against the filters already in q.
// Composite filters are checked leaf by leaf as if each were added in turn.
func validateNewFilter(q Query, f filter.Filter) error {
	test := q
	for _, leaf := range f.FlattenedFilters() {
		if err := validateFieldFilter(test, &leaf); err != nil {
			return err
		}
		test = test.withFilterUnchecked(leaf.Filter())
	}

	combined := q.withFilterUnchecked(f)
	if filter.CountDNFTerms(combined.filter, MaxDisjunctions) > MaxDisjunctions {
		return &ValidationError{Reason: fmt.Sprintf(
			"the filter has more than %d disjunctions after expansion", MaxDisjunctions)}
	}
	return validateOrderBy(combined)
}

func validateFieldFilter(q Query, ff *filter.FieldFilter) error {
	op := ff.Op()
	value := ff.Value()

	if ff.Field().IsKeyField() {
		if err := validateKeyFilter(ff); err != nil {
			return err
		}
	}

	if (value.IsNull() || value.IsNaN()) && op != filter.OpEqual && op != filter.OpNotEqual {
		return invalid(ff, "only '==' and '!=' comparisons are supported on null and NaN, got '%s'", op)
	}

	if op.IsDisjunctive() {
		elems := value.ArrayValue()
		if len(elems) == 0 {
			return invalid(ff, "a non-empty array is required for '%s' filters", op)
		}
		limit := MaxDisjunctiveValues
		if op == filter.OpNotIn {
			limit = MaxNotInValues
		}
		if len(elems) > limit {
			return invalid(ff, "'%s' filters support a maximum of %d elements in the value array", op, limit)
		}
		for _, e := range elems {
			if e.IsNull() && op != filter.OpNotIn {
				return invalid(ff, "'%s' filters cannot contain 'null' in the value array", op)
			}
			if e.IsNaN() {
				return invalid(ff, "'%s' filters cannot contain 'NaN' in the value array", op)
			}
		}
	}

	if ff.IsInequality() {
		if existing, ok := q.InequalityField(); ok && !existing.Equal(ff.Field()) {
			return invalid(ff, "all where filters with an inequality (<, <=, !=, not-in, >, or >=) "+
				"must be on the same field, but you have inequality filters on '%s' and '%s'",
				existing, ff.Field())
		}
	}

	for _, conflict := range conflictingOps(op) {
		for _, existing := range q.filter.FlattenedFilters() {
			if existing.Op() != conflict {
				continue
			}
			if conflict == op {
				return invalid(ff, "you cannot use more than one '%s' filter", op)
			}
			return invalid(ff, "you cannot use '%s' filters with '%s' filters", op, conflict)
		}
	}
	return nil
}

func validateKeyFilter(ff *filter.FieldFilter) error {
	op := ff.Op()
	if op.IsArrayOperator() {
		return invalid(ff, "invalid query on the document key: you can't perform '%s' queries on it", op)
	}
	values := []filter.Value{ff.Value()}
	if op == filter.OpIn || op == filter.OpNotIn {
		values = ff.Value().ArrayValue()
	}
	for _, v := range values {
		if v.Kind() != filter.KindString || v.StringValue() == "" {
			return invalid(ff, "document key filters require non-empty string document ids, got %s", v)
		}
	}
	return nil
}

// conflictingOps lists the operators that cannot appear in the same query as op.
func conflictingOps(op filter.Operator) []filter.Operator {
	switch op {
	case filter.OpNotEqual:
		return []filter.Operator{filter.OpNotEqual, filter.OpNotIn}
	case filter.OpArrayContainsAny, filter.OpIn:
		return []filter.Operator{filter.OpNotIn}
	case filter.OpNotIn:
		return []filter.Operator{filter.OpArrayContainsAny, filter.OpIn, filter.OpNotIn, filter.OpNotEqual}
	}
	return nil
}

func validateOrderBy(q Query) error {
	field, ok := q.InequalityField()
	if !ok || len(q.orderBy) == 0 {
		return nil
	}
	first := q.orderBy[0].Field
	if !first.Equal(field) {
		return &ValidationError{
			Field: field.String(),
			Reason: fmt.Sprintf("you have a where filter with an inequality on field '%s' and so you must "+
				"also use '%s' as your first orderBy, but your first orderBy is on field '%s' instead",
				field, field, first),
		}
	}
	return nil
}
