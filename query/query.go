// Package query builds validated document queries over a collection and plans
// them against declared field indexes.
package query

import (
	"strconv"
	"strings"

	"github.com/hugr-lab/docquery/filter"
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection parses "asc" or "desc" (case-insensitive). Empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Ascending, &ValidationError{Reason: "unknown sort direction " + strconv.Quote(s)}
}

// Order is one orderBy clause.
type Order struct {
	Field     filter.FieldPath
	Direction Direction
}

func (o Order) String() string {
	return o.Field.String() + " " + o.Direction.String()
}

// Query is an immutable query over one collection.
// Builder methods return a modified copy.
type Query struct {
	collection string
	filters    []filter.Filter
	filter     filter.Filter
	orderBy    []Order
	limit      int
}

// New creates a query over every document of collection.
func New(collection string) Query {
	return Query{collection: collection}
}

// Collection returns the collection name.
func (q Query) Collection() string { return q.collection }

// WithFilter returns a copy of q with f added as a conjunct.
// The filter is validated against the filters already present.
func (q Query) WithFilter(f filter.Filter) (Query, error) {
	if f.IsEmpty() {
		return q, nil
	}
	if err := validateNewFilter(q, f); err != nil {
		return q, err
	}
	return q.withFilterUnchecked(f), nil
}

func (q Query) withFilterUnchecked(f filter.Filter) Query {
	filters := make([]filter.Filter, 0, len(q.filters)+1)
	filters = append(filters, q.filters...)
	filters = append(filters, f)

	out := q
	out.filters = filters
	if len(filters) == 1 {
		out.filter = filters[0]
	} else {
		out.filter = filter.And(filters...)
	}
	return out
}

// WithOrderBy returns a copy of q with an extra orderBy clause.
func (q Query) WithOrderBy(field filter.FieldPath, dir Direction) Query {
	orderBy := make([]Order, 0, len(q.orderBy)+1)
	orderBy = append(orderBy, q.orderBy...)
	orderBy = append(orderBy, Order{Field: field, Direction: dir})

	out := q
	out.orderBy = orderBy
	return out
}

// WithLimit returns a copy of q returning at most n documents. Zero means no limit.
func (q Query) WithLimit(n int) Query {
	out := q
	out.limit = n
	return out
}

// Filter returns the query filter: the conjunction of every added filter,
// the single filter if only one was added, or the empty filter.
// Repeated calls return the same node, so its flattened leaves are computed once.
func (q Query) Filter() filter.Filter { return q.filter }

// OrderBy returns the explicit orderBy clauses.
func (q Query) OrderBy() []Order {
	out := make([]Order, len(q.orderBy))
	copy(out, q.orderBy)
	return out
}

// Limit returns the result limit, zero when unlimited.
func (q Query) Limit() int { return q.limit }

// InequalityField returns the field of the first inequality leaf.
func (q Query) InequalityField() (filter.FieldPath, bool) {
	for _, ff := range q.filter.FlattenedFilters() {
		if ff.IsInequality() {
			return ff.Field(), true
		}
	}
	return filter.FieldPath{}, false
}

// NormalizedOrderBy returns the orderBy clauses the query is executed with:
// the explicit clauses, the inequality field when there is no explicit order,
// and finally the document key in the direction of the last clause.
func (q Query) NormalizedOrderBy() []Order {
	out := q.OrderBy()
	if len(out) == 0 {
		if field, ok := q.InequalityField(); ok {
			out = append(out, Order{Field: field, Direction: Ascending})
		}
	}

	dir := Ascending
	for _, o := range out {
		if o.Field.IsKeyField() {
			return out
		}
		dir = o.Direction
	}
	return append(out, Order{Field: filter.MustFieldPath(filter.DocumentKeyField), Direction: dir})
}

// Matches reports whether doc satisfies the filter and has every orderBy field.
func (q Query) Matches(doc filter.Document) bool {
	for _, o := range q.orderBy {
		if _, ok := doc.Field(o.Field); !ok {
			return false
		}
	}
	return q.filter.Matches(doc)
}

// String renders "collection where <filter> order by a asc limit n".
func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.collection)
	if !q.filter.IsEmpty() {
		sb.WriteString(" where ")
		sb.WriteString(q.filter.String())
	}
	if len(q.orderBy) > 0 {
		parts := make([]string, len(q.orderBy))
		for i, o := range q.orderBy {
			parts[i] = o.String()
		}
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.limit > 0 {
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(q.limit))
	}
	return sb.String()
}
