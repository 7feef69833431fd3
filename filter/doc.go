// Package filter provides the query filter expression tree used by collection
// scans, the query validator and the index planner.
//
// A Filter is a small value-semantic handle to an immutable node. A node is
// either a FieldFilter (field, operator, value) or a CompositeFilter (and/or
// over child filters). The zero Filter is the empty filter: it matches every
// document and renders as "<empty>".
//
// # Building Filters
//
//	f := filter.And(
//	    filter.Where("age", filter.OpGreaterThanOrEqual, 21),
//	    filter.Or(
//	        filter.Where("city", filter.OpEqual, "Berlin"),
//	        filter.Where("tags", filter.OpArrayContains, "vip"),
//	    ),
//	)
//
// Filters are safe to copy and to share between goroutines.
//
// # Flattening
//
// FlattenedFilters returns every leaf reachable from a composite, depth-first
// and left to right, whatever the operators along the way:
//
//	and(a > 1, or(b == 2, c < 3)).FlattenedFilters() // [a > 1, b == 2, c < 3]
//
// The list is computed once per composite, on first use, even when many
// goroutines ask at the same time. Later calls return the same backing slice.
// Structural merging of same-operator children is done by ApplyAssociation.
//
// # Normal Forms
//
// ComputeDNF rewrites a filter into a disjunction of flat conjunctions;
// DNFTerms returns those conjunctions. ComputeInExpansion turns "in" leaves
// into disjunctions of equalities.
//
// # Wire Formats
//
// Filters round-trip through JSON (Parse, MarshalJSON) and MessagePack
// (MarshalBinary, UnmarshalBinary):
//
//	{"op": "and", "filters": [{"field": "age", "op": ">", "value": 21}]}
//
// # SQL Encoding
//
// DuckDBEncoder renders a filter as a DuckDB WHERE clause body:
//
//	enc := filter.NewDuckDBEncoder(&filter.EncoderOptions{
//	    ColumnMapping: map[string]string{"__name__": "id"},
//	})
//	where := enc.Encode(f)
//
// Unsupported leaves are dropped so that the SQL result is a superset of the
// matching documents:
//   - For and: Skips unsupported children, keeps others
//   - For or: If any child is unsupported, skips the whole or
//
// Callers evaluate Filter.Matches on the returned rows.
package filter
