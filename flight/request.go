package flight

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/query"
)

// QueryRequest is the JSON command accepted by GetFlightInfo (CMD descriptors)
// and by the explain action:
//
//	{
//	  "schema": "main",
//	  "collection": "people",
//	  "filter": {"op": "and", "filters": [{"field": "age", "op": ">", "value": 21}]},
//	  "order_by": [{"field": "age", "direction": "desc"}],
//	  "columns": ["__name__", "age"],
//	  "limit": 100
//	}
//
// Rows are streamed in collection order; order_by only affects index selection.
type QueryRequest struct {
	Schema     string          `json:"schema"`
	Collection string          `json:"collection"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	OrderBy    []OrderRequest  `json:"order_by,omitempty"`
	Columns    []string        `json:"columns,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// OrderRequest is one orderBy clause of a QueryRequest.
type OrderRequest struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// ParseQueryRequest decodes a QueryRequest. Unknown fields are rejected.
func ParseQueryRequest(data []byte) (*QueryRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req QueryRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Schema == "" || req.Collection == "" {
		return nil, fmt.Errorf("%w: schema and collection are required", ErrInvalidRequest)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative", ErrInvalidRequest)
	}
	return &req, nil
}

// Query builds and validates the query described by the request.
func (r *QueryRequest) Query() (query.Query, error) {
	q := query.New(r.Collection)

	f, err := filter.Parse(r.Filter)
	if err != nil {
		return query.Query{}, err
	}
	if q, err = q.WithFilter(f); err != nil {
		return query.Query{}, err
	}

	for _, o := range r.OrderBy {
		field, err := filter.ParseFieldPath(o.Field)
		if err != nil {
			return query.Query{}, fmt.Errorf("%w: order_by: %w", ErrInvalidRequest, err)
		}
		dir := query.Ascending
		if o.Direction != "" {
			if dir, err = query.ParseDirection(o.Direction); err != nil {
				return query.Query{}, fmt.Errorf("%w: order_by: %w", ErrInvalidRequest, err)
			}
		}
		q = q.WithOrderBy(field, dir)
	}
	q = q.WithLimit(r.Limit)

	if err := q.Validate(); err != nil {
		return query.Query{}, err
	}
	return q, nil
}
