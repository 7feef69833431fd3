package filter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse parses a filter from its JSON form.
//
// Composite filters:
//
//	{"op": "and", "filters": [ ... ]}
//
// Field filters:
//
//	{"field": "age", "op": ">", "value": 21}
//
// Values map from JSON kinds; integral numbers become integers. Typed values
// use a single-key object: {"$timestamp": "2024-01-15T10:30:00Z"},
// {"$bytes": "<base64>"}, {"$geo": [lat, lng]}, {"$double": 1}.
//
// Empty input (or JSON null) yields the empty filter.
func Parse(data []byte) (Filter, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return Filter{}, nil
	}
	f, err := parseFilter(data)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: %w", err)
	}
	return f, nil
}

// ParseError describes a malformed filter document.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid filter: " + e.Reason
	}
	return "invalid filter at " + e.Path + ": " + e.Reason
}

// rawFilter is used for two-phase parsing to determine the node kind.
type rawFilter struct {
	Op      string            `json:"op"`
	Field   string            `json:"field"`
	Value   json.RawMessage   `json:"value"`
	Filters []json.RawMessage `json:"filters"`
}

func parseFilter(data json.RawMessage) (Filter, error) {
	return parseFilterAt(data, "$")
}

func parseFilterAt(data json.RawMessage, path string) (Filter, error) {
	var raw rawFilter
	if err := json.Unmarshal(data, &raw); err != nil {
		return Filter{}, &ParseError{Path: path, Reason: err.Error()}
	}

	switch op := CompositeOp(strings.ToLower(raw.Op)); op {
	case CompositeAnd, CompositeOr:
		if raw.Field != "" {
			return Filter{}, &ParseError{Path: path, Reason: "composite filter cannot have a field"}
		}
		children := make([]Filter, 0, len(raw.Filters))
		for i, child := range raw.Filters {
			f, err := parseFilterAt(child, fmt.Sprintf("%s.filters[%d]", path, i))
			if err != nil {
				return Filter{}, err
			}
			children = append(children, f)
		}
		return NewCompositeFilter(op, children)
	}

	if raw.Field == "" {
		return Filter{}, &ParseError{Path: path, Reason: "missing field"}
	}
	fp, err := ParseFieldPath(raw.Field)
	if err != nil {
		return Filter{}, &ParseError{Path: path, Reason: err.Error()}
	}
	op := Operator(raw.Op)
	if !op.Valid() {
		return Filter{}, &ParseError{Path: path, Reason: fmt.Sprintf("unknown operator %q", raw.Op)}
	}
	if len(raw.Value) == 0 {
		return Filter{}, &ParseError{Path: path, Reason: "missing value"}
	}
	value, err := ParseValue(raw.Value)
	if err != nil {
		return Filter{}, &ParseError{Path: path + ".value", Reason: err.Error()}
	}
	f, err := NewFieldFilter(fp, op, value)
	if err != nil {
		return Filter{}, &ParseError{Path: path, Reason: err.Error()}
	}
	return f, nil
}

// ParseValue parses a Value from its JSON form.
func ParseValue(data json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("invalid value: %w", err)
	}
	return valueFromJSON(v)
}

func valueFromJSON(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil && !strings.ContainsAny(x.String(), ".eE") {
			return Int(i), nil
		}
		d, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Double(d), nil
	case string:
		return String(x), nil
	case []any:
		arr := make([]Value, 0, len(x))
		for i, e := range x {
			ev, err := valueFromJSON(e)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			arr = append(arr, ev)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		if len(x) == 1 {
			for k, e := range x {
				if strings.HasPrefix(k, "$") {
					return typedValueFromJSON(k, e)
				}
			}
		}
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := valueFromJSON(e)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{kind: KindMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON value %T", v)
	}
}

func typedValueFromJSON(tag string, v any) (Value, error) {
	switch tag {
	case "$timestamp":
		s, ok := v.(string)
		if !ok {
			return Value{}, fmt.Errorf("$timestamp must be an RFC 3339 string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid $timestamp: %w", err)
		}
		return Timestamp(t), nil
	case "$bytes":
		s, ok := v.(string)
		if !ok {
			return Value{}, fmt.Errorf("$bytes must be a base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid $bytes: %w", err)
		}
		return Bytes(b), nil
	case "$geo":
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return Value{}, fmt.Errorf("$geo must be [lat, lng]")
		}
		lat, err1 := jsonFloat(pair[0])
		lng, err2 := jsonFloat(pair[1])
		if err1 != nil || err2 != nil {
			return Value{}, fmt.Errorf("$geo coordinates must be numbers")
		}
		return GeoPoint(lat, lng), nil
	case "$double":
		if s, ok := v.(string); ok {
			d, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("invalid $double %q", s)
			}
			return Double(d), nil
		}
		d, err := jsonFloat(v)
		if err != nil {
			return Value{}, fmt.Errorf("$double must be a number")
		}
		return Double(d), nil
	default:
		return Value{}, fmt.Errorf("unknown typed value %q", tag)
	}
}

func jsonFloat(v any) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("not a number")
	}
	return n.Float64()
}

// MarshalJSON encodes the filter in the form accepted by Parse.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterToJSON(f))
}

// UnmarshalJSON decodes a filter produced by MarshalJSON.
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func filterToJSON(f Filter) any {
	switch n := f.rep.(type) {
	case *FieldFilter:
		return map[string]any{
			"field": n.path.String(),
			"op":    string(n.op),
			"value": valueToJSON(n.value),
		}
	case *CompositeFilter:
		children := make([]any, len(n.filters))
		for i, child := range n.filters {
			children[i] = filterToJSON(child)
		}
		return map[string]any{"op": string(n.op), "filters": children}
	default:
		return nil
	}
}

func valueToJSON(v Value) any {
	switch v.kind {
	case KindDouble:
		if math.IsNaN(v.d) || math.IsInf(v.d, 0) {
			return map[string]any{"$double": strconv.FormatFloat(v.d, 'g', -1, 64)}
		}
		if v.d == math.Trunc(v.d) {
			return map[string]any{"$double": v.d}
		}
		return v.d
	case KindTimestamp:
		return map[string]any{"$timestamp": v.t.Format(time.RFC3339Nano)}
	case KindBytes:
		return map[string]any{"$bytes": base64.StdEncoding.EncodeToString([]byte(v.s))}
	case KindGeoPoint:
		return map[string]any{"$geo": []float64{v.geo.Lat(), v.geo.Lon()}}
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = valueToJSON(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = valueToJSON(e)
		}
		return out
	default:
		return v.Interface()
	}
}
