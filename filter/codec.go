package filter

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/docquery/internal/msgpack"
)

// wireFilter is the MessagePack form of a filter node.
type wireFilter struct {
	Op      string       `msgpack:"op"`
	Field   string       `msgpack:"f,omitempty"`
	Value   *wireValue   `msgpack:"v,omitempty"`
	Filters []wireFilter `msgpack:"c,omitempty"`
}

// wireValue is the MessagePack form of a Value.
type wireValue struct {
	Kind  Kind                 `msgpack:"k"`
	Bool  bool                 `msgpack:"b,omitempty"`
	Int   int64                `msgpack:"i,omitempty"`
	Float float64              `msgpack:"d"`
	Str   string               `msgpack:"s,omitempty"`
	Micro int64                `msgpack:"t,omitempty"`
	Geo   []float64            `msgpack:"g,omitempty"`
	Arr   []wireValue          `msgpack:"a,omitempty"`
	Map   map[string]wireValue `msgpack:"m,omitempty"`
}

// MarshalBinary encodes the filter as MessagePack.
// The empty filter encodes to an empty slice.
func (f Filter) MarshalBinary() ([]byte, error) {
	if f.rep == nil {
		return []byte{}, nil
	}
	w := filterToWire(f)
	data, err := msgpack.Encode(&w)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a filter produced by MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		*f = Filter{}
		return nil
	}
	var w wireFilter
	if err := msgpack.Decode(data, &w); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	decoded, err := filterFromWire(w)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	*f = decoded
	return nil
}

func filterToWire(f Filter) wireFilter {
	switch n := f.rep.(type) {
	case *FieldFilter:
		v := valueToWire(n.value)
		return wireFilter{Op: string(n.op), Field: n.path.String(), Value: &v}
	case *CompositeFilter:
		children := make([]wireFilter, len(n.filters))
		for i, child := range n.filters {
			children[i] = filterToWire(child)
		}
		return wireFilter{Op: string(n.op), Filters: children}
	default:
		return wireFilter{}
	}
}

func filterFromWire(w wireFilter) (Filter, error) {
	switch op := CompositeOp(w.Op); op {
	case CompositeAnd, CompositeOr:
		children := make([]Filter, 0, len(w.Filters))
		for i, child := range w.Filters {
			f, err := filterFromWire(child)
			if err != nil {
				return Filter{}, fmt.Errorf("child %d: %w", i, err)
			}
			children = append(children, f)
		}
		return NewCompositeFilter(op, children)
	}
	fp, err := ParseFieldPath(w.Field)
	if err != nil {
		return Filter{}, err
	}
	if w.Value == nil {
		return Filter{}, fmt.Errorf("field filter %q has no value", w.Field)
	}
	value, err := valueFromWire(*w.Value)
	if err != nil {
		return Filter{}, err
	}
	return NewFieldFilter(fp, Operator(w.Op), value)
}

func valueToWire(v Value) wireValue {
	w := wireValue{Kind: v.kind}
	switch v.kind {
	case KindBoolean:
		w.Bool = v.b
	case KindInteger:
		w.Int = v.i
	case KindDouble:
		w.Float = v.d
	case KindString, KindBytes:
		w.Str = v.s
	case KindTimestamp:
		w.Micro = v.t.UnixMicro()
	case KindGeoPoint:
		w.Geo = []float64{v.geo.Lon(), v.geo.Lat()}
	case KindArray:
		w.Arr = make([]wireValue, len(v.arr))
		for i, e := range v.arr {
			w.Arr[i] = valueToWire(e)
		}
	case KindMap:
		w.Map = make(map[string]wireValue, len(v.m))
		for k, e := range v.m {
			w.Map[k] = valueToWire(e)
		}
	}
	return w
}

func valueFromWire(w wireValue) (Value, error) {
	switch w.Kind {
	case KindNull:
		return Null(), nil
	case KindBoolean:
		return Bool(w.Bool), nil
	case KindInteger:
		return Int(w.Int), nil
	case KindDouble:
		return Double(w.Float), nil
	case KindString:
		return String(w.Str), nil
	case KindBytes:
		return Value{kind: KindBytes, s: w.Str}, nil
	case KindTimestamp:
		return Timestamp(time.UnixMicro(w.Micro)), nil
	case KindGeoPoint:
		if len(w.Geo) != 2 {
			return Value{}, fmt.Errorf("geopoint needs 2 coordinates, got %d", len(w.Geo))
		}
		return Value{kind: KindGeoPoint, geo: orb.Point{w.Geo[0], w.Geo[1]}}, nil
	case KindArray:
		arr := make([]Value, len(w.Arr))
		for i, e := range w.Arr {
			v, err := valueFromWire(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Value{kind: KindArray, arr: arr}, nil
	case KindMap:
		m := make(map[string]Value, len(w.Map))
		for k, e := range w.Map {
			v, err := valueFromWire(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Value{kind: KindMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
	}
}
