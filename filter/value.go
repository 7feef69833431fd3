package filter

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Kind identifies the type of a Value.
// Kinds are declared in comparison order: values of a lower kind sort first.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindDouble
	KindTimestamp
	KindString
	KindBytes
	KindGeoPoint
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindInteger:   "integer",
	KindDouble:    "double",
	KindTimestamp: "timestamp",
	KindString:    "string",
	KindBytes:     "bytes",
	KindGeoPoint:  "geopoint",
	KindArray:     "array",
	KindMap:       "map",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// typeOrder collapses integer and double into one numeric class.
func (k Kind) typeOrder() int {
	switch k {
	case KindNull:
		return 0
	case KindBoolean:
		return 1
	case KindInteger, KindDouble:
		return 2
	case KindTimestamp:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	case KindGeoPoint:
		return 6
	case KindArray:
		return 7
	default:
		return 8
	}
}

// Value is an immutable document field value.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    float64
	s    string
	t    time.Time
	geo  orb.Point
	arr  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Double returns a double value.
func Double(d float64) Value { return Value{kind: KindDouble, d: d} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a bytes value. The slice is copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, s: string(b)} }

// Timestamp returns a timestamp value truncated to microseconds, in UTC.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, t: t.UTC().Truncate(time.Microsecond)}
}

// GeoPoint returns a geographic point value.
// orb stores points as [longitude, latitude].
func GeoPoint(lat, lng float64) Value {
	return Value{kind: KindGeoPoint, geo: orb.Point{lng, lat}}
}

// Array returns an array value. The slice is copied.
func Array(values ...Value) Value {
	arr := make([]Value, len(values))
	copy(arr, values)
	return Value{kind: KindArray, arr: arr}
}

// Map returns a map value. The map is copied.
func Map(fields map[string]Value) Value {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// ValueOf converts a Go value into a Value.
// Supported inputs are nil, bool, signed and unsigned integers, floats, string,
// []byte, time.Time, orb.Point, Value, []any and map[string]any (recursively).
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("filter: integer %d overflows int64", x)
		}
		return Int(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return Timestamp(x), nil
	case orb.Point:
		return Value{kind: KindGeoPoint, geo: x}, nil
	case []Value:
		return Array(x...), nil
	case []any:
		arr := make([]Value, 0, len(x))
		for i, e := range x {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			arr = append(arr, ev)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]Value:
		return Map(x), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{kind: KindMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("filter: unsupported value type %T", v)
	}
}

// MustValueOf is like ValueOf but panics on unsupported input.
func MustValueOf(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNaN reports whether v is a double NaN.
func (v Value) IsNaN() bool { return v.kind == KindDouble && math.IsNaN(v.d) }

// IsNumber reports whether v is an integer or a double.
func (v Value) IsNumber() bool { return v.kind == KindInteger || v.kind == KindDouble }

// BoolValue returns the boolean payload.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integer payload.
func (v Value) IntValue() int64 { return v.i }

// DoubleValue returns the numeric payload as float64 for integers and doubles.
func (v Value) DoubleValue() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.d
}

// StringValue returns the string payload.
func (v Value) StringValue() string { return v.s }

// BytesValue returns a copy of the bytes payload.
func (v Value) BytesValue() []byte { return []byte(v.s) }

// TimeValue returns the timestamp payload.
func (v Value) TimeValue() time.Time { return v.t }

// PointValue returns the geographic point payload as [longitude, latitude].
func (v Value) PointValue() orb.Point { return v.geo }

// ArrayValue returns the array elements. Callers must not modify the slice.
func (v Value) ArrayValue() []Value { return v.arr }

// MapValue returns the map fields. Callers must not modify the map.
func (v Value) MapValue() map[string]Value { return v.m }

// Interface converts v back into a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindInteger:
		return v.i
	case KindDouble:
		return v.d
	case KindTimestamp:
		return v.t
	case KindString:
		return v.s
	case KindBytes:
		return []byte(v.s)
	case KindGeoPoint:
		return v.geo
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// Comparable reports whether a and b belong to the same type class and
// can be ordered by a relational operator.
func Comparable(a, b Value) bool {
	return a.kind.typeOrder() == b.kind.typeOrder()
}

// Equal reports whether two values are identical. An integer never equals a
// double, and doubles compare by bit pattern except that every NaN equals
// every other NaN, so 0 and -0 differ. Equal values have the same CanonicalID.
//
// Matching uses numeric equality instead; see Equivalent.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == other.i
	case KindDouble:
		return sameDouble(v.d, other.d)
	case KindGeoPoint:
		return sameDouble(v.geo.Lat(), other.geo.Lat()) && sameDouble(v.geo.Lon(), other.geo.Lon())
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, e := range v.m {
			o, ok := other.m[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	default:
		return Compare(v, other) == 0
	}
}

func sameDouble(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

// Equivalent reports equality as seen by the == and in operators: integers
// and doubles are equal when numerically equal, 0 equals -0 and NaN equals NaN.
func (v Value) Equivalent(other Value) bool {
	if v.kind.typeOrder() != other.kind.typeOrder() {
		return false
	}
	switch v.kind {
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equivalent(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, e := range v.m {
			o, ok := other.m[k]
			if !ok || !e.Equivalent(o) {
				return false
			}
		}
		return true
	default:
		return Compare(v, other) == 0
	}
}

// Compare orders two values: -1 if a < b, 0 if equal, 1 if a > b.
// Values of different kinds are ordered by kind; NaN sorts before every other number.
func Compare(a, b Value) int {
	ao, bo := a.kind.typeOrder(), b.kind.typeOrder()
	if ao != bo {
		return cmpInt(ao, bo)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindInteger, KindDouble:
		return compareNumbers(a, b)
	case KindTimestamp:
		return a.t.Compare(b.t)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindBytes:
		return bytes.Compare([]byte(a.s), []byte(b.s))
	case KindGeoPoint:
		if c := compareFloats(a.geo.Lat(), b.geo.Lat()); c != 0 {
			return c
		}
		return compareFloats(a.geo.Lon(), b.geo.Lon())
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	default:
		ak, bk := sortedKeys(a.m), sortedKeys(b.m)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(a.m[ak[i]], b.m[bk[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ak), len(bk))
	}
}

func compareNumbers(a, b Value) int {
	if a.kind == KindInteger && b.kind == KindInteger {
		return cmpInt64(a.i, b.i)
	}
	return compareFloats(a.DoubleValue(), b.DoubleValue())
}

func compareFloats(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contains reports whether an array value holds an element equivalent to elem.
// Returns false for non-array values.
func (v Value) Contains(elem Value) bool {
	if v.kind != KindArray {
		return false
	}
	for _, e := range v.arr {
		if e.Equivalent(elem) {
			return true
		}
	}
	return false
}

// canonicalID renders v like String but marks doubles, so that an integer and
// a double with the same decimal form get different ids.
func (v Value) canonicalID() string {
	switch v.kind {
	case KindDouble:
		return "d" + strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.canonicalID()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindMap:
		keys := sortedKeys(v.m)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ":" + v.m[k].canonicalID()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return v.String()
	}
}

// String renders the value for humans.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindTimestamp:
		return "time(" + v.t.Format(time.RFC3339Nano) + ")"
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return "bytes(" + base64.StdEncoding.EncodeToString([]byte(v.s)) + ")"
	case KindGeoPoint:
		return "geo(" + strconv.FormatFloat(v.geo.Lat(), 'g', -1, 64) + "," +
			strconv.FormatFloat(v.geo.Lon(), 'g', -1, 64) + ")"
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		keys := sortedKeys(v.m)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ":" + v.m[k].String()
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
}
