package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// DuckDBEncoder encodes filters to DuckDB SQL syntax.
type DuckDBEncoder struct {
	opts *EncoderOptions
}

// NewDuckDBEncoder creates a new DuckDB SQL encoder.
// If opts is nil, default options are used.
func NewDuckDBEncoder(opts *EncoderOptions) *DuckDBEncoder {
	if opts == nil {
		opts = &EncoderOptions{}
	}
	return &DuckDBEncoder{opts: opts}
}

// Encode converts a filter to the body of a WHERE clause.
//
// Unsupported parts are handled so the result is never narrower than f:
//   - For and: unsupported children are skipped, the rest kept
//   - For or: if any child is unsupported, the whole or is skipped
//
// Callers must still evaluate f against the returned rows.
func (e *DuckDBEncoder) Encode(f Filter) string {
	switch n := f.rep.(type) {
	case *FieldFilter:
		return e.encodeField(n)
	case *CompositeFilter:
		return e.encodeComposite(n)
	default:
		return ""
	}
}

func (e *DuckDBEncoder) encodeComposite(cf *CompositeFilter) string {
	var parts []string
	for _, child := range cf.filters {
		encoded := e.Encode(child)
		if encoded != "" {
			parts = append(parts, encoded)
		}
	}

	if cf.op == CompositeOr && len(parts) != len(cf.filters) {
		return ""
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}

	op := " AND "
	if cf.op == CompositeOr {
		op = " OR "
	}
	return "(" + strings.Join(parts, op) + ")"
}

func (e *DuckDBEncoder) encodeField(ff *FieldFilter) string {
	col := e.column(ff.path)
	if col == "" {
		return ""
	}
	if !e.compatible(ff) {
		return ""
	}

	switch ff.op {
	case OpEqual:
		switch {
		case ff.value.IsNull():
			return col + " IS NULL"
		case ff.value.IsNaN():
			return "isnan(" + col + ")"
		}
		return e.binary(col, "=", ff.value)
	case OpNotEqual:
		switch {
		case ff.value.IsNull():
			return col + " IS NOT NULL"
		case ff.value.IsNaN():
			return "NOT isnan(" + col + ")"
		}
		return e.binary(col, "<>", ff.value)
	case OpLessThan:
		return e.relational(col, "<", ff.value)
	case OpLessThanOrEqual:
		return e.relational(col, "<=", ff.value)
	case OpGreaterThan:
		return e.relational(col, ">", ff.value)
	case OpGreaterThanOrEqual:
		return e.relational(col, ">=", ff.value)
	case OpIn:
		return e.encodeIn(col, ff.value, false)
	case OpNotIn:
		return e.encodeIn(col, ff.value, true)
	case OpArrayContains:
		lit := e.formatValue(ff.value)
		if lit == "" {
			return ""
		}
		return "list_contains(" + col + ", " + lit + ")"
	case OpArrayContainsAny:
		if len(ff.value.arr) == 0 {
			return "FALSE"
		}
		lit := e.formatValue(ff.value)
		if lit == "" {
			return ""
		}
		return "list_has_any(" + col + ", " + lit + ")"
	default:
		return ""
	}
}

func (e *DuckDBEncoder) binary(col, op string, v Value) string {
	lit := e.formatValue(v)
	if lit == "" {
		return ""
	}
	return col + " " + op + " " + lit
}

// relational encodes ordering comparisons. Ordering against null or NaN never matches.
func (e *DuckDBEncoder) relational(col, op string, v Value) string {
	if v.IsNull() || v.IsNaN() {
		return "FALSE"
	}
	return e.binary(col, op, v)
}

func (e *DuckDBEncoder) encodeIn(col string, list Value, notIn bool) string {
	var values []string
	for _, v := range list.arr {
		if v.IsNull() {
			if notIn {
				// A null candidate excludes every document.
				return "FALSE"
			}
			continue
		}
		if v.IsNaN() {
			// NaN needs isnan(); leave the whole list to residual evaluation.
			return ""
		}
		lit := e.formatValue(v)
		if lit == "" {
			return ""
		}
		values = append(values, lit)
	}

	if len(values) == 0 {
		if notIn {
			return col + " IS NOT NULL"
		}
		if len(list.arr) > 0 {
			return col + " IS NULL"
		}
		return "FALSE"
	}

	if notIn {
		return "(" + col + " NOT IN (" + strings.Join(values, ", ") + ") AND " + col + " IS NOT NULL)"
	}
	in := col + " IN (" + strings.Join(values, ", ") + ")"
	for _, v := range list.arr {
		if v.IsNull() {
			return "(" + in + " OR " + col + " IS NULL)"
		}
	}
	return in
}

// column resolves a field path to a SQL column reference.
func (e *DuckDBEncoder) column(path FieldPath) string {
	name := path.String()
	if expr, ok := e.opts.ColumnExpressions[name]; ok {
		return expr
	}
	if mapped, ok := e.opts.ColumnMapping[name]; ok {
		return quoteIdentifier(mapped)
	}
	if path.IsKeyField() {
		// The document key has no column unless mapped.
		return ""
	}
	segs := path.Segments()
	quoted := make([]string, len(segs))
	for i, s := range segs {
		quoted[i] = quoteIdentifier(s)
	}
	return strings.Join(quoted, ".")
}

// compatible reports whether ff's operand can be compared with the column's type.
// Unknown columns are assumed compatible.
func (e *DuckDBEncoder) compatible(ff *FieldFilter) bool {
	if e.opts.Schema == nil || len(ff.path.Segments()) != 1 {
		return true
	}
	name := ff.path.String()
	if mapped, ok := e.opts.ColumnMapping[name]; ok {
		name = mapped
	}
	fields, ok := e.opts.Schema.FieldsByName(name)
	if !ok || len(fields) == 0 {
		return true
	}
	dt := fields[0].Type

	switch ff.op {
	case OpArrayContains, OpArrayContainsAny:
		elem, ok := listElem(dt)
		if !ok {
			return false
		}
		if ff.op == OpArrayContains {
			return kindFitsType(ff.value.kind, elem)
		}
		return allFit(ff.value.arr, elem)
	case OpIn, OpNotIn:
		return allFit(ff.value.arr, dt)
	}
	return kindFitsType(ff.value.kind, dt)
}

func allFit(values []Value, dt arrow.DataType) bool {
	for _, v := range values {
		if !kindFitsType(v.kind, dt) {
			return false
		}
	}
	return true
}

func listElem(dt arrow.DataType) (arrow.DataType, bool) {
	switch t := dt.(type) {
	case *arrow.ListType:
		return t.Elem(), true
	case *arrow.LargeListType:
		return t.Elem(), true
	case *arrow.FixedSizeListType:
		return t.Elem(), true
	}
	return nil, false
}

func kindFitsType(k Kind, dt arrow.DataType) bool {
	if k == KindNull {
		return true
	}
	switch dt.ID() {
	case arrow.BOOL:
		return k == KindBoolean
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128, arrow.DECIMAL256:
		return k == KindInteger || k == KindDouble
	case arrow.STRING, arrow.LARGE_STRING, arrow.STRING_VIEW:
		return k == KindString
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.BINARY_VIEW, arrow.FIXED_SIZE_BINARY:
		return k == KindBytes
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return k == KindTimestamp
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		return k == KindArray
	case arrow.EXTENSION:
		// Geometry columns are never pushed down.
		return false
	}
	return true
}

// formatValue renders a literal. Returns empty string for values with no SQL form.
func (e *DuckDBEncoder) formatValue(v Value) string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBoolean:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		switch {
		case math.IsNaN(v.d):
			return "'nan'::DOUBLE"
		case math.IsInf(v.d, 1):
			return "'inf'::DOUBLE"
		case math.IsInf(v.d, -1):
			return "'-inf'::DOUBLE"
		}
		s := strconv.FormatFloat(v.d, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case KindString:
		return quoteLiteral(v.s)
	case KindBytes:
		var sb strings.Builder
		sb.WriteString("'")
		for i := 0; i < len(v.s); i++ {
			fmt.Fprintf(&sb, "\\x%02X", v.s[i])
		}
		sb.WriteString("'::BLOB")
		return sb.String()
	case KindTimestamp:
		return "TIMESTAMP '" + v.t.UTC().Format("2006-01-02 15:04:05.999999") + "'"
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, elem := range v.arr {
			lit := e.formatValue(elem)
			if lit == "" {
				return ""
			}
			parts[i] = lit
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		// geopoints and maps
		return ""
	}
}
