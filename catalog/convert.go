package catalog

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"

	"github.com/hugr-lab/docquery/filter"
)

// DocumentsToRecord builds one record holding docs in schema's column layout.
// The key column receives the document id; other columns are looked up by
// field name. Missing fields and null values become nulls.
// Caller MUST call Release on the returned record.
func DocumentsToRecord(mem memory.Allocator, schema *arrow.Schema, docs []filter.Document) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for _, doc := range docs {
		for i, field := range schema.Fields() {
			if field.Name == KeyColumn {
				builder.Field(i).(*array.StringBuilder).Append(doc.ID)
				continue
			}
			v, ok := doc.Fields[field.Name]
			if !ok || v.IsNull() {
				builder.Field(i).AppendNull()
				continue
			}
			if err := appendValue(builder.Field(i), field.Type, v); err != nil {
				return nil, fmt.Errorf("%w: document %s field %s: %w", ErrSchemaMismatch, doc.ID, field.Name, err)
			}
		}
	}
	return builder.NewRecord(), nil
}

// CheckDocument reports whether every field of doc that has a column in schema can be stored in it.
func CheckDocument(schema *arrow.Schema, doc filter.Document) error {
	for _, field := range schema.Fields() {
		if field.Name == KeyColumn {
			continue
		}
		v, ok := doc.Fields[field.Name]
		if !ok || v.IsNull() {
			continue
		}
		if err := checkValue(field.Type, v); err != nil {
			return fmt.Errorf("%w: document %s field %s: %w", ErrSchemaMismatch, doc.ID, field.Name, err)
		}
	}
	return nil
}

func mismatch(dt arrow.DataType, v filter.Value) error {
	return fmt.Errorf("cannot store %s value in %s column", v.Kind(), dt)
}

func checkValue(dt arrow.DataType, v filter.Value) error {
	if v.IsNull() {
		return nil
	}
	if isGeometry(dt) {
		if v.Kind() != filter.KindGeoPoint {
			return mismatch(dt, v)
		}
		return nil
	}
	switch t := dt.(type) {
	case *arrow.BooleanType:
		if v.Kind() == filter.KindBoolean {
			return nil
		}
	case *arrow.Int64Type, *arrow.Int32Type:
		if v.Kind() == filter.KindInteger {
			return nil
		}
	case *arrow.Float64Type:
		if v.IsNumber() {
			return nil
		}
	case *arrow.StringType:
		if v.Kind() == filter.KindString {
			return nil
		}
	case *arrow.BinaryType:
		if v.Kind() == filter.KindBytes {
			return nil
		}
	case *arrow.TimestampType:
		if v.Kind() == filter.KindTimestamp {
			return nil
		}
	case *arrow.ListType:
		if v.Kind() != filter.KindArray {
			break
		}
		for _, e := range v.ArrayValue() {
			if err := checkValue(t.Elem(), e); err != nil {
				return err
			}
		}
		return nil
	case *arrow.StructType:
		if v.Kind() != filter.KindMap {
			break
		}
		for k, e := range v.MapValue() {
			idx, ok := t.FieldIdx(k)
			if !ok {
				return fmt.Errorf("map key %q has no struct field", k)
			}
			if err := checkValue(t.Field(idx).Type, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported column type %s", dt)
	}
	return mismatch(dt, v)
}

func appendValue(b array.Builder, dt arrow.DataType, v filter.Value) error {
	if v.IsNull() {
		b.AppendNull()
		return nil
	}
	if err := checkValue(dt, v); err != nil {
		return err
	}

	switch bb := b.(type) {
	case *GeometryBuilder:
		return bb.Append(v.PointValue())
	case *array.BooleanBuilder:
		bb.Append(v.BoolValue())
	case *array.Int64Builder:
		bb.Append(v.IntValue())
	case *array.Int32Builder:
		bb.Append(int32(v.IntValue()))
	case *array.Float64Builder:
		bb.Append(v.DoubleValue())
	case *array.StringBuilder:
		bb.Append(v.StringValue())
	case *array.BinaryBuilder:
		bb.Append(v.BytesValue())
	case *array.TimestampBuilder:
		unit := dt.(*arrow.TimestampType).Unit
		ts, err := arrow.TimestampFromTime(v.TimeValue(), unit)
		if err != nil {
			return err
		}
		bb.Append(ts)
	case *array.ListBuilder:
		elem := dt.(*arrow.ListType).Elem()
		bb.Append(true)
		for _, e := range v.ArrayValue() {
			if err := appendValue(bb.ValueBuilder(), elem, e); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		st := dt.(*arrow.StructType)
		bb.Append(true)
		m := v.MapValue()
		for i, f := range st.Fields() {
			e, ok := m[f.Name]
			if !ok {
				bb.FieldBuilder(i).AppendNull()
				continue
			}
			if err := appendValue(bb.FieldBuilder(i), f.Type, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported column type %s", dt)
	}
	return nil
}

// RecordToDocuments converts a record back into documents.
// The key column provides ids; null cells become null fields.
func RecordToDocuments(rec arrow.Record) ([]filter.Document, error) {
	schema := rec.Schema()
	keyIdx := FindKeyColumn(schema)

	docs := make([]filter.Document, rec.NumRows())
	for row := range docs {
		docs[row].Fields = make(map[string]filter.Value, schema.NumFields())
	}

	for col, field := range schema.Fields() {
		arr := rec.Column(col)
		for row := range docs {
			if col == keyIdx {
				docs[row].ID = arr.(*array.String).Value(row)
				continue
			}
			v, err := valueAt(arr, row)
			if err != nil {
				return nil, fmt.Errorf("catalog: column %s row %d: %w", field.Name, row, err)
			}
			docs[row].Fields[field.Name] = v
		}
	}
	return docs, nil
}

func valueAt(arr arrow.Array, i int) (filter.Value, error) {
	if arr.IsNull(i) {
		return filter.Null(), nil
	}
	switch a := arr.(type) {
	case *GeometryArray:
		geom, err := a.Geometry(i)
		if err != nil {
			return filter.Value{}, err
		}
		p, ok := geom.(orb.Point)
		if !ok {
			return filter.Value{}, fmt.Errorf("geometry %T is not a point", geom)
		}
		return filter.GeoPoint(p.Lat(), p.Lon()), nil
	case *array.Boolean:
		return filter.Bool(a.Value(i)), nil
	case *array.Int64:
		return filter.Int(a.Value(i)), nil
	case *array.Int32:
		return filter.Int(int64(a.Value(i))), nil
	case *array.Float64:
		return filter.Double(a.Value(i)), nil
	case *array.String:
		return filter.String(a.Value(i)), nil
	case *array.Binary:
		return filter.Bytes(a.Value(i)), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return filter.Timestamp(a.Value(i).ToTime(unit)), nil
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		elems := make([]filter.Value, 0, end-start)
		for j := start; j < end; j++ {
			e, err := valueAt(values, int(j))
			if err != nil {
				return filter.Value{}, err
			}
			elems = append(elems, e)
		}
		return filter.Array(elems...), nil
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		m := make(map[string]filter.Value, st.NumFields())
		for f := 0; f < st.NumFields(); f++ {
			e, err := valueAt(a.Field(f), i)
			if err != nil {
				return filter.Value{}, err
			}
			m[st.Field(f).Name] = e
		}
		return filter.Map(m), nil
	default:
		return filter.Value{}, fmt.Errorf("unsupported column type %s", arr.DataType())
	}
}
