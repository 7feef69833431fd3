package catalog

import (
	"encoding/json"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"
)

func TestGeometryExtensionType(t *testing.T) {
	extType := NewGeometryExtensionType()

	if extType.ExtensionName() != "geoarrow.wkb" {
		t.Errorf("expected extension name 'geoarrow.wkb', got '%s'", extType.ExtensionName())
	}
	if !arrow.TypeEqual(extType.StorageType(), arrow.BinaryTypes.Binary) {
		t.Errorf("expected Binary storage type, got %s", extType.StorageType())
	}
	if extType.String() != "extension<geoarrow.wkb>" {
		t.Errorf("expected 'extension<geoarrow.wkb>', got '%s'", extType.String())
	}
	if !extType.ExtensionEquals(NewGeometryExtensionType()) {
		t.Error("geometry types should be equal")
	}
}

func TestGeometryExtensionType_Deserialize(t *testing.T) {
	extType := NewGeometryExtensionType()

	tests := []struct {
		name        string
		storageType arrow.DataType
		wantErr     bool
	}{
		{name: "Binary storage", storageType: arrow.BinaryTypes.Binary},
		{name: "Invalid storage type", storageType: arrow.PrimitiveTypes.Int64, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := extType.Deserialize(tt.storageType, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Deserialize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && result == nil {
				t.Error("Deserialize() returned nil result without error")
			}
		})
	}
}

func TestNewGeoPointField(t *testing.T) {
	field := NewGeoPointField("location")
	if field.Name != "location" || !field.Nullable {
		t.Errorf("unexpected field %v", field)
	}
	if !isGeometry(field.Type) {
		t.Fatalf("expected geometry type, got %s", field.Type)
	}

	raw, ok := field.Metadata.GetValue("ARROW:extension:metadata")
	if !ok {
		t.Fatal("missing extension metadata")
	}
	var meta GeometryMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("invalid metadata JSON: %v", err)
	}
	if meta.CRS == nil || meta.CRS.ID == nil || meta.CRS.ID.Code != 4326 {
		t.Errorf("expected EPSG:4326, got %+v", meta.CRS)
	}
	if len(meta.GeometryTypes) != 1 || meta.GeometryTypes[0] != "POINT" {
		t.Errorf("expected POINT geometry type, got %v", meta.GeometryTypes)
	}
}

func TestEncodeDecodeGeometry(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{name: "point", geom: orb.Point{13.4, 52.5}},
		{name: "line", geom: orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{name: "polygon", geom: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeGeometry(tt.geom)
			if err != nil {
				t.Fatalf("EncodeGeometry() error: %v", err)
			}
			got, err := DecodeGeometry(data)
			if err != nil {
				t.Fatalf("DecodeGeometry() error: %v", err)
			}
			if !orb.Equal(got, tt.geom) {
				t.Errorf("round trip = %v, want %v", got, tt.geom)
			}
		})
	}
}

func TestEncodeDecodeGeometry_Errors(t *testing.T) {
	if _, err := EncodeGeometry(nil); err == nil {
		t.Error("expected error encoding nil geometry")
	}
	if _, err := DecodeGeometry(nil); err == nil {
		t.Error("expected error decoding empty data")
	}
	if _, err := DecodeGeometry([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error decoding truncated data")
	}
}

func TestGeometryBuilder_WithRecordBuilder(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		NewGeoPointField("location"),
	}, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	gb, ok := builder.Field(1).(*GeometryBuilder)
	if !ok {
		t.Fatalf("expected *GeometryBuilder, got %T", builder.Field(1))
	}

	builder.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	if err := gb.Append(orb.Point{1, 2}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	gb.AppendNull()
	if err := gb.Append(orb.Point{3, 4}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	rec := builder.NewRecord()
	defer rec.Release()

	col, ok := rec.Column(1).(*GeometryArray)
	if !ok {
		t.Fatalf("expected *GeometryArray, got %T", rec.Column(1))
	}
	if col.Len() != 3 || col.NullN() != 1 {
		t.Fatalf("len=%d nulls=%d, want 3 and 1", col.Len(), col.NullN())
	}

	g, err := col.Geometry(0)
	if err != nil || !orb.Equal(g, orb.Point{1, 2}) {
		t.Errorf("Geometry(0) = %v, %v", g, err)
	}
	g, err = col.Geometry(1)
	if err != nil || g != nil {
		t.Errorf("Geometry(1) = %v, %v; want nil", g, err)
	}
}
