package catalog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeometryExtensionType implements Arrow extension type for geospatial data.
// Geometries are stored as WKB (Well-Known Binary) in Binary columns.
// GeoPoint document values are stored in columns of this type.
type GeometryExtensionType struct {
	arrow.ExtensionBase
}

// NewGeometryExtensionType creates a new geometry extension type.
func NewGeometryExtensionType() *GeometryExtensionType {
	return &GeometryExtensionType{
		ExtensionBase: arrow.ExtensionBase{
			Storage: arrow.BinaryTypes.Binary,
		},
	}
}

// GeometryArray is the array type of geometry columns.
type GeometryArray struct {
	array.ExtensionArrayBase
}

// Geometry decodes the value at i. Returns nil for null slots.
func (a *GeometryArray) Geometry(i int) (orb.Geometry, error) {
	if a.IsNull(i) {
		return nil, nil
	}
	return DecodeGeometry(a.Storage().(*array.Binary).Value(i))
}

// ArrayType returns the Go type for geometry arrays.
func (g *GeometryExtensionType) ArrayType() reflect.Type {
	return reflect.TypeOf(GeometryArray{})
}

// ExtensionName returns the extension type identifier.
// Uses "geoarrow.wkb" for compatibility with GeoArrow and DuckDB.
func (g *GeometryExtensionType) ExtensionName() string {
	return "geoarrow.wkb"
}

func (g *GeometryExtensionType) String() string {
	return "extension<geoarrow.wkb>"
}

// Serialize returns the extension metadata (empty for basic WKB).
func (g *GeometryExtensionType) Serialize() string {
	return ""
}

// Deserialize creates a geometry extension type from metadata.
func (g *GeometryExtensionType) Deserialize(storageType arrow.DataType, data string) (arrow.ExtensionType, error) {
	if !arrow.TypeEqual(storageType, arrow.BinaryTypes.Binary) {
		return nil, fmt.Errorf("invalid storage type for geometry: %s (expected Binary)", storageType)
	}
	return &GeometryExtensionType{
		ExtensionBase: arrow.ExtensionBase{Storage: storageType},
	}, nil
}

// ExtensionEquals checks equality with another extension type.
func (g *GeometryExtensionType) ExtensionEquals(other arrow.ExtensionType) bool {
	otherGeom, ok := other.(*GeometryExtensionType)
	if !ok {
		return false
	}
	return arrow.TypeEqual(g.StorageType(), otherGeom.StorageType())
}

// NewBuilder implements array.CustomExtensionBuilder so record builders
// create a GeometryBuilder for geometry columns.
func (g *GeometryExtensionType) NewBuilder(mem memory.Allocator) array.Builder {
	return &GeometryBuilder{ExtensionBuilder: array.NewExtensionBuilder(mem, g)}
}

// GeometryBuilder appends orb geometries to a geometry column.
type GeometryBuilder struct {
	*array.ExtensionBuilder
}

// Append encodes geom as WKB and appends it.
func (b *GeometryBuilder) Append(geom orb.Geometry) error {
	data, err := EncodeGeometry(geom)
	if err != nil {
		return err
	}
	b.ExtensionBuilder.Builder.(*array.BinaryBuilder).Append(data)
	return nil
}

// GeometryMetadata represents CRS and encoding information for geometry columns.
// Stored in Arrow field metadata as JSON.
type GeometryMetadata struct {
	CRS           *CRS     `json:"crs,omitempty"`
	Encoding      string   `json:"encoding,omitempty"`
	GeometryTypes []string `json:"geometry_types,omitempty"`
}

// CRS represents a coordinate reference system in PROJJSON format.
type CRS struct {
	ID *CRSID `json:"id,omitempty"`
}

// CRSID represents a CRS identifier (typically EPSG code).
type CRSID struct {
	Authority string `json:"authority"` // e.g., "EPSG"
	Code      int    `json:"code"`      // e.g., 4326
}

// NewGeometryField creates an Arrow field with geometry extension type and metadata.
func NewGeometryField(name string, nullable bool, srid int, geomType string) arrow.Field {
	extType := NewGeometryExtensionType()

	metadata := &GeometryMetadata{
		CRS:      &CRS{ID: &CRSID{Authority: "EPSG", Code: srid}},
		Encoding: "WKB",
	}
	if geomType != "" && geomType != "GEOMETRY" {
		metadata.GeometryTypes = []string{geomType}
	}
	metadataJSON, _ := json.Marshal(metadata)

	fieldMetadata := arrow.MetadataFrom(map[string]string{
		"ARROW:extension:metadata": string(metadataJSON),
		"srid":                     strconv.Itoa(srid),
		"geometry_type":            geomType,
	})

	return arrow.Field{
		Name:     name,
		Type:     extType,
		Nullable: nullable,
		Metadata: fieldMetadata,
	}
}

// NewGeoPointField returns a nullable WGS 84 point column.
func NewGeoPointField(name string) arrow.Field {
	return NewGeometryField(name, true, 4326, "POINT")
}

// EncodeGeometry converts an orb.Geometry to WKB bytes for Arrow storage.
func EncodeGeometry(geom orb.Geometry) ([]byte, error) {
	if geom == nil {
		return nil, fmt.Errorf("cannot encode nil geometry")
	}
	return wkb.Marshal(geom)
}

// DecodeGeometry converts WKB bytes from Arrow storage to orb.Geometry.
func DecodeGeometry(wkbBytes []byte) (orb.Geometry, error) {
	if len(wkbBytes) == 0 {
		return nil, fmt.Errorf("cannot decode empty WKB data")
	}
	return wkb.Unmarshal(wkbBytes)
}

func isGeometry(dt arrow.DataType) bool {
	_, ok := dt.(*GeometryExtensionType)
	return ok
}

func init() {
	_ = arrow.RegisterExtensionType(NewGeometryExtensionType())
}
