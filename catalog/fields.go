package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/docquery/filter"
)

// ParseFieldType parses a column type name:
//
//	bool, int32, int64, double, string, bytes, timestamp, geopoint,
//	list<T>, struct<name:T, ...>
func ParseFieldType(s string) (arrow.DataType, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch lower {
	case "bool", "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "int", "int64", "integer":
		return arrow.PrimitiveTypes.Int64, nil
	case "double", "float", "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bytes", "binary":
		return arrow.BinaryTypes.Binary, nil
	case "timestamp":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case "geopoint", "geometry":
		return NewGeometryExtensionType(), nil
	}

	switch {
	case strings.HasPrefix(lower, "list<") && strings.HasSuffix(lower, ">"):
		elem, err := ParseFieldType(s[len("list<") : len(s)-1])
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	case strings.HasPrefix(lower, "struct<") && strings.HasSuffix(lower, ">"):
		parts := splitTopLevel(s[len("struct<") : len(s)-1])
		fields := make([]arrow.Field, 0, len(parts))
		for _, part := range parts {
			name, typ, ok := strings.Cut(part, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("catalog: invalid struct field %q", part)
			}
			dt, err := ParseFieldType(typ)
			if err != nil {
				return nil, err
			}
			fields = append(fields, arrow.Field{Name: strings.TrimSpace(name), Type: dt, Nullable: true})
		}
		return arrow.StructOf(fields...), nil
	}
	return nil, fmt.Errorf("catalog: unknown field type %q", s)
}

// NewField returns a nullable column of the named type.
// Geopoint columns carry WGS 84 geometry metadata.
func NewField(name, typ string) (arrow.Field, error) {
	dt, err := ParseFieldType(typ)
	if err != nil {
		return arrow.Field{}, err
	}
	if isGeometry(dt) {
		return NewGeoPointField(name), nil
	}
	return arrow.Field{Name: name, Type: dt, Nullable: true}, nil
}

// splitTopLevel splits s on commas that are not nested inside <...>.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, s[start:])
	}
	return parts
}

type jsonDocument struct {
	ID     string                     `json:"id"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// ParseDocuments parses a JSON array of documents:
//
//	[{"id": "alice", "fields": {"age": 30, "joined": {"$timestamp": "2024-01-15T10:30:00Z"}}}]
//
// Field values use the same encoding as filter values.
func ParseDocuments(data []byte) ([]filter.Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var raw []jsonDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse documents: %w", err)
	}

	docs := make([]filter.Document, 0, len(raw))
	for i, rd := range raw {
		doc := filter.Document{ID: rd.ID, Fields: make(map[string]filter.Value, len(rd.Fields))}
		for name, rv := range rd.Fields {
			v, err := filter.ParseValue(rv)
			if err != nil {
				return nil, fmt.Errorf("catalog: document %d field %q: %w", i, name, err)
			}
			doc.Fields[name] = v
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
