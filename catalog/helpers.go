package catalog

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// ProjectSchema returns a projected schema containing only the specified columns.
// If columns is nil or empty, returns the full schema unchanged.
// Column order in the returned schema matches the order in columns slice;
// unknown names are skipped. Original schema metadata is preserved.
func ProjectSchema(schema *arrow.Schema, columns []string) *arrow.Schema {
	if len(columns) == 0 {
		return schema
	}

	colIndex := make(map[string]int, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		colIndex[schema.Field(i).Name] = i
	}

	fields := make([]arrow.Field, 0, len(columns))
	for _, col := range columns {
		if idx, ok := colIndex[col]; ok {
			fields = append(fields, schema.Field(idx))
		}
	}

	if len(fields) == 0 {
		// No matching columns - return original schema
		return schema
	}

	meta := schema.Metadata()
	return arrow.NewSchema(fields, &meta)
}

// DocumentSchema prepends the key column to fields and returns the collection schema.
// A field named KeyColumn in fields is ignored.
func DocumentSchema(fields ...arrow.Field) *arrow.Schema {
	all := make([]arrow.Field, 0, len(fields)+1)
	all = append(all, arrow.Field{Name: KeyColumn, Type: arrow.BinaryTypes.String})
	for _, f := range fields {
		if f.Name == KeyColumn {
			continue
		}
		all = append(all, f)
	}
	return arrow.NewSchema(all, nil)
}

// FindKeyColumn returns the index of the key column in the schema.
// Returns -1 if the schema is nil or has no key column.
func FindKeyColumn(schema *arrow.Schema) int {
	if schema == nil {
		return -1
	}
	indices := schema.FieldIndices(KeyColumn)
	if len(indices) == 0 {
		return -1
	}
	return indices[0]
}
