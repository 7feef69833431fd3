package catalog

import (
	"context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/docquery/query"
)

// StaticCatalog is an immutable catalog implementation built from CatalogBuilder.
type StaticCatalog struct {
	schemas map[string]*staticSchema
}

// NewStaticCatalog creates a static catalog.
// This is exported for use by the docquery package builder.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		schemas: make(map[string]*staticSchema),
	}
}

// AddSchema adds a schema to the static catalog.
// This is used during catalog building.
func (c *StaticCatalog) AddSchema(name, comment string, collections map[string]Collection) {
	c.schemas[name] = &staticSchema{
		name:        name,
		comment:     comment,
		collections: collections,
	}
}

// Schemas implements Catalog interface. Schemas are returned sorted by name.
func (c *StaticCatalog) Schemas(ctx context.Context) ([]Schema, error) {
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Schema, 0, len(names))
	for _, name := range names {
		result = append(result, c.schemas[name])
	}
	return result, nil
}

// Schema implements Catalog interface.
func (c *StaticCatalog) Schema(ctx context.Context, name string) (Schema, error) {
	schema, ok := c.schemas[name]
	if !ok {
		return nil, nil // Not found, not an error
	}
	return schema, nil
}

// staticSchema is an immutable schema implementation.
type staticSchema struct {
	name        string
	comment     string
	collections map[string]Collection
}

// Name implements Schema interface.
func (s *staticSchema) Name() string {
	return s.name
}

// Comment implements Schema interface.
func (s *staticSchema) Comment() string {
	return s.comment
}

// Collections implements Schema interface. Collections are returned sorted by name.
func (s *staticSchema) Collections(ctx context.Context) ([]Collection, error) {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Collection, 0, len(names))
	for _, name := range names {
		result = append(result, s.collections[name])
	}
	return result, nil
}

// Collection implements Schema interface.
func (s *staticSchema) Collection(ctx context.Context, name string) (Collection, error) {
	coll, ok := s.collections[name]
	if !ok {
		return nil, nil // Not found, not an error
	}
	return coll, nil
}

// StaticCollection adapts a ScanFunc to the Collection interface.
type StaticCollection struct {
	name     string
	comment  string
	schema   *arrow.Schema
	scanFunc ScanFunc
	indexes  []query.FieldIndex
}

// NewStaticCollection creates a collection backed by a user scan function.
// The scan function is responsible for applying opts.Filter.
func NewStaticCollection(name, comment string, schema *arrow.Schema, scanFunc ScanFunc, indexes ...query.FieldIndex) *StaticCollection {
	return &StaticCollection{
		name:     name,
		comment:  comment,
		schema:   schema,
		scanFunc: scanFunc,
		indexes:  indexes,
	}
}

// Name implements Collection interface.
func (c *StaticCollection) Name() string {
	return c.name
}

// Comment implements Collection interface.
func (c *StaticCollection) Comment() string {
	return c.comment
}

// ArrowSchema implements Collection interface.
func (c *StaticCollection) ArrowSchema() *arrow.Schema {
	return c.schema
}

// Indexes implements IndexedCollection interface.
func (c *StaticCollection) Indexes() []query.FieldIndex {
	return c.indexes
}

// ScanFunc returns the underlying scan function.
func (c *StaticCollection) ScanFunc() ScanFunc {
	return c.scanFunc
}

// Scan implements Collection interface.
func (c *StaticCollection) Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error) {
	return c.scanFunc(ctx, opts)
}
