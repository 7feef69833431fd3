package docquery

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/query"
)

// SimpleCollectionDef defines a collection backed by a scan function.
// Used with SchemaBuilder.SimpleCollection().
type SimpleCollectionDef struct {
	// Name is the collection name (e.g., "users", "orders").
	// REQUIRED: MUST be non-empty and unique within schema.
	Name string

	// Comment is optional collection documentation.
	Comment string

	// Schema is the Arrow schema of the records. The first column
	// should be catalog.KeyColumn; use catalog.DocumentSchema.
	// REQUIRED: MUST NOT be nil.
	Schema *arrow.Schema

	// ScanFunc provides the records. It receives the filter and is expected
	// to return only matching documents.
	// REQUIRED: MUST NOT be nil.
	ScanFunc catalog.ScanFunc

	// Indexes are the field indexes the planner may choose from.
	// OPTIONAL: Each index's Collection must equal Name.
	Indexes []query.FieldIndex
}

// CatalogBuilder builds static catalogs using fluent API.
// Not thread-safe - use only during initialization.
type CatalogBuilder struct {
	schemas []*schemaBuilder
	built   bool
}

// NewCatalogBuilder creates a new fluent catalog builder.
//
// Example:
//
//	cat, err := docquery.NewCatalogBuilder().
//	    Schema("main").
//	        Collection(people).
//	        SimpleCollection(...).
//	    Build()
func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{}
}

// Schema starts defining a new schema.
// Schema name MUST be non-empty and unique within catalog.
func (cb *CatalogBuilder) Schema(name string) *SchemaBuilder {
	sb := &schemaBuilder{name: name, catalogBuilder: cb}
	cb.schemas = append(cb.schemas, sb)
	return &SchemaBuilder{builder: sb}
}

// Build finalizes the catalog and returns immutable Catalog implementation.
// Can only be called once.
// Returns error if catalog is invalid (e.g., duplicate schema names).
func (cb *CatalogBuilder) Build() (catalog.Catalog, error) {
	if cb.built {
		return nil, fmt.Errorf("catalog already built")
	}

	seenNames := make(map[string]bool)
	for _, sb := range cb.schemas {
		if sb.name == "" {
			return nil, fmt.Errorf("schema name cannot be empty")
		}
		if seenNames[sb.name] {
			return nil, fmt.Errorf("duplicate schema name: %s", sb.name)
		}
		seenNames[sb.name] = true

		collNames := make(map[string]bool)
		for _, coll := range sb.collections {
			if err := validateCollection(sb.name, coll); err != nil {
				return nil, err
			}
			if collNames[coll.Name()] {
				return nil, fmt.Errorf("duplicate collection name %s in schema %s", coll.Name(), sb.name)
			}
			collNames[coll.Name()] = true
		}
	}

	cb.built = true

	cat := catalog.NewStaticCatalog()
	for _, sb := range cb.schemas {
		colls := make(map[string]catalog.Collection, len(sb.collections))
		for _, coll := range sb.collections {
			colls[coll.Name()] = coll
		}
		cat.AddSchema(sb.name, sb.comment, colls)
	}
	return cat, nil
}

func validateCollection(schemaName string, coll catalog.Collection) error {
	if coll == nil {
		return fmt.Errorf("nil collection in schema %s", schemaName)
	}
	if coll.Name() == "" {
		return fmt.Errorf("collection name cannot be empty in schema %s", schemaName)
	}
	if coll.ArrowSchema() == nil {
		return fmt.Errorf("collection %s.%s has nil schema", schemaName, coll.Name())
	}
	if catalog.FindKeyColumn(coll.ArrowSchema()) < 0 {
		return fmt.Errorf("collection %s.%s has no %s column", schemaName, coll.Name(), catalog.KeyColumn)
	}
	if sc, ok := coll.(*catalog.StaticCollection); ok && sc.ScanFunc() == nil {
		return fmt.Errorf("collection %s.%s has nil scan function", schemaName, coll.Name())
	}
	if indexed, ok := coll.(catalog.IndexedCollection); ok {
		for _, idx := range indexed.Indexes() {
			if idx.Collection != coll.Name() {
				return fmt.Errorf("index %s does not belong to collection %s.%s", idx, schemaName, coll.Name())
			}
			if err := idx.Validate(); err != nil {
				return fmt.Errorf("collection %s.%s: %w", schemaName, coll.Name(), err)
			}
		}
	}
	return nil
}

// SchemaBuilder builds a schema within a catalog.
// Not thread-safe - use only during initialization.
type SchemaBuilder struct {
	builder *schemaBuilder
}

// schemaBuilder is the internal schema builder implementation.
type schemaBuilder struct {
	name           string
	comment        string
	collections    []catalog.Collection
	catalogBuilder *CatalogBuilder
}

// Comment sets optional schema documentation.
// Returns self for method chaining.
func (sb *SchemaBuilder) Comment(comment string) *SchemaBuilder {
	sb.builder.comment = comment
	return sb
}

// Collection adds an existing collection (memory, DuckDB or custom).
// Returns self for method chaining.
func (sb *SchemaBuilder) Collection(coll catalog.Collection) *SchemaBuilder {
	sb.builder.collections = append(sb.builder.collections, coll)
	return sb
}

// SimpleCollection adds a collection backed by a scan function.
// Returns self for method chaining.
//
// Example:
//
//	schema.SimpleCollection(docquery.SimpleCollectionDef{
//	    Name:     "users",
//	    Comment:  "User accounts",
//	    Schema:   userSchema,
//	    ScanFunc: scanUsers,
//	})
func (sb *SchemaBuilder) SimpleCollection(def SimpleCollectionDef) *SchemaBuilder {
	coll := catalog.NewStaticCollection(def.Name, def.Comment, def.Schema, def.ScanFunc, def.Indexes...)
	sb.builder.collections = append(sb.builder.collections, coll)
	return sb
}

// Schema starts a new schema in the same catalog.
// Returns the new SchemaBuilder.
func (sb *SchemaBuilder) Schema(name string) *SchemaBuilder {
	return sb.builder.catalogBuilder.Schema(name)
}

// Build finalizes the catalog.
// Delegates to CatalogBuilder.Build().
func (sb *SchemaBuilder) Build() (catalog.Catalog, error) {
	return sb.builder.catalogBuilder.Build()
}
