// Package catalog provides interfaces for defining document catalogs, schemas and collections
// served over Arrow Flight.
//
// The catalog package follows an interface-based design to support both static and custom implementations:
//   - Static catalogs: Built using the root package NewCatalogBuilder() fluent API (immutable, fast lookup)
//   - Custom catalogs: User implementations that can reflect live state
//
// Two collection implementations are provided: MemoryCollection evaluates
// filters in-process, DuckDBCollection pushes them down as SQL and re-checks
// the result.
//
// All interfaces are goroutine-safe and support context-based cancellation.
package catalog

import (
	"context"
)

// Catalog represents the top-level metadata container.
// All methods MUST be goroutine-safe.
type Catalog interface {
	// Schemas returns all schemas visible in this catalog.
	// Returns empty slice (not nil) if no schemas available.
	Schemas(ctx context.Context) ([]Schema, error)

	// Schema returns a specific schema by name.
	// Returns (nil, nil) if schema doesn't exist (not an error).
	Schema(ctx context.Context, name string) (Schema, error)
}

// Schema groups collections under a name.
// Implementations MUST be goroutine-safe.
type Schema interface {
	// Name returns the schema name. MUST return non-empty string.
	Name() string

	// Comment returns optional schema documentation.
	Comment() string

	// Collections returns all collections in this schema.
	// Returns empty slice (not nil) if none are available.
	Collections(ctx context.Context) ([]Collection, error)

	// Collection returns a specific collection by name.
	// Returns (nil, nil) if the collection doesn't exist.
	Collection(ctx context.Context, name string) (Collection, error)
}
