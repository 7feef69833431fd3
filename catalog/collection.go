package catalog

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/docquery/query"
)

// Collection is a named set of documents exposed as Arrow records.
// Implementations MUST be goroutine-safe.
type Collection interface {
	// Name returns the collection name. MUST return non-empty string.
	Name() string

	// Comment returns optional collection documentation.
	Comment() string

	// ArrowSchema returns the record schema. The first column is KeyColumn.
	ArrowSchema() *arrow.Schema

	// Scan returns the documents matching opts.Filter as Arrow records.
	// Context allows cancellation; implementation MUST respect ctx.Done().
	// Caller MUST call reader.Release() to free memory.
	// The reader schema is ArrowSchema() projected to opts.Columns.
	Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error)
}

// IndexedCollection is implemented by collections that declare field indexes.
// The Flight server plans queries against them.
type IndexedCollection interface {
	Collection

	// Indexes returns the declared indexes. Each index's Collection is Name().
	Indexes() []query.FieldIndex
}
