package catalog

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/docquery/filter"
)

// KeyColumn is the Arrow column holding the document id.
// It has the same name as the filter key field so key filters resolve to it.
const KeyColumn = filter.DocumentKeyField

// DefaultBatchSize is used when ScanOptions.BatchSize is zero.
const DefaultBatchSize = 1024

var (
	// ErrDuplicateDocument is returned when inserting a document whose id already exists.
	ErrDuplicateDocument = errors.New("catalog: duplicate document id")
	// ErrDocumentNotFound is returned by lookups of unknown ids.
	ErrDocumentNotFound = errors.New("catalog: document not found")
	// ErrSchemaMismatch is returned when a document field cannot be stored in its column.
	ErrSchemaMismatch = errors.New("catalog: document does not match schema")
)

// ScanOptions provides options for collection scans.
type ScanOptions struct {
	// Columns to return. If nil/empty, return all columns.
	Columns []string

	// Filter selects documents. The empty filter returns every document.
	Filter filter.Filter

	// Limit is maximum rows to return.
	// If 0 or negative, no limit.
	Limit int64

	// BatchSize is the maximum number of rows per record.
	// If 0, DefaultBatchSize is used.
	BatchSize int
}

func (o *ScanOptions) batchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// ScanFunc is a function type for collection data retrieval.
// User implements this to connect to their data source.
type ScanFunc func(ctx context.Context, opts *ScanOptions) (array.RecordReader, error)
