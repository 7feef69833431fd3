package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/query"
)

// MemoryCollection keeps documents in memory and evaluates filters in-process.
type MemoryCollection struct {
	name    string
	comment string
	schema  *arrow.Schema
	indexes []query.FieldIndex
	alloc   memory.Allocator

	mu   sync.RWMutex
	docs map[string]filter.Document
}

// NewMemoryCollection creates an empty collection.
// The schema MUST contain KeyColumn; use DocumentSchema to build one.
func NewMemoryCollection(name, comment string, schema *arrow.Schema, indexes ...query.FieldIndex) *MemoryCollection {
	return &MemoryCollection{
		name:    name,
		comment: comment,
		schema:  schema,
		indexes: indexes,
		alloc:   memory.DefaultAllocator,
		docs:    make(map[string]filter.Document),
	}
}

// Name implements Collection interface.
func (c *MemoryCollection) Name() string { return c.name }

// Comment implements Collection interface.
func (c *MemoryCollection) Comment() string { return c.comment }

// ArrowSchema implements Collection interface.
func (c *MemoryCollection) ArrowSchema() *arrow.Schema { return c.schema }

// Indexes implements IndexedCollection interface.
func (c *MemoryCollection) Indexes() []query.FieldIndex { return c.indexes }

// SetAllocator sets the allocator used for scan results.
// It must be called before the collection is shared.
func (c *MemoryCollection) SetAllocator(mem memory.Allocator) {
	if mem != nil {
		c.alloc = mem
	}
}

// Insert stores documents. Documents without an id get a random UUID; the
// caller's slice is not modified. The batch is rejected as a whole if any
// document duplicates an existing id or does not fit the schema.
// Returns the stored ids in input order.
func (c *MemoryCollection) Insert(in ...filter.Document) ([]string, error) {
	docs := make([]filter.Document, len(in))
	copy(docs, in)
	ids := make([]string, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if _, dup := seen[docs[i].ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, docs[i].ID)
		}
		seen[docs[i].ID] = struct{}{}
		if err := CheckDocument(c.schema, docs[i]); err != nil {
			return nil, err
		}
		ids[i] = docs[i].ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.docs[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, id)
		}
	}
	for _, doc := range docs {
		c.docs[doc.ID] = doc
	}
	return ids, nil
}

// Get returns the document with the given id.
func (c *MemoryCollection) Get(id string) (filter.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return filter.Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// Delete removes a document.
func (c *MemoryCollection) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	delete(c.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (c *MemoryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// snapshot returns the stored documents ordered by id.
func (c *MemoryCollection) snapshot() []filter.Document {
	c.mu.RLock()
	docs := make([]filter.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}
	c.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Scan implements Collection interface. Documents are returned in id order.
// Batches are filtered concurrently; the limit applies after filtering.
func (c *MemoryCollection) Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	docs := c.snapshot()
	size := opts.batchSize()

	chunks := make([][]filter.Document, (len(docs)+size-1)/size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range chunks {
		lo := i * size
		hi := min(lo+size, len(docs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matched := make([]filter.Document, 0, hi-lo)
			for _, doc := range docs[lo:hi] {
				if opts.Filter.Matches(doc) {
					matched = append(matched, doc)
				}
			}
			chunks[i] = matched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matched := make([]filter.Document, 0)
	for _, chunk := range chunks {
		matched = append(matched, chunk...)
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return documentsReader(c.alloc, ProjectSchema(c.schema, opts.Columns), matched, size)
}

// documentsReader converts docs into records of at most size rows each.
func documentsReader(mem memory.Allocator, schema *arrow.Schema, docs []filter.Document, size int) (array.RecordReader, error) {
	records := make([]arrow.Record, 0, (len(docs)+size-1)/size)
	release := func() {
		for _, r := range records {
			r.Release()
		}
	}
	for lo := 0; lo < len(docs); lo += size {
		hi := min(lo+size, len(docs))
		rec, err := DocumentsToRecord(mem, schema, docs[lo:hi])
		if err != nil {
			release()
			return nil, err
		}
		records = append(records, rec)
	}

	reader, err := array.NewRecordReader(schema, records)
	// The reader retains each record.
	release()
	if err != nil {
		return nil, fmt.Errorf("catalog: create record reader: %w", err)
	}
	return reader, nil
}
