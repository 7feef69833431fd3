package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/query"
)

// DuckDBCollection serves documents stored in a DuckDB table.
//
// The collection schema columns are read from the table columns of the same
// name; KeyColumn is read from the table's key column. Filters are pushed down
// as a WHERE clause where possible and always re-evaluated on the returned
// rows, so the SQL translation only has to select a superset.
type DuckDBCollection struct {
	db        *sql.DB
	name      string
	comment   string
	table     string
	keyColumn string
	schema    *arrow.Schema
	indexes   []query.FieldIndex
	encoder   *filter.DuckDBEncoder
	logger    *slog.Logger
	alloc     memory.Allocator
}

// DuckDBOptions configures a DuckDBCollection.
type DuckDBOptions struct {
	// Table is the table or view name. Defaults to the collection name.
	Table string
	// KeyColumn is the table column holding document ids. Defaults to "id".
	KeyColumn string
	// Comment is optional collection documentation.
	Comment string
	// Indexes declared for planning.
	Indexes []query.FieldIndex
	// Logger receives pushdown diagnostics. Defaults to discarding.
	Logger *slog.Logger
}

// NewDuckDBCollection creates a collection over a DuckDB table.
// Geometry columns are not supported.
func NewDuckDBCollection(db *sql.DB, name string, schema *arrow.Schema, opts DuckDBOptions) (*DuckDBCollection, error) {
	if FindKeyColumn(schema) < 0 {
		return nil, fmt.Errorf("catalog: collection %s: schema has no %s column", name, KeyColumn)
	}
	for _, f := range schema.Fields() {
		if isGeometry(f.Type) {
			return nil, fmt.Errorf("catalog: collection %s: geometry column %s is not supported by DuckDB collections", name, f.Name)
		}
	}
	if opts.Table == "" {
		opts.Table = name
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "id"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &DuckDBCollection{
		db:        db,
		name:      name,
		comment:   opts.Comment,
		table:     opts.Table,
		keyColumn: opts.KeyColumn,
		schema:    schema,
		indexes:   opts.Indexes,
		encoder: filter.NewDuckDBEncoder(&filter.EncoderOptions{
			ColumnMapping: map[string]string{KeyColumn: opts.KeyColumn},
			Schema:        schema,
		}),
		logger: opts.Logger,
		alloc:  memory.DefaultAllocator,
	}, nil
}

// Name implements Collection interface.
func (c *DuckDBCollection) Name() string { return c.name }

// Comment implements Collection interface.
func (c *DuckDBCollection) Comment() string { return c.comment }

// ArrowSchema implements Collection interface.
func (c *DuckDBCollection) ArrowSchema() *arrow.Schema { return c.schema }

// Indexes implements IndexedCollection interface.
func (c *DuckDBCollection) Indexes() []query.FieldIndex { return c.indexes }

// SelectSQL returns the statement Scan runs for f.
func (c *DuckDBCollection) SelectSQL(f filter.Filter) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, field := range c.schema.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		if field.Name == KeyColumn {
			sb.WriteString(quoteSQLIdentifier(c.keyColumn))
			continue
		}
		sb.WriteString(quoteSQLIdentifier(field.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteSQLIdentifier(c.table))
	if where := c.encoder.Encode(f); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(quoteSQLIdentifier(c.keyColumn))
	return sb.String()
}

// Scan implements Collection interface.
func (c *DuckDBCollection) Scan(ctx context.Context, opts *ScanOptions) (array.RecordReader, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	stmt := c.SelectSQL(opts.Filter)
	c.logger.DebugContext(ctx, "duckdb scan", "collection", c.name, "sql", stmt)

	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("catalog: collection %s: query: %w", c.name, err)
	}
	defer rows.Close()

	fields := c.schema.Fields()
	cells := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range cells {
		ptrs[i] = &cells[i]
	}

	var (
		docs     []filter.Document
		residual int
	)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("catalog: collection %s: scan row: %w", c.name, err)
		}
		doc, err := rowDocument(fields, cells)
		if err != nil {
			return nil, fmt.Errorf("catalog: collection %s: %w", c.name, err)
		}
		if !opts.Filter.Matches(doc) {
			residual++
			continue
		}
		docs = append(docs, doc)
		if opts.Limit > 0 && int64(len(docs)) >= opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: collection %s: read rows: %w", c.name, err)
	}
	if residual > 0 {
		c.logger.DebugContext(ctx, "residual filter dropped rows", "collection", c.name, "rows", residual)
	}

	return documentsReader(c.alloc, ProjectSchema(c.schema, opts.Columns), docs, opts.batchSize())
}

func rowDocument(fields []arrow.Field, cells []any) (filter.Document, error) {
	doc := filter.Document{Fields: make(map[string]filter.Value, len(fields))}
	for i, field := range fields {
		if field.Name == KeyColumn {
			switch id := cells[i].(type) {
			case string:
				doc.ID = id
			case nil:
				return filter.Document{}, fmt.Errorf("null document id")
			default:
				doc.ID = fmt.Sprint(id)
			}
			continue
		}
		v, err := filter.ValueOf(cells[i])
		if err != nil {
			return filter.Document{}, fmt.Errorf("column %s: %w", field.Name, err)
		}
		doc.Fields[field.Name] = v
	}
	return doc, nil
}

func quoteSQLIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
