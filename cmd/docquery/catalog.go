package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/docquery"
	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/query"
)

// buildCatalog creates the collections described by cfg.
// The returned close function releases the DuckDB connection, if one was opened.
func buildCatalog(ctx context.Context, cfg *Config, logger *slog.Logger) (catalog.Catalog, func() error, error) {
	var db *sql.DB
	closeDB := func() error {
		if db == nil {
			return nil
		}
		return db.Close()
	}
	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		conn, err := sql.Open("duckdb", cfg.DuckDB)
		if err != nil {
			return nil, fmt.Errorf("open duckdb: %w", err)
		}
		for _, stmt := range cfg.DuckDBInit {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("duckdb init %q: %w", stmt, err)
			}
		}
		db = conn
		return db, nil
	}

	builder := docquery.NewCatalogBuilder()
	for _, sc := range cfg.Schemas {
		sb := builder.Schema(sc.Name).Comment(sc.Comment)
		for _, cc := range sc.Collections {
			coll, err := buildCollection(cc, openDB, logger)
			if err != nil {
				closeDB()
				return nil, nil, fmt.Errorf("collection %s.%s: %w", sc.Name, cc.Name, err)
			}
			sb.Collection(coll)
			logger.Info("Collection loaded", "schema", sc.Name, "collection", cc.Name, "table", cc.Table)
		}
	}

	cat, err := builder.Build()
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return cat, closeDB, nil
}

func buildCollection(cc CollectionConfig, openDB func() (*sql.DB, error), logger *slog.Logger) (catalog.Collection, error) {
	fields := make([]arrow.Field, 0, len(cc.Fields))
	for _, fc := range cc.Fields {
		f, err := catalog.NewField(fc.Name, fc.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	schema := catalog.DocumentSchema(fields...)

	indexes := make([]query.FieldIndex, 0, len(cc.Indexes))
	for _, s := range cc.Indexes {
		idx, err := parseIndex(cc.Name, s)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	if cc.Table != "" {
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return catalog.NewDuckDBCollection(db, cc.Name, schema, catalog.DuckDBOptions{
			Table:     cc.Table,
			KeyColumn: cc.KeyColumn,
			Comment:   cc.Comment,
			Indexes:   indexes,
			Logger:    logger,
		})
	}

	coll := catalog.NewMemoryCollection(cc.Name, cc.Comment, schema, indexes...)
	if cc.Data == "" {
		return coll, nil
	}
	data, err := os.ReadFile(cc.Data)
	if err != nil {
		return nil, err
	}
	docs, err := catalog.ParseDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cc.Data, err)
	}
	if _, err := coll.Insert(docs...); err != nil {
		return nil, fmt.Errorf("%s: %w", cc.Data, err)
	}
	return coll, nil
}

// parseIndex accepts "people(age, city desc)" or the bare segment list "age, city desc".
func parseIndex(collection, s string) (query.FieldIndex, error) {
	if !strings.Contains(s, "(") {
		s = collection + "(" + s + ")"
	}
	idx, err := query.ParseFieldIndex(s)
	if err != nil {
		return query.FieldIndex{}, err
	}
	if idx.Collection != collection {
		return query.FieldIndex{}, fmt.Errorf("index %s does not belong to collection %s", idx, collection)
	}
	return idx, nil
}
