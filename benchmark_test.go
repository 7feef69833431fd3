package docquery_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/query"
)

func benchFilter() filter.Filter {
	return filter.And(
		filter.Where("age", filter.OpGreaterThan, 21),
		filter.Or(
			filter.Where("city", filter.OpEqual, "Berlin"),
			filter.Where("city", filter.OpEqual, "Paris"),
			filter.And(
				filter.Where("vip", filter.OpEqual, true),
				filter.Where("tags", filter.OpArrayContains, "gold"),
			),
		),
	)
}

func benchCollection(b *testing.B, rows int) *catalog.MemoryCollection {
	b.Helper()
	coll := catalog.NewMemoryCollection("people", "", catalog.DocumentSchema(
		arrow.Field{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		arrow.Field{Name: "city", Type: arrow.BinaryTypes.String, Nullable: true},
		arrow.Field{Name: "vip", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		arrow.Field{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	))
	docs := make([]filter.Document, rows)
	for i := range docs {
		docs[i] = filter.Document{
			ID: fmt.Sprintf("p%07d", i),
			Fields: map[string]filter.Value{
				"age":  filter.Int(int64(i % 90)),
				"city": filter.String([]string{"Berlin", "Paris", "Rome"}[i%3]),
				"vip":  filter.Bool(i%5 == 0),
				"tags": filter.Array(filter.String([]string{"gold", "silver"}[i%2])),
			},
		}
	}
	if _, err := coll.Insert(docs...); err != nil {
		b.Fatalf("Insert failed: %v", err)
	}
	return coll
}

// BenchmarkFlattenedFilters benchmarks repeated leaf lookups on a shared filter.
func BenchmarkFlattenedFilters(b *testing.B) {
	f := benchFilter()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if len(f.FlattenedFilters()) != 5 {
				b.Fatal("unexpected leaf count")
			}
		}
	})
}

// BenchmarkMatches benchmarks evaluating a nested filter against one document.
func BenchmarkMatches(b *testing.B) {
	f := benchFilter()
	doc := filter.Document{ID: "p1", Fields: map[string]filter.Value{
		"age":  filter.Int(30),
		"city": filter.String("Rome"),
		"vip":  filter.Bool(true),
		"tags": filter.Array(filter.String("gold")),
	}}

	b.ReportAllocs()
	for b.Loop() {
		if !f.Matches(doc) {
			b.Fatal("document should match")
		}
	}
}

// BenchmarkCollectionScan benchmarks filtered scans with varying row counts.
func BenchmarkCollectionScan(b *testing.B) {
	for _, rows := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("rows_%d", rows), func(b *testing.B) {
			coll := benchCollection(b, rows)
			opts := &catalog.ScanOptions{Filter: benchFilter()}
			ctx := context.Background()

			b.ReportAllocs()
			for b.Loop() {
				reader, err := coll.Scan(ctx, opts)
				if err != nil {
					b.Fatalf("Scan failed: %v", err)
				}
				for reader.Next() {
					_ = reader.Record()
				}
				reader.Release()
			}
			b.ReportMetric(float64(rows), "rows/scan")
		})
	}
}

// BenchmarkPlan benchmarks DNF expansion and index selection.
func BenchmarkPlan(b *testing.B) {
	planner := query.NewPlanner(nil)
	for _, field := range []string{"age", "city", "vip"} {
		err := planner.AddIndex(query.FieldIndex{Collection: "people", Segments: []query.Segment{
			{Field: filter.MustFieldPath(field), Kind: query.SegmentAscending},
		}})
		if err != nil {
			b.Fatal(err)
		}
	}
	q, err := query.New("people").WithFilter(benchFilter())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		if plan := planner.Plan(q); len(plan.Terms) != 3 {
			b.Fatalf("got %d terms, want 3", len(plan.Terms))
		}
	}
}

// BenchmarkConcurrentScans benchmarks concurrent collection scans.
func BenchmarkConcurrentScans(b *testing.B) {
	coll := benchCollection(b, 1000)
	opts := &catalog.ScanOptions{Filter: filter.Where("city", filter.OpIn, []any{"Rome", "Oslo"})}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			reader, err := coll.Scan(ctx, opts)
			if err != nil {
				b.Fatalf("Scan failed: %v", err)
			}
			for reader.Next() {
				_ = reader.Record()
			}
			reader.Release()
		}
	})
}
