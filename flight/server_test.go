package flight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/auth"
	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/internal/metrics"
	"github.com/hugr-lab/docquery/query"
)

// testServer runs the Flight handlers on a loopback listener.
type testServer struct {
	grpcServer *grpc.Server
	address    string
	metrics    *metrics.Metrics
}

func newTestServer(t *testing.T, cat catalog.Catalog, authenticator auth.Authenticator, opts Options) *testServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	opts.Metrics = m

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	srv, err := NewServer(cat, memory.DefaultAllocator, logger, lis.Addr().String(), opts)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryMetricsInterceptor(m), UnaryServerInterceptor(authenticator)),
		grpc.ChainStreamInterceptor(StreamMetricsInterceptor(m), StreamServerInterceptor(authenticator)),
	)
	RegisterFlightServer(grpcServer, srv)

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(grpcServer.Stop)

	return &testServer{grpcServer: grpcServer, address: lis.Addr().String(), metrics: m}
}

func (s *testServer) client(t *testing.T) flight.Client {
	t.Helper()
	client, err := flight.NewClientWithMiddleware(s.address, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// peopleCatalog holds main.people (100 documents, indexed on age and city)
// and main.orders (empty, unindexed).
func peopleCatalog(t *testing.T) *catalog.StaticCatalog {
	t.Helper()
	schema := catalog.DocumentSchema(
		arrow.Field{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		arrow.Field{Name: "city", Type: arrow.BinaryTypes.String, Nullable: true},
	)
	people := catalog.NewMemoryCollection("people", "people directory", schema,
		query.FieldIndex{Collection: "people", Segments: []query.Segment{
			{Field: filter.MustFieldPath("age"), Kind: query.SegmentAscending},
		}},
		query.FieldIndex{Collection: "people", Segments: []query.Segment{
			{Field: filter.MustFieldPath("city"), Kind: query.SegmentAscending},
		}},
	)
	docs := make([]filter.Document, 100)
	for i := range docs {
		docs[i] = filter.Document{
			ID: fmt.Sprintf("p%03d", i),
			Fields: map[string]filter.Value{
				"age":  filter.Int(int64(i)),
				"city": filter.String([]string{"Berlin", "Paris", "Rome", "Oslo"}[i%4]),
			},
		}
	}
	if _, err := people.Insert(docs...); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	orders := catalog.NewMemoryCollection("orders", "", catalog.DocumentSchema(
		arrow.Field{Name: "total", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	))

	cat := catalog.NewStaticCatalog()
	cat.AddSchema("main", "", map[string]catalog.Collection{"people": people, "orders": orders})
	return cat
}

func cmdDescriptor(t *testing.T, req any) *flight.FlightDescriptor {
	t.Helper()
	cmd, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: cmd}
}

// fetch runs DoGet on the first endpoint of info and decodes every row.
func fetch(ctx context.Context, t *testing.T, client flight.Client, info *flight.FlightInfo) []filter.Document {
	t.Helper()
	stream, err := client.DoGet(ctx, info.Endpoint[0].Ticket)
	if err != nil {
		t.Fatalf("DoGet() error: %v", err)
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		t.Fatalf("NewRecordReader() error: %v", err)
	}
	defer reader.Release()

	var docs []filter.Document
	for reader.Next() {
		batch, err := catalog.RecordToDocuments(reader.Record())
		if err != nil {
			t.Fatalf("RecordToDocuments() error: %v", err)
		}
		docs = append(docs, batch...)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader error: %v", err)
	}
	return docs
}

func TestServerListFlights(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		criteria string
		want     int
	}{
		{name: "all schemas", want: 2},
		{name: "matching schema", criteria: "main", want: 2},
		{name: "other schema", criteria: "archive", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := client.ListFlights(ctx, &flight.Criteria{Expression: []byte(tt.criteria)})
			if err != nil {
				t.Fatalf("ListFlights() error: %v", err)
			}
			comments := map[string]string{}
			for {
				info, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("Recv() error: %v", err)
				}
				path := info.GetFlightDescriptor().GetPath()
				if len(path) != 2 || path[0] != "main" {
					t.Errorf("unexpected descriptor path %v", path)
				}
				comments[path[1]] = string(info.GetAppMetadata())
			}
			if len(comments) != tt.want {
				t.Fatalf("got %d flights, want %d", len(comments), tt.want)
			}
			if tt.want > 0 && comments["people"] != "people directory" {
				t.Errorf("people metadata = %q", comments["people"])
			}
		})
	}
}

func TestServerQuery(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      QueryRequest
		wantIDs  []string
		wantPlan string
		columns  int
	}{
		{
			name: "conjunction",
			req: QueryRequest{
				Schema: "main", Collection: "people",
				Filter: json.RawMessage(`{"op":"and","filters":[{"field":"city","op":"==","value":"Rome"},{"field":"age","op":"<","value":12}]}`),
			},
			wantIDs:  []string{"p002", "p006", "p010"},
			wantPlan: "and(city == \"Rome\", age < 12) -> people(age asc)",
			columns:  3,
		},
		{
			name: "range with projection and limit",
			req: QueryRequest{
				Schema: "main", Collection: "people",
				Filter:  json.RawMessage(`{"field":"age","op":">=","value":95}`),
				Columns: []string{"__name__", "age"},
				Limit:   3,
			},
			wantIDs:  []string{"p095", "p096", "p097"},
			wantPlan: "age >= 95 -> people(age asc)",
			columns:  2,
		},
		{
			name: "disjunction",
			req: QueryRequest{
				Schema: "main", Collection: "people",
				Filter: json.RawMessage(`{"op":"or","filters":[{"field":"age","op":"==","value":1},{"field":"city","op":"in","value":["Oslo"]}]}`),
				Limit:  3,
			},
			wantIDs:  []string{"p001", "p003", "p007"},
			wantPlan: "age == 1 -> people(age asc)\ncity == \"Oslo\" -> people(city asc)",
			columns:  3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := client.GetFlightInfo(ctx, cmdDescriptor(t, tt.req))
			if err != nil {
				t.Fatalf("GetFlightInfo() error: %v", err)
			}
			if got := string(info.GetAppMetadata()); got != tt.wantPlan {
				t.Errorf("plan = %q, want %q", got, tt.wantPlan)
			}
			schema, err := flight.DeserializeSchema(info.GetSchema(), memory.DefaultAllocator)
			if err != nil {
				t.Fatalf("DeserializeSchema() error: %v", err)
			}
			if schema.NumFields() != tt.columns {
				t.Errorf("schema has %d fields, want %d", schema.NumFields(), tt.columns)
			}
			if loc := info.Endpoint[0].GetLocation(); len(loc) != 1 || loc[0].GetUri() != "grpc://"+srv.address {
				t.Errorf("unexpected endpoint location %v", loc)
			}

			docs := fetch(ctx, t, client, info)
			if len(docs) != len(tt.wantIDs) {
				t.Fatalf("got %d documents, want %d", len(docs), len(tt.wantIDs))
			}
			for i, doc := range docs {
				if doc.ID != tt.wantIDs[i] {
					t.Errorf("docs[%d].ID = %s, want %s", i, doc.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestServerPathDescriptor(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	info, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"main", "people"},
	})
	if err != nil {
		t.Fatalf("GetFlightInfo() error: %v", err)
	}
	if docs := fetch(ctx, t, client, info); len(docs) != 100 {
		t.Errorf("got %d documents, want 100", len(docs))
	}
}

func TestServerErrors(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	tests := []struct {
		name string
		desc *flight.FlightDescriptor
		want codes.Code
	}{
		{
			name: "malformed command",
			desc: &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: []byte("{")},
			want: codes.InvalidArgument,
		},
		{
			name: "unknown operator",
			desc: cmdDescriptor(t, QueryRequest{Schema: "main", Collection: "people",
				Filter: json.RawMessage(`{"field":"age","op":"~","value":1}`)}),
			want: codes.InvalidArgument,
		},
		{
			name: "two inequality fields",
			desc: cmdDescriptor(t, QueryRequest{Schema: "main", Collection: "people",
				Filter: json.RawMessage(`{"op":"and","filters":[{"field":"age","op":">","value":1},{"field":"city","op":"!=","value":"Rome"}]}`)}),
			want: codes.InvalidArgument,
		},
		{
			name: "unknown collection",
			desc: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"main", "missing"}},
			want: codes.NotFound,
		},
		{
			name: "unknown schema",
			desc: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"archive", "people"}},
			want: codes.NotFound,
		},
		{
			name: "short path",
			desc: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"main"}},
			want: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetFlightInfo(ctx, tt.desc)
			if status.Code(err) != tt.want {
				t.Errorf("GetFlightInfo() code = %v, want %v (err: %v)", status.Code(err), tt.want, err)
			}
		})
	}

	t.Run("invalid ticket", func(t *testing.T) {
		stream, err := client.DoGet(ctx, &flight.Ticket{Ticket: []byte("garbage")})
		if err == nil {
			_, err = stream.Recv()
		}
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("DoGet() code = %v, want InvalidArgument (err: %v)", status.Code(err), err)
		}
	})
}

// brokenCatalog panics when the "broken" schema is looked up.
type brokenCatalog struct {
	*catalog.StaticCatalog
}

func (c brokenCatalog) Schema(ctx context.Context, name string) (catalog.Schema, error) {
	if name == "broken" {
		panic("catalog lookup failed")
	}
	return c.StaticCatalog.Schema(ctx, name)
}

func TestServerRecoversPanics(t *testing.T) {
	cat := peopleCatalog(t)
	faulty := catalog.NewStaticCollection("faulty", "", catalog.DocumentSchema(),
		func(context.Context, *catalog.ScanOptions) (array.RecordReader, error) {
			panic("scan failed")
		})
	cat.AddSchema("extra", "", map[string]catalog.Collection{"faulty": faulty})

	srv := newTestServer(t, brokenCatalog{cat}, nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	_, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"broken", "people"}})
	if status.Code(err) != codes.Internal {
		t.Errorf("GetFlightInfo() code = %v, want Internal (err: %v)", status.Code(err), err)
	}

	info, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"extra", "faulty"}})
	if err != nil {
		t.Fatalf("GetFlightInfo() error: %v", err)
	}
	stream, err := client.DoGet(ctx, info.Endpoint[0].Ticket)
	if err == nil {
		_, err = stream.Recv()
	}
	if status.Code(err) != codes.Internal || !strings.Contains(err.Error(), "Scan panicked: scan failed") {
		t.Errorf("DoGet() code = %v, want Internal from the recovered panic (err: %v)", status.Code(err), err)
	}

	// The server keeps serving after both panics.
	if _, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"main", "people"}}); err != nil {
		t.Errorf("GetFlightInfo() after panics: %v", err)
	}
}

func TestServerAuthentication(t *testing.T) {
	tokenAuth := auth.NewTokenAuth(
		map[string]string{"t-admin": "admin", "t-orders": "clerk"},
		auth.Grant{Identity: "clerk", Collections: []string{"main.orders"}},
	)
	srv := newTestServer(t, peopleCatalog(t), tokenAuth, Options{Authorizer: tokenAuth})
	client := srv.client(t)
	desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"main", "people"}}

	tests := []struct {
		name  string
		token string
		want  codes.Code
	}{
		{name: "missing token", want: codes.Unauthenticated},
		{name: "unknown token", token: "nope", want: codes.Unauthenticated},
		{name: "granted", token: "t-admin", want: codes.OK},
		{name: "not granted", token: "t-orders", want: codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.token != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tt.token)
			}
			_, err := client.GetFlightInfo(ctx, desc)
			if status.Code(err) != tt.want {
				t.Errorf("GetFlightInfo() code = %v, want %v (err: %v)", status.Code(err), tt.want, err)
			}
		})
	}

	t.Run("listing hides forbidden collections", func(t *testing.T) {
		ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer t-orders")
		stream, err := client.ListFlights(ctx, &flight.Criteria{})
		if err != nil {
			t.Fatalf("ListFlights() error: %v", err)
		}
		var names []string
		for {
			info, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Recv() error: %v", err)
			}
			names = append(names, info.GetFlightDescriptor().GetPath()[1])
		}
		if len(names) != 1 || names[0] != "orders" {
			t.Errorf("listed %v, want [orders]", names)
		}
	})

	if got := testutil.ToFloat64(srv.metrics.Requests.WithLabelValues("GetFlightInfo", codes.Unauthenticated.String())); got != 2 {
		t.Errorf("unauthenticated GetFlightInfo count = %v, want 2", got)
	}
}

func TestServerExplain(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	body, err := json.Marshal(QueryRequest{
		Schema: "main", Collection: "people",
		Filter: json.RawMessage(`{"op":"and","filters":[{"field":"age","op":">","value":30},{"op":"or","filters":[{"field":"city","op":"==","value":"Rome"},{"field":"city","op":"==","value":"Oslo"}]}]}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := client.DoAction(ctx, &flight.Action{Type: ActionExplain, Body: body})
	if err != nil {
		t.Fatalf("DoAction() error: %v", err)
	}
	res, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	result, err := ParseExplainResult(res.GetBody())
	if err != nil {
		t.Fatalf("ParseExplainResult() error: %v", err)
	}

	wantLeaves := []string{"age > 30", `city == "Rome"`, `city == "Oslo"`}
	if len(result.Leaves) != len(wantLeaves) {
		t.Fatalf("leaves = %v, want %v", result.Leaves, wantLeaves)
	}
	for i, leaf := range wantLeaves {
		if result.Leaves[i] != leaf {
			t.Errorf("leaves[%d] = %s, want %s", i, result.Leaves[i], leaf)
		}
	}
	if len(result.Terms) != 2 {
		t.Fatalf("got %d terms, want 2: %+v", len(result.Terms), result.Terms)
	}
	if result.FullScan {
		t.Error("expected every term to be served by an index")
	}
	for _, term := range result.Terms {
		if term.Index != "people(age asc)" {
			t.Errorf("index for %s = %s, want people(age asc)", term.Term, term.Index)
		}
		if term.IdealIndex != "people(city asc, age asc)" {
			t.Errorf("ideal index for %s = %s", term.Term, term.IdealIndex)
		}
	}
	if got := testutil.ToFloat64(srv.metrics.Plans.WithLabelValues("index")); got != 1 {
		t.Errorf("index plans = %v, want 1", got)
	}

	t.Run("list indexes", func(t *testing.T) {
		stream, err := client.DoAction(ctx, &flight.Action{
			Type: ActionListIndexes,
			Body: []byte(`{"schema":"main","collection":"people"}`),
		})
		if err != nil {
			t.Fatalf("DoAction() error: %v", err)
		}
		var got []string
		for {
			res, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Recv() error: %v", err)
			}
			got = append(got, string(res.GetBody()))
		}
		if len(got) != 2 || got[0] != "people(age asc)" || got[1] != "people(city asc)" {
			t.Errorf("indexes = %v", got)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		stream, err := client.DoAction(ctx, &flight.Action{Type: "drop_table"})
		if err == nil {
			_, err = stream.Recv()
		}
		if status.Code(err) != codes.Unimplemented {
			t.Errorf("code = %v, want Unimplemented", status.Code(err))
		}
	})
}

func TestServerFilterCache(t *testing.T) {
	srv := newTestServer(t, peopleCatalog(t), nil, Options{})
	client := srv.client(t)
	ctx := context.Background()

	info, err := client.GetFlightInfo(ctx, cmdDescriptor(t, QueryRequest{
		Schema: "main", Collection: "people",
		Filter: json.RawMessage(`{"field":"city","op":"==","value":"Paris"}`),
	}))
	if err != nil {
		t.Fatalf("GetFlightInfo() error: %v", err)
	}
	for range 3 {
		if docs := fetch(ctx, t, client, info); len(docs) != 25 {
			t.Fatalf("got %d documents, want 25", len(docs))
		}
	}

	if got := testutil.ToFloat64(srv.metrics.FilterCache.WithLabelValues("miss")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(srv.metrics.FilterCache.WithLabelValues("hit")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(srv.metrics.Rows.WithLabelValues("people")); got != 75 {
		t.Errorf("rows streamed = %v, want 75", got)
	}
}
