package docquery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery"
	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/filter"
)

// testServer wraps a Flight server for end-to-end testing.
type testServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	address    string
}

// newTestServer creates and starts a test Flight server.
func newTestServer(t *testing.T, config docquery.ServerConfig) *testServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	debugLevel := slog.LevelDebug
	config.Address = lis.Addr().String()
	config.LogLevel = &debugLevel

	grpcServer := grpc.NewServer(docquery.ServerOptions(config)...)
	if err := docquery.NewServer(grpcServer, config); err != nil {
		t.Fatalf("Failed to register server: %v", err)
	}

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	s := &testServer{grpcServer: grpcServer, listener: lis, address: lis.Addr().String()}
	t.Cleanup(s.stop)
	return s
}

// stop gracefully stops the test server.
func (s *testServer) stop() {
	s.grpcServer.GracefulStop()
	s.listener.Close()
}

func (s *testServer) client(t *testing.T) flight.Client {
	t.Helper()
	client, err := flight.NewClientWithMiddleware(s.address, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func booksCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	books := catalog.NewMemoryCollection("books", "library books", catalog.DocumentSchema(
		arrow.Field{Name: "title", Type: arrow.BinaryTypes.String, Nullable: true},
		arrow.Field{Name: "year", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		arrow.Field{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	))
	_, err := books.Insert(
		filter.Document{ID: "b1", Fields: map[string]filter.Value{
			"title": filter.String("Dune"), "year": filter.Int(1965),
			"tags": filter.Array(filter.String("scifi"), filter.String("classic")),
		}},
		filter.Document{ID: "b2", Fields: map[string]filter.Value{
			"title": filter.String("Neuromancer"), "year": filter.Int(1984),
			"tags": filter.Array(filter.String("scifi"), filter.String("cyberpunk")),
		}},
		filter.Document{ID: "b3", Fields: map[string]filter.Value{
			"title": filter.String("Emma"), "year": filter.Int(1815),
			"tags": filter.Array(filter.String("classic")),
		}},
		filter.Document{ID: "b4", Fields: map[string]filter.Value{
			"title": filter.String("Untitled"), "year": filter.Null(),
		}},
	)
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	cat, err := docquery.NewCatalogBuilder().
		Schema("library").
		Collection(books).
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return cat
}

func queryIDs(ctx context.Context, t *testing.T, client flight.Client, request string) ([]string, error) {
	t.Helper()
	info, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: []byte(request)})
	if err != nil {
		return nil, err
	}
	stream, err := client.DoGet(ctx, info.Endpoint[0].Ticket)
	if err != nil {
		return nil, err
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var ids []string
	for reader.Next() {
		docs, err := catalog.RecordToDocuments(reader.Record())
		if err != nil {
			t.Fatalf("RecordToDocuments() error: %v", err)
		}
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return ids, nil
}

func TestNewServerInvalidConfig(t *testing.T) {
	err := docquery.NewServer(grpc.NewServer(), docquery.ServerConfig{})
	if !errors.Is(err, docquery.ErrInvalidConfig) {
		t.Errorf("NewServer() error = %v, want ErrInvalidConfig", err)
	}
}

func TestServerQueries(t *testing.T) {
	srv := newTestServer(t, docquery.ServerConfig{Catalog: booksCatalog(t)})
	client := srv.client(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filter  string
		want    []string
		wantErr codes.Code
	}{
		{name: "no filter", filter: `null`, want: []string{"b1", "b2", "b3", "b4"}},
		{name: "range", filter: `{"field":"year","op":"<","value":1970}`, want: []string{"b1", "b3"}},
		{name: "array contains", filter: `{"field":"tags","op":"array-contains","value":"classic"}`, want: []string{"b1", "b3"}},
		{
			name:   "array contains any",
			filter: `{"field":"tags","op":"array-contains-any","value":["cyberpunk","classic"]}`,
			want:   []string{"b1", "b2", "b3"},
		},
		{name: "not equal skips null", filter: `{"field":"year","op":"!=","value":1984}`, want: []string{"b1", "b3"}},
		{name: "equal null", filter: `{"field":"year","op":"==","value":null}`, want: []string{"b4"}},
		{
			name:   "nested composite",
			filter: `{"op":"or","filters":[{"field":"title","op":"==","value":"Emma"},{"op":"and","filters":[{"field":"year","op":">","value":1980},{"field":"tags","op":"array-contains","value":"scifi"}]}]}`,
			want:   []string{"b2", "b3"},
		},
		{name: "document key", filter: `{"field":"__name__","op":"in","value":["b2","b4"]}`, want: []string{"b2", "b4"}},
		{
			name:    "null with range operator",
			filter:  `{"field":"year","op":">","value":null}`,
			wantErr: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := json.Marshal(map[string]any{
				"schema":     "library",
				"collection": "books",
				"filter":     json.RawMessage(tt.filter),
			})
			got, err := queryIDs(ctx, t, client, string(req))
			if tt.wantErr != codes.OK {
				if status.Code(err) != tt.wantErr {
					t.Fatalf("code = %v, want %v (err: %v)", status.Code(err), tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("query error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestServerAuthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tokens := docquery.NewTokenAuth(
		map[string]string{"reader-token": "reader", "guest-token": "guest"},
		docquery.Grant{Identity: "guest", Collections: []string{"public.*"}},
	)
	srv := newTestServer(t, docquery.ServerConfig{
		Catalog:    booksCatalog(t),
		Auth:       tokens,
		Authorizer: tokens,
		Registerer: reg,
	})
	client := srv.client(t)
	request := `{"schema":"library","collection":"books"}`

	tests := []struct {
		name  string
		token string
		want  codes.Code
	}{
		{name: "no token", want: codes.Unauthenticated},
		{name: "reader", token: "reader-token", want: codes.OK},
		{name: "guest without grant", token: "guest-token", want: codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.token != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tt.token)
			}
			ids, err := queryIDs(ctx, t, client, request)
			if status.Code(err) != tt.want {
				t.Fatalf("code = %v, want %v (err: %v)", status.Code(err), tt.want, err)
			}
			if tt.want == codes.OK && len(ids) != 4 {
				t.Errorf("got %d documents, want 4", len(ids))
			}
		})
	}

	n, err := testutil.GatherAndCount(reg, "docquery_flight_requests_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if n == 0 {
		t.Error("expected request metrics to be registered")
	}
	if got := gatheredValue(t, reg, "docquery_rows_streamed_total"); got != 4 {
		t.Errorf("rows streamed = %v, want 4", got)
	}
}

// gatheredValue returns the value of the single counter in the named family.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
