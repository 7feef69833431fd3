// Package docquery provides a high-level API for serving document collections
// over Apache Arrow Flight with Firestore-style filters.
//
// The docquery package simplifies building query servers by:
//   - Registering Flight service handlers on an existing grpc.Server
//   - Providing a fluent catalog builder API for defining schemas and collections
//   - Validating queries and planning them against declared field indexes
//   - Handling authentication with bearer tokens and per-collection grants
//   - Exporting Prometheus metrics for requests, scans and the filter cache
//
// # Quick Start
//
//	package main
//
//	import (
//	    "log"
//	    "net"
//
//	    "github.com/apache/arrow-go/v18/arrow"
//	    "google.golang.org/grpc"
//
//	    "github.com/hugr-lab/docquery"
//	    "github.com/hugr-lab/docquery/catalog"
//	    "github.com/hugr-lab/docquery/filter"
//	)
//
//	func main() {
//	    people := catalog.NewMemoryCollection("people", "", catalog.DocumentSchema(
//	        arrow.Field{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
//	    ))
//	    people.Insert(filter.Document{ID: "alice", Fields: map[string]filter.Value{"age": filter.Int(34)}})
//
//	    cat, _ := docquery.NewCatalogBuilder().
//	        Schema("main").
//	            Collection(people).
//	        Build()
//
//	    config := docquery.ServerConfig{Catalog: cat}
//	    grpcServer := grpc.NewServer(docquery.ServerOptions(config)...)
//	    docquery.NewServer(grpcServer, config)
//	    lis, _ := net.Listen("tcp", ":50051")
//	    log.Println("docquery listening on :50051")
//	    grpcServer.Serve(lis)
//	}
//
// # Queries
//
// Clients call GetFlightInfo with a CMD descriptor holding a JSON query
// request (see flight.QueryRequest). The query is validated, planned, and
// encoded into an opaque ticket; the plan is returned as the FlightInfo
// AppMetadata. DoGet with that ticket streams the matching documents as
// Arrow records in document id order.
//
// # Server Lifecycle
//
// The package registers Flight service handlers on a user-provided grpc.Server
// but does NOT manage server lifecycle (start/stop/listen). This gives users
// full control over TLS, interceptors and graceful shutdown.
//
// # Authentication
//
//	auth := docquery.NewTokenAuth(
//	    map[string]string{"secret-api-key": "analyst"},
//	    docquery.Grant{Identity: "analyst", Collections: []string{"main.people"}},
//	)
//
//	config := docquery.ServerConfig{Catalog: cat, Auth: auth, Authorizer: auth}
//
// # Memory Management
//
// Arrow uses manual reference counting. Callers MUST call Release() on
// RecordReaders returned by scans and on records they build themselves.
package docquery
