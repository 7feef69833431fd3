// Package flight provides Flight RPC handler implementations.
package flight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/auth"
	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/internal/metrics"
	"github.com/hugr-lab/docquery/internal/recovery"
	"github.com/hugr-lab/docquery/query"
)

// Options configures optional Server behavior.
type Options struct {
	// Authorizer restricts access per collection. Nil allows every collection.
	Authorizer auth.CollectionAuthorizer

	// FilterCacheSize is the number of decoded filters kept between requests.
	// Zero uses DefaultFilterCacheSize; negative disables the cache.
	FilterCacheSize int

	// Metrics receives request, scan and cache observations. Nil disables metrics.
	Metrics *metrics.Metrics
}

// Server implements the Flight service handlers.
// Embeds BaseFlightServer for forward compatibility with protocol changes.
type Server struct {
	flight.BaseFlightServer

	catalog    catalog.Catalog
	allocator  memory.Allocator
	logger     *slog.Logger
	address    string // Server's public address for FlightEndpoint locations
	authorizer auth.CollectionAuthorizer
	filters    *filterCache
	metrics    *metrics.Metrics
}

// NewServer creates a new Flight server with the given catalog and allocator.
// The logger is used for internal logging of errors and important events.
// The address parameter specifies the server's public address for FlightEndpoint locations.
func NewServer(cat catalog.Catalog, allocator memory.Allocator, logger *slog.Logger, address string, opts Options) (*Server, error) {
	size := opts.FilterCacheSize
	if size == 0 {
		size = DefaultFilterCacheSize
	}
	filters, err := newFilterCache(size, opts.Metrics)
	if err != nil {
		return nil, err
	}
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		catalog:    cat,
		allocator:  allocator,
		logger:     logger,
		address:    address,
		authorizer: opts.Authorizer,
		filters:    filters,
		metrics:    opts.Metrics,
	}, nil
}

// RegisterFlightServer registers the Flight service on the provided gRPC server.
// This follows the standard gRPC service registration pattern.
func RegisterFlightServer(grpcServer *grpc.Server, flightServer *Server) {
	flight.RegisterFlightServiceServer(grpcServer, flightServer)
}

// lookupCollection resolves schema/collection and checks the caller may read it.
func (s *Server) lookupCollection(ctx context.Context, schemaName, collName string) (catalog.Collection, error) {
	schema, err := recovery.Get(s.logger, "Schema", func() (catalog.Schema, error) {
		return s.catalog.Schema(ctx, schemaName)
	}, slog.String("schema", schemaName))
	if err != nil {
		s.logger.Error("Failed to get schema from catalog", "schema", schemaName, "error", err)
		return nil, toStatus(fmt.Errorf("failed to get schema: %w", err))
	}
	if schema == nil {
		return nil, status.Errorf(codes.NotFound, "schema not found: %s", schemaName)
	}

	coll, err := recovery.Get(s.logger, "Collection", func() (catalog.Collection, error) {
		return schema.Collection(ctx, collName)
	}, slog.String("schema", schemaName), slog.String("collection", collName))
	if err != nil {
		s.logger.Error("Failed to get collection from schema", "schema", schemaName, "collection", collName, "error", err)
		return nil, toStatus(fmt.Errorf("failed to get collection: %w", err))
	}
	if coll == nil {
		return nil, status.Errorf(codes.NotFound, "collection not found: %s.%s", schemaName, collName)
	}
	if coll.ArrowSchema() == nil {
		return nil, status.Errorf(codes.Internal, "collection %s.%s has nil Arrow schema", schemaName, collName)
	}

	if err := s.authorize(ctx, schemaName, collName); err != nil {
		return nil, err
	}
	return coll, nil
}

func (s *Server) authorize(ctx context.Context, schemaName, collName string) error {
	if s.authorizer == nil {
		return nil
	}
	if err := s.authorizer.AuthorizeCollection(ctx, schemaName, collName); err != nil {
		s.logger.Debug("Collection access denied",
			"identity", auth.IdentityFromContext(ctx),
			"schema", schemaName,
			"collection", collName,
		)
		return status.Errorf(codes.PermissionDenied, "collection authorization failed: %v", err)
	}
	return nil
}

// plan plans q against the indexes declared by coll.
func (s *Server) plan(coll catalog.Collection, q query.Query) query.Plan {
	planner := query.NewPlanner(s.logger)
	if indexed, ok := coll.(catalog.IndexedCollection); ok {
		for _, idx := range indexed.Indexes() {
			if err := planner.AddIndex(idx); err != nil {
				s.logger.Warn("Ignoring invalid index", "collection", coll.Name(), "index", idx.String(), "error", err)
			}
		}
	}
	p := planner.Plan(q)
	if s.metrics != nil {
		path := "index"
		if p.FullScan() {
			path = "scan"
		}
		s.metrics.Plans.WithLabelValues(path).Inc()
	}
	return p
}
