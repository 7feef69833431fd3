package docquery

import (
	"errors"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hugr-lab/docquery/auth"
	"github.com/hugr-lab/docquery/catalog"
)

// ServerConfig contains configuration for the docquery Flight server.
type ServerConfig struct {
	// Catalog provides schemas and collections.
	// REQUIRED: MUST NOT be nil.
	Catalog catalog.Catalog

	// Auth provides authentication logic.
	// OPTIONAL: If nil, no authentication (all requests allowed).
	Auth auth.Authenticator

	// Authorizer restricts which collections an identity may read.
	// OPTIONAL: If nil, every authenticated identity may read every collection.
	Authorizer auth.CollectionAuthorizer

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level

	// MaxMessageSize sets maximum gRPC message size in bytes.
	// OPTIONAL: If 0, uses gRPC default (4MB).
	MaxMessageSize int

	// Address is the server's public address (e.g., "localhost:50051").
	// OPTIONAL: If empty, FlightEndpoint locations will not include URI.
	Address string

	// FilterCacheSize is the number of decoded ticket filters kept in memory.
	// OPTIONAL: 0 uses flight.DefaultFilterCacheSize; negative disables the cache.
	FilterCacheSize int

	// Registerer receives the server's Prometheus collectors.
	// OPTIONAL: If nil, no metrics are collected.
	Registerer prometheus.Registerer
}

// Standard errors returned by docquery package.
var (
	// ErrUnauthorized indicates authentication failed.
	// Return this from Authenticator.Authenticate() for invalid tokens.
	ErrUnauthorized = auth.ErrUnauthenticated

	// ErrInvalidConfig indicates ServerConfig validation failed.
	ErrInvalidConfig = errors.New("invalid server config")
)

// validateConfig checks that required ServerConfig fields are valid.
func validateConfig(config ServerConfig) error {
	if config.Catalog == nil {
		return errors.New("catalog is required")
	}
	if config.MaxMessageSize < 0 {
		return errors.New("max message size must be non-negative")
	}
	return nil
}
