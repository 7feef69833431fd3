package docquery

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/hugr-lab/docquery/flight"
	"github.com/hugr-lab/docquery/internal/metrics"
)

// NewServer registers docquery Flight service handlers on the provided gRPC server.
// This is the main entry point for the docquery package.
//
// The function:
//  1. Validates the ServerConfig
//  2. Creates Flight service implementation
//  3. Registers it on grpcServer
//
// Returns error if config is invalid (e.g., nil Catalog).
// Does NOT start the gRPC server - user controls lifecycle via grpcServer.Serve().
//
// Authentication and request metrics are installed by ServerOptions:
//
//	opts := docquery.ServerOptions(config)
//	grpcServer := grpc.NewServer(opts...)
//	err := docquery.NewServer(grpcServer, config)
func NewServer(grpcServer *grpc.Server, config ServerConfig) error {
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	allocator := config.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	logger := configLogger(config)

	flightServer, err := flight.NewServer(config.Catalog, allocator, logger, config.Address, flight.Options{
		Authorizer:      config.Authorizer,
		FilterCacheSize: config.FilterCacheSize,
		Metrics:         metricsFor(config.Registerer),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	flight.RegisterFlightServer(grpcServer, flightServer)

	logger.Info("docquery Flight server registered",
		"has_auth", config.Auth != nil,
		"has_authorizer", config.Authorizer != nil,
		"metrics", config.Registerer != nil,
		"max_message_size", config.MaxMessageSize,
	)

	return nil
}

// ServerOptions returns gRPC server options with metrics and authentication interceptors.
// Use this when creating a gRPC server for NewServer with the same config.
//
// Example:
//
//	config := docquery.ServerConfig{
//	    Catalog: catalog,
//	    Auth: docquery.BearerAuth(validateToken),
//	}
//	opts := docquery.ServerOptions(config)
//	grpcServer := grpc.NewServer(opts...)
//	docquery.NewServer(grpcServer, config)
func ServerOptions(config ServerConfig) []grpc.ServerOption {
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	// Metrics run first so rejected requests are counted too.
	if m := metricsFor(config.Registerer); m != nil {
		unary = append(unary, flight.UnaryMetricsInterceptor(m))
		stream = append(stream, flight.StreamMetricsInterceptor(m))
	}
	if config.Auth != nil {
		unary = append(unary, flight.UnaryServerInterceptor(config.Auth))
		stream = append(stream, flight.StreamServerInterceptor(config.Auth))
	}

	var opts []grpc.ServerOption
	if len(unary) > 0 {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(unary...),
			grpc.ChainStreamInterceptor(stream...),
		)
	}

	if config.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
		)
	}

	return opts
}

func configLogger(config ServerConfig) *slog.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	if config.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *config.LogLevel}))
	}
	return slog.Default()
}

var (
	registeredMu sync.Mutex
	registered   = map[prometheus.Registerer]*metrics.Metrics{}
)

// metricsFor returns the collectors registered with reg, creating them on first use.
// ServerOptions and NewServer share them for the same registerer.
func metricsFor(reg prometheus.Registerer) *metrics.Metrics {
	if reg == nil {
		return nil
	}
	registeredMu.Lock()
	defer registeredMu.Unlock()
	if m, ok := registered[reg]; ok {
		return m
	}
	m := metrics.New(reg)
	registered[reg] = m
	return m
}
