package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/hugr-lab/docquery"
)

func newServeCmd(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured collections over Arrow Flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cfg.logger())
		},
	}

	flags := cmd.Flags()
	flags.String("address", ":50051", "Flight listen address")
	flags.String("public-address", "", "address advertised in Flight endpoints")
	flags.String("metrics-address", "", "Prometheus metrics listen address (disabled when empty)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Int("filter-cache-size", 0, "decoded filter cache size (0 default, negative disables)")
	flags.Int("max-message-size", 16<<20, "maximum gRPC message size in bytes")
	flags.String("duckdb", "", "DuckDB database for table-backed collections")

	for _, name := range []string{"address", "public-address", "metrics-address", "log-level", "filter-cache-size", "max-message-size", "duckdb"} {
		_ = v.BindPFlag(flagKey(name), flags.Lookup(name))
	}
	return cmd
}

// flagKey maps a flag name to its config key.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// serve runs the Flight server, and the metrics endpoint when configured, until ctx is done.
func serve(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	cat, closeCatalog, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	config := docquery.ServerConfig{
		Catalog:         cat,
		Logger:          logger,
		MaxMessageSize:  cfg.MaxMessageSize,
		Address:         cfg.PublicAddress,
		FilterCacheSize: cfg.FilterCacheSize,
		Registerer:      reg,
	}
	if len(cfg.Auth) > 0 {
		tokens := make(map[string]string, len(cfg.Auth))
		var grants []docquery.Grant
		for _, a := range cfg.Auth {
			tokens[a.Token] = a.Identity
			if len(a.Collections) > 0 {
				grants = append(grants, docquery.Grant{Identity: a.Identity, Collections: a.Collections})
			}
		}
		ta := docquery.NewTokenAuth(tokens, grants...)
		config.Auth = ta
		config.Authorizer = ta
	}

	grpcServer := grpc.NewServer(docquery.ServerOptions(config)...)
	if err := docquery.NewServer(grpcServer, config); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Address, err)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("docquery listening", "address", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics listening", "address", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}
