// Command analytics runs the search analytics service.
//
// It consumes search events from Kafka, aggregates them in memory (top and
// zero-result queries, latency percentiles, cache hit rate, match types),
// persists periodic snapshots to PostgreSQL when configured, and serves the
// current statistics at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics/snapshot"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/config"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/health"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/logger"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/middleware"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled; the searcher aggregates in-process otherwise")
		os.Exit(1)
	}
	slog.Info("starting analytics service", "port", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics, "analytics", analytics.HandleEvent(aggregator))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchAnalytics)

	checker := health.NewChecker()
	checker.Register("kafka_consumer", func(ctx context.Context) health.ComponentHealth {
		select {
		case <-consumerDone:
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
		}
	})

	if cfg.Analytics.SnapshotInterval > 0 {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store := snapshot.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot schema", "error", err)
			os.Exit(1)
		}
		if latest, err := store.Latest(ctx); err != nil {
			slog.Warn("could not read previous snapshot", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"since", latest.Since,
				"total_searches", latest.TotalSearches,
			)
		}
		go store.Run(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.Ping(db.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins...))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Deferred cleanup must wait until in-flight requests have finished.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("analytics service stopped")
}
