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
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics/snapshot"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/consumer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/cache"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/handler"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/service"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/config"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/health"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/logger"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/metrics"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/middleware"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/postgres"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/ratelimit"
	pkgredis "github.com/nathnaelteshome/common-app-web-sub001/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"catalog_source", cfg.Catalog.Source,
		"refresh_interval", cfg.Search.RefreshInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var db *postgres.Client
	if cfg.Catalog.Source == config.CatalogSourcePostgres || (!cfg.Kafka.Enabled && cfg.Analytics.SnapshotInterval > 0) {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	source, err := openSource(cfg, db)
	if err != nil {
		slog.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}

	engineCfg := indexer.EngineConfig{
		Policy:  indexer.TTL(cfg.Search.RefreshInterval),
		Metrics: m,
	}
	uniEngine := indexer.NewEngine[catalog.University](service.ScopeUniversities, source.LoadUniversities, engineCfg)
	progEngine := indexer.NewEngine[catalog.Program](service.ScopePrograms, source.LoadPrograms, engineCfg)

	svcCfg := service.Config{
		SuggestionLimit:    cfg.Search.SuggestionLimit,
		SuggestionMinScore: cfg.Search.SuggestionMinScore,
		Metrics:            m,
	}
	searcher := service.NewSearcher(
		service.NewUniversities(uniEngine, svcCfg),
		service.NewPrograms(progEngine, svcCfg),
		service.SearcherConfig{
			CombinedLimit:   cfg.Search.CombinedLimit,
			UniversityShare: cfg.Search.UniversityShare,
			Metrics:         m,
		},
	)

	// Warm both indexes; a failure here is retried on first search.
	for _, e := range []interface{ Rebuild(context.Context) error }{uniEngine, progEngine} {
		if err := e.Rebuild(ctx); err != nil {
			slog.Warn("initial index build failed", "error", err)
		}
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	// Without Kafka, events are aggregated in-process and served here;
	// otherwise cmd/analytics consumes and serves them.
	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics)
		defer producer.Close()
		collector := analytics.NewCollector(producer, analytics.CollectorConfig{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		})
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector

		hostname, _ := os.Hostname()
		catalogConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CatalogChanges, hostname,
			consumer.HandleMessage(map[catalog.Entity]consumer.Invalidator{
				catalog.EntityUniversity: uniEngine,
				catalog.EntityProgram:    progEngine,
			}, cacheInvalidator(queryCache)),
		))
		go func() {
			if err := catalogConsumer.Start(ctx); err != nil {
				slog.Error("catalog consumer error", "error", err)
			}
		}()
		slog.Info("kafka pipelines started",
			"analytics_topic", cfg.Kafka.Topics.SearchAnalytics,
			"catalog_topic", cfg.Kafka.Topics.CatalogChanges,
		)
	}

	if !cfg.Kafka.Enabled && cfg.Analytics.SnapshotInterval > 0 {
		store := snapshot.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot schema", "error", err)
			os.Exit(1)
		}
		go store.Run(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	limiter := ratelimit.New(cfg.RateLimit.SuggestionsPerMinute, time.Minute)
	go limiter.Run(ctx, time.Minute)

	checker := health.NewChecker()
	checker.Register("universities_index", health.Ready(uniEngine.Ready, func() string {
		return fmt.Sprintf("%d universities", uniEngine.Stats().Items)
	}))
	checker.Register("programs_index", health.Ready(progEngine.Ready, func() string {
		return fmt.Sprintf("%d programs", progEngine.Stats().Items)
	}))
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping))
	} else {
		checker.Register("redis", health.Ping(nil))
	}
	if db != nil {
		checker.Register("postgres", health.Ping(db.Ping))
	}

	h := handler.New(searcher, queryCache, tracker, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.SearchAll)
	mux.HandleFunc("GET /api/v1/universities/search", h.SearchUniversities)
	mux.HandleFunc("GET /api/v1/programs/search", h.SearchPrograms)
	mux.Handle("GET /api/v1/suggestions", middleware.RateLimit(limiter, m)(http.HandlerFunc(h.Suggestions)))
	mux.HandleFunc("POST /api/v1/universities/advanced", h.Advanced)
	mux.HandleFunc("POST /api/v1/index/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if !cfg.Kafka.Enabled {
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins...))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("search service stopped")
}

// openSource picks the catalog backend. The memory source reads the catalog
// file once at start-up and never sees later edits.
func openSource(cfg *config.Config, db *postgres.Client) (catalog.Source, error) {
	switch cfg.Catalog.Source {
	case config.CatalogSourcePostgres:
		return catalog.NewPostgres(db.DB), nil
	case config.CatalogSourceMemory:
		if cfg.Catalog.FilePath == "" {
			return catalog.NewMemory(nil, nil), nil
		}
		doc, err := catalog.NewFile(cfg.Catalog.FilePath).Read()
		if err != nil {
			return nil, err
		}
		if err := catalog.Validate(doc); err != nil {
			return nil, err
		}
		return catalog.NewMemory(doc.Universities, doc.Programs), nil
	default:
		return catalog.NewFile(cfg.Catalog.FilePath), nil
	}
}

// cacheInvalidator avoids handing the consumer a typed nil.
func cacheInvalidator(c *cache.QueryCache) consumer.CacheInvalidator {
	if c == nil {
		return nil
	}
	return c
}
