package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/cache"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/config"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/events"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/graph"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/server"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

func main() {
	// Setup logger
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Logger().
		Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	// Load configuration
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn().Err(err).Msg("Failed to read .env file")
	}
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	printBanner(cfg)

	// Initialize storage
	store, err := storage.NewStore(cfg.StorageType, cfg.StoreOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	if infoProvider, ok := store.(storage.InfoProvider); ok {
		info := infoProvider.Info()
		logger.Info().
			Str("type", info.Type).
			Str("version", info.Version).
			Str("target", info.Target).
			Msg("Storage initialized")
	}

	// Initialize cache
	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second
	cacheInstance, err := cache.New(cache.Options{
		Type:      cfg.CacheType,
		Size:      cfg.CacheSize,
		TTL:       cacheTTL,
		RedisHost: cfg.RedisHost,
		RedisPort: cfg.RedisPort,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize cache, falling back to memory cache")
		cacheInstance = cache.NewMemoryCache(cfg.CacheSize, cacheTTL)
	} else {
		logger.Info().Str("type", cfg.CacheType).Msg("Cache initialized")
	}

	if cacheTTL <= 0 {
		logger.Info().Msg("CACHE_TTL is 0, graph responses are not cached")
	}
	graphService := graph.NewService(store, cacheInstance, cacheTTL, logger)

	// Ingestion
	orchestrator := ingest.NewOrchestrator(
		source.NewClient(cfg.SourceBaseURL, cfg.SourceTimeout, logger),
		store,
		resolver.New(cfg.SourceNamespace),
		logger,
		ingest.Options{
			PageDelay:   cfg.PageDelay,
			LinkWorkers: cfg.LinkWorkers,
			Observers:   []ingest.Observer{graphService},
		},
	)

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to NATS, ingest events disabled")
		} else {
			orchestrator.AddObserver(publisher)
			logger.Info().Str("subject", cfg.NATSSubject).Msg("Publishing ingest events")
		}
	}

	// Crawl on first start
	if cfg.AutoIngest {
		autoIngest(cfg, graphService, orchestrator, logger)
	}

	srv := server.New(cfg, store, graphService, orchestrator, logger)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info().Msg("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	// Start server
	logger.Info().Msg("Server ready to accept requests")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("Server failed")
	}

	orchestrator.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}
	if err := cacheInstance.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage")
	}
	logger.Info().Msg("Stopped")
}

// autoIngest starts a background crawl of the configured root when the store is empty
func autoIngest(cfg *config.Config, g *graph.Service, o *ingest.Orchestrator, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := g.Stats(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to count graph, skipping auto ingest")
		return
	}
	if stats.NodeCount > 0 {
		logger.Info().Int("nodes", stats.NodeCount).Int("edges", stats.EdgeCount).Msg("Graph already populated")
		return
	}

	runID := o.Start(cfg.RootEntityID)
	logger.Info().Str("run_id", runID).Int64("root_id", cfg.RootEntityID).Msg("Empty graph, auto ingest started")
}

func printBanner(cfg *config.Config) {
	lightBlue := "\033[1;36m"
	reset := "\033[0m"

	fmt.Print(lightBlue)
	fmt.Println("//////////////////////////////////////////////")
	fmt.Println("//.....o---o.........o.......................//")
	fmt.Println("//......\\...\\......./.\\......................//")
	fmt.Println("//.......o---o-----o---o.....netgraph........//")
	fmt.Println("//....../.....\\.........\\....................//")
	fmt.Println("//.....o.......o---------o...................//")
	fmt.Println("//////////////////////////////////////////////")
	fmt.Print(reset)

	fmt.Println()
	fmt.Println("//////////////////////////// netgraph " + config.Version + " /////////////////////////")
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println("Server Configuration:")
	fmt.Printf("  Host: %s\n", cfg.Host)
	fmt.Printf("  Port: %d\n", cfg.Port)
	fmt.Printf("  CORS origin: %s\n", cfg.CORSOrigin)
	if cfg.StaticDir != "" {
		fmt.Printf("  Static client: %s\n", cfg.StaticDir)
	}
	fmt.Println()
	fmt.Println("Storage Configuration:")
	fmt.Printf("  Type: %s\n", cfg.StorageType)
	if cfg.StorageType == "sqlite" {
		fmt.Printf("  Path: %s\n", cfg.DBPath)
	}
	fmt.Println()
	fmt.Println("Cache Configuration:")
	fmt.Printf("  Type: %s\n", cfg.CacheType)
	fmt.Printf("  TTL: %d seconds\n", cfg.CacheTTL)
	if cfg.CacheType == "redis" {
		fmt.Printf("  Redis: %s:%d\n", cfg.RedisHost, cfg.RedisPort)
	}
	fmt.Println()
	fmt.Println("Ingestion Configuration:")
	fmt.Printf("  Source: %s (%s)\n", cfg.SourceBaseURL, cfg.SourceNamespace)
	fmt.Printf("  Root entity: %d\n", cfg.RootEntityID)
	fmt.Printf("  Page delay: %s\n", cfg.PageDelay)
	fmt.Printf("  Link workers: %d\n", cfg.LinkWorkers)
	fmt.Printf("  Auto ingest: %v\n", cfg.AutoIngest)
	if cfg.NATSURL != "" {
		fmt.Printf("  NATS: %s -> %s\n", cfg.NATSURL, cfg.NATSSubject)
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println()
}
