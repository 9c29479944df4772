package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/config"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/events"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	root := flag.Int64("root", cfg.RootEntityID, "external id of the entity to crawl")
	storageType := flag.String("storage", cfg.StorageType, "storage backend (sqlite or postgres)")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	baseURL := flag.String("source", cfg.SourceBaseURL, "source API base URL")
	delay := flag.Duration("delay", cfg.PageDelay, "minimum delay between page requests")
	workers := flag.Int("workers", cfg.LinkWorkers, "relationships linked concurrently per page")
	asJSON := flag.Bool("json", false, "print the run report as JSON")
	verbose := flag.Bool("v", cfg.Debug, "log every relationship")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: netgraph-ingest [flags]")
		fmt.Fprintln(os.Stderr, "Example: netgraph-ingest -root 36043 -db ./netgraph.db")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg.RootEntityID = *root
	cfg.StorageType = *storageType
	cfg.DBPath = *dbPath
	cfg.DatabaseURL = *databaseURL
	cfg.SourceBaseURL = *baseURL
	cfg.PageDelay = *delay
	cfg.LinkWorkers = *workers

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
	} else {
		printSummary(report)
	}

	if report.State == ingest.StateFailed {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ingest.Report, error) {
	if cfg.RootEntityID <= 0 {
		return ingest.Report{}, fmt.Errorf("invalid root entity id: %d", cfg.RootEntityID)
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.StoreOptions())
	if err != nil {
		return ingest.Report{}, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	o := ingest.NewOrchestrator(
		source.NewClient(cfg.SourceBaseURL, cfg.SourceTimeout, logger),
		store,
		resolver.New(cfg.SourceNamespace),
		logger,
		ingest.Options{
			PageDelay:   cfg.PageDelay,
			LinkWorkers: cfg.LinkWorkers,
		},
	)
	defer o.Close()

	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to NATS, ingest events disabled")
		} else {
			defer pub.Close()
			o.AddObserver(pub)
		}
	}

	return o.Ingest(ctx, cfg.RootEntityID), nil
}

func printSummary(r ingest.Report) {
	fmt.Printf("\nIngestion summary:\n")
	fmt.Printf("  Run: %s\n", r.RunID)
	fmt.Printf("  Root entity: %d\n", r.RootID)
	fmt.Printf("  State: %s\n", r.State)
	fmt.Printf("  Pages: %d\n", r.Pages)
	fmt.Printf("  Relationships seen: %d\n", r.Seen)
	fmt.Printf("  Edges written: %d\n", r.Processed)
	fmt.Printf("  Skipped: %d\n", r.Skipped)

	reasons := make([]string, 0, len(r.SkipReasons))
	for reason := range r.SkipReasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("    %s: %d\n", reason, r.SkipReasons[ingest.SkipReason(reason)])
	}

	fmt.Printf("  Duration: %s\n", r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Printf("  Error: %s\n", r.Error)
	}
}
