package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// runHistorySize bounds how many run reports are kept for status lookups
const runHistorySize = 64

// Observer is notified once per run with the final report
type Observer interface {
	IngestFinished(ctx context.Context, report Report)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, report Report)

func (f ObserverFunc) IngestFinished(ctx context.Context, report Report) { f(ctx, report) }

// Options tune an Orchestrator
type Options struct {
	// PageDelay is the minimum gap between relationship page requests
	PageDelay time.Duration
	// LinkWorkers > 1 links a page's relationships concurrently
	LinkWorkers int
	Observers   []Observer
}

// Orchestrator drives a crawl: root entity, then every relationship page
type Orchestrator struct {
	source   source.EntitySource
	upserter *Upserter
	linker   *Linker
	logger   zerolog.Logger
	limiter  *rate.Limiter
	workers  int

	obsMu     sync.RWMutex
	observers []Observer

	runs *lru.Cache[string, Report]

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator wires the crawl pipeline
func NewOrchestrator(src source.EntitySource, store storage.GraphStore, res *resolver.Resolver, logger zerolog.Logger, opts Options) *Orchestrator {
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	workers := opts.LinkWorkers
	if workers < 1 {
		workers = 1
	}

	upserter := NewUpserter(store, res, logger)
	runs, _ := lru.New[string, Report](runHistorySize)
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		source:    src,
		upserter:  upserter,
		linker:    NewLinker(store, res, upserter, logger),
		logger:    logger,
		limiter:   rate.NewLimiter(limit, 1),
		workers:   workers,
		observers: opts.Observers,
		runs:      runs,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// AddObserver registers an observer for runs that finish afterwards
func (o *Orchestrator) AddObserver(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) currentObservers() []Observer {
	o.obsMu.RLock()
	defer o.obsMu.RUnlock()
	return append([]Observer(nil), o.observers...)
}

// Ingest crawls rootExternalID synchronously and returns the final report
func (o *Orchestrator) Ingest(ctx context.Context, rootExternalID int64) Report {
	return o.run(ctx, uuid.NewString(), rootExternalID)
}

// Start launches a crawl in the background and returns its run id
func (o *Orchestrator) Start(rootExternalID int64) string {
	runID := uuid.NewString()
	o.track(newReport(runID, rootExternalID))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(o.baseCtx, runID, rootExternalID)
	}()
	return runID
}

// Run returns the latest known report for a run id
func (o *Orchestrator) Run(runID string) (Report, bool) {
	return o.runs.Get(runID)
}

// Close cancels background runs and waits for them to stop
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) track(r *Report) {
	o.runs.Add(r.RunID, r.snapshot())
}

func (o *Orchestrator) run(ctx context.Context, runID string, root int64) (final Report) {
	report := newReport(runID, root)
	log := o.logger.With().Str("run_id", runID).Int64("root_id", root).Logger()

	defer func() {
		report.FinishedAt = time.Now().UTC()

		evt := log.Info()
		if report.State == StateFailed {
			evt = log.Error().Err(report.Err)
		}
		evt.Str("state", string(report.State)).
			Int("pages", report.Pages).
			Int("seen", report.Seen).
			Int("processed", report.Processed).
			Int("skipped", report.Skipped).
			Dur("duration", report.Duration()).
			Msg("ingestion finished")

		final = report.snapshot()
		notifyCtx := context.WithoutCancel(ctx)
		for _, obs := range o.currentObservers() {
			obs.IngestFinished(notifyCtx, final)
		}
		// observers run before the finished report becomes visible to pollers
		o.track(report)
	}()

	log.Info().Msg("ingestion started")
	report.State = StateFetchingRoot
	o.track(report)

	entity, err := o.source.GetEntity(ctx, root)
	if err != nil {
		report.fail(fmt.Errorf("fetch root: %w", err))
		return
	}
	if _, err := o.upserter.Upsert(ctx, root, entity.Name, entity.PrimaryExt); err != nil {
		report.fail(fmt.Errorf("upsert root: %w", err))
		return
	}

	for page := 1; ; page++ {
		if err := o.limiter.Wait(ctx); err != nil {
			report.fail(fmt.Errorf("before page %d: %w", page, err))
			return
		}

		report.State = StateCrawlingPage
		report.LastPage = page
		o.track(report)

		log.Debug().Int("page", page).Msg("fetching relationships page")
		p, err := o.source.GetRelationships(ctx, root, page)
		if err != nil {
			report.fail(fmt.Errorf("fetch page %d: %w", page, err))
			return
		}
		report.Pages++

		for _, res := range o.linkPage(ctx, root, p.Relationships) {
			report.record(res)
			logResult(log, page, res)
		}

		pageCount := p.PageCount
		if pageCount < 1 {
			pageCount = 1
		}
		if page >= pageCount {
			break
		}
	}

	report.State = StateDone
	return
}

// linkPage links every relationship of a page, returning results in page order
func (o *Orchestrator) linkPage(ctx context.Context, root int64, rels []source.Relationship) []LinkResult {
	results := make([]LinkResult, len(rels))

	if o.workers <= 1 {
		for i, rel := range rels {
			results[i] = o.safeLink(ctx, root, rel)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			results[i] = o.safeLink(ctx, root, rel)
			return nil
		})
	}
	g.Wait()
	return results
}

func (o *Orchestrator) safeLink(ctx context.Context, root int64, rel source.Relationship) (res LinkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = skipped(ReasonInternal, fmt.Errorf("panic linking relationship %s: %v", rel.ID, r))
		}
	}()
	return o.linker.Link(ctx, root, rel)
}

func logResult(log zerolog.Logger, page int, res LinkResult) {
	switch res.Reason {
	case "":
		log.Debug().Int("page", page).Int64("other_id", res.OtherExternalID).Int64("edge_id", res.EdgeID).Msg("edge linked")
	case ReasonDuplicate, ReasonSelfReference:
		log.Debug().Int("page", page).Int64("other_id", res.OtherExternalID).Str("reason", string(res.Reason)).Msg("relationship skipped")
	default:
		log.Warn().Int("page", page).Int64("other_id", res.OtherExternalID).Str("reason", string(res.Reason)).Err(res.Err).Msg("relationship skipped")
	}
}
