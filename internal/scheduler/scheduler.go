// Package scheduler drives the scraping pipeline: it discovers stale
// catalog items, materializes jobs for each enabled source, and dispatches
// due jobs to their adapters.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/config"
	"github.com/popvault/pricewatch/internal/metrics"
	"github.com/popvault/pricewatch/internal/scraper"
)

// Summary reports what one scheduler pass did.
type Summary struct {
	FunkoPopCount int `json:"funkoPopCount"`
	JobsCreated   int `json:"jobsCreated"`
	JobsProcessed int `json:"jobsProcessed"`
}

// Refresher recomputes an item's pricing after new observations land.
type Refresher interface {
	Refresh(ctx context.Context, itemID uuid.UUID) error
}

// Scheduler owns the discover/ensure/dispatch loop. Safe to run from
// multiple replicas: job claims are conditional writes, so concurrent
// passes never double-dispatch a job.
type Scheduler struct {
	cfg          config.Config
	catalog      catalog.CatalogStore
	observations catalog.ObservationStore
	jobs         catalog.JobStore
	registry     *scraper.Registry
	refresher    Refresher
	clock        catalog.Clock
	logger       *zap.Logger
}

// New constructs a Scheduler.
func New(
	cfg config.Config,
	cs catalog.CatalogStore,
	os catalog.ObservationStore,
	js catalog.JobStore,
	registry *scraper.Registry,
	refresher Refresher,
	clock catalog.Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		catalog:      cs,
		observations: os,
		jobs:         js,
		registry:     registry,
		refresher:    refresher,
		clock:        clock,
		logger:       logger,
	}
}

// Run executes one full scheduler pass. Per-item and per-job failures are
// logged and contained; the pass itself fails only when discovery or the
// due-job query fails.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.StalenessWindow())

	stale, err := s.catalog.SelectStaleItems(ctx, cutoff, s.cfg.Scheduler.DiscoveryLimit)
	if err != nil {
		return Summary{}, eris.Wrap(err, "scheduler: select stale items")
	}
	metrics.ObserveSchedulerRun(len(stale))

	created := s.ensureJobs(ctx, stale, now)

	due, err := s.jobs.DueJobs(ctx, now, s.cfg.Scheduler.DispatchLimit)
	if err != nil {
		return Summary{}, eris.Wrap(err, "scheduler: select due jobs")
	}
	processed := s.dispatch(ctx, due)

	summary := Summary{
		FunkoPopCount: len(stale),
		JobsCreated:   created,
		JobsProcessed: processed,
	}
	s.logger.Info("scheduler pass complete",
		zap.Int("stale_items", summary.FunkoPopCount),
		zap.Int("jobs_created", summary.JobsCreated),
		zap.Int("jobs_processed", summary.JobsProcessed))
	return summary, nil
}

// DispatchItem runs the dispatch phase for one item only, used by manual
// triggers to bypass the global pass. Returns the number of jobs processed.
func (s *Scheduler) DispatchItem(ctx context.Context, itemID uuid.UUID) (int, error) {
	now := s.clock.Now()
	due, err := s.jobs.DueJobsForItem(ctx, itemID, now, s.cfg.Scheduler.DispatchLimit)
	if err != nil {
		return 0, eris.Wrapf(err, "scheduler: select due jobs for item %s", itemID)
	}
	return s.dispatch(ctx, due), nil
}

// EnsureJobsForItem creates any missing jobs for one item across the given
// sources, due immediately. Returns the number of jobs created.
func (s *Scheduler) EnsureJobsForItem(ctx context.Context, itemID uuid.UUID, sources []catalog.SourceID) (int, error) {
	if _, err := s.catalog.GetItem(ctx, itemID); err != nil {
		return 0, eris.Wrapf(err, "scheduler: load item %s", itemID)
	}
	now := s.clock.Now()
	created := 0
	for _, source := range sources {
		_, wasCreated, err := s.jobs.EnsureJob(ctx, itemID, source, now)
		if err != nil {
			return created, eris.Wrapf(err, "scheduler: ensure job %s/%s", itemID, source)
		}
		if wasCreated {
			created++
		}
	}
	return created, nil
}

// ensureJobs materializes missing jobs for every (item, enabled source)
// pair, due at the pass time so they are claimable in the same pass.
func (s *Scheduler) ensureJobs(ctx context.Context, items []catalog.CatalogItem, now time.Time) int {
	created := 0
	for _, item := range items {
		for _, source := range s.cfg.EnabledSources() {
			_, wasCreated, err := s.jobs.EnsureJob(ctx, item.ID, source, now)
			if err != nil {
				s.logger.Warn("ensure job failed",
					zap.String("item_id", item.ID.String()),
					zap.String("source", string(source)),
					zap.Error(err))
				continue
			}
			if wasCreated {
				created++
			}
		}
	}
	return created
}

func (s *Scheduler) dispatch(ctx context.Context, due []catalog.ScrapeJob) int {
	processed := 0
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		if s.processJob(ctx, job) {
			processed++
		}
	}
	return processed
}

// processJob claims and executes one job. Reports whether the job was
// actually processed (claimed by this dispatcher).
func (s *Scheduler) processJob(ctx context.Context, job catalog.ScrapeJob) bool {
	now := s.clock.Now()

	claimed, err := s.jobs.ClaimRunning(ctx, job.ID, now)
	if err != nil {
		s.logger.Warn("claim failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return false
	}
	if !claimed {
		s.logger.Debug("job claimed elsewhere", zap.String("job_id", job.ID.String()))
		return false
	}

	item, err := s.catalog.GetItem(ctx, job.ItemID)
	if err != nil {
		s.exhaust(ctx, job, "catalog item missing")
		return true
	}

	adapter, ok := s.registry.Lookup(job.Source)
	if !ok {
		s.exhaust(ctx, job, "no adapter registered for source")
		return true
	}

	query := scraper.ItemQuery{
		Name:    item.Name,
		Series:  item.Series,
		Number:  item.Number,
		Variant: item.Variant,
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout())
	start := s.clock.Now()
	quotes, err := adapter.Scrape(scrapeCtx, query)
	cancel()
	metrics.ObserveScrapeDuration(string(job.Source), s.clock.Now().Sub(start))

	if err != nil {
		s.recordFailure(ctx, job, err)
		return true
	}

	observations := make([]catalog.PriceObservation, 0, len(quotes))
	observedAt := s.clock.Now()
	for _, q := range quotes {
		at := q.ObservedAt
		if at.IsZero() {
			at = observedAt
		}
		observations = append(observations, catalog.PriceObservation{
			ID:           uuid.New(),
			ItemID:       job.ItemID,
			Source:       job.Source,
			Price:        q.Price,
			Currency:     q.Currency,
			Condition:    q.Condition,
			ListingURL:   q.ListingURL,
			DateObserved: at,
		})
	}
	if err := s.observations.Insert(ctx, observations); err != nil {
		s.recordFailure(ctx, job, eris.Wrap(err, "insert observations"))
		return true
	}
	metrics.ObserveObservations(string(job.Source), len(observations))

	doneAt := s.clock.Now()
	nextDue := doneAt.Add(s.cfg.SuccessInterval(job.Source))
	if err := s.jobs.Complete(ctx, job.ID, doneAt, nextDue); err != nil {
		s.logger.Warn("complete failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return true
	}
	metrics.ObserveScrapeJob(string(job.Source), string(catalog.JobStatusCompleted))
	s.logger.Info("job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("item_id", job.ItemID.String()),
		zap.String("source", string(job.Source)),
		zap.Int("observations", len(observations)))

	if err := s.refresher.Refresh(ctx, job.ItemID); err != nil {
		s.logger.Warn("pricing refresh failed",
			zap.String("item_id", job.ItemID.String()), zap.Error(err))
	}
	return true
}

// recordFailure routes an adapter error to failed (scheduled retry) or
// exhausted (permanent). A not_found result never retries; a retryable
// failure exhausts once retry_count would reach the configured cap.
func (s *Scheduler) recordFailure(ctx context.Context, job catalog.ScrapeJob, scrapeErr error) {
	kind := scraper.Classify(scrapeErr)
	maxRetries := s.cfg.Scheduler.MaxRetries

	if !scraper.Retryable(kind) || (maxRetries > 0 && job.RetryCount+1 >= maxRetries) {
		s.exhaust(ctx, job, scrapeErr.Error())
		return
	}

	now := s.clock.Now()
	retryAt := now.Add(s.cfg.RetryBackoff())
	if err := s.jobs.Fail(ctx, job.ID, now, scrapeErr.Error(), retryAt); err != nil {
		s.logger.Warn("fail transition failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	metrics.ObserveScrapeJob(string(job.Source), string(catalog.JobStatusFailed))
	s.logger.Warn("job failed, retry scheduled",
		zap.String("job_id", job.ID.String()),
		zap.String("source", string(job.Source)),
		zap.String("kind", string(kind)),
		zap.Int("retry_count", job.RetryCount+1),
		zap.Time("retry_at", retryAt),
		zap.Error(scrapeErr))
}

func (s *Scheduler) exhaust(ctx context.Context, job catalog.ScrapeJob, msg string) {
	if err := s.jobs.Exhaust(ctx, job.ID, s.clock.Now(), msg); err != nil {
		s.logger.Warn("exhaust transition failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	metrics.ObserveScrapeJob(string(job.Source), string(catalog.JobStatusExhausted))
	s.logger.Warn("job exhausted",
		zap.String("job_id", job.ID.String()),
		zap.String("source", string(job.Source)),
		zap.String("reason", msg))
}
