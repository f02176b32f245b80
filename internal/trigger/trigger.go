// Package trigger implements the manual rescrape surface: force one item or
// the whole catalog through the pipeline ahead of its staleness window.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/config"
	"github.com/popvault/pricewatch/internal/metrics"
	"github.com/popvault/pricewatch/internal/scheduler"
)

// Dispatcher is the slice of the scheduler the item trigger needs.
type Dispatcher interface {
	EnsureJobsForItem(ctx context.Context, itemID uuid.UUID, sources []catalog.SourceID) (int, error)
	DispatchItem(ctx context.Context, itemID uuid.UUID) (int, error)
}

// Runner executes one full scheduler pass, used by the bulk trigger.
type Runner interface {
	Run(ctx context.Context) (scheduler.Summary, error)
}

// ItemResult reports what a single-item trigger did. The call returns once
// jobs are enqueued and a scoped dispatch has run; remaining work completes
// asynchronously on later scheduler passes.
type ItemResult struct {
	JobsCreated         int                `json:"jobs_created"`
	JobsProcessed       int                `json:"jobs_processed"`
	Sources             []catalog.SourceID `json:"sources"`
	EstimatedCompletion time.Time          `json:"estimated_completion"`
}

// BulkResult reports what a rescrape-all trigger did.
type BulkResult struct {
	ItemsAffected int64             `json:"items_affected"`
	Summary       scheduler.Summary `json:"summary"`
}

// Service records audit rows and drives the scheduler on behalf of manual
// trigger callers.
type Service struct {
	cfg        config.Config
	catalog    catalog.CatalogStore
	dispatcher Dispatcher
	runner     Runner
	audit      *Notifier
	clock      catalog.Clock
	logger     *zap.Logger
}

// NewService constructs a trigger Service.
func NewService(
	cfg config.Config,
	cs catalog.CatalogStore,
	dispatcher Dispatcher,
	runner Runner,
	audit *Notifier,
	clock catalog.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		catalog:    cs,
		dispatcher: dispatcher,
		runner:     runner,
		audit:      audit,
		clock:      clock,
		logger:     logger,
	}
}

// TriggerItem force-enqueues jobs for one item, reusing any in-flight job
// per pair, then dispatches that item's due jobs immediately. A dispatch
// outage still returns the enqueue result; the audit row records the
// failure so the request is never silently lost.
func (s *Service) TriggerItem(ctx context.Context, itemID uuid.UUID, sources []catalog.SourceID) (ItemResult, error) {
	if len(sources) == 0 {
		sources = s.cfg.EnabledSources()
	}
	now := s.clock.Now()

	req := catalog.PricingUpdateRequest{
		ID:          uuid.New(),
		ItemID:      &itemID,
		RequestType: catalog.RequestTypeItem,
		Status:      catalog.RequestPending,
		CreatedAt:   now,
	}
	s.audit.Create(req)

	created, err := s.dispatcher.EnsureJobsForItem(ctx, itemID, sources)
	if err != nil {
		s.audit.Resolve(req.ID, catalog.RequestFailed,
			fmt.Sprintf("enqueue failed: %v", err), s.clock.Now())
		metrics.ObserveTrigger(string(catalog.RequestTypeItem), string(catalog.RequestFailed))
		return ItemResult{}, eris.Wrapf(err, "trigger: enqueue jobs for item %s", itemID)
	}

	result := ItemResult{
		JobsCreated:         created,
		Sources:             sources,
		EstimatedCompletion: now.Add(time.Duration(len(sources)) * s.cfg.AdapterTimeout()),
	}

	processed, err := s.dispatcher.DispatchItem(ctx, itemID)
	if err != nil {
		s.audit.Resolve(req.ID, catalog.RequestFailed,
			fmt.Sprintf("%d jobs enqueued, dispatch unavailable: %v", created, err), s.clock.Now())
		metrics.ObserveTrigger(string(catalog.RequestTypeItem), string(catalog.RequestFailed))
		s.logger.Warn("trigger dispatch unavailable",
			zap.String("item_id", itemID.String()), zap.Error(err))
		return result, nil
	}
	result.JobsProcessed = processed

	s.audit.Resolve(req.ID, catalog.RequestCompleted,
		fmt.Sprintf("%d jobs created, %d dispatched", created, processed), s.clock.Now())
	metrics.ObserveTrigger(string(catalog.RequestTypeItem), string(catalog.RequestCompleted))
	s.logger.Info("item rescrape triggered",
		zap.String("item_id", itemID.String()),
		zap.Int("jobs_created", created),
		zap.Int("jobs_processed", processed))
	return result, nil
}

// TriggerAll marks the entire catalog stale and runs one scheduler pass.
// Later passes pick up whatever the discovery limit left behind.
func (s *Service) TriggerAll(ctx context.Context) (BulkResult, error) {
	now := s.clock.Now()

	req := catalog.PricingUpdateRequest{
		ID:          uuid.New(),
		RequestType: catalog.RequestTypeBulk,
		Status:      catalog.RequestPending,
		CreatedAt:   now,
	}
	s.audit.Create(req)

	affected, err := s.catalog.ResetPriceUpdates(ctx)
	if err != nil {
		s.audit.Resolve(req.ID, catalog.RequestFailed,
			fmt.Sprintf("staleness reset failed: %v", err), s.clock.Now())
		metrics.ObserveTrigger(string(catalog.RequestTypeBulk), string(catalog.RequestFailed))
		return BulkResult{}, eris.Wrap(err, "trigger: reset price updates")
	}

	result := BulkResult{ItemsAffected: affected}

	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.audit.Resolve(req.ID, catalog.RequestFailed,
			fmt.Sprintf("%d items marked stale, scheduler pass failed: %v", affected, err), s.clock.Now())
		metrics.ObserveTrigger(string(catalog.RequestTypeBulk), string(catalog.RequestFailed))
		s.logger.Warn("bulk trigger scheduler pass failed", zap.Error(err))
		return result, nil
	}
	result.Summary = summary

	s.audit.Resolve(req.ID, catalog.RequestCompleted,
		fmt.Sprintf("%d items marked stale, %d jobs created, %d processed",
			affected, summary.JobsCreated, summary.JobsProcessed), s.clock.Now())
	metrics.ObserveTrigger(string(catalog.RequestTypeBulk), string(catalog.RequestCompleted))
	s.logger.Info("bulk rescrape triggered",
		zap.Int64("items_affected", affected),
		zap.Int("jobs_created", summary.JobsCreated),
		zap.Int("jobs_processed", summary.JobsProcessed))
	return result, nil
}
