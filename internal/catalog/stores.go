package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

// CatalogStore reads item metadata and persists aggregated pricing.
type CatalogStore interface {
	// InsertItem adds a new item, used by the catalog import command.
	InsertItem(ctx context.Context, item CatalogItem) error
	// GetItem fetches a single item by id.
	GetItem(ctx context.Context, id uuid.UUID) (CatalogItem, error)
	// SelectStaleItems returns up to limit items whose last_price_update is
	// null or older than cutoff, never-updated items first, then oldest.
	SelectStaleItems(ctx context.Context, cutoff time.Time, limit int) ([]CatalogItem, error)
	// UpdatePricing writes the aggregator's output. The only writer of
	// estimated_value, base_estimated_value and last_price_update.
	UpdatePricing(ctx context.Context, id uuid.UUID, estimated, base float64, at time.Time) error
	// TouchPriceUpdate advances last_price_update without changing values,
	// used when an aggregation pass found no qualifying observations.
	TouchPriceUpdate(ctx context.Context, id uuid.UUID, at time.Time) error
	// ResetPriceUpdates nulls last_price_update for every item, forcing the
	// next scheduler pass to treat the whole catalog as stale. Returns the
	// number of items affected.
	ResetPriceUpdates(ctx context.Context) (int64, error)
}

// ObservationStore is the append-only log of price observations.
type ObservationStore interface {
	Insert(ctx context.Context, observations []PriceObservation) error
	// ListSince returns observations for an item observed at or after since.
	ListSince(ctx context.Context, itemID uuid.UUID, since time.Time) ([]PriceObservation, error)
}

// JobStore is the single source of truth for in-flight scrape work.
type JobStore interface {
	// EnsureJob inserts a pending job for (itemID, source) due at due unless
	// a pending or running job for the pair already exists. Reports whether
	// a new row was created, returning the live job either way.
	EnsureJob(ctx context.Context, itemID uuid.UUID, source SourceID, due time.Time) (ScrapeJob, bool, error)
	// DueJobs returns claimable jobs (pending, or failed past their retry
	// due time) ordered by next_scrape_due ascending, capped at limit.
	DueJobs(ctx context.Context, now time.Time, limit int) ([]ScrapeJob, error)
	// DueJobsForItem is DueJobs scoped to one item, used by manual triggers.
	DueJobsForItem(ctx context.Context, itemID uuid.UUID, now time.Time, limit int) ([]ScrapeJob, error)
	// ClaimRunning atomically transitions a claimable job to running.
	// Reports false when another dispatcher already claimed it.
	ClaimRunning(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// Complete marks a running job completed and schedules the next scrape.
	Complete(ctx context.Context, id uuid.UUID, at, nextDue time.Time) error
	// Fail marks a running job failed, records the error, increments
	// retry_count and sets next_scrape_due to the retry time.
	Fail(ctx context.Context, id uuid.UUID, at time.Time, errMsg string, nextDue time.Time) error
	// Exhaust marks a job terminally failed; it is never dispatched again.
	Exhaust(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error
}

// AuditStore persists pricing update requests. Writes are best-effort and
// must never gate the scraping pipeline.
type AuditStore interface {
	Create(ctx context.Context, req PricingUpdateRequest) error
	Resolve(ctx context.Context, id uuid.UUID, status RequestStatus, notes string, at time.Time) error
}
