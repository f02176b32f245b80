// Package memory provides in-memory store implementations for development
// and testing. They mirror the Postgres semantics, including the one-live-
// job-per-pair rule.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/popvault/pricewatch/internal/catalog"
)

// CatalogStore is an in-memory catalog.CatalogStore.
type CatalogStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]catalog.CatalogItem
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{items: make(map[uuid.UUID]catalog.CatalogItem)}
}

// Put seeds or replaces an item.
func (s *CatalogStore) Put(item catalog.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// InsertItem adds a new item, rejecting duplicate ids.
func (s *CatalogStore) InsertItem(_ context.Context, item catalog.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("catalog item %s already exists", item.ID)
	}
	s.items[item.ID] = item
	return nil
}

// GetItem fetches an item by id.
func (s *CatalogStore) GetItem(_ context.Context, id uuid.UUID) (catalog.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return catalog.CatalogItem{}, catalog.ErrNotFound
	}
	return item, nil
}

// SelectStaleItems returns never-priced items first, then oldest-priced.
func (s *CatalogStore) SelectStaleItems(_ context.Context, cutoff time.Time, limit int) ([]catalog.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []catalog.CatalogItem
	for _, item := range s.items {
		if item.LastPriceUpdate == nil || item.LastPriceUpdate.Before(cutoff) {
			stale = append(stale, item)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		a, b := stale[i].LastPriceUpdate, stale[j].LastPriceUpdate
		switch {
		case a == nil && b == nil:
			return stale[i].ID.String() < stale[j].ID.String()
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// UpdatePricing writes aggregated values, keeping last_price_update monotonic.
func (s *CatalogStore) UpdatePricing(_ context.Context, id uuid.UUID, estimated, base float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if item.LastPriceUpdate != nil && item.LastPriceUpdate.After(at) {
		return catalog.ErrNotFound
	}
	item.EstimatedValue = &estimated
	item.BaseEstimatedValue = &base
	ts := at
	item.LastPriceUpdate = &ts
	s.items[id] = item
	return nil
}

// TouchPriceUpdate advances last_price_update only.
func (s *CatalogStore) TouchPriceUpdate(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if item.LastPriceUpdate != nil && item.LastPriceUpdate.After(at) {
		return catalog.ErrNotFound
	}
	ts := at
	item.LastPriceUpdate = &ts
	s.items[id] = item
	return nil
}

// ResetPriceUpdates nulls every last_price_update.
func (s *CatalogStore) ResetPriceUpdates(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for id, item := range s.items {
		if item.LastPriceUpdate != nil {
			item.LastPriceUpdate = nil
			s.items[id] = item
			affected++
		}
	}
	return affected, nil
}

// ObservationStore is an in-memory catalog.ObservationStore.
type ObservationStore struct {
	mu           sync.RWMutex
	observations map[uuid.UUID][]catalog.PriceObservation
}

// NewObservationStore constructs an empty ObservationStore.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{observations: make(map[uuid.UUID][]catalog.PriceObservation)}
}

// Insert appends observations.
func (s *ObservationStore) Insert(_ context.Context, observations []catalog.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obs := range observations {
		s.observations[obs.ItemID] = append(s.observations[obs.ItemID], obs)
	}
	return nil
}

// ListSince returns an item's observations at or after since, newest first.
func (s *ObservationStore) ListSince(_ context.Context, itemID uuid.UUID, since time.Time) ([]catalog.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.PriceObservation
	for _, obs := range s.observations[itemID] {
		if !obs.DateObserved.Before(since) {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DateObserved.After(out[j].DateObserved)
	})
	return out, nil
}

// JobStore is an in-memory catalog.JobStore.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]catalog.ScrapeJob
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]catalog.ScrapeJob)}
}

func isLive(status catalog.JobStatus) bool {
	switch status {
	case catalog.JobStatusPending, catalog.JobStatusRunning, catalog.JobStatusFailed:
		return true
	default:
		return false
	}
}

// EnsureJob creates a pending job unless a live one exists for the pair.
func (s *JobStore) EnsureJob(_ context.Context, itemID uuid.UUID, source catalog.SourceID, due time.Time) (catalog.ScrapeJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ItemID == itemID && job.Source == source && isLive(job.Status) {
			return job, false, nil
		}
	}
	job := catalog.ScrapeJob{
		ID:            uuid.New(),
		ItemID:        itemID,
		Source:        source,
		Status:        catalog.JobStatusPending,
		NextScrapeDue: due,
		CreatedAt:     due,
		UpdatedAt:     due,
	}
	s.jobs[job.ID] = job
	return job, true, nil
}

// DueJobs returns claimable jobs ordered by next_scrape_due.
func (s *JobStore) DueJobs(_ context.Context, now time.Time, limit int) ([]catalog.ScrapeJob, error) {
	return s.dueJobs(nil, now, limit), nil
}

// DueJobsForItem is DueJobs scoped to one item.
func (s *JobStore) DueJobsForItem(_ context.Context, itemID uuid.UUID, now time.Time, limit int) ([]catalog.ScrapeJob, error) {
	return s.dueJobs(&itemID, now, limit), nil
}

func (s *JobStore) dueJobs(itemID *uuid.UUID, now time.Time, limit int) []catalog.ScrapeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []catalog.ScrapeJob
	for _, job := range s.jobs {
		if job.Status != catalog.JobStatusPending && job.Status != catalog.JobStatusFailed {
			continue
		}
		if job.NextScrapeDue.After(now) {
			continue
		}
		if itemID != nil && job.ItemID != *itemID {
			continue
		}
		due = append(due, job)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextScrapeDue.Before(due[j].NextScrapeDue)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due
}

// ClaimRunning moves a claimable job to running.
func (s *JobStore) ClaimRunning(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || (job.Status != catalog.JobStatusPending && job.Status != catalog.JobStatusFailed) {
		return false, nil
	}
	job.Status = catalog.JobStatusRunning
	job.UpdatedAt = at
	s.jobs[id] = job
	return true, nil
}

// Complete marks a running job completed.
func (s *JobStore) Complete(_ context.Context, id uuid.UUID, at, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != catalog.JobStatusRunning {
		return catalog.ErrNotFound
	}
	job.Status = catalog.JobStatusCompleted
	job.ErrorMessage = nil
	job.NextScrapeDue = nextDue
	job.UpdatedAt = at
	s.jobs[id] = job
	return nil
}

// Fail marks a running job failed with a scheduled retry.
func (s *JobStore) Fail(_ context.Context, id uuid.UUID, at time.Time, errMsg string, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != catalog.JobStatusRunning {
		return catalog.ErrNotFound
	}
	job.Status = catalog.JobStatusFailed
	job.ErrorMessage = &errMsg
	job.RetryCount++
	job.NextScrapeDue = nextDue
	job.UpdatedAt = at
	s.jobs[id] = job
	return nil
}

// Exhaust terminally fails a job.
func (s *JobStore) Exhaust(_ context.Context, id uuid.UUID, at time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !isLive(job.Status) {
		return catalog.ErrNotFound
	}
	job.Status = catalog.JobStatusExhausted
	job.ErrorMessage = &errMsg
	job.UpdatedAt = at
	s.jobs[id] = job
	return nil
}

// Snapshot returns a copy of every job, for test assertions.
func (s *JobStore) Snapshot() []catalog.ScrapeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.ScrapeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out
}

// AuditStore is an in-memory catalog.AuditStore.
type AuditStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]catalog.PricingUpdateRequest
	failNext bool
}

// NewAuditStore constructs an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{requests: make(map[uuid.UUID]catalog.PricingUpdateRequest)}
}

// FailNext makes the next write return an error, for best-effort tests.
func (s *AuditStore) FailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Create inserts a request.
func (s *AuditStore) Create(_ context.Context, req catalog.PricingUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return catalog.ErrNotFound
	}
	s.requests[req.ID] = req
	return nil
}

// Resolve moves a request to a terminal status.
func (s *AuditStore) Resolve(_ context.Context, id uuid.UUID, status catalog.RequestStatus, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return catalog.ErrNotFound
	}
	req, ok := s.requests[id]
	if !ok {
		return catalog.ErrNotFound
	}
	req.Status = status
	req.Notes = notes
	ts := at
	req.ResolvedAt = &ts
	s.requests[id] = req
	return nil
}

// Snapshot returns a copy of every request, for test assertions.
func (s *AuditStore) Snapshot() []catalog.PricingUpdateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.PricingUpdateRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	return out
}
