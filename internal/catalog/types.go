// Package catalog defines core types shared across the pricing pipeline.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// SourceID identifies one external marketplace.
type SourceID string

// Marketplace sources with configured adapters.
const (
	SourceEbay       SourceID = "ebay"
	SourceAmazon     SourceID = "amazon"
	SourceFunkoStore SourceID = "funko_store"
	SourceHobbyDB    SourceID = "hobbydb"
)

// Condition labels the physical state of a scraped listing.
type Condition string

// Condition values persisted on price observations.
const (
	ConditionMint     Condition = "mint"
	ConditionNearMint Condition = "near_mint"
	ConditionGood     Condition = "good"
	ConditionUsed     Condition = "used"
	ConditionOpenBox  Condition = "open_box"
	ConditionUnknown  Condition = "unknown"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store. A job never moves out of
// completed or exhausted; failed jobs become claimable again once their
// next_scrape_due passes.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusExhausted JobStatus = "exhausted"
)

// RequestStatus tracks a pricing update request through its lifecycle.
type RequestStatus string

// Pricing update request status values.
const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// RequestType distinguishes single-item from bulk rescrape requests.
type RequestType string

// Pricing update request types.
const (
	RequestTypeItem RequestType = "item"
	RequestTypeBulk RequestType = "bulk"
)

// CatalogItem is a trackable collectible with a current estimated value.
// Pricing fields are written only by the aggregator.
type CatalogItem struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Series             string     `json:"series"`
	Number             string     `json:"number,omitempty"`
	Variant            string     `json:"variant,omitempty"`
	IsChase            bool       `json:"is_chase"`
	IsExclusive        bool       `json:"is_exclusive"`
	IsVaulted          bool       `json:"is_vaulted"`
	IsStickered        bool       `json:"is_stickered"`
	StickerType        string     `json:"sticker_type,omitempty"`
	StickerMultiplier  float64    `json:"sticker_multiplier"`
	EstimatedValue     *float64   `json:"estimated_value,omitempty"`
	BaseEstimatedValue *float64   `json:"base_estimated_value,omitempty"`
	LastPriceUpdate    *time.Time `json:"last_price_update,omitempty"`
}

// PriceObservation is one scraped price data point. Rows are append-only.
type PriceObservation struct {
	ID           uuid.UUID `json:"id"`
	ItemID       uuid.UUID `json:"item_id"`
	Source       SourceID  `json:"source"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Condition    Condition `json:"condition"`
	ListingURL   string    `json:"listing_url,omitempty"`
	DateObserved time.Time `json:"date_observed"`
}

// ScrapeJob is one unit of scheduled work for an (item, source) pair.
// At most one pending or running job exists per pair at any time.
type ScrapeJob struct {
	ID            uuid.UUID `json:"id"`
	ItemID        uuid.UUID `json:"item_id"`
	Source        SourceID  `json:"source"`
	Status        JobStatus `json:"status"`
	RetryCount    int       `json:"retry_count"`
	NextScrapeDue time.Time `json:"next_scrape_due"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PricingUpdateRequest is the durable audit record of why a rescrape was
// triggered. It is never consumed by scheduling logic.
type PricingUpdateRequest struct {
	ID          uuid.UUID     `json:"id"`
	UserID      *uuid.UUID    `json:"user_id,omitempty"`
	ItemID      *uuid.UUID    `json:"item_id,omitempty"`
	RequestType RequestType   `json:"request_type"`
	Status      RequestStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
