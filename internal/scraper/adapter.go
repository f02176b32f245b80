// Package scraper defines the source adapter contract and its typed
// failure taxonomy. Adapters are stateless between invocations and never
// touch the database; they turn an item description into raw price quotes.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/popvault/pricewatch/internal/catalog"
)

// FailureKind classifies an adapter failure for retry decisions.
type FailureKind string

// Failure kinds. NotFound is treated as permanent; everything else retries.
const (
	FailureNetwork     FailureKind = "network"
	FailureRateLimited FailureKind = "rate_limited"
	FailureParse       FailureKind = "parse"
	FailureNotFound    FailureKind = "not_found"
)

// ItemQuery carries the descriptive attributes an adapter needs to build a
// marketplace search. No identifiers, no store handles.
type ItemQuery struct {
	Name    string
	Series  string
	Number  string
	Variant string
}

// SearchTerms renders the query as a flat search string.
func (q ItemQuery) SearchTerms() string {
	s := q.Name + " " + q.Series
	if q.Number != "" {
		s += " " + q.Number
	}
	if q.Variant != "" {
		s += " " + q.Variant
	}
	return s
}

// Quote is one raw price/condition tuple returned by an adapter, tagged with
// its source and observation time by the adapter itself.
type Quote struct {
	Source     catalog.SourceID
	Price      float64
	Currency   string
	Condition  catalog.Condition
	Title      string
	ListingURL string
	ObservedAt time.Time
}

// SourceAdapter is the pluggable integration for one external marketplace.
// Implementations must convert every failure to a *Failure so callers can
// update job state deterministically; a returned error that is not a
// *Failure is classified as a network failure.
type SourceAdapter interface {
	Source() catalog.SourceID
	Scrape(ctx context.Context, query ItemQuery) ([]Quote, error)
}

// Failure is the typed error crossing the adapter boundary.
type Failure struct {
	Kind   FailureKind
	Source catalog.SourceID
	Err    error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s failure", f.Source, f.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", f.Source, f.Kind, f.Err)
}

// Unwrap exposes the underlying cause.
func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err as a typed adapter failure.
func NewFailure(kind FailureKind, source catalog.SourceID, err error) *Failure {
	return &Failure{Kind: kind, Source: source, Err: err}
}

// Classify extracts the failure kind from an adapter error. Context
// deadline expiry and untyped errors count as network failures.
func Classify(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureNetwork
}

// Retryable reports whether a failure kind warrants another attempt.
func Retryable(kind FailureKind) bool {
	return kind != FailureNotFound
}
