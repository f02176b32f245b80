package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/popvault/pricewatch/internal/catalog"
)

// ObservationStore implements catalog.ObservationStore over Postgres.
// The price_observations table is append-only.
type ObservationStore struct {
	db querier
}

// NewObservationStore wraps a pool (or mock) as an ObservationStore.
func NewObservationStore(db querier) *ObservationStore {
	return &ObservationStore{db: db}
}

// Insert appends a batch of observations.
func (s *ObservationStore) Insert(ctx context.Context, observations []catalog.PriceObservation) error {
	query := `
		INSERT INTO price_observations
			(id, item_id, source, price, currency, condition, listing_url, date_observed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, obs := range observations {
		var listingURL *string
		if obs.ListingURL != "" {
			listingURL = &obs.ListingURL
		}
		if _, err := s.db.Exec(ctx, query,
			obs.ID,
			obs.ItemID,
			obs.Source,
			obs.Price,
			obs.Currency,
			obs.Condition,
			listingURL,
			obs.DateObserved,
		); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	return nil
}

// ListSince returns observations for an item observed at or after since,
// newest first.
func (s *ObservationStore) ListSince(ctx context.Context, itemID uuid.UUID, since time.Time) ([]catalog.PriceObservation, error) {
	query := `
		SELECT id, item_id, source, price, currency, condition, listing_url, date_observed
		FROM price_observations
		WHERE item_id = $1 AND date_observed >= $2
		ORDER BY date_observed DESC`
	rows, err := s.db.Query(ctx, query, itemID, since)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var observations []catalog.PriceObservation
	for rows.Next() {
		var (
			obs        catalog.PriceObservation
			listingURL *string
		)
		if err := rows.Scan(
			&obs.ID,
			&obs.ItemID,
			&obs.Source,
			&obs.Price,
			&obs.Currency,
			&obs.Condition,
			&listingURL,
			&obs.DateObserved,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if listingURL != nil {
			obs.ListingURL = *listingURL
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return observations, nil
}
