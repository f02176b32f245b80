package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/popvault/pricewatch/internal/catalog"
)

func TestInsertObservations(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewObservationStore(mock)
	itemID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	observations := []catalog.PriceObservation{
		{
			ID:           uuid.New(),
			ItemID:       itemID,
			Source:       catalog.SourceEbay,
			Price:        24.99,
			Currency:     "USD",
			Condition:    catalog.ConditionMint,
			ListingURL:   "https://www.ebay.com/itm/1",
			DateObserved: now,
		},
		{
			ID:           uuid.New(),
			ItemID:       itemID,
			Source:       catalog.SourceEbay,
			Price:        18.50,
			Currency:     "USD",
			Condition:    catalog.ConditionUsed,
			DateObserved: now,
		},
	}

	url := observations[0].ListingURL
	mock.ExpectExec("INSERT INTO price_observations").
		WithArgs(observations[0].ID, itemID, catalog.SourceEbay, 24.99, "USD",
			catalog.ConditionMint, &url, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO price_observations").
		WithArgs(observations[1].ID, itemID, catalog.SourceEbay, 18.50, "USD",
			catalog.ConditionUsed, (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), observations))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSince(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewObservationStore(mock)
	itemID := uuid.New()
	since := time.Unix(1700000000, 0).UTC()
	url := "https://www.ebay.com/itm/1"

	cols := []string{"id", "item_id", "source", "price", "currency", "condition", "listing_url", "date_observed"}
	mock.ExpectQuery("SELECT(.|\n)+FROM price_observations").
		WithArgs(itemID, since).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New(), itemID, catalog.SourceEbay, 24.99, "USD",
				catalog.ConditionMint, &url, since.Add(2*time.Hour)).
			AddRow(uuid.New(), itemID, catalog.SourceFunkoStore, 12.99, "USD",
				catalog.ConditionMint, (*string)(nil), since.Add(time.Hour)))

	observations, err := store.ListSince(context.Background(), itemID, since)
	require.NoError(t, err)
	require.Len(t, observations, 2)
	require.Equal(t, 24.99, observations[0].Price)
	require.Equal(t, url, observations[0].ListingURL)
	require.Equal(t, "", observations[1].ListingURL)
	require.NoError(t, mock.ExpectationsWereMet())
}
