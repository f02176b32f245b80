package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/metrics"
	"github.com/popvault/pricewatch/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newFixture(t *testing.T, item catalog.CatalogItem) (*Aggregator, *memory.CatalogStore, *memory.ObservationStore, time.Time) {
	t.Helper()
	metrics.Init()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cs := memory.NewCatalogStore()
	cs.Put(item)
	os := memory.NewObservationStore()
	agg := New(cs, os, 30*24*time.Hour, fixedClock{now: now}, zap.NewNop())
	return agg, cs, os, now
}

func obs(itemID uuid.UUID, price float64, cond catalog.Condition, at time.Time) catalog.PriceObservation {
	return catalog.PriceObservation{
		ID:           uuid.New(),
		ItemID:       itemID,
		Source:       catalog.SourceEbay,
		Price:        price,
		Currency:     "USD",
		Condition:    cond,
		DateObserved: at,
	}
}

func TestRefreshComputesMean(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{
		ID:                itemID,
		Name:              "Spider-Man",
		StickerMultiplier: 1.0,
	})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 20.00, catalog.ConditionMint, now.Add(-time.Hour)),
		obs(itemID, 30.00, catalog.ConditionMint, now.Add(-2*time.Hour)),
		obs(itemID, 25.00, catalog.ConditionUsed, now.Add(-3*time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.NotNil(t, item.BaseEstimatedValue)
	require.Equal(t, 25.00, *item.BaseEstimatedValue)
	require.Equal(t, 25.00, *item.EstimatedValue)
	require.Equal(t, now, *item.LastPriceUpdate)
}

func TestRefreshAppliesStickerMultiplier(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{
		ID:                itemID,
		Name:              "Darth Maul",
		IsStickered:       true,
		StickerType:       "SDCC",
		StickerMultiplier: 3.5,
	})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 15.00, catalog.ConditionMint, now.Add(-time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, 15.00, *item.BaseEstimatedValue)
	require.Equal(t, 52.50, *item.EstimatedValue)
}

func TestRefreshIgnoresMultiplierOfOne(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{
		ID:                itemID,
		Name:              "Common Pop",
		IsStickered:       true,
		StickerMultiplier: 1.0,
	})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 12.99, catalog.ConditionMint, now.Add(-time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, 12.99, *item.EstimatedValue)
}

func TestRefreshExcludesUnknownWhenLabeledDataExists(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{ID: itemID, Name: "Batman"})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 20.00, catalog.ConditionMint, now.Add(-time.Hour)),
		obs(itemID, 500.00, catalog.ConditionUnknown, now.Add(-2*time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, 20.00, *item.BaseEstimatedValue)
}

func TestRefreshUsesUnknownWhenOnlyUnknownExists(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{ID: itemID, Name: "Robin"})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 10.00, catalog.ConditionUnknown, now.Add(-time.Hour)),
		obs(itemID, 14.00, catalog.ConditionUnknown, now.Add(-2*time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, 12.00, *item.BaseEstimatedValue)
}

func TestRefreshZeroObservationsKeepsValueAndTouches(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	previous := 42.00
	stale := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{
		ID:              itemID,
		Name:            "Vaulted Pop",
		EstimatedValue:  &previous,
		LastPriceUpdate: &stale,
	})

	// Observation outside the 30 day window does not qualify.
	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 99.00, catalog.ConditionMint, now.Add(-45*24*time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.NotNil(t, item.EstimatedValue)
	require.Equal(t, 42.00, *item.EstimatedValue)
	require.Equal(t, now, *item.LastPriceUpdate)
}

func TestRefreshRoundsToCents(t *testing.T) {
	t.Parallel()

	itemID := uuid.New()
	agg, cs, os, now := newFixture(t, catalog.CatalogItem{
		ID:                itemID,
		Name:              "Chase Pop",
		IsStickered:       true,
		StickerMultiplier: 4.0,
	})

	require.NoError(t, os.Insert(context.Background(), []catalog.PriceObservation{
		obs(itemID, 10.00, catalog.ConditionMint, now.Add(-time.Hour)),
		obs(itemID, 10.01, catalog.ConditionMint, now.Add(-2*time.Hour)),
		obs(itemID, 10.01, catalog.ConditionMint, now.Add(-3*time.Hour)),
	}))

	require.NoError(t, agg.Refresh(context.Background(), itemID))

	item, err := cs.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, 10.01, *item.BaseEstimatedValue)
	require.Equal(t, 40.04, *item.EstimatedValue)
}

func TestRefreshUnknownItem(t *testing.T) {
	t.Parallel()

	agg, _, _, _ := newFixture(t, catalog.CatalogItem{ID: uuid.New()})

	err := agg.Refresh(context.Background(), uuid.New())
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
