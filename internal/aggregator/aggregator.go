// Package aggregator collapses recent price observations into an item's
// estimated market value.
package aggregator

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/metrics"
)

// Aggregator recomputes estimated values from the trailing observation
// window. It is the only writer of estimated_value, base_estimated_value
// and last_price_update.
type Aggregator struct {
	catalog      catalog.CatalogStore
	observations catalog.ObservationStore
	window       time.Duration
	clock        catalog.Clock
	logger       *zap.Logger
}

// New constructs an Aggregator over the given stores.
func New(cs catalog.CatalogStore, os catalog.ObservationStore, window time.Duration, clock catalog.Clock, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		catalog:      cs,
		observations: os,
		window:       window,
		clock:        clock,
		logger:       logger,
	}
}

// conditionSummary holds the per-condition partition of a window.
type conditionSummary struct {
	count int
	mean  float64
}

// Refresh recomputes pricing for one item. The base value is the mean of
// qualifying observations in the trailing window; unknown-condition
// observations qualify only when no better-labeled data exists. A pass with
// zero observations keeps the previous value but still advances
// last_price_update so the scheduler does not hot-loop on the item.
func (a *Aggregator) Refresh(ctx context.Context, itemID uuid.UUID) error {
	now := a.clock.Now()

	item, err := a.catalog.GetItem(ctx, itemID)
	if err != nil {
		return eris.Wrapf(err, "aggregator: load item %s", itemID)
	}

	observations, err := a.observations.ListSince(ctx, itemID, now.Add(-a.window))
	if err != nil {
		return eris.Wrapf(err, "aggregator: list observations for %s", itemID)
	}

	if len(observations) == 0 {
		if err := a.catalog.TouchPriceUpdate(ctx, itemID, now); err != nil {
			metrics.ObserveAggregatorUpdate("error")
			return eris.Wrapf(err, "aggregator: touch %s", itemID)
		}
		metrics.ObserveAggregatorUpdate("no_observations")
		a.logger.Info("no qualifying observations, keeping previous value",
			zap.String("item_id", itemID.String()))
		return nil
	}

	partitions := partitionByCondition(observations)
	for cond, summary := range partitions {
		a.logger.Debug("condition partition",
			zap.String("item_id", itemID.String()),
			zap.String("condition", string(cond)),
			zap.Int("count", summary.count),
			zap.Float64("mean", summary.mean))
	}

	base := round2(baseValue(observations))
	estimated := base
	if item.IsStickered && item.StickerMultiplier > 1 {
		estimated = round2(base * item.StickerMultiplier)
	}

	if err := a.catalog.UpdatePricing(ctx, itemID, estimated, base, now); err != nil {
		metrics.ObserveAggregatorUpdate("error")
		return eris.Wrapf(err, "aggregator: update pricing for %s", itemID)
	}
	metrics.ObserveAggregatorUpdate("updated")

	a.logger.Info("pricing updated",
		zap.String("item_id", itemID.String()),
		zap.Int("observations", len(observations)),
		zap.Float64("base_estimated_value", base),
		zap.Float64("estimated_value", estimated))
	return nil
}

// baseValue is the mean over qualifying observations. Unknown-condition
// rows are dropped when any labeled rows exist.
func baseValue(observations []catalog.PriceObservation) float64 {
	labeled := false
	for _, obs := range observations {
		if obs.Condition != catalog.ConditionUnknown {
			labeled = true
			break
		}
	}

	var sum float64
	var n int
	for _, obs := range observations {
		if labeled && obs.Condition == catalog.ConditionUnknown {
			continue
		}
		sum += obs.Price
		n++
	}
	return sum / float64(n)
}

func partitionByCondition(observations []catalog.PriceObservation) map[catalog.Condition]conditionSummary {
	sums := make(map[catalog.Condition]float64)
	counts := make(map[catalog.Condition]int)
	for _, obs := range observations {
		sums[obs.Condition] += obs.Price
		counts[obs.Condition]++
	}
	out := make(map[catalog.Condition]conditionSummary, len(counts))
	for cond, count := range counts {
		out[cond] = conditionSummary{count: count, mean: sums[cond] / float64(count)}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
