package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/popvault/pricewatch/internal/catalog"
)

// CatalogStore implements catalog.CatalogStore over Postgres.
type CatalogStore struct {
	db querier
}

// NewCatalogStore wraps a pool (or mock) as a CatalogStore.
func NewCatalogStore(db querier) *CatalogStore {
	return &CatalogStore{db: db}
}

const catalogItemColumns = `
	id, name, series, number, variant,
	is_chase, is_exclusive, is_vaulted, is_stickered,
	sticker_type, sticker_multiplier,
	estimated_value, base_estimated_value, last_price_update`

// InsertItem adds a new catalog row. Pricing fields start null; the
// aggregator fills them after the first successful scrape.
func (s *CatalogStore) InsertItem(ctx context.Context, item catalog.CatalogItem) error {
	query := `
		INSERT INTO catalog_items
			(id, name, series, number, variant,
			 is_chase, is_exclusive, is_vaulted, is_stickered,
			 sticker_type, sticker_multiplier,
			 estimated_value, base_estimated_value, last_price_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.Exec(ctx, query,
		item.ID, item.Name, item.Series, nullableString(item.Number), nullableString(item.Variant),
		item.IsChase, item.IsExclusive, item.IsVaulted, item.IsStickered,
		nullableString(item.StickerType), item.StickerMultiplier,
		item.EstimatedValue, item.BaseEstimatedValue, item.LastPriceUpdate,
	)
	if err != nil {
		return fmt.Errorf("insert catalog item: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetItem fetches a single item by id.
func (s *CatalogStore) GetItem(ctx context.Context, id uuid.UUID) (catalog.CatalogItem, error) {
	query := `SELECT` + catalogItemColumns + `
		FROM catalog_items
		WHERE id = $1`
	item, err := scanCatalogItem(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.CatalogItem{}, catalog.ErrNotFound
		}
		return catalog.CatalogItem{}, fmt.Errorf("get catalog item: %w", err)
	}
	return item, nil
}

// SelectStaleItems returns up to limit items never priced or priced before
// cutoff, never-priced first, then oldest.
func (s *CatalogStore) SelectStaleItems(ctx context.Context, cutoff time.Time, limit int) ([]catalog.CatalogItem, error) {
	query := `SELECT` + catalogItemColumns + `
		FROM catalog_items
		WHERE last_price_update IS NULL OR last_price_update < $1
		ORDER BY last_price_update ASC NULLS FIRST
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale items: %w", err)
	}
	defer rows.Close()

	var items []catalog.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale items: %w", err)
	}
	return items, nil
}

// UpdatePricing writes aggregated values. The timestamp guard keeps
// last_price_update monotonic under concurrent aggregator runs.
func (s *CatalogStore) UpdatePricing(ctx context.Context, id uuid.UUID, estimated, base float64, at time.Time) error {
	query := `
		UPDATE catalog_items
		SET estimated_value = $1, base_estimated_value = $2, last_price_update = $3
		WHERE id = $4 AND (last_price_update IS NULL OR last_price_update <= $3)`
	tag, err := s.db.Exec(ctx, query, estimated, base, at, id)
	if err != nil {
		return fmt.Errorf("update pricing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// TouchPriceUpdate advances last_price_update without touching values.
func (s *CatalogStore) TouchPriceUpdate(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE catalog_items
		SET last_price_update = $1
		WHERE id = $2 AND (last_price_update IS NULL OR last_price_update <= $1)`
	tag, err := s.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("touch price update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ResetPriceUpdates nulls every item's last_price_update so the next
// scheduler pass treats the whole catalog as stale.
func (s *CatalogStore) ResetPriceUpdates(ctx context.Context) (int64, error) {
	query := `
		UPDATE catalog_items
		SET last_price_update = NULL
		WHERE last_price_update IS NOT NULL`
	tag, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset price updates: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCatalogItem(row pgx.Row) (catalog.CatalogItem, error) {
	var (
		item                         catalog.CatalogItem
		number, variant, stickerType *string
	)
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Series,
		&number,
		&variant,
		&item.IsChase,
		&item.IsExclusive,
		&item.IsVaulted,
		&item.IsStickered,
		&stickerType,
		&item.StickerMultiplier,
		&item.EstimatedValue,
		&item.BaseEstimatedValue,
		&item.LastPriceUpdate,
	)
	if err != nil {
		return catalog.CatalogItem{}, err
	}
	if number != nil {
		item.Number = *number
	}
	if variant != nil {
		item.Variant = *variant
	}
	if stickerType != nil {
		item.StickerType = *stickerType
	}
	return item, nil
}
