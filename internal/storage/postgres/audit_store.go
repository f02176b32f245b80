package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/popvault/pricewatch/internal/catalog"
)

// AuditStore persists pricing update requests. Callers treat writes as
// best-effort; errors are logged upstream, never fatal.
type AuditStore struct {
	db querier
}

// NewAuditStore wraps a pool (or mock) as an AuditStore.
func NewAuditStore(db querier) *AuditStore {
	return &AuditStore{db: db}
}

// Create inserts a pending pricing update request.
func (s *AuditStore) Create(ctx context.Context, req catalog.PricingUpdateRequest) error {
	query := `
		INSERT INTO pricing_update_requests
			(id, user_id, item_id, request_type, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	if _, err := s.db.Exec(ctx, query,
		req.ID,
		req.UserID,
		req.ItemID,
		req.RequestType,
		req.Status,
		notes,
		req.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert pricing update request: %w", err)
	}
	return nil
}

// Resolve moves a request to its terminal status with explanatory notes.
func (s *AuditStore) Resolve(ctx context.Context, id uuid.UUID, status catalog.RequestStatus, notes string, at time.Time) error {
	query := `
		UPDATE pricing_update_requests
		SET status = $2, notes = $3, resolved_at = $4
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id, status, notes, at)
	if err != nil {
		return fmt.Errorf("resolve pricing update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
