package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/pagination"
)

// Repository exposes persistence helpers for orders.
//
// The Claim* methods are the write half of the idempotency protocol: each one
// is a single conditional UPDATE guarded by the current status, recording the
// Stripe event id under its unique constraint. Zero affected rows means the
// order already moved on; a unique violation means the event was already
// consumed. Both are duplicate signals, not failures.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	ClaimAndMarkPaid(ctx context.Context, orderID uuid.UUID, eventID string, paidAt time.Time) (int64, error)
	ClaimAndRecordFailure(ctx context.Context, orderID uuid.UUID, eventID, reason string) (int64, error)
	ClaimAndCancel(ctx context.Context, orderID uuid.UUID, eventID string) (int64, error)
	AttachToBatch(ctx context.Context, orderID, batchID uuid.UUID) (int64, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Order, error)
	MarkPickedUpByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)
	List(ctx context.Context, params ListQuery) ([]models.Order, *pagination.Cursor, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	CancelPending(ctx context.Context, orderID uuid.UUID) (int64, error)
}

// ListQuery filters the buyer-facing order listing.
type ListQuery struct {
	BuyerID  uuid.UUID
	SellerID *uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}
