package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	"github.com/streamcart-live/streamcart-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// StripeEventConstraint names the unique index over last_stripe_event_id.
// Claim writes that trip it lost the event to another order's transaction.
const StripeEventConstraint = "orders_last_stripe_event_id_key"

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ClaimAndMarkPaid(ctx context.Context, orderID uuid.UUID, eventID string, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":               enums.OrderStatusPaid,
			"paid_at":              paidAt,
			"failure_reason":       nil,
			"last_stripe_event_id": eventID,
			"updated_at":           paidAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ClaimAndRecordFailure(ctx context.Context, orderID uuid.UUID, eventID, reason string) (int64, error) {
	// A failed payment leaves the order pending so the buyer can retry.
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"failure_reason":       reason,
			"last_stripe_event_id": eventID,
			"updated_at":           time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ClaimAndCancel(ctx context.Context, orderID uuid.UUID, eventID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":               enums.OrderStatusCancelled,
			"last_stripe_event_id": eventID,
			"updated_at":           time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) AttachToBatch(ctx context.Context, orderID, batchID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND batch_id IS NULL", orderID).
		Updates(map[string]any{
			"batch_id":   batchID,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkPickedUpByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("batch_id = ? AND status IN ?", batchID, []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusReady}).
		Updates(map[string]any{
			"status":     enums.OrderStatusPickedUp,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", params.BuyerID)
	if params.SellerID != nil {
		query = query.Where("seller_id = ? OR seller_entity_id = ?", *params.SellerID, *params.SellerID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		// The follow-up query filters strictly below the cursor, so the
		// cursor must be the last row handed back, not the first one held.
		rows = rows[:normalized]
		last := rows[normalized-1]
		return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CancelPending(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":     enums.OrderStatusCancelled,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
