package intents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
)

// Repository exposes persistence helpers for checkout intents.
//
// Convert and Cancel are status-guarded so a converted intent can never be
// reverted or cancelled, no matter how events interleave.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.CheckoutIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutIntent, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error)
	Convert(ctx context.Context, intentID, orderID uuid.UUID) (int64, error)
	Cancel(ctx context.Context, intentID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout intents repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.CheckoutIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutIntent, error) {
	var intent models.CheckoutIntent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.CheckoutIntent, error) {
	var intent models.CheckoutIntent
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) Convert(ctx context.Context, intentID, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutIntent{}).
		Where("id = ? AND status IN ?", intentID, enums.ConvertibleIntentStatuses).
		Updates(map[string]any{
			"status":     enums.IntentStatusConverted,
			"order_id":   orderID,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Cancel(ctx context.Context, intentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutIntent{}).
		Where("id = ? AND status IN ?", intentID, enums.ConvertibleIntentStatuses).
		Updates(map[string]any{
			"status":     enums.IntentStatusCancelled,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
