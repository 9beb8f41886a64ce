package sellers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
)

// Repository exposes persistence helpers for sellers and their Connect state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
	FindByStripeAccountID(ctx context.Context, accountID string) (*models.Seller, error)
	MarkConnected(ctx context.Context, sellerID uuid.UUID, now time.Time) (int64, error)
	MarkDeauthorized(ctx context.Context, accountID string, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sellers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&seller).Error
	if err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&seller).Error
	if err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) FindByStripeAccountID(ctx context.Context, accountID string) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).
		Where("stripe_account_id = ?", accountID).
		First(&seller).Error
	if err != nil {
		return nil, err
	}
	return &seller, nil
}

// MarkConnected flips the connected flag on. The deauthorization guard makes
// revocation final: once stripe_deauthorized_at is set, no later account or
// capability event can re-enable the seller.
func (r *repository) MarkConnected(ctx context.Context, sellerID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Seller{}).
		Where("id = ? AND stripe_deauthorized_at IS NULL AND stripe_connected = ?", sellerID, false).
		Updates(map[string]any{
			"stripe_connected":    true,
			"stripe_connected_at": now,
			"updated_at":          now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkDeauthorized(ctx context.Context, accountID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Seller{}).
		Where("stripe_account_id = ? AND stripe_deauthorized_at IS NULL", accountID).
		Updates(map[string]any{
			"stripe_connected":       false,
			"stripe_deauthorized_at": now,
			"updated_at":             now,
		})
	return result.RowsAffected, result.Error
}
