package shows

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
)

// Repository exposes persistence helpers for shows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Show, error)
	IncrementSalesCount(ctx context.Context, showID uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shows repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Show, error) {
	var show models.Show
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&show).Error
	if err != nil {
		return nil, err
	}
	return &show, nil
}

// IncrementSalesCount bumps the denormalized counter. Callers treat failures
// as non-fatal; the counter is display data recomputed by analytics offline.
func (r *repository) IncrementSalesCount(ctx context.Context, showID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.Show{}).
		Where("id = ?", showID).
		Updates(map[string]any{
			"sales_count": gorm.Expr("sales_count + ?", delta),
			"updated_at":  time.Now().UTC(),
		}).Error
}
