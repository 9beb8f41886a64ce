package batches

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/streamcart-live/streamcart-backend/pkg/db/models"
	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	"github.com/streamcart-live/streamcart-backend/pkg/pagination"
)

// OpenBatchConstraint names the partial unique index that serializes
// concurrent open-batch creation per (buyer, seller, show) key.
const OpenBatchConstraint = "pickup_batches_open_key"

// Repository exposes persistence helpers for pickup batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, batch *models.PickupBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PickupBatch, error)
	FindOpen(ctx context.Context, buyerID, sellerID uuid.UUID, showID *uuid.UUID) (*models.PickupBatch, error)
	Promote(ctx context.Context, batchID uuid.UUID) (int64, error)
	AggregateTotals(ctx context.Context, batchID uuid.UUID) (int, decimal.Decimal, error)
	UpdateTotals(ctx context.Context, batchID uuid.UUID, items int, amount decimal.Decimal) error
	MarkPickedUp(ctx context.Context, batchID uuid.UUID, now time.Time) (int64, error)
	List(ctx context.Context, params ListQuery) ([]models.PickupBatch, *pagination.Cursor, error)
}

// ListQuery filters the buyer-facing batch listing.
type ListQuery struct {
	BuyerID uuid.UUID
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a batches repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, batch *models.PickupBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PickupBatch, error) {
	var batch models.PickupBatch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) FindOpen(ctx context.Context, buyerID, sellerID uuid.UUID, showID *uuid.UUID) (*models.PickupBatch, error) {
	query := r.db.WithContext(ctx).
		Where("buyer_id = ? AND seller_id = ? AND status IN ?", buyerID, sellerID, enums.OpenBatchStatuses)
	if showID == nil {
		query = query.Where("show_id IS NULL")
	} else {
		query = query.Where("show_id = ?", *showID)
	}

	var batch models.PickupBatch
	if err := query.First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// Promote moves an empty batch to pending once its first paid order lands.
func (r *repository) Promote(ctx context.Context, batchID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PickupBatch{}).
		Where("id = ? AND status = ?", batchID, enums.BatchStatusActive).
		Updates(map[string]any{
			"status":     enums.BatchStatusPending,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) AggregateTotals(ctx context.Context, batchID uuid.UUID) (int, decimal.Decimal, error) {
	var row struct {
		Items  int             `gorm:"column:items"`
		Amount decimal.Decimal `gorm:"column:amount"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(quantity), 0) AS items, COALESCE(SUM(price + delivery_fee), 0) AS amount").
		Where("batch_id = ? AND status IN ?", batchID, enums.BatchCountableOrderStatuses).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	return row.Items, row.Amount, nil
}

func (r *repository) UpdateTotals(ctx context.Context, batchID uuid.UUID, items int, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.PickupBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]any{
			"total_items":  items,
			"total_amount": amount,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *repository) MarkPickedUp(ctx context.Context, batchID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PickupBatch{}).
		Where("id = ? AND status = ?", batchID, enums.BatchStatusPending).
		Updates(map[string]any{
			"status":       enums.BatchStatusPickedUp,
			"picked_up_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.PickupBatch, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PickupBatch{}).Where("buyer_id = ?", params.BuyerID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.PickupBatch
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
