package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamcart-live/streamcart-backend/pkg/enums"
)

// PickupBatch groups paid orders from one buyer and one seller within a show
// so the buyer collects everything in a single counter visit.
//
// A partial unique index on (buyer_id, seller_id, show_id) for open statuses
// guarantees at most one open batch per key even under concurrent webhooks.
type PickupBatch struct {
	ID             uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BatchNumber    string            `gorm:"type:text;not null" json:"batchNumber"`
	CompletionCode string            `gorm:"type:text;not null" json:"-"`
	BuyerID        uuid.UUID         `gorm:"type:uuid;not null" json:"buyerId"`
	SellerID       uuid.UUID         `gorm:"type:uuid;not null" json:"sellerId"`
	ShowID         *uuid.UUID        `gorm:"type:uuid" json:"showId,omitempty"`
	Status         enums.BatchStatus `gorm:"type:batch_status;not null;default:'active'" json:"status"`
	TotalItems     int               `gorm:"not null;default:0" json:"totalItems"`
	TotalAmount    decimal.Decimal   `gorm:"type:numeric(12,2);not null;default:0" json:"totalAmount"`
	PickedUpAt     *time.Time        `gorm:"type:timestamptz" json:"pickedUpAt,omitempty"`
	CreatedAt      time.Time         `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt      time.Time         `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}
