package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamcart-live/streamcart-backend/pkg/enums"
)

// Order is a single product purchase made during a live show.
//
// LastStripeEventID carries the unique constraint that makes webhook
// processing single-writer per order: the first transaction to record an
// event id wins, every replay collides or matches zero rows.
type Order struct {
	ID                    uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID               uuid.UUID         `gorm:"type:uuid;not null" json:"buyerId"`
	SellerID              uuid.UUID         `gorm:"type:uuid;not null" json:"sellerId"`
	SellerEntityID        *uuid.UUID        `gorm:"type:uuid" json:"sellerEntityId,omitempty"`
	ProductID             uuid.UUID         `gorm:"type:uuid;not null" json:"productId"`
	ShowID                *uuid.UUID        `gorm:"type:uuid" json:"showId,omitempty"`
	Quantity              int               `gorm:"not null;default:1" json:"quantity"`
	Price                 decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"price"`
	DeliveryFee           decimal.Decimal   `gorm:"type:numeric(12,2);not null;default:0" json:"deliveryFee"`
	Status                enums.OrderStatus `gorm:"type:order_status;not null;default:'pending'" json:"status"`
	StripePaymentIntentID *string           `gorm:"type:text" json:"stripePaymentIntentId,omitempty"`
	LastStripeEventID     *string           `gorm:"type:text;uniqueIndex:orders_last_stripe_event_id_key" json:"-"`
	BatchID               *uuid.UUID        `gorm:"type:uuid" json:"batchId,omitempty"`
	FailureReason         *string           `gorm:"type:text" json:"failureReason,omitempty"`
	PaidAt                *time.Time        `gorm:"type:timestamptz" json:"paidAt,omitempty"`
	CreatedAt             time.Time         `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt             time.Time         `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}

// SellerKey returns the canonical seller identifier used for batch grouping.
// Orders created before seller entities existed only carry the legacy user id.
func (o *Order) SellerKey() uuid.UUID {
	if o.SellerEntityID != nil && *o.SellerEntityID != uuid.Nil {
		return *o.SellerEntityID
	}
	return o.SellerID
}

// Total is the amount this order contributes to batch totals.
func (o *Order) Total() decimal.Decimal {
	return o.Price.Add(o.DeliveryFee)
}
