package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamcart-live/streamcart-backend/pkg/enums"
)

// CheckoutIntent is a reserved purchase created before the Stripe payment
// confirms. A converted intent is terminal and is never cancelled or reused.
type CheckoutIntent struct {
	ID                    uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Status                enums.IntentStatus `gorm:"type:intent_status;not null;default:'intent'" json:"status"`
	BuyerID               uuid.UUID          `gorm:"type:uuid;not null" json:"buyerId"`
	SellerID              uuid.UUID          `gorm:"type:uuid;not null" json:"sellerId"`
	SellerEntityID        *uuid.UUID         `gorm:"type:uuid" json:"sellerEntityId,omitempty"`
	ShowID                *uuid.UUID         `gorm:"type:uuid" json:"showId,omitempty"`
	ProductID             uuid.UUID          `gorm:"type:uuid;not null" json:"productId"`
	Quantity              int                `gorm:"not null;default:1" json:"quantity"`
	Price                 decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"price"`
	DeliveryFee           decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"deliveryFee"`
	StripePaymentIntentID *string            `gorm:"type:text" json:"stripePaymentIntentId,omitempty"`
	OrderID               *uuid.UUID         `gorm:"type:uuid" json:"orderId,omitempty"`
	CreatedAt             time.Time          `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt             time.Time          `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}
