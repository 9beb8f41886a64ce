package models

import (
	"time"

	"github.com/google/uuid"
)

// Seller is a merchant broadcasting shows on the platform.
//
// StripeDeauthorizedAt is a one-way latch: once the seller revokes the
// platform's Connect access, later account events never re-enable payouts.
type Seller struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID               uuid.UUID  `gorm:"type:uuid;not null" json:"userId"`
	DisplayName          string     `gorm:"type:text;not null" json:"displayName"`
	StripeAccountID      *string    `gorm:"type:text;uniqueIndex:sellers_stripe_account_id_key" json:"-"`
	StripeConnected      bool       `gorm:"not null;default:false" json:"stripeConnected"`
	StripeConnectedAt    *time.Time `gorm:"type:timestamptz" json:"stripeConnectedAt,omitempty"`
	StripeDeauthorizedAt *time.Time `gorm:"type:timestamptz" json:"-"`
	CreatedAt            time.Time  `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}
