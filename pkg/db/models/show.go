package models

import (
	"time"

	"github.com/google/uuid"
)

// Show is a live selling session. SalesCount is a denormalized counter
// bumped best-effort when payments confirm; it is display data, not a ledger.
type Show struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID   uuid.UUID `gorm:"type:uuid;not null" json:"sellerId"`
	Title      string    `gorm:"type:text;not null" json:"title"`
	Status     string    `gorm:"type:text;not null;default:'scheduled'" json:"status"`
	SalesCount int       `gorm:"not null;default:0" json:"salesCount"`
	CreatedAt  time.Time `gorm:"type:timestamptz;default:now()" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;default:now()" json:"updatedAt"`
}
