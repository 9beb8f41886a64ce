package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/streamcart-live/streamcart-backend/pkg/enums"
	"github.com/streamcart-live/streamcart-backend/pkg/types"
)

// Notification stores in-app notification payloads scoped to a recipient.
// Metadata keys order_id and event back the at-most-once delivery check.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RecipientID uuid.UUID              `gorm:"type:uuid;not null" json:"recipientId"`
	Type        enums.NotificationType `gorm:"type:notification_type;not null" json:"type"`
	Title       string                 `gorm:"type:text;not null" json:"title"`
	Message     string                 `gorm:"type:text;not null" json:"message"`
	Metadata    types.JSONMap          `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReadAt      *time.Time             `gorm:"type:timestamptz" json:"readAt,omitempty"`
	CreatedAt   time.Time              `gorm:"type:timestamptz;default:now()" json:"createdAt"`
}
