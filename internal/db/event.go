package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is the append-only audit trail of room transitions.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	RoomID    uuid.UUID      `gorm:"type:uuid;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
