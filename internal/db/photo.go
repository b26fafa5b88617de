package db

import (
	"time"

	"github.com/google/uuid"
)

type Photo struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID      uuid.UUID `gorm:"type:uuid;index;not null"`
	PlayerID    uuid.UUID `gorm:"type:uuid;index;not null"`
	StoragePath string    `gorm:"size:512;not null"`
	IsVideo     bool      `gorm:"not null;default:false"`
	UploadedAt  time.Time `gorm:"not null"`
}
