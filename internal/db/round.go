package db

import (
	"time"

	"github.com/google/uuid"
)

type Round struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RoomID          uuid.UUID  `gorm:"type:uuid;index;not null;uniqueIndex:idx_rounds_room_number"`
	Number          int        `gorm:"column:round_number;not null;uniqueIndex:idx_rounds_room_number"`
	PhotoID         uuid.UUID  `gorm:"type:uuid;not null"`
	CorrectPlayerID uuid.UUID  `gorm:"type:uuid;not null"`
	StartedAt       time.Time  `gorm:"not null"`
	EndedAt         *time.Time `gorm:""`
	Guesses         []Guess    `gorm:"constraint:OnDelete:CASCADE"`
}
