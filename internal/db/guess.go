package db

import (
	"time"

	"github.com/google/uuid"
)

type Guess struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoundID         uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_guesses_round_player"`
	PlayerID        uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_guesses_round_player"`
	GuessedPlayerID uuid.UUID `gorm:"type:uuid;not null"`
	Points          int       `gorm:"not null;default:0"`
	GuessedAt       time.Time `gorm:"not null"`
}
