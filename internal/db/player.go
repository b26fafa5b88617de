package db

import (
	"time"

	"github.com/google/uuid"
)

type Player struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID      uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_players_room_user"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_players_room_user"`
	Nickname    string    `gorm:"size:64;not null"`
	AvatarColor string    `gorm:"size:16;not null"`
	Score       int       `gorm:"not null;default:0"`
	IsReady     bool      `gorm:"not null;default:false"`
	JoinedAt    time.Time `gorm:"not null;index"`
	Photos      []Photo   `gorm:"constraint:OnDelete:CASCADE"`
}
