package db

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Code            string     `gorm:"size:12;uniqueIndex;not null"`
	HostID          uuid.UUID  `gorm:"type:uuid;index;not null"`
	MaxPlayers      int        `gorm:"not null;default:8"`
	PhotosPerPlayer int        `gorm:"not null;default:3"`
	AllowVideos     bool       `gorm:"not null;default:false"`
	Status          string     `gorm:"size:16;not null;default:lobby"`
	CurrentRound    *int       `gorm:""`
	RoundStartedAt  *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
	Players         []Player   `gorm:"constraint:OnDelete:CASCADE"`
	Photos          []Photo    `gorm:"constraint:OnDelete:CASCADE"`
	Rounds          []Round    `gorm:"constraint:OnDelete:CASCADE"`
	Events          []Event    `gorm:"constraint:OnDelete:CASCADE"`
}
