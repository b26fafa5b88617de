package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	StatusLobby     RoomStatus = "lobby"
	StatusUploading RoomStatus = "uploading"
	StatusPlaying   RoomStatus = "playing"
	StatusFinished  RoomStatus = "finished"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case StatusLobby, StatusUploading, StatusPlaying, StatusFinished:
		return true
	}
	return false
}

// Rank orders statuses along the game. Rooms never move to a lower rank.
func (s RoomStatus) Rank() int {
	switch s {
	case StatusUploading:
		return 1
	case StatusPlaying:
		return 2
	case StatusFinished:
		return 3
	}
	return 0
}

// HasRound reports whether rooms in this status carry a current round.
func (s RoomStatus) HasRound() bool {
	return s == StatusPlaying || s == StatusFinished
}

type Color string

const (
	ColorPurple Color = "purple"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
	ColorPink   Color = "pink"
	ColorCyan   Color = "cyan"
)

var Palette = []Color{
	ColorPurple, ColorBlue, ColorGreen, ColorYellow,
	ColorOrange, ColorRed, ColorPink, ColorCyan,
}

func (c Color) Valid() bool {
	for _, p := range Palette {
		if c == p {
			return true
		}
	}
	return false
}

type Room struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	HostID          uuid.UUID  `json:"host_id"`
	MaxPlayers      int        `json:"max_players"`
	PhotosPerPlayer int        `json:"photos_per_player"`
	AllowVideos     bool       `json:"allow_videos"`
	Status          RoomStatus `json:"status"`
	CurrentRound    *int       `json:"current_round"`
	RoundStartedAt  *time.Time `json:"round_started_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (r *Room) IsHost(userID uuid.UUID) bool {
	return r != nil && r.HostID == userID
}

// Round returns the current round number, or 0 when there is none.
func (r *Room) Round() int {
	if r == nil || r.CurrentRound == nil {
		return 0
	}
	return *r.CurrentRound
}

type Player struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	UserID      uuid.UUID `json:"user_id"`
	Nickname    string    `json:"nickname"`
	AvatarColor Color     `json:"avatar_color"`
	Score       int       `json:"score"`
	IsReady     bool      `json:"is_ready"`
	JoinedAt    time.Time `json:"joined_at"`
}

type Photo struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	PlayerID    uuid.UUID `json:"player_id"`
	StoragePath string    `json:"storage_path"`
	IsVideo     bool      `json:"is_video"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type Round struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	Number          int        `json:"round_number"`
	PhotoID         uuid.UUID  `json:"photo_id"`
	CorrectPlayerID uuid.UUID  `json:"correct_player_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type Guess struct {
	ID              uuid.UUID `json:"id"`
	RoundID         uuid.UUID `json:"round_id"`
	PlayerID        uuid.UUID `json:"player_id"`
	GuessedPlayerID uuid.UUID `json:"guessed_player_id"`
	Points          int       `json:"points"`
	GuessedAt       time.Time `json:"guessed_at"`
}

// IntPtr is a small helper for the nullable round pointer.
func IntPtr(v int) *int {
	return &v
}
