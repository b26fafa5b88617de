package domain

import "github.com/google/uuid"

// Session identifies who is acting in which room. Every game operation
// takes one instead of reading ambient state.
type Session struct {
	UserID   uuid.UUID `json:"user_id"`
	RoomID   uuid.UUID `json:"room_id"`
	PlayerID uuid.UUID `json:"player_id"`
}

func (s Session) Valid() bool {
	return s.UserID != uuid.Nil && s.RoomID != uuid.Nil && s.PlayerID != uuid.Nil
}
