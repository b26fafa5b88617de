package session

import (
	"github.com/google/uuid"

	"photo-guess/internal/domain"
	"photo-guess/internal/game"
)

// Event is anything the client loop reacts to: change notifications,
// timer ticks, fetch completions and command outcomes.
type Event interface {
	event()
}

// RoomChanged means the room record was written by someone.
type RoomChanged struct{}

// RosterChanged means a player in the room was inserted, updated or deleted.
type RosterChanged struct{}

// Resync means notifications may have been lost.
type Resync struct{}

type Tick struct{}

type RoomLoaded struct {
	Room domain.Room
}

// RoundInfo is what a player is allowed to see of a round.
type RoundInfo struct {
	Number   int    `json:"number"`
	PhotoURL string `json:"photo_url"`
	IsVideo  bool   `json:"is_video"`
	// Mine marks a round on the local player's own photo.
	Mine bool `json:"mine"`

	owner uuid.UUID
}

type RoundLoaded struct {
	Round RoundInfo
	// Guess is the local player's earlier guess on this round, if any.
	Guess *domain.Guess
}

type RosterLoaded struct {
	Players []domain.Player
}

type LoadFailed struct {
	Err error
}

// GuessRecorded carries the outcome of the local player's guess.
type GuessRecorded struct {
	Round  int
	Result game.GuessResult
}

type CommandFailed struct {
	Command string
	Err     error
}

func (RoomChanged) event()   {}
func (RosterChanged) event() {}
func (Resync) event()        {}
func (Tick) event()          {}
func (RoomLoaded) event()    {}
func (RoundLoaded) event()   {}
func (RosterLoaded) event()  {}
func (LoadFailed) event()    {}
func (GuessRecorded) event() {}
func (CommandFailed) event() {}
