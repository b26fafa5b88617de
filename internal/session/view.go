package session

import (
	"errors"
	"slices"

	"photo-guess/internal/domain"
	"photo-guess/internal/game"
)

type Screen string

const (
	ScreenLoading Screen = "loading"
	ScreenHome    Screen = "home"
	ScreenLobby   Screen = "lobby"
	ScreenUpload  Screen = "upload"
	ScreenGame    Screen = "game"
	ScreenResults Screen = "results"
)

func screenFor(status domain.RoomStatus) Screen {
	switch status {
	case domain.StatusLobby:
		return ScreenLobby
	case domain.StatusUploading:
		return ScreenUpload
	case domain.StatusPlaying:
		return ScreenGame
	case domain.StatusFinished:
		return ScreenResults
	}
	return ScreenHome
}

// View is one client's picture of its room.
type View struct {
	Screen    Screen            `json:"screen"`
	Session   domain.Session    `json:"session"`
	Room      *domain.Room      `json:"room,omitempty"`
	IsHost    bool              `json:"is_host"`
	Players   []domain.Player   `json:"players"`
	Round     *RoundInfo        `json:"round,omitempty"`
	Options   []domain.Player   `json:"options,omitempty"`
	Guessed   bool              `json:"guessed"`
	LastGuess *game.GuessResult `json:"last_guess,omitempty"`
	Remaining int               `json:"remaining"`
	Budget    int               `json:"budget"`
	Error     string            `json:"error,omitempty"`
}

// NewView is the state before anything has been read.
func NewView(sess domain.Session, budget int) View {
	return View{Screen: ScreenLoading, Session: sess, Budget: budget, Remaining: budget}
}

// RoundNumber is the current round as last read, or 0.
func (v View) RoundNumber() int {
	if v.Room == nil {
		return 0
	}
	return v.Room.Round()
}

// AllReady reports whether every seated player has finished uploading.
func (v View) AllReady() bool {
	if len(v.Players) == 0 {
		return false
	}
	for _, p := range v.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// Reduce applies one event to a view. It has no side effects; fetches
// and commands are decided by the caller from the before and after views.
func Reduce(v View, ev Event) View {
	switch e := ev.(type) {
	case RoomLoaded:
		room := e.Room
		if behind(room, v.Room) {
			return v
		}
		prevRound := v.RoundNumber()
		v.Room = &room
		v.IsHost = room.IsHost(v.Session.UserID)
		v.Screen = screenFor(room.Status)
		v.Error = ""
		if room.Round() != prevRound {
			v.Round = nil
			v.Options = nil
			v.Guessed = false
			v.LastGuess = nil
			v.Remaining = v.Budget
		}
	case RoundLoaded:
		if e.Round.Number != v.RoundNumber() {
			return v
		}
		round := e.Round
		v.Round = &round
		v.Options = game.GuessOptions(v.Players, v.Session.PlayerID, round.owner)
		if e.Guess != nil {
			v.Guessed = true
		}
	case RosterLoaded:
		v.Players = rank(e.Players)
		if v.Round != nil {
			v.Options = game.GuessOptions(v.Players, v.Session.PlayerID, v.Round.owner)
		}
	case Tick:
		if v.Screen == ScreenGame && v.Round != nil && !v.Round.Mine && !v.Guessed && v.Remaining > 0 {
			v.Remaining--
		}
	case GuessRecorded:
		if e.Round != v.RoundNumber() {
			return v
		}
		result := e.Result
		v.Guessed = true
		v.LastGuess = &result
		v.Error = ""
	case CommandFailed:
		v.Error = domain.Message(e.Err)
		if e.Command == CommandGuess && errors.Is(e.Err, domain.ErrConflict) {
			v.Guessed = true
		}
	case LoadFailed:
		if errors.Is(e.Err, domain.ErrNotFound) {
			v = NewView(v.Session, v.Budget)
			v.Screen = ScreenHome
		}
		v.Error = domain.Message(e.Err)
	}
	return v
}

// behind reports whether room is an older read than current. Status and
// round only move forward, so a lower pair was overtaken.
func behind(room domain.Room, current *domain.Room) bool {
	if current == nil || room.ID != current.ID {
		return false
	}
	if have, seen := room.Status.Rank(), current.Status.Rank(); have != seen {
		return have < seen
	}
	return room.Round() < current.Round()
}

// rank orders by score descending, ties by arrival.
func rank(players []domain.Player) []domain.Player {
	out := slices.Clone(players)
	slices.SortStableFunc(out, func(a, b domain.Player) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return a.JoinedAt.Compare(b.JoinedAt)
	})
	return out
}

type fetch int

const (
	fetchRoom fetch = iota
	fetchRound
	fetchRoster
)

// plan lists the reads needed after ev moved the view from prev to next.
func plan(prev, next View, ev Event) []fetch {
	switch ev.(type) {
	case RoomChanged:
		return []fetch{fetchRoom}
	case RosterChanged:
		return []fetch{fetchRoster}
	case Resync:
		out := []fetch{fetchRoom, fetchRoster}
		if next.RoundNumber() > 0 {
			out = append(out, fetchRound)
		}
		return out
	case RoomLoaded:
		var out []fetch
		if n := next.RoundNumber(); n > 0 && (n != prev.RoundNumber() || next.Round == nil) {
			out = append(out, fetchRound)
		}
		if prev.Room == nil || prev.Room.Status != next.Room.Status {
			out = append(out, fetchRoster)
		}
		return out
	}
	return nil
}

// wantsAutoStart reports whether the host should move the room into play.
func wantsAutoStart(v View) bool {
	return v.IsHost && v.Room != nil && v.Room.Status == domain.StatusUploading && v.AllReady()
}
