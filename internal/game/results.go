package game

import (
	"context"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
	"photo-guess/internal/store"
)

const podiumSize = 3

type Standings struct {
	Room    domain.Room     `json:"room"`
	Players []domain.Player `json:"players"`
	Podium  []domain.Player `json:"podium"`
}

// Winner is the top scorer, if anyone played.
func (s Standings) Winner() (domain.Player, bool) {
	if len(s.Players) == 0 {
		return domain.Player{}, false
	}
	return s.Players[0], true
}

// Results ranks the room's players by score, ties by arrival.
func (s *Service) Results(ctx context.Context, roomID uuid.UUID) (Standings, error) {
	const op = "game.results"
	room, err := s.room(ctx, op, roomID)
	if err != nil {
		return Standings{}, err
	}
	players, err := s.store.ListPlayers(ctx, roomID, store.ByScore)
	if err != nil {
		return Standings{}, domain.Transient(op, err)
	}
	return Standings{
		Room:    room,
		Players: players,
		Podium:  players[:min(podiumSize, len(players))],
	}, nil
}

// GuessOptions lists who viewer may pick for a photo owned by owner. The
// owner sits the round out, everyone else picks among the other players.
func GuessOptions(players []domain.Player, viewer, owner uuid.UUID) []domain.Player {
	if viewer == owner {
		return nil
	}
	out := make([]domain.Player, 0, len(players))
	for _, p := range players {
		if p.ID != viewer {
			out = append(out, p)
		}
	}
	return out
}
