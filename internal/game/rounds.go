package game

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
)

// Source is the randomness the round builder draws from. *rand.Rand from
// math/rand/v2 satisfies it; seed one for reproducible orders.
type Source interface {
	IntN(n int) int
}

// BuildRounds shuffles photos with Fisher-Yates and numbers them from 1.
// Each round answers with the owner of its photo.
func BuildRounds(roomID uuid.UUID, photos []domain.Photo, rng Source, at time.Time) []domain.Round {
	order := slices.Clone(photos)
	for i := len(order) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	rounds := make([]domain.Round, 0, len(order))
	for i, photo := range order {
		rounds = append(rounds, domain.Round{
			ID:              uuid.New(),
			RoomID:          roomID,
			Number:          i + 1,
			PhotoID:         photo.ID,
			CorrectPlayerID: photo.PlayerID,
			StartedAt:       at,
		})
	}
	return rounds
}
