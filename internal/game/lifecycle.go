package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
	"photo-guess/internal/store"
)

// transition computes the patch that moves a room out of its status. The
// room passed in already matched the caller's guard.
type transition struct {
	next func(s *Service, ctx context.Context, room domain.Room, at time.Time) (store.RoomPatch, string, error)
}

var transitions = map[domain.RoomStatus]transition{
	domain.StatusLobby: {
		next: func(s *Service, ctx context.Context, room domain.Room, at time.Time) (store.RoomPatch, string, error) {
			const op = "game.start_upload"
			n, err := s.store.CountPlayers(ctx, room.ID)
			if err != nil {
				return store.RoomPatch{}, "", domain.Transient(op, err)
			}
			if n < s.cfg.MinPlayers {
				return store.RoomPatch{}, "", domain.Validation(op, "need at least %d players to start", s.cfg.MinPlayers)
			}
			return store.RoomPatch{Status: domain.StatusUploading}, "upload_started", nil
		},
	},
	domain.StatusUploading: {
		next: func(s *Service, ctx context.Context, room domain.Room, at time.Time) (store.RoomPatch, string, error) {
			if _, err := s.EnsureRounds(ctx, room); err != nil {
				return store.RoomPatch{}, "", err
			}
			return store.RoomPatch{
				Status:         domain.StatusPlaying,
				CurrentRound:   domain.IntPtr(1),
				RoundStartedAt: &at,
			}, "game_started", nil
		},
	},
	domain.StatusPlaying: {
		next: func(s *Service, ctx context.Context, room domain.Room, at time.Time) (store.RoomPatch, string, error) {
			const op = "game.advance"
			total, err := s.store.CountRounds(ctx, room.ID)
			if err != nil {
				return store.RoomPatch{}, "", domain.Transient(op, err)
			}
			if current, err := s.store.GetRoundByNumber(ctx, room.ID, room.Round()); err == nil {
				if err := s.store.EndRound(ctx, current.ID, at); err != nil {
					s.log.Warn().Err(err).Str("op", op).Msg("round end time not stored")
				}
			}
			if room.Round() >= total {
				return store.RoomPatch{Status: domain.StatusFinished}, "game_finished", nil
			}
			return store.RoomPatch{
				CurrentRound:   domain.IntPtr(room.Round() + 1),
				RoundStartedAt: &at,
			}, "round_advanced", nil
		},
	},
}

// StartUpload moves the lobby into the upload phase.
func (s *Service) StartUpload(ctx context.Context, sess domain.Session) (domain.Room, error) {
	return s.transition(ctx, "game.start_upload", sess, store.RoomGuard{Status: domain.StatusLobby})
}

// StartPlaying builds the rounds if needed and opens round 1.
func (s *Service) StartPlaying(ctx context.Context, sess domain.Session) (domain.Room, error) {
	return s.transition(ctx, "game.start_playing", sess, store.RoomGuard{Status: domain.StatusUploading})
}

// Advance moves past observedRound: to the next round, or to finished
// after the last one. Repeating it for the same round is a conflict.
func (s *Service) Advance(ctx context.Context, sess domain.Session, observedRound int) (domain.Room, error) {
	return s.transition(ctx, "game.advance", sess, store.RoomGuard{
		Status:       domain.StatusPlaying,
		CurrentRound: domain.IntPtr(observedRound),
	})
}

func (s *Service) transition(ctx context.Context, op string, sess domain.Session, guard store.RoomGuard) (domain.Room, error) {
	room, err := s.room(ctx, op, sess.RoomID)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.IsHost(sess.UserID) {
		return domain.Room{}, domain.Unauthorized(op, "only the host can do that")
	}
	if err := checkGuard(op, room, guard); err != nil {
		return domain.Room{}, err
	}
	t, ok := transitions[room.Status]
	if !ok {
		return domain.Room{}, domain.Conflict(op, "the game is over")
	}
	at := s.now()
	patch, event, err := t.next(s, ctx, room, at)
	if err != nil {
		return domain.Room{}, err
	}
	updated, err := s.store.UpdateRoom(ctx, room.ID, guard, patch)
	if err != nil {
		if errors.Is(err, store.ErrStale) {
			return domain.Room{}, domain.Conflict(op, domain.ErrConflict.Error())
		}
		return domain.Room{}, storeErr(op, err, "room not found")
	}
	s.audit(ctx, room.ID, event, map[string]any{
		"from":          room.Status,
		"to":            updated.Status,
		"current_round": updated.CurrentRound,
	})
	s.log.Info().Str("op", op).Str("room_id", room.ID.String()).
		Str("status", string(updated.Status)).Int("round", updated.Round()).Msg(event)
	return updated, nil
}

// checkGuard reports a room that already moved past the guard as a
// conflict, and one that has not reached it yet as invalid.
func checkGuard(op string, room domain.Room, guard store.RoomGuard) error {
	if room.Status == guard.Status && roundEqual(room.CurrentRound, guard.CurrentRound) {
		return nil
	}
	have, want := room.Status.Rank(), guard.Status.Rank()
	if have > want || (have == want && room.Round() > derefRound(guard.CurrentRound)) {
		return domain.Conflict(op, domain.ErrConflict.Error())
	}
	if guard.CurrentRound != nil && have == want {
		return domain.Validation(op, "round %d is not in play yet", *guard.CurrentRound)
	}
	return domain.Validation(op, "the room is still in %s", room.Status)
}

func roundEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefRound(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// EnsureRounds builds the room's rounds unless they already exist and
// returns how many there are. Concurrent callers settle on whichever batch
// landed first.
func (s *Service) EnsureRounds(ctx context.Context, room domain.Room) (int, error) {
	const op = "game.ensure_rounds"
	n, err := s.store.CountRounds(ctx, room.ID)
	if err != nil {
		return 0, domain.Transient(op, err)
	}
	if n > 0 {
		return n, nil
	}
	photos, err := s.store.ListPhotos(ctx, store.PhotoFilter{RoomID: room.ID})
	if err != nil {
		return 0, domain.Transient(op, err)
	}
	if len(photos) == 0 {
		return 0, domain.Validation(op, "no photos have been uploaded")
	}
	rounds := BuildRounds(room.ID, photos, lockedRand{s}, s.now())
	if err := s.store.CreateRounds(ctx, rounds); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return 0, domain.Transient(op, err)
		}
		s.log.Debug().Str("op", op).Str("room_id", room.ID.String()).Msg("rounds already built")
		n, err := s.store.CountRounds(ctx, room.ID)
		if err != nil {
			return 0, domain.Transient(op, err)
		}
		return n, nil
	}
	s.audit(ctx, room.ID, "rounds_built", map[string]any{"rounds": len(rounds)})
	return len(rounds), nil
}

// TotalRounds reports how many rounds the room plays.
func (s *Service) TotalRounds(ctx context.Context, roomID uuid.UUID) (int, error) {
	n, err := s.store.CountRounds(ctx, roomID)
	if err != nil {
		return 0, domain.Transient("game.total_rounds", err)
	}
	return n, nil
}
