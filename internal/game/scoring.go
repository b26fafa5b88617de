package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"photo-guess/internal/config"
	"photo-guess/internal/domain"
	"photo-guess/internal/store"
)

// Rules holds the scoring constants.
type Rules struct {
	// Budget is the countdown length in seconds.
	Budget         int
	BasePoints     int
	BonusPerSecond int
}

// DefaultRules is 100 points plus 5 per second left on a 20 second clock.
var DefaultRules = Rules{Budget: 20, BasePoints: 100, BonusPerSecond: 5}

// RulesFrom reads the scoring constants from the game config.
func RulesFrom(cfg config.Game) Rules {
	return Rules{
		Budget:         cfg.GuessSeconds,
		BasePoints:     cfg.BasePoints,
		BonusPerSecond: cfg.BonusPerSecond,
	}
}

// Points scores a guess. Wrong guesses earn nothing; right ones earn the
// base plus a bonus for every second left on the clock.
func (r Rules) Points(correct bool, remaining int) int {
	if !correct {
		return 0
	}
	return r.BasePoints + r.BonusPerSecond*r.Clamp(remaining)
}

// Clamp bounds a reported countdown to [0, Budget].
func (r Rules) Clamp(remaining int) int {
	return min(max(remaining, 0), r.Budget)
}

// timerGrace absorbs the delay between the client tick and the request.
const timerGrace = time.Second

// remaining decides how many seconds a guess is credited with. The client
// reports its countdown; unless trusted, it is capped by the time since
// the round became current.
func (s *Service) remaining(room domain.Room, reported int) int {
	left := s.rules.Clamp(reported)
	if s.cfg.TrustClientTimer || room.RoundStartedAt == nil {
		return left
	}
	elapsed := s.now().Sub(*room.RoundStartedAt) - timerGrace
	if elapsed < 0 {
		elapsed = 0
	}
	serverLeft := s.rules.Clamp(s.rules.Budget - int(elapsed/time.Second))
	return min(left, serverLeft)
}

type GuessResult struct {
	Guess     domain.Guess `json:"guess"`
	Correct   bool         `json:"correct"`
	Remaining int          `json:"remaining"`
	Score     int          `json:"score"`
}

// SubmitGuess records the player's pick for the current round and adds
// the points to their score.
func (s *Service) SubmitGuess(ctx context.Context, sess domain.Session, guessed uuid.UUID, reported int) (GuessResult, error) {
	const op = "game.submit_guess"
	log := s.log.With().Str("op", op).Str("room_id", sess.RoomID.String()).Str("player_id", sess.PlayerID.String()).Logger()

	room, err := s.room(ctx, op, sess.RoomID)
	if err != nil {
		return GuessResult{}, err
	}
	if room.Status != domain.StatusPlaying {
		return GuessResult{}, domain.Validation(op, "the game is not running")
	}
	round, err := s.store.GetRoundByNumber(ctx, room.ID, room.Round())
	if err != nil {
		return GuessResult{}, storeErr(op, err, "round not found")
	}
	if round.CorrectPlayerID == sess.PlayerID {
		return GuessResult{}, domain.Validation(op, "you cannot guess on your own photo")
	}
	if guessed == sess.PlayerID {
		return GuessResult{}, domain.Validation(op, "you cannot pick yourself")
	}
	target, err := s.store.GetPlayer(ctx, guessed)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return GuessResult{}, domain.Transient(op, err)
	}
	if err != nil || target.RoomID != room.ID {
		return GuessResult{}, domain.Validation(op, "that player is not in this room")
	}
	if _, err := s.store.FindGuess(ctx, round.ID, sess.PlayerID); err == nil {
		return GuessResult{}, domain.Conflict(op, "you already guessed this round")
	} else if !errors.Is(err, store.ErrNotFound) {
		return GuessResult{}, domain.Transient(op, err)
	}

	correct := guessed == round.CorrectPlayerID
	left := s.remaining(room, reported)
	guess := domain.Guess{
		ID:              uuid.New(),
		RoundID:         round.ID,
		PlayerID:        sess.PlayerID,
		GuessedPlayerID: guessed,
		Points:          s.rules.Points(correct, left),
		GuessedAt:       s.now(),
	}
	if err := s.store.CreateGuess(ctx, guess); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return GuessResult{}, domain.Conflict(op, "you already guessed this round")
		}
		return GuessResult{}, domain.Transient(op, err)
	}
	result := GuessResult{Guess: guess, Correct: correct, Remaining: left}

	score, err := s.addScore(ctx, sess.PlayerID, guess.Points)
	if err != nil {
		log.Error().Err(err).Int("points", guess.Points).Msg("guess saved but score not updated")
		return result, &domain.Error{
			Kind: domain.ErrTransient,
			Op:   op,
			Msg:  "your guess was saved but your score was not updated",
			Err:  err,
		}
	}
	result.Score = score
	s.audit(ctx, room.ID, "guess_submitted", map[string]any{
		"player_id":    sess.PlayerID,
		"round_number": round.Number,
		"correct":      correct,
		"points":       guess.Points,
	})
	log.Debug().Bool("correct", correct).Int("points", guess.Points).Int("round", round.Number).Msg("guess recorded")
	return result, nil
}

// addScore is a read-modify-write on the player's score. A concurrent
// write to the same score is re-read once.
func (s *Service) addScore(ctx context.Context, playerID uuid.UUID, points int) (int, error) {
	var lastErr error
	for range 2 {
		player, err := s.store.GetPlayer(ctx, playerID)
		if err != nil {
			return 0, err
		}
		if points == 0 {
			return player.Score, nil
		}
		next := player.Score + points
		err = s.store.UpdatePlayerScore(ctx, playerID, player.Score, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, store.ErrStale) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// ReconcileScore raises the player's score to the sum of their guess
// points. It repairs a score update that failed after the guess was saved.
func (s *Service) ReconcileScore(ctx context.Context, sess domain.Session) (int, error) {
	const op = "game.reconcile_score"
	total, err := s.store.SumGuessPoints(ctx, sess.PlayerID)
	if err != nil {
		return 0, domain.Transient(op, err)
	}
	player, err := s.store.GetPlayer(ctx, sess.PlayerID)
	if err != nil {
		return 0, storeErr(op, err, "player not found")
	}
	if total <= player.Score {
		return player.Score, nil
	}
	if err := s.store.UpdatePlayerScore(ctx, player.ID, player.Score, total); err != nil {
		return 0, storeErr(op, err, "player not found")
	}
	s.log.Info().Str("op", op).Str("player_id", player.ID.String()).
		Int("from", player.Score).Int("to", total).Msg("score reconciled")
	return total, nil
}
