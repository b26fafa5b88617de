package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photo-guess/internal/config"
	"photo-guess/internal/domain"
	"photo-guess/internal/media"
	"photo-guess/internal/store"
)

// Service runs the room lifecycle on top of a record store. It keeps no
// room state of its own: every operation re-reads what it needs and
// writes through conditional single-record updates.
type Service struct {
	store store.Store
	media media.Storage
	cfg   config.Game
	rules Rules
	log   zerolog.Logger
	now   func() time.Time

	maxUpload int64

	rngMu sync.Mutex
	rng   Source
}

type Option func(*Service)

// WithRand makes round order and colour picks reproducible.
func WithRand(r Source) Option {
	return func(s *Service) { s.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxUpload(bytes int64) Option {
	return func(s *Service) { s.maxUpload = bytes }
}

func New(st store.Store, m media.Storage, cfg config.Game, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		media:     m,
		cfg:       cfg,
		rules:     RulesFrom(cfg),
		log:       log.With().Str("component", "game").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		maxUpload: 10 << 20,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) Store() store.Store {
	return s.store
}

// MediaURL resolves a stored photo path for display.
func (s *Service) MediaURL(storagePath string) string {
	if s.media == nil || storagePath == "" {
		return ""
	}
	return s.media.URL(storagePath)
}

func (s *Service) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

// lockedRand serializes access to the service rng for the round builder.
type lockedRand struct{ s *Service }

func (r lockedRand) IntN(n int) int { return r.s.intN(n) }

func (s *Service) room(ctx context.Context, op string, id uuid.UUID) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, storeErr(op, err, "room not found")
	}
	return room, nil
}

func (s *Service) audit(ctx context.Context, roomID uuid.UUID, typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", typ).Msg("encode audit event")
		return
	}
	if err := s.store.AppendEvent(ctx, store.Event{RoomID: roomID, Type: typ, Payload: data}); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Str("room_id", roomID.String()).Msg("audit event not stored")
	}
}

// storeErr maps store failures onto the error kinds players see.
func storeErr(op string, err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.NotFound(op, notFound)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrStale):
		return domain.Conflict(op, domain.ErrConflict.Error())
	default:
		return domain.Transient(op, err)
	}
}
