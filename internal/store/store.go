package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrStale means a conditional update found the record in a different
	// state than the caller expected.
	ErrStale = errors.New("record changed since it was read")
)

type PlayerOrder int

const (
	ByJoined PlayerOrder = iota
	// ByScore orders by score descending, ties broken by arrival.
	ByScore
)

// RoomGuard is the expected state for a conditional room update.
type RoomGuard struct {
	Status domain.RoomStatus
	// CurrentRound nil means the stored round must be null.
	CurrentRound *int
}

// RoomPatch lists the columns to change. Zero values are left alone.
type RoomPatch struct {
	Status         domain.RoomStatus
	CurrentRound   *int
	RoundStartedAt *time.Time
}

// PhotoFilter matches photos by room and, when set, by owner.
type PhotoFilter struct {
	RoomID   uuid.UUID
	PlayerID uuid.UUID
}

type Event struct {
	ID        uint
	RoomID    uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (domain.Room, error)
	UpdateRoom(ctx context.Context, id uuid.UUID, guard RoomGuard, patch RoomPatch) (domain.Room, error)
	DeleteRoom(ctx context.Context, id uuid.UUID) error
	GenerateRoomCode(ctx context.Context) (string, error)
}

type PlayerStore interface {
	CreatePlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (domain.Player, error)
	FindPlayer(ctx context.Context, roomID, userID uuid.UUID) (domain.Player, error)
	ListPlayers(ctx context.Context, roomID uuid.UUID, order PlayerOrder) ([]domain.Player, error)
	CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error)
	UpdatePlayerReady(ctx context.Context, id uuid.UUID, ready bool) error
	// UpdatePlayerScore writes to only when the stored score still equals from.
	UpdatePlayerScore(ctx context.Context, id uuid.UUID, from, to int) error
	DeletePlayer(ctx context.Context, id uuid.UUID) error
}

type PhotoStore interface {
	CreatePhoto(ctx context.Context, photo domain.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (domain.Photo, error)
	ListPhotos(ctx context.Context, filter PhotoFilter) ([]domain.Photo, error)
	CountPhotos(ctx context.Context, filter PhotoFilter) (int, error)
	DeletePhoto(ctx context.Context, id uuid.UUID) error
}

type RoundStore interface {
	// CreateRounds inserts the batch as a whole or not at all.
	CreateRounds(ctx context.Context, rounds []domain.Round) error
	CountRounds(ctx context.Context, roomID uuid.UUID) (int, error)
	GetRoundByNumber(ctx context.Context, roomID uuid.UUID, number int) (domain.Round, error)
	EndRound(ctx context.Context, id uuid.UUID, at time.Time) error
}

type GuessStore interface {
	CreateGuess(ctx context.Context, guess domain.Guess) error
	FindGuess(ctx context.Context, roundID, playerID uuid.UUID) (domain.Guess, error)
	SumGuessPoints(ctx context.Context, playerID uuid.UUID) (int, error)
}

type EventStore interface {
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, roomID uuid.UUID) ([]Event, error)
}

type Feed interface {
	Subscribe(ctx context.Context, filter Filter) *Subscription
}

// Store is the record store the game runs on.
type Store interface {
	RoomStore
	PlayerStore
	PhotoStore
	RoundStore
	GuessStore
	EventStore
	Feed
}

func sameRound(stored, expected *int) bool {
	if stored == nil || expected == nil {
		return stored == nil && expected == nil
	}
	return *stored == *expected
}
