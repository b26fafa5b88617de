package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-guess/internal/domain"
)

// runContract exercises the behaviour every Store must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("RoomCodeUnique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)

		dup := newRoom(room.Code)
		assert.ErrorIs(t, s.CreateRoom(ctx, dup), ErrDuplicate)

		code, err := s.GenerateRoomCode(ctx)
		require.NoError(t, err)
		assert.Len(t, code, domain.CodeLength)
		assert.NotEqual(t, room.Code, code)

		got, err := s.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)

		_, err = s.GetRoomByCode(ctx, "ZZZZZZ")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ConditionalRoomUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)

		updated, err := s.UpdateRoom(ctx, room.ID,
			RoomGuard{Status: domain.StatusLobby},
			RoomPatch{Status: domain.StatusUploading})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusUploading, updated.Status)
		assert.Nil(t, updated.CurrentRound)

		_, err = s.UpdateRoom(ctx, room.ID,
			RoomGuard{Status: domain.StatusLobby},
			RoomPatch{Status: domain.StatusUploading})
		assert.ErrorIs(t, err, ErrStale)

		started := time.Now().UTC().Truncate(time.Millisecond)
		updated, err = s.UpdateRoom(ctx, room.ID,
			RoomGuard{Status: domain.StatusUploading},
			RoomPatch{Status: domain.StatusPlaying, CurrentRound: domain.IntPtr(1), RoundStartedAt: &started})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Round())
		require.NotNil(t, updated.RoundStartedAt)
		assert.WithinDuration(t, started, *updated.RoundStartedAt, time.Millisecond)

		_, err = s.UpdateRoom(ctx, room.ID,
			RoomGuard{Status: domain.StatusPlaying, CurrentRound: domain.IntPtr(2)},
			RoomPatch{CurrentRound: domain.IntPtr(3)})
		assert.ErrorIs(t, err, ErrStale)

		_, err = s.UpdateRoom(ctx, uuid.New(), RoomGuard{Status: domain.StatusLobby}, RoomPatch{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PlayersPerUserUnique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		user := uuid.New()

		require.NoError(t, s.CreatePlayer(ctx, newPlayer(room.ID, user, "Ada", time.Now())))
		err := s.CreatePlayer(ctx, newPlayer(room.ID, user, "Ada again", time.Now()))
		assert.ErrorIs(t, err, ErrDuplicate)

		n, err := s.CountPlayers(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		found, err := s.FindPlayer(ctx, room.ID, user)
		require.NoError(t, err)
		assert.Equal(t, "Ada", found.Nickname)

		_, err = s.FindPlayer(ctx, room.ID, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PlayerOrdering", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		base := time.Now().UTC().Truncate(time.Second)
		a := newPlayer(room.ID, uuid.New(), "A", base)
		b := newPlayer(room.ID, uuid.New(), "B", base.Add(time.Second))
		c := newPlayer(room.ID, uuid.New(), "C", base.Add(2*time.Second))
		for _, p := range []domain.Player{a, b, c} {
			require.NoError(t, s.CreatePlayer(ctx, p))
		}
		require.NoError(t, s.UpdatePlayerScore(ctx, c.ID, 0, 120))
		require.NoError(t, s.UpdatePlayerScore(ctx, b.ID, 0, 120))

		joined, err := s.ListPlayers(ctx, room.ID, ByJoined)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, nicknames(joined))

		ranked, err := s.ListPlayers(ctx, room.ID, ByScore)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C", "A"}, nicknames(ranked))
	})

	t.Run("ScoreUpdateIsConditional", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		p := newPlayer(room.ID, uuid.New(), "Ada", time.Now())
		require.NoError(t, s.CreatePlayer(ctx, p))

		require.NoError(t, s.UpdatePlayerScore(ctx, p.ID, 0, 150))
		assert.ErrorIs(t, s.UpdatePlayerScore(ctx, p.ID, 0, 300), ErrStale)
		assert.ErrorIs(t, s.UpdatePlayerScore(ctx, uuid.New(), 0, 10), ErrNotFound)

		got, err := s.GetPlayer(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 150, got.Score)

		require.NoError(t, s.UpdatePlayerReady(ctx, p.ID, true))
		got, err = s.GetPlayer(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.IsReady)
	})

	t.Run("PhotosFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		ada := newPlayer(room.ID, uuid.New(), "Ada", time.Now())
		ben := newPlayer(room.ID, uuid.New(), "Ben", time.Now())
		require.NoError(t, s.CreatePlayer(ctx, ada))
		require.NoError(t, s.CreatePlayer(ctx, ben))
		p1 := newPhoto(room.ID, ada.ID)
		p2 := newPhoto(room.ID, ada.ID)
		p3 := newPhoto(room.ID, ben.ID)
		for _, ph := range []domain.Photo{p1, p2, p3} {
			require.NoError(t, s.CreatePhoto(ctx, ph))
		}

		n, err := s.CountPhotos(ctx, PhotoFilter{RoomID: room.ID})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = s.CountPhotos(ctx, PhotoFilter{RoomID: room.ID, PlayerID: ada.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, s.DeletePhoto(ctx, p1.ID))
		assert.ErrorIs(t, s.DeletePhoto(ctx, p1.ID), ErrNotFound)
		photos, err := s.ListPhotos(ctx, PhotoFilter{RoomID: room.ID, PlayerID: ada.ID})
		require.NoError(t, err)
		require.Len(t, photos, 1)
		assert.Equal(t, p2.ID, photos[0].ID)
	})

	t.Run("RoundsBatchIsAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		owner := uuid.New()
		batch := []domain.Round{
			newRound(room.ID, 1, owner),
			newRound(room.ID, 2, owner),
		}
		require.NoError(t, s.CreateRounds(ctx, batch))

		again := []domain.Round{
			newRound(room.ID, 3, owner),
			newRound(room.ID, 1, owner),
		}
		assert.ErrorIs(t, s.CreateRounds(ctx, again), ErrDuplicate)

		n, err := s.CountRounds(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		second, err := s.GetRoundByNumber(ctx, room.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, batch[1].ID, second.ID)
		assert.Nil(t, second.EndedAt)

		ended := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, s.EndRound(ctx, second.ID, ended))
		require.NoError(t, s.EndRound(ctx, second.ID, ended.Add(time.Minute)))
		second, err = s.GetRoundByNumber(ctx, room.ID, 2)
		require.NoError(t, err)
		require.NotNil(t, second.EndedAt)
		assert.WithinDuration(t, ended, *second.EndedAt, time.Millisecond)

		_, err = s.GetRoundByNumber(ctx, room.ID, 3)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GuessUniquePerRound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		player := uuid.New()
		round := newRound(room.ID, 1, uuid.New())
		require.NoError(t, s.CreateRounds(ctx, []domain.Round{round}))

		first := domain.Guess{ID: uuid.New(), RoundID: round.ID, PlayerID: player, GuessedPlayerID: uuid.New(), Points: 150}
		require.NoError(t, s.CreateGuess(ctx, first))
		second := first
		second.ID = uuid.New()
		assert.ErrorIs(t, s.CreateGuess(ctx, second), ErrDuplicate)

		got, err := s.FindGuess(ctx, round.ID, player)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		total, err := s.SumGuessPoints(ctx, player)
		require.NoError(t, err)
		assert.Equal(t, 150, total)
	})

	t.Run("EventsAppend", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		require.NoError(t, s.AppendEvent(ctx, Event{RoomID: room.ID, Type: "room_created", Payload: []byte(`{"code":"X"}`)}))
		require.NoError(t, s.AppendEvent(ctx, Event{RoomID: room.ID, Type: "upload_started"}))

		events, err := s.ListEvents(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "room_created", events[0].Type)
		assert.JSONEq(t, `{"code":"X"}`, string(events[0].Payload))
	})

	t.Run("DeleteRoomCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		room := seedRoom(t, s)
		p := newPlayer(room.ID, uuid.New(), "Ada", time.Now())
		require.NoError(t, s.CreatePlayer(ctx, p))
		require.NoError(t, s.CreatePhoto(ctx, newPhoto(room.ID, p.ID)))

		require.NoError(t, s.DeleteRoom(ctx, room.ID))
		_, err := s.GetRoom(ctx, room.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetPlayer(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		n, err := s.CountPhotos(ctx, PhotoFilter{RoomID: room.ID})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func seedRoom(t *testing.T, s Store) domain.Room {
	t.Helper()
	code, err := s.GenerateRoomCode(context.Background())
	require.NoError(t, err)
	room := newRoom(code)
	require.NoError(t, s.CreateRoom(context.Background(), room))
	return room
}

func newRoom(code string) domain.Room {
	return domain.Room{
		ID:              uuid.New(),
		Code:            code,
		HostID:          uuid.New(),
		MaxPlayers:      8,
		PhotosPerPlayer: 3,
		Status:          domain.StatusLobby,
	}
}

func newPlayer(roomID, userID uuid.UUID, nickname string, joined time.Time) domain.Player {
	return domain.Player{
		ID:          uuid.New(),
		RoomID:      roomID,
		UserID:      userID,
		Nickname:    nickname,
		AvatarColor: domain.ColorBlue,
		JoinedAt:    joined.UTC(),
	}
}

func newPhoto(roomID, playerID uuid.UUID) domain.Photo {
	return domain.Photo{
		ID:          uuid.New(),
		RoomID:      roomID,
		PlayerID:    playerID,
		StoragePath: roomID.String() + "/" + playerID.String() + "/" + uuid.NewString() + ".jpg",
	}
}

func newRound(roomID uuid.UUID, number int, owner uuid.UUID) domain.Round {
	return domain.Round{
		ID:              uuid.New(),
		RoomID:          roomID,
		Number:          number,
		PhotoID:         uuid.New(),
		CorrectPlayerID: owner,
	}
}

func nicknames(players []domain.Player) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.Nickname)
	}
	return out
}
