package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-guess/internal/config"
	"photo-guess/internal/domain"
	"photo-guess/internal/store"
)

func TestScenarioTwoPlayersOneRoundEach(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben")
	require.Equal(t, domain.StatusPlaying, room.Status)
	require.Equal(t, 1, room.Round())

	total, err := f.svc.TotalRounds(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	byPlayer := map[string]domain.Session{s[0].PlayerID.String(): s[0], s[1].PlayerID.String(): s[1]}
	other := func(owner string) domain.Session {
		for id, sess := range byPlayer {
			if id != owner {
				return sess
			}
		}
		t.Fatal("no other player")
		return domain.Session{}
	}

	for want := 1; want <= 2; want++ {
		round := f.currentRound(t, room.ID)
		require.Equal(t, want, round.Number)
		guesser := other(round.CorrectPlayerID.String())
		res, err := f.svc.SubmitGuess(ctx, guesser, round.CorrectPlayerID, 10)
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.Equal(t, 150, res.Guess.Points)

		room, err = f.svc.Advance(ctx, s[0], want)
		require.NoError(t, err)
		requireRoundInvariant(t, room, total)
	}

	assert.Equal(t, domain.StatusFinished, room.Status)
	assert.Equal(t, 2, room.Round(), "finishing keeps the last round")
	assert.Equal(t, 150, f.score(t, s[0].PlayerID))
	assert.Equal(t, 150, f.score(t, s[1].PlayerID))

	standings, err := f.svc.Results(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, standings.Players, 2)
	assert.Len(t, standings.Podium, 2)
	winner, ok := standings.Winner()
	require.True(t, ok)
	assert.Equal(t, s[0].PlayerID, winner.ID, "ties go to the earlier arrival")

	events, err := f.store.ListEvents(ctx, room.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Subset(t, types, []string{"room_created", "player_joined", "upload_started",
		"rounds_built", "game_started", "round_advanced", "game_finished", "guess_submitted"})
}

func TestScenarioThreePlayersScoring(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben", "Cy")
	a, b, c := s[0], s[1], s[2]

	round := f.currentRound(t, room.ID)
	require.Equal(t, a.PlayerID, round.CorrectPlayerID, "round 1 shows Ada's photo")

	f.clock.Advance(5 * time.Second)
	res, err := f.svc.SubmitGuess(ctx, b, a.PlayerID, 15)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, 175, res.Guess.Points)
	assert.Equal(t, 175, res.Score)

	res, err = f.svc.SubmitGuess(ctx, c, b.PlayerID, 12)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, 0, res.Guess.Points)

	_, err = f.svc.SubmitGuess(ctx, a, b.PlayerID, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 0, f.score(t, a.PlayerID))
	assert.Equal(t, 175, f.score(t, b.PlayerID))
	assert.Equal(t, 0, f.score(t, c.PlayerID))
}

func TestScenarioThreePlayersGuessAtOnce(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben", "Cy")
	a, b, c := s[0], s[1], s[2]
	require.Equal(t, a.PlayerID, f.currentRound(t, room.ID).CorrectPlayerID)
	f.clock.Advance(5 * time.Second)

	guesses := []struct {
		sess      domain.Session
		remaining int
		points    int
	}{
		{b, 15, 175},
		{c, 12, 160},
	}
	results := make([]GuessResult, len(guesses))
	errs := make([]error, len(guesses))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, g := range guesses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.svc.SubmitGuess(ctx, g.sess, a.PlayerID, g.remaining)
		}()
	}
	close(start)
	wg.Wait()

	for i, g := range guesses {
		require.NoError(t, errs[i])
		assert.Equal(t, g.points, results[i].Guess.Points)
		assert.Equal(t, g.points, results[i].Score)
		assert.Equal(t, g.points, f.score(t, g.sess.PlayerID))
	}
	assert.Equal(t, 0, f.score(t, a.PlayerID))
}

func TestDoubleGuessFailsClosed(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben")
	round := f.currentRound(t, room.ID)
	require.Equal(t, s[0].PlayerID, round.CorrectPlayerID)

	_, err := f.svc.SubmitGuess(ctx, s[1], s[0].PlayerID, 20)
	require.NoError(t, err)
	_, err = f.svc.SubmitGuess(ctx, s[1], s[0].PlayerID, 20)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 200, f.score(t, s[1].PlayerID))
}

func TestGuessRejectsSelfAndStrangers(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	_, s := f.playing(t, "Ada", "Ben", "Cy")
	_, other := newFixture(t).lobby(t, "Zed", "Yan")

	_, err := f.svc.SubmitGuess(ctx, s[1], s[1].PlayerID, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.SubmitGuess(ctx, s[1], other[1].PlayerID, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRemainingIsCappedByServerClock(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	_, s := f.playing(t, "Ada", "Ben")

	f.clock.Advance(10 * time.Second)
	res, err := f.svc.SubmitGuess(ctx, s[1], s[0].PlayerID, 20)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Remaining)
	assert.Equal(t, 155, res.Guess.Points)
}

func TestTrustedClientTimer(t *testing.T) {
	f := newFixture(t, onePhotoEach, func(cfg *config.Game) { cfg.TrustClientTimer = true })
	f.svc.rng = identity{}
	ctx := context.Background()
	_, s := f.playing(t, "Ada", "Ben")

	f.clock.Advance(19 * time.Second)
	res, err := f.svc.SubmitGuess(ctx, s[1], s[0].PlayerID, 99)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Remaining)
	assert.Equal(t, 200, res.Guess.Points)
}

func TestAdvanceIsIdempotent(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben", "Cy")

	room, err := f.svc.Advance(ctx, s[0], 1)
	require.NoError(t, err)
	require.Equal(t, 2, room.Round())

	_, err = f.svc.Advance(ctx, s[0], 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.svc.Advance(ctx, s[0], 5)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Round())

	first, err := f.store.GetRoundByNumber(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, first.EndedAt)
}

func TestConcurrentAdvanceMovesOnce(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben", "Cy")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Advance(ctx, s[0], 1)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Round())
}

func TestNonHostCannotDriveLifecycle(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada", "Ben")

	_, err := f.svc.StartUpload(ctx, s[1])
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, got.Status)

	_, err = f.svc.StartUpload(ctx, s[0])
	require.NoError(t, err)
	f.upload(t, s[0], 1)
	_, err = f.svc.StartPlaying(ctx, s[1])
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.StartPlaying(ctx, s[0])
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, s[1], 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	got, err = f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Round())
}

func TestStartUploadNeedsTwoPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada")

	_, err := f.svc.StartUpload(ctx, s[0])
	assert.ErrorIs(t, err, domain.ErrValidation)
	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	requireRoundInvariant(t, got, 0)
	assert.Equal(t, domain.StatusLobby, got.Status)

	_, err = f.svc.StartPlaying(ctx, s[0])
	assert.ErrorIs(t, err, domain.ErrValidation, "cannot skip the upload phase")
}

func TestStartPlayingWithoutPhotosStaysBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada", "Ben")
	_, err := f.svc.StartUpload(ctx, s[0])
	require.NoError(t, err)

	_, err = f.svc.StartPlaying(ctx, s[0])
	assert.ErrorIs(t, err, domain.ErrValidation)
	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploading, got.Status)
	assert.Nil(t, got.CurrentRound)

	_, err = f.svc.StartUpload(ctx, s[0])
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestEnsureRoundsTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada", "Ben")
	_, err := f.svc.StartUpload(ctx, s[0])
	require.NoError(t, err)
	f.upload(t, s[0], 2)
	f.upload(t, s[1], 3)
	room, err = f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)

	n1, err := f.svc.EnsureRounds(ctx, room)
	require.NoError(t, err)
	n2, err := f.svc.EnsureRounds(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 5, n1)
	assert.Equal(t, 5, n2)
	count, err := f.store.CountRounds(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestConcurrentStartPlayingBuildsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada", "Ben")
	_, err := f.svc.StartUpload(ctx, s[0])
	require.NoError(t, err)
	f.upload(t, s[0], 3)
	f.upload(t, s[1], 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.StartPlaying(ctx, s[0])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	got, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, got.Status)
	assert.Equal(t, 1, got.Round())
	count, err := f.store.CountRounds(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	for n := 1; n <= 6; n++ {
		_, err := f.store.GetRoundByNumber(ctx, room.ID, n)
		assert.NoError(t, err, "round %d", n)
	}
}

func TestRoundInvariantAcrossLifecycle(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	ctx := context.Background()
	room, s := f.lobby(t, "Ada", "Ben")
	requireRoundInvariant(t, room, 0)

	room, err := f.svc.StartUpload(ctx, s[0])
	require.NoError(t, err)
	requireRoundInvariant(t, room, 0)
	f.upload(t, s[0], 1)
	f.upload(t, s[1], 1)

	room, err = f.svc.StartPlaying(ctx, s[0])
	require.NoError(t, err)
	requireRoundInvariant(t, room, 2)
	prev := room.Round()
	for room.Status == domain.StatusPlaying {
		room, err = f.svc.Advance(ctx, s[0], room.Round())
		require.NoError(t, err)
		requireRoundInvariant(t, room, 2)
		assert.GreaterOrEqual(t, room.Round(), prev)
		prev = room.Round()
	}
	_, err = f.svc.Advance(ctx, s[0], room.Round())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReconcileScoreRepairsMissedUpdate(t *testing.T) {
	f := newFixture(t, onePhotoEach)
	f.svc.rng = identity{}
	ctx := context.Background()
	room, s := f.playing(t, "Ada", "Ben")
	round := f.currentRound(t, room.ID)

	// A guess whose score update never happened.
	require.NoError(t, f.store.CreateGuess(ctx, domain.Guess{
		ID: uuid.New(), RoundID: round.ID, PlayerID: s[1].PlayerID,
		GuessedPlayerID: s[0].PlayerID, Points: 180,
	}))
	require.Equal(t, 0, f.score(t, s[1].PlayerID))

	score, err := f.svc.ReconcileScore(ctx, s[1])
	require.NoError(t, err)
	assert.Equal(t, 180, score)
	score, err = f.svc.ReconcileScore(ctx, s[1])
	require.NoError(t, err)
	assert.Equal(t, 180, score)

	_, err = f.svc.SubmitGuess(ctx, s[1], s[0].PlayerID, 10)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGuessOptions(t *testing.T) {
	f := newFixture(t)
	_, s := f.lobby(t, "Ada", "Ben", "Cy")
	players, err := f.store.ListPlayers(context.Background(), s[0].RoomID, store.ByJoined)
	require.NoError(t, err)

	assert.Nil(t, GuessOptions(players, s[0].PlayerID, s[0].PlayerID))
	opts := GuessOptions(players, s[1].PlayerID, s[0].PlayerID)
	require.Len(t, opts, 2)
	assert.Equal(t, s[0].PlayerID, opts[0].ID)
	assert.Equal(t, s[2].PlayerID, opts[1].ID)
}
