package game

import (
	"bytes"
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"photo-guess/internal/config"
	"photo-guess/internal/domain"
	"photo-guess/internal/media"
	"photo-guess/internal/store"
)

var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2',
	0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm',
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// identity never swaps, so rounds follow upload order.
type identity struct{}

func (identity) IntN(n int) int { return n - 1 }

type fixture struct {
	svc   *Service
	store *store.MemoryStore
	clock *testClock
}

func newFixture(t *testing.T, opts ...func(*config.Game)) *fixture {
	t.Helper()
	cfg := config.Default().Game
	for _, o := range opts {
		o(&cfg)
	}
	st := store.NewMemoryStore(nil)
	files, err := media.NewLocalStorage(t.TempDir(), "/media")
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)}
	svc := New(st, files, cfg, zerolog.Nop(),
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithMaxUpload(1<<20))
	return &fixture{svc: svc, store: st, clock: clock}
}

func onePhotoEach(cfg *config.Game) { cfg.PhotosPerPlayer = 1 }

// lobby creates a room hosted by the first nickname and seats the rest.
func (f *fixture) lobby(t *testing.T, names ...string) (domain.Room, []domain.Session) {
	t.Helper()
	ctx := context.Background()
	hostUser := uuid.New()
	room, host, err := f.svc.CreateRoom(ctx, hostUser, names[0])
	require.NoError(t, err)
	sessions := []domain.Session{{UserID: hostUser, RoomID: room.ID, PlayerID: host.ID}}
	for _, name := range names[1:] {
		f.clock.Advance(time.Second)
		user := uuid.New()
		_, p, err := f.svc.JoinRoom(ctx, user, room.Code, name)
		require.NoError(t, err)
		sessions = append(sessions, domain.Session{UserID: user, RoomID: room.ID, PlayerID: p.ID})
	}
	return room, sessions
}

func (f *fixture) upload(t *testing.T, sess domain.Session, n int) []domain.Photo {
	t.Helper()
	var out []domain.Photo
	for range n {
		f.clock.Advance(time.Second)
		p, err := f.svc.AddPhoto(context.Background(), sess, bytes.NewReader(pngPixel))
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

// playing runs a room through upload into round 1 with every player's
// quota filled in join order.
func (f *fixture) playing(t *testing.T, names ...string) (domain.Room, []domain.Session) {
	t.Helper()
	ctx := context.Background()
	room, sessions := f.lobby(t, names...)
	_, err := f.svc.StartUpload(ctx, sessions[0])
	require.NoError(t, err)
	for _, sess := range sessions {
		f.upload(t, sess, room.PhotosPerPlayer)
		require.NoError(t, f.svc.MarkReady(ctx, sess))
	}
	room, err = f.svc.StartPlaying(ctx, sessions[0])
	require.NoError(t, err)
	return room, sessions
}

func (f *fixture) currentRound(t *testing.T, roomID uuid.UUID) domain.Round {
	t.Helper()
	ctx := context.Background()
	room, err := f.store.GetRoom(ctx, roomID)
	require.NoError(t, err)
	round, err := f.store.GetRoundByNumber(ctx, roomID, room.Round())
	require.NoError(t, err)
	return round
}

func (f *fixture) score(t *testing.T, playerID uuid.UUID) int {
	t.Helper()
	p, err := f.store.GetPlayer(context.Background(), playerID)
	require.NoError(t, err)
	return p.Score
}

func requireRoundInvariant(t *testing.T, room domain.Room, total int) {
	t.Helper()
	if room.Status.HasRound() {
		require.NotNil(t, room.CurrentRound, "status %s needs a round", room.Status)
		require.GreaterOrEqual(t, *room.CurrentRound, 1)
		require.LessOrEqual(t, *room.CurrentRound, total)
		return
	}
	require.Nil(t, room.CurrentRound, "status %s must not carry a round", room.Status)
}
