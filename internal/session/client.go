package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photo-guess/internal/domain"
	"photo-guess/internal/game"
	"photo-guess/internal/store"
)

const (
	CommandStartUpload  = "start_upload"
	CommandStartPlaying = "start_playing"
	CommandGuess        = "guess"
	CommandAdvance      = "advance"
	CommandReady        = "ready"
)

const eventBuffer = 64

// Game is the part of the game service a client drives.
type Game interface {
	Store() store.Store
	Rules() game.Rules
	MediaURL(storagePath string) string
	StartUpload(ctx context.Context, sess domain.Session) (domain.Room, error)
	StartPlaying(ctx context.Context, sess domain.Session) (domain.Room, error)
	Advance(ctx context.Context, sess domain.Session, observedRound int) (domain.Room, error)
	SubmitGuess(ctx context.Context, sess domain.Session, guessed uuid.UUID, reported int) (game.GuessResult, error)
	MarkReady(ctx context.Context, sess domain.Session) error
}

// Client is one player's live connection to a room. A single loop owns
// the view; notifications, ticks and fetch results all arrive on one
// channel and are folded in with Reduce.
type Client struct {
	game Game
	sess domain.Session
	log  zerolog.Logger
	tick time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	views  chan View
	subs   []*store.Subscription
	wg     sync.WaitGroup
	once   sync.Once

	mu   sync.Mutex
	view View

	// Owned by the loop. One read per kind is in flight; notifications
	// arriving meanwhile queue a single follow-up read.
	inflight map[fetch]bool
	again    map[fetch]bool

	starting atomic.Bool
}

type Option func(*Client)

// WithTickInterval changes how often the countdown ticks.
func WithTickInterval(d time.Duration) Option {
	return func(c *Client) { c.tick = d }
}

// Open subscribes to the room and starts the client loop. Close must be
// called to release it.
func Open(ctx context.Context, g Game, sess domain.Session, log zerolog.Logger, opts ...Option) (*Client, error) {
	const op = "session.open"
	if !sess.Valid() {
		return nil, domain.Unauthorized(op, "join the room first")
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		game:   g,
		sess:   sess,
		log:    log.With().Str("component", "session").Str("room_id", sess.RoomID.String()).Str("player_id", sess.PlayerID.String()).Logger(),
		tick:   time.Second,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, eventBuffer),
		views:  make(chan View, 1),
		view:   NewView(sess, g.Rules().Budget),

		inflight: make(map[fetch]bool),
		again:    make(map[fetch]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	rooms := g.Store().Subscribe(ctx, store.Filter{Table: store.TableRooms, RoomID: sess.RoomID})
	players := g.Store().Subscribe(ctx, store.Filter{Table: store.TablePlayers, RoomID: sess.RoomID})
	c.subs = []*store.Subscription{rooms, players}

	c.wg.Add(4)
	go c.forward(rooms, RoomChanged{})
	go c.forward(players, RosterChanged{})
	go c.ticker()
	go c.loop()
	c.post(Resync{})
	return c, nil
}

func (c *Client) Session() domain.Session {
	return c.sess
}

// View returns the latest view.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Views delivers view updates, latest wins. It is closed after Close.
func (c *Client) Views() <-chan View {
	return c.views
}

// Close tears down subscriptions, the ticker and pending fetches. Results
// that arrive afterwards are dropped.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		for _, sub := range c.subs {
			sub.Close()
		}
		c.wg.Wait()
	})
}

func (c *Client) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) forward(sub *store.Subscription, ev Event) {
	defer c.wg.Done()
	for change := range sub.C {
		if change.Op == store.OpResync {
			c.post(Resync{})
			continue
		}
		c.post(ev)
	}
}

func (c *Client) ticker() {
	defer c.wg.Done()
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.post(Tick{})
		}
	}
}

func (c *Client) loop() {
	defer c.wg.Done()
	defer close(c.views)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// fetched carries a read result back to the loop.
type fetched struct {
	kind fetch
	ev   Event
}

func (fetched) event() {}

func (c *Client) handle(ev Event) {
	var followUp []fetch
	if f, ok := ev.(fetched); ok {
		c.inflight[f.kind] = false
		if c.again[f.kind] {
			c.again[f.kind] = false
			followUp = append(followUp, f.kind)
		}
		ev = f.ev
	}

	c.mu.Lock()
	prev := c.view
	next := Reduce(prev, ev)
	c.view = next
	c.mu.Unlock()

	for _, f := range plan(prev, next, ev) {
		c.load(f)
	}
	for _, f := range followUp {
		if !c.inflight[f] {
			c.load(f)
		}
	}
	switch ev.(type) {
	case RoomLoaded, RosterLoaded:
		if wantsAutoStart(next) {
			c.autoStart()
		}
	case Tick:
		if prev.Remaining == next.Remaining {
			return
		}
	}
	c.publish(next)
}

func (c *Client) publish(v View) {
	for {
		select {
		case c.views <- v:
			return
		default:
		}
		select {
		case <-c.views:
		default:
		}
	}
}

// autoStart moves a fully ready room into play on behalf of the host.
// Losing the race to another request is fine.
func (c *Client) autoStart() {
	if !c.starting.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.starting.Store(false)
		_, err := c.game.StartPlaying(c.ctx, c.sess)
		if err == nil || errors.Is(err, domain.ErrConflict) || c.ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Msg("auto start failed")
		c.post(CommandFailed{Command: CommandStartPlaying, Err: err})
	}()
}

// load starts a read of kind f, or queues one behind the read already in
// flight so that results of one kind are folded in the order they were read.
func (c *Client) load(f fetch) {
	round := c.view.RoundNumber()
	if f == fetchRound && round == 0 {
		return
	}
	if c.inflight[f] {
		c.again[f] = true
		return
	}
	c.inflight[f] = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var ev Event
		switch f {
		case fetchRoom:
			ev = c.loadRoom()
		case fetchRoster:
			ev = c.loadRoster()
		case fetchRound:
			ev = c.loadRound(round)
		}
		c.post(fetched{kind: f, ev: ev})
	}()
}

func (c *Client) loadRoom() Event {
	const op = "session.load_room"
	room, err := c.game.Store().GetRoom(c.ctx, c.sess.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return LoadFailed{Err: domain.NotFound(op, "room not found")}
	}
	if err != nil {
		return LoadFailed{Err: domain.Transient(op, err)}
	}
	return RoomLoaded{Room: room}
}

func (c *Client) loadRoster() Event {
	const op = "session.load_roster"
	players, err := c.game.Store().ListPlayers(c.ctx, c.sess.RoomID, store.ByScore)
	if err != nil {
		return LoadFailed{Err: domain.Transient(op, err)}
	}
	return RosterLoaded{Players: players}
}

func (c *Client) loadRound(number int) Event {
	const op = "session.load_round"
	st := c.game.Store()
	round, err := st.GetRoundByNumber(c.ctx, c.sess.RoomID, number)
	if err != nil {
		return LoadFailed{Err: domain.Transient(op, err)}
	}
	photo, err := st.GetPhoto(c.ctx, round.PhotoID)
	if err != nil {
		return LoadFailed{Err: domain.Transient(op, err)}
	}
	loaded := RoundLoaded{Round: RoundInfo{
		Number:   round.Number,
		PhotoURL: c.game.MediaURL(photo.StoragePath),
		IsVideo:  photo.IsVideo,
		Mine:     round.CorrectPlayerID == c.sess.PlayerID,
		owner:    round.CorrectPlayerID,
	}}
	guess, err := st.FindGuess(c.ctx, round.ID, c.sess.PlayerID)
	switch {
	case err == nil:
		loaded.Guess = &guess
	case !errors.Is(err, store.ErrNotFound):
		return LoadFailed{Err: domain.Transient(op, err)}
	}
	return loaded
}

// StartUpload opens the upload phase. Host only.
func (c *Client) StartUpload(ctx context.Context) error {
	return c.roomCommand(CommandStartUpload, func() (domain.Room, error) {
		return c.game.StartUpload(ctx, c.sess)
	})
}

// StartPlaying builds the rounds and starts round 1. Host only.
func (c *Client) StartPlaying(ctx context.Context) error {
	return c.roomCommand(CommandStartPlaying, func() (domain.Room, error) {
		return c.game.StartPlaying(ctx, c.sess)
	})
}

// Advance moves past the round this client last saw. Host only.
func (c *Client) Advance(ctx context.Context) error {
	observed := c.View().RoundNumber()
	return c.roomCommand(CommandAdvance, func() (domain.Room, error) {
		return c.game.Advance(ctx, c.sess, observed)
	})
}

func (c *Client) roomCommand(name string, run func() (domain.Room, error)) error {
	room, err := run()
	switch {
	case err == nil:
		c.post(RoomLoaded{Room: room})
	case errors.Is(err, domain.ErrConflict):
		// Someone else already made this move; show what they did.
		c.post(RoomChanged{})
	default:
		c.post(CommandFailed{Command: name, Err: err})
	}
	return err
}

// SubmitGuess guesses the owner of the current photo, reporting the local
// countdown.
func (c *Client) SubmitGuess(ctx context.Context, selection uuid.UUID) (game.GuessResult, error) {
	v := c.View()
	res, err := c.game.SubmitGuess(ctx, c.sess, selection, v.Remaining)
	if err == nil || res.Guess.ID != uuid.Nil {
		c.post(GuessRecorded{Round: v.RoundNumber(), Result: res})
	}
	if err != nil {
		c.post(CommandFailed{Command: CommandGuess, Err: err})
	}
	return res, err
}

func (c *Client) MarkReady(ctx context.Context) error {
	err := c.game.MarkReady(ctx, c.sess)
	if err != nil {
		c.post(CommandFailed{Command: CommandReady, Err: err})
	}
	return err
}
