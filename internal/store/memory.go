package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
)

// MemoryStore keeps every table in process. It backs tests and
// single-process deployments without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]domain.Room
	players  map[uuid.UUID]domain.Player
	photos   map[uuid.UUID]domain.Photo
	rounds   map[uuid.UUID]domain.Round
	guesses  map[uuid.UUID]domain.Guess
	events   []Event
	arrivals map[uuid.UUID]int64
	seq      int64
	feed     *Broker
	now      func() time.Time
}

func NewMemoryStore(feed *Broker) *MemoryStore {
	if feed == nil {
		feed = NewBroker(0)
	}
	return &MemoryStore{
		rooms:    make(map[uuid.UUID]domain.Room),
		players:  make(map[uuid.UUID]domain.Player),
		photos:   make(map[uuid.UUID]domain.Photo),
		rounds:   make(map[uuid.UUID]domain.Round),
		guesses:  make(map[uuid.UUID]domain.Guess),
		arrivals: make(map[uuid.UUID]int64),
		feed:     feed,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, filter Filter) *Subscription {
	return s.feed.Subscribe(ctx, filter)
}

func (s *MemoryStore) CreateRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.rooms[room.ID]; ok {
		s.mu.Unlock()
		return ErrDuplicate
	}
	for _, existing := range s.rooms {
		if existing.Code == room.Code {
			s.mu.Unlock()
			return ErrDuplicate
		}
	}
	now := s.now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	s.rooms[room.ID] = cloneRoom(room)
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TableRooms, Op: OpInsert, RoomID: room.ID, RowID: room.ID})
	return nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (s *MemoryStore) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.Code == code {
			return cloneRoom(room), nil
		}
	}
	return domain.Room{}, ErrNotFound
}

func (s *MemoryStore) UpdateRoom(ctx context.Context, id uuid.UUID, guard RoomGuard, patch RoomPatch) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	s.mu.Lock()
	room, ok := s.rooms[id]
	if !ok {
		s.mu.Unlock()
		return domain.Room{}, ErrNotFound
	}
	if room.Status != guard.Status || !sameRound(room.CurrentRound, guard.CurrentRound) {
		s.mu.Unlock()
		return domain.Room{}, ErrStale
	}
	if patch.Status != "" {
		room.Status = patch.Status
	}
	if patch.CurrentRound != nil {
		room.CurrentRound = domain.IntPtr(*patch.CurrentRound)
	}
	if patch.RoundStartedAt != nil {
		at := *patch.RoundStartedAt
		room.RoundStartedAt = &at
	}
	room.UpdatedAt = s.now()
	s.rooms[id] = room
	out := cloneRoom(room)
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TableRooms, Op: OpUpdate, RoomID: id, RowID: id})
	return out, nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.rooms[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.rooms, id)
	var removedPlayers []uuid.UUID
	for pid, p := range s.players {
		if p.RoomID == id {
			delete(s.players, pid)
			delete(s.arrivals, pid)
			removedPlayers = append(removedPlayers, pid)
		}
	}
	for phid, ph := range s.photos {
		if ph.RoomID == id {
			delete(s.photos, phid)
		}
	}
	for rid, r := range s.rounds {
		if r.RoomID != id {
			continue
		}
		delete(s.rounds, rid)
		for gid, g := range s.guesses {
			if g.RoundID == rid {
				delete(s.guesses, gid)
			}
		}
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if e.RoomID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept
	s.mu.Unlock()

	for _, pid := range removedPlayers {
		s.feed.Publish(Change{Table: TablePlayers, Op: OpDelete, RoomID: id, RowID: pid})
	}
	s.feed.Publish(Change{Table: TableRooms, Op: OpDelete, RoomID: id, RowID: id})
	return nil
}

func (s *MemoryStore) GenerateRoomCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uniqueCode(func(code string) (bool, error) {
		_, err := s.GetRoomByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	})
}

func (s *MemoryStore) CreatePlayer(ctx context.Context, player domain.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.rooms[player.RoomID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	for _, existing := range s.players {
		if existing.ID == player.ID || (existing.RoomID == player.RoomID && existing.UserID == player.UserID) {
			s.mu.Unlock()
			return ErrDuplicate
		}
	}
	if player.JoinedAt.IsZero() {
		player.JoinedAt = s.now()
	}
	s.seq++
	s.arrivals[player.ID] = s.seq
	s.players[player.ID] = player
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TablePlayers, Op: OpInsert, RoomID: player.RoomID, RowID: player.ID})
	return nil
}

func (s *MemoryStore) GetPlayer(ctx context.Context, id uuid.UUID) (domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, ErrNotFound
	}
	return player, nil
}

func (s *MemoryStore) FindPlayer(ctx context.Context, roomID, userID uuid.UUID) (domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if p.RoomID == roomID && p.UserID == userID {
			return p, nil
		}
	}
	return domain.Player{}, ErrNotFound
}

func (s *MemoryStore) ListPlayers(ctx context.Context, roomID uuid.UUID, order PlayerOrder) ([]domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == ByScore && a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return s.arrivals[a.ID] < s.arrivals[b.ID]
	})
	return out, nil
}

func (s *MemoryStore) CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.players {
		if p.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdatePlayerReady(ctx context.Context, id uuid.UUID, ready bool) error {
	return s.updatePlayer(ctx, id, func(p *domain.Player) error {
		p.IsReady = ready
		return nil
	})
}

func (s *MemoryStore) UpdatePlayerScore(ctx context.Context, id uuid.UUID, from, to int) error {
	return s.updatePlayer(ctx, id, func(p *domain.Player) error {
		if p.Score != from {
			return ErrStale
		}
		p.Score = to
		return nil
	})
}

func (s *MemoryStore) updatePlayer(ctx context.Context, id uuid.UUID, mutate func(p *domain.Player) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	player, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := mutate(&player); err != nil {
		s.mu.Unlock()
		return err
	}
	s.players[id] = player
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TablePlayers, Op: OpUpdate, RoomID: player.RoomID, RowID: id})
	return nil
}

func (s *MemoryStore) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	player, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.players, id)
	delete(s.arrivals, id)
	for phid, ph := range s.photos {
		if ph.PlayerID == id {
			delete(s.photos, phid)
		}
	}
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TablePlayers, Op: OpDelete, RoomID: player.RoomID, RowID: id})
	return nil
}

func (s *MemoryStore) CreatePhoto(ctx context.Context, photo domain.Photo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.photos[photo.ID]; ok {
		s.mu.Unlock()
		return ErrDuplicate
	}
	if _, ok := s.players[photo.PlayerID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = s.now()
	}
	s.photos[photo.ID] = photo
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TablePhotos, Op: OpInsert, RoomID: photo.RoomID, RowID: photo.ID})
	return nil
}

func (s *MemoryStore) GetPhoto(ctx context.Context, id uuid.UUID) (domain.Photo, error) {
	if err := ctx.Err(); err != nil {
		return domain.Photo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	photo, ok := s.photos[id]
	if !ok {
		return domain.Photo{}, ErrNotFound
	}
	return photo, nil
}

func (s *MemoryStore) ListPhotos(ctx context.Context, filter PhotoFilter) ([]domain.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Photo, 0)
	for _, ph := range s.photos {
		if photoMatches(filter, ph) {
			out = append(out, ph)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) CountPhotos(ctx context.Context, filter PhotoFilter) (int, error) {
	photos, err := s.ListPhotos(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(photos), nil
}

func (s *MemoryStore) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	photo, ok := s.photos[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.photos, id)
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TablePhotos, Op: OpDelete, RoomID: photo.RoomID, RowID: id})
	return nil
}

func photoMatches(f PhotoFilter, ph domain.Photo) bool {
	if f.RoomID != uuid.Nil && ph.RoomID != f.RoomID {
		return false
	}
	return f.PlayerID == uuid.Nil || ph.PlayerID == f.PlayerID
}

func (s *MemoryStore) CreateRounds(ctx context.Context, rounds []domain.Round) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	type roundKey struct {
		room   uuid.UUID
		number int
	}
	seen := make(map[roundKey]struct{}, len(rounds))
	for _, r := range rounds {
		key := roundKey{r.RoomID, r.Number}
		if _, dup := seen[key]; dup {
			s.mu.Unlock()
			return ErrDuplicate
		}
		seen[key] = struct{}{}
		for _, existing := range s.rounds {
			if existing.ID == r.ID || (existing.RoomID == r.RoomID && existing.Number == r.Number) {
				s.mu.Unlock()
				return ErrDuplicate
			}
		}
	}
	now := s.now()
	for _, r := range rounds {
		if r.StartedAt.IsZero() {
			r.StartedAt = now
		}
		s.rounds[r.ID] = cloneRound(r)
	}
	s.mu.Unlock()

	for _, r := range rounds {
		s.feed.Publish(Change{Table: TableRounds, Op: OpInsert, RoomID: r.RoomID, RowID: r.ID})
	}
	return nil
}

func (s *MemoryStore) CountRounds(ctx context.Context, roomID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rounds {
		if r.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetRoundByNumber(ctx context.Context, roomID uuid.UUID, number int) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rounds {
		if r.RoomID == roomID && r.Number == number {
			return cloneRound(r), nil
		}
	}
	return domain.Round{}, ErrNotFound
}

func (s *MemoryStore) EndRound(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	r, ok := s.rounds[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if r.EndedAt != nil {
		s.mu.Unlock()
		return nil
	}
	r.EndedAt = &at
	s.rounds[id] = r
	s.mu.Unlock()

	s.feed.Publish(Change{Table: TableRounds, Op: OpUpdate, RoomID: r.RoomID, RowID: id})
	return nil
}

func (s *MemoryStore) CreateGuess(ctx context.Context, guess domain.Guess) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[guess.RoundID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.guesses {
		if existing.ID == guess.ID || (existing.RoundID == guess.RoundID && existing.PlayerID == guess.PlayerID) {
			return ErrDuplicate
		}
	}
	if guess.GuessedAt.IsZero() {
		guess.GuessedAt = s.now()
	}
	s.guesses[guess.ID] = guess
	return nil
}

func (s *MemoryStore) FindGuess(ctx context.Context, roundID, playerID uuid.UUID) (domain.Guess, error) {
	if err := ctx.Err(); err != nil {
		return domain.Guess{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.guesses {
		if g.RoundID == roundID && g.PlayerID == playerID {
			return g, nil
		}
	}
	return domain.Guess{}, ErrNotFound
}

func (s *MemoryStore) SumGuessPoints(ctx context.Context, playerID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, g := range s.guesses {
		if g.PlayerID == playerID {
			total += g.Points
		}
	}
	return total, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	s.seq++
	event.ID = uint(s.seq)
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, roomID uuid.UUID) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0)
	for _, e := range s.events {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

func cloneRoom(r domain.Room) domain.Room {
	if r.CurrentRound != nil {
		r.CurrentRound = domain.IntPtr(*r.CurrentRound)
	}
	if r.RoundStartedAt != nil {
		at := *r.RoundStartedAt
		r.RoundStartedAt = &at
	}
	return r
}

func cloneRound(r domain.Round) domain.Round {
	if r.EndedAt != nil {
		at := *r.EndedAt
		r.EndedAt = &at
	}
	return r
}
