package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Table string

const (
	TableRooms   Table = "rooms"
	TablePlayers Table = "players"
	TablePhotos  Table = "photos"
	TableRounds  Table = "rounds"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpResync tells a subscriber that changes may have been dropped and
	// all state under its filter must be re-read.
	OpResync Op = "resync"
)

// Change is a row-level notification. It carries identifiers only;
// receivers re-read the rows they care about.
type Change struct {
	Table  Table     `json:"table"`
	Op     Op        `json:"op"`
	RoomID uuid.UUID `json:"room_id"`
	RowID  uuid.UUID `json:"id"`
}

// Filter selects changes for one table, optionally scoped to a room.
type Filter struct {
	Table  Table
	RoomID uuid.UUID
}

func (f Filter) matches(c Change) bool {
	if f.Table != c.Table {
		return false
	}
	return f.RoomID == uuid.Nil || f.RoomID == c.RoomID
}

const defaultSubscriptionBuffer = 32

type Subscription struct {
	C <-chan Change

	ch     chan Change
	filter Filter
	broker *Broker
	done   chan struct{}
	once   sync.Once
	// lagged is guarded by broker.mu.
	lagged bool
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

// Broker fans changes out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full is marked lagged and receives a resync
// change before its next delivery.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *Broker) Subscribe(ctx context.Context, filter Filter) *Subscription {
	ch := make(chan Change, b.buffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		filter: filter,
		broker: b,
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (b *Broker) Publish(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.filter.matches(change) {
			b.deliver(sub, change)
		}
	}
}

// Resync asks every subscriber to re-read its state, for example after
// the upstream notification source reconnected.
func (b *Broker) Resync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.lagged = true
		b.flushLag(sub)
	}
}

func (b *Broker) deliver(sub *Subscription, change Change) {
	if sub.lagged && !b.flushLag(sub) {
		return
	}
	select {
	case sub.ch <- change:
	default:
		sub.lagged = true
	}
}

func (b *Broker) flushLag(sub *Subscription) bool {
	resync := Change{Table: sub.filter.Table, Op: OpResync, RoomID: sub.filter.RoomID}
	select {
	case sub.ch <- resync:
		sub.lagged = false
		return true
	default:
		return false
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Len reports the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
