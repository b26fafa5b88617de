package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// NotifyChannel is the Postgres channel the change triggers notify on.
const NotifyChannel = "photo_guess_changes"

const (
	listenerMinBackoff = time.Second
	listenerMaxBackoff = 30 * time.Second
)

// PGListener turns Postgres notifications into broker changes, so that
// writes made by other processes reach local subscribers.
type PGListener struct {
	url    string
	feed   *Broker
	log    zerolog.Logger
	notify func()
}

func NewPGListener(url string, feed *Broker, log zerolog.Logger) *PGListener {
	return &PGListener{
		url:  url,
		feed: feed,
		log:  log.With().Str("component", "pg_listener").Logger(),
	}
}

// Run listens until ctx is cancelled, reconnecting with backoff.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := listenerMinBackoff
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = listenerMinBackoff
		}
		l.log.Warn().Err(err).Dur("retry_in", backoff).Msg("change listener disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, listenerMaxBackoff)
	}
}

func (l *PGListener) listen(ctx context.Context) (bool, error) {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.log.Info().Str("channel", NotifyChannel).Msg("listening for changes")
	// Anything written while disconnected was missed.
	l.feed.Resync()
	if l.notify != nil {
		l.notify()
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		change, err := DecodeNotification(n.Payload)
		if err != nil {
			l.log.Error().Err(err).Str("payload", n.Payload).Msg("bad change notification")
			continue
		}
		l.feed.Publish(change)
	}
}

// DecodeNotification parses the JSON payload sent by the change triggers.
func DecodeNotification(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("decode notification: %w", err)
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Change{}, fmt.Errorf("decode notification: unknown op %q", c.Op)
	}
	switch c.Table {
	case TableRooms, TablePlayers, TablePhotos, TableRounds:
	default:
		return Change{}, fmt.Errorf("decode notification: unknown table %q", c.Table)
	}
	return c, nil
}
