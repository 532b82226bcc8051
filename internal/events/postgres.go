package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultPGChannel = "lifesim_events"
	// Postgres rejects NOTIFY payloads of 8000 bytes or more.
	maxNotifyPayload = 7999
	relistenDelay    = time.Second
)

// PGBus routes messages through Postgres LISTEN/NOTIFY so several API and
// worker processes share one channel. One dedicated connection listens for
// the whole process and fans messages out to local subscribers.
type PGBus struct {
	pool    *pgxpool.Pool
	channel string
	log     *slog.Logger
	subs    *fanout

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPGBus(pool *pgxpool.Pool, channel string, log *slog.Logger) *PGBus {
	if channel == "" {
		channel = DefaultPGChannel
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PGBus{
		pool:    pool,
		channel: channel,
		log:     log,
		subs:    newFanout(defaultBuffer, log),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (b *PGBus) Publish(ctx context.Context, msg Message) error {
	raw, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(raw) > maxNotifyPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadLarge, len(raw))
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(raw)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Subscribe starts the shared listener on first use.
func (b *PGBus) Subscribe(ctx context.Context, actorID string) (<-chan Message, error) {
	if actorID == "" {
		return nil, ErrNoRecipient
	}
	if err := b.ctx.Err(); err != nil {
		return nil, ErrBusClosed
	}
	b.once.Do(func() { go b.run() })
	return b.subs.add(ctx, actorID)
}

// Close stops the listener and ends every subscription.
func (b *PGBus) Close() {
	if !b.subs.close() {
		return
	}
	b.cancel()
	b.once.Do(func() { close(b.done) })
	<-b.done
}

// run keeps one LISTEN connection alive until the bus closes, reconnecting
// after failures. Notifications sent while reconnecting are lost.
func (b *PGBus) run() {
	defer close(b.done)
	for {
		err := b.listen(b.ctx)
		if b.ctx.Err() != nil {
			return
		}
		b.log.Error("pg bus: listener stopped, reconnecting", "channel", b.channel, "err", err)
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(relistenDelay):
		}
	}
}

func (b *PGBus) listen(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("listen: %w", err)
	}
	// A cancelled wait leaves the connection unusable for the pool.
	pgc := conn.Hijack()
	defer pgc.Close(context.Background())

	for {
		n, err := pgc.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		msg, err := Decode([]byte(n.Payload))
		if err != nil {
			b.log.Warn("pg bus: dropping malformed message", "err", err)
			continue
		}
		if err := b.subs.deliver(msg); err != nil {
			return nil
		}
	}
}
