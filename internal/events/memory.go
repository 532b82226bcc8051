package events

import (
	"context"
	"log/slog"
)

// MemoryBus delivers messages inside one process.
type MemoryBus struct {
	subs *fanout
}

func NewMemoryBus(buffer int, log *slog.Logger) *MemoryBus {
	return &MemoryBus{subs: newFanout(buffer, log)}
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.subs.deliver(msg)
}

func (b *MemoryBus) Subscribe(ctx context.Context, actorID string) (<-chan Message, error) {
	if actorID == "" {
		return nil, ErrNoRecipient
	}
	return b.subs.add(ctx, actorID)
}

// Close ends every subscription.
func (b *MemoryBus) Close() {
	b.subs.close()
}
