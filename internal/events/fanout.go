package events

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBuffer = 64

// fanout keeps the per-actor subscriber channels of a bus. A subscriber whose
// buffer is full loses the message, matching the at-most-once contract.
type fanout struct {
	mu     sync.Mutex
	subs   map[string]map[chan Message]struct{}
	buffer int
	closed bool
	log    *slog.Logger
}

func newFanout(buffer int, log *slog.Logger) *fanout {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &fanout{subs: map[string]map[chan Message]struct{}{}, buffer: buffer, log: log}
}

// add registers a subscriber for actorID that is dropped once ctx ends.
func (f *fanout) add(ctx context.Context, actorID string) (<-chan Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrBusClosed
	}
	ch := make(chan Message, f.buffer)
	if f.subs[actorID] == nil {
		f.subs[actorID] = map[chan Message]struct{}{}
	}
	f.subs[actorID][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[actorID][ch]; ok {
			delete(f.subs[actorID], ch)
			if len(f.subs[actorID]) == 0 {
				delete(f.subs, actorID)
			}
			close(ch)
		}
	}()
	return ch, nil
}

func (f *fanout) deliver(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrBusClosed
	}
	for ch := range f.subs[msg.To] {
		select {
		case ch <- msg:
		default:
			f.log.Warn("bus: subscriber full, dropping message", "to", msg.To, "type", msg.Type, "message_id", msg.ID)
		}
	}
	return nil
}

func (f *fanout) close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	for actor, set := range f.subs {
		for ch := range set {
			close(ch)
		}
		delete(f.subs, actor)
	}
	return true
}
