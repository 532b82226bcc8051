// Package peer owns one actor's local replica of the game: their player
// record, their copies of shared businesses and the proposals they know of.
// A Session subscribes to the event channel once, reconciles inbound
// messages into the replica and publishes the outcome of local actions.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"lifesim/internal/business"
	"lifesim/internal/economy"
	"lifesim/internal/events"
	"lifesim/internal/governance"
)

const seenMessages = 1024

var ErrSessionClosed = errors.New("session closed")

// Snapshot is the plain-data form of a session, for persistence.
type Snapshot struct {
	Player    economy.Player         `json:"player"`
	Proposals []*governance.Proposal `json:"proposals"`
	Turn      int                    `json:"turn"`
}

type Options struct {
	Bus     events.Channel
	Network *business.Coordinator
	Logger  *slog.Logger
	// OnChange runs after any inbound message changed the replica, outside
	// the session lock.
	OnChange func(actorID string)
}

type Session struct {
	mu       sync.Mutex
	player   *economy.Player
	turn     int
	governor *governance.Governor
	network  *business.Coordinator
	bus      events.Channel
	log      *slog.Logger
	onChange func(string)
	seen     *lru.Cache

	startOnce sync.Once
	startErr  error
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

func New(snap Snapshot, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	network := opts.Network
	if network == nil {
		network = business.NewCoordinator(nil)
	}
	player := snap.Player.Clone()
	seen, _ := lru.New(seenMessages)
	s := &Session{
		player:   player,
		turn:     snap.Turn,
		governor: governance.NewGovernor(governance.NewApplier(network), log),
		network:  network,
		bus:      opts.Bus,
		log:      log.With("actor_id", player.ID),
		onChange: opts.OnChange,
		seen:     seen,
		done:     make(chan struct{}),
	}
	s.governor.Restore(snap.Proposals)
	return s
}

func (s *Session) ActorID() string {
	return s.player.ID
}

// Start subscribes to the actor's messages. Only the first call does any
// work; later calls return its result.
func (s *Session) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		if s.bus == nil {
			close(s.done)
			return
		}
		subCtx, cancel := context.WithCancel(ctx)
		inbox, err := s.bus.Subscribe(subCtx, s.player.ID)
		if err != nil {
			cancel()
			close(s.done)
			s.startErr = fmt.Errorf("subscribe %s: %w", s.player.ID, err)
			return
		}
		s.cancel = cancel
		go s.run(inbox)
		s.log.Info("session started")
	})
	return s.startErr
}

// Close stops the subscription and waits for the inbox loop to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.startOnce.Do(func() { close(s.done) })
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.log.Info("session closed")
}

func (s *Session) run(inbox <-chan events.Message) {
	defer close(s.done)
	for msg := range inbox {
		if s.Handle(msg) && s.onChange != nil {
			s.onChange(s.player.ID)
		}
	}
}

// Snapshot copies the replica.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Player: *s.player.Clone(), Proposals: s.governor.List(""), Turn: s.turn}
}

func (s *Session) Player() *economy.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player.Clone()
}

func (s *Session) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Businesses lists the open businesses in the replica.
func (s *Session) Businesses() []*business.Business {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*business.Business, 0, len(s.player.Businesses))
	for _, b := range s.player.Businesses {
		if b != nil && !b.Closed {
			out = append(out, b.Clone())
		}
	}
	return out
}

func (s *Session) Business(id string) (*business.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.player.Business(id)
	if b == nil || b.Closed {
		return nil, fmt.Errorf("%w: %s", governance.ErrBusinessNotFound, id)
	}
	return b.Clone(), nil
}

func (s *Session) Proposals(businessID string) []*governance.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.governor.List(businessID)
}

func (s *Session) Proposal(id string) (*governance.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.governor.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", governance.ErrProposalNotFound, id)
	}
	return p, nil
}

// Update runs fn against the live player record under the session lock.
func (s *Session) Update(fn func(p *economy.Player) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(s.player)
}

func (s *Session) publish(ctx context.Context, msgs []events.Message) {
	if s.bus == nil {
		return
	}
	for _, m := range msgs {
		if err := s.bus.Publish(ctx, m); err != nil {
			s.log.Error("publish failed", "type", m.Type, "to", m.To, "message_id", m.ID, "err", err)
		}
	}
}
