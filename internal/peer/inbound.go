package peer

import (
	"context"
	"log/slog"
	"time"

	"lifesim/internal/events"
	"lifesim/internal/governance"
)

const replyTimeout = 5 * time.Second

// Handle reconciles one inbound message into the replica and reports whether
// anything changed. Duplicates and messages for resolved proposals are
// dropped. Replies, such as the rejection that settles a withdrawal, are
// published after the replica is updated.
func (s *Session) Handle(msg events.Message) bool {
	changed, replies := s.handle(msg)
	if len(replies) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		s.publish(ctx, replies)
	}
	return changed
}

func (s *Session) handle(msg events.Message) (bool, []events.Message) {
	if err := msg.Validate(); err != nil {
		s.log.Warn("inbound: invalid message", "message_id", msg.ID, "err", err)
		return false, nil
	}
	if msg.To != s.player.ID {
		return false, nil
	}
	if msg.ID != "" {
		if ok, _ := s.seen.ContainsOrAdd(msg.ID, struct{}{}); ok {
			s.log.Warn("inbound: duplicate message", "message_id", msg.ID, "type", msg.Type)
			return false, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, nil
	}
	log := s.log.With("message_id", msg.ID, "type", msg.Type, "from", msg.From)

	switch msg.Type {
	case events.TypeChangeProposed:
		if s.player.Business(msg.Proposal.BusinessID) == nil {
			log.Warn("inbound: proposal for unknown business", "business_id", msg.Proposal.BusinessID)
		}
		return s.governor.Receive(msg.Proposal), nil
	case events.TypeChangeApproved:
		res := s.governor.ConfirmApproved(s.player, msg.Proposal, msg.Effect())
		return !res.Ignored(), nil
	case events.TypeChangeRejected:
		res := s.governor.ConfirmRejected(s.player, msg.Proposal)
		return !res.Ignored(), nil
	case events.TypeChangeWithdrawn:
		res := s.governor.Withdraw(s.player, msg.Proposal, msg.From, s.turn)
		if res.Ignored() {
			return false, nil
		}
		return true, s.messagesFor(res)
	case events.TypeBusinessUpdated:
		return s.mergeUpdate(msg, log), nil
	}
	return false, nil
}

func (s *Session) mergeUpdate(msg events.Message, log *slog.Logger) bool {
	for _, d := range msg.Deltas {
		b := s.player.Business(d.BusinessID)
		if b == nil {
			continue
		}
		// Liquidation is credited once, when the close first reaches us.
		if d.Closed != nil && *d.Closed && !b.Closed {
			if payout := msg.Payouts[s.player.ID]; payout > 0 {
				s.player.Cash += payout
				log.Info("liquidation payout credited", "business_id", b.ID, "payout", payout)
			}
		}
	}
	s.player.Businesses = governance.Merge(s.player.Businesses, msg.Deltas, msg.Created)
	return len(msg.Deltas) > 0 || len(msg.Created) > 0
}
