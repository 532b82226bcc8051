// Package events carries governance messages between actors. Delivery is
// point to point, unordered and at most once; receivers rely on proposal
// status to drop anything they have already seen.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lifesim/internal/business"
	"lifesim/internal/governance"
)

// Type identifies the kind of a message.
type Type string

const (
	// TypeChangeProposed announces a new pending proposal to its addressee.
	TypeChangeProposed Type = "BUSINESS_CHANGE_PROPOSED"
	// TypeChangeApproved carries the authoritative effect of an approval.
	TypeChangeApproved Type = "BUSINESS_CHANGE_APPROVED"
	// TypeChangeRejected records a rejection or expiry.
	TypeChangeRejected Type = "BUSINESS_CHANGE_REJECTED"
	// TypeChangeWithdrawn asks the addressee to reject a proposal on the
	// initiator's behalf.
	TypeChangeWithdrawn Type = "BUSINESS_CHANGE_WITHDRAWN"
	// TypeBusinessUpdated carries field deltas applied without a proposal.
	TypeBusinessUpdated Type = "BUSINESS_UPDATED"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrNoRecipient  = errors.New("message has no recipient")
	ErrBusClosed    = errors.New("bus closed")
	ErrPayloadLarge = errors.New("message payload too large")
)

type Message struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	SentAt time.Time `json:"sent_at"`

	Proposal *governance.Proposal `json:"proposal,omitempty"`
	Deltas   []governance.Delta   `json:"deltas,omitempty"`
	Created  []*business.Business `json:"created,omitempty"`
	// Payouts credits actors on business close, keyed by actor id.
	Payouts map[string]int64 `json:"payouts,omitempty"`
}

// Channel is the publish/subscribe transport between actors.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers messages addressed to actorID until ctx ends, then
	// closes the returned channel.
	Subscribe(ctx context.Context, actorID string) (<-chan Message, error)
}

// New stamps a message with an id and send time.
func New(t Type, from, to string) Message {
	return Message{ID: uuid.NewString(), Type: t, From: from, To: to, SentAt: time.Now().UTC()}
}

// Effect returns the governance effect the message carries.
func (m Message) Effect() governance.Effect {
	return governance.Effect{Deltas: m.Deltas, Created: m.Created}
}

func (m Message) Validate() error {
	switch m.Type {
	case TypeChangeProposed, TypeChangeApproved, TypeChangeRejected, TypeChangeWithdrawn:
		if m.Proposal == nil {
			return fmt.Errorf("%w: %s without proposal", ErrUnknownType, m.Type)
		}
	case TypeBusinessUpdated:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.To == "" {
		return ErrNoRecipient
	}
	return nil
}

func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
