package governance

import (
	"encoding/json"
	"errors"
	"slices"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrBusinessNotFound = errors.New("business not found")
	ErrUnknownChange    = errors.New("unknown change type")
	ErrInvalidChange    = errors.New("invalid change")

	// ErrStaleProposal means the business changed since the proposal was
	// made and the escrow no longer covers it.
	ErrStaleProposal = errors.New("proposal is stale")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// StatusWithdrawing marks the initiator's copy after they asked the
	// addressee to reject it. It is not final.
	StatusWithdrawing Status = "withdrawing"
)

const (
	ReasonExpired   = "expired"
	ReasonWithdrawn = "withdrawn"
)

// Proposal is a pending, addressed request to mutate a shared business.
type Proposal struct {
	ID           string   `json:"id"`
	BusinessID   string   `json:"business_id"`
	Change       Change   `json:"-"`
	InitiatorID  string   `json:"initiator_id"`
	Targets      []string `json:"targets"`
	Status       Status   `json:"status"`
	CreatedTurn  int      `json:"created_turn"`
	ResolvedTurn int      `json:"resolved_turn,omitempty"`
	// Escrow is what the initiator paid in when proposing. It is consumed on
	// approval and refunded on rejection.
	Escrow int64  `json:"escrow,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Pending reports whether the proposal still awaits its addressee's decision.
func (p *Proposal) Pending() bool {
	return p.Status == StatusPending || p.Status == StatusWithdrawing
}

// AddressedTo reports whether actorID may approve the proposal.
func (p *Proposal) AddressedTo(actorID string) bool {
	return slices.Contains(p.Targets, actorID)
}

func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	out := *p
	out.Targets = slices.Clone(p.Targets)
	return &out
}

type proposalAlias Proposal

type proposalJSON struct {
	*proposalAlias
	ChangeType ChangeType      `json:"change_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	out := proposalJSON{proposalAlias: (*proposalAlias)(&p)}
	if p.Change != nil {
		t, raw, err := EncodeChange(p.Change)
		if err != nil {
			return nil, err
		}
		out.ChangeType, out.Payload = t, raw
	}
	return json.Marshal(out)
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	in := proposalJSON{proposalAlias: (*proposalAlias)(p)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.ChangeType == "" {
		return nil
	}
	c, err := DecodeChange(in.ChangeType, in.Payload)
	if err != nil {
		return err
	}
	p.Change = c
	return nil
}
