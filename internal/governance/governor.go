package governance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"lifesim/internal/business"
	"lifesim/internal/economy"
)

// DefaultProposalTTL is how many quarters a proposal stays pending.
const DefaultProposalTTL = 4

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeProposed Outcome = "proposed"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeIgnored  Outcome = "ignored"

	// OutcomeWithdrawing is an initiator's request that the addressee reject.
	OutcomeWithdrawing Outcome = "withdrawing"
)

// Result describes what a governance call did and who must hear about it.
type Result struct {
	Outcome    Outcome   `json:"outcome"`
	Proposal   *Proposal `json:"proposal,omitempty"`
	Effect     Effect    `json:"effect"`
	Recipients []string  `json:"recipients,omitempty"`
}

func (r Result) Ignored() bool {
	return r.Outcome == OutcomeIgnored
}

// Governor runs the proposal state machine for one actor's replica. It is not
// safe for concurrent use; the owning session serializes calls.
type Governor struct {
	applier   *Applier
	log       *slog.Logger
	newID     func() string
	proposals map[string]*Proposal
}

func NewGovernor(applier *Applier, log *slog.Logger) *Governor {
	if applier == nil {
		applier = NewApplier(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Governor{
		applier:   applier,
		log:       log,
		newID:     uuid.NewString,
		proposals: map[string]*Proposal{},
	}
}

// Propose applies c directly for a strict majority holder, opens a proposal
// for an even split, and refuses anyone else.
func (g *Governor) Propose(p *economy.Player, businessID string, c Change, turn int) (Result, error) {
	if c == nil {
		return Result{}, ErrUnknownChange
	}
	log := g.log.With("actor_id", p.ID, "business_id", businessID, "change", c.Type())
	b := find(p.Businesses, businessID)
	if b == nil || b.Closed {
		log.Warn("propose: business not found")
		return Result{}, fmt.Errorf("%w: %s", ErrBusinessNotFound, businessID)
	}
	rights := business.Resolve(b, p.ID)
	if err := rights.Check(); err != nil {
		log.Warn("propose: insufficient rights", "share", rights.Share)
		return Result{}, fmt.Errorf("%w: share %.2f", err, rights.Share)
	}
	cost, err := initiatorCost(c, b, rights.Share)
	if err != nil {
		return Result{}, err
	}
	if p.Cash < cost {
		log.Warn("propose: insufficient funds", "cost", cost, "cash", p.Cash)
		return Result{}, fmt.Errorf("%w: need %d, have %d", business.ErrInsufficientFunds, cost, p.Cash)
	}

	if rights.CanApplyDirectly {
		eff, err := g.applier.Apply(Target{ActorID: p.ID, Business: b, All: p.Businesses, Turn: turn, Funds: cost}, c)
		if err != nil {
			log.Warn("propose: apply failed", "err", err)
			return Result{}, err
		}
		p.Cash -= cost
		p.Businesses = Merge(p.Businesses, nil, eff.Created)
		log.Info("change applied directly", "deltas", len(eff.Deltas))
		return Result{Outcome: OutcomeApplied, Effect: eff, Recipients: business.OtherPartners(b, p.ID)}, nil
	}

	// Dry run on a copy so an impossible change is refused now rather than
	// at approval time.
	if err := g.dryRun(p, b, c, turn, cost); err != nil {
		log.Warn("propose: change rejected", "err", err)
		return Result{}, err
	}
	// Exactly one partner may resolve a proposal.
	targets := business.OtherPartners(b, p.ID)
	if counterpart, ok := business.Counterpart(b, p.ID); ok {
		targets = []string{counterpart}
	}
	if len(targets) > 1 {
		targets = targets[:1]
	}
	prop := &Proposal{
		ID:          g.newID(),
		BusinessID:  b.ID,
		Change:      c,
		InitiatorID: p.ID,
		Targets:     targets,
		Status:      StatusPending,
		CreatedTurn: turn,
		Escrow:      cost,
	}
	p.Cash -= cost
	g.proposals[prop.ID] = prop
	log.Info("proposal created", "proposal_id", prop.ID, "escrow", cost, "targets", targets)
	return Result{Outcome: OutcomeProposed, Proposal: prop.Clone(), Recipients: targets}, nil
}

// Approve resolves a pending proposal addressed to p and applies it.
// Approving an already resolved proposal is a logged no-op.
func (g *Governor) Approve(p *economy.Player, proposalID string, turn int) (Result, error) {
	prop, ok := g.proposals[proposalID]
	if !ok {
		g.log.Warn("approve: proposal not found", "actor_id", p.ID, "proposal_id", proposalID)
		return Result{}, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	log := g.log.With("actor_id", p.ID, "proposal_id", prop.ID, "business_id", prop.BusinessID, "change", changeType(prop.Change))
	if !prop.Pending() {
		log.Warn("approve: proposal already resolved", "status", prop.Status)
		return Result{Outcome: OutcomeIgnored, Proposal: prop.Clone()}, nil
	}
	if !prop.AddressedTo(p.ID) {
		log.Warn("approve: proposal not addressed to actor")
		return Result{}, fmt.Errorf("%w: proposal is not addressed to %s", business.ErrInsufficientRights, p.ID)
	}
	if prop.Change == nil {
		return Result{}, fmt.Errorf("%w: proposal %s has no change", ErrUnknownChange, prop.ID)
	}
	b := find(p.Businesses, prop.BusinessID)
	if b == nil || b.Closed {
		log.Warn("approve: business not found")
		return Result{}, fmt.Errorf("%w: %s", ErrBusinessNotFound, prop.BusinessID)
	}
	due, err := initiatorCost(prop.Change, b, business.ShareOf(b, prop.InitiatorID))
	if err != nil {
		log.Warn("approve: change no longer applies", "err", err)
		return Result{}, err
	}
	if due != prop.Escrow {
		log.Warn("approve: escrow out of date", "escrow", prop.Escrow, "due", due)
		return Result{}, fmt.Errorf("%w: escrow %d, now costs %d; reject it and propose again", ErrStaleProposal, prop.Escrow, due)
	}
	cost := approverCost(prop.Change, business.ShareOf(b, p.ID))
	if p.Cash < cost {
		log.Warn("approve: insufficient funds", "cost", cost, "cash", p.Cash)
		return Result{}, fmt.Errorf("%w: need %d, have %d", business.ErrInsufficientFunds, cost, p.Cash)
	}
	eff, err := g.applier.Apply(Target{ActorID: prop.InitiatorID, Business: b, All: p.Businesses, Turn: turn, Funds: prop.Escrow + cost}, prop.Change)
	if err != nil {
		log.Warn("approve: apply failed", "err", err)
		return Result{}, err
	}
	p.Cash -= cost
	p.Businesses = Merge(p.Businesses, nil, eff.Created)
	prop.Status = StatusApproved
	prop.ResolvedTurn = turn
	log.Info("proposal approved", "deltas", len(eff.Deltas))
	return Result{Outcome: OutcomeApproved, Proposal: prop.Clone(), Effect: eff, Recipients: business.OtherPartners(b, p.ID)}, nil
}

// Reject resolves a pending proposal addressed to p without mutation. When
// the initiator rejects their own proposal it is only marked withdrawing and
// the addressee is asked to reject it; the escrow comes back with that
// rejection, or is consumed if an approval got there first.
func (g *Governor) Reject(p *economy.Player, proposalID, reason string, turn int) (Result, error) {
	prop, ok := g.proposals[proposalID]
	if !ok {
		g.log.Warn("reject: proposal not found", "actor_id", p.ID, "proposal_id", proposalID)
		return Result{}, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	if !prop.Pending() {
		g.log.Warn("reject: proposal already resolved", "actor_id", p.ID, "proposal_id", prop.ID, "status", prop.Status)
		return Result{Outcome: OutcomeIgnored, Proposal: prop.Clone()}, nil
	}
	if prop.AddressedTo(p.ID) {
		g.reject(p, prop, reason, turn)
		return Result{Outcome: OutcomeRejected, Proposal: prop.Clone(), Recipients: notifyOnResolve(prop, p.ID)}, nil
	}
	if prop.InitiatorID != p.ID {
		return Result{}, fmt.Errorf("%w: proposal is not addressed to %s", business.ErrInsufficientRights, p.ID)
	}
	if reason == "" {
		reason = ReasonWithdrawn
	}
	// A repeated withdrawal re-sends the request.
	prop.Status = StatusWithdrawing
	prop.Reason = reason
	g.log.Info("proposal withdrawal requested", "actor_id", p.ID, "proposal_id", prop.ID, "targets", prop.Targets)
	return Result{Outcome: OutcomeWithdrawing, Proposal: prop.Clone(), Recipients: without(prop.Targets, p.ID)}, nil
}

// Withdraw settles the initiator's withdrawal request on the addressee's
// replica by rejecting the proposal. A request for a proposal already
// resolved here is ignored: the initiator will get that resolution instead.
func (g *Governor) Withdraw(p *economy.Player, prop *Proposal, from string, turn int) Result {
	if prop == nil || prop.ID == "" {
		return Result{Outcome: OutcomeIgnored}
	}
	log := g.log.With("actor_id", p.ID, "proposal_id", prop.ID, "from", from)
	local, ok := g.proposals[prop.ID]
	if !ok {
		local = prop.Clone()
		local.Status = StatusPending
	}
	if local.InitiatorID != from || !local.AddressedTo(p.ID) {
		log.Warn("withdraw: not the initiator's request")
		return Result{Outcome: OutcomeIgnored, Proposal: local.Clone()}
	}
	if !ok {
		// The announcement was lost or is late; keep a copy so it is ignored
		// when it arrives.
		g.proposals[local.ID] = local
	}
	if !local.Pending() {
		log.Warn("withdraw: proposal already resolved", "status", local.Status)
		return Result{Outcome: OutcomeIgnored, Proposal: local.Clone()}
	}
	reason := prop.Reason
	if reason == "" {
		reason = ReasonWithdrawn
	}
	g.reject(p, local, reason, turn)
	return Result{Outcome: OutcomeRejected, Proposal: local.Clone(), Recipients: notifyOnResolve(local, p.ID)}
}

// ExpireStale rejects pending proposals addressed to p that are older than
// ttl quarters. The initiator's copy never expires on its own; it is refunded
// when the rejection arrives. A ttl of zero keeps proposals pending forever.
func (g *Governor) ExpireStale(p *economy.Player, turn, ttl int) []Result {
	if ttl <= 0 {
		return nil
	}
	var out []Result
	for _, prop := range g.sorted() {
		if !prop.Pending() || !prop.AddressedTo(p.ID) || turn-prop.CreatedTurn < ttl {
			continue
		}
		g.reject(p, prop, ReasonExpired, turn)
		out = append(out, Result{Outcome: OutcomeRejected, Proposal: prop.Clone(), Recipients: notifyOnResolve(prop, p.ID)})
	}
	return out
}

// Receive stores a proposal announced by another actor. Known ids are ignored.
func (g *Governor) Receive(prop *Proposal) bool {
	if prop == nil || prop.ID == "" {
		return false
	}
	if _, ok := g.proposals[prop.ID]; ok {
		g.log.Warn("receive: duplicate proposal", "proposal_id", prop.ID)
		return false
	}
	g.proposals[prop.ID] = prop.Clone()
	return true
}

// ConfirmApproved merges the authoritative effect of an approval made by
// another actor. The local proposal status gates re-delivery.
func (g *Governor) ConfirmApproved(p *economy.Player, prop *Proposal, eff Effect) Result {
	local, ok := g.proposals[prop.ID]
	if ok && !local.Pending() {
		g.log.Warn("confirm: proposal already resolved", "actor_id", p.ID, "proposal_id", prop.ID, "status", local.Status)
		return Result{Outcome: OutcomeIgnored, Proposal: local.Clone()}
	}
	if !ok {
		local = prop.Clone()
		g.proposals[local.ID] = local
	}
	local.Status = StatusApproved
	local.ResolvedTurn = prop.ResolvedTurn
	p.Businesses = Merge(p.Businesses, eff.Deltas, eff.Created)
	return Result{Outcome: OutcomeApproved, Proposal: local.Clone(), Effect: eff}
}

// ConfirmRejected records a rejection made by another actor, refunding any
// escrow this actor paid.
func (g *Governor) ConfirmRejected(p *economy.Player, prop *Proposal) Result {
	local, ok := g.proposals[prop.ID]
	if ok && !local.Pending() {
		g.log.Warn("confirm: proposal already resolved", "actor_id", p.ID, "proposal_id", prop.ID, "status", local.Status)
		return Result{Outcome: OutcomeIgnored, Proposal: local.Clone()}
	}
	if !ok {
		local = prop.Clone()
		local.Status = StatusPending
		// Never refund escrow we did not record paying.
		local.Escrow = 0
		g.proposals[local.ID] = local
	}
	g.reject(p, local, prop.Reason, prop.ResolvedTurn)
	return Result{Outcome: OutcomeRejected, Proposal: local.Clone()}
}

func (g *Governor) Get(id string) (*Proposal, bool) {
	prop, ok := g.proposals[id]
	if !ok {
		return nil, false
	}
	return prop.Clone(), true
}

// List returns proposals for one business, or all of them when businessID is
// empty, oldest first.
func (g *Governor) List(businessID string) []*Proposal {
	var out []*Proposal
	for _, prop := range g.sorted() {
		if businessID == "" || prop.BusinessID == businessID {
			out = append(out, prop.Clone())
		}
	}
	return out
}

// Restore replaces the governor's proposals, for loading a saved replica.
func (g *Governor) Restore(list []*Proposal) {
	g.proposals = make(map[string]*Proposal, len(list))
	for _, prop := range list {
		if prop != nil && prop.ID != "" {
			g.proposals[prop.ID] = prop.Clone()
		}
	}
}

func (g *Governor) reject(p *economy.Player, prop *Proposal, reason string, turn int) {
	prop.Status = StatusRejected
	prop.Reason = reason
	prop.ResolvedTurn = turn
	if prop.InitiatorID == p.ID && prop.Escrow > 0 {
		p.Cash += prop.Escrow
	}
	g.log.Info("proposal rejected", "actor_id", p.ID, "proposal_id", prop.ID, "reason", reason, "refund", prop.InitiatorID == p.ID && prop.Escrow > 0)
}

func (g *Governor) dryRun(p *economy.Player, b *business.Business, c Change, turn int, funds int64) error {
	all := make([]*business.Business, 0, len(p.Businesses))
	var target *business.Business
	for _, x := range p.Businesses {
		cp := x.Clone()
		if x == b {
			target = cp
		}
		all = append(all, cp)
	}
	_, err := g.applier.Apply(Target{ActorID: p.ID, Business: target, All: all, Turn: turn, Funds: funds}, c)
	return err
}

func (g *Governor) sorted() []*Proposal {
	out := make([]*Proposal, 0, len(g.proposals))
	for _, prop := range g.proposals {
		out = append(out, prop)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTurn != out[j].CreatedTurn {
			return out[i].CreatedTurn < out[j].CreatedTurn
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// initiatorCost is what the proposing actor pays when the change goes ahead.
func initiatorCost(c Change, b *business.Business, share float64) (int64, error) {
	switch ch := c.(type) {
	case FundCollection:
		if ch.Amount <= 0 {
			return 0, fmt.Errorf("%w: amount must be > 0", ErrInvalidChange)
		}
		return shareOfAmount(ch.Amount, share), nil
	case Freeze:
		if b.State == business.StateFrozen {
			return 0, business.ErrBusinessFrozen
		}
		return b.FreezeCost(), nil
	case Unfreeze:
		if b.State != business.StateFrozen {
			return 0, business.ErrNotFrozen
		}
		return b.ReactivationCost(), nil
	}
	return 0, nil
}

// approverCost is the approving partner's own contribution.
func approverCost(c Change, share float64) int64 {
	if fc, ok := c.(FundCollection); ok {
		return shareOfAmount(fc.Amount, share)
	}
	return 0
}

func shareOfAmount(amount int64, share float64) int64 {
	if share <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * math.Min(share, business.FullShare) / business.FullShare))
}

func notifyOnResolve(prop *Proposal, resolver string) []string {
	return without(append([]string{prop.InitiatorID}, prop.Targets...), resolver)
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if id == drop || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func changeType(c Change) ChangeType {
	if c == nil {
		return ""
	}
	return c.Type()
}
