package peer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lifesim/internal/business"
	"lifesim/internal/economy"
	"lifesim/internal/events"
	"lifesim/internal/governance"
)

// Propose changes a shared business, directly or through a proposal
// depending on the actor's share.
func (s *Session) Propose(ctx context.Context, businessID string, c governance.Change) (governance.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return governance.Result{}, ErrSessionClosed
	}
	res, err := s.governor.Propose(s.player, businessID, c, s.turn)
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	s.publish(ctx, s.messagesFor(res))
	return res, nil
}

func (s *Session) Approve(ctx context.Context, proposalID string) (governance.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return governance.Result{}, ErrSessionClosed
	}
	res, err := s.governor.Approve(s.player, proposalID, s.turn)
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	s.publish(ctx, s.messagesFor(res))
	return res, nil
}

func (s *Session) Reject(ctx context.Context, proposalID, reason string) (governance.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return governance.Result{}, ErrSessionClosed
	}
	res, err := s.governor.Reject(s.player, proposalID, reason, s.turn)
	s.mu.Unlock()
	if err != nil {
		return res, err
	}
	s.publish(ctx, s.messagesFor(res))
	return res, nil
}

// OpenBusiness charges upfront and creation cost and adds the business to the
// replica, attaching it to a branch network when the owner already runs one
// of the same type.
func (s *Session) OpenBusiness(ctx context.Context, spec business.OpenSpec) (*business.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	b, cost, err := business.Open(s.player.ID, spec, s.player.Cash, s.turn)
	if err != nil {
		s.log.Warn("open business refused", "type", spec.Type, "err", err)
		return nil, err
	}
	s.player.Cash -= cost
	s.network.Attach(s.player.Businesses, b)
	s.player.Businesses = append(s.player.Businesses, b)
	s.log.Info("business opened", "business_id", b.ID, "type", b.Type, "cost", cost, "network_id", b.NetworkID)
	return b.Clone(), nil
}

// CloseBusiness liquidates a business at half its value. Each partner is
// paid in proportion to their share; remote partners are credited when the
// close reaches them.
func (s *Session) CloseBusiness(ctx context.Context, businessID string) (int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	b := s.player.Business(businessID)
	if b == nil || b.Closed {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", governance.ErrBusinessNotFound, businessID)
	}
	if err := business.CanClose(b, s.player.ID); err != nil {
		s.mu.Unlock()
		s.log.Warn("close business refused", "business_id", businessID, "share", business.ShareOf(b, s.player.ID))
		return 0, err
	}

	payouts := map[string]int64{}
	if len(b.Partners) == 0 {
		payouts[s.player.ID] = b.LiquidationValue()
	}
	for _, p := range b.Partners {
		payouts[p.ActorID] = b.LiquidationPayout(p.ActorID)
	}
	before := map[string]*business.Business{b.ID: b.Clone()}
	for _, x := range business.Siblings(s.player.Businesses, b.NetworkID) {
		before[x.ID] = x.Clone()
	}
	b.Closed = true
	changed := s.network.Detach(s.player.Businesses, b)
	own := payouts[s.player.ID]
	s.player.Cash += own

	deltas := []governance.Delta{governance.Diff(before[b.ID], b)}
	for _, x := range changed {
		deltas = append(deltas, governance.Diff(before[x.ID], x))
	}
	msg := events.New(events.TypeBusinessUpdated, s.player.ID, "")
	msg.Deltas = deltas
	msg.Payouts = payouts
	msgs := s.fanout(msg, business.OtherPartners(b, s.player.ID))
	s.mu.Unlock()

	s.log.Info("business closed", "business_id", businessID, "payout", own)
	s.publish(ctx, msgs)
	return own, nil
}

// AddPartner admits a co-owner. Only a strict majority holder may do so.
func (s *Session) AddPartner(ctx context.Context, businessID, partnerID string, share float64, invested int64) (*business.Business, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	b := s.player.Business(businessID)
	if b == nil || b.Closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", governance.ErrBusinessNotFound, businessID)
	}
	if !business.Resolve(b, s.player.ID).CanApplyDirectly {
		s.mu.Unlock()
		return nil, business.ErrInsufficientRights
	}
	partnerID = strings.TrimSpace(partnerID)
	existing := business.OtherPartners(b, s.player.ID)
	before := b.Clone()
	if err := b.AddPartner(partnerID, share, invested); err != nil {
		s.mu.Unlock()
		s.log.Warn("add partner refused", "business_id", businessID, "partner_id", partnerID, "err", err)
		return nil, err
	}

	var msgs []events.Message
	welcome := events.New(events.TypeBusinessUpdated, s.player.ID, partnerID)
	welcome.Created = []*business.Business{b.Clone()}
	msgs = append(msgs, welcome)
	update := events.New(events.TypeBusinessUpdated, s.player.ID, "")
	update.Deltas = []governance.Delta{governance.Diff(before, b)}
	msgs = append(msgs, s.fanout(update, existing)...)
	out := b.Clone()
	s.mu.Unlock()

	s.log.Info("partner added", "business_id", businessID, "partner_id", partnerID, "share", share)
	s.publish(ctx, msgs)
	return out, nil
}

// AdvanceQuarter settles the quarter for this actor: business financials,
// the report, cash, activation of new businesses and proposal expiry.
func (s *Session) AdvanceQuarter(ctx context.Context, country *economy.CountryEconomy, rc economy.ReportContext, ttl int) (economy.Report, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return economy.Report{}, ErrSessionClosed
	}
	p := s.player
	report := settle(p, country, rc, s.turn)
	p.Cash += report.NetProfit
	p.QuarterlyBaseSalary = report.Income.Salary

	s.turn++
	for _, b := range p.Businesses {
		if b != nil && b.Activate(s.turn) {
			s.log.Info("business activated", "business_id", b.ID)
		}
	}
	var msgs []events.Message
	for _, res := range s.governor.ExpireStale(p, s.turn, ttl) {
		msgs = append(msgs, s.messagesFor(res)...)
	}
	s.mu.Unlock()

	s.publish(ctx, msgs)
	return report, nil
}

// Preview computes the report the next quarter advance would produce
// without touching the replica.
func (s *Session) Preview(country *economy.CountryEconomy, rc economy.ReportContext) economy.Report {
	s.mu.Lock()
	p := s.player.Clone()
	turn := s.turn
	s.mu.Unlock()
	return settle(p, country, rc, turn)
}

// settle refreshes business financials on p and computes its report.
func settle(p *economy.Player, country *economy.CountryEconomy, rc economy.ReportContext, turn int) economy.Report {
	for _, b := range p.Businesses {
		if b != nil && !b.Closed {
			economy.RefreshFinancials(b, country)
		}
	}
	if rc.BusinessOverride == nil {
		agg := economy.AggregateBusinesses(p.ID, p.Businesses)
		rc.BusinessOverride = &agg
	}
	if rc.DebtInterest == 0 {
		rc.DebtInterest = economy.DebtInterestPerQuarter(p.Debts)
	}
	rc.Turn = turn
	return economy.ComputeReport(p, country, rc)
}

func (s *Session) messagesFor(res governance.Result) []events.Message {
	var t events.Type
	switch res.Outcome {
	case governance.OutcomeApplied:
		t = events.TypeBusinessUpdated
	case governance.OutcomeProposed:
		t = events.TypeChangeProposed
	case governance.OutcomeApproved:
		t = events.TypeChangeApproved
	case governance.OutcomeRejected:
		t = events.TypeChangeRejected
	case governance.OutcomeWithdrawing:
		t = events.TypeChangeWithdrawn
	default:
		return nil
	}
	msg := events.New(t, s.player.ID, "")
	msg.Proposal = res.Proposal
	if t == events.TypeBusinessUpdated || t == events.TypeChangeApproved {
		msg.Deltas = res.Effect.Deltas
		msg.Created = res.Effect.Created
	}
	return s.fanout(msg, res.Recipients)
}

func (s *Session) fanout(msg events.Message, recipients []string) []events.Message {
	out := make([]events.Message, 0, len(recipients))
	for _, to := range recipients {
		if to == "" || to == s.player.ID {
			continue
		}
		m := msg
		m.ID = uuid.NewString()
		m.To = to
		out = append(out, m)
	}
	return out
}
