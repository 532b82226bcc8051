package governance

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"lifesim/internal/business"
	"lifesim/internal/economy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sharedBusiness(aShare, bShare float64) *business.Business {
	b := &business.Business{
		ID:          "biz-1",
		Type:        "bakery",
		Name:        "Corner Bakery",
		OwnerID:     "a",
		Price:       5,
		Quantity:    100,
		UpfrontCost: 2000,
		State:       business.StateActive,
		Inventory:   business.Inventory{PurchaseCost: 20, UnitPrice: 20},
		Employees: []business.Employee{
			{ID: "e1", Name: "Sam", Role: "baker", Level: 1, Salary: 1000},
		},
	}
	b.Partners = []business.Partner{{ActorID: "a", Share: aShare}, {ActorID: "b", Share: bShare}}
	return b
}

// replicas returns two players holding independent copies of one business.
func replicas(aShare, bShare float64) (*economy.Player, *economy.Player) {
	biz := sharedBusiness(aShare, bShare)
	a := &economy.Player{ID: "a", Cash: 10_000, Businesses: []*business.Business{biz}}
	b := &economy.Player{ID: "b", Cash: 10_000, Businesses: []*business.Business{biz.Clone()}}
	return a, b
}

func TestProposeThresholds(t *testing.T) {
	tests := []struct {
		name      string
		share     float64
		wantErr   error
		wantOut   Outcome
		wantPrice int
	}{
		{name: "minority", share: 49, wantErr: business.ErrInsufficientRights, wantPrice: 5},
		{name: "even split", share: 50, wantOut: OutcomeProposed, wantPrice: 5},
		{name: "majority", share: 51, wantOut: OutcomeApplied, wantPrice: 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := replicas(tc.share, 100-tc.share)
			g := NewGovernor(nil, quietLogger())
			res, err := g.Propose(a, "biz-1", PriceChange{Price: 8}, 1)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("propose: %v", err)
			}
			if res.Outcome != tc.wantOut {
				t.Fatalf("outcome=%q want %q", res.Outcome, tc.wantOut)
			}
			if got := a.Businesses[0].Price; got != tc.wantPrice {
				t.Fatalf("price=%d want %d", got, tc.wantPrice)
			}
			pending := len(g.List("biz-1"))
			if tc.wantOut == OutcomeProposed && pending != 1 {
				t.Fatalf("expected one pending proposal, got %d", pending)
			}
			if tc.wantOut != OutcomeProposed && pending != 0 {
				t.Fatalf("expected no proposal, got %d", pending)
			}
		})
	}
}

func TestDirectPriceChangeEmitsOnlyChangedFields(t *testing.T) {
	a, _ := replicas(60, 40)
	g := NewGovernor(nil, quietLogger())
	res, err := g.Propose(a, "biz-1", PriceChange{Price: 10}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(res.Effect.Deltas) != 1 {
		t.Fatalf("deltas=%d want 1", len(res.Effect.Deltas))
	}
	d := res.Effect.Deltas[0]
	if d.Price == nil || *d.Price != 10 || d.UnitPrice == nil || *d.UnitPrice != 35 {
		t.Fatalf("unexpected delta %+v", d)
	}
	if d.Quantity != nil || d.Employees != nil || d.WalletBalance != nil {
		t.Fatalf("delta carries unchanged fields: %+v", d)
	}
	if len(res.Recipients) != 1 || res.Recipients[0] != "b" {
		t.Fatalf("recipients=%v", res.Recipients)
	}
}

func TestFundCollectionApproveIsIdempotent(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())

	proposed, err := ga.Propose(a, "biz-1", FundCollection{Amount: 1000}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if a.Cash != 9_500 || proposed.Proposal.Escrow != 500 {
		t.Fatalf("cash=%d escrow=%d", a.Cash, proposed.Proposal.Escrow)
	}
	if a.Businesses[0].WalletBalance != 0 {
		t.Fatalf("wallet moved before approval")
	}
	gb.Receive(proposed.Proposal)

	approved, err := gb.Approve(b, proposed.Proposal.ID, 1)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if b.Cash != 9_500 || b.Businesses[0].WalletBalance != 1000 {
		t.Fatalf("after approve cash=%d wallet=%d", b.Cash, b.Businesses[0].WalletBalance)
	}

	again, err := gb.Approve(b, proposed.Proposal.ID, 1)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if !again.Ignored() {
		t.Fatalf("second approve outcome=%q", again.Outcome)
	}
	if b.Cash != 9_500 || b.Businesses[0].WalletBalance != 1000 {
		t.Fatalf("second approve double-applied: cash=%d wallet=%d", b.Cash, b.Businesses[0].WalletBalance)
	}

	ga.ConfirmApproved(a, approved.Proposal, approved.Effect)
	if dup := ga.ConfirmApproved(a, approved.Proposal, approved.Effect); !dup.Ignored() {
		t.Fatalf("duplicate confirm outcome=%q", dup.Outcome)
	}
	if a.Cash != 9_500 || a.Businesses[0].WalletBalance != 1000 {
		t.Fatalf("initiator replica cash=%d wallet=%d", a.Cash, a.Businesses[0].WalletBalance)
	}
	if p, _ := ga.Get(proposed.Proposal.ID); p.Status != StatusApproved {
		t.Fatalf("initiator status=%s", p.Status)
	}
}

func TestMajorityFundCollectionPaysOwnShare(t *testing.T) {
	a, _ := replicas(70, 30)
	g := NewGovernor(nil, quietLogger())
	if _, err := g.Propose(a, "biz-1", FundCollection{Amount: 1000}, 1); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if a.Cash != 9_300 || a.Businesses[0].WalletBalance != 700 {
		t.Fatalf("cash=%d wallet=%d", a.Cash, a.Businesses[0].WalletBalance)
	}
}

func TestRejectRefundsEscrow(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())

	proposed, err := ga.Propose(a, "biz-1", Freeze{}, 2)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if a.Cash != 9_000 {
		t.Fatalf("freeze payout not escrowed: cash=%d", a.Cash)
	}
	gb.Receive(proposed.Proposal)
	rejected, err := gb.Reject(b, proposed.Proposal.ID, "not now", 2)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(rejected.Recipients) != 1 || rejected.Recipients[0] != "a" {
		t.Fatalf("recipients=%v", rejected.Recipients)
	}
	if b.Businesses[0].State != business.StateActive {
		t.Fatalf("rejected proposal mutated the business")
	}

	ga.ConfirmRejected(a, rejected.Proposal)
	ga.ConfirmRejected(a, rejected.Proposal)
	if a.Cash != 10_000 {
		t.Fatalf("refund cash=%d want 10000", a.Cash)
	}
	if res, _ := gb.Approve(b, proposed.Proposal.ID, 3); !res.Ignored() {
		t.Fatalf("approve after reject outcome=%q", res.Outcome)
	}
}

func TestInitiatorCannotApproveOwnProposal(t *testing.T) {
	a, _ := replicas(50, 50)
	g := NewGovernor(nil, quietLogger())
	res, err := g.Propose(a, "biz-1", QuantityChange{Quantity: 10}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := g.Approve(a, res.Proposal.ID, 1); !errors.Is(err, business.ErrInsufficientRights) {
		t.Fatalf("expected insufficient rights, got %v", err)
	}
}

func TestExpireStaleRunsOnAddresseeOnly(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())
	res, err := ga.Propose(a, "biz-1", FundCollection{Amount: 400}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	gb.Receive(res.Proposal)

	if got := ga.ExpireStale(a, 9, 4); len(got) != 0 {
		t.Fatalf("initiator copy expired on its own: %+v", got)
	}
	if a.Cash != 9_800 {
		t.Fatalf("escrow released early: cash=%d", a.Cash)
	}
	if got := gb.ExpireStale(b, 9, 0); len(got) != 0 {
		t.Fatalf("ttl=0 must keep proposals pending")
	}
	if got := gb.ExpireStale(b, 4, 4); len(got) != 0 {
		t.Fatalf("expired too early")
	}
	got := gb.ExpireStale(b, 5, 4)
	if len(got) != 1 || got[0].Proposal.Reason != ReasonExpired {
		t.Fatalf("got %+v", got)
	}
	if len(got[0].Recipients) != 1 || got[0].Recipients[0] != "a" {
		t.Fatalf("recipients=%v", got[0].Recipients)
	}
	if b.Cash != 10_000 {
		t.Fatalf("addressee cash=%d", b.Cash)
	}

	ga.ConfirmRejected(a, got[0].Proposal)
	if a.Cash != 10_000 {
		t.Fatalf("escrow not refunded: cash=%d", a.Cash)
	}
	if p, _ := ga.Get(res.Proposal.ID); p.Status != StatusRejected {
		t.Fatalf("status=%s", p.Status)
	}
}

// money sums both actors' cash and one copy of the shared wallet.
func money(a, b *economy.Player) int64 {
	return a.Cash + b.Cash + a.Businesses[0].WalletBalance
}

func TestWithdrawalRacingApproval(t *testing.T) {
	tests := []struct {
		name         string
		approveFirst bool
		wantStatus   Status
		wantCashA    int64
		wantCashB    int64
		wantWallet   int64
	}{
		{name: "approval lands first", approveFirst: true, wantStatus: StatusApproved, wantCashA: 9_500, wantCashB: 9_500, wantWallet: 1000},
		{name: "withdrawal lands first", wantStatus: StatusRejected, wantCashA: 10_000, wantCashB: 10_000, wantWallet: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, b := replicas(50, 50)
			ga := NewGovernor(nil, quietLogger())
			gb := NewGovernor(nil, quietLogger())
			proposed, err := ga.Propose(a, "biz-1", FundCollection{Amount: 1000}, 1)
			if err != nil {
				t.Fatalf("propose: %v", err)
			}
			gb.Receive(proposed.Proposal)
			id := proposed.Proposal.ID

			withdrawn, err := ga.Reject(a, id, "", 1)
			if err != nil {
				t.Fatalf("withdraw: %v", err)
			}
			if withdrawn.Outcome != OutcomeWithdrawing || len(withdrawn.Recipients) != 1 || withdrawn.Recipients[0] != "b" {
				t.Fatalf("withdraw result=%+v", withdrawn)
			}
			if p, _ := ga.Get(id); p.Status != StatusWithdrawing || !p.Pending() {
				t.Fatalf("initiator status=%s", p.Status)
			}
			if a.Cash != 9_500 {
				t.Fatalf("withdrawal refunded before the addressee decided: cash=%d", a.Cash)
			}

			if tc.approveFirst {
				approved, err := gb.Approve(b, id, 1)
				if err != nil {
					t.Fatalf("approve: %v", err)
				}
				if late := gb.Withdraw(b, withdrawn.Proposal, "a", 1); !late.Ignored() {
					t.Fatalf("withdrawal after approval outcome=%q", late.Outcome)
				}
				if res := ga.ConfirmApproved(a, approved.Proposal, approved.Effect); res.Outcome != OutcomeApproved {
					t.Fatalf("confirm on withdrawing copy outcome=%q", res.Outcome)
				}
			} else {
				rejected := gb.Withdraw(b, withdrawn.Proposal, "a", 1)
				if rejected.Outcome != OutcomeRejected || rejected.Proposal.Reason != ReasonWithdrawn {
					t.Fatalf("withdraw on addressee=%+v", rejected)
				}
				if late, err := gb.Approve(b, id, 1); err != nil || !late.Ignored() {
					t.Fatalf("approve after withdrawal outcome=%q err=%v", late.Outcome, err)
				}
				ga.ConfirmRejected(a, rejected.Proposal)
			}

			pa, _ := ga.Get(id)
			pb, _ := gb.Get(id)
			if pa.Status != tc.wantStatus || pb.Status != tc.wantStatus {
				t.Fatalf("status a=%s b=%s want %s", pa.Status, pb.Status, tc.wantStatus)
			}
			if a.Cash != tc.wantCashA || b.Cash != tc.wantCashB {
				t.Fatalf("cash a=%d b=%d", a.Cash, b.Cash)
			}
			if a.Businesses[0].WalletBalance != tc.wantWallet || b.Businesses[0].WalletBalance != tc.wantWallet {
				t.Fatalf("wallet a=%d b=%d want %d", a.Businesses[0].WalletBalance, b.Businesses[0].WalletBalance, tc.wantWallet)
			}
			if got := money(a, b); got != 20_000 {
				t.Fatalf("money not conserved: %d", got)
			}
		})
	}
}

func TestApprovalAfterInitiatorTTLStillSettles(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())
	proposed, err := ga.Propose(a, "biz-1", FundCollection{Amount: 1000}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	gb.Receive(proposed.Proposal)

	ga.ExpireStale(a, 9, 4)
	approved, err := gb.Approve(b, proposed.Proposal.ID, 9)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	ga.ConfirmApproved(a, approved.Proposal, approved.Effect)
	if a.Cash != 9_500 || a.Businesses[0].WalletBalance != 1000 {
		t.Fatalf("initiator cash=%d wallet=%d", a.Cash, a.Businesses[0].WalletBalance)
	}
	if got := money(a, b); got != 20_000 {
		t.Fatalf("money not conserved: %d", got)
	}
}

func TestWithdrawIgnoresOtherSenders(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())
	proposed, err := ga.Propose(a, "biz-1", FundCollection{Amount: 200}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res := gb.Withdraw(b, proposed.Proposal, "c", 1); !res.Ignored() {
		t.Fatalf("withdrawal from a stranger outcome=%q", res.Outcome)
	}
	// The request may overtake the announcement.
	res := gb.Withdraw(b, proposed.Proposal, "a", 1)
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome=%q", res.Outcome)
	}
	if gb.Receive(proposed.Proposal) {
		t.Fatalf("late announcement reopened the proposal")
	}
	if again, err := gb.Reject(b, proposed.Proposal.ID, "", 2); err != nil || !again.Ignored() {
		t.Fatalf("reject after withdrawal outcome=%q err=%v", again.Outcome, err)
	}
}

func TestFreezeApply(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		a, _ := replicas(60, 40)
		g := NewGovernor(nil, quietLogger())
		res, err := g.Propose(a, "biz-1", Freeze{}, 1)
		if err != nil {
			t.Fatalf("freeze: %v", err)
		}
		biz := a.Businesses[0]
		if res.Outcome != OutcomeApplied || biz.State != business.StateFrozen || len(biz.Employees) != 0 {
			t.Fatalf("outcome=%q state=%s roster=%d", res.Outcome, biz.State, len(biz.Employees))
		}
		if a.Cash != 9_000 {
			t.Fatalf("payout not taken: cash=%d", a.Cash)
		}
		if _, err := g.Propose(a, "biz-1", Freeze{}, 2); !errors.Is(err, business.ErrBusinessFrozen) {
			t.Fatalf("expected ErrBusinessFrozen, got %v", err)
		}
	})
	t.Run("approved", func(t *testing.T) {
		a, b := replicas(50, 50)
		ga := NewGovernor(nil, quietLogger())
		gb := NewGovernor(nil, quietLogger())
		proposed, err := ga.Propose(a, "biz-1", Freeze{}, 1)
		if err != nil {
			t.Fatalf("propose: %v", err)
		}
		gb.Receive(proposed.Proposal)
		approved, err := gb.Approve(b, proposed.Proposal.ID, 1)
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		ga.ConfirmApproved(a, approved.Proposal, approved.Effect)
		for name, p := range map[string]*economy.Player{"a": a, "b": b} {
			biz := p.Businesses[0]
			if biz.State != business.StateFrozen || len(biz.Employees) != 0 {
				t.Fatalf("%s: state=%s roster=%d", name, biz.State, len(biz.Employees))
			}
		}
		if a.Cash != 9_000 || b.Cash != 10_000 {
			t.Fatalf("payout must come from the proposer: a=%d b=%d", a.Cash, b.Cash)
		}
	})
}

func TestApproveRefusesStaleFreezeEscrow(t *testing.T) {
	a, b := replicas(50, 50)
	ga := NewGovernor(nil, quietLogger())
	gb := NewGovernor(nil, quietLogger())
	proposed, err := ga.Propose(a, "biz-1", Freeze{}, 1)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	gb.Receive(proposed.Proposal)

	// The roster grew after the payout was escrowed.
	biz := b.Businesses[0]
	biz.Employees = append(biz.Employees, business.Employee{ID: "e2", Name: "Kim", Role: "cashier", Level: 1, Salary: 500})
	if _, err := gb.Approve(b, proposed.Proposal.ID, 2); !errors.Is(err, ErrStaleProposal) {
		t.Fatalf("expected ErrStaleProposal, got %v", err)
	}
	if biz.State != business.StateActive || len(biz.Employees) != 2 {
		t.Fatalf("stale approval mutated the business: state=%s roster=%d", biz.State, len(biz.Employees))
	}
	if p, _ := gb.Get(proposed.Proposal.ID); p.Status != StatusPending {
		t.Fatalf("status=%s", p.Status)
	}

	rejected, err := gb.Reject(b, proposed.Proposal.ID, "roster changed", 2)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	ga.ConfirmRejected(a, rejected.Proposal)
	if a.Cash != 10_000 {
		t.Fatalf("escrow not refunded: cash=%d", a.Cash)
	}
}

func TestUnfreezeNeedsFunds(t *testing.T) {
	a, _ := replicas(100, 0)
	a.Businesses[0].Partners = nil
	a.Businesses[0].State = business.StateFrozen
	a.Cash = 50
	g := NewGovernor(nil, quietLogger())
	if _, err := g.Propose(a, "biz-1", Unfreeze{}, 1); !errors.Is(err, business.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if a.Businesses[0].State != business.StateFrozen || a.Cash != 50 {
		t.Fatalf("failed unfreeze mutated state")
	}
	a.Cash = 500
	if _, err := g.Propose(a, "biz-1", Unfreeze{}, 1); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if a.Businesses[0].State != business.StateActive || a.Cash != 300 {
		t.Fatalf("state=%s cash=%d", a.Businesses[0].State, a.Cash)
	}
}

func TestApplyRoster(t *testing.T) {
	ap := NewApplier(nil)
	b := sharedBusiness(100, 0)
	target := Target{ActorID: "a", Business: b, All: []*business.Business{b}}

	steps := []struct {
		name  string
		c     Change
		check func(t *testing.T)
	}{
		{name: "hire", c: HireEmployee{Employee: business.Employee{ID: "e2", Name: "Kim", Role: "cashier", Salary: 500}}, check: func(t *testing.T) {
			if len(b.Employees) != 2 || b.Employees[1].Level != 1 {
				t.Fatalf("roster=%+v", b.Employees)
			}
		}},
		{name: "promote", c: PromoteEmployee{EmployeeID: "e1"}, check: func(t *testing.T) {
			if b.Employees[0].Level != 2 || b.Employees[0].Salary != 1100 {
				t.Fatalf("promoted=%+v", b.Employees[0])
			}
		}},
		{name: "demote", c: DemoteEmployee{EmployeeID: "e2"}, check: nil},
		{name: "role", c: ChangeRole{EmployeeID: "e2", Role: "manager"}, check: func(t *testing.T) {
			if b.Employees[1].Role != "manager" {
				t.Fatalf("role=%s", b.Employees[1].Role)
			}
		}},
		{name: "role is me", c: ChangeRole{Role: "director", IsMe: true, Salary: 1500}, check: func(t *testing.T) {
			if got := b.EmploymentSalary("a"); got != 1500 {
				t.Fatalf("employment salary=%v", got)
			}
		}},
		{name: "fire", c: FireEmployee{EmployeeID: "e1"}, check: func(t *testing.T) {
			if _, ok := b.EmployeeByID("e1"); ok {
				t.Fatalf("e1 still employed")
			}
		}},
	}
	for _, s := range steps {
		eff, err := ap.Apply(target, s.c)
		if s.name == "demote" {
			if !errors.Is(err, ErrInvalidChange) {
				t.Fatalf("demote below level 1: expected ErrInvalidChange, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if len(eff.Deltas) != 1 || eff.Deltas[0].Employees == nil || eff.Deltas[0].Price != nil {
			t.Fatalf("%s: delta=%+v", s.name, eff.Deltas)
		}
		s.check(t)
	}
	if _, err := ap.Apply(target, FireEmployee{EmployeeID: "nobody"}); !errors.Is(err, business.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestOpenBranchUsesBusinessWallet(t *testing.T) {
	a, _ := replicas(100, 0)
	a.Businesses[0].Partners = nil
	g := NewGovernor(nil, quietLogger())
	if _, err := g.Propose(a, "biz-1", OpenBranch{Name: "Uptown"}, 1); !errors.Is(err, business.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	a.Businesses[0].WalletBalance = 2500
	res, err := g.Propose(a, "biz-1", OpenBranch{Name: "Uptown"}, 1)
	if err != nil {
		t.Fatalf("open branch: %v", err)
	}
	if len(res.Effect.Created) != 1 || len(a.Businesses) != 2 {
		t.Fatalf("created=%d businesses=%d", len(res.Effect.Created), len(a.Businesses))
	}
	main := a.Businesses[0]
	if main.WalletBalance != 500 || !main.IsMainBranch || main.NetworkID == "" {
		t.Fatalf("main=%+v", main)
	}
	if a.Businesses[1].NetworkID != main.NetworkID || a.Businesses[1].State != business.StateOpening {
		t.Fatalf("branch=%+v", a.Businesses[1])
	}
}

func TestMergeSkipsUnknownBusinesses(t *testing.T) {
	b := sharedBusiness(50, 50)
	price := 9
	list := Merge([]*business.Business{b}, []Delta{{BusinessID: "other", Price: &price}, {BusinessID: b.ID, Price: &price}}, nil)
	if len(list) != 1 || b.Price != 9 {
		t.Fatalf("merge result len=%d price=%d", len(list), b.Price)
	}
}

func TestProposalJSONKeepsTypedChange(t *testing.T) {
	in := Proposal{
		ID:          "p1",
		BusinessID:  "biz-1",
		Change:      ChangeRole{Role: "director", IsMe: true, Salary: 900},
		InitiatorID: "a",
		Targets:     []string{"b"},
		Status:      StatusPending,
		CreatedTurn: 3,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Proposal
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	role, ok := out.Change.(ChangeRole)
	if !ok || !role.IsMe || role.Role != "director" {
		t.Fatalf("change=%#v", out.Change)
	}
	if _, err := DecodeChange("teleport", nil); !errors.Is(err, ErrUnknownChange) {
		t.Fatalf("expected ErrUnknownChange, got %v", err)
	}
}
