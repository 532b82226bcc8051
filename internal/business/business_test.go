package business

import (
	"errors"
	"testing"
)

func TestResolveThresholds(t *testing.T) {
	tests := []struct {
		share       float64
		canPropose  bool
		canApply    bool
		needApprove bool
	}{
		{share: 49, canPropose: false, canApply: false, needApprove: false},
		{share: 50, canPropose: true, canApply: false, needApprove: true},
		{share: 51, canPropose: true, canApply: true, needApprove: false},
		{share: 100, canPropose: true, canApply: true, needApprove: false},
	}
	for _, tc := range tests {
		b := &Business{OwnerID: "a", Partners: []Partner{
			{ActorID: "a", Share: tc.share},
			{ActorID: "b", Share: 100 - tc.share},
		}}
		r := Resolve(b, "a")
		if r.CanPropose != tc.canPropose || r.CanApplyDirectly != tc.canApply || r.RequiresApproval != tc.needApprove {
			t.Fatalf("share=%v got %+v", tc.share, r)
		}
		if !tc.canPropose && !errors.Is(r.Check(), ErrInsufficientRights) {
			t.Fatalf("share=%v expected insufficient rights", tc.share)
		}
	}
}

func TestShareOfImplicitOwner(t *testing.T) {
	b := &Business{OwnerID: "owner"}
	if got := ShareOf(b, "owner"); got != 100 {
		t.Fatalf("got %v want 100", got)
	}
	if got := ShareOf(b, "stranger"); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
	if !Resolve(b, "owner").CanApplyDirectly {
		t.Fatalf("sole owner should apply directly")
	}
}

func TestCounterpart(t *testing.T) {
	b := &Business{Partners: []Partner{{ActorID: "a", Share: 50}, {ActorID: "b", Share: 50}}}
	if got, ok := Counterpart(b, "a"); !ok || got != "b" {
		t.Fatalf("got %q %v", got, ok)
	}
	if got, ok := Counterpart(b, "b"); !ok || got != "a" {
		t.Fatalf("got %q %v", got, ok)
	}
	b.Partners = append(b.Partners, Partner{ActorID: "c"})
	if _, ok := Counterpart(b, "a"); ok {
		t.Fatalf("expected no counterpart with three partners")
	}
}

func TestAddPartnerKeepsShareInvariant(t *testing.T) {
	b := &Business{OwnerID: "a", UpfrontCost: 1000}
	if err := b.AddPartner("b", 50, 500); err != nil {
		t.Fatalf("add partner: %v", err)
	}
	if ShareOf(b, "a") != 50 || ShareOf(b, "b") != 50 {
		t.Fatalf("unexpected partition %+v", b.Partners)
	}
	if err := b.AddPartner("c", 60, 0); !errors.Is(err, ErrShareOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := b.AddPartner("b", 1, 0); err == nil {
		t.Fatalf("expected duplicate partner to fail")
	}
	if err := ValidateShares(b.Partners); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestValidateShares(t *testing.T) {
	if err := ValidateShares([]Partner{{ActorID: "a", Share: 60}, {ActorID: "b", Share: 50}}); !errors.Is(err, ErrShareOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := ValidateShares([]Partner{{ActorID: "a", Share: 33.4}, {ActorID: "b", Share: 33.3}, {ActorID: "c", Share: 33.3}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnitPriceFor(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{level: 5, want: 20},
		{level: 10, want: 35},
		{level: 1, want: 8},
	}
	for _, tc := range tests {
		if got := UnitPriceFor(20, tc.level); got != tc.want {
			t.Fatalf("level=%d got %v want %v", tc.level, got, tc.want)
		}
	}
}

func TestClampPrice(t *testing.T) {
	if ClampPrice(0) != 1 || ClampPrice(11) != 10 || ClampPrice(7) != 7 {
		t.Fatalf("clamp out of bounds")
	}
}

func TestOpenAndLiquidate(t *testing.T) {
	_, _, err := Open("a", OpenSpec{Type: "cafe", UpfrontCost: 900, CreationCost: 200}, 1000, 0)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	b, cost, err := Open("a", OpenSpec{Type: "Cafe", UpfrontCost: 900, CreationCost: 100, PurchaseCost: 20}, 1000, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if cost != 1000 || b.State != StateOpening || b.Type != "cafe" || b.Price != NeutralPrice {
		t.Fatalf("unexpected business %+v cost=%d", b, cost)
	}
	if b.Inventory.UnitPrice != 20 {
		t.Fatalf("unit price %v", b.Inventory.UnitPrice)
	}
	if b.Activate(3) {
		t.Fatalf("should not activate in the opening quarter")
	}
	if !b.Activate(4) || b.State != StateActive {
		t.Fatalf("expected activation")
	}
	if err := b.AddPartner("b", 25, 0); err != nil {
		t.Fatalf("add partner: %v", err)
	}
	if got := b.LiquidationValue(); got != 450 {
		t.Fatalf("liquidation %d", got)
	}
	if got := b.LiquidationPayout("a"); got != 338 {
		t.Fatalf("payout a %d", got)
	}
	if err := CanClose(b, "b"); !errors.Is(err, ErrInsufficientRights) {
		t.Fatalf("minority partner should not close")
	}
}

func TestEmploymentSalary(t *testing.T) {
	b := &Business{Employees: []Employee{
		{ID: "1", Salary: 3000, ActorID: "a"},
		{ID: "2", Salary: 1000},
	}}
	if got := b.EmploymentSalary("a"); got != 3000 {
		t.Fatalf("got %v", got)
	}
	if got := b.EmploymentSalary("b"); got != 0 {
		t.Fatalf("got %v", got)
	}
	if got := b.FreezeCost(); got != 4000 {
		t.Fatalf("freeze cost %d", got)
	}
}
