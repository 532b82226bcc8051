package business

import (
	"errors"
	"fmt"
	"testing"
)

func newTestCoordinator() *Coordinator {
	c := NewCoordinator(nil)
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return c
}

func TestShouldCreateNetwork(t *testing.T) {
	c := newTestCoordinator()
	existing := []*Business{{ID: "b1", Type: "cafe", OwnerID: "a", State: StateActive}}
	if !c.ShouldCreateNetwork(existing, "cafe") {
		t.Fatalf("expected network on second cafe")
	}
	if c.ShouldCreateNetwork(existing, "gym") {
		t.Fatalf("no network for a new type")
	}
	existing[0].State = StateFrozen
	if c.ShouldCreateNetwork(existing, "cafe") {
		t.Fatalf("frozen instance should not seed a network")
	}
	existing[0].State = StateActive
	existing[0].NetworkID = "net"
	if c.ShouldCreateNetwork(existing, "cafe") {
		t.Fatalf("existing network should be attached, not created")
	}
}

func TestAttachCreatesThenJoinsNetwork(t *testing.T) {
	c := newTestCoordinator()
	first := &Business{ID: "b1", Type: "cafe", OwnerID: "a", Price: 8, State: StateActive, Inventory: Inventory{PurchaseCost: 20}}
	all := []*Business{first}

	second := &Business{ID: "b2", Type: "cafe", OwnerID: "a", Price: 5, State: StateOpening, Inventory: Inventory{PurchaseCost: 20}}
	c.Attach(all, second)
	all = append(all, second)
	if first.NetworkID == "" || !first.IsMainBranch {
		t.Fatalf("first branch should become main: %+v", first)
	}
	if second.NetworkID != first.NetworkID || second.IsMainBranch {
		t.Fatalf("second branch not attached: %+v", second)
	}
	if second.Price != 8 || second.Inventory.UnitPrice != UnitPriceFor(20, 8) {
		t.Fatalf("second branch should inherit main price, got %d %v", second.Price, second.Inventory.UnitPrice)
	}
	if first.NetworkBonus != DefaultBonus(2) || second.NetworkBonus != DefaultBonus(2) {
		t.Fatalf("bonus not recomputed")
	}

	third := &Business{ID: "b3", Type: "cafe", OwnerID: "a", State: StateOpening}
	c.Attach(all, third)
	if third.NetworkID != first.NetworkID || third.Price != 8 {
		t.Fatalf("third branch should join existing network")
	}
	if first.NetworkBonus != DefaultBonus(3) {
		t.Fatalf("bonus for three branches: %v", first.NetworkBonus)
	}
}

func TestSyncPriceToNetwork(t *testing.T) {
	c := newTestCoordinator()
	main := &Business{ID: "m", NetworkID: "n", IsMainBranch: true, Price: 10, Inventory: Inventory{PurchaseCost: 20}}
	branch := &Business{ID: "x", NetworkID: "n", Price: 5, Inventory: Inventory{PurchaseCost: 20}}
	other := &Business{ID: "y", NetworkID: "other", Price: 5}
	all := []*Business{main, branch, other}

	changed, err := c.SyncPriceToNetwork(all, main)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("changed %d", len(changed))
	}
	if branch.Price != 10 || branch.Inventory.UnitPrice != 35 || main.Inventory.UnitPrice != 35 {
		t.Fatalf("branch not synced: %+v", branch)
	}
	if other.Price != 5 {
		t.Fatalf("foreign network touched")
	}
	if _, err := c.SyncPriceToNetwork(all, branch); !errors.Is(err, ErrNotMainBranch) {
		t.Fatalf("expected not main branch, got %v", err)
	}
}

func TestOpenBranchCopiesPartners(t *testing.T) {
	c := newTestCoordinator()
	src := &Business{ID: "s", Type: "shop", OwnerID: "a", Price: 6, State: StateActive,
		Partners: []Partner{{ActorID: "a", Share: 50}, {ActorID: "b", Share: 50}}}
	branch, changed := c.OpenBranch([]*Business{src}, src, "", 2)
	if branch.Name != src.Name || branch.State != StateOpening || branch.OpenedTurn != 2 {
		t.Fatalf("unexpected branch %+v", branch)
	}
	if len(branch.Partners) != 2 {
		t.Fatalf("partners not copied")
	}
	branch.Partners[0].Share = 10
	if src.Partners[0].Share != 50 {
		t.Fatalf("partners aliased")
	}
	if len(changed) < 2 {
		t.Fatalf("expected source and branch to change, got %d", len(changed))
	}
}

func TestDetachHandsOverMainBranch(t *testing.T) {
	c := newTestCoordinator()
	main := &Business{ID: "m", Type: "cafe", NetworkID: "n", IsMainBranch: true, State: StateActive}
	next := &Business{ID: "x", Type: "cafe", NetworkID: "n", State: StateActive}
	last := &Business{ID: "y", Type: "cafe", NetworkID: "n", State: StateActive}
	all := []*Business{main, next, last}
	c.UpdateNetworkBonuses(all, "n")

	main.Closed = true
	changed := c.Detach(all, main)
	if main.IsMainBranch || !next.IsMainBranch || last.IsMainBranch {
		t.Fatalf("main=%v next=%v last=%v", main.IsMainBranch, next.IsMainBranch, last.IsMainBranch)
	}
	if MainBranch(all, "n") != next {
		t.Fatalf("network has no main branch")
	}
	if next.NetworkBonus != DefaultBonus(2) || last.NetworkBonus != DefaultBonus(2) {
		t.Fatalf("bonus next=%v last=%v", next.NetworkBonus, last.NetworkBonus)
	}
	if len(changed) != 2 || changed[0] != next {
		t.Fatalf("changed=%d", len(changed))
	}

	last.Closed = true
	c.Detach(all, last)
	if !next.IsMainBranch || next.NetworkBonus != 0 {
		t.Fatalf("closing a plain branch moved the main role: %+v", next)
	}
	if got := c.Detach(all, &Business{ID: "solo"}); got != nil {
		t.Fatalf("stand-alone detach changed %d", len(got))
	}
}
