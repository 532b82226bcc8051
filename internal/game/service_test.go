package game

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lifesim/internal/business"
	"lifesim/internal/economy"
	"lifesim/internal/events"
	"lifesim/internal/governance"
	"lifesim/internal/peer"
	"lifesim/internal/store"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus := events.NewMemoryBus(0, quiet())
	reg := economy.NewRegistry(economy.CountryEconomy{ID: "us", PersonalTaxRate: 10, CorporateTaxRate: 20, CostOfLiving: 1, InflationRate: 4})
	svc := NewService(st, reg, bus, Options{ProposalTTL: 4, DefaultCountry: "us", StarterCash: 50_000}, quiet())
	t.Cleanup(func() {
		svc.Close()
		bus.Close()
		st.Close()
	})
	return svc, st
}

func TestSharedBusinessApprovalFlow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	biz, err := svc.OpenBusiness(ctx, "a", OpenBusinessInput{Type: "bakery", Name: "Corner Bakery", UpfrontCost: 10_000, CreationCost: 500, Quantity: 10, PurchaseCost: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if biz.State != business.StateOpening || biz.Share != 100 {
		t.Fatalf("view=%+v", biz)
	}
	if _, err := svc.AddPartner(ctx, "a", biz.ID, PartnerInput{ActorID: "b", Share: 50, Invested: 5_000}); err != nil {
		t.Fatalf("add partner: %v", err)
	}
	eventually(t, "b to receive the business", func() bool {
		v, err := svc.Business(ctx, "b", biz.ID)
		return err == nil && v.Share == 50
	})

	res, err := svc.Propose(ctx, "a", biz.ID, ChangeInput{ChangeType: "fund", Payload: json.RawMessage(`{"amount":1000}`)})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res.Outcome != governance.OutcomeProposed || res.Cash != 39_000 {
		t.Fatalf("result=%+v", res)
	}
	id := res.Proposal.ID
	eventually(t, "proposal to reach b", func() bool {
		list, err := svc.Proposals(ctx, "b", biz.ID)
		return err == nil && len(list) == 1 && list[0].Pending()
	})

	approved, err := svc.Approve(ctx, "b", id)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Outcome != governance.OutcomeApproved || approved.Business.WalletBalance != 1000 || approved.Cash != 49_500 {
		t.Fatalf("approved=%+v business=%+v", approved, approved.Business)
	}
	again, err := svc.Approve(ctx, "b", id)
	if err != nil || !again.Ignored {
		t.Fatalf("second approve: %+v err=%v", again, err)
	}

	eventually(t, "wallet on a", func() bool {
		v, err := svc.Business(ctx, "a", biz.ID)
		return err == nil && v.WalletBalance == 1000
	})
	eventually(t, "a persisted", func() bool {
		snap, err := st.LoadSnapshot(ctx, "a")
		return err == nil && len(snap.Player.Businesses) == 1 && snap.Player.Businesses[0].WalletBalance == 1000
	})
}

func TestProposeRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	biz, err := svc.OpenBusiness(ctx, "a", OpenBusinessInput{Type: "kiosk", UpfrontCost: 1000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name string
		in   ChangeInput
		want error
	}{
		{"unknown type", ChangeInput{ChangeType: "merge"}, governance.ErrUnknownChange},
		{"unknown business", ChangeInput{ChangeType: "price", Payload: json.RawMessage(`{"price":3}`)}, governance.ErrBusinessNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := biz.ID
			if tc.want == governance.ErrBusinessNotFound {
				target = "missing"
			}
			if _, err := svc.Propose(ctx, "a", target, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.Dashboard(ctx, "bad actor"); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	if _, err := svc.OpenBusiness(ctx, "a", OpenBusinessInput{Type: "bakery", Name: "Admin Bakery"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := svc.AddPartner(ctx, "a", biz.ID, PartnerInput{ActorID: "a", Share: 10}); !errors.Is(err, business.ErrInvalidShare) {
		t.Fatalf("expected ErrInvalidShare, got %v", err)
	}
}

func TestAdvanceQuarterSettlesEveryActor(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	preview, err := svc.Report(ctx, "solo")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	// No income: the living baseline of 3000 is the whole loss.
	if preview.NetProfit != -3000 || preview.Warning == "" {
		t.Fatalf("preview=%+v", preview)
	}
	if _, err := svc.Dashboard(ctx, "other"); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	summary, err := svc.AdvanceQuarter(ctx)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if summary.Players != 2 || summary.Failed != 0 || summary.NetProfit != -6000 {
		t.Fatalf("summary=%+v", summary)
	}

	dash, err := svc.Dashboard(ctx, "solo")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Turn != 2 || dash.Cash != 47_000 {
		t.Fatalf("dashboard=%+v", dash)
	}
	// One quarter of 4% annual inflation lifts services by 1%.
	if dash.Preview.NetProfit != -3030 {
		t.Fatalf("preview after inflation=%d", dash.Preview.NetProfit)
	}

	reports, err := svc.Reports(ctx, "solo", 10)
	if err != nil || len(reports) != 1 || reports[0].Turn != 1 {
		t.Fatalf("reports=%+v err=%v", reports, err)
	}
	snap, err := st.LoadSnapshot(ctx, "solo")
	if err != nil || snap.Turn != 2 || snap.Player.Cash != 47_000 {
		t.Fatalf("snapshot=%+v err=%v", snap, err)
	}
}

func TestServiceRestoresFromStore(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	first := NewService(st, nil, nil, Options{StarterCash: 9_000}, quiet())
	if _, err := first.OpenBusiness(ctx, "a", OpenBusinessInput{Type: "cafe", UpfrontCost: 2_000}); err != nil {
		t.Fatalf("open: %v", err)
	}
	first.Close()
	if _, err := first.Dashboard(ctx, "a"); !errors.Is(err, ErrServiceClosed) {
		t.Fatalf("expected ErrServiceClosed, got %v", err)
	}

	second := NewService(st, nil, nil, Options{StarterCash: 9_000}, quiet())
	defer second.Close()
	n, err := second.LoadActors(ctx)
	if err != nil || n != 1 {
		t.Fatalf("load actors n=%d err=%v", n, err)
	}
	list, err := second.Businesses(ctx, "a")
	if err != nil || len(list) != 1 || list[0].Type != "cafe" {
		t.Fatalf("businesses=%+v err=%v", list, err)
	}
	dash, err := second.Dashboard(ctx, "a")
	if err != nil || dash.Cash != 7_000 {
		t.Fatalf("dashboard=%+v err=%v", dash, err)
	}
}

// gatedStore holds the first SaveSnapshot after arm() until release is
// closed, and records the cash of every snapshot it writes.
type gatedStore struct {
	store.Store
	mu      sync.Mutex
	armed   bool
	held    chan struct{}
	release chan struct{}
	cash    []int64
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.held = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedStore) SaveSnapshot(ctx context.Context, snap peer.Snapshot) error {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	held, release := g.held, g.release
	g.mu.Unlock()
	if hold {
		close(held)
		<-release
	}
	if err := g.Store.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	g.mu.Lock()
	g.cash = append(g.cash, snap.Player.Cash)
	g.mu.Unlock()
	return nil
}

func TestPersistKeepsSnapshotsInOrder(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	gated := &gatedStore{Store: st}
	svc := NewService(gated, nil, nil, Options{StarterCash: 1_000}, quiet())
	defer svc.Close()
	ctx := context.Background()

	sess, err := svc.session(ctx, "a")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	gated.arm()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := svc.persist(ctx, sess); err != nil {
			t.Errorf("first persist: %v", err)
		}
	}()
	<-gated.held

	// The replica moves on while the older snapshot is still being written.
	if err := sess.Update(func(p *economy.Player) error {
		p.Cash = 2_000
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	go func() {
		defer wg.Done()
		if err := svc.persist(ctx, sess); err != nil {
			t.Errorf("second persist: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	gated.mu.Lock()
	written := append([]int64(nil), gated.cash...)
	gated.mu.Unlock()
	if len(written) < 2 || written[len(written)-1] != 2_000 {
		t.Fatalf("snapshot writes=%v, newest must land last", written)
	}
	snap, err := st.LoadSnapshot(ctx, "a")
	if err != nil || snap.Player.Cash != 2_000 {
		t.Fatalf("stored cash=%d err=%v", snap.Player.Cash, err)
	}
}
