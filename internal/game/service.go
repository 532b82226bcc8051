package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"lifesim/internal/business"
	"lifesim/internal/economy"
	"lifesim/internal/events"
	"lifesim/internal/governance"
	"lifesim/internal/peer"
	"lifesim/internal/store"
)

const persistTimeout = 5 * time.Second

type Options struct {
	// ProposalTTL is the number of quarters a proposal may stay pending.
	// Zero keeps proposals pending until resolved; negative picks the default.
	ProposalTTL     int
	DefaultCountry  string
	StarterCash     int64
	Concurrency     int
	ReportCacheSize int
	Network         *business.Coordinator
}

// Service hosts one replica session per actor and persists every change to
// the store. It is the only owner of those replicas in a deployment.
type Service struct {
	store    store.Store
	registry *economy.Registry
	bus      events.Channel
	network  *business.Coordinator
	log      *slog.Logger
	opts     Options

	mu       sync.Mutex
	sessions map[string]*peer.Session
	closed   bool
	reports  *lru.Cache
	// saving serializes snapshot writes per actor, so a snapshot never
	// overwrites a newer one.
	saving map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	quarter sync.Mutex
}

func NewService(st store.Store, reg *economy.Registry, bus events.Channel, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = economy.NewRegistry(economy.DefaultCountries()...)
	}
	if opts.ProposalTTL < 0 {
		opts.ProposalTTL = governance.DefaultProposalTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = DefaultReportCacheSize
	}
	if opts.StarterCash <= 0 {
		opts.StarterCash = StarterCash
	}
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = "us"
	}
	network := opts.Network
	if network == nil {
		network = business.NewCoordinator(nil)
	}
	reports, _ := lru.New(opts.ReportCacheSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    st,
		registry: reg,
		bus:      bus,
		network:  network,
		log:      logger,
		opts:     opts,
		sessions: make(map[string]*peer.Session),
		reports:  reports,
		saving:   make(map[string]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LoadActors starts a session for every stored actor so that messages
// addressed to them are reconciled even before they next call in.
func (s *Service) LoadActors(ctx context.Context) (int, error) {
	ids, err := s.store.ListActors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list actors: %w", err)
	}
	for _, id := range ids {
		if _, err := s.session(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*peer.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.cancel()
	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *Service) session(ctx context.Context, actorID string) (*peer.Session, error) {
	if err := ValidateActorID(actorID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	if sess, ok := s.sessions[actorID]; ok {
		return sess, nil
	}

	snap, err := s.store.LoadSnapshot(ctx, actorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		snap = peer.Snapshot{
			Player: economy.Player{
				ID:        actorID,
				Name:      actorID,
				CountryID: s.opts.DefaultCountry,
				Cash:      s.opts.StarterCash,
			},
			Turn: 1,
		}
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("create %s: %w", actorID, err)
		}
		s.log.Info("player created", "actor_id", actorID, "cash", snap.Player.Cash)
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", actorID, err)
	}

	sess := peer.New(snap, peer.Options{
		Bus:      s.bus,
		Network:  s.network,
		Logger:   s.log,
		OnChange: s.onChange,
	})
	if err := sess.Start(s.ctx); err != nil {
		sess.Close()
		return nil, err
	}
	s.sessions[actorID] = sess
	return sess, nil
}

func (s *Service) onChange(actorID string) {
	s.mu.Lock()
	sess, ok := s.sessions[actorID]
	s.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist(ctx, sess); err != nil {
		s.log.Error("persist inbound change failed", "actor_id", actorID, "err", err)
	}
}

// persist writes the session's current snapshot. The snapshot is taken under
// the actor's save lock, so writes land in the order the replica changed.
func (s *Service) persist(ctx context.Context, sess *peer.Session) error {
	lock := s.saveLock(sess.ActorID())
	lock.Lock()
	defer lock.Unlock()
	s.reports.Remove(sess.ActorID())
	if err := s.store.SaveSnapshot(ctx, sess.Snapshot()); err != nil {
		return fmt.Errorf("save %s: %w", sess.ActorID(), err)
	}
	return nil
}

func (s *Service) saveLock(actorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.saving[actorID]
	if !ok {
		lock = &sync.Mutex{}
		s.saving[actorID] = lock
	}
	return lock
}

func (s *Service) countryFor(p *economy.Player) (*economy.CountryEconomy, error) {
	id := p.CountryID
	if id == "" {
		id = s.opts.DefaultCountry
	}
	return s.registry.Get(id)
}

// Report is the settlement the next quarter advance would produce for the
// actor. Results are cached until the actor's replica changes.
func (s *Service) Report(ctx context.Context, actorID string) (economy.Report, error) {
	if v, ok := s.reports.Get(actorID); ok {
		return v.(economy.Report), nil
	}
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return economy.Report{}, err
	}
	country, err := s.countryFor(sess.Player())
	if err != nil {
		return economy.Report{}, err
	}
	r := sess.Preview(country, economy.ReportContext{})
	s.reports.Add(actorID, r)
	return r, nil
}

func (s *Service) Reports(ctx context.Context, actorID string, limit int) ([]economy.Report, error) {
	if err := ValidateActorID(actorID); err != nil {
		return nil, err
	}
	return s.store.Reports(ctx, actorID, limit)
}

func (s *Service) Dashboard(ctx context.Context, actorID string) (Dashboard, error) {
	preview, err := s.Report(ctx, actorID)
	if err != nil {
		return Dashboard{}, err
	}
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return Dashboard{}, err
	}
	snap := sess.Snapshot()
	out := Dashboard{
		ActorID:             snap.Player.ID,
		Name:                snap.Player.Name,
		CountryID:           snap.Player.CountryID,
		Turn:                snap.Turn,
		Cash:                snap.Player.Cash,
		QuarterlyBaseSalary: snap.Player.QuarterlyBaseSalary,
		Businesses:          views(sess.Businesses(), actorID),
		Preview:             preview,
	}
	for _, p := range snap.Proposals {
		if p.Pending() {
			out.PendingProposals++
		}
	}
	return out, nil
}

func (s *Service) Businesses(ctx context.Context, actorID string) ([]BusinessView, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return views(sess.Businesses(), actorID), nil
}

func (s *Service) Business(ctx context.Context, actorID, businessID string) (BusinessView, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return BusinessView{}, err
	}
	b, err := sess.Business(businessID)
	if err != nil {
		return BusinessView{}, err
	}
	return viewOf(b, actorID), nil
}

func (s *Service) OpenBusiness(ctx context.Context, actorID string, in OpenBusinessInput) (BusinessView, error) {
	if err := ValidateEntityName(in.Type); err != nil {
		return BusinessView{}, fmt.Errorf("business type: %w", err)
	}
	if in.Name != "" {
		if err := ValidateEntityName(in.Name); err != nil {
			return BusinessView{}, err
		}
	}
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return BusinessView{}, err
	}
	b, err := sess.OpenBusiness(ctx, in.spec())
	if err != nil {
		return BusinessView{}, err
	}
	if err := s.persist(ctx, sess); err != nil {
		return BusinessView{}, err
	}
	return viewOf(b, actorID), nil
}

func (s *Service) CloseBusiness(ctx context.Context, actorID, businessID string) (CloseResult, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return CloseResult{}, err
	}
	payout, err := sess.CloseBusiness(ctx, businessID)
	if err != nil {
		return CloseResult{}, err
	}
	if err := s.persist(ctx, sess); err != nil {
		return CloseResult{}, err
	}
	return CloseResult{BusinessID: businessID, Payout: payout, Cash: sess.Player().Cash}, nil
}

func (s *Service) AddPartner(ctx context.Context, actorID, businessID string, in PartnerInput) (BusinessView, error) {
	if err := ValidateActorID(in.ActorID); err != nil {
		return BusinessView{}, fmt.Errorf("partner: %w", err)
	}
	if in.ActorID == actorID {
		return BusinessView{}, fmt.Errorf("%w: cannot partner with yourself", business.ErrInvalidShare)
	}
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return BusinessView{}, err
	}
	// The new partner needs a live replica to receive the business.
	if _, err := s.session(ctx, in.ActorID); err != nil {
		return BusinessView{}, err
	}
	b, err := sess.AddPartner(ctx, businessID, in.ActorID, in.Share, in.Invested)
	if err != nil {
		return BusinessView{}, err
	}
	if err := s.persist(ctx, sess); err != nil {
		return BusinessView{}, err
	}
	return viewOf(b, actorID), nil
}

func (s *Service) Propose(ctx context.Context, actorID, businessID string, in ChangeInput) (ChangeResult, error) {
	c, err := in.decode()
	if err != nil {
		return ChangeResult{}, err
	}
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return ChangeResult{}, err
	}
	res, err := sess.Propose(ctx, businessID, c)
	if err != nil {
		return ChangeResult{}, err
	}
	return s.changed(ctx, sess, businessID, res)
}

func (s *Service) Approve(ctx context.Context, actorID, proposalID string) (ChangeResult, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return ChangeResult{}, err
	}
	res, err := sess.Approve(ctx, proposalID)
	if err != nil {
		return ChangeResult{}, err
	}
	return s.changed(ctx, sess, res.Proposal.BusinessID, res)
}

func (s *Service) Reject(ctx context.Context, actorID, proposalID, reason string) (ChangeResult, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return ChangeResult{}, err
	}
	res, err := sess.Reject(ctx, proposalID, reason)
	if err != nil {
		return ChangeResult{}, err
	}
	return s.changed(ctx, sess, res.Proposal.BusinessID, res)
}

func (s *Service) changed(ctx context.Context, sess *peer.Session, businessID string, res governance.Result) (ChangeResult, error) {
	out := ChangeResult{Outcome: res.Outcome, Ignored: res.Ignored(), Proposal: res.Proposal}
	if !res.Ignored() {
		if err := s.persist(ctx, sess); err != nil {
			return ChangeResult{}, err
		}
	}
	if b, err := sess.Business(businessID); err == nil {
		v := viewOf(b, sess.ActorID())
		out.Business = &v
	}
	out.Cash = sess.Player().Cash
	return out, nil
}

func (s *Service) Proposals(ctx context.Context, actorID, businessID string) ([]*governance.Proposal, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return sess.Proposals(businessID), nil
}

func (s *Service) Proposal(ctx context.Context, actorID, proposalID string) (*governance.Proposal, error) {
	sess, err := s.session(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return sess.Proposal(proposalID)
}

// AdvanceQuarter settles the quarter for every stored actor in parallel,
// then moves every country's inflation forward. A player whose settlement
// fails is logged and counted; the run only aborts when ctx is done.
func (s *Service) AdvanceQuarter(ctx context.Context) (QuarterSummary, error) {
	s.quarter.Lock()
	defer s.quarter.Unlock()

	summary := QuarterSummary{StartedAt: time.Now().UTC()}
	if _, err := s.LoadActors(ctx); err != nil {
		return summary, err
	}
	s.mu.Lock()
	sessions := make([]*peer.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := s.settle(gctx, sess)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				s.log.Error("quarter settlement failed", "actor_id", sess.ActorID(), "err", err)
				return nil
			}
			summary.Players++
			summary.NetProfit += report.NetProfit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	s.registry.AdvanceQuarter()
	s.reports.Purge()
	summary.FinishedAt = time.Now().UTC()
	s.log.Info("quarter advanced",
		"players", summary.Players,
		"failed", summary.Failed,
		"net_profit", summary.NetProfit,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	return summary, nil
}

func (s *Service) settle(ctx context.Context, sess *peer.Session) (economy.Report, error) {
	country, err := s.countryFor(sess.Player())
	if err != nil {
		return economy.Report{}, err
	}
	report, err := sess.AdvanceQuarter(ctx, country, economy.ReportContext{}, s.opts.ProposalTTL)
	if err != nil {
		return economy.Report{}, err
	}
	if err := s.store.AppendReport(ctx, sess.ActorID(), report); err != nil {
		return report, fmt.Errorf("append report: %w", err)
	}
	if err := s.persist(ctx, sess); err != nil {
		return report, err
	}
	return report, nil
}

func views(list []*business.Business, actorID string) []BusinessView {
	out := make([]BusinessView, 0, len(list))
	for _, b := range list {
		out = append(out, viewOf(b, actorID))
	}
	return out
}
