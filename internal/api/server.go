package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"

	"lifesim/internal/business"
	"lifesim/internal/config"
	"lifesim/internal/economy"
	"lifesim/internal/game"
	"lifesim/internal/governance"
	"lifesim/internal/peer"
	"lifesim/internal/store"
)

const (
	ActorHeader       = "X-Actor-ID"
	AdminHeader       = "X-Admin-Key"
	IdempotencyHeader = "Idempotency-Key"

	idempotencyWindow = 4096
)

var ErrDuplicateRequest = errors.New("duplicate idempotency key")

type contextKey string

const actorContextKey contextKey = "actor"

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux

	// seen holds keys of requests that succeeded; inflight holds keys of
	// requests still running. Both are keyed actor/key and guarded by keysMu.
	keysMu   sync.Mutex
	seen     *lru.Cache
	inflight map[string]struct{}
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	seen, _ := lru.New(idempotencyWindow)
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),

		seen:     seen,
		inflight: map[string]struct{}{},
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(s.adminMiddleware).Post("/quarter/advance", s.handleAdvanceQuarter)

		r.Group(func(r chi.Router) {
			r.Use(s.actorMiddleware)
			r.Use(s.idempotencyMiddleware)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/report", s.handleReport)
			r.Get("/reports", s.handleReports)

			r.Get("/businesses", s.handleBusinesses)
			r.Post("/businesses", s.handleOpenBusiness)
			r.Get("/businesses/{id}", s.handleBusiness)
			r.Post("/businesses/{id}/partners", s.handleAddPartner)
			r.Post("/businesses/{id}/close", s.handleCloseBusiness)
			r.Get("/businesses/{id}/proposals", s.handleProposals)
			r.Post("/businesses/{id}/proposals", s.handlePropose)

			r.Get("/proposals", s.handleProposals)
			r.Get("/proposals/{id}", s.handleProposal)
			r.Post("/proposals/{id}/approve", s.handleApprove)
			r.Post("/proposals/{id}/reject", s.handleReject)
		})
	})
}

func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actorID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+ActorHeader+" header")
			return
		}
		if err := game.ValidateActorID(actorID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// idempotencyMiddleware refuses a mutating request whose key already
// succeeded, or is still running, for the same actor. A key is only spent by
// a 2xx response, so a failed request can be retried with it.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if r.Method == http.MethodGet || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		id := actorFrom(r.Context()) + "/" + key
		if !s.claimKey(id) {
			writeDomainError(w, ErrDuplicateRequest)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.releaseKey(id, ww.Status())
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) claimKey(id string) bool {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if _, running := s.inflight[id]; running || s.seen.Contains(id) {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// releaseKey ends the in-flight claim, remembering the key when the request
// succeeded. A handler that wrote nothing reports status 0.
func (s *Server) releaseKey(id string, status int) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	delete(s.inflight, id)
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		s.seen.Add(id, struct{}{})
	}
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey != "" {
			got := r.Header.Get(AdminHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminKey)) != 1 {
				writeError(w, http.StatusForbidden, "admin key required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorContextKey).(string)
	return v
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Dashboard(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Report(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	out, err := s.game.Reports(r.Context(), actorFrom(r.Context()), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

func (s *Server) handleBusinesses(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Businesses(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"businesses": out})
}

func (s *Server) handleOpenBusiness(w http.ResponseWriter, r *http.Request) {
	var in game.OpenBusinessInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.OpenBusiness(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleBusiness(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Business(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPartner(w http.ResponseWriter, r *http.Request) {
	var in game.PartnerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AddPartner(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCloseBusiness(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.CloseBusiness(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var in game.ChangeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Propose(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if out.Outcome == governance.OutcomeProposed {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// handleProposals serves both the per-business and the all-businesses
// listing; the id parameter is empty on the latter.
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Proposals(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Proposal(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Approve(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResolution(w, out)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var in game.RejectInput
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Reject(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeResolution(w, out)
}

func (s *Server) handleAdvanceQuarter(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.AdvanceQuarter(r.Context())
	if err != nil {
		s.log.Error("quarter advance failed", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeResolution reports an already-resolved proposal as a conflict while
// still returning its current state.
func writeResolution(w http.ResponseWriter, out game.ChangeResult) {
	if out.Ignored {
		writeJSON(w, http.StatusConflict, out)
		return
	}
	if out.Outcome == governance.OutcomeWithdrawing {
		writeJSON(w, http.StatusAccepted, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateRequest), errors.Is(err, governance.ErrStaleProposal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, business.ErrInsufficientFunds),
		errors.Is(err, business.ErrInvalidShare),
		errors.Is(err, business.ErrShareOverflow),
		errors.Is(err, business.ErrNotMainBranch),
		errors.Is(err, business.ErrBusinessFrozen),
		errors.Is(err, business.ErrNotFrozen),
		errors.Is(err, business.ErrUnknownType),
		errors.Is(err, governance.ErrUnknownChange),
		errors.Is(err, governance.ErrInvalidChange),
		errors.Is(err, game.ErrInvalidActor),
		errors.Is(err, game.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, business.ErrInsufficientRights):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, governance.ErrBusinessNotFound),
		errors.Is(err, governance.ErrProposalNotFound),
		errors.Is(err, business.ErrEmployeeNotFound),
		errors.Is(err, economy.ErrCountryNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrServiceClosed), errors.Is(err, peer.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func decodeOptionalJSON(r *http.Request, out any) error {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
