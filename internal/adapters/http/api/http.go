// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/cors"

	"github.com/okian/arena/internal/adapters/broadcast"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/internal/domain/vote"
	"github.com/okian/arena/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// RecordVote records one vote.
	RecordVote(ctx context.Context, b model.Ballot) (model.VoteRecord, error)

	// Read operations expose contest results.
	Contest(ctx context.Context, id string) (types.ContestView, error)
	ListContests(ctx context.Context) ([]types.ContestView, error)

	// Subscribe follows live results of one contest.
	Subscribe(contestID string) (*broadcast.Subscription, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	votesHandler    *VotesHandler
	contestsHandler *ContestsHandler
	eventsHandler   *EventsHandler

	rateLimit      func(http.Handler) http.Handler
	allowedOrigins []string
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) (*Server, error) {
	cfg := serverConfig{
		heartbeat: defaultHeartbeat,
		logger:    logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	origins := NewOriginResolver(cfg.trustProxy)
	limit, err := newRateLimiter(cfg.rateLimitPerMin, cfg.rateLimitBurst, origins)
	if err != nil {
		return nil, err
	}

	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider, cfg.logger),
		votesHandler:    NewVotesHandler(deps, origins, cfg.logger),
		contestsHandler: NewContestsHandler(deps, cfg.logger),
		eventsHandler:   NewEventsHandler(deps, cfg.heartbeat, cfg.logger),
		rateLimit:       limit,
		allowedOrigins:  cfg.allowedOrigins,
	}, nil
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return s.rateLimit(h).ServeHTTP
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /vote", MetricsMiddleware(limited(s.votesHandler.HandleVote), "vote"))
	mux.HandleFunc("POST /api/vote", MetricsMiddleware(limited(s.votesHandler.HandleChallengeVote), "challenge_vote"))
	mux.HandleFunc("POST /api/vote-battle", MetricsMiddleware(limited(s.votesHandler.HandleBattleVote), "battle_vote"))

	mux.HandleFunc("GET /contests", MetricsMiddleware(s.contestsHandler.HandleList, "contests"))
	mux.HandleFunc("GET /contests/{id}", MetricsMiddleware(s.contestsHandler.HandleGet, "contest"))
	mux.HandleFunc("GET /contests/{id}/events", MetricsMiddleware(s.eventsHandler.HandleStream, "contest_events"))
}

// Handler wraps mux with CORS for browser voting pages.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	allowed := s.allowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = publicMessage(err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// publicMessage drops the operation prefix added by WrapKind and NewKind.
func publicMessage(err error) string {
	var oe *opError
	if errors.As(err, &oe) {
		if oe.err != nil {
			return oe.err.Error()
		}
		return oe.kind.Error()
	}
	return err.Error()
}

// writeDomainError maps a vote domain error onto its HTTP status. Storage
// details are logged, never returned.
func writeDomainError(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	code := vote.Reason(err)
	switch {
	case errors.Is(err, vote.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, code, WrapKind(op, vote.ErrInvalidRequest, err))
	case errors.Is(err, vote.ErrDuplicateVote):
		writeError(w, http.StatusForbidden, code, WrapKind(op, vote.ErrDuplicateVote, err))
	case errors.Is(err, vote.ErrNotFound):
		writeError(w, http.StatusNotFound, code, WrapKind(op, vote.ErrNotFound, err))
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "store_unavailable",
			errors.New("the vote could not be processed, please try again"))
	}
}
