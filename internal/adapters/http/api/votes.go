package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/vote"
	"github.com/okian/arena/pkg/logger"
)

const maxVoteBodyBytes = 4 << 10

// VotesHandler handles the vote endpoints.
type VotesHandler struct {
	deps    Dependencies
	origins OriginResolver
	logger  logger.Logger
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps Dependencies, origins OriginResolver, log logger.Logger) *VotesHandler {
	return &VotesHandler{deps: deps, origins: origins, logger: log}
}

// voteRequest is the generic body of POST /vote.
type voteRequest struct {
	ContestID string `json:"contestId"`
	Choice    string `json:"choice"`
}

// challengeVoteRequest is the body of POST /api/vote.
type challengeVoteRequest struct {
	SubmissionID string `json:"submissionId"`
	ChallengeID  string `json:"challengeId"`
}

// battleVoteRequest is the body of POST /api/vote-battle.
type battleVoteRequest struct {
	BattleID    string `json:"battleId"`
	Participant string `json:"participant"`
}

type voteResponse struct {
	Message   string `json:"message"`
	VoteID    string `json:"voteId"`
	ContestID string `json:"contestId"`
	Choice    string `json:"choice"`
}

// HandleVote handles POST /vote.
func (h *VotesHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, "api.vote", func(r *http.Request) (model.Ballot, error) {
		var req voteRequest
		if err := decode(r, &req); err != nil {
			return model.Ballot{}, err
		}
		return model.Ballot{ContestID: req.ContestID, Choice: req.Choice}, nil
	})
}

// HandleChallengeVote handles POST /api/vote.
func (h *VotesHandler) HandleChallengeVote(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, "api.challenge_vote", func(r *http.Request) (model.Ballot, error) {
		var req challengeVoteRequest
		if err := decode(r, &req); err != nil {
			return model.Ballot{}, err
		}
		return model.Ballot{ContestID: req.ChallengeID, Choice: req.SubmissionID}, nil
	})
}

// HandleBattleVote handles POST /api/vote-battle. The participant must name
// a side before anything else is looked up.
func (h *VotesHandler) HandleBattleVote(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, "api.battle_vote", func(r *http.Request) (model.Ballot, error) {
		var req battleVoteRequest
		if err := decode(r, &req); err != nil {
			return model.Ballot{}, err
		}
		if strings.TrimSpace(req.BattleID) != "" && req.Participant != model.SideA && req.Participant != model.SideB {
			return model.Ballot{}, fmt.Errorf("participant must be %q or %q", model.SideA, model.SideB)
		}
		return model.Ballot{ContestID: req.BattleID, Choice: req.Participant}, nil
	})
}

func (h *VotesHandler) record(w http.ResponseWriter, r *http.Request, op string, parse func(*http.Request) (model.Ballot, error)) {
	ctx := r.Context()

	origin := h.origins.Resolve(r)
	if origin == "" {
		writeError(w, http.StatusBadRequest, "invalid_request",
			WrapKind(op, vote.ErrInvalidRequest, errors.New("could not determine voter origin")))
		return
	}

	b, err := parse(r)
	if err != nil {
		kind := vote.ErrInvalidRequest
		if errors.Is(err, ErrBadRequest) {
			kind = ErrBadRequest
		}
		writeError(w, http.StatusBadRequest, "invalid_request", WrapKind(op, kind, err))
		return
	}
	b.Origin = origin

	rec, err := h.deps.RecordVote(ctx, b)
	if err != nil {
		writeDomainError(ctx, h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Message:   "Vote recorded successfully",
		VoteID:    rec.ID,
		ContestID: rec.ContestID,
		Choice:    rec.Choice,
	})
}

// decode reads a JSON body. Failures wrap ErrBadRequest.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("%w: request body is required", ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxVoteBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %w", ErrBadRequest, err)
	}
	return nil
}
