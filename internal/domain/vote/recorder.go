// Package vote records public votes on contests: one vote per voter origin
// per contest, an atomic counter increment and an immutable audit record.
package vote

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// MaxIDLength bounds contest and choice identifiers.
const MaxIDLength = model.MaxIDLength

const defaultTimeout = 5 * time.Second

// Recorder implements the vote flow on top of a Store.
type Recorder struct {
	store     Store
	deduper   dedupe.Deduper
	publisher Publisher
	salt      []byte
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	log       logger.Logger
}

// NewRecorder builds a Recorder. The store is required.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		timeout: defaultTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     logger.Get().Named("vote"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordVote records one vote.
//
// Checks run in a fixed order: the origin must be present, then contest and
// choice must be well formed, then the origin must not have voted in the
// contest yet. Only then is the store asked to increment the counter and
// write the vote record in one transaction.
func (r *Recorder) RecordVote(ctx context.Context, b model.Ballot) (model.VoteRecord, error) {
	start := time.Now()
	rec, kind, err := r.record(ctx, b)
	metrics.RecordVoteLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordVoteRejected(Reason(err))
		return model.VoteRecord{}, err
	}
	metrics.RecordVoteAccepted(string(kind))
	return rec, nil
}

func (r *Recorder) record(ctx context.Context, b model.Ballot) (model.VoteRecord, model.Kind, error) {
	origin := strings.TrimSpace(b.Origin)
	if origin == "" {
		return model.VoteRecord{}, "", fmt.Errorf("%w: could not determine voter origin", ErrInvalidRequest)
	}
	if err := validateID("contestId", b.ContestID); err != nil {
		return model.VoteRecord{}, "", err
	}
	if err := validateID("choice", b.Choice); err != nil {
		return model.VoteRecord{}, "", err
	}

	token := r.originToken(origin)
	key := dedupe.Key(b.ContestID, token)
	owned := false
	if r.deduper != nil {
		switch r.deduper.Claim(ctx, key) {
		case dedupe.Confirmed:
			return model.VoteRecord{}, "", duplicate(b.ContestID)
		case dedupe.Claimed:
			owned = true
		case dedupe.InFlight:
			// another request from this origin is still running; the store decides
		}
	}
	release := func() {
		if owned {
			r.deduper.Unrecord(ctx, key)
		}
	}
	confirm := func() {
		if r.deduper != nil {
			r.deduper.Confirm(ctx, key)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	exists, err := r.store.VoteExists(sctx, b.ContestID, token)
	if err != nil {
		release()
		r.log.Warn(ctx, "vote existence check failed", logger.String("contest_id", b.ContestID), logger.Error(err))
		return model.VoteRecord{}, "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if exists {
		confirm()
		return model.VoteRecord{}, "", duplicate(b.ContestID)
	}

	rec := model.VoteRecord{
		ID:        r.newID(),
		ContestID: b.ContestID,
		Choice:    b.Choice,
		Origin:    token,
		VotedAt:   r.now().UTC(),
	}
	contest, err := r.store.IncrementCounterTransactionally(sctx, rec)
	if err != nil {
		if errors.Is(err, model.ErrVoteExists) {
			// lost the race to a concurrent vote from the same origin
			confirm()
			return model.VoteRecord{}, "", duplicate(b.ContestID)
		}
		release()
		return model.VoteRecord{}, "", r.classify(ctx, b, err)
	}
	confirm()

	if r.publisher != nil {
		u := model.ContestUpdate{ContestID: rec.ContestID, Choice: rec.Choice, At: rec.VotedAt}
		if !r.publisher.Enqueue(ctx, u) {
			r.log.Warn(ctx, "contest update dropped", logger.String("contest_id", rec.ContestID))
		}
	}

	r.log.Debug(ctx, "vote recorded",
		logger.String("contest_id", rec.ContestID),
		logger.String("choice", rec.Choice),
		logger.Int64("total", contest.Total()),
	)
	return rec, contest.Kind, nil
}

func (r *Recorder) classify(ctx context.Context, b model.Ballot, err error) error {
	switch {
	case errors.Is(err, model.ErrContestNotFound):
		return fmt.Errorf("%w: contest %q does not exist", ErrNotFound, b.ContestID)
	case errors.Is(err, model.ErrUnknownChoice):
		return fmt.Errorf("%w: %q is not a choice of contest %q", ErrInvalidRequest, b.Choice, b.ContestID)
	default:
		r.log.Error(ctx, "vote transaction failed", logger.String("contest_id", b.ContestID), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// originToken is what gets stored for a voter origin.
func (r *Recorder) originToken(origin string) string {
	if len(r.salt) == 0 {
		return origin
	}
	mac := hmac.New(sha256.New, r.salt)
	mac.Write([]byte(origin))
	return hex.EncodeToString(mac.Sum(nil))
}

func duplicate(contestID string) error {
	return fmt.Errorf("%w: this origin has already voted in contest %q", ErrDuplicateVote, contestID)
}

func validateID(field, v string) error {
	if err := model.CheckID(v); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidRequest, field, err)
	}
	return nil
}
