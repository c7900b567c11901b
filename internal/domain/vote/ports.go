package vote

import (
	"context"

	"github.com/okian/arena/internal/domain/model"
)

// Store is the storage the recorder needs. Implementations return the
// model package sentinels (ErrContestNotFound, ErrUnknownChoice,
// ErrVoteExists); anything else is treated as the store being unavailable.
type Store interface {
	// GetContest returns the current state of a contest.
	GetContest(ctx context.Context, id string) (model.Contest, error)

	// VoteExists reports whether origin already has a vote record for the
	// contest.
	VoteExists(ctx context.Context, contestID, origin string) (bool, error)

	// IncrementCounterTransactionally re-reads the contest, adds one to the
	// chosen counter and inserts rec if no record exists for its
	// (contest, origin), all in a single transaction. On any error nothing
	// is written. It returns the contest state after the increment.
	IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (model.Contest, error)
}

// Publisher receives a notification after every accepted vote.
type Publisher interface {
	Enqueue(ctx context.Context, u model.ContestUpdate) bool
}
