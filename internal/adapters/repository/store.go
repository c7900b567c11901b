// Package repository defines the contest store interface shared by every
// backend and provides the in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/vote"
)

// Counts summarises a store's contents.
type Counts struct {
	Contests int
	Votes    int64
}

// Store provides read/write access to contests and vote records.
type Store interface {
	vote.Store

	// CreateContest stores a new contest with zeroed counters.
	// Returns model.ErrContestExists if the id is taken.
	CreateContest(ctx context.Context, c model.Contest) error

	// ListContests returns all contests ordered by id.
	ListContests(ctx context.Context) ([]model.Contest, error)

	// ListVotes returns the vote records of a contest in insertion order.
	ListVotes(ctx context.Context, contestID string) ([]model.VoteRecord, error)

	// Count returns the number of contests and vote records.
	Count(ctx context.Context) (Counts, error)

	// Name identifies the backend in logs and metrics.
	Name() string

	Close() error
}
