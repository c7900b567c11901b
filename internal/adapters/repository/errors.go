package repository

import (
	"errors"

	"github.com/okian/arena/internal/domain/model"
)

// Sentinel kinds for store errors not covered by the model package.
var (
	ErrStoreClosed = errors.New("store closed")
)

// IsDomainError reports whether err is an expected outcome (missing contest,
// repeated vote and so on) rather than a storage failure.
func IsDomainError(err error) bool {
	return errors.Is(err, model.ErrContestNotFound) ||
		errors.Is(err, model.ErrContestExists) ||
		errors.Is(err, model.ErrUnknownChoice) ||
		errors.Is(err, model.ErrVoteExists) ||
		errors.Is(err, model.ErrInvalidContest)
}
