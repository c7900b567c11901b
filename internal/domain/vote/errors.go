package vote

import "errors"

// Outcome kinds of RecordVote. Every error it returns wraps exactly one of
// these; callers map them with errors.Is.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrDuplicateVote    = errors.New("duplicate vote")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Reason returns the stable code for an error kind, used in API responses
// and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate_vote"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "store_unavailable"
	}
}
