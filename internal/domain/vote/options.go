package vote

import (
	"time"

	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/pkg/logger"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithDeduper enables the in-process repeat guard.
func WithDeduper(d dedupe.Deduper) Option {
	return func(r *Recorder) {
		r.deduper = d
	}
}

// WithPublisher sets where update notifications go after accepted votes.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

// WithOriginSalt stores voter origins as keyed hashes instead of raw
// addresses. Changing the salt on a live store resets every voter's history.
func WithOriginSalt(salt string) Option {
	return func(r *Recorder) {
		if salt != "" {
			r.salt = []byte(salt)
		}
	}
}

// WithTimeout bounds every store call made for a single vote.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the source of vote timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides how vote record ids are minted.
func WithIDGenerator(next func() string) Option {
	return func(r *Recorder) {
		if next != nil {
			r.newID = next
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}
