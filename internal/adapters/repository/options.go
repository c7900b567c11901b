package repository

import (
	"time"

	"github.com/okian/arena/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithContests preloads contests. Invalid or duplicate entries are skipped.
func WithContests(cs ...model.Contest) Option {
	return func(s *MemoryStore) {
		s.preload = append(s.preload, cs...)
	}
}
