package redisstore

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key, so several deployments can share a
// Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxTxRetries bounds how often a vote transaction is retried after an
// optimistic lock failure.
func WithMaxTxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the contest creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
