package postgres

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithMigrations controls whether Open applies schema migrations.
func WithMigrations(enabled bool) Option {
	return func(s *Store) {
		s.migrate = enabled
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
