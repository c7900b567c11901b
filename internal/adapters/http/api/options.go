package api

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

type serverConfig struct {
	trustProxy      bool
	rateLimitPerMin int
	rateLimitBurst  int
	allowedOrigins  []string
	heartbeat       time.Duration
	logger          logger.Logger
}

// Option configures the Server.
type Option func(*serverConfig)

// WithTrustProxyHeaders makes origin resolution honour proxy headers.
func WithTrustProxyHeaders(trust bool) Option {
	return func(c *serverConfig) {
		c.trustProxy = trust
	}
}

// WithRateLimit throttles vote routes per origin. Zero disables it.
func WithRateLimit(perMin, burst int) Option {
	return func(c *serverConfig) {
		if perMin >= 0 && burst >= 0 {
			c.rateLimitPerMin = perMin
			c.rateLimitBurst = burst
		}
	}
}

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *serverConfig) {
		c.allowedOrigins = append(c.allowedOrigins, origins...)
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
