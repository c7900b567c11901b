// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"runtime"
)

// Store backends understood by the service.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects where contests and votes live: memory, postgres or redis.
	StoreBackend string `koanf:"store_backend"`

	// StoreTimeoutMS bounds each store call made while recording a vote.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	DatabaseURL          string `koanf:"database_url"`
	DatabaseMaxOpenConns int    `koanf:"database_max_open_conns"`

	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// SeedFile optionally points at a YAML file of contests created on start.
	SeedFile string `koanf:"seed_file"`

	// TrustProxyHeaders makes the origin resolver honour X-Forwarded-For,
	// CF-Connecting-IP and X-Real-IP. Enable only behind a trusted proxy.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// OriginSalt, when set, stores voter origins as keyed hashes.
	OriginSalt string `koanf:"origin_salt"`

	// DedupeSize sets the size of the in-process duplicate vote cache.
	DedupeSize int `koanf:"dedupe_size"`

	// UpdateQueueSize bounds the live update queue.
	UpdateQueueSize int `koanf:"update_queue_size"`

	// WorkerCount sets the number of live update fan-out workers.
	WorkerCount int `koanf:"worker_count"`

	// RateLimitPerMin and RateLimitBurst throttle vote requests per origin.
	// A zero rate disables limiting.
	RateLimitPerMin int `koanf:"rate_limit_per_min"`
	RateLimitBurst  int `koanf:"rate_limit_burst"`

	// AllowedOrigins lists CORS origins. Empty allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StoreBackend:         BackendMemory,
		StoreTimeoutMS:       5000,
		DatabaseMaxOpenConns: 20,
		RedisAddr:            "localhost:6379",
		RedisKeyPrefix:       "arena:",
		DedupeSize:           50_000,
		UpdateQueueSize:      10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		RateLimitPerMin:      60,
		RateLimitBurst:       10,
	}
}
