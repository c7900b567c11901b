package repository

import (
	"time"

	"github.com/okian/arena/pkg/metrics"
)

// Observe records latency and, on failure, an error for a store operation.
// Backends call it with defer:
//
//	defer func(start time.Time) { repository.Observe("redis", "get_contest", start, err) }(time.Now())
func Observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !IsDomainError(err) {
		metrics.RecordStoreError(backend, op)
	}
}
