package api

import (
	"fmt"
	"net/http"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/okian/arena/pkg/metrics"
)

const rateLimitMaxKeys = 65536

// newRateLimiter throttles requests per voter origin and path with a GCRA
// bucket. A non-positive perMin disables limiting.
func newRateLimiter(perMin, burst int, origins OriginResolver) (func(http.Handler) http.Handler, error) {
	if perMin <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	store, err := memstore.New(rateLimitMaxKeys)
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	limiter, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate:  throttled.PerMin(perMin),
		MaxBurst: burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	return func(next http.Handler) http.Handler {
		hrl := throttled.HTTPRateLimiter{
			RateLimiter: limiter,
			VaryBy: &throttled.VaryBy{
				Custom: func(r *http.Request) string {
					return origins.Resolve(r) + " " + r.URL.Path
				},
			},
			DeniedHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				metrics.RecordRateLimited(r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "rate_limited",
					NewKind("api.rate_limit", ErrRateLimited))
			}),
		}
		return hrl.RateLimit(next)
	}, nil
}
