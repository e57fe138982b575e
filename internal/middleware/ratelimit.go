package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/fund_layer/internal/httputil"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// limiterCap bounds the per-caller limiter map; beyond it the map is reset
// rather than evicted piecemeal.
const limiterCap = 10000

// RateLimiter throttles requests per caller, keyed by authenticated user or
// remote address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per caller.
func NewRateLimiter(requestsPerSecond, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > limiterCap {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = lim
	}
	return lim
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := UserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.limiter(key).Allow() {
			rl.log.WithFields(map[string]interface{}{
				"key": key, "path": r.URL.Path,
			}).Warn("rate limit exceeded")
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.APIResponse{
				Success: false, Error: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
