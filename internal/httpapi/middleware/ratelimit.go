package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter applies fixed-window limits backed by Redis so the limit
// holds across replicas.
type RateLimiter struct {
	redis     *redis.Client
	namespace string
}

// NewRateLimiter creates a limiter. A nil client disables limiting.
func NewRateLimiter(redisClient *redis.Client, namespace string) *RateLimiter {
	return &RateLimiter{redis: redisClient, namespace: namespace}
}

// Limit returns middleware allowing max requests per window per key.
func (l *RateLimiter) Limit(name string, max int64, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.redis == nil {
				next.ServeHTTP(w, r)
				return
			}

			bucket := time.Now().Unix() / int64(window.Seconds())
			key := l.namespace + ":rl:" + name + ":" + keyFn(r) + ":" + strconv.FormatInt(bucket, 10)

			count, err := l.redis.Incr(r.Context(), key).Result()
			if err != nil {
				// Redis being down must not take the endpoint with it.
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				l.redis.Expire(r.Context(), key, window)
			}
			if count > max {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeRateLimitError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter) {
	writeError(w, http.StatusTooManyRequests, "slow_down", "rate limit exceeded")
}
