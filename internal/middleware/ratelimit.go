package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/tasklist-backend/pkg/clientip"
	"github.com/redis/go-redis/v9"
)

const (
	// LoginWindow is the fixed window for the shared login limiter
	LoginWindow = 120 * time.Second
	// LoginMaxAttempts is the number of login attempts allowed per window
	LoginMaxAttempts = 25
	// LoginKeyPrefix is the Redis key prefix for login counters
	LoginKeyPrefix = "tasklist:login:"

	redisTimeout = 500 * time.Millisecond
)

// RedisLoginRateLimit counts login attempts per IP in Redis so the limit
// holds across restarts and replicas. If Redis is unreachable the request
// is allowed (fail open).
func RedisLoginRateLimit(client *redis.Client, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil || !LoginPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), redisTimeout)
			defer cancel()

			key := LoginKeyPrefix + clientip.RealClientIP(r)
			count, err := client.Incr(ctx, key).Result()
			if err != nil {
				log.Warn("login limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := client.Expire(ctx, key, LoginWindow).Err(); err != nil {
					log.Warn("login limiter expire failed", "error", err)
				}
			}

			if count > LoginMaxAttempts {
				w.Header().Set("Retry-After", strconv.Itoa(int(LoginWindow.Seconds())))
				tooManyRequests(w, "Too many login attempts. Please try again later.")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(LoginMaxAttempts))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(LoginMaxAttempts-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}
