package middleware

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/tasklist-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

// Push-channel upgrades: 1 every 2s per IP, burst 10. Enough for a handful
// of tabs reconnecting at once.
const (
	wsUpgradeEvery = 2 * time.Second
	wsUpgradeBurst = 10
)

// WebSocketRateLimit limits how often one IP may open push connections.
func WebSocketRateLimit() func(http.Handler) http.Handler {
	l := NewIPLimiter(rate.Every(wsUpgradeEvery), wsUpgradeBurst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientip.RealClientIP(r)) {
				w.Header().Set("Retry-After", "2")
				tooManyRequests(w, "Too many connection attempts. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
