package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/AnshRaj112/tasklist-backend/internal/models"
)

const (
	// AuthCookieName carries the session token for browser clients.
	AuthCookieName = "authToken"
	// LegacyOAuthCookieName was set by older OAuth callbacks.
	LegacyOAuthCookieName = "oauth_token"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionResolver turns a bearer token into a session.
type SessionResolver interface {
	Resolve(token string) (models.Session, error)
}

// ExtractBearerToken returns the token from an "Authorization: Bearer" value.
func ExtractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SessionToken looks for a token in the Authorization header, then the
// authToken cookie, then the older oauth_token cookie.
func SessionToken(r *http.Request) string {
	if token := ExtractBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, name := range []string{AuthCookieName, LegacyOAuthCookieName} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// RequireSession rejects requests without a live session and stores the
// session in the request context.
func RequireSession(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Resolve(SessionToken(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"kind":    "auth",
					"message": err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, sess)))
		})
	}
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(models.Session)
	return sess, ok
}
