package services

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/models"
)

// DefaultSessionMaxAge applies when no max age is configured.
const DefaultSessionMaxAge = 60 * time.Minute

const sessionTokenBytes = 32

// sessionRecord is the on-disk value. Files written by earlier releases
// store the owner key under "passwordHash".
type sessionRecord struct {
	CreatedAt    int64  `json:"createdAt"`
	OwnerKey     string `json:"ownerKey,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// SessionRegistry maps bearer tokens to owner keys. The whole registry is
// persisted after every create, destroy and expiry.
type SessionRegistry struct {
	mu       sync.Mutex
	path     string
	maxAge   time.Duration
	sessions map[string]models.Session
	now      func() time.Time
	log      *slog.Logger
}

func NewSessionRegistry(layout database.Layout, maxAge time.Duration, log *slog.Logger) (*SessionRegistry, error) {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	r := &SessionRegistry{
		path:     layout.SessionsPath(),
		maxAge:   maxAge,
		sessions: make(map[string]models.Session),
		now:      time.Now,
		log:      log.With("component", "sessions"),
	}

	data, found, err := database.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	if found && len(data) > 0 {
		if err := r.decode(data); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
	}
	return r, nil
}

// decode reads a list of [token, record] pairs.
func (r *SessionRegistry) decode(data []byte) error {
	var entries [][]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		if len(e) != 2 {
			continue
		}
		var token string
		var rec sessionRecord
		if err := json.Unmarshal(e[0], &token); err != nil || token == "" {
			continue
		}
		if err := json.Unmarshal(e[1], &rec); err != nil {
			continue
		}
		owner := rec.OwnerKey
		if owner == "" {
			owner = rec.PasswordHash
		}
		if owner == "" {
			continue
		}
		r.sessions[token] = models.Session{Token: token, OwnerKey: owner, CreatedAt: rec.CreatedAt}
	}
	return nil
}

func (r *SessionRegistry) MaxAge() time.Duration {
	return r.maxAge
}

// Create issues a new random token for ownerKey.
func (r *SessionRegistry) Create(ownerKey string) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = models.Session{
		Token:     token,
		OwnerKey:  ownerKey,
		CreatedAt: r.now().UnixMilli(),
	}
	if err := r.saveLocked(); err != nil {
		delete(r.sessions, token)
		return "", err
	}
	return token, nil
}

// Resolve returns the session for token. An unknown token is AuthMissing;
// a token older than the max age is deleted and reported as AuthExpired.
func (r *SessionRegistry) Resolve(token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, &AuthError{Reason: AuthMissing}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[token]
	if !ok {
		return models.Session{}, &AuthError{Reason: AuthMissing}
	}
	if sess.Age(r.now()) > r.maxAge {
		delete(r.sessions, token)
		if err := r.saveLocked(); err != nil {
			r.log.Error("persist expired session removal failed", "error", err)
		}
		return models.Session{}, &AuthError{Reason: AuthExpired}
	}
	return sess, nil
}

// Destroy removes token. Unknown tokens are not an error.
func (r *SessionRegistry) Destroy(token string) error {
	if token == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[token]
	if !ok {
		return nil
	}
	delete(r.sessions, token)
	if err := r.saveLocked(); err != nil {
		r.sessions[token] = sess
		return err
	}
	return nil
}

// Sweep drops expired sessions and sessions whose owner fails valid, then
// persists once if anything changed.
func (r *SessionRegistry) Sweep(valid func(ownerKey string) bool) (expired, orphaned int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := make(map[string]models.Session)
	for token, sess := range r.sessions {
		switch {
		case sess.Age(now) > r.maxAge:
			expired++
		case !valid(sess.OwnerKey):
			orphaned++
		default:
			continue
		}
		removed[token] = sess
		delete(r.sessions, token)
	}
	if len(removed) == 0 {
		return 0, 0, nil
	}
	if err := r.saveLocked(); err != nil {
		for token, sess := range removed {
			r.sessions[token] = sess
		}
		return 0, 0, err
	}
	return expired, orphaned, nil
}

// Len returns the number of stored sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// caller holds r.mu
func (r *SessionRegistry) saveLocked() error {
	sessions := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt < sessions[j].CreatedAt
		}
		return sessions[i].Token < sessions[j].Token
	})

	entries := make([][2]any, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, [2]any{s.Token, sessionRecord{CreatedAt: s.CreatedAt, OwnerKey: s.OwnerKey}})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := database.WriteFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return nil
}

func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
