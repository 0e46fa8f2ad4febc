package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/models"
	"github.com/AnshRaj112/tasklist-backend/pkg/utils"
)

// DeriveOwnerKey maps a credential to its storage shard key. It is a fast,
// unsalted hash used for addressing only; password verification goes
// through the salted hash in the credential record.
func DeriveOwnerKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// OAuthCredential is the credential string for an external identity.
func OAuthCredential(provider, providerUserID string) string {
	return provider + ":" + providerUserID
}

// CollectionInitializer creates an empty task collection for a new owner.
type CollectionInitializer interface {
	EnsureCollection(ownerKey string) error
}

// OAuthProfile is the subset of a provider's user info that is stored.
type OAuthProfile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// IdentityService owns the credential store. The whole file is rewritten on
// every change; mu serialises those rewrites.
type IdentityService struct {
	mu      sync.Mutex
	path    string
	records map[string]models.Credential
	tasks   CollectionInitializer
	now     func() time.Time
	log     *slog.Logger

	hash   func(string) (string, error)
	verify func(password, hash string) (bool, error)
}

func NewIdentityService(layout database.Layout, tasks CollectionInitializer, log *slog.Logger) (*IdentityService, error) {
	s := &IdentityService{
		path:    layout.CredentialsPath(),
		records: make(map[string]models.Credential),
		tasks:   tasks,
		now:     time.Now,
		log:     log.With("component", "identity"),
		hash:    utils.HashPassword,
		verify:  utils.VerifyPassword,
	}

	data, found, err := database.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if found && len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	return s, nil
}

func (s *IdentityService) lookup(ownerKey string) (models.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ownerKey]
	return rec, ok
}

// VerifyOrRegisterPassword logs in with a password, registering it when the
// derived owner key has never been seen.
func (s *IdentityService) VerifyOrRegisterPassword(password string) (ownerKey string, isNew bool, err error) {
	if password == "" {
		return "", false, newValidationError("password", "password required")
	}
	ownerKey = DeriveOwnerKey(password)

	if rec, ok := s.lookup(ownerKey); ok {
		return ownerKey, false, s.checkPassword(rec, password)
	}

	// Hash outside the lock; argon2id is deliberately slow.
	hashed, err := s.hash(password)
	if err != nil {
		return "", false, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	if rec, ok := s.records[ownerKey]; ok {
		// Registered concurrently by another request.
		s.mu.Unlock()
		return ownerKey, false, s.checkPassword(rec, password)
	}
	s.records[ownerKey] = models.Credential{
		CreatedAt:    s.now().UnixMilli(),
		PasswordHash: hashed,
	}
	if err := s.saveLocked(); err != nil {
		delete(s.records, ownerKey)
		s.mu.Unlock()
		return "", false, err
	}
	s.mu.Unlock()

	if err := s.tasks.EnsureCollection(ownerKey); err != nil {
		return "", false, err
	}
	s.log.Info("registered new owner", "owner", shortKey(ownerKey))
	return ownerKey, true, nil
}

func (s *IdentityService) checkPassword(rec models.Credential, password string) error {
	var ok bool
	var err error
	switch {
	case rec.PasswordHash != "":
		ok, err = s.verify(password, rec.PasswordHash)
	case rec.BcryptHash != "":
		ok, err = utils.VerifyBcrypt(password, rec.BcryptHash)
	default:
		// OAuth record; a password can never log into it.
		return &AuthError{Reason: AuthInvalidCredential}
	}
	if err != nil {
		s.log.Warn("stored password hash unreadable", "error", err)
		return &AuthError{Reason: AuthInvalidCredential}
	}
	if !ok {
		return &AuthError{Reason: AuthInvalidCredential}
	}
	return nil
}

// RegisterOAuthOwner upserts profile metadata for an OAuth owner and
// creates its task collection when the owner is new.
func (s *IdentityService) RegisterOAuthOwner(ownerKey, provider string, profile OAuthProfile) (isNew bool, err error) {
	s.mu.Lock()
	rec, exists := s.records[ownerKey]
	updated := rec
	if !exists {
		updated = models.Credential{CreatedAt: s.now().UnixMilli()}
	}
	updated.OAuthProvider = provider
	if profile.Email != "" {
		updated.Email = profile.Email
	}
	if profile.Name != "" {
		updated.Name = profile.Name
	}
	if profile.Picture != "" {
		updated.Picture = profile.Picture
	}

	if !exists || updated != rec {
		s.records[ownerKey] = updated
		if err := s.saveLocked(); err != nil {
			if exists {
				s.records[ownerKey] = rec
			} else {
				delete(s.records, ownerKey)
			}
			s.mu.Unlock()
			return false, err
		}
	}
	s.mu.Unlock()

	if !exists {
		if err := s.tasks.EnsureCollection(ownerKey); err != nil {
			return false, err
		}
		s.log.Info("registered new oauth owner", "owner", shortKey(ownerKey), "provider", provider)
	}
	return !exists, nil
}

// Exists reports whether a credential record exists for the owner key.
func (s *IdentityService) Exists(ownerKey string) bool {
	_, ok := s.lookup(ownerKey)
	return ok
}

// OwnerKeys returns every registered owner key, sorted.
func (s *IdentityService) OwnerKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RemoveOwners deletes the given credential records and persists once.
func (s *IdentityService) RemoveOwners(keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]models.Credential)
	for _, k := range keys {
		if rec, ok := s.records[k]; ok {
			removed[k] = rec
			delete(s.records, k)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.saveLocked(); err != nil {
		for k, rec := range removed {
			s.records[k] = rec
		}
		return 0, err
	}
	return len(removed), nil
}

// caller holds s.mu
func (s *IdentityService) saveLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	if err := database.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
