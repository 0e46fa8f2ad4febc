package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"

	oauthStateTTL  = 10 * time.Minute
	oauthTimeout   = 10 * time.Second
	maxProfileBody = 1 << 20
)

var (
	ErrUnknownProvider  = errors.New("unknown oauth provider")
	ErrProviderDisabled = errors.New("oauth provider not configured")
	ErrInvalidState     = errors.New("invalid or expired oauth state")
)

// OAuthClientConfig holds one provider's client credentials.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClientConfig) enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type OAuthConfig struct {
	RedirectURL     string
	Google          OAuthClientConfig
	Microsoft       OAuthClientConfig
	MicrosoftTenant string
}

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	parse       func([]byte) (OAuthProfile, error)
}

type oauthState struct {
	provider string
	expires  time.Time
}

// OAuthService builds authorization URLs and completes the code exchange.
// States are single use and expire after ten minutes.
type OAuthService struct {
	providers map[string]*oauthProvider
	client    *http.Client
	now       func() time.Time

	mu     sync.Mutex
	states map[string]oauthState
}

func NewOAuthService(cfg OAuthConfig) *OAuthService {
	s := &OAuthService{
		providers: make(map[string]*oauthProvider),
		client:    &http.Client{Timeout: oauthTimeout},
		now:       time.Now,
		states:    make(map[string]oauthState),
	}

	if cfg.Google.enabled() {
		s.providers[ProviderGoogle] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  cfg.RedirectURL,
				Scopes: []string{
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
			},
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			parse:       parseGoogleProfile,
		}
	}
	if cfg.Microsoft.enabled() {
		tenant := cfg.MicrosoftTenant
		if tenant == "" {
			tenant = "common"
		}
		s.providers[ProviderMicrosoft] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.Microsoft.ClientID,
				ClientSecret: cfg.Microsoft.ClientSecret,
				Endpoint:     endpoints.AzureAD(tenant),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{"openid", "profile", "email", "User.Read"},
			},
			userInfoURL: "https://graph.microsoft.com/v1.0/me",
			parse:       parseMicrosoftProfile,
		}
	}
	return s
}

func knownProvider(name string) bool {
	return name == ProviderGoogle || name == ProviderMicrosoft
}

// Enabled reports whether provider has client credentials configured.
func (s *OAuthService) Enabled(provider string) bool {
	_, ok := s.providers[provider]
	return ok
}

// AuthURL returns the provider's consent URL with a fresh state.
func (s *OAuthService) AuthURL(provider string) (string, error) {
	if !knownProvider(provider) {
		return "", ErrUnknownProvider
	}
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrProviderDisabled
	}

	state := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	for k, st := range s.states {
		if now.After(st.expires) {
			delete(s.states, k)
		}
	}
	s.states[state] = oauthState{provider: provider, expires: now.Add(oauthStateTTL)}
	s.mu.Unlock()

	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// takeState consumes state and returns its provider.
func (s *OAuthService) takeState(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return "", ErrInvalidState
	}
	delete(s.states, state)
	if s.now().After(st.expires) {
		return "", ErrInvalidState
	}
	return st.provider, nil
}

// Complete exchanges code for a token and fetches the user's profile.
func (s *OAuthService) Complete(ctx context.Context, state, code string) (string, OAuthProfile, error) {
	provider, err := s.takeState(state)
	if err != nil {
		return "", OAuthProfile{}, err
	}
	p, ok := s.providers[provider]
	if !ok {
		return "", OAuthProfile{}, ErrProviderDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, oauthTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", OAuthProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", OAuthProfile{}, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return "", OAuthProfile{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", OAuthProfile{}, fmt.Errorf("fetch user info: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
	if err != nil {
		return "", OAuthProfile{}, fmt.Errorf("read user info: %w", err)
	}
	profile, err := p.parse(body)
	if err != nil {
		return "", OAuthProfile{}, err
	}
	if profile.ID == "" {
		return "", OAuthProfile{}, errors.New("user info has no id")
	}
	return provider, profile, nil
}

func parseGoogleProfile(body []byte) (OAuthProfile, error) {
	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return OAuthProfile{}, fmt.Errorf("decode google user info: %w", err)
	}
	id := info.ID
	if id == "" {
		id = info.Email
	}
	return OAuthProfile{ID: id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

func parseMicrosoftProfile(body []byte) (OAuthProfile, error) {
	var info struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return OAuthProfile{}, fmt.Errorf("decode microsoft user info: %w", err)
	}
	email := info.Mail
	if email == "" {
		email = info.UserPrincipalName
	}
	id := info.ID
	if id == "" {
		id = email
	}
	return OAuthProfile{ID: id, Email: email, Name: info.DisplayName}, nil
}
