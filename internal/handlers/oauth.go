package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

type ProvidersResponse struct {
	Google    bool `json:"google"`
	Microsoft bool `json:"microsoft"`
}

type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// OAuthProviders lists which providers are configured.
func (h *Handler) OAuthProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProvidersResponse{
		Google:    h.oauth.Enabled(services.ProviderGoogle),
		Microsoft: h.oauth.Enabled(services.ProviderMicrosoft),
	})
}

// OAuthStart returns the consent URL for {provider}.
func (h *Handler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	authURL, err := h.oauth.AuthURL(provider)
	switch {
	case errors.Is(err, services.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, services.KindValidation, "Unknown provider")
		return
	case errors.Is(err, services.ErrProviderDisabled):
		writeError(w, http.StatusNotImplemented, "not_configured", provider+" OAuth is not configured")
		return
	case err != nil:
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthURLResponse{AuthURL: authURL})
}

// OAuthCallback completes the provider redirect, registers the owner if new
// and starts a session. All outcomes redirect back to the app.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" || q.Get("error") != "" {
		redirectWithError(w, r, "oauth_failed")
		return
	}

	provider, profile, err := h.oauth.Complete(r.Context(), state, code)
	switch {
	case errors.Is(err, services.ErrInvalidState):
		redirectWithError(w, r, "oauth_invalid_state")
		return
	case errors.Is(err, services.ErrProviderDisabled):
		redirectWithError(w, r, "invalid_provider")
		return
	case err != nil:
		h.log.Warn("oauth exchange failed", "error", err)
		redirectWithError(w, r, "oauth_failed")
		return
	}

	ownerKey := services.DeriveOwnerKey(services.OAuthCredential(provider, profile.ID))
	isNew, err := h.identity.RegisterOAuthOwner(ownerKey, provider, profile)
	if err != nil {
		h.log.Error("register oauth owner failed", "error", err)
		redirectWithError(w, r, "oauth_failed")
		return
	}
	token, err := h.sessions.Create(ownerKey)
	if err != nil {
		h.log.Error("create session failed", "error", err)
		redirectWithError(w, r, "oauth_failed")
		return
	}
	h.setSessionCookie(w, token)

	v := url.Values{}
	v.Set("oauth_complete", "true")
	v.Set("oauth_new", strconv.FormatBool(isNew))
	v.Set("provider", provider)
	http.Redirect(w, r, "/?"+v.Encode(), http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, marker string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(marker), http.StatusFound)
}
