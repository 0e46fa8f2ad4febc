package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/AnshRaj112/tasklist-backend/internal/middleware"
	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

// LoginRequest is the password login body.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse keeps isNewPassword for clients written against older servers.
type LoginResponse struct {
	Token         string `json:"token"`
	IsNewOwner    bool   `json:"isNewOwner"`
	IsNewPassword bool   `json:"isNewPassword"`
	Message       string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CheckResponse struct {
	Authenticated bool `json:"authenticated"`
}

// Login verifies a password, registering it on first use, and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Password is required")
		return
	}

	ownerKey, isNew, err := h.identity.VerifyOrRegisterPassword(req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	token, err := h.sessions.Create(ownerKey)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.setSessionCookie(w, token)

	message := "Login successful"
	if isNew {
		message = "New password registered with personal task list"
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:         token,
		IsNewOwner:    isNew,
		IsNewPassword: isNew,
		Message:       message,
	})
}

// Logout destroys the caller's session, if any, and clears the cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.sessions.Destroy(token); err != nil {
			h.log.Error("destroy session failed", "error", err)
		}
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Check reports whether the caller holds a live session. It never fails.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	_, err := h.sessions.Resolve(middleware.SessionToken(r))
	writeJSON(w, http.StatusOK, CheckResponse{Authenticated: err == nil})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.MaxAge().Seconds()),
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AuthCookieName, middleware.LegacyOAuthCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
