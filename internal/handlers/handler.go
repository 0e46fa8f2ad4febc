package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AnshRaj112/tasklist-backend/internal/services"
	"github.com/AnshRaj112/tasklist-backend/pkg/utils"
)

// Deps are the services the HTTP layer talks to.
type Deps struct {
	Identity *services.IdentityService
	Sessions *services.SessionRegistry
	Tasks    *services.TaskStore
	Hub      *services.Hub
	OAuth    *services.OAuthService
	Log      *slog.Logger

	Version      string
	SecureCookie bool
}

// Handler serves the task list API.
type Handler struct {
	identity *services.IdentityService
	sessions *services.SessionRegistry
	tasks    *services.TaskStore
	hub      *services.Hub
	oauth    *services.OAuthService
	log      *slog.Logger

	version      string
	secureCookie bool
}

func New(d Deps) *Handler {
	return &Handler{
		identity:     d.Identity,
		sessions:     d.Sessions,
		tasks:        d.Tasks,
		hub:          d.Hub,
		oauth:        d.OAuth,
		log:          d.Log.With("component", "handlers"),
		version:      d.Version,
		secureCookie: d.SecureCookie,
	}
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Kind: kind, Message: message})
}

// respondError maps a service error onto its status code. IO failures are
// logged and reported without detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch services.Kind(err) {
	case services.KindValidation:
		var vErr *utils.ValidationError
		errors.As(err, &vErr)
		writeError(w, http.StatusBadRequest, services.KindValidation, vErr.Message)
	case services.KindAuth:
		writeError(w, http.StatusUnauthorized, services.KindAuth, err.Error())
	case services.KindNotFound:
		writeError(w, http.StatusNotFound, services.KindNotFound, err.Error())
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, services.KindIO, "Internal server error")
	}
}
