package routes

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/tasklist-backend/internal/handlers"
	"github.com/AnshRaj112/tasklist-backend/internal/middleware"
)

// Options carries the pieces SetupRoutes wires around the handlers.
type Options struct {
	Sessions  middleware.SessionResolver
	Compress  func(http.Handler) http.Handler
	StaticDir string
}

func SetupRoutes(r chi.Router, h *handlers.Handler, opts Options) {
	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Push channel stays outside the gzip group; hijacked connections must not be wrapped
	r.With(middleware.WebSocketRateLimit()).Get("/ws", h.WebSocket)

	r.Group(func(r chi.Router) {
		if opts.Compress != nil {
			r.Use(opts.Compress)
		}

		// Auth routes
		r.Post("/api/auth/login", h.Login)
		r.Post("/api/auth/logout", h.Logout)
		r.Get("/api/auth/check", h.Check)
		r.Get("/api/auth/oauth/providers", h.OAuthProviders)
		r.Get("/api/auth/oauth/callback", h.OAuthCallback)
		r.Get("/api/auth/oauth/{provider}", h.OAuthStart)

		r.Get("/api/version", h.Version)

		// Task routes (session required)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(opts.Sessions))

			r.Get("/api/todos", h.ListTasks)
			r.Post("/api/todos", h.AddTask)
			r.Put("/api/todos", h.ReplaceTasks)
			r.Put("/api/todos/{id}", h.UpdateTask)
			r.Delete("/api/todos/{id}", h.DeleteTask)
			r.Put("/api/order", h.SetOrderMode)
			r.Put("/api/sort", h.SetOrderMode)
			r.Post("/api/archive", h.Archive)
		})

		// Static client
		if opts.StaticDir != "" {
			if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
				r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
			}
		}
	})
}
