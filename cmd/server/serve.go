package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/handlers"
	"github.com/AnshRaj112/tasklist-backend/internal/middleware"
	"github.com/AnshRaj112/tasklist-backend/internal/routes"
	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := a.buildCore()
	if err != nil {
		return err
	}

	// Reap before accepting connections
	if _, err := c.reaper.RunOnce(); err != nil {
		a.log.Error("startup cleanup failed", "error", err)
	}

	oauth := services.NewOAuthService(services.OAuthConfig{
		RedirectURL: a.cfg.OAuthRedirectURL,
		Google: services.OAuthClientConfig{
			ClientID:     a.cfg.GoogleClientID,
			ClientSecret: a.cfg.GoogleClientSecret,
		},
		Microsoft: services.OAuthClientConfig{
			ClientID:     a.cfg.MicrosoftClientID,
			ClientSecret: a.cfg.MicrosoftClientSecret,
		},
		MicrosoftTenant: a.cfg.MicrosoftTenant,
	})

	var rdb *redis.Client
	if a.cfg.RedisURI != "" {
		rdb, err = database.ConnectRedis(ctx, a.cfg.RedisURI)
		if err != nil {
			a.log.Warn("redis unavailable, shared login limit disabled", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
			a.log.Info("redis connected")
		}
	}

	certFile, keyFile, useTLS := c.layout.TLSFiles()

	h := handlers.New(handlers.Deps{
		Identity:     c.identity,
		Sessions:     c.sessions,
		Tasks:        c.tasks,
		Hub:          c.hub,
		OAuth:        oauth,
		Log:          a.log,
		Version:      a.cfg.Version,
		SecureCookie: useTLS || a.cfg.IsProduction(),
	})

	compress, err := middleware.Compress()
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(a.log))
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(useTLS))
	if a.cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity() {
			r.Use(mw)
		}
		a.log.Info("production security enabled")
	}
	r.Use(middleware.RedisLoginRateLimit(rdb, a.log))

	routes.SetupRoutes(r, h, routes.Options{
		Sessions:  c.sessions,
		Compress:  compress,
		StaticDir: a.cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("task list server running",
			"port", a.cfg.Port,
			"tls", useTLS,
			"env", a.cfg.Environment,
			"data_dir", c.layout.Dir,
			"version", a.cfg.Version,
		)
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = c.tasks.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	c.hub.CloseAll()

	// Pending task writes reach disk before exit
	if err := c.tasks.Close(); err != nil {
		a.log.Error("final flush failed", "error", err)
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
