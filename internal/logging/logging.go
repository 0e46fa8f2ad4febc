package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/AnshRaj112/tasklist-backend/internal/config"
)

// New returns a text logger at debug level for local and development
// environments and a JSON logger at info level for production.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) *slog.Logger {
	switch env {
	case config.EnvProduction:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
