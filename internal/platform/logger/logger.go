package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process logger: JSON in prod, text otherwise.
func New(env string) *slog.Logger {
	return newWithWriter(os.Stdout, env)
}

func newWithWriter(w io.Writer, env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
