package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a structured logger.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init builds the logger and installs it as the slog default.
func Init(level, format string, w io.Writer) *slog.Logger {
	logger := New(level, format, w)
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything; used by tests and quiet
// CLI paths.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForJob returns a logger tagged with the job's identity.
func ForJob(logger *slog.Logger, appID int64, kind, jobID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("app_id", appID, "kind", kind, "job_id", jobID)
}
