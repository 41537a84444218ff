package relay

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"carelay/go-backend/internal/platform/privacylog"
)

// NewLogger builds the process logger: JSON lines behind the privacy
// sanitizer. A nil writer means stdout.
func NewLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(privacylog.WrapHandler(handler))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
