package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/md-rashed-zaman/vetcall/libs/config"
)

// NewLogger builds the service logger from LOG_LEVEL (debug, info, warn,
// error) and LOG_FORMAT (json, or text for local runs).
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service, config.String("LOG_LEVEL", "info"), config.String("LOG_FORMAT", "json"))
}

func newLogger(w io.Writer, service, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}
