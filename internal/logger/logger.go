package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/credit-title-marketplace/internal/config"
)

// NewLogger builds the process logger for one marketplace component
// ("marketplace_api", "settlement_worker"). Every line carries the
// application name, environment and component.
func NewLogger(cfg *config.Config, component string) *slog.Logger {
	logger := newLogger(os.Stdout, cfg, component)
	logger.Info("logger initialized", "level", parseLevel(cfg.Logging.Level).String(), "format", cfg.Logging.Format)
	return logger
}

func newLogger(w io.Writer, cfg *config.Config, component string) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		"app", cfg.Application.Name,
		"env", cfg.Application.Env,
		"component", component,
	)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
