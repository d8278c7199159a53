package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/phrazzld/studypal-api/internal/config"
	"golang.org/x/term"
)

// Setup builds the application logger from the server configuration, sets it
// as the slog default and returns it. Output goes to stdout.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	return New(os.Stdout, cfg), nil
}

// New builds a logger writing to w. An unrecognized level falls back to info;
// log_format "text" selects the tint handler, anything else JSON.
func New(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	level, ok := ParseLevel(cfg.LogLevel)
	if !ok {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn(
			"invalid log level configured, using default level",
			"configured_level", cfg.LogLevel,
			"default_level", "info")
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if err, ok := a.Value.Any().(error); ok && a.Key == "error" {
					return tint.Err(err)
				}
				return a
			},
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a configured level name to a slog.Level. The boolean is
// false when the name is not recognized, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
