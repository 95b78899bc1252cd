package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for pmr's own daemon log. Child process logs are
// handled by internal/logrotate, not here.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config selects where pmr's own structured logs go.
type Config struct {
	Level      slog.Level
	FilePath   string // when set, logs rotate through lumberjack at this path
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Color      bool // ANSI level colors; only sensible on a terminal
}

// New builds a slog.Logger writing to stderr (colored when Color is set) or,
// for the daemon, to a rotating file (plain text).
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lj.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		}
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Color && cfg.FilePath == "" {
		return slog.New(NewColorTextHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
