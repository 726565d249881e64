package logger

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides leveled, optionally structured logging.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Config configures the logger.
type Config struct {
	Level  Level
	Format string // "text" or "json"
	Output io.Writer
	// NoColor disables ANSI colours in text output. Set it when Output is a file.
	NoColor bool
}

type loggerImpl struct {
	sl *slog.Logger
}

// New creates a Logger from config. Output defaults to os.Stderr if nil.
// Text output goes through tint, json output through slog's JSON handler.
func New(cfg Config) Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: cfg.Level.slogLevel()})
	} else {
		h = tint.NewHandler(cfg.Output, &tint.Options{
			Level:      cfg.Level.slogLevel(),
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		})
	}
	return &loggerImpl{sl: slog.New(h)}
}

func (l *loggerImpl) Debug(msg string, keyvals ...interface{}) {
	l.sl.Log(context.Background(), slog.LevelDebug, msg, keyvals...)
}

func (l *loggerImpl) Info(msg string, keyvals ...interface{}) {
	l.sl.Log(context.Background(), slog.LevelInfo, msg, keyvals...)
}

func (l *loggerImpl) Warn(msg string, keyvals ...interface{}) {
	l.sl.Log(context.Background(), slog.LevelWarn, msg, keyvals...)
}

func (l *loggerImpl) Error(msg string, keyvals ...interface{}) {
	l.sl.Log(context.Background(), slog.LevelError, msg, keyvals...)
}

// ParseLevel returns Level from string (debug, info, warn, error). Defaults to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// StdLogger returns a standard log.Logger that writes at the given level.
// gorm's SQL logger is routed through it.
func StdLogger(l Logger, level Level) *log.Logger {
	return log.New(&stdAdapter{l: l, level: level}, "", 0)
}

type stdAdapter struct {
	l     Logger
	level Level
}

func (a *stdAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")
	switch a.level {
	case LevelDebug:
		a.l.Debug(msg)
	case LevelWarn:
		a.l.Warn(msg)
	case LevelError:
		a.l.Error(msg)
	default:
		a.l.Info(msg)
	}
	return len(p), nil
}
