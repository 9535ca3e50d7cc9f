package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	level slog.LevelVar
	mu    sync.RWMutex
	base  *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	base = build(os.Stdout)
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
}

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	base = build(w)
	mu.Unlock()
}

// SetLevel accepts debug/info/warn/error; anything else falls back to info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func active() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	return l
}

func Debugf(format string, v ...any) { active().Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { active().Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { active().Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { active().Error(fmt.Sprintf(format, v...)) }
