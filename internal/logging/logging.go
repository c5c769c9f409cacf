package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	mu       sync.RWMutex
	level    = new(slog.LevelVar)
	disabled atomic.Bool
	logger   = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetOutput redirects all log output to w
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

// SetLevel accepts debug, info, warn or error. Unknown values fall back to info.
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

// Disable turns off all logging
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on
func Enable() {
	disabled.Store(false)
}

// Slog returns the underlying structured logger
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func emit(lvl slog.Level, msg string) {
	if disabled.Load() {
		return
	}
	l := Slog()
	if !l.Enabled(context.Background(), lvl) {
		return
	}
	l.Log(context.Background(), lvl, msg)
}

func Info(v ...any)                    { emit(slog.LevelInfo, fmt.Sprint(v...)) }
func Infof(format string, v ...any)    { emit(slog.LevelInfo, fmt.Sprintf(format, v...)) }
func Warn(v ...any)                    { emit(slog.LevelWarn, fmt.Sprint(v...)) }
func Warnf(format string, v ...any)    { emit(slog.LevelWarn, fmt.Sprintf(format, v...)) }
func Error(v ...any)                   { emit(slog.LevelError, fmt.Sprint(v...)) }
func Errorf(format string, v ...any)   { emit(slog.LevelError, fmt.Sprintf(format, v...)) }
func Debug(v ...any)                   { emit(slog.LevelDebug, fmt.Sprint(v...)) }
func Debugf(format string, v ...any)   { emit(slog.LevelDebug, fmt.Sprintf(format, v...)) }
