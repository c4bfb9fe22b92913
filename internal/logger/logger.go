// Package logger provides the package-level structured logging surface
// used throughout ros3fs. It mirrors the shape of gcsfuse's internal/logger
// package: a package-level slog.Logger over a pluggable handler, with
// Infof/Warnf/Errorf/Fatalf convenience wrappers that the rest of the
// codebase calls without threading a *slog.Logger through every function.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	std     = slog.New(slog.NewTextHandler(os.Stderr, nil))
	rotator io.Closer
)

// Config controls where log output goes. A zero-value Config logs text to
// stderr, which is what a non-daemonized mount wants.
type Config struct {
	// Format is "text" or "json". Defaults to "text".
	Format string
	// FilePath, if set, rotates output through lumberjack instead of
	// writing to stderr. This is the path gcsfuse's daemonized mounts take
	// (cmd/legacy_main.go redirects stdout/stderr for the child process).
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
}

// Init (re)configures the package logger. Safe to call once at startup;
// calling it again replaces the sink, closing any previous rotating file.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		rotator = lj
		w = lj
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	std = slog.New(h)
	return nil
}

// Close releases the rotating log file, if any was opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		err := rotator.Close()
		rotator = nil
		return err
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

// Tracef logs at a level below Debug, matching gcsfuse's five-level scheme
// (TRACE/DEBUG/INFO/WARNING/ERROR). slog has no native TRACE level, so it is
// modeled as Debug-4.
const LevelTrace = slog.LevelDebug - 4

func Tracef(format string, args ...any) {
	get().Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	get().Debug(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	get().Info(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	get().Warn(fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	get().Error(fmt.Sprintf(format, args...))
}

// Fatalf logs at error level and terminates the process, for startup-time
// failures where there is no caller left to propagate an error to.
func Fatalf(format string, args ...any) {
	get().Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
