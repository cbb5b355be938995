// Package logger provides the daemon's structured logging facility.
//
// It wraps log/slog behind a package-level, atomically-reconfigurable
// handler so that every package can call logger.Debug/Info/Warn/Error
// without threading a logger instance through every constructor, matching
// how the upcall dispatcher and protocol drivers are wired in this
// daemon.
package logger

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

// Level represents a log severity.
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
		return "UNKNOWN"
	}
}

// Config holds logger configuration, set from the daemon's config file.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel atomic.Int32

	mu      sync.RWMutex
	slogger *slog.Logger
	output  io.Writer = os.Stdout
	format            = "text"

	// reentering guards against recursive logging. A lookup performed
	// from inside a log call (e.g. the idmapper resolving a name while
	// handling a log record) must not itself log through this package,
	// per the "re-entrant logging" design note: Go has no per-thread
	// storage, so the guard is an explicit context flag rather than a
	// TLS boolean.
	reentering contextKey
)

type contextKey struct{}

func init() {
	currentLevel.Store(int32(LevelInfo))
	reconfigure()
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(h)
}

func toSlogLevel(l Level) slog.Level {
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

// Init configures the logger from daemon startup config.
func Init(cfg Config) error {
	mu.Lock()
	if cfg.Output != "" {
		switch strings.ToLower(cfg.Output) {
		case "stdout", "":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			output = f
		}
	}
	mu.Unlock()

	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	} else {
		reconfigure()
	}
	return nil
}

// InitWithWriter points the logger at an arbitrary writer; used by tests.
func InitWithWriter(w io.Writer, level, fmtName string) {
	mu.Lock()
	output = w
	mu.Unlock()
	if fmtName != "" {
		SetFormat(fmtName)
	}
	if level != "" {
		SetLevel(level)
	} else {
		reconfigure()
	}
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	reconfigure()
}

// SetFormat switches between "text" and "json" output.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	format = f
	mu.Unlock()
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// guarded reports whether ctx is already inside a log call, so a
// collaborator invoked while formatting a record (the idmapper name
// lookup is the one case this daemon cares about) can skip logging
// instead of recursing.
func guarded(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(reentering).(bool)
	return v
}

// WithGuard returns a context marked as "inside a log call", for
// collaborators that must not themselves log (breaks potential
// recursion through e.g. an idmapper invoked while rendering a record).
func WithGuard(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentering, true)
}

func Debug(msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	getLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	getLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	getLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// DebugCtx is like Debug but is a no-op when ctx carries the re-entrancy
// guard (see WithGuard).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if guarded(ctx) || LevelDebug < Level(currentLevel.Load()) {
		return
	}
	getLogger().Debug(msg, args...)
}

// ErrorCtx is like Error but is a no-op when ctx carries the re-entrancy guard.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	if guarded(ctx) {
		return
	}
	getLogger().Error(msg, args...)
}

// With returns a slog.Logger with pre-bound attributes, for a component
// that logs frequently under the same key/value pair (e.g. a stateid).
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}
