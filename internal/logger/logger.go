// Package logger provides leveled logging with optional file output.
// A process-wide logger is initialized once via Init; subsystems derive
// prefixed child loggers from it with WithPrefix.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level controls which messages a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// String returns the uppercase name of the level.
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
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. Unknown names fall back
// to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, level-tagged lines to a single destination.
// All methods are safe for concurrent use.
type Logger struct {
	mu     sync.RWMutex
	level  Level
	out    io.Writer
	prefix string
	file   *os.File
}

var (
	global     *Logger
	globalOnce sync.Once
	globalMu   sync.RWMutex
)

// Init sets up the global logger. Safe to call multiple times; only the
// first call has an effect.
func Init(level Level, logPath string) error {
	var err error
	globalOnce.Do(func() {
		var l *Logger
		l, err = New(level, logPath, "")
		if err != nil {
			return
		}
		globalMu.Lock()
		global = l
		globalMu.Unlock()
	})
	return err
}

// Global returns the global logger, creating a discarding one if Init
// was never called.
func Global() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &Logger{level: LevelNone, out: io.Discard}
	}
	return global
}

// New creates a logger writing to logPath. An empty path or LevelNone
// yields a logger that discards everything. Parent directories are
// created as needed.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	l := &Logger{
		level:  level,
		out:    io.Discard,
		prefix: prefix,
	}

	if logPath == "" || level == LevelNone {
		return l, nil
	}

	if dir := filepath.Dir(logPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l.out = f
	l.file = f
	return l, nil
}

// WithPrefix returns a child logger whose messages carry the combined
// prefix. The child shares the parent's destination and level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	combined := prefix
	if l.prefix != "" {
		combined = l.prefix + ":" + prefix
	}
	return &Logger{
		level:  l.level,
		out:    l.out,
		prefix: combined,
		// file stays owned by the parent
	}
}

// SetLevel changes the minimum level emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Disable silences the logger entirely.
func (l *Logger) Disable() {
	l.SetLevel(LevelNone)
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.level || l.level == LevelNone {
		return
	}

	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "%s [%s] %s%s\n", ts, level.String(), prefix, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.out = io.Discard
		return err
	}
	return nil
}

// Package-level helpers that forward to the global logger.

func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}
