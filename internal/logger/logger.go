// Package logger is the leveled logger shared by every backend component.
// Levels are off, normal (info, warn, error) and verbose (adds debug).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level controls how much is written.
type Level int

const (
	LevelOff Level = iota
	LevelNormal
	LevelVerbose
)

// ParseLevel maps a config value to a Level. Unknown values mean normal.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off", "none", "quiet":
		return LevelOff
	case "verbose", "debug":
		return LevelVerbose
	default:
		return LevelNormal
	}
}

// Logger writes prefixed lines per level. Safe for concurrent use.
type Logger struct {
	mu    sync.RWMutex
	level Level
	out   map[string]*log.Logger
}

// New creates a logger writing to out, or os.Stderr when out is nil.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	flags := log.Ltime | log.Lmicroseconds
	return &Logger{
		level: level,
		out: map[string]*log.Logger{
			"debug": log.New(out, "[DBG] ", flags),
			"info":  log.New(out, "[INF] ", flags),
			"warn":  log.New(out, "[WRN] ", flags),
			"error": log.New(out, "[ERR] ", flags),
		},
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(LevelOff, io.Discard)
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) Debug(format string, args ...any) { l.write(LevelVerbose, "debug", format, args) }

func (l *Logger) Info(format string, args ...any) { l.write(LevelNormal, "info", format, args) }

func (l *Logger) Warn(format string, args ...any) { l.write(LevelNormal, "warn", format, args) }

func (l *Logger) Error(format string, args ...any) { l.write(LevelNormal, "error", format, args) }

func (l *Logger) write(min Level, name string, format string, args []any) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level < min {
		return
	}
	_ = l.out[name].Output(3, fmt.Sprintf(format, args...))
}
