// Package obslog is a thin wrapper around the standard log package.
//
// The teacher never imports a structured logging library anywhere in its
// dependency surface; cmd/sentra/main.go and its callees log with the
// stdlib "log" package directly. This module follows the same ambient
// choice, wrapping it only enough to give call sites level prefixes without
// reaching for a third-party logger that nothing in the example pack uses.
package obslog

import (
	"io"
	"log"
	"os"
	"sync"
)

// Logger is a level-prefixed wrapper over *log.Logger.
type Logger struct {
	mu  sync.Mutex
	std *log.Logger
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns the process-wide default Logger, writing to stderr with
// the standard date/time prefix.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(os.Stderr)
	})
	return defaultLog
}

// New builds a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{std: log.New(w, "", log.LstdFlags)}
}

func (l *Logger) logf(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std.Printf("["+level+"] "+format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) { l.logf("INFO", format, args...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) { l.logf("WARN", format, args...) }

// Debug logs a debug message. Callers that need to suppress these in
// production can swap in a no-op Logger; there is no separate level gate
// here, matching the teacher's unconditional log.Printf usage.
func (l *Logger) Debug(format string, args ...interface{}) { l.logf("DEBUG", format, args...) }

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) { l.logf("ERROR", format, args...) }
