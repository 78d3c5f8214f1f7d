// Package logging provides structured logging for the rbxsync server and
// its background tasks.
//
// Two variants are available:
//   - Logger: structured zap logger for server/relay/watcher paths
//   - Logger.Sugar(): printf-style logging for CLI and debug surfaces
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger configured for rbxsync.
// All entries are JSON-encoded with RFC3339 timestamps.
type Logger struct {
	zap *zap.Logger
}

// New creates a logger writing to os.Stderr at the given level.
// Level strings follow zap: "debug", "info", "warn", "error".
func New(level string) *Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a logger writing to w. Used by tests and by the
// daemon mode, which redirects logs to a file.
func NewWithWriter(level string, w io.Writer) *Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339TimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)

	return &Logger{zap: zap.New(core)}
}

// Nop returns a logger that discards everything. Handy default for
// library consumers that do not care about logs.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Debug logs a debug message with structured fields.
func (l *Logger) Debug(message string, fields ...zap.Field) {
	l.zap.Debug(message, fields...)
}

// Info logs an info message with structured fields.
func (l *Logger) Info(message string, fields ...zap.Field) {
	l.zap.Info(message, fields...)
}

// Warn logs a warning message with structured fields.
func (l *Logger) Warn(message string, fields ...zap.Field) {
	l.zap.Warn(message, fields...)
}

// Error logs an error message with structured fields.
func (l *Logger) Error(message string, fields ...zap.Field) {
	l.zap.Error(message, fields...)
}

// Named returns a logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Sugar returns a zap.SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.zap.Sugar()
}
