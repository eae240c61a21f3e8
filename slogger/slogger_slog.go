package slogger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogLevel is the minimum level a Slogger emits.
type LogLevel slog.Level

const (
	LevelDebug LogLevel = LogLevel(slog.LevelDebug)
	LevelInfo  LogLevel = LogLevel(slog.LevelInfo)
	LevelWarn  LogLevel = LogLevel(slog.LevelWarn)
	LevelError LogLevel = LogLevel(slog.LevelError)
)

// Slogger writes tinted slog records to stderr. Stderr rather than stdout:
// streamed model output owns stdout.
type Slogger struct {
	logger *slog.Logger
}

// New returns a Slogger emitting records at or above level, colorized only
// when stderr is a terminal.
func New(level LogLevel) *Slogger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		TimeFormat: time.Kitchen,
		Level:      slog.Level(level),
	})
	return &Slogger{logger: slog.New(handler)}
}

func (l *Slogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, withCaller(keysAndValues)...)
}

func (l *Slogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, withCaller(keysAndValues)...)
}

func (l *Slogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, withCaller(keysAndValues)...)
}

func (l *Slogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, withCaller(keysAndValues)...)
}

func (l *Slogger) With(keysAndValues ...any) Logger {
	return &Slogger{logger: l.logger.With(keysAndValues...)}
}

// withCaller prefixes a record's attributes with the call site, shortened to
// dir/file:line.
func withCaller(keysAndValues []any) []any {
	// Skip withCaller and the Slogger method that called it.
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return keysAndValues
	}
	caller := fmt.Sprintf("%s/%s:%d",
		filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	return append([]any{"caller", caller}, keysAndValues...)
}
