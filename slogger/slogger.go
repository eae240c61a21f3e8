// Package slogger is the SDK's logging facade: a small structured interface
// with an slog-backed implementation for callers that want output, and a
// no-op default so the SDK stays silent unless a logger is wired in.
package slogger

// DefaultLogger is used by every component that is not handed a logger
// explicitly. It discards everything; pass New(LevelDebug) or similar
// through the package options to see SDK activity.
var DefaultLogger Logger = NewNopLogger()

// Logger is the structured logger accepted throughout the SDK. Keys and
// values alternate in keysAndValues, slog style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// With returns a logger that attaches the given key-value pairs to
	// every record it emits.
	With(keysAndValues ...any) Logger
}
