package slogger

// NopLogger drops every record. It backs DefaultLogger so library code can
// log unconditionally without forcing output on callers.
type NopLogger struct{}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Debug(msg string, keysAndValues ...any) {}
func (l *NopLogger) Info(msg string, keysAndValues ...any)  {}
func (l *NopLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *NopLogger) Error(msg string, keysAndValues ...any) {}
func (l *NopLogger) With(keysAndValues ...any) Logger       { return l }
