package logger

// Logger is the minimal structured logging interface used across accesskit.
// Implementations accept alternating key/value pairs as variadic arguments.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
