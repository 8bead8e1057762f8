package parlor

import "log/slog"

// Logger is the structured logging seam for the connection layer: lifecycle
// events, read/write failures, and codec diagnostics (surplus bytes, unknown
// codes) all go through it. *slog.Logger satisfies the interface directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger is used when no LoggerOption is given.
func defaultLogger() Logger {
	return slog.Default()
}
