package logger

import "log/slog"

// Nop returns a *slog.Logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
