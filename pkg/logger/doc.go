// Package logger builds the slog loggers used across the bot backend.
//
// All components log through *slog.Logger. The factory here produces a
// JSON handler for stdout, optionally fanned out to Sentry, and supports
// context extractors so request-scoped values (correlation id, guild id)
// are attached to every record without threading them manually.
package logger
