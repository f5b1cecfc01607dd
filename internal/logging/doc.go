// Package logging configures structured slog output for medrag.
//
// Logs are JSON lines written to a size-rotated file under ~/.medrag/logs/,
// optionally tee'd to stderr. Components derive their own loggers with
// slog.Default().With("component", ...).
package logging
