// Package logger provides structured logging functionality for the application.
//
// It builds log/slog handlers from configuration: JSON for machine-readable
// production output, or colored text (via github.com/lmittmann/tint) for local
// development. Request-scoped loggers travel in the context.
package logger
