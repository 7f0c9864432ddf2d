// Package logger provides structured logging for Zephyrite.
//
// It wraps log/slog:
//
//   - logger.go: handler construction and the hot-reloadable global level
//   - context.go: request ID, trace ID and client address propagation
//   - redact.go: masking of stored values and secrets
//
// Stored values never reach the log output. Any attribute named "value" is
// replaced before the handler formats it.
package logger
