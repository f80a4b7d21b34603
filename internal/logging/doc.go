// Package logging assembles the structured slog loggers used by pipelink.
//
// It owns the console and JSON handlers, the shared level variable that the
// LogLevel management resource adjusts at runtime, and the StreamHub that
// buffers recent events for the SysLog feed. Components should build their
// logger with NewComponentLogger and report recoverable failures through
// WarnWithContext so every warning carries an event type, impact and hint.
package logging
