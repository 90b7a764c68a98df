// Package logging assembles structured slog loggers and formatting helpers used
// across libbydl.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so every log line emitted during
// one invocation carries the same run identifier. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
