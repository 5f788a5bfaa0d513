//go:build tinygo

package pkg

import "log/slog"

// Trace is a no-op: interrupt handlers cannot allocate.
func Trace(level slog.Level, component Component, msg string, args ...any) {}

// Wrap returns err unchanged. Formatting allocates, and the sentinel is
// enough to match with errors.Is.
func Wrap(err error, format string, args ...any) error { return err }
