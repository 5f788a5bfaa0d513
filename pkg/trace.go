//go:build !tinygo

package pkg

import (
	"context"
	"fmt"
	"log/slog"
)

// Trace logs msg at level for code that may run in interrupt context.
// Nothing is built unless level is enabled. TinyGo builds compile it away.
func Trace(level slog.Level, component Component, msg string, args ...any) {
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()

	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}

// Wrap prefixes err with a formatted context, as fmt.Errorf(format+": %w")
// would. TinyGo builds return err unchanged.
func Wrap(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
