// Package pkg provides shared utilities for the f0usb controller core.
//
// This package contains common functionality used by the USB controller,
// its hardware collaborators, the host simulation and the CLI, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for controller and endpoint failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentController, "usb enabled", "sysclk", 48000000)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrNotImplemented) {
//	    // No control handler is wired for EP0 OUT data
//	}
//
// Register-level invariant violations are not returned as errors. They
// panic with a wrapped sentinel, because the hardware state is unknown
// afterwards.
package pkg
