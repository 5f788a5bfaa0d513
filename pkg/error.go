package pkg

import "errors"

// Controller and endpoint errors.
var (
	// ErrStall indicates an endpoint answered with a STALL handshake.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK handshake (endpoint not ready).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates a wait exceeded its deadline.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a wait was cancelled.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrOverrun indicates a packet larger than the endpoint buffer.
	ErrOverrun = errors.New("data overrun")

	// ErrNoMemory indicates packet memory is exhausted.
	ErrNoMemory = errors.New("insufficient packet memory")

	// ErrOutOfBounds indicates an access outside the packet memory arena.
	ErrOutOfBounds = errors.New("packet memory access out of bounds")

	// ErrInvalidEndpoint indicates an endpoint index outside the layout.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidKind indicates an operation undefined for the endpoint kind.
	ErrInvalidKind = errors.New("invalid endpoint kind")

	// ErrInvalidState indicates an invalid controller state for the operation.
	ErrInvalidState = errors.New("invalid controller state")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownInterrupt indicates an interrupt cause outside the known set.
	ErrUnknownInterrupt = errors.New("unknown interrupt cause")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrNotImplemented indicates a recognized path that has no handler wired.
	ErrNotImplemented = errors.New("not implemented")

	// ErrBusy indicates the endpoint buffer is owned by hardware.
	ErrBusy = errors.New("resource busy")

	// ErrAlreadyRunning indicates the controller is already initialized.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the controller is not initialized.
	ErrNotRunning = errors.New("not running")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")

	// ErrMismatch indicates an observed value differs from the expected one.
	ErrMismatch = errors.New("mismatch")
)

// Handshake is the token a USB function answers a data transaction with.
type Handshake int

// Handshake values.
const (
	HandshakeACK   Handshake = iota // Transaction accepted
	HandshakeNAK                    // Endpoint not ready
	HandshakeStall                  // Endpoint halted
	HandshakeNone                   // No answer (endpoint disabled)
)

// String returns a string representation of the handshake.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ack"
	case HandshakeNAK:
		return "nak"
	case HandshakeStall:
		return "stall"
	case HandshakeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the handshake.
func (h Handshake) Error() error {
	switch h {
	case HandshakeACK:
		return nil
	case HandshakeNAK:
		return ErrNAK
	case HandshakeStall:
		return ErrStall
	case HandshakeNone:
		return ErrTimeout
	default:
		return ErrInvalidState
	}
}
