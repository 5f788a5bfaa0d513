package usb

import (
	"fmt"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/reg"
)

// ISTR bits.
const (
	istrEPID  = 0x000F  // Endpoint identifier
	istrDIR   = 1 << 4  // Direction of transaction
	istrRESET = 1 << 10 // USB reset request
	istrSUSP  = 1 << 11 // Suspend request
	istrWKUP  = 1 << 12 // Wakeup
	istrCTR   = 1 << 15 // Correct transfer (read only)
)

// Cause is a decoded interrupt cause: an endpoint slot in [0, 16), or one of
// the device-level causes.
type Cause uint8

// Device-level causes.
const (
	CauseReset   Cause = 0x13
	CauseSuspend Cause = 0x14
	CauseWakeup  Cause = 0x15
)

// IsEndpoint reports whether c names an endpoint slot.
func (c Cause) IsEndpoint() bool { return c <= istrEPID }

// String returns the cause name.
func (c Cause) String() string {
	switch {
	case c.IsEndpoint():
		return fmt.Sprintf("ep%d", uint8(c))
	case c == CauseReset:
		return "reset"
	case c == CauseSuspend:
		return "suspend"
	case c == CauseWakeup:
		return "wakeup"
	default:
		return "unknown"
	}
}

// ISTR is the interrupt status register.
type ISTR struct {
	r reg.Register32
}

// Clear acknowledges every device-level flag.
func (s ISTR) Clear() { s.r.Set(0) }

// Next decodes the highest-priority pending cause. A device-level flag is
// acknowledged as it is consumed; endpoint causes are acknowledged through
// the endpoint's register. Having no cause to report is fatal.
func (s ISTR) Next() Cause {
	v := s.r.Get()
	switch {
	case v&istrCTR != 0:
		return Cause(v & istrEPID)
	case v&istrRESET != 0:
		s.ack(istrRESET)
		return CauseReset
	case v&istrSUSP != 0:
		s.ack(istrSUSP)
		return CauseSuspend
	case v&istrWKUP != 0:
		s.ack(istrWKUP)
		return CauseWakeup
	}
	panic(pkg.Wrap(pkg.ErrUnknownInterrupt, "interrupt status 0x%04X", v))
}

// Flags are rc_w0: writing 1 leaves them alone.
func (s ISTR) ack(bit uint32) { s.r.Set(^bit & 0xFFFF) }
