package usb

import (
	"fmt"
	"strings"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/reg"
)

// Controller geometry.
const (
	NumEndpoints = 4  // Endpoint slots in use
	PacketSize   = 64 // Largest full-speed packet and temp buffer size
	SetupSize    = 8  // SETUP packet length

	// MaxControlData is the largest reply QueueControl accepts.
	MaxControlData = 256
)

// EPnR bit fields.
var (
	eprEA     = reg.Field[uint32]{Shift: 0, Width: 4}
	eprStatTX = reg.Field[uint32]{Shift: 4, Width: 2}
	eprType   = reg.Field[uint32]{Shift: 9, Width: 2}
	eprStatRX = reg.Field[uint32]{Shift: 12, Width: 2}
)

// EPnR single bits.
const (
	eprDtogTX = 1 << 6  // toggle
	eprCtrTX  = 1 << 7  // rc_w0
	eprKind   = 1 << 8  // rw
	eprSetup  = 1 << 11 // ro
	eprDtogRX = 1 << 14 // toggle
	eprCtrRX  = 1 << 15 // rc_w0
)

// EPnR write masks.
const (
	eprPreserve  = 0x000F | eprKind | 0x0600 // EA | EP_KIND | EP_TYPE
	eprInvariant = eprCtrRX | eprCtrTX       // writing 1 leaves CTR untouched
)

// EndpointType is the EP_TYPE field encoding.
type EndpointType uint8

// EP_TYPE values.
const (
	TypeBulk EndpointType = iota
	TypeControl
	TypeIsochronous
	TypeInterrupt
)

// String returns the type name.
func (t EndpointType) String() string {
	switch t {
	case TypeBulk:
		return "bulk"
	case TypeControl:
		return "control"
	case TypeIsochronous:
		return "isochronous"
	case TypeInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Stat is a STAT_RX/STAT_TX field value.
type Stat uint8

// STAT values. StatKeep is not a hardware encoding; it tells SetStat to leave
// the field alone.
const (
	StatDisabled Stat = iota
	StatStall
	StatNak
	StatValid

	StatKeep Stat = 0xFF
)

// String returns the status name.
func (s Stat) String() string {
	switch s {
	case StatDisabled:
		return "disabled"
	case StatStall:
		return "stall"
	case StatNak:
		return "nak"
	case StatValid:
		return "valid"
	case StatKeep:
		return "keep"
	default:
		return "unknown"
	}
}

// Kind is the role an endpoint slot plays.
type Kind uint8

// Endpoint roles. Input and Output are named from the host's point of view:
// Input carries device-to-host (IN) data, Output host-to-device (OUT) data.
// Input and Interrupt endpoints are driven through STAT_TX, Output endpoints
// through STAT_RX, and Control endpoints through both.
const (
	KindControl Kind = iota
	KindIsochronous
	KindInput
	KindOutput
	KindInterrupt
)

// String returns the role name.
func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindIsochronous:
		return "isochronous"
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// ParseKind converts a role name as printed by [Kind.String].
func ParseKind(name string) (Kind, error) {
	for k := KindControl; k <= KindInterrupt; k++ {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("endpoint kind %q: %w", name, pkg.ErrInvalidKind)
}

// EPR is a snapshot of an endpoint register.
type EPR uint32

// CtrRX reports a completed reception.
func (r EPR) CtrRX() bool { return r&eprCtrRX != 0 }

// CtrTX reports a completed transmission.
func (r EPR) CtrTX() bool { return r&eprCtrTX != 0 }

// Setup reports that the last reception was a SETUP packet.
func (r EPR) Setup() bool { return r&eprSetup != 0 }

// Address returns the EA field.
func (r EPR) Address() uint8 { return reg.Decode[uint8](eprEA, uint32(r)) }

// Type returns the EP_TYPE field.
func (r EPR) Type() EndpointType { return reg.Decode[EndpointType](eprType, uint32(r)) }

// StatTX returns the STAT_TX field.
func (r EPR) StatTX() Stat { return reg.Decode[Stat](eprStatTX, uint32(r)) }

// StatRX returns the STAT_RX field.
func (r EPR) StatRX() Stat { return reg.Decode[Stat](eprStatRX, uint32(r)) }
