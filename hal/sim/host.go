package sim

import (
	"fmt"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

// EPnR fields the host side reads and drives.
const (
	eprEA        = 0x000F
	eprStatTX    = 0x0030
	eprDtogTX    = 0x0040
	eprType      = 0x0600
	eprStatRX    = 0x3000
	eprDtogRX    = 0x4000
	eprTypeCtl   = 0x0200
	statShiftTX  = 4
	statShiftRX  = 12
	countRxMask  = 0x03FF
	countRxBlk   = 1 << 15
	countRxShift = 10
)

// STAT encodings.
const (
	statDisabled = 0
	statStall    = 1
	statNak      = 2
	statValid    = 3
)

// Host plays the bus host against a Peripheral: it moves data through
// packet memory the way the serial interface engine would, raises the
// matching flags and lets the CPU deliver the interrupt.
type Host struct {
	p   *Peripheral
	cpu *CPU
}

// NewHost returns a host driving p, delivering interrupts through cpu.
func NewHost(p *Peripheral, cpu *CPU) *Host {
	return &Host{p: p, cpu: cpu}
}

// Setup sends a SETUP packet to control endpoint ep. SETUP is accepted
// regardless of STAT_RX, as on hardware.
func (h *Host) Setup(ep uint8, pkt [hal.SetupPacketSize]byte) error {
	n, err := h.find(ep, eprStatRX, statShiftRX)
	if err != nil {
		return fmt.Errorf("setup ep%d: %w", ep, err)
	}
	r := &h.p.epr[n]
	if r.v&eprType != eprTypeCtl {
		return fmt.Errorf("setup ep%d: not a control endpoint: %w", ep, pkg.ErrInvalidEndpoint)
	}
	if err := h.receive(n, pkt[:]); err != nil {
		return fmt.Errorf("setup ep%d: %w", ep, err)
	}
	// Both directions NAK until software has looked at the request.
	r.v = r.v&^(eprStatRX|eprStatTX) | statNak<<statShiftRX | statNak<<statShiftTX
	r.v |= eprCtrRX | eprSetup | eprDtogTX
	r.v &^= eprDtogRX
	h.log("setup", n, len(pkt))
	h.cpu.Dispatch()
	return nil
}

// Out sends an OUT data packet to endpoint ep.
func (h *Host) Out(ep uint8, data []byte) error {
	n, err := h.find(ep, eprStatRX, statShiftRX)
	if err != nil {
		return fmt.Errorf("out ep%d: %w", ep, err)
	}
	r := &h.p.epr[n]
	if err := handshake(r.v, statShiftRX); err != nil {
		return fmt.Errorf("out ep%d: %w", ep, err)
	}
	if err := h.receive(n, data); err != nil {
		return fmt.Errorf("out ep%d: %w", ep, err)
	}
	r.v = r.v&^eprStatRX | statNak<<statShiftRX
	r.v ^= eprDtogRX
	r.v |= eprCtrRX
	h.log("out", n, len(data))
	h.cpu.Dispatch()
	return nil
}

// In requests an IN data packet from endpoint ep.
func (h *Host) In(ep uint8) ([]byte, error) {
	n, err := h.find(ep, eprStatTX, statShiftTX)
	if err != nil {
		return nil, fmt.Errorf("in ep%d: %w", ep, err)
	}
	r := &h.p.epr[n]
	if err := handshake(r.v, statShiftTX); err != nil {
		return nil, fmt.Errorf("in ep%d: %w", ep, err)
	}

	w := h.p.mem.Load(h.p.descriptorOffset(n))
	addr, count := uint16(w), int(w>>16)&countRxMask
	data := h.p.mem.Read(addr, count)

	r.v = r.v&^eprStatTX | statNak<<statShiftTX
	r.v ^= eprDtogTX
	r.v |= eprCtrTX
	h.log("in", n, count)
	h.cpu.Dispatch()
	return data, nil
}

// Reset drives a bus reset: endpoint registers and the address are cleared
// and the reset flag raised.
func (h *Host) Reset() {
	for i := range h.p.epr {
		h.p.epr[i].v = 0
	}
	h.p.daddr.Reg = 0
	h.raise(istrRESET, "reset")
}

// Suspend stops bus activity long enough to raise the suspend flag.
func (h *Host) Suspend() { h.raise(istrSUSP, "suspend") }

// Wakeup resumes bus activity.
func (h *Host) Wakeup() { h.raise(istrWKUP, "wakeup") }

func (h *Host) raise(flag uint32, what string) {
	h.p.istr.flags |= flag
	pkg.LogDebug(pkg.ComponentSim, what)
	h.cpu.Dispatch()
}

// find locates the slot whose EA is ep and whose field at shift is enabled.
func (h *Host) find(ep uint8, field uint32, shift int) (int, error) {
	if !h.p.Attached() {
		return 0, fmt.Errorf("device not attached: %w", pkg.ErrNotRunning)
	}
	for i := range h.p.epr {
		v := h.p.epr[i].v
		if uint8(v&eprEA) == ep&0x0F && (v&field)>>shift != statDisabled {
			return i, nil
		}
	}
	return 0, pkg.ErrInvalidEndpoint
}

// receive writes data into slot n's receive buffer and updates COUNTn_RX.
func (h *Host) receive(n int, data []byte) error {
	off := h.p.descriptorOffset(n) + 4
	w := h.p.mem.Load(off)
	addr, count := uint16(w), uint16(w>>16)

	if len(data) > capacity(count) {
		return fmt.Errorf("%d bytes into %d byte buffer: %w", len(data), capacity(count), pkg.ErrOverrun)
	}
	h.p.mem.Write(addr, data)
	count = count&^countRxMask | uint16(len(data))
	h.p.mem.Store(off, w&0xFFFF|uint32(count)<<16)
	return nil
}

func (h *Host) log(what string, slot, n int) {
	pkg.LogDebug(pkg.ComponentSim, what, "slot", slot, "bytes", n)
}

func capacity(count uint16) int {
	blocks := int(count>>countRxShift) & 0x1F
	if count&countRxBlk != 0 {
		return (blocks + 1) * 32
	}
	return blocks * 2
}

func handshake(v uint32, shift int) error {
	switch (v >> shift) & 3 {
	case statValid:
		return nil
	case statNak:
		return pkg.ErrNAK
	case statStall:
		return pkg.ErrStall
	default:
		return pkg.ErrInvalidEndpoint
	}
}
