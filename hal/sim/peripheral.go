package sim

import (
	"fmt"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/reg"
)

// PacketMemorySize is the STM32F0x2 USB packet memory size.
const PacketMemorySize = 1024

// EPnR bits as the hardware treats them on write.
const (
	eprRW     = 0x000F | 0x0100 | 0x0600 // EA | EP_KIND | EP_TYPE
	eprToggle = 0x0030 | 0x0040 | 0x3000 | 0x4000
	eprCtrTX  = 1 << 7
	eprSetup  = 1 << 11
	eprCtrRX  = 1 << 15
	eprCtr    = eprCtrRX | eprCtrTX
)

// ISTR bits.
const (
	istrEPID   = 0x000F
	istrDIR    = 1 << 4
	istrRESET  = 1 << 10
	istrSUSP   = 1 << 11
	istrWKUP   = 1 << 12
	istrCTR    = 1 << 15
	istrDevice = istrRESET | istrSUSP | istrWKUP
)

// Other device register bits the simulation reacts to.
const (
	cntrFRES = 1 << 0
	cntrPDWN = 1 << 1
	cntrMask = istrCTR | istrDevice // CTRM, RESETM, SUSPM, WKUPM share ISTR positions
	bcdrDPPU = 1 << 15
)

// EndpointRegister is an EPnR with hardware write semantics: EA, EP_TYPE and
// EP_KIND are plain read/write, STAT and DTOG bits flip on 1, CTR bits are
// cleared by 0 and kept by 1, and SETUP is read only.
type EndpointRegister struct {
	v uint32
}

var _ reg.Register32 = (*EndpointRegister)(nil)

// Get returns the register value.
func (r *EndpointRegister) Get() uint32 { return r.v }

// Set applies a software write.
func (r *EndpointRegister) Set(w uint32) {
	next := w&eprRW | (r.v^w)&eprToggle | r.v&w&eprCtr | r.v&eprSetup
	if next&eprCtrRX == 0 {
		next &^= eprSetup
	}
	r.v = next
}

// ISTRRegister computes CTR, DIR and EP_ID from the endpoint registers and
// keeps the device-level flags, which software clears by writing 0.
type ISTRRegister struct {
	p     *Peripheral
	flags uint32
}

var _ reg.Register32 = (*ISTRRegister)(nil)

// Get returns the register value.
func (r *ISTRRegister) Get() uint32 {
	v := r.flags
	for i := range r.p.epr {
		e := r.p.epr[i].v
		if e&eprCtr == 0 {
			continue
		}
		v |= istrCTR | uint32(i)
		if e&eprCtrRX != 0 {
			v |= istrDIR
		}
		break
	}
	return v
}

// Set applies a software write.
func (r *ISTRRegister) Set(w uint32) { r.flags &= w & istrDevice }

// Memory is packet memory backed by words.
type Memory struct {
	words [PacketMemorySize / 4]uint32
}

var _ hal.PacketMemory = (*Memory)(nil)

// Size returns the memory size in bytes.
func (m *Memory) Size() int { return PacketMemorySize }

// Load reads a word.
func (m *Memory) Load(off uint16) uint32 { return m.words[m.index(off)] }

// Store writes a word.
func (m *Memory) Store(off uint16, value uint32) { m.words[m.index(off)] = value }

func (m *Memory) index(off uint16) int {
	if off&3 != 0 || int(off) >= PacketMemorySize {
		panic(fmt.Errorf("sim: packet memory offset %#04x: %w", off, pkg.ErrOutOfBounds))
	}
	return int(off) / 4
}

// Read copies n bytes starting at byte offset off.
func (m *Memory) Read(off uint16, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		w := m.Load((off + uint16(i)) &^ 3)
		out[i] = byte(w >> (8 * ((off + uint16(i)) & 3)))
	}
	return out
}

// Write copies data starting at byte offset off.
func (m *Memory) Write(off uint16, data []byte) {
	for i, b := range data {
		at := off + uint16(i)
		shift := 8 * (at & 3)
		w := m.Load(at &^ 3)
		m.Store(at&^3, w&^(0xFF<<shift)|uint32(b)<<shift)
	}
}

// Peripheral is a simulated USB device peripheral.
type Peripheral struct {
	epr    [hal.NumEndpointRegisters]EndpointRegister
	istr   ISTRRegister
	cntr   reg.Cell
	daddr  reg.Cell
	btable reg.Cell
	bcdr   reg.Cell
	mem    Memory
}

// NewPeripheral returns a peripheral in its reset state.
func NewPeripheral() *Peripheral {
	p := &Peripheral{}
	p.istr.p = p
	p.cntr.Reg = cntrFRES | cntrPDWN
	return p
}

var _ hal.USB = (*Peripheral)(nil)

// EndpointRegister returns EPnR.
func (p *Peripheral) EndpointRegister(n int) reg.Register32 { return &p.epr[n] }

// CNTR returns the control register.
func (p *Peripheral) CNTR() reg.Register32 { return &p.cntr }

// ISTR returns the interrupt status register.
func (p *Peripheral) ISTR() reg.Register32 { return &p.istr }

// DADDR returns the device address register.
func (p *Peripheral) DADDR() reg.Register32 { return &p.daddr }

// BTABLE returns the buffer table address register.
func (p *Peripheral) BTABLE() reg.Register32 { return &p.btable }

// BCDR returns the battery charging detector register.
func (p *Peripheral) BCDR() reg.Register32 { return &p.bcdr }

// PacketMemory returns the packet memory.
func (p *Peripheral) PacketMemory() hal.PacketMemory { return &p.mem }

// Memory returns the packet memory with byte access.
func (p *Peripheral) Memory() *Memory { return &p.mem }

// Pending reports whether an unmasked interrupt flag is raised.
func (p *Peripheral) Pending() bool {
	return p.istr.Get()&p.cntr.Reg&cntrMask != 0
}

// Attached reports whether the device is powered and signalling presence.
func (p *Peripheral) Attached() bool {
	return p.cntr.Reg&(cntrFRES|cntrPDWN) == 0 && p.bcdr.Reg&bcdrDPPU != 0
}

// EPR returns the raw value of EPnR.
func (p *Peripheral) EPR(n int) uint32 { return p.epr[n].v }

// descriptorOffset returns the packet memory offset of slot n's BTABLE entry.
func (p *Peripheral) descriptorOffset(n int) uint16 {
	return uint16(p.btable.Reg&0xFFF8) + uint16(n)*8
}
