package hal

import "github.com/ardnew/f0usb/reg"

// Peripheral names a clock-gated peripheral.
type Peripheral uint8

// Peripherals used by the USB controller.
const (
	PeripheralSysCfgComp Peripheral = iota // SYSCFG and comparators
	PeripheralUSB                          // USB full-speed device
	PeripheralCRS                          // Clock recovery system
)

// String returns the peripheral name.
func (p Peripheral) String() string {
	switch p {
	case PeripheralSysCfgComp:
		return "SYSCFGCOMP"
	case PeripheralUSB:
		return "USB"
	case PeripheralCRS:
		return "CRS"
	default:
		return "unknown"
	}
}

// Clock names a clock source.
type Clock uint8

// Clock sources.
const (
	ClockHSI   Clock = iota // 8 MHz internal RC
	ClockHSE                // External crystal
	ClockHSI48              // 48 MHz internal RC (USB capable)
	ClockPLL                // Phase-locked loop output
)

// String returns the clock name.
func (c Clock) String() string {
	switch c {
	case ClockHSI:
		return "HSI"
	case ClockHSE:
		return "HSE"
	case ClockHSI48:
		return "HSI48"
	case ClockPLL:
		return "PLL"
	default:
		return "unknown"
	}
}

// IRQ is an NVIC interrupt line.
type IRQ uint8

// IRQUSB is the USB global interrupt line on STM32F0x2.
const IRQUSB IRQ = 31

// Priority is an interrupt priority level. Lower values preempt higher ones.
type Priority uint8

// Cortex-M0 implements the top two priority bits.
const (
	PriorityHighest Priority = 0x00
	PriorityHigh    Priority = 0x40
	PriorityLow     Priority = 0x80
	PriorityLowest  Priority = 0xC0
)

// Remap names a SYSCFG pin remapping.
type Remap uint8

// RemapPA11PA12 maps PA11/PA12 in place of PA9/PA10 (USB DM/DP on small packages).
const RemapPA11PA12 Remap = 4

// ClockController is the clock/reset collaborator (RCC).
type ClockController interface {
	// EnablePeripheral ungates the named peripheral's clock.
	EnablePeripheral(p Peripheral)

	// DisablePeripheral gates the named peripheral's clock.
	DisablePeripheral(p Peripheral)

	// SetPLLSource selects the clock feeding the PLL and the USB kernel.
	SetPLLSource(c Clock)

	// SystemClockRate returns the current system clock in Hz.
	SystemClockRate() uint32
}

// InterruptController is the NVIC collaborator.
type InterruptController interface {
	EnableInterrupt(irq IRQ)
	SetPriority(level Priority, irq IRQ)
}

// SystemConfig is the SYSCFG collaborator.
type SystemConfig interface {
	Remap(r Remap)
}

// InterruptState is the saved global interrupt mask.
type InterruptState uintptr

// CPU exposes the core intrinsics used to build critical sections.
//
// DisableInterrupts and RestoreInterrupts nest: a section opened while
// interrupts are already masked restores the masked state on exit.
type CPU interface {
	DisableInterrupts() InterruptState
	RestoreInterrupts(state InterruptState)
	Nop()
	WaitForInterrupt()
}

// PacketMemory is the USB peripheral's dedicated buffer SRAM, viewed as
// little-endian 32-bit words addressed by byte offset.
type PacketMemory interface {
	// Size returns the memory size in bytes.
	Size() int

	// Load reads the word at byte offset off (4-byte aligned).
	Load(off uint16) uint32

	// Store writes the word at byte offset off (4-byte aligned).
	Store(off uint16, value uint32)
}

// NumEndpointRegisters is the number of EPnR registers in the peripheral.
const NumEndpointRegisters = 8

// USB is the register block of the USB full-speed device peripheral.
type USB interface {
	// EndpointRegister returns EPnR for n in [0, NumEndpointRegisters).
	EndpointRegister(n int) reg.Register32
	CNTR() reg.Register32
	ISTR() reg.Register32
	DADDR() reg.Register32
	BTABLE() reg.Register32
	BCDR() reg.Register32
	PacketMemory() PacketMemory
}

// SetupPacket represents a USB SETUP packet in the HAL layer.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsDeviceToHost reports whether the data stage flows to the host.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&0x80 != 0
}
