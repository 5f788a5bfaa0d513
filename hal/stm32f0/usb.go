//go:build tinygo && stm32f0

package stm32f0

import (
	"runtime/volatile"
	"unsafe"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/reg"
)

// USB peripheral addresses.
const (
	usbBase uintptr = 0x40005C00
	pmaBase uintptr = 0x40006000
	pmaSize         = 1024
)

// USB device register offsets.
const (
	offsetEP0R   = 0x00 // Endpoint registers (stride 4)
	offsetCNTR   = 0x40 // Control
	offsetISTR   = 0x44 // Interrupt status
	offsetDADDR  = 0x4C // Device address
	offsetBTABLE = 0x50 // Buffer table address
	offsetLPMCSR = 0x54 // LPM control and status
	offsetBCDR   = 0x58 // Battery charging detector
)

func usbReg32(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(usbBase + offset))
}

// USB is the memory-mapped USB device peripheral.
type USB struct {
	mem PacketMemory
}

// NewUSB returns the peripheral.
func NewUSB() *USB {
	return &USB{}
}

var _ hal.USB = (*USB)(nil)

// EndpointRegister returns EPnR.
func (u *USB) EndpointRegister(n int) reg.Register32 {
	return usbReg32(offsetEP0R + uintptr(n)*4)
}

// CNTR returns the control register.
func (u *USB) CNTR() reg.Register32 { return usbReg32(offsetCNTR) }

// ISTR returns the interrupt status register.
func (u *USB) ISTR() reg.Register32 { return usbReg32(offsetISTR) }

// DADDR returns the device address register.
func (u *USB) DADDR() reg.Register32 { return usbReg32(offsetDADDR) }

// BTABLE returns the buffer table address register.
func (u *USB) BTABLE() reg.Register32 { return usbReg32(offsetBTABLE) }

// BCDR returns the battery charging detector register.
func (u *USB) BCDR() reg.Register32 { return usbReg32(offsetBCDR) }

// PacketMemory returns the packet memory.
func (u *USB) PacketMemory() hal.PacketMemory { return &u.mem }

// PacketMemory is the USB SRAM. The F0 maps it with 16-bit access, so each
// word is assembled from two half-word transfers.
type PacketMemory struct{}

var _ hal.PacketMemory = (*PacketMemory)(nil)

// Size returns the memory size in bytes.
func (PacketMemory) Size() int { return pmaSize }

// Load reads the word at off.
func (PacketMemory) Load(off uint16) uint32 {
	lo := pmaReg16(off).Get()
	hi := pmaReg16(off + 2).Get()
	return uint32(lo) | uint32(hi)<<16
}

// Store writes the word at off.
func (PacketMemory) Store(off uint16, value uint32) {
	pmaReg16(off).Set(uint16(value))
	pmaReg16(off + 2).Set(uint16(value >> 16))
}

func pmaReg16(off uint16) *volatile.Register16 {
	return (*volatile.Register16)(unsafe.Pointer(pmaBase + uintptr(off)))
}
