//go:build tinygo && stm32f0

package stm32f0

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"github.com/ardnew/f0usb/hal"
)

// RCC registers.
const (
	rccBase    uintptr = 0x40021000
	rccAPB2ENR         = 0x18
	rccAPB1ENR         = 0x1C
	rccCFGR3           = 0x30
	rccCR2             = 0x34

	apb2SYSCFGCOMPEN = 1 << 0
	apb1CRSEN        = 1 << 27
	apb1USBEN        = 1 << 23
	cfgr3USBSW       = 1 << 7
	cr2HSI48ON       = 1 << 16
	cr2HSI48RDY      = 1 << 17
)

// SYSCFG registers.
const (
	syscfgBase  uintptr = 0x40010000
	syscfgCFGR1         = 0x00
)

const irqUSB = 31

func rccReg(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(rccBase + offset))
}

// Clock drives RCC.
type Clock struct {
	source hal.Clock
}

var _ hal.ClockController = (*Clock)(nil)

// EnablePeripheral ungates p.
func (c *Clock) EnablePeripheral(p hal.Peripheral) {
	switch p {
	case hal.PeripheralSysCfgComp:
		rccReg(rccAPB2ENR).SetBits(apb2SYSCFGCOMPEN)
	case hal.PeripheralUSB:
		rccReg(rccAPB1ENR).SetBits(apb1USBEN)
	case hal.PeripheralCRS:
		rccReg(rccAPB1ENR).SetBits(apb1CRSEN)
	}
}

// DisablePeripheral gates p.
func (c *Clock) DisablePeripheral(p hal.Peripheral) {
	switch p {
	case hal.PeripheralSysCfgComp:
		rccReg(rccAPB2ENR).ClearBits(apb2SYSCFGCOMPEN)
	case hal.PeripheralUSB:
		rccReg(rccAPB1ENR).ClearBits(apb1USBEN)
	case hal.PeripheralCRS:
		rccReg(rccAPB1ENR).ClearBits(apb1CRSEN)
	}
}

// SetPLLSource selects src for the USB kernel clock. HSI48 is started and
// awaited first.
func (c *Clock) SetPLLSource(src hal.Clock) {
	if src == hal.ClockHSI48 {
		cr2 := rccReg(rccCR2)
		cr2.SetBits(cr2HSI48ON)
		for !cr2.HasBits(cr2HSI48RDY) {
		}
		rccReg(rccCFGR3).ClearBits(cfgr3USBSW)
	} else {
		rccReg(rccCFGR3).SetBits(cfgr3USBSW)
	}
	c.source = src
}

// SystemClockRate returns the core clock in Hz.
func (c *Clock) SystemClockRate() uint32 {
	if c.source == hal.ClockHSI48 {
		return 48_000_000
	}
	return 8_000_000
}

var usbHandler func()

func handleUSB(interrupt.Interrupt) {
	if usbHandler != nil {
		usbHandler()
	}
}

// AttachUSB routes the USB interrupt to isr.
func AttachUSB(isr func()) {
	usbHandler = isr
}

// NVIC drives the Cortex-M0 interrupt controller.
type NVIC struct {
	usb interrupt.Interrupt
}

// NewNVIC registers the USB interrupt vector.
func NewNVIC() *NVIC {
	return &NVIC{usb: interrupt.New(irqUSB, handleUSB)}
}

var _ hal.InterruptController = (*NVIC)(nil)

// EnableInterrupt enables irq.
func (n *NVIC) EnableInterrupt(irq hal.IRQ) {
	if irq == hal.IRQUSB {
		n.usb.Enable()
		return
	}
	arm.EnableIRQ(uint32(irq))
}

// SetPriority sets the priority of irq.
func (n *NVIC) SetPriority(level hal.Priority, irq hal.IRQ) {
	arm.SetPriority(uint32(irq), uint32(level))
}

// SysCfg drives SYSCFG.
type SysCfg struct{}

var _ hal.SystemConfig = SysCfg{}

// Remap sets the CFGR1 bit selecting r.
func (SysCfg) Remap(r hal.Remap) {
	cfgr1 := (*volatile.Register32)(unsafe.Pointer(syscfgBase + syscfgCFGR1))
	cfgr1.SetBits(1 << uint32(r))
}

// CPU exposes the core intrinsics.
type CPU struct{}

var _ hal.CPU = CPU{}

// DisableInterrupts masks interrupts.
func (CPU) DisableInterrupts() hal.InterruptState {
	return hal.InterruptState(interrupt.Disable())
}

// RestoreInterrupts restores a saved mask.
func (CPU) RestoreInterrupts(state hal.InterruptState) {
	interrupt.Restore(interrupt.State(state))
}

// Nop executes one no-op.
func (CPU) Nop() { arm.Asm("nop") }

// WaitForInterrupt sleeps until the next interrupt.
func (CPU) WaitForInterrupt() { arm.Asm("wfi") }
