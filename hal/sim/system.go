package sim

import "github.com/ardnew/f0usb/hal"

// System bundles a complete simulated target: core, clock tree, NVIC,
// SYSCFG, the USB peripheral and a host attached to its bus.
type System struct {
	CPU    *CPU
	Clock  *Clock
	NVIC   *NVIC
	SysCfg *SysCfg
	USB    *Peripheral
	Host   *Host
}

// New returns a system in its power-on state.
func New() *System {
	nvic := NewNVIC()
	cpu := NewCPU(nvic)
	usb := NewPeripheral()
	return &System{
		CPU:    cpu,
		Clock:  NewClock(),
		NVIC:   nvic,
		SysCfg: NewSysCfg(),
		USB:    usb,
		Host:   NewHost(usb, cpu),
	}
}

// AttachUSB routes the USB interrupt line to isr.
func (s *System) AttachUSB(isr func()) {
	s.CPU.Attach(hal.IRQUSB, s.USB.Pending, isr)
}
