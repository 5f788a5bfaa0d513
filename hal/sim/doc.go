// Package sim simulates the hardware collaborators of the USB controller on
// a host machine.
//
// [Peripheral] reproduces the register semantics the controller depends on:
// toggle-on-one STAT and DTOG bits, clear-on-zero CTR bits, read-only SETUP,
// an ISTR whose CTR/EP_ID fields follow the endpoint registers, and
// word-addressed packet memory. [Host] plays the bus side, moving SETUP, OUT
// and IN packets through packet memory and raising the matching flags.
//
// Everything runs on one goroutine. [CPU] delivers the USB interrupt
// synchronously whenever interrupts are unmasked and the peripheral has an
// unmasked flag raised, so an injected host packet is serviced before the
// injecting call returns unless the caller is inside a critical section.
//
//	sys := sim.New()
//	ctrl, _ := usb.New(usb.Platform{
//		Clock: sys.Clock, NVIC: sys.NVIC, SysCfg: sys.SysCfg,
//		CPU: sys.CPU, USB: sys.USB,
//	}, usb.DefaultConfig())
//	sys.AttachUSB(ctrl.ISR)
//	_ = ctrl.Init()
//	_ = sys.Host.Out(4, []byte("hello"))
package sim
