// Package usb drives the STM32F0 USB full-speed device peripheral.
//
// A [Controller] is built once from a [Platform] of hardware collaborators
// and a [Config] describing the fixed endpoint layout. [New] carves the
// packet memory with a bump [Allocator]: the buffer descriptor table first,
// then two control-sized buffers for EP0 (receive and transmit views), then
// one buffer per remaining slot. Offsets never change afterwards.
//
// # Lifecycle
//
//	Uninitialized --Init--> Enabled --suspend irq--> Suspended
//	      ^                    |   <--wakeup irq---
//	      +------Disable-------+
//
// # Interrupts
//
// [Controller.ISR] must be attached to the USB interrupt line. Each call
// decodes one cause from ISTR. Endpoint causes snapshot the endpoint
// register before acknowledging it, then dispatch by role:
//
//   - Control: SETUP, OUT data and IN acknowledgement are collected into an
//     [EP0Event] mask and handled at once
//   - Interrupt: a completed IN re-arms TX as NAK
//   - Input: a completed IN marks the endpoint pending
//   - Output: a completed OUT marks the endpoint pending
//
// Device-level causes reset the endpoints (bus reset), or enter and leave
// suspend.
//
// # Register writes
//
// STAT and DTOG bits in EPnR flip when written with 1, and CTR bits clear
// when written with 0. Every endpoint write therefore starts from the
// preserved fields (address, type, kind), writes 1 to both CTR bits unless
// they are being acknowledged, and computes status changes with
// [github.com/ardnew/f0usb/reg.Toggle].
//
// # Byte stream
//
// [Controller.PutChar], [Controller.Flush], [Controller.PollChar] and
// [Controller.GetChar] move single bytes through the shared temp buffers.
// Blocking calls sleep on wait-for-interrupt and honour context
// cancellation, reporting [github.com/ardnew/f0usb/pkg.ErrTimeout] or
// [github.com/ardnew/f0usb/pkg.ErrCancelled].
//
// # Errors
//
// Configuration and register invariant violations panic with a wrapped
// sentinel from package pkg; they leave the hardware in an unknown state.
// Everything else returns an error.
package usb
