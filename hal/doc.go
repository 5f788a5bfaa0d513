// Package hal defines the hardware collaborators of the USB controller core.
//
// The controller in [github.com/ardnew/f0usb/usb] owns the protocol state;
// everything below it is reached through the interfaces declared here:
//
//   - [ClockController]: peripheral clock gating and USB clock selection (RCC)
//   - [InterruptController]: interrupt line enable and priority (NVIC)
//   - [SystemConfig]: pin remapping (SYSCFG)
//   - [CPU]: global interrupt masking, no-op and wait-for-interrupt
//   - [USB]: the device peripheral register block and its [PacketMemory]
//
// Two implementations exist. [github.com/ardnew/f0usb/hal/sim] simulates the
// collaborators on a host, including the peripheral's write semantics, and
// is used by tests and the f0usb CLI. [github.com/ardnew/f0usb/hal/stm32f0]
// maps the same interfaces onto an STM32F0x2 under TinyGo.
//
// # Implementing a backend
//
//  1. Hand out register cells that honour the EPnR and ISTR write semantics
//  2. Expose packet memory as little-endian 32-bit words
//  3. Make DisableInterrupts/RestoreInterrupts nestable
//  4. Route the USB interrupt line to the controller's ISR
package hal
