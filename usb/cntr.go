package usb

import "github.com/ardnew/f0usb/reg"

// CNTR bits.
const (
	cntrFRES   = 1 << 0  // Force USB reset
	cntrPDWN   = 1 << 1  // Power down
	cntrLPMode = 1 << 2  // Low-power mode
	cntrFSUSP  = 1 << 3  // Force suspend
	cntrResume = 1 << 4  // Resume request
	cntrRESETM = 1 << 10 // Reset interrupt mask
	cntrSUSPM  = 1 << 11 // Suspend interrupt mask
	cntrWKUPM  = 1 << 12 // Wakeup interrupt mask
	cntrCTRM   = 1 << 15 // Correct transfer interrupt mask
)

// CNTR is the device control register.
type CNTR struct {
	r reg.Register32
}

// ForceReset holds the peripheral in reset.
func (c CNTR) ForceReset() { reg.SetBits(c.r, cntrFRES) }

// Clear releases reset and power down and masks every interrupt.
func (c CNTR) Clear() { c.r.Set(0) }

// EnableInterrupts unmasks the transfer, reset, suspend and wakeup interrupts.
func (c CNTR) EnableInterrupts() {
	reg.SetBits(c.r, cntrCTRM|cntrRESETM|cntrSUSPM|cntrWKUPM)
}

// TurnOff masks every interrupt, holds reset and powers the transceiver down.
func (c CNTR) TurnOff() { c.r.Set(cntrFRES | cntrPDWN) }

// Suspend forces suspend mode.
func (c CNTR) Suspend() { reg.SetBits(c.r, cntrFSUSP) }

// LowPower enters low-power mode. Only valid after Suspend.
func (c CNTR) LowPower() { reg.SetBits(c.r, cntrLPMode) }

// Resume leaves suspend and low-power mode.
func (c CNTR) Resume() { reg.ClearBits(c.r, cntrFSUSP|cntrLPMode) }

// Suspended reports FSUSP.
func (c CNTR) Suspended() bool { return reg.HasBits(c.r, cntrFSUSP) }

// LowPowered reports LP_MODE.
func (c CNTR) LowPowered() bool { return reg.HasBits(c.r, cntrLPMode) }

// PoweredDown reports PDWN.
func (c CNTR) PoweredDown() bool { return reg.HasBits(c.r, cntrPDWN) }
