package usb

import "github.com/ardnew/f0usb/reg"

// DADDR bits.
const (
	daddrADD = 0x7F   // Device address
	daddrEF  = 1 << 7 // Enable function
)

// DADDR is the device address register.
type DADDR struct {
	r reg.Register32
}

// SetAddress enables the function at address a.
func (d DADDR) SetAddress(a uint8) { d.r.Set(daddrEF | uint32(a)&daddrADD) }

// Address returns the programmed address.
func (d DADDR) Address() uint8 { return uint8(d.r.Get() & daddrADD) }

// Enabled reports EF.
func (d DADDR) Enabled() bool { return reg.HasBits(d.r, daddrEF) }

// Disable clears the address and EF.
func (d DADDR) Disable() { d.r.Set(0) }
