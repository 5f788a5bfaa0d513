package sim

import "github.com/ardnew/f0usb/hal"

// Clock rates reported by SystemClockRate.
const (
	RateHSI   = 8_000_000
	RateHSI48 = 48_000_000
)

// Clock records clock gating and source selection.
type Clock struct {
	enabled map[hal.Peripheral]bool
	source  hal.Clock
}

// NewClock returns a clock running from HSI with every peripheral gated.
func NewClock() *Clock {
	return &Clock{enabled: make(map[hal.Peripheral]bool), source: hal.ClockHSI}
}

var _ hal.ClockController = (*Clock)(nil)

// EnablePeripheral ungates p.
func (c *Clock) EnablePeripheral(p hal.Peripheral) { c.enabled[p] = true }

// DisablePeripheral gates p.
func (c *Clock) DisablePeripheral(p hal.Peripheral) { c.enabled[p] = false }

// Enabled reports whether p is ungated.
func (c *Clock) Enabled(p hal.Peripheral) bool { return c.enabled[p] }

// SetPLLSource selects src.
func (c *Clock) SetPLLSource(src hal.Clock) { c.source = src }

// PLLSource returns the selected source.
func (c *Clock) PLLSource() hal.Clock { return c.source }

// SystemClockRate returns 48 MHz once HSI48 is selected, 8 MHz otherwise.
func (c *Clock) SystemClockRate() uint32 {
	if c.source == hal.ClockHSI48 {
		return RateHSI48
	}
	return RateHSI
}

// NVIC records interrupt line enables and priorities.
type NVIC struct {
	enabled  map[hal.IRQ]bool
	priority map[hal.IRQ]hal.Priority
}

// NewNVIC returns an NVIC with every line disabled.
func NewNVIC() *NVIC {
	return &NVIC{
		enabled:  make(map[hal.IRQ]bool),
		priority: make(map[hal.IRQ]hal.Priority),
	}
}

var _ hal.InterruptController = (*NVIC)(nil)

// EnableInterrupt enables irq.
func (n *NVIC) EnableInterrupt(irq hal.IRQ) { n.enabled[irq] = true }

// DisableInterrupt disables irq.
func (n *NVIC) DisableInterrupt(irq hal.IRQ) { n.enabled[irq] = false }

// SetPriority records level for irq.
func (n *NVIC) SetPriority(level hal.Priority, irq hal.IRQ) { n.priority[irq] = level }

// Enabled reports whether irq is enabled.
func (n *NVIC) Enabled(irq hal.IRQ) bool { return n.enabled[irq] }

// Priority returns the recorded priority of irq.
func (n *NVIC) Priority(irq hal.IRQ) hal.Priority { return n.priority[irq] }

// SysCfg records pin remaps.
type SysCfg struct {
	remaps map[hal.Remap]bool
}

// NewSysCfg returns a SYSCFG with nothing remapped.
func NewSysCfg() *SysCfg {
	return &SysCfg{remaps: make(map[hal.Remap]bool)}
}

var _ hal.SystemConfig = (*SysCfg)(nil)

// Remap applies r.
func (s *SysCfg) Remap(r hal.Remap) { s.remaps[r] = true }

// Remapped reports whether r was applied.
func (s *SysCfg) Remapped(r hal.Remap) bool { return s.remaps[r] }
