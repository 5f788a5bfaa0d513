package sim

import (
	"fmt"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

// maxDispatch bounds back-to-back handler runs for one line. A handler that
// never clears its source would otherwise spin forever.
const maxDispatch = 256

type line struct {
	irq     hal.IRQ
	pending func() bool
	handler func()
}

// CPU simulates the core's interrupt masking. Interrupt lines are level
// triggered: while a line's source reports pending, its handler is run
// whenever interrupts are unmasked and the NVIC has the line enabled.
// Handlers never nest.
type CPU struct {
	nvic      *NVIC
	lines     []line
	masked    bool
	inHandler bool

	// Idle, if set, runs when WaitForInterrupt finds nothing to dispatch.
	// It stands in for the outside world (usually the host) making progress.
	Idle func()

	Nops       int // Nop calls
	WFIs       int // WaitForInterrupt calls
	Dispatched int // Handler runs
}

// NewCPU returns a CPU whose line enables come from nvic.
func NewCPU(nvic *NVIC) *CPU {
	return &CPU{nvic: nvic}
}

var _ hal.CPU = (*CPU)(nil)

// Attach routes irq to handler. pending reports the line level.
func (c *CPU) Attach(irq hal.IRQ, pending func() bool, handler func()) {
	c.lines = append(c.lines, line{irq: irq, pending: pending, handler: handler})
}

// DisableInterrupts masks interrupts and returns the previous mask.
func (c *CPU) DisableInterrupts() hal.InterruptState {
	var prev hal.InterruptState
	if c.masked {
		prev = 1
	}
	c.masked = true
	return prev
}

// RestoreInterrupts restores a mask returned by DisableInterrupts. Unmasking
// delivers any pending interrupt.
func (c *CPU) RestoreInterrupts(state hal.InterruptState) {
	c.masked = state != 0
	if !c.masked {
		c.Dispatch()
	}
}

// Masked reports whether interrupts are masked.
func (c *CPU) Masked() bool { return c.masked }

// Nop counts a no-op.
func (c *CPU) Nop() { c.Nops++ }

// WaitForInterrupt delivers pending interrupts, running Idle first if there
// are none.
func (c *CPU) WaitForInterrupt() {
	c.WFIs++
	if c.Dispatch() {
		return
	}
	if c.Idle != nil {
		c.Idle()
		c.Dispatch()
	}
}

// Dispatch runs handlers for every pending, enabled line and reports whether
// any ran. It does nothing while masked or inside a handler.
func (c *CPU) Dispatch() bool {
	if c.masked || c.inHandler {
		return false
	}
	ran := false
	for _, l := range c.lines {
		if !c.nvic.Enabled(l.irq) {
			continue
		}
		for n := 0; l.pending(); n++ {
			if n == maxDispatch {
				panic(fmt.Errorf("sim: irq %d still pending after %d handler runs: %w",
					l.irq, n, pkg.ErrInvalidState))
			}
			c.run(l)
			ran = true
		}
	}
	return ran
}

func (c *CPU) run(l line) {
	c.inHandler = true
	defer func() { c.inHandler = false }()
	c.Dispatched++
	l.handler()
}
