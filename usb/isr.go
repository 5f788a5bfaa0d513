package usb

import (
	"log/slog"

	"github.com/ardnew/f0usb/pkg"
)

// ISR services one USB interrupt cause. It must run from the USB interrupt
// line (or with interrupts masked) and runs to completion.
func (c *Controller) ISR() {
	cause := c.istr.Next()
	if cause.IsEndpoint() {
		c.endpointEvent(int(cause))
		return
	}

	switch cause {
	case CauseReset:
		c.busReset()
	case CauseSuspend:
		c.suspend()
	case CauseWakeup:
		c.wakeup()
	default:
		panic(pkg.Wrap(pkg.ErrUnknownInterrupt, "usb isr: cause %#x", uint8(cause)))
	}
}

func (c *Controller) endpointEvent(i int) {
	if i >= NumEndpoints {
		panic(pkg.Wrap(pkg.ErrInvalidEndpoint, "usb isr: slot %d", i))
	}
	ep := c.eps[i]

	// Snapshot first: the clear re-arms hardware and the next event may
	// land immediately after it.
	snap := ep.Snapshot()
	ep.ClearRxTx()

	pkg.Trace(slog.LevelDebug, pkg.ComponentISR, "endpoint event",
		"slot", i,
		"kind", ep.Kind(),
		"epr", pkg.Hex16(snap))

	switch ep.Kind() {
	case KindControl:
		if snap.CtrRX() {
			if snap.Setup() {
				c.ep0Receive |= EP0GotSetup
			} else {
				c.ep0Receive |= EP0GotRxData
			}
		}
		if snap.CtrTX() {
			c.ep0Receive |= EP0GotTxAck
		}
		if err := c.ep0Handle(); err != nil {
			pkg.Trace(slog.LevelWarn, pkg.ComponentEP0, "control transfer", "error", err)
		}

	case KindInterrupt:
		if snap.CtrTX() {
			ep.SetStat(StatNak, StatKeep)
		}

	case KindInput:
		if snap.CtrTX() {
			ep.SetPending(true)
		}

	case KindOutput:
		if snap.CtrRX() {
			ep.SetPending(true)
		}

	default:
		panic(pkg.Wrap(pkg.ErrInvalidKind, "usb isr: slot %d: %s", i, ep.Kind()))
	}
}

// busReset returns every endpoint to its initial state at address 0.
func (c *Controller) busReset() {
	c.initEndpoints()
	c.resetControl()
	c.resets++

	d := c.desc[0]
	d.SetCountTX(0)
	d.SetCountRX(d.CountRX() &^ CountRxMask)
	c.daddr.SetAddress(0)

	// A bus reset also ends suspend.
	if c.state == StateSuspended {
		c.cntr.Resume()
		c.state = StateEnabled
	}
	pkg.Trace(slog.LevelInfo, pkg.ComponentISR, "bus reset")
}

func (c *Controller) suspend() {
	c.cntr.Suspend()
	c.cntr.LowPower()
	c.state = StateSuspended
	pkg.Trace(slog.LevelDebug, pkg.ComponentISR, "suspended")
}

func (c *Controller) wakeup() {
	c.cntr.Resume()
	c.state = StateEnabled
	pkg.Trace(slog.LevelDebug, pkg.ComponentISR, "resumed")
}
