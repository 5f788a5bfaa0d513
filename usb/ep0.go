package usb

import (
	"log/slog"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

// EP0Event is the set of control endpoint events awaiting handling.
type EP0Event uint8

// EP0 events.
const (
	EP0GotSetup  EP0Event = 1 << iota // SETUP packet received
	EP0GotRxData                      // OUT data stage packet received
	EP0GotTxAck                       // IN packet acknowledged by the host
)

// ControlHandler answers control requests above SETUP detection.
// Both methods run inside the ISR.
type ControlHandler interface {
	// HandleSetup is called after a SETUP packet has been received. The
	// handler answers through QueueControl, SetAddress or StallEP0. An error
	// stalls the control endpoint.
	HandleSetup(c *Controller, setup *hal.SetupPacket) error

	// HandleControlOut receives the payload of an OUT data stage packet.
	HandleControlOut(c *Controller, data []byte) error
}

// ep0Handle processes and clears every pending EP0 event. Every event is
// handled; the first error is returned.
func (c *Controller) ep0Handle() error {
	ev := c.ep0Receive
	c.ep0Receive = 0

	var err error
	if ev&EP0GotSetup != 0 {
		err = c.ep0SetupReceived()
	}
	if ev&EP0GotRxData != 0 {
		if e := c.ep0DataReceived(); err == nil {
			err = e
		}
	}
	if ev&EP0GotTxAck != 0 {
		if e := c.ep0TxAck(); err == nil {
			err = e
		}
	}
	return err
}

func (c *Controller) ep0SetupReceived() error {
	ep := c.eps[0]
	n := min(c.desc[0].RxBytes(), ep.MaxSize())

	ep.SetBuffer(c.ep0RX)
	ep.ReceiveData(c.ctrlRX[:], n)
	c.usbSetup = c.ctrlRX[0]
	if !hal.ParseSetupPacket(c.ctrlRX[:n], &c.setup) {
		c.setup = hal.SetupPacket{}
	}

	// A new SETUP aborts any control transfer in progress.
	c.ctrlQueue = c.ctrlQueue[:0]
	c.ctrlActive = false

	c.ep0Setup()

	pkg.Trace(slog.LevelDebug, pkg.ComponentEP0, "setup",
		"bytes", n,
		"requestType", pkg.Hex8(c.setup.RequestType),
		"request", pkg.Hex8(c.setup.Request),
		"value", pkg.Hex16(c.setup.Value),
		"length", c.setup.Length)

	if c.handler == nil {
		return nil
	}
	if err := c.handler.HandleSetup(c, &c.setup); err != nil {
		c.StallEP0()
		return pkg.Wrap(err, "setup request 0x%02X", c.setup.Request)
	}
	return nil
}

// ep0Setup stages the SETUP reply in EP0's transmit buffer and re-arms
// reception for the next stage.
func (c *Controller) ep0Setup() {
	ep := c.eps[0]
	d := c.desc[0]

	ep.SetBuffer(c.ep0TX)
	ep.Set(c.usbSetup)
	d.SetCountTX(SetupSize)

	n := min(d.RxBytes(), ep.MaxSize())
	ep.SendData(c.ctrlRX[:], n)

	ep.SetBuffer(c.ep0RX)
	ep.SetStat(StatKeep, StatValid)
}

func (c *Controller) ep0DataReceived() error {
	ep := c.eps[0]
	n := min(c.desc[0].RxBytes(), ep.MaxSize())

	ep.SetBuffer(c.ep0RX)
	ep.ReceiveData(c.ctrlRX[:], n)
	defer ep.SetStat(StatKeep, StatValid)

	if c.handler == nil {
		return pkg.Wrap(pkg.ErrNotImplemented, "control data stage (%d bytes)", n)
	}
	return c.handler.HandleControlOut(c, c.ctrlRX[:n])
}

func (c *Controller) ep0TxAck() error {
	if c.addrPending {
		c.daddr.SetAddress(c.pendingAddr)
		c.addrPending = false
		pkg.Trace(slog.LevelInfo, pkg.ComponentEP0, "address assigned", "address", c.pendingAddr)
	}
	return c.flushControl()
}

// SetAddress schedules a device address. The address takes effect once the
// host acknowledges the status stage of the current control transfer.
func (c *Controller) SetAddress(addr uint8) error {
	if addr > daddrADD {
		return pkg.Wrap(pkg.ErrInvalidParameter, "device address %d", addr)
	}
	c.critical(func() {
		c.pendingAddr = addr
		c.addrPending = true
	})
	return nil
}

// QueueControl queues data for the IN stage of the current control
// transfer. The data is copied, then sent in control-sized packets, one per
// host ACK; an empty queue sends a zero-length status packet. A reply that
// fills whole packets is terminated with a zero-length packet only when it
// is shorter than the host's wLength.
func (c *Controller) QueueControl(data []byte) error {
	if c.state == StateUninitialized {
		return pkg.Wrap(pkg.ErrNotRunning, "queue control")
	}
	if len(data) > MaxControlData {
		return pkg.Wrap(pkg.ErrOverrun, "queue control %d bytes", len(data))
	}
	var err error
	c.critical(func() {
		if c.eps[0].IsBusy() {
			err = pkg.Wrap(pkg.ErrBusy, "queue control")
			return
		}
		c.ctrlQueue = c.ctrlData[:copy(c.ctrlData[:], data)]
		c.ctrlZLP = len(data) < int(c.setup.Length)
		c.ctrlActive = true
		err = c.flushControl()
	})
	return err
}

// StallEP0 stalls both directions of the control endpoint. The next SETUP
// packet clears the stall.
func (c *Controller) StallEP0() {
	c.critical(func() {
		c.ctrlQueue = c.ctrlQueue[:0]
		c.ctrlActive = false
		c.eps[0].SetStat(StatStall, StatStall)
	})
	pkg.Trace(slog.LevelDebug, pkg.ComponentEP0, "stalled")
}

// flushControl sends the next queued control packet, if any.
func (c *Controller) flushControl() error {
	if !c.ctrlActive {
		return nil
	}
	ep := c.eps[0]
	n := min(len(c.ctrlQueue), ep.MaxSize())

	ep.SetBuffer(c.ep0TX)
	ep.SendData(c.ctrlQueue, n)
	ep.SetBuffer(c.ep0RX)
	c.desc[0].SetCountTX(uint16(n))
	ep.SetStat(StatValid, StatKeep)

	c.ctrlQueue = c.ctrlQueue[n:]
	// A short packet ends the data stage, as does the last full packet of a
	// reply the host asked for in its entirety.
	if n < ep.MaxSize() || (len(c.ctrlQueue) == 0 && !c.ctrlZLP) {
		c.ctrlActive = false
	}
	return nil
}
