package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardnew/f0usb/pkg"
)

// PutChar appends b to the IN temp buffer, sending the buffer once it holds
// a full packet.
func (c *Controller) PutChar(ctx context.Context, b byte) error {
	if err := c.streamReady(c.in); err != nil {
		return err
	}
	size := c.eps[c.in].MaxSize()
	// A full buffer is left behind when an earlier Flush gave up.
	if c.txLen() >= size {
		if err := c.Flush(ctx); err != nil {
			return err
		}
	}

	var full bool
	c.critical(func() {
		c.txBuffer[c.txCount] = b
		c.txCount++
		full = c.txCount >= size
	})
	if full {
		return c.Flush(ctx)
	}
	return nil
}

// Flush hands the IN temp buffer to the hardware, waiting for the previous
// packet to drain first. A bus reset during the wait discards the buffer and
// returns pkg.ErrReset. A packet shorter than the endpoint size ends the
// transfer; flushing an empty buffer after a full packet sends a zero-length
// packet, and is a no-op otherwise.
func (c *Controller) Flush(ctx context.Context) error {
	if err := c.streamReady(c.in); err != nil {
		return err
	}
	ep := c.eps[c.in]
	if err := c.wait(ctx, func() bool { return !ep.IsBusy() }); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	c.critical(func() {
		n := c.txCount
		if n == 0 && ep.Flushed() {
			return
		}
		ep.SetPending(false)
		ep.SetFlushed(n < ep.MaxSize())
		ep.SendData(c.txBuffer[:], n)
		c.desc[c.in].SetCountTX(uint16(n))
		ep.SetStat(StatValid, StatKeep)
		c.txCount = 0

		pkg.LogDebug(pkg.ComponentStream, "packet queued",
			"slot", c.in,
			"bytes", n,
			"short", ep.Flushed())
	})
	return nil
}

// PollChar returns the next received byte without blocking. When the OUT
// temp buffer is drained and a packet has arrived, the packet is copied in
// and the endpoint re-armed.
func (c *Controller) PollChar() (byte, bool) {
	if c.out < 0 {
		return 0, false
	}
	var (
		b  byte
		ok bool
	)
	c.critical(func() {
		if c.rxPos < c.rxCount {
			b, ok = c.rxBuffer[c.rxPos], true
			c.rxPos++
			return
		}
		ep := c.eps[c.out]
		if !ep.Pending() {
			return
		}
		n := min(c.desc[c.out].RxBytes(), ep.MaxSize())
		ep.ReceiveData(c.rxBuffer[:], n)
		c.rxCount, c.rxPos = n, 0
		ep.SetPending(false)
		ep.SetStat(StatKeep, StatValid)

		pkg.LogDebug(pkg.ComponentStream, "packet received",
			"slot", c.out,
			"bytes", n)

		if n > 0 {
			b, ok = c.rxBuffer[0], true
			c.rxPos = 1
		}
	})
	return b, ok
}

// GetChar blocks until a byte is received or ctx is done.
func (c *Controller) GetChar(ctx context.Context) (byte, error) {
	if err := c.streamReady(c.out); err != nil {
		return 0, err
	}
	var b byte
	err := c.wait(ctx, func() bool {
		var ok bool
		b, ok = c.PollChar()
		return ok
	})
	if err != nil {
		return 0, fmt.Errorf("getchar: %w", err)
	}
	return b, nil
}

// Buffered returns the number of received bytes not yet consumed.
func (c *Controller) Buffered() int {
	var n int
	c.critical(func() { n = c.rxCount - c.rxPos })
	return n
}

func (c *Controller) txLen() int {
	var n int
	c.critical(func() { n = c.txCount })
	return n
}

func (c *Controller) streamReady(slot int) error {
	if slot < 0 {
		return fmt.Errorf("no bulk endpoint for stream: %w", pkg.ErrInvalidEndpoint)
	}
	if c.state != StateEnabled {
		return fmt.Errorf("stream in state %s: %w", c.state, pkg.ErrNotRunning)
	}
	return nil
}

// wait sleeps on WFI until done reports true or ctx ends. A bus reset while
// waiting abandons the wait with pkg.ErrReset.
func (c *Controller) wait(ctx context.Context, done func() bool) error {
	resets := c.resets
	for {
		if c.resets != resets {
			return pkg.ErrReset
		}
		if done() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}
		c.plat.CPU.WaitForInterrupt()
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", pkg.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", pkg.ErrCancelled, err)
}
