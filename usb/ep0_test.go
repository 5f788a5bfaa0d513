package usb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

const (
	reqSetAddress    = 0x05
	reqGetDescriptor = 0x06
)

func TestSetAddressDeferredUntilAck(t *testing.T) {
	c, sys := newEnabledController(t)
	c.SetControlHandler(&recorder{onSetup: func(c *Controller, s *hal.SetupPacket) error {
		if s.Request != reqSetAddress {
			return pkg.ErrNotSupported
		}
		if err := c.SetAddress(uint8(s.Value)); err != nil {
			return err
		}
		return c.QueueControl(nil)
	}})

	if err := sys.Host.Setup(0, [8]byte{0x00, reqSetAddress, 0x07}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if got := c.Address(); got != 0 {
		t.Errorf("Address() = %d before status stage, want 0", got)
	}

	status, err := sys.Host.In(0)
	if err != nil {
		t.Fatalf("In() error = %v", err)
	}
	if len(status) != 0 {
		t.Errorf("status stage = %d bytes, want 0", len(status))
	}
	if got := c.Address(); got != 7 {
		t.Errorf("Address() = %d after status stage, want 7", got)
	}
}

func TestControlInData(t *testing.T) {
	c, sys := newEnabledController(t)

	desc := make([]byte, 40)
	for i := range desc {
		desc[i] = byte(0xA0 + i)
	}
	c.SetControlHandler(&recorder{onSetup: func(c *Controller, s *hal.SetupPacket) error {
		return c.QueueControl(desc[:min(int(s.Length), len(desc))])
	}})

	if err := sys.Host.Setup(0, [8]byte{0x80, reqGetDescriptor, 0x00, 0x02, 0x00, 0x00, 0xFF, 0x00}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var got []byte
	for _, want := range []int{32, 8} {
		pkt, err := sys.Host.In(0)
		if err != nil {
			t.Fatalf("In() error = %v", err)
		}
		if len(pkt) != want {
			t.Errorf("packet = %d bytes, want %d", len(pkt), want)
		}
		got = append(got, pkt...)
	}
	if !bytes.Equal(got, desc) {
		t.Errorf("data stage = % x, want % x", got, desc)
	}
	if _, err := sys.Host.In(0); !errors.Is(err, pkg.ErrNAK) {
		t.Errorf("In() after short packet error = %v, want ErrNAK", err)
	}
}

func TestControlInExactMultiple(t *testing.T) {
	tests := []struct {
		name    string
		length  byte
		packets []int
	}{
		{"shorter than wLength", 0xFF, []int{32, 0}},
		{"equal to wLength", 32, []int{32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sys := newEnabledController(t)
			c.SetControlHandler(&recorder{onSetup: func(c *Controller, s *hal.SetupPacket) error {
				return c.QueueControl(make([]byte, 32))
			}})

			if err := sys.Host.Setup(0, [8]byte{0x80, reqGetDescriptor, 0x00, 0x02, 0x00, 0x00, tt.length, 0x00}); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			for _, want := range tt.packets {
				pkt, err := sys.Host.In(0)
				if err != nil {
					t.Fatalf("In() error = %v", err)
				}
				if len(pkt) != want {
					t.Errorf("packet = %d bytes, want %d", len(pkt), want)
				}
			}
			if _, err := sys.Host.In(0); !errors.Is(err, pkg.ErrNAK) {
				t.Errorf("In() after data stage error = %v, want ErrNAK", err)
			}
		})
	}
}

func TestQueueControlCopiesData(t *testing.T) {
	c, sys := newEnabledController(t)
	reply := []byte{1, 2, 3}
	c.SetControlHandler(&recorder{onSetup: func(c *Controller, s *hal.SetupPacket) error {
		err := c.QueueControl(reply)
		reply[0] = 0xEE
		return err
	}})

	if err := sys.Host.Setup(0, [8]byte{0x80, reqGetDescriptor, 0, 1, 0, 0, 0x40, 0}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	got, err := sys.Host.In(0)
	if err != nil {
		t.Fatalf("In() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("In() = % x, want 01 02 03", got)
	}
}

func TestQueueControlTooLarge(t *testing.T) {
	c, _ := newEnabledController(t)
	if err := c.QueueControl(make([]byte, MaxControlData+1)); !errors.Is(err, pkg.ErrOverrun) {
		t.Errorf("QueueControl() error = %v, want ErrOverrun", err)
	}
}

func TestSetupKeepsStreamData(t *testing.T) {
	c, sys := newEnabledController(t)

	if err := sys.Host.Out(4, []byte("abcd")); err != nil {
		t.Fatalf("Out() error = %v", err)
	}
	if b, ok := c.PollChar(); !ok || b != 'a' {
		t.Fatalf("PollChar() = %q, %v, want 'a', true", b, ok)
	}

	if err := sys.Host.Setup(0, [8]byte{0x80, reqGetDescriptor, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var got []byte
	for {
		b, ok := c.PollChar()
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "bcd" {
		t.Errorf("stream after SETUP = %q, want %q", got, "bcd")
	}
}

func TestControlOutDelivered(t *testing.T) {
	c, sys := newEnabledController(t)
	rec := &recorder{}
	c.SetControlHandler(rec)

	if err := sys.Host.Setup(0, [8]byte{0x21, 0x20, 0, 0, 0, 0, 3, 0}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := sys.Host.Out(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Out() error = %v", err)
	}

	if len(rec.outs) != 1 || !bytes.Equal(rec.outs[0], []byte{1, 2, 3}) {
		t.Errorf("HandleControlOut data = %v, want [[1 2 3]]", rec.outs)
	}
	if _, rx := c.Endpoint(0).Stat(); rx != StatValid {
		t.Errorf("EP0 STAT_RX = %s, want valid", rx)
	}
}

func TestControlOutWithoutHandler(t *testing.T) {
	c, _ := newEnabledController(t)

	c.ep0Receive = EP0GotRxData
	err := c.ep0Handle()
	if !errors.Is(err, pkg.ErrNotImplemented) {
		t.Errorf("ep0Handle() error = %v, want ErrNotImplemented", err)
	}
	if c.ep0Receive != 0 {
		t.Errorf("ep0Receive = %#x, want 0", c.ep0Receive)
	}
	if _, rx := c.Endpoint(0).Stat(); rx != StatValid {
		t.Errorf("EP0 STAT_RX = %s, want re-armed", rx)
	}
}

func TestSetupHandlerErrorStalls(t *testing.T) {
	c, sys := newEnabledController(t)
	c.SetControlHandler(&recorder{err: pkg.ErrNotSupported})

	if err := sys.Host.Setup(0, [8]byte{0x80, 0x33}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if tx, rx := c.Endpoint(0).Stat(); tx != StatStall || rx != StatStall {
		t.Errorf("EP0 Stat() = (%s, %s), want (stall, stall)", tx, rx)
	}
	if _, err := sys.Host.In(0); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("In() error = %v, want ErrStall", err)
	}

	// The next SETUP is still accepted and clears the stall.
	c.SetControlHandler(nil)
	if err := sys.Host.Setup(0, [8]byte{0x80, reqGetDescriptor}); err != nil {
		t.Fatalf("Setup() after stall error = %v", err)
	}
	if tx, rx := c.Endpoint(0).Stat(); tx != StatNak || rx != StatValid {
		t.Errorf("EP0 Stat() = (%s, %s), want (nak, valid)", tx, rx)
	}
}

func TestSetAddressRange(t *testing.T) {
	c, _ := newEnabledController(t)
	if err := c.SetAddress(128); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("SetAddress(128) error = %v, want ErrInvalidParameter", err)
	}
}

func TestQueueControlState(t *testing.T) {
	c, _ := newTestController(t, DefaultConfig())
	if err := c.QueueControl([]byte{1}); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("QueueControl() before Init error = %v, want ErrNotRunning", err)
	}

	c, _ = newEnabledController(t)
	if err := c.QueueControl([]byte{1}); err != nil {
		t.Fatalf("QueueControl() error = %v", err)
	}
	if err := c.QueueControl([]byte{2}); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("QueueControl() while busy error = %v, want ErrBusy", err)
	}
}
