package script

import (
	"fmt"
	"slices"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/usb"
)

// Standard requests answered by Responder.
const (
	requestSetAddress       = 0x05
	requestGetDescriptor    = 0x06
	requestSetConfiguration = 0x09

	descriptorDevice = 0x01
)

// DeviceDescriptor is the descriptor a Responder returns by default:
// USB 2.0, CDC class, 32-byte EP0, VID 0483 PID 5740.
var DeviceDescriptor = []byte{
	0x12, 0x01, 0x00, 0x02, 0x02, 0x00, 0x00, 0x20,
	0x83, 0x04, 0x40, 0x57, 0x00, 0x02, 0x01, 0x02,
	0x03, 0x01,
}

// Responder is a minimal control handler for scenarios. It answers
// SET_ADDRESS, SET_CONFIGURATION and GET_DESCRIPTOR(device), accepts the
// data stage of any host-to-device request and stalls everything else.
type Responder struct {
	Device        []byte
	Configuration uint8
	Received      [][]byte
}

// NewResponder returns a responder serving DeviceDescriptor.
func NewResponder() *Responder {
	return &Responder{Device: DeviceDescriptor}
}

var _ usb.ControlHandler = (*Responder)(nil)

// HandleSetup implements usb.ControlHandler.
func (r *Responder) HandleSetup(c *usb.Controller, s *hal.SetupPacket) error {
	switch {
	case s.RequestType == 0x00 && s.Request == requestSetAddress:
		if err := c.SetAddress(uint8(s.Value)); err != nil {
			return err
		}
		return c.QueueControl(nil)

	case s.RequestType == 0x00 && s.Request == requestSetConfiguration:
		r.Configuration = uint8(s.Value)
		return c.QueueControl(nil)

	case s.RequestType == 0x80 && s.Request == requestGetDescriptor && s.Value>>8 == descriptorDevice:
		n := min(int(s.Length), len(r.Device))
		return c.QueueControl(r.Device[:n])

	case !s.IsDeviceToHost() && s.Length > 0:
		return nil
	}
	return fmt.Errorf("request %#02x type %#02x: %w", s.Request, s.RequestType, pkg.ErrNotSupported)
}

// HandleControlOut implements usb.ControlHandler. A zero-length packet is
// the status stage of an IN transfer and needs no answer.
func (r *Responder) HandleControlOut(c *usb.Controller, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	r.Received = append(r.Received, slices.Clone(data))
	return c.QueueControl(nil)
}
