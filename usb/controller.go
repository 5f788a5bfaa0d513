package usb

import (
	"fmt"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

// State is the device-level controller state.
type State uint8

// Controller states.
const (
	StateUninitialized State = iota
	StateEnabled
	StateSuspended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEnabled:
		return "enabled"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// EndpointConfig describes one endpoint slot.
type EndpointConfig struct {
	Address uint8 // EA field, 0-15
	Kind    Kind
	Class   Class
}

// Config holds controller configuration.
type Config struct {
	// Endpoints is the fixed slot layout. Slot 0 must be the control endpoint.
	Endpoints [NumEndpoints]EndpointConfig

	// SettleCycles is the number of no-ops executed between enabling
	// interrupts and connecting the pull-up.
	SettleCycles int

	// Priority is the USB interrupt priority.
	Priority hal.Priority
}

// DefaultConfig returns the standard layout: control EP0, an interrupt
// endpoint at address 1, bulk OUT at address 4 and bulk IN at address 5.
func DefaultConfig() Config {
	return Config{
		Endpoints: [NumEndpoints]EndpointConfig{
			{Address: 0, Kind: KindControl, Class: ClassControl},
			{Address: 1, Kind: KindInterrupt, Class: ClassInterrupt},
			{Address: 4, Kind: KindOutput, Class: ClassBulk},
			{Address: 5, Kind: KindInput, Class: ClassBulk},
		},
		SettleCycles: 1000,
		Priority:     hal.PriorityHigh,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Endpoints[0].Kind != KindControl || c.Endpoints[0].Class != ClassControl {
		return fmt.Errorf("slot 0 must be a control endpoint: %w", pkg.ErrInvalidParameter)
	}
	for i, ep := range c.Endpoints {
		if ep.Address > 0x0F {
			return fmt.Errorf("slot %d address %d: %w", i, ep.Address, pkg.ErrInvalidParameter)
		}
		if ep.Class > ClassBulk {
			return fmt.Errorf("slot %d class %d: %w", i, ep.Class, pkg.ErrInvalidParameter)
		}
		switch ep.Kind {
		case KindControl:
			if i != 0 {
				return fmt.Errorf("slot %d: only slot 0 may be control: %w", i, pkg.ErrInvalidParameter)
			}
		case KindInput, KindOutput, KindInterrupt:
		case KindIsochronous:
			return fmt.Errorf("slot %d: %s: %w", i, ep.Kind, pkg.ErrNotSupported)
		default:
			return fmt.Errorf("slot %d kind %d: %w", i, ep.Kind, pkg.ErrInvalidKind)
		}
	}
	if c.SettleCycles < 0 {
		return fmt.Errorf("settle cycles %d: %w", c.SettleCycles, pkg.ErrInvalidParameter)
	}
	return nil
}

// Platform bundles the hardware collaborators.
type Platform struct {
	Clock  hal.ClockController
	NVIC   hal.InterruptController
	SysCfg hal.SystemConfig
	CPU    hal.CPU
	USB    hal.USB
}

// Region is one packet memory allocation, in allocation order.
type Region struct {
	Name   string
	Offset Offset
	Size   int
}

// Controller owns the USB peripheral: endpoints, buffer descriptor table,
// packet memory allocator, device registers, and the temp buffers shared
// between the ISR and the byte-stream helpers.
//
// Mainline methods bracket shared-state mutation with a critical section;
// ISR must only be called from the USB interrupt.
type Controller struct {
	plat Platform
	cfg  Config

	arena  *Arena
	alloc  *Allocator
	btable Offset
	layout []Region
	ep0RX  Offset
	ep0TX  Offset

	eps  [NumEndpoints]*Endpoint
	desc [NumEndpoints]BufferDescriptor
	in   int // bulk IN slot, or -1
	out  int // bulk OUT slot, or -1

	cntr  CNTR
	istr  ISTR
	bcdr  BCDR
	daddr DADDR

	state State

	// Stream temp buffers, owned by mainline code.
	rxBuffer [PacketSize]byte
	rxCount  int
	rxPos    int
	txBuffer [PacketSize]byte
	txCount  int

	ep0Receive EP0Event
	usbSetup   byte
	setup      hal.SetupPacket
	ctrlRX     [PacketSize]byte

	handler     ControlHandler
	addrPending bool
	pendingAddr uint8
	ctrlData    [MaxControlData]byte
	ctrlQueue   []byte
	ctrlActive  bool
	ctrlZLP     bool

	resets uint32 // bus resets seen, for waits in progress
}

// New builds a controller on p. Packet memory is laid out immediately; the
// hardware is not touched until Init.
func New(p Platform, cfg Config) (*Controller, error) {
	if p.Clock == nil || p.NVIC == nil || p.SysCfg == nil || p.CPU == nil || p.USB == nil {
		return nil, fmt.Errorf("usb: incomplete platform: %w", pkg.ErrInvalidParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("usb: %w", err)
	}

	c := &Controller{
		plat:  p,
		cfg:   cfg,
		arena: NewArena(p.USB.PacketMemory()),
		cntr:  CNTR{p.USB.CNTR()},
		istr:  ISTR{p.USB.ISTR()},
		bcdr:  BCDR{p.USB.BCDR()},
		daddr: DADDR{p.USB.DADDR()},
		in:    -1,
		out:   -1,
	}
	c.alloc = NewAllocator(0, c.arena.Size())

	c.btable = c.alloc.Reserve(NumEndpoints * DescriptorSize)
	c.layout = append(c.layout, Region{"btable", c.btable, NumEndpoints * DescriptorSize})

	for i, ec := range cfg.Endpoints {
		var buf Offset
		if i == 0 {
			c.ep0RX = c.alloc.Allocate(ClassControl)
			c.ep0TX = c.alloc.Allocate(ClassControl)
			c.layout = append(c.layout,
				Region{"ep0 rx", c.ep0RX, ClassControl.Size()},
				Region{"ep0 tx", c.ep0TX, ClassControl.Size()})
			buf = c.ep0RX
		} else {
			buf = c.alloc.Allocate(ec.Class)
			c.layout = append(c.layout,
				Region{fmt.Sprintf("ep%d %s", i, ec.Kind), buf, ec.Class.Size()})
		}

		c.eps[i] = newEndpoint(i, p.USB.EndpointRegister(i), c.arena, buf, ec.Class.Size(), ec.Kind, ec.Address)
		c.desc[i] = BufferDescriptor{arena: c.arena, off: c.btable + Offset(i*DescriptorSize)}

		switch {
		case ec.Kind == KindInput && c.in < 0:
			c.in = i
		case ec.Kind == KindOutput && c.out < 0:
			c.out = i
		}
	}

	pkg.LogDebug(pkg.ComponentController, "controller created",
		"packetMemory", c.arena.Size(),
		"used", c.alloc.Used())
	return c, nil
}

// State returns the device state.
func (c *Controller) State() State { return c.state }

// Endpoint returns the endpoint in slot i.
func (c *Controller) Endpoint(i int) *Endpoint { return c.eps[i] }

// Descriptor returns the buffer descriptor of slot i.
func (c *Controller) Descriptor(i int) BufferDescriptor { return c.desc[i] }

// Arena returns the packet memory view.
func (c *Controller) Arena() *Arena { return c.arena }

// Layout returns the packet memory allocations in order.
func (c *Controller) Layout() []Region { return c.layout }

// Address returns the device address currently programmed in hardware.
func (c *Controller) Address() uint8 { return c.daddr.Address() }

// Setup returns the last SETUP packet received on EP0.
func (c *Controller) Setup() hal.SetupPacket { return c.setup }

// SetControlHandler installs the handler for EP0 requests.
func (c *Controller) SetControlHandler(h ControlHandler) {
	c.critical(func() { c.handler = h })
}

// Init brings the peripheral up and connects to the bus.
func (c *Controller) Init() error {
	if c.state != StateUninitialized {
		return fmt.Errorf("usb init: %w", pkg.ErrAlreadyRunning)
	}

	clk := c.plat.Clock
	clk.EnablePeripheral(hal.PeripheralSysCfgComp)
	c.plat.SysCfg.Remap(hal.RemapPA11PA12)
	clk.SetPLLSource(hal.ClockHSI48)
	clk.EnablePeripheral(hal.PeripheralUSB)

	// Pulse the pull-up so a host that saw a previous session drops it.
	c.bcdr.EnablePullup()
	c.bcdr.DisablePullup()

	c.critical(func() {
		c.plat.NVIC.EnableInterrupt(hal.IRQUSB)
		c.plat.NVIC.SetPriority(c.cfg.Priority, hal.IRQUSB)

		c.cntr.ForceReset()
		c.cntr.Clear()

		c.plat.USB.BTABLE().Set(uint32(c.btable))
		c.writeBTable()
		c.initEndpoints()
		c.resetControl()

		c.daddr.SetAddress(0)
		c.istr.Clear()
		c.cntr.EnableInterrupts()
		c.state = StateEnabled
	})

	for i := 0; i < c.cfg.SettleCycles; i++ {
		c.plat.CPU.Nop()
	}
	c.bcdr.EnablePullup()

	pkg.LogInfo(pkg.ComponentController, "usb enabled",
		"sysclk", clk.SystemClockRate(),
		"btable", pkg.Hex16(c.btable))
	return nil
}

// Disable disconnects from the bus and powers the peripheral down.
func (c *Controller) Disable() error {
	if c.state == StateUninitialized {
		return fmt.Errorf("usb disable: %w", pkg.ErrNotRunning)
	}
	c.critical(func() {
		c.cntr.ForceReset()
		c.istr.Clear()
		c.bcdr.DisablePullup()
		c.cntr.TurnOff()
		c.plat.Clock.DisablePeripheral(hal.PeripheralUSB)
		c.state = StateUninitialized
	})
	pkg.LogInfo(pkg.ComponentController, "usb disabled")
	return nil
}

func (c *Controller) critical(fn func()) {
	state := c.plat.CPU.DisableInterrupts()
	defer c.plat.CPU.RestoreInterrupts(state)
	fn()
}

// writeBTable fills the descriptor table from the allocator's bookkeeping.
func (c *Controller) writeBTable() {
	for i, ep := range c.eps {
		d := c.desc[i]
		switch {
		case i == 0:
			d.SetAddrTX(c.ep0TX)
			d.SetCountTX(0)
			d.SetAddrRX(c.ep0RX)
			d.SetCountRX(EncodeRxCount(ClassControl.Size()))
		case ep.Kind() == KindOutput:
			d.SetAddrTX(0)
			d.SetCountTX(0)
			d.SetAddrRX(ep.Buffer())
			d.SetCountRX(EncodeRxCount(ep.MaxSize()))
		default:
			d.SetAddrTX(ep.Buffer())
			d.SetCountTX(0)
			d.SetAddrRX(0)
			d.SetCountRX(0)
		}
	}
}

// initEndpoints programs every endpoint register. An endpoint refusing its
// role leaves the hardware half configured, which is fatal.
func (c *Controller) initEndpoints() {
	for _, ep := range c.eps {
		if err := ep.Init(); err != nil {
			panic(pkg.Wrap(err, "usb"))
		}
	}
	c.eps[0].SetBuffer(c.ep0RX)
}

// resetControl drops EP0 transfer state and the stream temp buffers.
func (c *Controller) resetControl() {
	c.ep0Receive = 0
	c.addrPending = false
	c.ctrlQueue = c.ctrlQueue[:0]
	c.ctrlActive = false
	c.ctrlZLP = false
	c.rxCount, c.rxPos, c.txCount = 0, 0, 0
}
