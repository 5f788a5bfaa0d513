package usb

import (
	"log/slog"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/reg"
)

// Endpoint is one endpoint slot: its EPnR register, its packet memory
// buffer and the soft flags shared between the ISR and mainline code.
type Endpoint struct {
	index   int
	epr     reg.Register32
	arena   *Arena
	buf     Offset
	maxSize int
	kind    Kind
	addr    uint8

	pending bool // completion not yet consumed by software
	flushed bool // last transmission was a short packet
}

func newEndpoint(index int, epr reg.Register32, arena *Arena, buf Offset, maxSize int, kind Kind, addr uint8) *Endpoint {
	return &Endpoint{
		index:   index,
		epr:     epr,
		arena:   arena,
		buf:     buf,
		maxSize: maxSize,
		kind:    kind,
		addr:    addr & 0x0F,
	}
}

// Index returns the slot index.
func (e *Endpoint) Index() int { return e.index }

// Kind returns the endpoint role.
func (e *Endpoint) Kind() Kind { return e.kind }

// Address returns the endpoint address written to EA.
func (e *Endpoint) Address() uint8 { return e.addr }

// MaxSize returns the buffer capacity in bytes.
func (e *Endpoint) MaxSize() int { return e.maxSize }

// Buffer returns the packet memory offset the endpoint currently copies to and from.
func (e *Endpoint) Buffer() Offset { return e.buf }

// SetBuffer rebinds the endpoint's buffer view.
func (e *Endpoint) SetBuffer(off Offset) { e.buf = off }

// Pending reports an unconsumed completion.
func (e *Endpoint) Pending() bool { return e.pending }

// SetPending sets the pending flag.
func (e *Endpoint) SetPending(v bool) { e.pending = v }

// Flushed reports whether the last transmission was a short packet.
func (e *Endpoint) Flushed() bool { return e.flushed }

// SetFlushed sets the flushed flag.
func (e *Endpoint) SetFlushed(v bool) { e.flushed = v }

// Snapshot returns the current register value.
func (e *Endpoint) Snapshot() EPR { return EPR(e.epr.Get()) }

// EprCtrRX reports CTR_RX.
func (e *Endpoint) EprCtrRX() bool { return e.Snapshot().CtrRX() }

// EprCtrTX reports CTR_TX.
func (e *Endpoint) EprCtrTX() bool { return e.Snapshot().CtrTX() }

// EprSetup reports SETUP.
func (e *Endpoint) EprSetup() bool { return e.Snapshot().Setup() }

// Init programs the register for the endpoint's role: address, type, and
// initial STAT_RX/STAT_TX. Data toggles and completion flags are reset.
// Isochronous endpoints are not supported.
func (e *Endpoint) Init() error {
	var (
		typ    EndpointType
		rx, tx Stat
	)
	switch e.kind {
	case KindControl:
		typ, rx, tx = TypeControl, StatValid, StatNak
	case KindInterrupt:
		typ, rx, tx = TypeInterrupt, StatDisabled, StatNak
	case KindInput:
		typ, rx, tx = TypeBulk, StatDisabled, StatNak
	case KindOutput:
		typ, rx, tx = TypeBulk, StatValid, StatDisabled
	case KindIsochronous:
		return pkg.Wrap(pkg.ErrNotSupported, "endpoint %d init: %s", e.index, e.kind)
	default:
		return pkg.Wrap(pkg.ErrInvalidKind, "endpoint %d init: kind %d", e.index, uint8(e.kind))
	}

	cur := e.epr.Get()
	w := eprEA.Put(uint32(e.addr)) | reg.Encode(eprType, typ)
	// Writing the current DTOG value back flips each set toggle to 0.
	w |= cur & (eprDtogRX | eprDtogTX)
	w |= reg.Toggle(cur, reg.Encode(eprStatRX, rx), eprStatRX.Mask())
	w |= reg.Toggle(cur, reg.Encode(eprStatTX, tx), eprStatTX.Mask())
	e.epr.Set(w)

	e.pending = false
	// Nothing is in flight, so the IN pipe starts out terminated.
	e.flushed = e.kind == KindInput

	pkg.Trace(slog.LevelDebug, pkg.ComponentEndpoint, "endpoint initialized",
		"slot", e.index,
		"kind", e.kind,
		"address", e.addr,
		"epr", pkg.Hex16(e.epr.Get()))
	return nil
}

// IsBusy reports whether the hardware still owns the buffer in the
// endpoint's data direction.
func (e *Endpoint) IsBusy() bool {
	s := e.Snapshot()
	switch e.kind {
	case KindControl, KindInput:
		return s.StatTX() == StatValid
	case KindOutput:
		return s.StatRX() == StatValid
	default:
		panic(pkg.Wrap(pkg.ErrInvalidKind, "endpoint %d busy check: %s", e.index, e.kind))
	}
}

// ClearRxTx acknowledges both completion flags, leaving every other field as is.
func (e *Endpoint) ClearRxTx() {
	cur := e.epr.Get()
	// Toggle bits written 0 stay put. CTR bits written 0 clear.
	e.epr.Set(cur & eprPreserve)
}

// SetStat moves STAT_TX and STAT_RX to the given targets. StatKeep leaves a
// field unchanged. Control endpoints govern both fields, Input and Interrupt
// endpoints only TX, and Output endpoints only RX; asking an endpoint to
// change a field it does not govern panics.
func (e *Endpoint) SetStat(tx, rx Stat) {
	switch e.kind {
	case KindControl:
	case KindInput, KindInterrupt:
		if rx != StatKeep {
			panic(pkg.Wrap(pkg.ErrInvalidKind, "endpoint %d set rx %s: %s", e.index, rx, e.kind))
		}
	case KindOutput:
		if tx != StatKeep {
			panic(pkg.Wrap(pkg.ErrInvalidKind, "endpoint %d set tx %s: %s", e.index, tx, e.kind))
		}
	default:
		panic(pkg.Wrap(pkg.ErrInvalidKind, "endpoint %d set stat: %s", e.index, e.kind))
	}

	cur := e.epr.Get()
	w := cur&eprPreserve | eprInvariant
	if tx != StatKeep {
		w |= reg.Toggle(cur, reg.Encode(eprStatTX, tx), eprStatTX.Mask())
	}
	if rx != StatKeep {
		w |= reg.Toggle(cur, reg.Encode(eprStatRX, rx), eprStatRX.Mask())
	}
	e.epr.Set(w)
}

// Stat returns the current STAT_TX and STAT_RX.
func (e *Endpoint) Stat() (tx, rx Stat) {
	s := e.Snapshot()
	return s.StatTX(), s.StatRX()
}

// SendData copies n bytes of src into the endpoint buffer, four bytes per
// little-endian word.
func (e *Endpoint) SendData(src []byte, n int) {
	e.checkCount("send", n, len(src))
	off := e.buf
	for i := 0; i < n; i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < n; j++ {
			w |= uint32(src[i+j]) << (8 * j)
		}
		e.arena.Store(off, w)
		off += 4
	}
}

// ReceiveData copies n bytes out of the endpoint buffer into dst.
func (e *Endpoint) ReceiveData(dst []byte, n int) {
	e.checkCount("receive", n, len(dst))
	off := e.buf
	for i := 0; i < n; i += 4 {
		w := e.arena.Load(off)
		for j := 0; j < 4 && i+j < n; j++ {
			dst[i+j] = byte(w >> (8 * j))
		}
		off += 4
	}
}

// Set writes b into the top byte of the first buffer word, clearing the rest.
func (e *Endpoint) Set(b byte) {
	e.arena.Store(e.buf, uint32(b)<<24)
}

func (e *Endpoint) checkCount(op string, n, have int) {
	if n < 0 || n > PacketSize || n > have || n > e.maxSize {
		panic(pkg.Wrap(pkg.ErrOutOfBounds, "endpoint %d %s %d bytes (buffer %d, max %d)",
			e.index, op, n, have, e.maxSize))
	}
}
