package usb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ardnew/f0usb/hal/sim"
	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/reg"
)

func newTestEndpoint(kind Kind, class Class, addr uint8) (*Endpoint, *sim.EndpointRegister, *Arena) {
	r := &sim.EndpointRegister{}
	arena := NewArena(&sim.Memory{})
	return newEndpoint(1, r, arena, 0x40, class.Size(), kind, addr), r, arena
}

func TestEndpointInit(t *testing.T) {
	tests := []struct {
		kind   Kind
		class  Class
		typ    EndpointType
		tx, rx Stat
	}{
		{KindControl, ClassControl, TypeControl, StatNak, StatValid},
		{KindInterrupt, ClassInterrupt, TypeInterrupt, StatNak, StatDisabled},
		{KindInput, ClassBulk, TypeBulk, StatNak, StatDisabled},
		{KindOutput, ClassBulk, TypeBulk, StatDisabled, StatValid},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ep, _, _ := newTestEndpoint(tt.kind, tt.class, 5)
			if err := ep.Init(); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			s := ep.Snapshot()
			if s.Type() != tt.typ {
				t.Errorf("Type() = %s, want %s", s.Type(), tt.typ)
			}
			if s.Address() != 5 {
				t.Errorf("Address() = %d, want 5", s.Address())
			}
			if s.StatTX() != tt.tx || s.StatRX() != tt.rx {
				t.Errorf("Stat() = (%s, %s), want (%s, %s)", s.StatTX(), s.StatRX(), tt.tx, tt.rx)
			}
			if uint32(s)&eprKind != 0 {
				t.Error("EP_KIND set after Init()")
			}
		})
	}
}

func TestEndpointInitIdempotent(t *testing.T) {
	for _, kind := range []Kind{KindControl, KindInterrupt, KindInput, KindOutput} {
		t.Run(kind.String(), func(t *testing.T) {
			ep, _, _ := newTestEndpoint(kind, ClassInterrupt, 9)
			if err := ep.Init(); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			first := ep.Snapshot()

			// Disturb the status fields between the two calls.
			switch kind {
			case KindOutput:
				ep.SetStat(StatKeep, StatStall)
			default:
				ep.SetStat(StatValid, StatKeep)
			}

			if err := ep.Init(); err != nil {
				t.Fatalf("second Init() error = %v", err)
			}
			second := ep.Snapshot()
			if second.Type() != first.Type() || second.Address() != first.Address() {
				t.Errorf("type/address changed: %s/%d -> %s/%d",
					first.Type(), first.Address(), second.Type(), second.Address())
			}
			if second != first {
				t.Errorf("register = %#04x, want %#04x", uint32(second), uint32(first))
			}
		})
	}
}

func TestEndpointInitResetsToggles(t *testing.T) {
	ep, r, _ := newTestEndpoint(KindOutput, ClassBulk, 2)
	r.Set(eprDtogRX | eprDtogTX)
	if r.Get()&(eprDtogRX|eprDtogTX) == 0 {
		t.Fatal("setup failed to set data toggles")
	}

	if err := ep.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if r.Get()&(eprDtogRX|eprDtogTX) != 0 {
		t.Errorf("data toggles = %#04x after Init(), want 0", r.Get())
	}
}

func TestEndpointInitUnsupported(t *testing.T) {
	ep, r, _ := newTestEndpoint(KindIsochronous, ClassBulk, 3)
	err := ep.Init()
	if !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Init() error = %v, want ErrNotSupported", err)
	}
	if r.Get() != 0 {
		t.Errorf("register = %#04x after failed Init(), want untouched", r.Get())
	}

	ep, _, _ = newTestEndpoint(Kind(42), ClassBulk, 3)
	if err := ep.Init(); !errors.Is(err, pkg.ErrInvalidKind) {
		t.Errorf("Init() error = %v, want ErrInvalidKind", err)
	}
}

func TestEndpointSetStatAllPairs(t *testing.T) {
	stats := []Stat{StatDisabled, StatStall, StatNak, StatValid}

	for _, cur := range stats {
		for _, target := range stats {
			t.Run(fmt.Sprintf("%s to %s", cur, target), func(t *testing.T) {
				ep, _, _ := newTestEndpoint(KindControl, ClassControl, 0)
				if err := ep.Init(); err != nil {
					t.Fatalf("Init() error = %v", err)
				}
				ep.SetStat(cur, cur)
				ep.SetStat(target, StatKeep)
				if tx, rx := ep.Stat(); tx != target || rx != cur {
					t.Errorf("after tx change Stat() = (%s, %s), want (%s, %s)", tx, rx, target, cur)
				}
				ep.SetStat(StatKeep, target)
				if tx, rx := ep.Stat(); tx != target || rx != target {
					t.Errorf("after rx change Stat() = (%s, %s), want (%s, %s)", tx, rx, target, target)
				}
				if s := ep.Snapshot(); s.Type() != TypeControl || s.Address() != 0 {
					t.Errorf("type/address = %s/%d, want control/0", s.Type(), s.Address())
				}
			})
		}
	}
}

func TestEndpointSetStatWrite(t *testing.T) {
	// A plain cell shows the raw word written.
	cell := &reg.Cell{Reg: eprCtrRX | eprCtrTX | eprDtogRX | 0x2000 | 0x0020 | 0x0200 | 0x0003}
	ep := newEndpoint(0, cell, NewArena(&sim.Memory{}), 0, 32, KindControl, 3)

	ep.SetStat(StatValid, StatKeep)

	w := cell.Reg
	if w&eprInvariant != eprInvariant {
		t.Errorf("write %#04x clears CTR bits", w)
	}
	if w&(eprDtogRX|eprDtogTX) != 0 {
		t.Errorf("write %#04x flips data toggles", w)
	}
	if got := w & eprStatTX.Mask(); got != 0x0010 {
		t.Errorf("STAT_TX bits written = %#04x, want 0x0010 (nak to valid)", got)
	}
	if w&eprStatRX.Mask() != 0 {
		t.Errorf("write %#04x touches STAT_RX", w)
	}
	if w&eprPreserve != 0x0203 {
		t.Errorf("preserved fields = %#04x, want 0x0203", w&eprPreserve)
	}
}

func TestEndpointSetStatGovernance(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		tx, rx Stat
	}{
		{"input rx", KindInput, StatKeep, StatValid},
		{"interrupt rx", KindInterrupt, StatKeep, StatNak},
		{"output tx", KindOutput, StatValid, StatKeep},
		{"isochronous", KindIsochronous, StatValid, StatKeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, _, _ := newTestEndpoint(tt.kind, ClassBulk, 1)
			expectPanic(t, pkg.ErrInvalidKind, func() { ep.SetStat(tt.tx, tt.rx) })
		})
	}

	ep, _, _ := newTestEndpoint(KindInterrupt, ClassInterrupt, 1)
	_ = ep.Init()
	ep.SetStat(StatValid, StatKeep)
	if tx, _ := ep.Stat(); tx != StatValid {
		t.Errorf("interrupt STAT_TX = %s, want valid", tx)
	}
}

func TestEndpointIsBusy(t *testing.T) {
	tests := []struct {
		kind   Kind
		tx, rx Stat
		want   bool
	}{
		{KindControl, StatValid, StatKeep, true},
		{KindControl, StatNak, StatValid, false},
		{KindInput, StatValid, StatKeep, true},
		{KindInput, StatNak, StatKeep, false},
		{KindOutput, StatKeep, StatValid, true},
		{KindOutput, StatKeep, StatNak, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s tx=%s rx=%s", tt.kind, tt.tx, tt.rx), func(t *testing.T) {
			ep, _, _ := newTestEndpoint(tt.kind, ClassBulk, 1)
			if err := ep.Init(); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			ep.SetStat(tt.tx, tt.rx)
			if got := ep.IsBusy(); got != tt.want {
				t.Errorf("IsBusy() = %v, want %v", got, tt.want)
			}
		})
	}

	for _, kind := range []Kind{KindInterrupt, KindIsochronous} {
		ep, _, _ := newTestEndpoint(kind, ClassBulk, 1)
		expectPanic(t, pkg.ErrInvalidKind, func() { ep.IsBusy() })
	}
}

func TestEndpointClearRxTx(t *testing.T) {
	cell := &reg.Cell{Reg: eprCtrRX | eprCtrTX | eprDtogRX | eprDtogTX | 0x3030 | eprKind | 0x0605}
	ep := newEndpoint(0, cell, NewArena(&sim.Memory{}), 0, 64, KindOutput, 5)

	ep.ClearRxTx()

	if want := uint32(eprKind | 0x0605); cell.Reg != want {
		t.Errorf("ClearRxTx() wrote %#04x, want %#04x", cell.Reg, want)
	}
}

func TestEndpointSendReceiveRoundTrip(t *testing.T) {
	for n := 0; n <= PacketSize; n++ {
		ep, _, _ := newTestEndpoint(KindOutput, ClassBulk, 4)

		src := make([]byte, n)
		for i := range src {
			src[i] = byte(i*37 + n)
		}
		ep.SendData(src, n)

		dst := make([]byte, PacketSize)
		ep.ReceiveData(dst, n)
		for i := 0; i < n; i++ {
			if dst[i] != src[i] {
				t.Fatalf("n=%d: byte %d = %#02x, want %#02x", n, i, dst[i], src[i])
			}
		}
	}
}

func TestEndpointSendDataLayout(t *testing.T) {
	ep, _, arena := newTestEndpoint(KindInput, ClassBulk, 5)
	ep.SendData([]byte{1, 2, 3, 4, 5, 6}, 6)

	if got := arena.Load(0x40); got != 0x04030201 {
		t.Errorf("word 0 = %#08x, want 0x04030201", got)
	}
	if got := arena.Load(0x44); got != 0x00000605 {
		t.Errorf("word 1 = %#08x, want 0x00000605", got)
	}
	if got := arena.Load(0x48); got != 0 {
		t.Errorf("word 2 = %#08x, want untouched", got)
	}
}

func TestEndpointDataBounds(t *testing.T) {
	buf := make([]byte, 2*PacketSize)

	bulk, _, _ := newTestEndpoint(KindOutput, ClassBulk, 4)
	expectPanic(t, pkg.ErrOutOfBounds, func() { bulk.SendData(buf, PacketSize+1) })
	expectPanic(t, pkg.ErrOutOfBounds, func() { bulk.ReceiveData(buf, PacketSize+1) })
	expectPanic(t, pkg.ErrOutOfBounds, func() { bulk.SendData(buf[:3], 4) })
	expectPanic(t, pkg.ErrOutOfBounds, func() { bulk.ReceiveData(buf, -1) })

	ctrl, _, _ := newTestEndpoint(KindControl, ClassControl, 0)
	expectPanic(t, pkg.ErrOutOfBounds, func() { ctrl.SendData(buf, 33) })
}

func TestEndpointSet(t *testing.T) {
	ep, _, arena := newTestEndpoint(KindControl, ClassControl, 0)
	arena.Store(0x40, 0xFFFFFFFF)
	ep.Set(0x80)
	if got := arena.Load(0x40); got != 0x80000000 {
		t.Errorf("Set(0x80) wrote %#08x, want 0x80000000", got)
	}
}

func TestEndpointFlags(t *testing.T) {
	ep, _, _ := newTestEndpoint(KindInput, ClassBulk, 5)
	ep.SetPending(true)
	ep.SetFlushed(false)
	if err := ep.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if ep.Pending() {
		t.Error("Pending() = true after Init()")
	}
	if !ep.Flushed() {
		t.Error("Flushed() = false after Init() on input endpoint")
	}

	ep.SetBuffer(0x80)
	if ep.Buffer() != 0x80 {
		t.Errorf("Buffer() = %#x, want 0x80", ep.Buffer())
	}
}
