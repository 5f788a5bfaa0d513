package usb

import (
	"fmt"
	"strings"

	"github.com/ardnew/f0usb/hal"
	"github.com/ardnew/f0usb/pkg"
)

// Offset is a byte offset into packet memory, as the peripheral sees it.
type Offset uint16

// Arena is a bounds-checked view of the peripheral's packet memory.
// Every access must be word aligned and inside the memory; anything else
// panics, since the hardware layout is then unknown.
type Arena struct {
	mem hal.PacketMemory
}

// NewArena wraps mem.
func NewArena(mem hal.PacketMemory) *Arena {
	return &Arena{mem: mem}
}

// Size returns the packet memory size in bytes.
func (a *Arena) Size() int {
	return a.mem.Size()
}

// Load reads the word at off.
func (a *Arena) Load(off Offset) uint32 {
	a.check(off)
	return a.mem.Load(uint16(off))
}

// Store writes the word at off.
func (a *Arena) Store(off Offset, value uint32) {
	a.check(off)
	a.mem.Store(uint16(off), value)
}

// Bytes copies the whole packet memory out in byte order.
func (a *Arena) Bytes() []byte {
	out := make([]byte, a.Size())
	for off := 0; off+4 <= len(out); off += 4 {
		w := a.Load(Offset(off))
		out[off] = byte(w)
		out[off+1] = byte(w >> 8)
		out[off+2] = byte(w >> 16)
		out[off+3] = byte(w >> 24)
	}
	return out
}

func (a *Arena) check(off Offset) {
	if off&3 != 0 || int(off)+4 > a.mem.Size() {
		panic(pkg.Wrap(pkg.ErrOutOfBounds, "packet memory access at %#04x", uint16(off)))
	}
}

// Class is a buffer size class.
type Class uint8

// Buffer classes.
const (
	ClassControl Class = iota
	ClassInterrupt
	ClassBulk
)

// Size returns the class buffer size in bytes.
func (c Class) Size() int {
	switch c {
	case ClassControl:
		return 32
	case ClassInterrupt:
		return 8
	case ClassBulk:
		return 64
	default:
		panic(fmt.Errorf("buffer class %d: %w", c, pkg.ErrInvalidParameter))
	}
}

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassControl:
		return "control"
	case ClassInterrupt:
		return "interrupt"
	case ClassBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// ParseClass converts a class name as printed by [Class.String].
func ParseClass(name string) (Class, error) {
	for c := ClassControl; c <= ClassBulk; c++ {
		if strings.EqualFold(name, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("buffer class %q: %w", name, pkg.ErrInvalidParameter)
}

// Allocator is a bump allocator over packet memory. The position only moves
// forward and regions are never freed, so a region belongs to its endpoint
// for the controller's lifetime.
type Allocator struct {
	base  Offset
	pos   int
	limit int
}

// NewAllocator returns an allocator handing out [base, limit).
func NewAllocator(base Offset, limit int) *Allocator {
	return &Allocator{base: base, pos: int(base), limit: limit}
}

// Reserve claims n raw bytes, rounded up to a word, and returns their offset.
func (a *Allocator) Reserve(n int) Offset {
	return a.claim((n+3)&^3, "reserve")
}

// Allocate claims one buffer of class c and returns its offset.
func (a *Allocator) Allocate(c Class) Offset {
	return a.claim(c.Size(), c.String())
}

// Position returns the next offset to be handed out.
func (a *Allocator) Position() Offset {
	return Offset(a.pos)
}

// Used returns the number of bytes handed out.
func (a *Allocator) Used() int {
	return a.pos - int(a.base)
}

func (a *Allocator) claim(n int, what string) Offset {
	if a.pos+n > a.limit {
		panic(fmt.Errorf("allocate %s (%d bytes) at %#04x, limit %#04x: %w",
			what, n, a.pos, a.limit, pkg.ErrNoMemory))
	}
	off := Offset(a.pos)
	a.pos += n
	pkg.LogDebug(pkg.ComponentPMA, "allocated",
		"what", what,
		"offset", pkg.Hex16(off),
		"size", n)
	return off
}
