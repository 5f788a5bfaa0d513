package reg

// Register32 is a 32-bit memory-mapped register.
//
// TinyGo's *volatile.Register32 satisfies this interface, so hardware
// backends can hand out their register blocks directly.
type Register32 interface {
	Get() uint32
	Set(value uint32)
}

// Cell is a plain in-memory register. It has ordinary read/write semantics.
type Cell struct {
	Reg uint32
}

// Get returns the stored value.
func (c *Cell) Get() uint32 {
	return c.Reg
}

// Set stores value.
func (c *Cell) Set(value uint32) {
	c.Reg = value
}

// Toggle computes the bits to write into a toggle-on-one field so that the
// field ends up holding target. Only bits inside mask are returned.
//
// Writing 1 to a toggle bit flips it and writing 0 leaves it alone, so the
// required write is current XOR target.
func Toggle(current, target, mask uint32) uint32 {
	return (current ^ target) & mask
}

// SetBits sets mask bits with a read-modify-write.
func SetBits(r Register32, mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears mask bits with a read-modify-write.
func ClearBits(r Register32, mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether all mask bits are set.
func HasBits(r Register32, mask uint32) bool {
	return r.Get()&mask == mask
}
