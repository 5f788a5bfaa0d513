package reg

import "golang.org/x/exp/constraints"

// Field describes a contiguous bit field inside a register of type T.
type Field[T constraints.Unsigned] struct {
	Shift uint8 // Position of the least significant bit
	Width uint8 // Number of bits
}

// Bit returns the single-bit field at position n.
func Bit[T constraints.Unsigned](n uint8) Field[T] {
	return Field[T]{Shift: n, Width: 1}
}

// Mask returns the field's bits in register position.
func (f Field[T]) Mask() T {
	return (T(1)<<f.Width - 1) << f.Shift
}

// Get extracts the field value from register value r.
func (f Field[T]) Get(r T) T {
	return (r & f.Mask()) >> f.Shift
}

// Put positions v in the field. Bits of v wider than the field are dropped.
func (f Field[T]) Put(v T) T {
	return (v << f.Shift) & f.Mask()
}

// Replace returns r with the field set to v.
func (f Field[T]) Replace(r, v T) T {
	return r&^f.Mask() | f.Put(v)
}

// IsSet reports whether any bit of the field is set in r.
func (f Field[T]) IsSet(r T) bool {
	return r&f.Mask() != 0
}

// Encode produces the register mask for an enumerated field variant.
func Encode[V constraints.Unsigned, T constraints.Unsigned](f Field[T], variant V) T {
	return f.Put(T(variant))
}

// Decode recovers the enumerated variant held in register value r.
func Decode[V constraints.Unsigned, T constraints.Unsigned](f Field[T], r T) V {
	return V(f.Get(r))
}
