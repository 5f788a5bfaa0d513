// Package reg provides the register-field primitives shared by every
// peripheral accessor.
//
// A [Field] names a bit range inside a register and converts between an
// enumerated value and its in-register mask ([Encode], [Decode]). The
// [Toggle] function captures the write discipline of toggle-on-one fields:
// the bits to write are computed purely from the current register value and
// the desired target, so the formula is testable without hardware.
//
// # Example
//
//	statTX := reg.Field[uint32]{Shift: 4, Width: 2}
//	cur := epr.Get()
//	epr.Set(keep | reg.Toggle(cur, statTX.Put(valid), statTX.Mask()))
package reg
