package usb

// DescriptorSize is the size of one buffer descriptor table entry.
const DescriptorSize = 8

// COUNTn_RX fields.
const (
	CountRxMask     = 0x03FF // Received byte count
	countRxBlSize   = 1 << 15
	countRxNumBlock = 10 // NUM_BLOCK shift
)

// EncodeRxCount returns the BL_SIZE/NUM_BLOCK encoding announcing a receive
// buffer of size bytes, with a zero byte count.
func EncodeRxCount(size int) uint16 {
	if size >= 32 && size%32 == 0 {
		return countRxBlSize | uint16(size/32-1)<<countRxNumBlock
	}
	return uint16((size+1)/2) << countRxNumBlock
}

// BufferDescriptor is a live view of one BTABLE entry in packet memory:
// ADDRn_TX, COUNTn_TX, ADDRn_RX, COUNTn_RX, 16 bits each.
type BufferDescriptor struct {
	arena *Arena
	off   Offset
}

// Offset returns the entry's location in packet memory.
func (d BufferDescriptor) Offset() Offset { return d.off }

// AddrTX returns ADDRn_TX.
func (d BufferDescriptor) AddrTX() Offset { return Offset(d.lo(0)) }

// SetAddrTX sets ADDRn_TX.
func (d BufferDescriptor) SetAddrTX(off Offset) { d.setLo(0, uint16(off)) }

// CountTX returns COUNTn_TX.
func (d BufferDescriptor) CountTX() uint16 { return d.hi(0) }

// SetCountTX sets COUNTn_TX.
func (d BufferDescriptor) SetCountTX(n uint16) { d.setHi(0, n) }

// AddrRX returns ADDRn_RX.
func (d BufferDescriptor) AddrRX() Offset { return Offset(d.lo(4)) }

// SetAddrRX sets ADDRn_RX.
func (d BufferDescriptor) SetAddrRX(off Offset) { d.setLo(4, uint16(off)) }

// CountRX returns the raw COUNTn_RX field, block encoding included.
func (d BufferDescriptor) CountRX() uint16 { return d.hi(4) }

// SetCountRX sets the raw COUNTn_RX field.
func (d BufferDescriptor) SetCountRX(n uint16) { d.setHi(4, n) }

// RxBytes returns the received byte count.
func (d BufferDescriptor) RxBytes() int { return int(d.CountRX() & CountRxMask) }

func (d BufferDescriptor) lo(word Offset) uint16 {
	return uint16(d.arena.Load(d.off + word))
}

func (d BufferDescriptor) hi(word Offset) uint16 {
	return uint16(d.arena.Load(d.off+word) >> 16)
}

func (d BufferDescriptor) setLo(word Offset, v uint16) {
	w := d.arena.Load(d.off + word)
	d.arena.Store(d.off+word, w&0xFFFF0000|uint32(v))
}

func (d BufferDescriptor) setHi(word Offset, v uint16) {
	w := d.arena.Load(d.off + word)
	d.arena.Store(d.off+word, w&0x0000FFFF|uint32(v)<<16)
}
