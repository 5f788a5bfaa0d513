package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/ardnew/f0usb/pkg"
)

// PacketMemoryBase is the CPU address of USB packet memory.
const PacketMemoryBase = 0x40006000

// writeHex writes data at base as Intel HEX records of line bytes each.
func writeHex(w io.Writer, base uint32, data []byte, line int) error {
	if line < 1 || line > 255 {
		return fmt.Errorf("hex line length %d: %w", line, pkg.ErrInvalidParameter)
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(base, data); err != nil {
		return fmt.Errorf("hex: %w", err)
	}
	var buf bytes.Buffer
	if err := mem.DumpIntelHex(&buf, byte(line)); err != nil {
		return fmt.Errorf("hex: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("hex: %w", err)
	}
	return nil
}

// readHex parses Intel HEX from r and returns size bytes starting at base,
// with gaps filled by 0xFF.
func readHex(r io.Reader, base uint32, size int) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return mem.ToBinary(base, uint32(size), 0xFF), nil
}
