package undump

import (
	"encoding/binary"
	"fmt"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// readHeader consumes the signature and the fixed header block.
func (rd *reader) readHeader() (bytecode.Header, error) {
	sig, err := rd.readBytes(4)
	if err != nil {
		return bytecode.Header{}, rd.fail("header.signature", err)
	}
	if got := binary.BigEndian.Uint32(sig); got != bytecode.Signature {
		return bytecode.Header{}, rd.fail("header.signature",
			fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrBadMagic, got, bytecode.Signature))
	}
	b, err := rd.readBytes(8)
	if err != nil {
		return bytecode.Header{}, rd.fail("header", err)
	}
	h := bytecode.Header{
		Version:         b[0],
		FormatVersion:   b[1],
		Endianness:      b[2],
		SizeInt:         b[3],
		SizeT:           b[4],
		SizeInstruction: b[5],
		SizeNumber:      b[6],
		IntegralFlag:    b[7],
	}
	if h.Version != bytecode.Version {
		return h, rd.fail("header.version",
			fmt.Errorf("%w 0x%02X, only 0x%02X (Lua 5.1) is supported", ErrUnsupportedVersion, h.Version, bytecode.Version))
	}
	return h, nil
}

// sizeMismatches lists declared sizes that differ from the widths the decoder reads.
func sizeMismatches(h bytecode.Header) []string {
	want := bytecode.DefaultHeader()
	var out []string
	check := func(name string, got, exp byte) {
		if got != exp {
			out = append(out, fmt.Sprintf("%s=%d (reading %d)", name, got, exp))
		}
	}
	check("size_int", h.SizeInt, want.SizeInt)
	check("size_t", h.SizeT, want.SizeT)
	check("size_instruction", h.SizeInstruction, want.SizeInstruction)
	check("size_number", h.SizeNumber, want.SizeNumber)
	if h.Endianness != want.Endianness {
		out = append(out, fmt.Sprintf("endianness=%d (reading little-endian)", h.Endianness))
	}
	if h.IntegralFlag != want.IntegralFlag {
		out = append(out, fmt.Sprintf("integral=%d (reading floats)", h.IntegralFlag))
	}
	return out
}
