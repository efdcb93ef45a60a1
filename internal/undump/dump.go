package undump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Dump writes chunk in the format Load reads. Debug sections are written
// structurally when debugInfo is set, and as three zero counts otherwise.
func Dump(w io.Writer, chunk *bytecode.Chunk, debugInfo bool) error {
	if chunk == nil || chunk.Main == nil {
		return fmt.Errorf("nil chunk")
	}
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw, debugInfo: debugInfo}
	e.u32be(bytecode.Signature)
	h := chunk.Header
	e.raw([]byte{h.Version, h.FormatVersion, h.Endianness, h.SizeInt, h.SizeT,
		h.SizeInstruction, h.SizeNumber, h.IntegralFlag})
	e.proto(chunk.Main)
	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// DumpBytes is Dump into a fresh byte slice.
func DumpBytes(chunk *bytecode.Chunk, debugInfo bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := Dump(&buf, chunk, debugInfo); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	w         io.Writer
	debugInfo bool
	err       error
	buf       [8]byte
}

func (e *encoder) raw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.raw(e.buf[:1])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.raw(e.buf[:4])
}

func (e *encoder) u32be(v uint32) {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	e.raw(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.raw(e.buf[:8])
}

func (e *encoder) str(s string) {
	if s == "" {
		e.u64(0)
		return
	}
	e.u64(uint64(len(s) + 1))
	e.raw([]byte(s))
	e.u8(0)
}

func (e *encoder) proto(p *bytecode.Prototype) {
	e.str(p.Source)
	e.u32(p.LineDefined)
	e.u32(p.LastLineDefined)
	e.u8(p.NumUpvalues)
	e.u8(p.NumParams)
	e.u8(p.IsVararg)
	e.u8(p.MaxStackSize)
	e.u32(uint32(len(p.Code)))
	for _, inst := range p.Code {
		e.u32(inst.Raw)
	}
	e.u32(uint32(len(p.Constants)))
	for _, c := range p.Constants {
		e.constant(c)
	}
	e.u32(uint32(len(p.Protos)))
	for _, child := range p.Protos {
		e.proto(child)
	}
	if !e.debugInfo {
		e.u32(0)
		e.u32(0)
		e.u32(0)
		return
	}
	e.u32(uint32(len(p.LineInfo)))
	for _, line := range p.LineInfo {
		e.u32(line)
	}
	e.u32(uint32(len(p.LocVars)))
	for _, lv := range p.LocVars {
		e.str(lv.Name)
		e.u32(lv.StartPC)
		e.u32(lv.EndPC)
	}
	e.u32(uint32(len(p.UpvalueNames)))
	for _, name := range p.UpvalueNames {
		e.str(name)
	}
}

func (e *encoder) constant(c *bytecode.Constant) {
	if c == nil {
		e.u8(uint8(bytecode.ConstNil))
		return
	}
	e.u8(uint8(c.Kind))
	switch c.Kind {
	case bytecode.ConstBoolean:
		if c.B {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case bytecode.ConstNumber:
		e.u64(math.Float64bits(c.Num))
	case bytecode.ConstString:
		e.str(c.Str)
	}
}
