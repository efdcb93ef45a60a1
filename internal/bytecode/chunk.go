package bytecode

import (
	"strconv"
)

// Signature is the big-endian magic number opening every chunk ("\x1bLua").
const Signature uint32 = 0x1B4C7561

// Version is the only accepted header version byte (Lua 5.1).
const Version byte = 0x51

// Header is the fixed 8-byte block following the signature.
// The size fields are recorded as declared; the decoder does not honor them.
type Header struct {
	Version         byte
	FormatVersion   byte
	Endianness      byte
	SizeInt         byte
	SizeT           byte
	SizeInstruction byte
	SizeNumber      byte
	IntegralFlag    byte
}

// DefaultHeader returns the header luac 5.1 writes on a little-endian 64-bit host,
// which is also the only layout the decoder reads correctly.
func DefaultHeader() Header {
	return Header{
		Version:         Version,
		FormatVersion:   0,
		Endianness:      1,
		SizeInt:         4,
		SizeT:           8,
		SizeInstruction: 4,
		SizeNumber:      8,
		IntegralFlag:    0,
	}
}

// Chunk is a decoded binary chunk: the header and the main function.
type Chunk struct {
	Header Header
	Main   *Prototype
}

// Prototype represents a compiled function and its nested functions.
// It is built once while loading and treated as immutable afterwards.
type Prototype struct {
	Source          string
	LineDefined     uint32
	LastLineDefined uint32
	NumUpvalues     uint8
	NumParams       uint8
	IsVararg        uint8
	MaxStackSize    uint8
	Code            []Instruction
	Constants       []*Constant
	Protos          []*Prototype

	// Debug info, populated only when the loader parses it structurally.
	LineInfo     []uint32
	LocVars      []LocVar
	UpvalueNames []string
}

// LocVar describes a local variable's live range.
type LocVar struct {
	Name    string
	StartPC uint32
	EndPC   uint32
}

// Line returns the source line for pc, or 0 without line info.
func (p *Prototype) Line(pc int) int {
	if p == nil || pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return int(p.LineInfo[pc])
}

// ConstKind is a constant's type tag; values equal the on-disk tag byte.
type ConstKind uint8

const (
	ConstNil     ConstKind = 0
	ConstBoolean ConstKind = 1
	ConstNumber  ConstKind = 3
	ConstString  ConstKind = 4
)

func (k ConstKind) String() string {
	switch k {
	case ConstNil:
		return "nil"
	case ConstBoolean:
		return "boolean"
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	default:
		return "ConstKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Constant is an immutable constant-pool entry.
type Constant struct {
	Kind ConstKind
	B    bool
	Num  float64
	Str  string
}

func NilConst() *Constant { return &Constant{Kind: ConstNil} }
func BoolConst(b bool) *Constant {
	return &Constant{Kind: ConstBoolean, B: b}
}
func NumberConst(n float64) *Constant {
	return &Constant{Kind: ConstNumber, Num: n}
}
func StringConst(s string) *Constant {
	return &Constant{Kind: ConstString, Str: s}
}

// Format renders the constant; strings are quoted when quote is set.
func (c *Constant) Format(quote bool) string {
	if c == nil {
		return "<invalid>"
	}
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBoolean:
		return strconv.FormatBool(c.B)
	case ConstNumber:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case ConstString:
		if quote {
			return strconv.Quote(c.Str)
		}
		return c.Str
	default:
		return "<unknown>"
	}
}

func (c *Constant) String() string {
	return c.Format(true)
}
