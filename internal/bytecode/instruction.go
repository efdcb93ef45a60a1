package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOpcode is returned when the low 6 bits of a word name no opcode.
var ErrUnknownOpcode = errors.New("unknown opcode")

// Bit layout of a 32-bit instruction word (least significant bit first):
// op:6 A:8 C:9 B:9, with Bx covering C and B together.
const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC

	maskOp = 1<<sizeOp - 1
	maskA  = 1<<sizeA - 1
	maskB  = 1<<sizeB - 1
	maskC  = 1<<sizeC - 1
	maskBx = 1<<sizeBx - 1

	// MaxArgSBx is the bias subtracted from Bx to obtain sBx.
	MaxArgSBx = maskBx >> 1
)

// BitRK is the constant flag inside a 9-bit B or C field.
const BitRK = 1 << (sizeB - 1)

// IsK reports whether an RK operand refers to the constant pool.
func IsK(x uint32) bool {
	return x&BitRK != 0
}

// IndexK strips the constant flag from an RK operand.
func IndexK(x uint32) uint32 {
	return x &^ BitRK
}

// Operand is one decoded field of an instruction. Unsigned fields (A, B, C, Bx)
// and the signed sBx field are read through separate accessors; asking an
// operand for the wrong signedness reports ok=false.
type Operand struct {
	Field Field
	raw   uint32
}

// Unsigned returns the value of an A, B, C or Bx operand.
func (o Operand) Unsigned() (uint32, bool) {
	if o.Field == FieldSBx {
		return 0, false
	}
	return o.raw, true
}

// Signed returns the value of an sBx operand.
func (o Operand) Signed() (int32, bool) {
	if o.Field != FieldSBx {
		return 0, false
	}
	return int32(o.raw) - MaxArgSBx, true
}

func (o Operand) String() string {
	if v, ok := o.Signed(); ok {
		return fmt.Sprintf("%s=%d", o.Field, v)
	}
	return fmt.Sprintf("%s=%d", o.Field, o.raw)
}

// Instruction is a decoded instruction word.
// Operands always follows Op.Shape() one to one.
type Instruction struct {
	Op       Opcode
	Operands []Operand
	Raw      uint32
}

// Decode splits a raw instruction word into its opcode and operands.
func Decode(word uint32) (Instruction, error) {
	op := Opcode(word >> posOp & maskOp)
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("%w %d", ErrUnknownOpcode, uint8(op))
	}
	shape := op.Shape()
	operands := make([]Operand, len(shape))
	for i, f := range shape {
		operands[i] = Operand{Field: f, raw: extract(word, f)}
	}
	return Instruction{Op: op, Operands: operands, Raw: word}, nil
}

func extract(word uint32, f Field) uint32 {
	switch f {
	case FieldA:
		return word >> posA & maskA
	case FieldB:
		return word >> posB & maskB
	case FieldC:
		return word >> posC & maskC
	default:
		return word >> posBx & maskBx
	}
}

// A returns field A of the instruction word.
func (i Instruction) A() uint32 { return extract(i.Raw, FieldA) }

// B returns field B of the instruction word.
func (i Instruction) B() uint32 { return extract(i.Raw, FieldB) }

// C returns field C of the instruction word.
func (i Instruction) C() uint32 { return extract(i.Raw, FieldC) }

// Bx returns the merged unsigned B:C field.
func (i Instruction) Bx() uint32 { return extract(i.Raw, FieldBx) }

// SBx returns the merged field as a signed offset.
func (i Instruction) SBx() int32 { return int32(extract(i.Raw, FieldBx)) - MaxArgSBx }

func (i Instruction) String() string {
	parts := make([]string, 0, len(i.Operands)+1)
	parts = append(parts, i.Op.String())
	for _, o := range i.Operands {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " ")
}

// EncodeABC packs an A/B/C instruction word.
func EncodeABC(op Opcode, a, b, c uint32) uint32 {
	return uint32(op)&maskOp | (a&maskA)<<posA | (b&maskB)<<posB | (c&maskC)<<posC
}

// EncodeABx packs an A/Bx instruction word.
func EncodeABx(op Opcode, a, bx uint32) uint32 {
	return uint32(op)&maskOp | (a&maskA)<<posA | (bx&maskBx)<<posBx
}

// EncodeAsBx packs an A/sBx instruction word.
func EncodeAsBx(op Opcode, a uint32, sbx int32) uint32 {
	return EncodeABx(op, a, uint32(sbx+MaxArgSBx))
}

// MustDecode is Decode for words known to be valid, such as those built with
// the Encode helpers. It panics on an unknown opcode.
func MustDecode(word uint32) Instruction {
	inst, err := Decode(word)
	if err != nil {
		panic(err)
	}
	return inst
}
