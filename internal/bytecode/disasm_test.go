package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassembleResolvesConstants(t *testing.T) {
	child := &Prototype{
		LineDefined:     3,
		LastLineDefined: 5,
		Code: []Instruction{
			MustDecode(EncodeABC(OP_RETURN, 0, 1, 0)),
		},
	}
	proto := &Prototype{
		Source: "@test.lua",
		Code: []Instruction{
			MustDecode(EncodeABx(OP_LOADK, 0, 0)),
			MustDecode(EncodeABC(OP_ADD, 1, 0, BitRK|1)),
			MustDecode(EncodeABx(OP_SETGLOBAL, 1, 2)),
			MustDecode(EncodeAsBx(OP_JMP, 0, -2)),
			MustDecode(EncodeABx(OP_CLOSURE, 2, 0)),
			MustDecode(EncodeABC(OP_RETURN, 0, 1, 0)),
		},
		Constants: []*Constant{NumberConst(2), NumberConst(3), StringConst("x")},
		Protos:    []*Prototype{child},
		LineInfo:  []uint32{1, 1, 1, 2, 6, 6},
	}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	require.NoError(t, dis.DisassemblePrototype("main", proto))
	out := buf.String()

	assert.Contains(t, out, "function main (params=0, upvalues=0, stack=0, vararg=0) source=@test.lua")
	assert.Contains(t, out, "const 2")
	assert.Contains(t, out, "0 k1 ; k1=3")
	assert.Contains(t, out, `global "x"`)
	assert.Contains(t, out, "to 0002")
	assert.Contains(t, out, "proto[0] lines=3-5")
	assert.Contains(t, out, "function main/0")
	if !strings.Contains(out, "0001    1 ADD") {
		t.Fatalf("expected line numbers in dump, got:\n%s", out)
	}
}

func TestDisassembleOpcodeStyle(t *testing.T) {
	proto := &Prototype{Code: []Instruction{MustDecode(EncodeABC(OP_RETURN, 0, 1, 0))}}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	dis.SetOpcodeStyle(func(op Opcode, s string) string { return "<" + strings.TrimSpace(s) + ">" })
	require.NoError(t, dis.DisassemblePrototype("", proto))
	assert.Contains(t, buf.String(), "<RETURN>")
	assert.Contains(t, buf.String(), "function <anon>")
}

func TestDisassembleNilPrototype(t *testing.T) {
	dis := NewDisassembler(&bytes.Buffer{})
	if err := dis.DisassemblePrototype("x", nil); err == nil {
		t.Fatalf("expected error for nil prototype")
	}
}
