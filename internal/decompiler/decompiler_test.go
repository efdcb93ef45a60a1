package decompiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

func abx(op bytecode.Opcode, a, bx uint32) bytecode.Instruction {
	return bytecode.MustDecode(bytecode.EncodeABx(op, a, bx))
}

func abc(op bytecode.Opcode, a, b, c uint32) bytecode.Instruction {
	return bytecode.MustDecode(bytecode.EncodeABC(op, a, b, c))
}

func TestDecompileAssignments(t *testing.T) {
	proto := &bytecode.Prototype{
		Constants: []*bytecode.Constant{
			bytecode.StringConst("greeting"),
			bytecode.StringConst("hello"),
			bytecode.NumberConst(3),
			bytecode.BoolConst(true),
		},
		Code: []bytecode.Instruction{
			abx(bytecode.OP_LOADK, 0, 1),
			abx(bytecode.OP_SETGLOBAL, 0, 0),
			abx(bytecode.OP_LOADK, 1, 2),
			abc(bytecode.OP_ADD, 2, 1, 1),
			abx(bytecode.OP_LOADK, 2, 3),
			abx(bytecode.OP_SETGLOBAL, 0, 0),
			abc(bytecode.OP_RETURN, 0, 1, 0),
		},
	}
	out, err := Decompile(proto)
	require.NoError(t, err)
	want := "greeting = \"hello\"\n" +
		"local lv_0 = 3\n" +
		"local lv_1 = true\n"
	assert.Equal(t, want, out)
}

func TestDecompileEmpty(t *testing.T) {
	out, err := Decompile(&bytecode.Prototype{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecompileMissingConstant(t *testing.T) {
	proto := &bytecode.Prototype{
		Code: []bytecode.Instruction{abx(bytecode.OP_LOADK, 0, 4)},
	}
	_, err := Decompile(proto)
	require.Error(t, err)
	if !errors.Is(err, ErrMissingConstant) {
		t.Fatalf("expected ErrMissingConstant, got %v", err)
	}
	assert.Contains(t, err.Error(), "pc 0")
}

func TestInstStream(t *testing.T) {
	proto := &bytecode.Prototype{
		Constants: []*bytecode.Constant{bytecode.NumberConst(1)},
		Code: []bytecode.Instruction{
			abx(bytecode.OP_LOADK, 0, 0),
			abx(bytecode.OP_SETGLOBAL, 0, 0),
			abc(bytecode.OP_RETURN, 0, 1, 0),
		},
	}
	s := NewInstStream(proto)
	_, ok := s.PeekAhead(0)
	assert.False(t, ok, "nothing consumed yet")

	inst, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, bytecode.OP_LOADK, inst.Op)
	cur, ok := s.PeekAhead(0)
	require.True(t, ok)
	assert.Equal(t, bytecode.OP_LOADK, cur.Op)
	assert.True(t, s.NextIs(bytecode.OP_SETGLOBAL))
	far, ok := s.PeekAhead(2)
	require.True(t, ok)
	assert.Equal(t, bytecode.OP_RETURN, far.Op)
	_, ok = s.PeekAhead(3)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Pos())

	k, ok := s.Constant(0)
	require.True(t, ok)
	assert.Equal(t, 1.0, k.Num)
	_, ok = s.Constant(1)
	assert.False(t, ok)

	s.Next()
	s.Next()
	_, ok = s.Next()
	assert.False(t, ok)
	assert.False(t, s.NextIs(bytecode.OP_RETURN))
}
