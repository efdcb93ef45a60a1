package bytecode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOperandShapes(t *testing.T) {
	const (
		a = 0xA5
		b = 0x1C3
		c = 0x0F1
	)
	word := func(op Opcode) uint32 {
		return uint32(op) | a<<6 | c<<14 | b<<23
	}
	for op := Opcode(0); op < NumOpcodes; op++ {
		inst, err := Decode(word(op))
		require.NoError(t, err, "opcode %s", op)
		assert.Equal(t, op, inst.Op)

		shape := op.Shape()
		require.Len(t, inst.Operands, len(shape), "opcode %s", op)
		for i, f := range shape {
			o := inst.Operands[i]
			assert.Equal(t, f, o.Field, "opcode %s operand %d", op, i)
			switch f {
			case FieldA:
				v, ok := o.Unsigned()
				assert.True(t, ok)
				assert.EqualValues(t, a, v)
			case FieldB:
				v, _ := o.Unsigned()
				assert.EqualValues(t, b, v)
			case FieldC:
				v, _ := o.Unsigned()
				assert.EqualValues(t, c, v)
			case FieldBx:
				v, _ := o.Unsigned()
				assert.EqualValues(t, b<<9|c, v)
			case FieldSBx:
				_, ok := o.Unsigned()
				assert.False(t, ok, "sBx must not be readable as unsigned")
				v, ok := o.Signed()
				assert.True(t, ok)
				assert.EqualValues(t, int32(b<<9|c)-MaxArgSBx, v)
			}
		}
	}
}

func TestDecodeShapeTable(t *testing.T) {
	cases := map[Opcode][]Field{
		OP_MOVE:     {FieldA, FieldB},
		OP_LOADK:    {FieldA, FieldBx},
		OP_JMP:      {FieldSBx},
		OP_TEST:     {FieldA, FieldC},
		OP_FORPREP:  {FieldA, FieldSBx},
		OP_TFORLOOP: {FieldA, FieldC},
		OP_CLOSE:    {FieldA},
		OP_CLOSURE:  {FieldA, FieldBx},
		OP_CALL:     {FieldA, FieldB, FieldC},
		OP_VARARG:   {FieldA, FieldB},
	}
	for op, want := range cases {
		assert.Equal(t, want, op.Shape(), "opcode %s", op)
	}
}

func TestSBxBias(t *testing.T) {
	cases := []struct {
		stored uint32
		want   int32
	}{
		{131071, 0},
		{131072, 1},
		{131070, -1},
		{0, -131071},
	}
	for _, tc := range cases {
		inst, err := Decode(EncodeABx(OP_JMP, 0, tc.stored))
		require.NoError(t, err)
		v, ok := inst.Operands[0].Signed()
		require.True(t, ok)
		assert.Equal(t, tc.want, v, "stored %d", tc.stored)
		assert.Equal(t, tc.want, inst.SBx())
	}
	assert.Equal(t, int32(-5), MustDecode(EncodeAsBx(OP_FORLOOP, 3, -5)).SBx())
}

func TestDecodeUnknownOpcode(t *testing.T) {
	for _, op := range []uint32{38, 50, 63} {
		_, err := Decode(op | 1<<6)
		if !errors.Is(err, ErrUnknownOpcode) {
			t.Fatalf("opcode %d: expected ErrUnknownOpcode, got %v", op, err)
		}
	}
}

func TestRKFlag(t *testing.T) {
	inst := MustDecode(EncodeABC(OP_ADD, 1, 0, BitRK|7))
	assert.False(t, IsK(inst.B()))
	assert.True(t, IsK(inst.C()))
	assert.EqualValues(t, 7, IndexK(inst.C()))
	// constant flag of B sits at absolute bit 31
	assert.Equal(t, uint32(1)<<31, EncodeABC(OP_MOVE, 0, BitRK, 0))
	// and of C at absolute bit 22
	assert.Equal(t, uint32(1)<<22, EncodeABC(OP_MOVE, 0, 0, BitRK))
}

func TestLookupOpcode(t *testing.T) {
	op, ok := LookupOpcode("TAILCALL")
	require.True(t, ok)
	assert.Equal(t, OP_TAILCALL, op)
	_, ok = LookupOpcode("NOPE")
	assert.False(t, ok)
	assert.Equal(t, "OP_0x30", Opcode(48).String())
}
