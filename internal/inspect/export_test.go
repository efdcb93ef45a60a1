package inspect

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

func sampleChunk() *bytecode.Chunk {
	child := &bytecode.Prototype{
		NumUpvalues:  1,
		MaxStackSize: 2,
		Code: []bytecode.Instruction{
			bytecode.MustDecode(bytecode.EncodeABC(bytecode.OP_GETUPVAL, 0, 0, 0)),
			bytecode.MustDecode(bytecode.EncodeABC(bytecode.OP_RETURN, 0, 2, 0)),
		},
	}
	main := &bytecode.Prototype{
		Source:          "@sample.lua",
		LastLineDefined: 4,
		IsVararg:        2,
		MaxStackSize:    3,
		Code: []bytecode.Instruction{
			bytecode.MustDecode(bytecode.EncodeABx(bytecode.OP_LOADK, 0, 0)),
			bytecode.MustDecode(bytecode.EncodeAsBx(bytecode.OP_JMP, 0, -2)),
			bytecode.MustDecode(bytecode.EncodeABx(bytecode.OP_CLOSURE, 1, 0)),
			bytecode.MustDecode(bytecode.EncodeABC(bytecode.OP_RETURN, 0, 1, 0)),
		},
		Constants: []*bytecode.Constant{
			bytecode.StringConst("hi"),
			bytecode.NumberConst(2.5),
			bytecode.BoolConst(true),
			bytecode.NilConst(),
		},
		Protos:   []*bytecode.Prototype{child},
		LineInfo: []uint32{1, 2, 3, 4},
		LocVars:  []bytecode.LocVar{{Name: "x", StartPC: 0, EndPC: 3}},
	}
	return &bytecode.Chunk{Header: bytecode.DefaultHeader(), Main: main}
}

func TestFromChunk(t *testing.T) {
	doc := FromChunk(sampleChunk())
	assert.Equal(t, uint8(bytecode.Version), doc.Header.Version)
	assert.Equal(t, "main", doc.Main.Name)
	require.Len(t, doc.Main.Code, 4)
	assert.Equal(t, "JMP", doc.Main.Code[1].Op)
	assert.Equal(t, []int64{-2}, doc.Main.Code[1].Operands)
	assert.Equal(t, uint32(2), doc.Main.Code[1].Line)
	assert.Equal(t, []int64{1, 0}, doc.Main.Code[2].Operands)
	assert.Equal(t, Const{Kind: "string", String: "hi"}, doc.Main.Constants[0])
	require.Len(t, doc.Main.Protos, 1)
	assert.Equal(t, "main/0", doc.Main.Protos[0].Name)
}

func TestRoundTripAllFormats(t *testing.T) {
	want := sampleChunk()
	for _, format := range []Format{FormatJSON, FormatYAML, FormatCBOR} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Marshal(want, format)
			require.NoError(t, err)
			got, err := Unmarshal(data, format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSnapshotCanonical(t *testing.T) {
	a, err := MarshalSnapshot(sampleChunk())
	require.NoError(t, err)
	b, err := MarshalSnapshot(sampleChunk())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	got, err := UnmarshalSnapshot(a)
	require.NoError(t, err)
	assert.Equal(t, sampleChunk(), got)
}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sampleChunk(), FormatJSON))
	assert.Contains(t, buf.String(), `"source": "@sample.lua"`)
	assert.Contains(t, buf.String(), `"op": "CLOSURE"`)

	buf.Reset()
	require.NoError(t, Export(&buf, sampleChunk(), FormatYAML))
	assert.Contains(t, buf.String(), "name: main/0")
	assert.Contains(t, buf.String(), "op: GETUPVAL")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "YAML": FormatYAML, "yml": FormatYAML, " cbor ": FormatCBOR} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestUnmarshalRejectsBadInstruction(t *testing.T) {
	doc := FromChunk(sampleChunk())
	doc.Main.Code[0].Raw = 63
	data, err := cborEncMode.Marshal(doc)
	require.NoError(t, err)
	_, err = UnmarshalSnapshot(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bytecode.ErrUnknownOpcode))
	assert.Contains(t, err.Error(), "main.code[0]")
}

func TestMarshalNilChunk(t *testing.T) {
	_, err := Marshal(nil, FormatJSON)
	assert.Error(t, err)
	_, err = Marshal(sampleChunk(), Format("toml"))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}
