// Package inspect exports decoded chunks as JSON, YAML or CBOR documents
// and reads CBOR snapshots back into prototypes.
package inspect

import (
	"fmt"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Chunk is the document form of a decoded chunk.
type Chunk struct {
	Header Header    `json:"header" yaml:"header"`
	Main   *Function `json:"main" yaml:"main"`
}

type Header struct {
	Version         uint8 `json:"version" yaml:"version"`
	Format          uint8 `json:"format" yaml:"format"`
	Endianness      uint8 `json:"endianness" yaml:"endianness"`
	SizeInt         uint8 `json:"size_int" yaml:"size_int"`
	SizeT           uint8 `json:"size_t" yaml:"size_t"`
	SizeInstruction uint8 `json:"size_instruction" yaml:"size_instruction"`
	SizeNumber      uint8 `json:"size_number" yaml:"size_number"`
	Integral        uint8 `json:"integral" yaml:"integral"`
}

type Function struct {
	Name         string      `json:"name" yaml:"name"`
	Source       string      `json:"source,omitempty" yaml:"source,omitempty"`
	LineDefined  uint32      `json:"line_defined" yaml:"line_defined"`
	LastLine     uint32      `json:"last_line" yaml:"last_line"`
	Upvalues     uint8       `json:"upvalues" yaml:"upvalues"`
	Params       uint8       `json:"params" yaml:"params"`
	Vararg       uint8       `json:"vararg" yaml:"vararg"`
	MaxStack     uint8       `json:"max_stack" yaml:"max_stack"`
	Code         []Instr     `json:"code" yaml:"code"`
	Constants    []Const     `json:"constants" yaml:"constants"`
	Protos       []*Function `json:"protos,omitempty" yaml:"protos,omitempty"`
	LocVars      []LocVar    `json:"locvars,omitempty" yaml:"locvars,omitempty"`
	UpvalueNames []string    `json:"upvalue_names,omitempty" yaml:"upvalue_names,omitempty"`
}

type Instr struct {
	PC       int     `json:"pc" yaml:"pc"`
	Line     uint32  `json:"line,omitempty" yaml:"line,omitempty"`
	Op       string  `json:"op" yaml:"op"`
	Operands []int64 `json:"operands" yaml:"operands"`
	Raw      uint32  `json:"raw" yaml:"raw"`
}

type Const struct {
	Kind   string  `json:"kind" yaml:"kind"`
	Bool   bool    `json:"bool,omitempty" yaml:"bool,omitempty"`
	Number float64 `json:"number,omitempty" yaml:"number,omitempty"`
	String string  `json:"string,omitempty" yaml:"string,omitempty"`
}

type LocVar struct {
	Name    string `json:"name" yaml:"name"`
	StartPC uint32 `json:"start_pc" yaml:"start_pc"`
	EndPC   uint32 `json:"end_pc" yaml:"end_pc"`
}

// FromChunk converts a decoded chunk into its document form.
func FromChunk(c *bytecode.Chunk) *Chunk {
	h := c.Header
	return &Chunk{
		Header: Header{
			Version:         h.Version,
			Format:          h.FormatVersion,
			Endianness:      h.Endianness,
			SizeInt:         h.SizeInt,
			SizeT:           h.SizeT,
			SizeInstruction: h.SizeInstruction,
			SizeNumber:      h.SizeNumber,
			Integral:        h.IntegralFlag,
		},
		Main: FromPrototype("main", c.Main),
	}
}

// FromPrototype converts p and its nested prototypes; children are named
// "<parent>/<index>".
func FromPrototype(name string, p *bytecode.Prototype) *Function {
	if p == nil {
		return nil
	}
	fn := &Function{
		Name:         name,
		Source:       p.Source,
		LineDefined:  p.LineDefined,
		LastLine:     p.LastLineDefined,
		Upvalues:     p.NumUpvalues,
		Params:       p.NumParams,
		Vararg:       p.IsVararg,
		MaxStack:     p.MaxStackSize,
		Code:         make([]Instr, len(p.Code)),
		Constants:    make([]Const, len(p.Constants)),
		UpvalueNames: p.UpvalueNames,
	}
	for pc, inst := range p.Code {
		operands := make([]int64, len(inst.Operands))
		for i, o := range inst.Operands {
			if v, ok := o.Signed(); ok {
				operands[i] = int64(v)
			} else {
				u, _ := o.Unsigned()
				operands[i] = int64(u)
			}
		}
		fn.Code[pc] = Instr{
			PC:       pc,
			Line:     uint32(p.Line(pc)),
			Op:       inst.Op.String(),
			Operands: operands,
			Raw:      inst.Raw,
		}
	}
	for i, k := range p.Constants {
		fn.Constants[i] = fromConstant(k)
	}
	for i, child := range p.Protos {
		fn.Protos = append(fn.Protos, FromPrototype(fmt.Sprintf("%s/%d", name, i), child))
	}
	for _, lv := range p.LocVars {
		fn.LocVars = append(fn.LocVars, LocVar{Name: lv.Name, StartPC: lv.StartPC, EndPC: lv.EndPC})
	}
	return fn
}

func fromConstant(k *bytecode.Constant) Const {
	c := Const{Kind: k.Kind.String()}
	switch k.Kind {
	case bytecode.ConstBoolean:
		c.Bool = k.B
	case bytecode.ConstNumber:
		c.Number = k.Num
	case bytecode.ConstString:
		c.String = k.Str
	}
	return c
}

// Chunk rebuilds a bytecode chunk. Instructions are re-decoded from Raw.
func (c *Chunk) Chunk() (*bytecode.Chunk, error) {
	main, err := c.Main.Prototype()
	if err != nil {
		return nil, err
	}
	h := c.Header
	return &bytecode.Chunk{
		Header: bytecode.Header{
			Version:         h.Version,
			FormatVersion:   h.Format,
			Endianness:      h.Endianness,
			SizeInt:         h.SizeInt,
			SizeT:           h.SizeT,
			SizeInstruction: h.SizeInstruction,
			SizeNumber:      h.SizeNumber,
			IntegralFlag:    h.Integral,
		},
		Main: main,
	}, nil
}

// Prototype rebuilds the prototype tree rooted at fn.
func (fn *Function) Prototype() (*bytecode.Prototype, error) {
	if fn == nil {
		return nil, fmt.Errorf("missing function")
	}
	p := &bytecode.Prototype{
		Source:          fn.Source,
		LineDefined:     fn.LineDefined,
		LastLineDefined: fn.LastLine,
		NumUpvalues:     fn.Upvalues,
		NumParams:       fn.Params,
		IsVararg:        fn.Vararg,
		MaxStackSize:    fn.MaxStack,
		UpvalueNames:    fn.UpvalueNames,
	}
	hasLines := false
	for _, in := range fn.Code {
		inst, err := bytecode.Decode(in.Raw)
		if err != nil {
			return nil, fmt.Errorf("%s.code[%d]: %w", fn.Name, in.PC, err)
		}
		p.Code = append(p.Code, inst)
		if in.Line != 0 {
			hasLines = true
		}
	}
	if hasLines {
		p.LineInfo = make([]uint32, len(fn.Code))
		for i, in := range fn.Code {
			p.LineInfo[i] = in.Line
		}
	}
	for i, c := range fn.Constants {
		k, err := c.constant()
		if err != nil {
			return nil, fmt.Errorf("%s.constants[%d]: %w", fn.Name, i, err)
		}
		p.Constants = append(p.Constants, k)
	}
	for _, child := range fn.Protos {
		cp, err := child.Prototype()
		if err != nil {
			return nil, err
		}
		p.Protos = append(p.Protos, cp)
	}
	for _, lv := range fn.LocVars {
		p.LocVars = append(p.LocVars, bytecode.LocVar{Name: lv.Name, StartPC: lv.StartPC, EndPC: lv.EndPC})
	}
	return p, nil
}

func (c Const) constant() (*bytecode.Constant, error) {
	switch c.Kind {
	case bytecode.ConstNil.String():
		return bytecode.NilConst(), nil
	case bytecode.ConstBoolean.String():
		return bytecode.BoolConst(c.Bool), nil
	case bytecode.ConstNumber.String():
		return bytecode.NumberConst(c.Number), nil
	case bytecode.ConstString.String():
		return bytecode.StringConst(c.String), nil
	default:
		return nil, fmt.Errorf("unknown constant kind %q", c.Kind)
	}
}
