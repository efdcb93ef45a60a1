// Package undump decodes precompiled Lua 5.1 chunks (luac output) into
// prototype trees, and encodes them back.
package undump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Options configures chunk decoding.
type Options struct {
	// DebugInfo parses the trailing line info, local variable and upvalue name
	// sections structurally. When false, exactly three 32-bit words are read and
	// discarded per prototype, which is only correct for stripped chunks.
	DebugInfo bool

	// Logger receives decoding diagnostics (nil for none).
	Logger *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Load decodes a complete chunk from r.
func Load(r io.Reader, opts Options) (*bytecode.Chunk, error) {
	rd := newReader(r)
	log := opts.logger()
	header, err := rd.readHeader()
	if err != nil {
		return nil, err
	}
	log.Debug().
		Uint8("version", header.Version).
		Uint8("format", header.FormatVersion).
		Uint8("endianness", header.Endianness).
		Msg("chunk header")
	if mismatches := sizeMismatches(header); len(mismatches) > 0 {
		log.Warn().
			Str("declared", strings.Join(mismatches, ", ")).
			Msg("chunk declares non-default sizes; decoding with default widths")
	}
	d := &decoder{rd: rd, opts: opts, log: log}
	main, err := d.readProto("main")
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("instructions", len(main.Code)).
		Int("constants", len(main.Constants)).
		Int("protos", len(main.Protos)).
		Int64("bytes", rd.offset).
		Msg("chunk loaded")
	return &bytecode.Chunk{Header: header, Main: main}, nil
}

// LoadBytes decodes a chunk held in memory.
func LoadBytes(data []byte, opts Options) (*bytecode.Chunk, error) {
	return Load(bytes.NewReader(data), opts)
}

type decoder struct {
	rd   *reader
	opts Options
	log  zerolog.Logger
}

// listPrealloc caps up-front slice growth for declared list counts.
const listPrealloc = 1024

// readList reads a u32 count N followed by N items. N=0 reads nothing more.
func readList[T any](d *decoder, field string, item func(d *decoder, field string) (T, error)) ([]T, error) {
	n, err := d.rd.readU32()
	if err != nil {
		return nil, d.rd.fail(field+".count", err)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]T, 0, min(n, listPrealloc))
	for i := uint32(0); i < n; i++ {
		v, err := item(d, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *decoder) readProto(field string) (*bytecode.Prototype, error) {
	rd := d.rd
	p := &bytecode.Prototype{}
	var err error
	if p.Source, err = rd.readString(); err != nil {
		return nil, rd.fail(field+".source", err)
	}
	if p.LineDefined, err = rd.readU32(); err != nil {
		return nil, rd.fail(field+".linedefined", err)
	}
	if p.LastLineDefined, err = rd.readU32(); err != nil {
		return nil, rd.fail(field+".lastlinedefined", err)
	}
	if p.NumUpvalues, err = rd.readU8(); err != nil {
		return nil, rd.fail(field+".nups", err)
	}
	if p.NumParams, err = rd.readU8(); err != nil {
		return nil, rd.fail(field+".numparams", err)
	}
	if p.IsVararg, err = rd.readU8(); err != nil {
		return nil, rd.fail(field+".is_vararg", err)
	}
	if p.MaxStackSize, err = rd.readU8(); err != nil {
		return nil, rd.fail(field+".maxstacksize", err)
	}
	if p.Code, err = readList(d, field+".code", (*decoder).readInstruction); err != nil {
		return nil, err
	}
	if p.Constants, err = readList(d, field+".constants", (*decoder).readConstant); err != nil {
		return nil, err
	}
	if p.Protos, err = readList(d, field+".protos", (*decoder).readProto); err != nil {
		return nil, err
	}
	if d.opts.DebugInfo {
		err = d.readDebug(field, p)
	} else {
		err = d.skipDebug(field)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *decoder) readInstruction(field string) (bytecode.Instruction, error) {
	word, err := d.rd.readU32()
	if err != nil {
		return bytecode.Instruction{}, d.rd.fail(field, err)
	}
	inst, err := bytecode.Decode(word)
	if err != nil {
		return bytecode.Instruction{}, d.rd.fail(field, err)
	}
	return inst, nil
}

func (d *decoder) readConstant(field string) (*bytecode.Constant, error) {
	rd := d.rd
	tag, err := rd.readU8()
	if err != nil {
		return nil, rd.fail(field+".tag", err)
	}
	switch bytecode.ConstKind(tag) {
	case bytecode.ConstNil:
		return bytecode.NilConst(), nil
	case bytecode.ConstBoolean:
		b, err := rd.readBool()
		if err != nil {
			return nil, rd.fail(field+".boolean", err)
		}
		return bytecode.BoolConst(b), nil
	case bytecode.ConstNumber:
		n, err := rd.readNumber()
		if err != nil {
			return nil, rd.fail(field+".number", err)
		}
		return bytecode.NumberConst(n), nil
	case bytecode.ConstString:
		s, err := rd.readString()
		if err != nil {
			return nil, rd.fail(field+".string", err)
		}
		return bytecode.StringConst(s), nil
	default:
		return nil, rd.fail(field+".tag", fmt.Errorf("%w %d", ErrUnknownConstantTag, tag))
	}
}

// skipDebug discards the three debug section words of a stripped chunk.
func (d *decoder) skipDebug(field string) error {
	names := [3]string{"sizelineinfo", "sizelocvars", "sizeupvalues"}
	for _, name := range names {
		v, err := d.rd.readU32()
		if err != nil {
			return d.rd.fail(field+"."+name, err)
		}
		if v != 0 {
			d.log.Warn().
				Str("field", field+"."+name).
				Uint32("value", v).
				Msg("discarding non-empty debug section; following records will be misread")
		}
	}
	return nil
}

func (d *decoder) readDebug(field string, p *bytecode.Prototype) error {
	var err error
	if p.LineInfo, err = readList(d, field+".lineinfo", func(d *decoder, f string) (uint32, error) {
		v, err := d.rd.readU32()
		if err != nil {
			return 0, d.rd.fail(f, err)
		}
		return v, nil
	}); err != nil {
		return err
	}
	if p.LocVars, err = readList(d, field+".locvars", func(d *decoder, f string) (bytecode.LocVar, error) {
		var lv bytecode.LocVar
		var err error
		if lv.Name, err = d.rd.readString(); err != nil {
			return lv, d.rd.fail(f+".name", err)
		}
		if lv.StartPC, err = d.rd.readU32(); err != nil {
			return lv, d.rd.fail(f+".startpc", err)
		}
		if lv.EndPC, err = d.rd.readU32(); err != nil {
			return lv, d.rd.fail(f+".endpc", err)
		}
		return lv, nil
	}); err != nil {
		return err
	}
	p.UpvalueNames, err = readList(d, field+".upvalues", func(d *decoder, f string) (string, error) {
		s, err := d.rd.readString()
		if err != nil {
			return "", d.rd.fail(f, err)
		}
		return s, nil
	})
	return err
}
