package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats prototypes as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Prototype]bool
	printed bool
	style   func(Opcode, string) string
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Prototype]bool),
	}
}

// SetOpcodeStyle installs a decorator applied to each padded opcode name,
// e.g. to add terminal colors. A nil style prints names unchanged.
func (d *Disassembler) SetOpcodeStyle(style func(Opcode, string) string) {
	d.style = style
}

// DisassemblePrototype emits a dump for a prototype and its nested prototypes.
func (d *Disassembler) DisassemblePrototype(label string, proto *Prototype) error {
	if proto == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = "<anon>"
	}
	source := proto.Source
	if source == "" {
		source = "<unknown>"
	}
	fmt.Fprintf(d.w, "function %s (params=%d, upvalues=%d, stack=%d, vararg=%d) source=%s lines=%d-%d\n",
		name, proto.NumParams, proto.NumUpvalues, proto.MaxStackSize, proto.IsVararg,
		source, proto.LineDefined, proto.LastLineDefined)
	for pc, inst := range proto.Code {
		d.disassembleInstruction(proto, pc, inst)
	}
	for idx, c := range proto.Constants {
		fmt.Fprintf(d.w, "  const[%d] %s %s\n", idx, c.Kind, c.Format(true))
	}
	for idx, child := range proto.Protos {
		if err := d.DisassemblePrototype(fmt.Sprintf("%s/%d", name, idx), child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleInstruction(proto *Prototype, pc int, inst Instruction) {
	lineStr := "-"
	if line := proto.Line(pc); line > 0 {
		lineStr = strconv.Itoa(line)
	}
	opName := fmt.Sprintf("%-10s", inst.Op.String())
	if d.style != nil {
		opName = d.style(inst.Op, opName)
	}
	operands := formatOperands(inst)
	comment := formatComment(proto, pc, inst)
	fmt.Fprintf(d.w, "%04d %4s %s %s", pc, lineStr, opName, operands)
	if comment != "" {
		fmt.Fprintf(d.w, " ; %s", comment)
	}
	fmt.Fprintln(d.w)
}

func formatOperands(inst Instruction) string {
	parts := make([]string, 0, len(inst.Operands))
	for _, o := range inst.Operands {
		if v, ok := o.Signed(); ok {
			parts = append(parts, strconv.Itoa(int(v)))
			continue
		}
		v, _ := o.Unsigned()
		if (o.Field == FieldB || o.Field == FieldC) && isRKOperand(inst.Op, o.Field) && IsK(v) {
			parts = append(parts, "k"+strconv.Itoa(int(IndexK(v))))
			continue
		}
		parts = append(parts, strconv.Itoa(int(v)))
	}
	return strings.Join(parts, " ")
}

// isRKOperand reports whether field f of op may carry the constant flag.
func isRKOperand(op Opcode, f Field) bool {
	switch op {
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD, OP_POW, OP_EQ, OP_LT, OP_LE, OP_SETTABLE:
		return f == FieldB || f == FieldC
	case OP_GETTABLE, OP_SELF:
		return f == FieldC
	default:
		return false
	}
}

func formatComment(proto *Prototype, pc int, inst Instruction) string {
	switch inst.Op {
	case OP_LOADK:
		return "const " + formatConstRef(proto, inst.Bx())
	case OP_GETGLOBAL, OP_SETGLOBAL:
		return "global " + formatConstRef(proto, inst.Bx())
	case OP_GETUPVAL, OP_SETUPVAL:
		if int(inst.B()) < len(proto.UpvalueNames) {
			return "upvalue " + proto.UpvalueNames[inst.B()]
		}
		return ""
	case OP_JMP, OP_FORLOOP, OP_FORPREP:
		return fmt.Sprintf("to %04d", pc+1+int(inst.SBx()))
	case OP_CLOSURE:
		if int(inst.Bx()) < len(proto.Protos) {
			child := proto.Protos[inst.Bx()]
			return fmt.Sprintf("proto[%d] lines=%d-%d", inst.Bx(), child.LineDefined, child.LastLineDefined)
		}
		return fmt.Sprintf("proto[%d] <invalid>", inst.Bx())
	}
	var refs []string
	for _, o := range inst.Operands {
		v, ok := o.Unsigned()
		if !ok || !isRKOperand(inst.Op, o.Field) || !IsK(v) {
			continue
		}
		refs = append(refs, fmt.Sprintf("k%d=%s", IndexK(v), formatConstRef(proto, IndexK(v))))
	}
	return strings.Join(refs, " ")
}

func formatConstRef(proto *Prototype, idx uint32) string {
	if proto == nil || int(idx) >= len(proto.Constants) {
		return "<invalid>"
	}
	return proto.Constants[idx].Format(true)
}
