package bytecode

import "fmt"

// Opcode enumerates the Lua 5.1 virtual machine operations.
// Values match the 6-bit opcode field written by luac 5.1.
type Opcode uint8

const (
	OP_MOVE Opcode = iota
	OP_LOADK
	OP_LOADBOOL
	OP_LOADNIL
	OP_GETUPVAL
	OP_GETGLOBAL
	OP_GETTABLE
	OP_SETGLOBAL
	OP_SETUPVAL
	OP_SETTABLE
	OP_NEWTABLE
	OP_SELF
	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_POW
	OP_UNM
	OP_NOT
	OP_LEN
	OP_CONCAT
	OP_JMP
	OP_EQ
	OP_LT
	OP_LE
	OP_TEST
	OP_TESTSET
	OP_CALL
	OP_TAILCALL
	OP_RETURN
	OP_FORLOOP
	OP_FORPREP
	OP_TFORLOOP
	OP_SETLIST
	OP_CLOSE
	OP_CLOSURE
	OP_VARARG

	// NumOpcodes is the number of defined opcodes; larger 6-bit values are invalid.
	NumOpcodes = iota
)

// Field names one operand slot of an instruction word.
type Field uint8

const (
	FieldA Field = iota
	FieldB
	FieldC
	FieldBx
	FieldSBx
)

func (f Field) String() string {
	switch f {
	case FieldA:
		return "A"
	case FieldB:
		return "B"
	case FieldC:
		return "C"
	case FieldBx:
		return "Bx"
	case FieldSBx:
		return "sBx"
	default:
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
}

var (
	shapeA    = []Field{FieldA}
	shapeAB   = []Field{FieldA, FieldB}
	shapeAC   = []Field{FieldA, FieldC}
	shapeABC  = []Field{FieldA, FieldB, FieldC}
	shapeABx  = []Field{FieldA, FieldBx}
	shapeAsBx = []Field{FieldA, FieldSBx}
	shapesBx  = []Field{FieldSBx}
)

type opInfo struct {
	name  string
	shape []Field
}

var opTable = [NumOpcodes]opInfo{
	OP_MOVE:      {"MOVE", shapeAB},
	OP_LOADK:     {"LOADK", shapeABx},
	OP_LOADBOOL:  {"LOADBOOL", shapeABC},
	OP_LOADNIL:   {"LOADNIL", shapeAB},
	OP_GETUPVAL:  {"GETUPVAL", shapeAB},
	OP_GETGLOBAL: {"GETGLOBAL", shapeABx},
	OP_GETTABLE:  {"GETTABLE", shapeABC},
	OP_SETGLOBAL: {"SETGLOBAL", shapeABx},
	OP_SETUPVAL:  {"SETUPVAL", shapeAB},
	OP_SETTABLE:  {"SETTABLE", shapeABC},
	OP_NEWTABLE:  {"NEWTABLE", shapeABC},
	OP_SELF:      {"SELF", shapeABC},
	OP_ADD:       {"ADD", shapeABC},
	OP_SUB:       {"SUB", shapeABC},
	OP_MUL:       {"MUL", shapeABC},
	OP_DIV:       {"DIV", shapeABC},
	OP_MOD:       {"MOD", shapeABC},
	OP_POW:       {"POW", shapeABC},
	OP_UNM:       {"UNM", shapeAB},
	OP_NOT:       {"NOT", shapeAB},
	OP_LEN:       {"LEN", shapeAB},
	OP_CONCAT:    {"CONCAT", shapeABC},
	OP_JMP:       {"JMP", shapesBx},
	OP_EQ:        {"EQ", shapeABC},
	OP_LT:        {"LT", shapeABC},
	OP_LE:        {"LE", shapeABC},
	OP_TEST:      {"TEST", shapeAC},
	OP_TESTSET:   {"TESTSET", shapeABC},
	OP_CALL:      {"CALL", shapeABC},
	OP_TAILCALL:  {"TAILCALL", shapeABC},
	OP_RETURN:    {"RETURN", shapeAB},
	OP_FORLOOP:   {"FORLOOP", shapeAsBx},
	OP_FORPREP:   {"FORPREP", shapeAsBx},
	OP_TFORLOOP:  {"TFORLOOP", shapeAC},
	OP_SETLIST:   {"SETLIST", shapeABC},
	OP_CLOSE:     {"CLOSE", shapeA},
	OP_CLOSURE:   {"CLOSURE", shapeABx},
	OP_VARARG:    {"VARARG", shapeAB},
}

// Valid reports whether op is one of the 38 defined opcodes.
func (op Opcode) Valid() bool {
	return op < NumOpcodes
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OP_0x%02X", uint8(op))
	}
	return opTable[op].name
}

// Shape returns the ordered operand fields declared for op.
// The returned slice is shared and must not be modified.
func (op Opcode) Shape() []Field {
	if !op.Valid() {
		return nil
	}
	return opTable[op].shape
}

// LookupOpcode finds an opcode by its mnemonic (e.g. "LOADK").
func LookupOpcode(name string) (Opcode, bool) {
	for i := range opTable {
		if opTable[i].name == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
