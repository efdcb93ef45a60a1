package decompiler

import "github.com/xirelogy/go-lunar/internal/bytecode"

// InstStream is a forward cursor over a prototype's instructions.
type InstStream struct {
	idx   int
	proto *bytecode.Prototype
}

func NewInstStream(proto *bytecode.Prototype) *InstStream {
	return &InstStream{proto: proto}
}

// Next returns the instruction at the cursor and advances past it.
func (s *InstStream) Next() (bytecode.Instruction, bool) {
	if s.proto == nil || s.idx >= len(s.proto.Code) {
		return bytecode.Instruction{}, false
	}
	inst := s.proto.Code[s.idx]
	s.idx++
	return inst, true
}

// PeekAhead returns the instruction n positions after the one most recently
// returned by Next, without moving the cursor.
func (s *InstStream) PeekAhead(n int) (bytecode.Instruction, bool) {
	pos := s.idx - 1 + n
	if s.proto == nil || pos < 0 || pos >= len(s.proto.Code) {
		return bytecode.Instruction{}, false
	}
	return s.proto.Code[pos], true
}

// NextIs reports whether the following instruction has opcode op.
func (s *InstStream) NextIs(op bytecode.Opcode) bool {
	inst, ok := s.PeekAhead(1)
	return ok && inst.Op == op
}

// Constant returns entry i of the prototype's constant pool.
func (s *InstStream) Constant(i uint32) (*bytecode.Constant, bool) {
	if s.proto == nil || int(i) >= len(s.proto.Constants) {
		return nil, false
	}
	return s.proto.Constants[i], true
}

// Pos is the index of the next instruction Next would return.
func (s *InstStream) Pos() int {
	return s.idx
}
