// Package decompiler reconstructs Lua source for straight-line constant
// assignments in a prototype.
package decompiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

var ErrMissingConstant = errors.New("missing constant")

// Decompiler walks one prototype and emits one source line per recognized
// pattern:
//
//	LOADK R, k; SETGLOBAL R, g  ->  g = k
//	LOADK R, k                  ->  local lv_N = k
//
// ADD is recognized and produces nothing; other opcodes are ignored.
type Decompiler struct {
	iter  *InstStream
	lvIdx int
}

func New(proto *bytecode.Prototype) *Decompiler {
	return &Decompiler{iter: NewInstStream(proto)}
}

// Decompile is shorthand for New(proto).Run().
func Decompile(proto *bytecode.Prototype) (string, error) {
	return New(proto).Run()
}

func (d *Decompiler) localName() string {
	name := fmt.Sprintf("lv_%d", d.lvIdx)
	d.lvIdx++
	return name
}

func (d *Decompiler) Run() (string, error) {
	var out strings.Builder
	for {
		inst, ok := d.iter.Next()
		if !ok {
			break
		}
		switch inst.Op {
		case bytecode.OP_LOADK:
			line, err := d.loadK(inst)
			if err != nil {
				return "", fmt.Errorf("pc %d: %w", d.iter.Pos()-1, err)
			}
			out.WriteString(line)
			out.WriteByte('\n')
		case bytecode.OP_ADD:
			// arithmetic is not reconstructed yet
		}
	}
	return out.String(), nil
}

func (d *Decompiler) loadK(inst bytecode.Instruction) (string, error) {
	value, err := d.constant(inst.Bx())
	if err != nil {
		return "", err
	}
	if next, ok := d.iter.PeekAhead(1); ok && next.Op == bytecode.OP_SETGLOBAL && next.A() == inst.A() {
		name, err := d.constant(next.Bx())
		if err != nil {
			return "", err
		}
		return name.Format(false) + " = " + value.Format(true), nil
	}
	return "local " + d.localName() + " = " + value.Format(true), nil
}

func (d *Decompiler) constant(idx uint32) (*bytecode.Constant, error) {
	k, ok := d.iter.Constant(idx)
	if !ok {
		return nil, fmt.Errorf("%w k%d", ErrMissingConstant, idx)
	}
	return k, nil
}
