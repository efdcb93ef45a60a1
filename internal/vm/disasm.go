package vm

import (
	"fmt"
	"io"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Disassemble emits assembly-style output for function values held in globals,
// in ascending global-index order.
func (vm *VM) Disassemble(w io.Writer) error {
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	return vm.DisassembleWith(bytecode.NewDisassembler(w))
}

// DisassembleWith is Disassemble using a preconfigured disassembler.
func (vm *VM) DisassembleWith(dis *bytecode.Disassembler) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if dis == nil {
		return fmt.Errorf("nil disassembler")
	}
	for _, idx := range vm.GlobalKeys() {
		val := vm.globals[idx].Get()
		if val.Kind != KindFunction || val.Func == nil {
			continue
		}
		label := fmt.Sprintf("global[%d]:%s", idx, val.Func.Name)
		if err := dis.DisassemblePrototype(label, val.Func.Proto); err != nil {
			return err
		}
	}
	return nil
}
