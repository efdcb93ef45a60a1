package vm

// TypeName reports the dynamic type name for a value.
func TypeName(v Value) string {
	return typeName(v)
}

// Global reads the global bound at constant index idx.
func (vm *VM) Global(idx uint32) (Value, bool) {
	cell, ok := vm.globals[idx]
	if !ok {
		return Nil(), false
	}
	return cell.Get(), true
}

// GlobalCell exposes the shared cell bound at idx.
func (vm *VM) GlobalCell(idx uint32) (*Cell, bool) {
	cell, ok := vm.globals[idx]
	return cell, ok
}

// DefineGlobal binds v into a fresh cell at idx, replacing any binding.
func (vm *VM) DefineGlobal(idx uint32, v Value) {
	vm.globals[idx] = NewCell(v)
}

// GlobalKeys lists bound global indices in ascending order.
func (vm *VM) GlobalKeys() []uint32 {
	keys := make([]uint32, 0, len(vm.globals))
	for idx := range vm.globals {
		keys = append(keys, idx)
	}
	sortSlots(keys)
	return keys
}

// Register reads absolute register idx. Registers persist after a run
// until the next run resets them.
func (vm *VM) Register(idx int) (Value, bool) {
	if idx < 0 || idx >= len(vm.registers) || vm.registers[idx] == nil {
		return Nil(), false
	}
	return vm.registers[idx].Get(), true
}

// Top reports the variable-length marker, or -1 when unset.
func (vm *VM) Top() int {
	return vm.top
}
