package vm

// Duplicate returns a new VM with copied globals and configuration.
// Execution state (registers/frames) is reset in the duplicate. Aliasing
// between cells and cycles between closures are preserved in the copy.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := New()
	dup.maxFrames = vm.maxFrames
	dup.traceHook = vm.traceHook
	dup.instLimit = vm.instLimit
	dup.logger = vm.logger
	dup.log = vm.logger

	clone := newCloneState()
	for idx, cell := range vm.globals {
		dup.globals[idx] = clone.cloneCell(cell)
	}
	return dup
}

type cloneState struct {
	cells    map[*Cell]*Cell
	closures map[*Closure]*Closure
}

func newCloneState() *cloneState {
	return &cloneState{
		cells:    make(map[*Cell]*Cell),
		closures: make(map[*Closure]*Closure),
	}
}

func (cs *cloneState) cloneCell(c *Cell) *Cell {
	if c == nil {
		return nil
	}
	if cloned, ok := cs.cells[c]; ok {
		return cloned
	}
	out := &Cell{}
	cs.cells[c] = out
	out.v = cs.cloneValue(c.v)
	return out
}

func (cs *cloneState) cloneValue(v Value) Value {
	if v.Kind != KindFunction || v.Func == nil {
		return v
	}
	return Function(cs.cloneClosure(v.Func))
}

func (cs *cloneState) cloneClosure(cl *Closure) *Closure {
	if cloned, ok := cs.closures[cl]; ok {
		return cloned
	}
	out := &Closure{
		Proto:    cl.Proto,
		Name:     cl.Name,
		Source:   cl.Source,
		upvalues: make(map[uint32]*Cell, len(cl.upvalues)),
		cursor:   cl.cursor,
	}
	cs.closures[cl] = out
	for slot, cell := range cl.upvalues {
		out.upvalues[slot] = cs.cloneCell(cell)
	}
	return out
}
