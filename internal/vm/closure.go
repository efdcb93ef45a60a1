package vm

import (
	"sort"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Closure pairs a shared prototype with its captured upvalue cells.
// Closures may capture each other in cycles; they are reclaimed by the
// garbage collector once unreachable.
type Closure struct {
	Proto  *bytecode.Prototype
	Name   string
	Source string

	upvalues map[uint32]*Cell
	cursor   int
}

// NewClosure creates a closure with no upvalues bound.
func NewClosure(proto *bytecode.Prototype, name string) *Closure {
	source := ""
	if proto != nil {
		source = proto.Source
	}
	return &Closure{
		Proto:    proto,
		Name:     name,
		Source:   source,
		upvalues: make(map[uint32]*Cell),
	}
}

// Upvalue returns the cell bound to slot.
func (c *Closure) Upvalue(slot uint32) (*Cell, bool) {
	cell, ok := c.upvalues[slot]
	return cell, ok
}

// BindUpvalue installs cell at slot, replacing any previous binding.
func (c *Closure) BindUpvalue(slot uint32, cell *Cell) {
	delete(c.upvalues, slot)
	c.upvalues[slot] = cell
}

// UpvalueSlots lists bound slots in ascending order.
func (c *Closure) UpvalueSlots() []uint32 {
	slots := make([]uint32, 0, len(c.upvalues))
	for slot := range c.upvalues {
		slots = append(slots, slot)
	}
	sortSlots(slots)
	return slots
}

func sortSlots(slots []uint32) {
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
}

// Cursor is the pc at which a call to the closure starts executing.
// Calls always run to completion, so it stays 0.
func (c *Closure) Cursor() int {
	return c.cursor
}
