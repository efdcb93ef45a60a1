package vm

import (
	"crypto/rand"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

type frame struct {
	cl     *Closure
	base   int
	pc     int
	lastOp int
	consts []*bytecode.Constant
	// capture is the closure awaiting upvalue directives, if any.
	capture *captureWindow
}

// captureWindow tracks the capture directives still owed to a new closure.
// A one-slot window binds slot A; a wider window binds its directives to
// slots 0, 1, 2, ... in order and ignores A.
type captureWindow struct {
	cl         *Closure
	next       uint32
	remaining  int
	positional bool
}

type stepKind int

const (
	stepContinue stepKind = iota
	stepReturn
)

// stepResult reports what a single dispatched instruction asks the loop to do.
type stepResult struct {
	kind   stepKind
	values []*Cell
}

// VM is a register-based interpreter for Lua 5.1 prototypes.
type VM struct {
	registers []*Cell
	globals   map[uint32]*Cell
	frames    []*frame
	top       int
	maxFrames int
	traceHook TraceHook
	instLimit int
	instCount int
	logger    zerolog.Logger
	log       zerolog.Logger
	runID     ulid.ULID
}

const defaultMaxFrames = 200

// New constructs an empty VM instance.
func New() *VM {
	return &VM{
		registers: make([]*Cell, 0, 256),
		globals:   make(map[uint32]*Cell),
		frames:    make([]*frame, 0, 16),
		top:       -1,
		maxFrames: defaultMaxFrames,
		logger:    zerolog.Nop(),
		log:       zerolog.Nop(),
	}
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Run (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// SetMaxFrames caps the call depth; values below 1 restore the default.
func (vm *VM) SetMaxFrames(n int) {
	if n < 1 {
		n = defaultMaxFrames
	}
	vm.maxFrames = n
}

// SetLogger installs the logger used for call tracing.
func (vm *VM) SetLogger(logger zerolog.Logger) {
	vm.logger = logger
	vm.log = logger
}

// RunID identifies the most recent run in logs and errors.
func (vm *VM) RunID() ulid.ULID {
	return vm.runID
}

// ResetState clears transient execution state (registers, frames, top).
// Globals survive.
func (vm *VM) ResetState() {
	for i := range vm.registers {
		vm.registers[i] = nil
	}
	vm.registers = vm.registers[:0]
	vm.frames = vm.frames[:0]
	vm.top = -1
	vm.instCount = 0
}

// Run executes a prototype as the main function of a fresh run.
func (vm *VM) Run(proto *bytecode.Prototype) ([]Value, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: nil main prototype", ErrMissingProto)
	}
	return vm.RunClosure(NewClosure(proto, "main"))
}

// RunClosure calls cl with no arguments at base 0 and returns its results.
func (vm *VM) RunClosure(cl *Closure) ([]Value, error) {
	vm.ResetState()
	vm.runID = ulid.MustNew(ulid.Now(), rand.Reader)
	vm.log = vm.logger.With().Str("run", vm.runID.String()).Logger()
	if cl == nil {
		return nil, vm.errorf(nil, ErrNotFunction, "nil closure")
	}
	cells, err := vm.call(cl, 0, 0)
	if err != nil {
		vm.log.Debug().Err(err).Msg("run aborted")
		return nil, err
	}
	out := make([]Value, len(cells))
	for i, cell := range cells {
		out[i] = cell.Get()
	}
	return out, nil
}

// call runs cl to completion with its register window starting at base.
func (vm *VM) call(cl *Closure, base, nargs int) ([]*Cell, error) {
	if len(vm.frames) >= vm.maxFrames {
		var caller *frame
		if len(vm.frames) > 0 {
			caller = vm.frames[len(vm.frames)-1]
		}
		return nil, vm.errorf(caller, ErrStackOverflow, "depth %d", len(vm.frames))
	}
	if cl.Proto == nil {
		return nil, vm.errorf(nil, ErrMissingProto, "closure %s", cl.Name)
	}
	fr := &frame{
		cl:     cl,
		base:   base,
		lastOp: -1,
		consts: cl.Proto.Constants,
	}
	for i := nargs; i < int(cl.Proto.NumParams); i++ {
		vm.setAbs(base+i, NewCell(Nil()))
	}
	vm.frames = append(vm.frames, fr)
	defer func() {
		vm.frames[len(vm.frames)-1] = nil
		vm.frames = vm.frames[:len(vm.frames)-1]
	}()
	vm.log.Debug().
		Str("func", cl.Name).
		Int("depth", len(vm.frames)).
		Int("base", base).
		Int("nargs", nargs).
		Msg("call")
	values, err := vm.execute(fr)
	if err != nil {
		return nil, err
	}
	vm.log.Debug().Str("func", cl.Name).Int("results", len(values)).Msg("return")
	return values, nil
}

// execute is the dispatch loop for one frame.
func (vm *VM) execute(fr *frame) ([]*Cell, error) {
	code := fr.cl.Proto.Code
	for fr.pc = fr.cl.cursor; fr.pc < len(code); {
		inst := code[fr.pc]
		fr.lastOp = fr.pc
		fr.pc++
		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			return nil, vm.errorf(fr, ErrInstructionLimit, "limit %d", vm.instLimit)
		}
		vm.trace(fr, inst.Op)
		res, err := vm.step(fr, inst)
		if err != nil {
			return nil, vm.wrapError(fr, err)
		}
		if res.kind == stepReturn {
			return res.values, nil
		}
	}
	return nil, nil
}

func (vm *VM) step(fr *frame, inst bytecode.Instruction) (stepResult, error) {
	if fr.capture != nil {
		if inst.Op == bytecode.OP_MOVE || inst.Op == bytecode.OP_GETUPVAL {
			return stepResult{}, vm.captureUpvalue(fr, inst)
		}
		fr.capture = nil
	}

	a := int(inst.A())
	switch inst.Op {
	case bytecode.OP_MOVE:
		cell, err := vm.reg(fr, int(inst.B()))
		if err != nil {
			return stepResult{}, err
		}
		vm.setReg(fr, a, cell)
	case bytecode.OP_LOADK:
		k, err := vm.constant(fr, inst.Bx())
		if err != nil {
			return stepResult{}, err
		}
		vm.setReg(fr, a, NewCell(constToValue(k)))
	case bytecode.OP_GETUPVAL:
		cell, ok := fr.cl.Upvalue(inst.B())
		if !ok {
			return stepResult{}, vm.errorf(fr, ErrMissingUpvalue, "slot %d", inst.B())
		}
		vm.setReg(fr, a, cell)
	case bytecode.OP_SETUPVAL:
		src, err := vm.reg(fr, a)
		if err != nil {
			return stepResult{}, err
		}
		fr.cl.BindUpvalue(inst.B(), src)
	case bytecode.OP_GETGLOBAL:
		cell, ok := vm.globals[inst.Bx()]
		if !ok {
			return stepResult{}, vm.errorf(fr, ErrMissingGlobal, "%s", vm.globalName(fr, inst.Bx()))
		}
		vm.setReg(fr, a, cell)
	case bytecode.OP_SETGLOBAL:
		cell, err := vm.reg(fr, a)
		if err != nil {
			return stepResult{}, err
		}
		vm.globals[inst.Bx()] = cell
	case bytecode.OP_CLOSURE:
		protos := fr.cl.Proto.Protos
		bx := int(inst.Bx())
		if bx >= len(protos) {
			return stepResult{}, vm.errorf(fr, ErrMissingProto, "index %d of %d", bx, len(protos))
		}
		cl := NewClosure(protos[bx], fmt.Sprintf("%s/%d", fr.cl.Name, bx))
		if cl.Source == "" {
			cl.Source = fr.cl.Source
		}
		vm.setReg(fr, a, NewCell(Function(cl)))
		nups := max(int(protos[bx].NumUpvalues), 1)
		fr.capture = &captureWindow{
			cl:         cl,
			remaining:  nups,
			positional: nups > 1,
		}
	case bytecode.OP_ADD, bytecode.OP_SUB, bytecode.OP_MUL,
		bytecode.OP_DIV, bytecode.OP_MOD, bytecode.OP_POW:
		return stepResult{}, vm.arith(fr, inst)
	case bytecode.OP_CALL, bytecode.OP_TAILCALL:
		return stepResult{}, vm.callInstruction(fr, inst)
	case bytecode.OP_RETURN:
		values, err := vm.returnValues(fr, inst)
		if err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepReturn, values: values}, nil
	default:
		// decoded, not executed
	}
	return stepResult{}, nil
}

// captureUpvalue binds the pending closure's next upvalue slot.
func (vm *VM) captureUpvalue(fr *frame, inst bytecode.Instruction) error {
	w := fr.capture
	slot := inst.A()
	if w.positional {
		slot = w.next
	}
	var cell *Cell
	switch inst.Op {
	case bytecode.OP_MOVE:
		c, err := vm.reg(fr, int(inst.B()))
		if err != nil {
			return err
		}
		cell = c
	case bytecode.OP_GETUPVAL:
		c, ok := fr.cl.Upvalue(inst.B())
		if !ok {
			return vm.errorf(fr, ErrMissingUpvalue, "slot %d", inst.B())
		}
		cell = c
	}
	w.cl.BindUpvalue(slot, cell)
	w.next++
	w.remaining--
	if w.remaining == 0 {
		fr.capture = nil
	}
	return nil
}

func (vm *VM) arith(fr *frame, inst bytecode.Instruction) error {
	lhs, err := vm.rk(fr, inst.B())
	if err != nil {
		return err
	}
	rhs, err := vm.rk(fr, inst.C())
	if err != nil {
		return err
	}
	if lhs.Kind != KindNumber || rhs.Kind != KindNumber {
		vm.log.Debug().
			Str("op", inst.Op.String()).
			Str("lhs", typeName(lhs)).
			Str("rhs", typeName(rhs)).
			Msg("arithmetic skipped")
		return nil
	}
	x, y := lhs.Num, rhs.Num
	var n float64
	switch inst.Op {
	case bytecode.OP_ADD:
		n = x + y
	case bytecode.OP_SUB:
		n = x - y
	case bytecode.OP_MUL:
		n = x * y
	case bytecode.OP_DIV:
		n = x / y
	case bytecode.OP_MOD:
		n = math.Mod(x, y)
	case bytecode.OP_POW:
		n = math.Pow(x, y)
	}
	vm.setReg(fr, int(inst.A()), NewCell(Number(n)))
	return nil
}

func (vm *VM) callInstruction(fr *frame, inst bytecode.Instruction) error {
	a := int(inst.A())
	b := int(inst.B())
	c := int(inst.C())
	calleeCell, err := vm.reg(fr, a)
	if err != nil {
		return err
	}
	callee := calleeCell.Get()
	if callee.Kind != KindFunction || callee.Func == nil {
		return vm.errorf(fr, ErrNotFunction, "register %d holds %s", a, typeName(callee))
	}
	argBase := fr.base + a + 1
	nargs := b - 1
	if b == 0 {
		if vm.top < 0 {
			return vm.errorf(fr, ErrTopUnset, "%s B=0", inst.Op)
		}
		nargs = max(vm.top-argBase, 0)
	}
	results, err := vm.call(callee.Func, argBase, nargs)
	if err != nil {
		return err
	}
	for i, cell := range results {
		vm.setReg(fr, a+i, cell)
	}
	if c == 0 || inst.Op == bytecode.OP_TAILCALL {
		vm.top = fr.base + a + len(results)
	}
	return nil
}

func (vm *VM) returnValues(fr *frame, inst bytecode.Instruction) ([]*Cell, error) {
	a := int(inst.A())
	b := int(inst.B())
	var end int
	switch {
	case b == 1:
		return nil, nil
	case b == 0:
		if vm.top < 0 {
			return nil, vm.errorf(fr, ErrTopUnset, "RETURN B=0")
		}
		end = vm.top - fr.base
	default:
		end = a + b - 1
	}
	values := make([]*Cell, 0, max(end-a, 0))
	for i := a; i < end; i++ {
		cell, err := vm.reg(fr, i)
		if err != nil {
			return nil, err
		}
		values = append(values, cell)
	}
	return values, nil
}

func (vm *VM) reg(fr *frame, i int) (*Cell, error) {
	idx := fr.base + i
	if idx < 0 || idx >= len(vm.registers) || vm.registers[idx] == nil {
		return nil, vm.errorf(fr, ErrMissingRegister, "R%d", i)
	}
	return vm.registers[idx], nil
}

func (vm *VM) setReg(fr *frame, i int, cell *Cell) {
	vm.setAbs(fr.base+i, cell)
}

func (vm *VM) setAbs(idx int, cell *Cell) {
	for idx >= len(vm.registers) {
		vm.registers = append(vm.registers, nil)
	}
	vm.registers[idx] = cell
}

func (vm *VM) constant(fr *frame, idx uint32) (*bytecode.Constant, error) {
	if int(idx) >= len(fr.consts) {
		return nil, vm.errorf(fr, ErrMissingConstant, "k%d of %d", idx, len(fr.consts))
	}
	return fr.consts[idx], nil
}

// rk resolves a B/C operand to a register or constant value.
func (vm *VM) rk(fr *frame, x uint32) (Value, error) {
	if bytecode.IsK(x) {
		k, err := vm.constant(fr, bytecode.IndexK(x))
		if err != nil {
			return Value{}, err
		}
		return constToValue(k), nil
	}
	cell, err := vm.reg(fr, int(x))
	if err != nil {
		return Value{}, err
	}
	return cell.Get(), nil
}

// globalName renders a global key for messages, falling back to the index.
func (vm *VM) globalName(fr *frame, idx uint32) string {
	if int(idx) < len(fr.consts) && fr.consts[idx].Kind == bytecode.ConstString {
		return fmt.Sprintf("%q (k%d)", fr.consts[idx].Str, idx)
	}
	return fmt.Sprintf("k%d", idx)
}
