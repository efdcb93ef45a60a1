// Package lunar loads precompiled Lua 5.1 chunks and executes them on a
// register-based virtual machine.
package lunar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xirelogy/go-lunar/internal/bytecode"
	"github.com/xirelogy/go-lunar/internal/decompiler"
	"github.com/xirelogy/go-lunar/internal/inspect"
	"github.com/xirelogy/go-lunar/internal/undump"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// VM is the loader/executor for a single chunk.
type VM struct {
	core      *vm.VM
	chunk     *bytecode.Chunk
	logger    zerolog.Logger
	debugInfo bool
	style     OpcodeStyle
	mu        sync.Mutex
	busy      bool
}

// NewVM constructs a new VM instance with no chunk loaded.
func NewVM() *VM {
	return &VM{
		core:   vm.New(),
		logger: zerolog.Nop(),
	}
}

// SetLogger installs the logger used by the decoder and the engine.
func (vmc *VM) SetLogger(logger zerolog.Logger) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.logger = logger
	vmc.core.SetLogger(logger)
}

// SetDebugInfo makes subsequent loads parse debug sections structurally
// instead of discarding three words per prototype.
func (vmc *VM) SetDebugInfo(enable bool) {
	if vmc == nil {
		return
	}
	vmc.debugInfo = enable
}

// LoadFile loads a chunk from a filesystem path.
func (vmc *VM) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := vmc.LoadChunk(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadBytes loads a chunk held in memory.
func (vmc *VM) LoadBytes(data []byte) error {
	return vmc.load(func(opts undump.Options) (*bytecode.Chunk, error) {
		return undump.LoadBytes(data, opts)
	})
}

// LoadChunk decodes a chunk from r, replacing any previously loaded chunk.
// Globals from earlier runs are kept.
func (vmc *VM) LoadChunk(r io.Reader) error {
	return vmc.load(func(opts undump.Options) (*bytecode.Chunk, error) {
		return undump.Load(r, opts)
	})
}

// LoadSnapshot loads a chunk from a CBOR snapshot produced by Export.
func (vmc *VM) LoadSnapshot(data []byte) error {
	return vmc.load(func(undump.Options) (*bytecode.Chunk, error) {
		return inspect.UnmarshalSnapshot(data)
	})
}

func (vmc *VM) load(decode func(undump.Options) (*bytecode.Chunk, error)) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if !vmc.acquire() {
		return ErrBusy
	}
	defer vmc.release()
	chunk, err := decode(undump.Options{DebugInfo: vmc.debugInfo, Logger: &vmc.logger})
	if err != nil {
		return err
	}
	vmc.chunk = chunk
	return nil
}

// Prototype returns the loaded main prototype, or nil.
func (vmc *VM) Prototype() *bytecode.Prototype {
	if vmc == nil || vmc.chunk == nil {
		return nil
	}
	return vmc.chunk.Main
}

// Chunk returns the loaded chunk, or nil.
func (vmc *VM) Chunk() *bytecode.Chunk {
	if vmc == nil {
		return nil
	}
	return vmc.chunk
}

// SetInstructionLimit caps the number of instructions a single run may execute (0 for unlimited).
func (vmc *VM) SetInstructionLimit(limit int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if limit < 0 {
		limit = 0
	}
	vmc.core.SetInstructionLimit(limit)
}

// SetMaxFrames caps the call depth (default 200).
func (vmc *VM) SetMaxFrames(n int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetMaxFrames(n)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (vmc *VM) SetTraceHook(h TraceHook) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if h == nil {
		vmc.core.SetTraceHook(nil)
		return
	}
	vmc.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       info.Op.String(),
			Function: info.Function,
			Source:   info.Source,
			Line:     info.Line,
			PC:       info.PC,
			Depth:    info.Depth,
		})
	})
}

// Global reads the global stored under constant index idx.
func (vmc *VM) Global(idx uint32) (Value, bool) {
	if vmc == nil || vmc.core == nil {
		return Value{}, false
	}
	v, ok := vmc.core.Global(idx)
	return Value{v: v}, ok
}

// SetGlobal binds v under constant index idx.
func (vmc *VM) SetGlobal(idx uint32, v Value) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.DefineGlobal(idx, v.v)
}

// Duplicate clones the loaded chunk, configuration and global state into a new instance.
// The duplicate has independent memory and no in-flight execution state.
func (vmc *VM) Duplicate() (*VM, error) {
	if vmc == nil || vmc.core == nil {
		return nil, errors.New("nil VM")
	}
	if !vmc.acquire() {
		return nil, fmt.Errorf("%w: cannot duplicate while running", ErrBusy)
	}
	defer vmc.release()

	core := vmc.core.Duplicate()
	if core == nil {
		return nil, errors.New("VM duplicate failed")
	}
	return &VM{
		core:      core,
		chunk:     vmc.chunk,
		logger:    vmc.logger,
		debugInfo: vmc.debugInfo,
		style:     vmc.style,
	}, nil
}

// Run executes the loaded chunk's main function and returns its results.
func (vmc *VM) Run() ([]Value, error) {
	if vmc == nil || vmc.core == nil {
		return nil, errors.New("nil VM")
	}
	if !vmc.acquire() {
		return nil, ErrBusy
	}
	defer vmc.release()
	return vmc.run()
}

func (vmc *VM) run() ([]Value, error) {
	if vmc.chunk == nil {
		return nil, ErrNoChunk
	}
	res, err := vmc.core.Run(vmc.chunk.Main)
	if err != nil {
		return nil, convertRuntimeError(err)
	}
	return wrapValues(res), nil
}

func (vmc *VM) acquire() bool {
	vmc.mu.Lock()
	defer vmc.mu.Unlock()
	if vmc.busy {
		return false
	}
	vmc.busy = true
	return true
}

func (vmc *VM) release() {
	vmc.mu.Lock()
	vmc.busy = false
	vmc.mu.Unlock()
}

// VmRunFuture represents an in-flight run.
type VmRunFuture struct {
	ch <-chan VmRunResult
}

// VmRunResult is the outcome of a run.
type VmRunResult struct {
	Values []Value
	Err    error
}

// Await waits for completion or context cancellation.
func (f VmRunFuture) Await(ctx context.Context) ([]Value, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-f.ch:
		return res.Values, res.Err
	}
}

// RunAsync executes the loaded chunk on a separate goroutine.
// The context is checked once before execution starts.
func (vmc *VM) RunAsync(ctx context.Context) VmRunFuture {
	ch := make(chan VmRunResult, 1)
	if vmc == nil || vmc.core == nil {
		ch <- VmRunResult{Err: errors.New("nil VM")}
		close(ch)
		return VmRunFuture{ch: ch}
	}
	if !vmc.acquire() {
		ch <- VmRunResult{Err: ErrBusy}
		close(ch)
		return VmRunFuture{ch: ch}
	}

	go func() {
		defer close(ch)
		defer vmc.release()
		select {
		case <-ctx.Done():
			ch <- VmRunResult{Err: ctx.Err()}
			return
		default:
		}
		values, err := vmc.run()
		ch <- VmRunResult{Values: values, Err: err}
	}()
	return VmRunFuture{ch: ch}
}

// OpcodeStyle decorates a padded opcode name in disassembly output,
// e.g. with terminal colors. op is the bare name such as "LOADK".
type OpcodeStyle func(op, padded string) string

// SetOpcodeStyle installs the decorator used by Disassemble and DisassembleGlobals.
func (vmc *VM) SetOpcodeStyle(style OpcodeStyle) {
	if vmc == nil {
		return
	}
	vmc.style = style
}

func (vmc *VM) disassembler(w io.Writer) *bytecode.Disassembler {
	dis := bytecode.NewDisassembler(w)
	if style := vmc.style; style != nil {
		dis.SetOpcodeStyle(func(op bytecode.Opcode, padded string) string {
			return style(op.String(), padded)
		})
	}
	return dis
}

// Disassemble writes a readable dump of the loaded prototype tree.
func (vmc *VM) Disassemble(w io.Writer) error {
	if vmc == nil || vmc.chunk == nil {
		return ErrNoChunk
	}
	return vmc.disassembler(w).DisassemblePrototype("main", vmc.chunk.Main)
}

// DisassembleGlobals writes a dump of every function value currently held in globals.
func (vmc *VM) DisassembleGlobals(w io.Writer) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	return vmc.core.DisassembleWith(vmc.disassembler(w))
}

// Decompile reconstructs constant assignments of the main prototype as Lua source.
func (vmc *VM) Decompile() (string, error) {
	if vmc == nil || vmc.chunk == nil {
		return "", ErrNoChunk
	}
	return decompiler.Decompile(vmc.chunk.Main)
}

// Export writes the loaded chunk as a json, yaml or cbor document.
func (vmc *VM) Export(w io.Writer, format string) error {
	if vmc == nil || vmc.chunk == nil {
		return ErrNoChunk
	}
	f, err := inspect.ParseFormat(format)
	if err != nil {
		return err
	}
	return inspect.Export(w, vmc.chunk, f)
}
