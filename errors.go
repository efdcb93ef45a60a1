package lunar

import (
	"errors"

	"github.com/xirelogy/go-lunar/internal/undump"
	"github.com/xirelogy/go-lunar/internal/vm"
)

var (
	ErrNoChunk = errors.New("no chunk loaded")
	ErrBusy    = errors.New("VM is busy; concurrent runs not allowed")

	// Chunk format errors, matched with errors.Is.
	ErrTruncated          = undump.ErrTruncated
	ErrBadMagic           = undump.ErrBadMagic
	ErrUnsupportedVersion = undump.ErrUnsupportedVersion
	ErrUnknownConstantTag = undump.ErrUnknownConstantTag
	ErrUnknownOpcode      = undump.ErrUnknownOpcode

	// Execution error causes, matched with errors.Is.
	ErrMissingRegister  = vm.ErrMissingRegister
	ErrMissingConstant  = vm.ErrMissingConstant
	ErrMissingGlobal    = vm.ErrMissingGlobal
	ErrMissingUpvalue   = vm.ErrMissingUpvalue
	ErrNotFunction      = vm.ErrNotFunction
	ErrTopUnset         = vm.ErrTopUnset
	ErrStackOverflow    = vm.ErrStackOverflow
	ErrInstructionLimit = vm.ErrInstructionLimit
)

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	PC       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	RunID   string
	Cause   error
}

func (e *RuntimeError) Error() string {
	return vm.FormatError(vm.FrameInfo(e.Frame), e.Message, e.RunID)
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Source   string
	Line     int
	PC       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		return &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Stack:   stackTraceFromVM(rte.Stack),
			RunID:   rte.RunID.String(),
			Cause:   rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		PC:       info.PC,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}
