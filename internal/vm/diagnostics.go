package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

var (
	ErrMissingRegister  = errors.New("missing register")
	ErrMissingConstant  = errors.New("missing constant")
	ErrMissingGlobal    = errors.New("missing global")
	ErrMissingUpvalue   = errors.New("missing upvalue")
	ErrMissingProto     = errors.New("missing prototype")
	ErrNotFunction      = errors.New("attempt to call a non-function value")
	ErrTopUnset         = errors.New("variable-length operand without top")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       bytecode.Opcode
	Function string
	Source   string
	Line     int
	PC       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Source   string
	Line     int
	PC       int
}

// RuntimeError carries source/stack information for VM failures.
// A RuntimeError aborts the whole run.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	RunID   ulid.ULID
	Cause   error
}

// Location renders the frame as "source:line in function".
func (f FrameInfo) Location() string {
	var b strings.Builder
	switch {
	case f.Source != "" && f.Line > 0:
		fmt.Fprintf(&b, "%s:%d", f.Source, f.Line)
	case f.Source != "":
		b.WriteString(f.Source)
	case f.Line > 0:
		fmt.Fprintf(&b, "line %d", f.Line)
	}
	if f.Function != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "in %s", f.Function)
	}
	return b.String()
}

// FormatError joins a frame location, a message and the run that failed.
func FormatError(frame FrameInfo, msg, runID string) string {
	if loc := frame.Location(); loc != "" {
		msg = loc + ": " + msg
	}
	if runID != "" {
		msg += " (run " + runID + ")"
	}
	return msg
}

func (e *RuntimeError) Error() string {
	var run string
	if e.RunID != (ulid.ULID{}) {
		run = e.RunID.String()
	}
	return FormatError(e.Frame, e.Message, run)
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// errorf builds a RuntimeError whose message is prefixed by the cause.
func (vm *VM) errorf(fr *frame, cause error, format string, args ...interface{}) error {
	msg := cause.Error()
	if format != "" {
		msg = fmt.Sprintf("%s: %s", msg, fmt.Sprintf(format, args...))
	}
	return vm.newRuntimeError(fr, msg, cause)
}

func (vm *VM) wrapError(fr *frame, err error) error {
	if err == nil {
		return nil
	}
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return err
	}
	return vm.newRuntimeError(fr, err.Error(), err)
}

func (vm *VM) newRuntimeError(fr *frame, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Message: msg,
		Frame:   frameInfo(fr),
		Stack:   vm.stackTrace(),
		RunID:   vm.runID,
		Cause:   cause,
	}
}

func (vm *VM) trace(fr *frame, op bytecode.Opcode) {
	if vm.traceHook == nil {
		return
	}
	info := frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		PC:       info.PC,
		Depth:    len(vm.frames),
	})
}

// stackTrace lists active frames innermost first.
func (vm *VM) stackTrace() []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, frameInfo(vm.frames[i]))
	}
	return trace
}

func frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.cl == nil {
		return FrameInfo{}
	}
	line := 0
	if fr.cl.Proto != nil {
		line = fr.cl.Proto.Line(fr.lastOp)
	}
	return FrameInfo{
		Function: fr.cl.Name,
		Source:   fr.cl.Source,
		Line:     line,
		PC:       fr.lastOp,
	}
}
