package lunar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// Value wraps a runtime value produced by or handed to the VM.
type Value struct {
	v vm.Value
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueNumber
	ValueBoolean
	ValueString
	ValueFunction
)

func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueNumber:
		return "number"
	case ValueBoolean:
		return "boolean"
	case ValueString:
		return "string"
	case ValueFunction:
		return "function"
	default:
		return "unknown"
	}
}

// NewValue converts a Go scalar (nil, bool, string or any integer/float) into a Value.
func NewValue(val any) (Value, error) {
	if val == nil {
		return Value{v: vm.Nil()}, nil
	}
	switch x := val.(type) {
	case Value:
		return x, nil
	case bool:
		return Value{v: vm.Bool(x)}, nil
	case string:
		return Value{v: vm.String(x)}, nil
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Value{v: vm.Number(float64(rv.Int()))}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Value{v: vm.Number(float64(rv.Uint()))}, nil
	case reflect.Float32, reflect.Float64:
		return Value{v: vm.Number(rv.Float())}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", val)
	}
}

// MustValue converts and panics on error (convenience for tests/examples).
func MustValue(val any) Value {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind reports the underlying value kind.
func (v Value) Kind() ValueKind {
	return ValueKind(v.v.Kind)
}

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool {
	return v.v.Kind == vm.KindNil
}

// IsFunction reports whether the value is a closure.
func (v Value) IsFunction() bool {
	return v.v.Kind == vm.KindFunction
}

// Number returns the numeric value when the kind matches.
func (v Value) Number() (float64, bool) {
	if v.v.Kind != vm.KindNumber {
		return 0, false
	}
	return v.v.Num, true
}

// Bool returns the boolean value when the kind matches.
func (v Value) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBoolean {
		return false, false
	}
	return v.v.B, true
}

// String returns the string value when the kind matches.
func (v Value) String() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// FunctionName returns the closure's qualified prototype name, e.g. "main/0".
func (v Value) FunctionName() (string, bool) {
	if v.v.Kind != vm.KindFunction || v.v.Func == nil {
		return "", false
	}
	return v.v.Func.Name, true
}

// Format renders the value the way the CLI prints results.
func (v Value) Format() string {
	return v.v.Format(true)
}

// Raw returns a Go representation of the value.
// Functions are not convertible and return an error.
func (v Value) Raw() (any, error) {
	switch v.v.Kind {
	case vm.KindNil:
		return nil, nil
	case vm.KindNumber:
		return v.v.Num, nil
	case vm.KindBoolean:
		return v.v.B, nil
	case vm.KindString:
		return v.v.Str, nil
	case vm.KindFunction:
		return nil, errors.New("cannot convert function to Go value")
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.v.Kind)
	}
}

// Equal compares scalars by value and functions by identity.
func (v Value) Equal(other Value) bool {
	return vm.Equal(v.v, other.v)
}

// FormatValues renders a result list as "[a, b, ...]".
func FormatValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.Format()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func wrapValues(src []vm.Value) []Value {
	out := make([]Value, len(src))
	for i, v := range src {
		out[i] = Value{v: v}
	}
	return out
}
