package vm

import (
	"fmt"
	"strconv"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

type Kind int

const (
	KindNil Kind = iota
	KindNumber
	KindBoolean
	KindString
	KindFunction
)

// Value is an immutable tagged runtime value.
type Value struct {
	Kind Kind
	Num  float64
	B    bool
	Str  string
	Func *Closure
}

func Nil() Value { return Value{Kind: KindNil} }
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}
func Bool(b bool) Value {
	return Value{Kind: KindBoolean, B: b}
}
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}
func Function(c *Closure) Value {
	return Value{Kind: KindFunction, Func: c}
}

// Format renders a value for display; strings are quoted when quote is set.
// Functions print their identity only, never their upvalues.
func (v Value) Format(quote bool) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.B)
	case KindString:
		if quote {
			return strconv.Quote(v.Str)
		}
		return v.Str
	case KindFunction:
		if v.Func == nil {
			return "function: <nil>"
		}
		return fmt.Sprintf("function: %s@%p", v.Func.Name, v.Func)
	default:
		return "<unknown>"
	}
}

func (v Value) String() string {
	return v.Format(true)
}

// Equal compares by value for scalars and by identity for functions.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindNumber:
		return a.Num == b.Num
	case KindBoolean:
		return a.B == b.B
	case KindString:
		return a.Str == b.Str
	case KindFunction:
		return a.Func == b.Func
	default:
		return false
	}
}

func typeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// constToValue materializes a constant-pool entry.
func constToValue(c *bytecode.Constant) Value {
	if c == nil {
		return Nil()
	}
	switch c.Kind {
	case bytecode.ConstBoolean:
		return Bool(c.B)
	case bytecode.ConstNumber:
		return Number(c.Num)
	case bytecode.ConstString:
		return String(c.Str)
	default:
		return Nil()
	}
}

// Cell is a shared mutable slot. Registers, globals and upvalues hold cells,
// so every alias of a cell observes Set immediately.
type Cell struct {
	v Value
}

func NewCell(v Value) *Cell {
	return &Cell{v: v}
}

func (c *Cell) Get() Value {
	if c == nil {
		return Nil()
	}
	return c.v
}

func (c *Cell) Set(v Value) {
	c.v = v
}
