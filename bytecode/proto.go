package bytecode

import (
	"fmt"
	"strconv"
)

// ValueKind tags a constant value.
type ValueKind int

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// Value is a constant-pool entry. The zero Value is nil.
// Values are comparable and may be used as map keys.
type Value struct {
	Kind ValueKind
	B    bool
	Num  float64
	Str  string
}

// Nil returns the nil constant.
func Nil() Value { return Value{} }

// Bool wraps a boolean constant.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Number wraps a numeric constant.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// String wraps a string constant.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// IsNumber reports whether the value is numeric.
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// String renders the value the way a source listing would show it.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', 14, 64)
	case KindString:
		return strconv.Quote(v.Str)
	default:
		return fmt.Sprintf("<bad kind %d>", v.Kind)
	}
}

// LocalVar records a local variable name and its live instruction range.
type LocalVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// UpvalueKind describes where an upvalue captures its variable from.
type UpvalueKind int

const (
	// UpvalueLocal captures a local register of the directly enclosing function.
	UpvalueLocal UpvalueKind = iota
	// UpvalueOuter re-captures an upvalue of the directly enclosing function.
	UpvalueOuter
)

// Upvalue describes one captured variable of a prototype.
type Upvalue struct {
	Name  string
	Kind  UpvalueKind
	Index int
}

// Proto is a compiled function object: the compiler's output, handed to the
// external serializer or VM loader.
type Proto struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       int
	IsVararg        bool
	MaxStackSize    int

	Code      []Instruction
	Lines     []int32 // parallel to Code
	Constants []Value
	Protos    []*Proto
	Upvalues  []Upvalue

	// Debug information; absent after Strip.
	Locals []LocalVar
}

// Strip removes debug information from the prototype and all nested ones.
func (p *Proto) Strip() {
	p.Lines = nil
	p.Locals = nil
	for i := range p.Upvalues {
		p.Upvalues[i].Name = ""
	}
	for _, child := range p.Protos {
		child.Strip()
	}
}

// LineAt returns the source line for an instruction index, or 0 when
// debug information is missing.
func (p *Proto) LineAt(pc int) int {
	if pc < 0 || pc >= len(p.Lines) {
		return 0
	}
	return int(p.Lines[pc])
}
