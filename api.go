// Package lune compiles Lua 5.1 source into register-machine bytecode.
// It is a self-contained front end: the compiler emits code in a single
// pass, with no intermediate syntax tree, and the resulting prototypes
// can be inspected, verified and disassembled through the bytecode
// package.
package lune

import (
	"fmt"
	"io"
	"strings"

	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/compiler"
	"github.com/xirelogy/go-lune/internal/lerrors"
)

// ErrorKind classifies compilation failures.
type ErrorKind int

const (
	// LexicalError reports malformed tokens: unfinished strings, bad
	// escapes, stray symbols.
	LexicalError ErrorKind = iota
	// SyntaxError reports structurally invalid programs.
	SyntaxError
	// LimitError reports programs that exceed a compiler limit, such as
	// the register file or nesting depth.
	LimitError
	// InternalError reports an inconsistency inside the compiler itself.
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case LexicalError:
		return "lexical error"
	case SyntaxError:
		return "syntax error"
	case LimitError:
		return "limit error"
	case InternalError:
		return "internal error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a source-aware compilation error.
type Error struct {
	Kind    ErrorKind
	Source  string // chunk name as given to Compile
	Line    int
	Message string
	Near    string // offending token text, when known
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "%s:", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:", e.Line)
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(e.Message)
	if e.Near != "" {
		fmt.Fprintf(&b, " near '%s'", e.Near)
	}
	return b.String()
}

// CompileOptions tunes compilation behavior. The zero value selects the
// defaults.
type CompileOptions struct {
	// DecimalPoint is the locale decimal separator accepted in number
	// literals in addition to '.'. Zero means '.' only.
	DecimalPoint byte
	// MaxDepth bounds the nesting of syntactic constructs. Zero selects
	// the default of 200 levels.
	MaxDepth int
	// StripDebug drops line, local-variable and upvalue-name debug
	// information from the compiled prototypes.
	StripDebug bool
}

// Compile reads a chunk from r and compiles it with default options.
// source names the chunk in error messages and debug information.
func Compile(r io.Reader, source string) (*bytecode.Proto, error) {
	return CompileWithOptions(r, source, CompileOptions{})
}

// CompileWithOptions compiles a chunk with explicit options. Compilation
// failures are returned as *Error.
func CompileWithOptions(r io.Reader, source string, opts CompileOptions) (proto *bytecode.Proto, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ce, ok := rec.(*lerrors.Error)
			if !ok {
				panic(rec)
			}
			proto, err = nil, convertError(ce)
		}
	}()
	decPoint := opts.DecimalPoint
	if decPoint == 0 {
		decPoint = '.'
	}
	proto = compiler.Compile(r, source, decPoint, opts.MaxDepth)
	if opts.StripDebug {
		proto.Strip()
	}
	return proto, nil
}

// CompileString compiles an in-memory chunk with default options.
func CompileString(src, source string) (*bytecode.Proto, error) {
	return Compile(strings.NewReader(src), source)
}

// CompileStringWithOptions compiles an in-memory chunk with explicit
// options.
func CompileStringWithOptions(src, source string, opts CompileOptions) (*bytecode.Proto, error) {
	return CompileWithOptions(strings.NewReader(src), source, opts)
}

func convertError(e *lerrors.Error) *Error {
	kind := InternalError
	switch e.Kind {
	case lerrors.Lexical:
		kind = LexicalError
	case lerrors.Syntax:
		kind = SyntaxError
	case lerrors.Limit:
		kind = LimitError
	}
	return &Error{
		Kind:    kind,
		Source:  e.Source,
		Line:    e.Line,
		Message: e.Message,
		Near:    e.Near,
	}
}
