package lerrors

import "fmt"

// Kind classifies a compilation failure.
type Kind int

const (
	// Lexical marks a malformed token.
	Lexical Kind = iota
	// Syntax marks an unexpected token or invalid construct.
	Syntax
	// Limit marks an exceeded compiler limit.
	Limit
	// Internal marks a compiler invariant violation.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Syntax:
		return "syntax"
	case Limit:
		return "limit"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a source-positioned compilation failure. The whole compile
// aborts on the first one raised; no partial output is usable.
type Error struct {
	Kind    Kind
	Source  string
	Line    int
	Message string
	Near    string // token text at the failure point, when available
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Near != "" {
		msg = fmt.Sprintf("%s near '%s'", msg, e.Near)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, msg)
	}
	return fmt.Sprintf("%s: %s", e.Source, msg)
}

// Raise aborts the compilation by panicking with the error. The public
// API recovers it at the compile boundary.
func Raise(e *Error) {
	panic(e)
}
