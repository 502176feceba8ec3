package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source line. Literal holds
// the identifier or string payload, Num the numeric payload.
type Token struct {
	Type    Type
	Literal string
	Num     float64
	Line    int
}

const (
	EOF Type = "EOF"

	// identifiers and literals
	Name   Type = "NAME"
	Number Type = "NUMBER"
	String Type = "STRING"

	// keywords
	And      Type = "AND"
	Break    Type = "BREAK"
	Do       Type = "DO"
	Else     Type = "ELSE"
	ElseIf   Type = "ELSEIF"
	End      Type = "END"
	False    Type = "FALSE"
	For      Type = "FOR"
	Function Type = "FUNCTION"
	If       Type = "IF"
	In       Type = "IN"
	Local    Type = "LOCAL"
	Nil      Type = "NIL"
	Not      Type = "NOT"
	Or       Type = "OR"
	Repeat   Type = "REPEAT"
	Return   Type = "RETURN"
	Then     Type = "THEN"
	True     Type = "TRUE"
	Until    Type = "UNTIL"
	While    Type = "WHILE"

	// operators
	Plus         Type = "PLUS"         // +
	Minus        Type = "MINUS"        // -
	Star         Type = "STAR"         // *
	Slash        Type = "SLASH"        // /
	Percent      Type = "PERCENT"      // %
	Caret        Type = "CARET"        // ^
	Hash         Type = "HASH"         // #
	Equal        Type = "EQUAL"        // ==
	NotEqual     Type = "NOTEQUAL"     // ~=
	LessEqual    Type = "LESSEQUAL"    // <=
	GreaterEqual Type = "GREATEREQUAL" // >=
	Less         Type = "LESS"         // <
	Greater      Type = "GREATER"      // >
	Assign       Type = "ASSIGN"       // =
	Concat       Type = "CONCAT"       // ..
	Ellipsis     Type = "ELLIPSIS"     // ...

	// delimiters
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
	LBracket  Type = "LBRACKET"
	RBracket  Type = "RBRACKET"
	Semicolon Type = "SEMICOLON"
	Colon     Type = "COLON"
	Comma     Type = "COMMA"
	Dot       Type = "DOT"
)

var keywords = map[string]Type{
	"and":      And,
	"break":    Break,
	"do":       Do,
	"else":     Else,
	"elseif":   ElseIf,
	"end":      End,
	"false":    False,
	"for":      For,
	"function": Function,
	"if":       If,
	"in":       In,
	"local":    Local,
	"nil":      Nil,
	"not":      Not,
	"or":       Or,
	"repeat":   Repeat,
	"return":   Return,
	"then":     Then,
	"true":     True,
	"until":    Until,
	"while":    While,
}

// LookupName returns the keyword token type for reserved words, or Name.
func LookupName(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Name
}

// IsReserved reports whether the identifier is a reserved word.
func IsReserved(ident string) bool {
	_, ok := keywords[ident]
	return ok
}

// Text renders the token the way error messages quote it: reserved words
// and symbols as themselves, literals by their payload.
func (t Token) Text() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case Name, String, Number:
		return t.Literal
	default:
		return TypeText(t.Type)
	}
}

// TypeText returns the source spelling of a keyword or symbol type.
func TypeText(t Type) string {
	if s, ok := symbols[t]; ok {
		return s
	}
	return string(t)
}

var symbols = map[Type]string{
	And: "and", Break: "break", Do: "do", Else: "else", ElseIf: "elseif",
	End: "end", False: "false", For: "for", Function: "function", If: "if",
	In: "in", Local: "local", Nil: "nil", Not: "not", Or: "or",
	Repeat: "repeat", Return: "return", Then: "then", True: "true",
	Until: "until", While: "while",

	Plus: "+", Minus: "-", Star: "*", Slash: "/", Percent: "%",
	Caret: "^", Hash: "#", Equal: "==", NotEqual: "~=", LessEqual: "<=",
	GreaterEqual: ">=", Less: "<", Greater: ">", Assign: "=",
	Concat: "..", Ellipsis: "...",

	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}",
	LBracket: "[", RBracket: "]", Semicolon: ";", Colon: ":",
	Comma: ",", Dot: ".",
}
