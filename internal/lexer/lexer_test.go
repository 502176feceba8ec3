package lexer

import (
	"math"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xirelogy/go-lune/internal/lerrors"
	"github.com/xirelogy/go-lune/internal/token"
)

func newTest(src string) *Lexer {
	return New(strings.NewReader(src), "test", '.')
}

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := newTest(src)
	var toks []token.Token
	for {
		tok := l.Next()
		if tok.Type == token.EOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func scanError(t *testing.T, src string) *lerrors.Error {
	t.Helper()
	l := newTest(src)
	var ferr *lerrors.Error
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("expected a scan error for %q", src)
			}
			e, ok := r.(*lerrors.Error)
			if !ok {
				panic(r)
			}
			ferr = e
		}()
		for {
			if l.Next().Type == token.EOF {
				break
			}
		}
	}()
	return ferr
}

func TestScanTokenSequence(t *testing.T) {
	toks := scanAll(t, "local x = 10 + y")
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	be.Equal(t, types, []token.Type{
		token.Local, token.Name, token.Assign, token.Number, token.Plus, token.Name,
	})
	be.Equal(t, toks[1].Literal, "x")
	be.Equal(t, toks[3].Num, 10.0)
}

func TestKeywordsAreReserved(t *testing.T) {
	toks := scanAll(t, "while whilex do")
	be.Equal(t, toks[0].Type, token.While)
	be.Equal(t, toks[1].Type, token.Name)
	be.Equal(t, toks[1].Literal, "whilex")
	be.Equal(t, toks[2].Type, token.Do)
}

func TestScanOperators(t *testing.T) {
	toks := scanAll(t, "== ~= <= >= < > = .. ... . : ; #")
	want := []token.Type{
		token.Equal, token.NotEqual, token.LessEqual, token.GreaterEqual,
		token.Less, token.Greater, token.Assign, token.Concat, token.Ellipsis,
		token.Dot, token.Colon, token.Semicolon, token.Hash,
	}
	for i, w := range want {
		be.Equal(t, toks[i].Type, w)
	}
}

func TestScanNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"3", 3},
		{"3.25", 3.25},
		{"3.1416e2", 314.16},
		{"1E-2", 0.01},
		{"0xff", 255},
		{"0x10", 16},
		{".5", 0.5},
	}
	for _, tt := range tests {
		toks := scanAll(t, tt.src)
		be.Equal(t, len(toks), 1)
		be.Equal(t, toks[0].Type, token.Number)
		be.Equal(t, toks[0].Num, tt.want)
	}
}

func TestMalformedNumber(t *testing.T) {
	err := scanError(t, "3..2")
	be.Equal(t, err.Kind, lerrors.Lexical)
	be.True(t, strings.Contains(err.Message, "malformed number"))

	err = scanError(t, "0xg")
	be.True(t, strings.Contains(err.Message, "malformed number"))

	// Go-style digit separators are not numerals
	err = scanError(t, "1_0")
	be.True(t, strings.Contains(err.Message, "malformed number"))
}

func TestHugeNumberSaturates(t *testing.T) {
	toks := scanAll(t, "1e999")
	be.Equal(t, toks[0].Type, token.Number)
	be.True(t, math.IsInf(toks[0].Num, 1))
}

func TestLocaleDecimalPoint(t *testing.T) {
	l := New(strings.NewReader("1,5"), "test", ',')
	tok := l.Next()
	be.Equal(t, tok.Type, token.Number)
	be.Equal(t, tok.Num, 1.5)

	// the canonical point still works under a locale separator
	l = New(strings.NewReader("1.5"), "test", ',')
	tok = l.Next()
	be.Equal(t, tok.Type, token.Number)
	be.Equal(t, tok.Num, 1.5)
}

func TestQuotedStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"\65\66\67"`, "ABC"},
		{`"quote\" inside"`, `quote" inside`},
		{`'\''`, "'"},
		{`""`, ""},
	}
	for _, tt := range tests {
		toks := scanAll(t, tt.src)
		be.Equal(t, len(toks), 1)
		be.Equal(t, toks[0].Type, token.String)
		be.Equal(t, toks[0].Literal, tt.want)
	}
}

func TestStringErrors(t *testing.T) {
	err := scanError(t, `"no end`)
	be.True(t, strings.Contains(err.Message, "unfinished string"))

	err = scanError(t, "\"crosses\nlines\"")
	be.True(t, strings.Contains(err.Message, "unfinished string"))

	err = scanError(t, `"\300"`)
	be.True(t, strings.Contains(err.Message, "decimal escape too large"))
}

func TestUnknownEscapePassesThrough(t *testing.T) {
	toks := scanAll(t, `"\q\z"`)
	be.Equal(t, toks[0].Type, token.String)
	be.Equal(t, toks[0].Literal, "qz")
}

func TestLongStrings(t *testing.T) {
	toks := scanAll(t, "[[plain]]")
	be.Equal(t, toks[0].Type, token.String)
	be.Equal(t, toks[0].Literal, "plain")

	// leveled brackets may contain the plain form
	toks = scanAll(t, "[==[has ]] inside]==]")
	be.Equal(t, toks[0].Literal, "has ]] inside")

	// first newline immediately after the opener is dropped
	toks = scanAll(t, "[[\nline]]")
	be.Equal(t, toks[0].Literal, "line")

	err := scanError(t, "[[never closed")
	be.True(t, strings.Contains(err.Message, "unfinished long string"))
}

func TestComments(t *testing.T) {
	toks := scanAll(t, "a -- comment\nb")
	be.Equal(t, len(toks), 2)
	be.Equal(t, toks[0].Literal, "a")
	be.Equal(t, toks[1].Literal, "b")
	be.Equal(t, toks[1].Line, 2)

	toks = scanAll(t, "a --[[ spans\nlines ]] b")
	be.Equal(t, len(toks), 2)
	be.Equal(t, toks[1].Line, 2)

	err := scanError(t, "--[[ never closed")
	be.True(t, strings.Contains(err.Message, "unfinished long comment"))

	// a broken long-bracket opener degrades to a short comment
	toks = scanAll(t, "a --[==junk\nb")
	be.Equal(t, len(toks), 2)
	be.Equal(t, toks[1].Literal, "b")

	// in string position the same broken opener is an error
	err = scanError(t, "return [==")
	be.True(t, strings.Contains(err.Message, "invalid long string delimiter"))
}

func TestLineNumbers(t *testing.T) {
	toks := scanAll(t, "a\nb\r\nc\rd")
	lines := []int{toks[0].Line, toks[1].Line, toks[2].Line, toks[3].Line}
	be.Equal(t, lines, []int{1, 2, 3, 4})
}

func TestLookahead(t *testing.T) {
	l := newTest("a = b")
	tok := l.Next()
	be.Equal(t, tok.Literal, "a")
	ahead := l.Lookahead()
	be.Equal(t, ahead.Type, token.Assign)
	// the buffered token comes back from Next unchanged
	be.Equal(t, l.Next().Type, token.Assign)
	be.Equal(t, l.Next().Literal, "b")
}

func TestUnexpectedSymbol(t *testing.T) {
	err := scanError(t, "a ~ b")
	be.Equal(t, err.Kind, lerrors.Lexical)
	be.True(t, strings.Contains(err.Message, "unexpected symbol"))

	err = scanError(t, "a ? b")
	be.True(t, strings.Contains(err.Message, "unexpected symbol"))
}
