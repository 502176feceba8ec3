package lexer

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-lune/internal/lerrors"
	"github.com/xirelogy/go-lune/internal/token"
)

const endOfStream = -1

// Lexer converts a pull-based byte stream into tokens with one token of
// lookahead. Bytes are pulled through a buffered reader; the whole source
// is never assumed to be resident.
type Lexer struct {
	r      *bufio.Reader
	source string
	ch     int // current character, endOfStream at end of input
	line   int // line of the character under the cursor

	ahead     *token.Token // buffered lookahead token, nil when empty
	buf       []byte       // text of the token being scanned, for diagnostics
	decPoint  byte         // decimal separator accepted in numerals
	tokenLine int          // line where the token under scan started
}

// New creates a lexer reading from r. The source name is used in
// diagnostics; decPoint is the decimal separator accepted in numerals
// besides '.'.
func New(r io.Reader, source string, decPoint byte) *Lexer {
	l := &Lexer{
		r:        bufio.NewReader(r),
		source:   source,
		line:     1,
		decPoint: decPoint,
	}
	l.advance()
	return l
}

// Source returns the source name used in diagnostics.
func (l *Lexer) Source() string { return l.source }

// Line returns the line of the character under the cursor.
func (l *Lexer) Line() int { return l.line }

// Next scans and consumes the next token, draining a buffered lookahead
// token first if one exists.
func (l *Lexer) Next() token.Token {
	if l.ahead != nil {
		t := *l.ahead
		l.ahead = nil
		return t
	}
	return l.scan()
}

// Lookahead scans one token ahead without consuming it. The grammar is
// LL(1); buffering a second token is a compiler defect.
func (l *Lexer) Lookahead() token.Token {
	if l.ahead != nil {
		l.raise(lerrors.Internal, "lookahead token already buffered")
	}
	t := l.scan()
	l.ahead = &t
	return t
}

func (l *Lexer) raise(kind lerrors.Kind, msg string) {
	near := string(l.buf)
	lerrors.Raise(&lerrors.Error{
		Kind:    kind,
		Source:  l.source,
		Line:    l.line,
		Message: msg,
		Near:    near,
	})
}

func (l *Lexer) advance() {
	b, err := l.r.ReadByte()
	if err != nil {
		l.ch = endOfStream
		return
	}
	l.ch = int(b)
}

func (l *Lexer) save() {
	l.buf = append(l.buf, byte(l.ch))
}

func (l *Lexer) saveAndAdvance() {
	l.save()
	l.advance()
}

func (l *Lexer) isNewline() bool { return l.ch == '\n' || l.ch == '\r' }

// bumpLine consumes a newline sequence, treating LF, CR, CRLF and LFCR
// each as a single line break.
func (l *Lexer) bumpLine() {
	first := l.ch
	l.advance()
	if l.isNewline() && l.ch != first {
		l.advance()
	}
	l.line++
}

func (l *Lexer) scan() token.Token {
	l.buf = l.buf[:0]
	for {
		switch {
		case l.ch == endOfStream:
			l.tokenLine = l.line
			return l.make(token.EOF)
		case l.isNewline():
			l.bumpLine()
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\v' || l.ch == '\f':
			l.advance()
		case l.ch == '-':
			l.advance()
			if l.ch != '-' {
				return l.make(token.Minus)
			}
			l.advance()
			if l.ch == '[' {
				if level, ok := l.longBracketLevel(); ok {
					l.readLongText(level, false)
					l.buf = l.buf[:0]
					continue
				}
				// a broken opener like --[== is just comment text
				l.buf = l.buf[:0]
			}
			for !l.isNewline() && l.ch != endOfStream {
				l.advance()
			}
		default:
			l.tokenLine = l.line
			return l.scanToken()
		}
	}
}

func (l *Lexer) scanToken() token.Token {
	switch l.ch {
	case '[':
		level, ok := l.longBracketLevel()
		if ok {
			s := l.readLongText(level, true)
			return l.makeString(s)
		}
		if level > 0 { // [== with no second bracket
			l.raise(lerrors.Lexical, "invalid long string delimiter")
		}
		// plain '[' was consumed already
		return l.make(token.LBracket)
	case '=':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.make(token.Equal)
		}
		return l.make(token.Assign)
	case '~':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.make(token.NotEqual)
		}
		l.buf = append(l.buf, '~')
		l.raise(lerrors.Lexical, "unexpected symbol")
	case '<':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.make(token.LessEqual)
		}
		return l.make(token.Less)
	case '>':
		l.advance()
		if l.ch == '=' {
			l.advance()
			return l.make(token.GreaterEqual)
		}
		return l.make(token.Greater)
	case '"', '\'':
		s := l.readQuotedString(byte(l.ch))
		return l.makeString(s)
	case '.':
		l.saveAndAdvance()
		if l.ch == '.' {
			l.saveAndAdvance()
			if l.ch == '.' {
				l.advance()
				return l.make(token.Ellipsis)
			}
			return l.make(token.Concat)
		}
		if isDigit(l.ch) {
			return l.readNumber()
		}
		return l.make(token.Dot)
	case '+':
		l.advance()
		return l.make(token.Plus)
	case '*':
		l.advance()
		return l.make(token.Star)
	case '/':
		l.advance()
		return l.make(token.Slash)
	case '%':
		l.advance()
		return l.make(token.Percent)
	case '^':
		l.advance()
		return l.make(token.Caret)
	case '#':
		l.advance()
		return l.make(token.Hash)
	case '(':
		l.advance()
		return l.make(token.LParen)
	case ')':
		l.advance()
		return l.make(token.RParen)
	case '{':
		l.advance()
		return l.make(token.LBrace)
	case '}':
		l.advance()
		return l.make(token.RBrace)
	case ']':
		l.advance()
		return l.make(token.RBracket)
	case ';':
		l.advance()
		return l.make(token.Semicolon)
	case ':':
		l.advance()
		return l.make(token.Colon)
	case ',':
		l.advance()
		return l.make(token.Comma)
	default:
		if isDigit(l.ch) {
			return l.readNumber()
		}
		if isNameStart(l.ch) {
			return l.readName()
		}
		l.save()
		l.raise(lerrors.Lexical, "unexpected symbol")
		panic("unreachable")
	}
	panic("unreachable")
}

func (l *Lexer) make(t token.Type) token.Token {
	return token.Token{Type: t, Line: l.tokenLine}
}

func (l *Lexer) makeString(s string) token.Token {
	return token.Token{Type: token.String, Literal: s, Line: l.tokenLine}
}

func (l *Lexer) readName() token.Token {
	for isNameStart(l.ch) || isDigit(l.ch) {
		l.saveAndAdvance()
	}
	name := string(l.buf)
	// reserved words were pre-marked at init; a single map lookup decides
	return token.Token{Type: token.LookupName(name), Literal: name, Line: l.tokenLine}
}

// longBracketLevel checks for a long-bracket opener at the cursor (which
// must be on '['). It reports whether a full `[=*[` opener was read; when
// not, the returned level counts the '=' markers consumed, and the caller
// decides whether that is an error (string) or plain text (comment).
func (l *Lexer) longBracketLevel() (int, bool) {
	l.saveAndAdvance() // '['
	level := 0
	for l.ch == '=' {
		l.saveAndAdvance()
		level++
	}
	if l.ch == '[' {
		l.saveAndAdvance()
		return level, true
	}
	return level, false
}

// readLongText consumes a long string or long comment body, given the
// opener's level. Content is collected only for strings.
func (l *Lexer) readLongText(level int, isString bool) string {
	what := "comment"
	if isString {
		what = "string"
	}
	openLine := l.line
	var sb strings.Builder
	if l.isNewline() { // first newline right after the opener is skipped
		l.bumpLine()
	}
	for {
		switch {
		case l.ch == endOfStream:
			l.line = openLine
			l.raise(lerrors.Lexical, "unfinished long "+what)
		case l.ch == ']':
			l.advance()
			closing := 0
			for l.ch == '=' {
				l.advance()
				closing++
			}
			if closing == level && l.ch == ']' {
				l.advance()
				return sb.String()
			}
			if isString {
				sb.WriteByte(']')
				for i := 0; i < closing; i++ {
					sb.WriteByte('=')
				}
			}
		case l.isNewline():
			l.bumpLine()
			if isString {
				sb.WriteByte('\n')
			}
		default:
			if isString {
				sb.WriteByte(byte(l.ch))
			}
			l.advance()
		}
	}
}

func (l *Lexer) readQuotedString(quote byte) string {
	l.saveAndAdvance()
	var sb strings.Builder
	for l.ch != int(quote) {
		switch {
		case l.ch == endOfStream, l.isNewline():
			l.raise(lerrors.Lexical, "unfinished string")
		case l.ch == '\\':
			l.saveAndAdvance()
			switch l.ch {
			case 'a':
				sb.WriteByte('\a')
				l.saveAndAdvance()
			case 'b':
				sb.WriteByte('\b')
				l.saveAndAdvance()
			case 'f':
				sb.WriteByte('\f')
				l.saveAndAdvance()
			case 'n':
				sb.WriteByte('\n')
				l.saveAndAdvance()
			case 'r':
				sb.WriteByte('\r')
				l.saveAndAdvance()
			case 't':
				sb.WriteByte('\t')
				l.saveAndAdvance()
			case 'v':
				sb.WriteByte('\v')
				l.saveAndAdvance()
			case '\\', '"', '\'':
				sb.WriteByte(byte(l.ch))
				l.saveAndAdvance()
			case '\n', '\r':
				// escaped real newline normalizes to '\n'
				l.bumpLine()
				sb.WriteByte('\n')
			case endOfStream:
				l.raise(lerrors.Lexical, "unfinished string")
			default:
				if !isDigit(l.ch) {
					// any other escaped character stands for itself
					sb.WriteByte(byte(l.ch))
					l.saveAndAdvance()
					break
				}
				n := 0
				for i := 0; i < 3 && isDigit(l.ch); i++ {
					n = n*10 + (l.ch - '0')
					l.saveAndAdvance()
				}
				if n > 255 {
					l.raise(lerrors.Lexical, "decimal escape too large")
				}
				sb.WriteByte(byte(n))
			}
		default:
			sb.WriteByte(byte(l.ch))
			l.saveAndAdvance()
		}
	}
	l.advance() // closing quote
	return sb.String()
}

func (l *Lexer) readNumber() token.Token {
	for isDigit(l.ch) || l.ch == '.' || l.ch == int(l.decPoint) {
		l.saveAndAdvance()
	}
	if l.ch == 'e' || l.ch == 'E' || l.ch == 'x' || l.ch == 'X' {
		l.saveAndAdvance()
		if l.ch == '+' || l.ch == '-' {
			l.saveAndAdvance()
		}
	}
	for isDigit(l.ch) || isNameStart(l.ch) || l.ch == '.' {
		l.saveAndAdvance()
	}
	text := string(l.buf)
	n, ok := l.parseNumber(text)
	if !ok {
		l.raise(lerrors.Lexical, "malformed number")
	}
	return token.Token{Type: token.Number, Literal: text, Num: n, Line: l.tokenLine}
}

// parseNumber accepts decimal and hexadecimal numerals. When the first
// parse fails and a non-default decimal separator is configured, it
// retries once with that separator normalized to '.', mirroring the
// locale-dependent retry of the reference implementation.
func (l *Lexer) parseNumber(text string) (float64, bool) {
	if n, ok := parseNumeral(text); ok {
		return n, true
	}
	if l.decPoint != '.' {
		retry := strings.ReplaceAll(text, string(l.decPoint), ".")
		return parseNumeral(retry)
	}
	return 0, false
}

func parseNumeral(text string) (float64, bool) {
	if strings.ContainsRune(text, '_') {
		return 0, false // Go-style digit separators are not numerals
	}
	if len(text) > 2 && (text[0:2] == "0x" || text[0:2] == "0X") {
		u, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return float64(u), true
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	// out-of-range numerals saturate to infinity, as strtod does
	return n, true
}

func isDigit(ch int) bool { return ch >= '0' && ch <= '9' }

func isNameStart(ch int) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}
