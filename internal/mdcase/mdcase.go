// Package mdcase extracts compiler test cases from Markdown documents.
// A case starts at a heading of the form "Case: <name>" and collects the
// fenced code blocks that follow: a "lua" fence holds the source chunk,
// an optional "disasm" fence the expected disassembly, an "error" fence
// the expected compilation error, and a "verify" fence requests a
// structural check of the compiled output.
package mdcase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const headingPrefix = "Case: "

// Fence languages recognized inside a case.
const (
	FenceLua    = "lua"
	FenceDisasm = "disasm"
	FenceError  = "error"
	FenceVerify = "verify"
)

// Case is one compiler test extracted from a Markdown document.
type Case struct {
	Name   string // heading text after "Case: "
	Line   int    // line of the heading, for test diagnostics
	Source string // chunk text from the lua fence
	Disasm string // expected disassembly, empty when absent
	Error  string // expected error message, empty when compilation must succeed
	Verify bool   // run the bytecode verifier on the result
}

// Extract parses a Markdown document and returns the cases it declares in
// document order.
func Extract(document []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(document))

	var cases []Case
	var current *Case

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		current = nil
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := headingText(n, document)
			if !strings.HasPrefix(heading, headingPrefix) {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{
				Name: strings.TrimPrefix(heading, headingPrefix),
				Line: lineNumber(n, document),
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(document))
			if language == "" {
				return ast.WalkContinue, nil // plain code blocks are prose
			}
			line := lineNumber(n, document)
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: '%s' fence outside of a case", line, language)
			}
			content := strings.TrimRight(fenceContent(n, document), "\n")
			switch language {
			case FenceLua:
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: case %q has more than one lua fence", line, current.Name)
				}
				current.Source = content
			case FenceDisasm:
				if current.Disasm != "" {
					return ast.WalkStop, fmt.Errorf("line %d: case %q has more than one disasm fence", line, current.Name)
				}
				current.Disasm = content
			case FenceError:
				if current.Error != "" {
					return ast.WalkStop, fmt.Errorf("line %d: case %q has more than one error fence", line, current.Name)
				}
				current.Error = content
			case FenceVerify:
				current.Verify = true
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language %q in case %q", line, language, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func validate(c *Case) error {
	if c.Source == "" {
		return fmt.Errorf("case %q (line %d) has no lua fence", c.Name, c.Line)
	}
	if c.Disasm == "" && c.Error == "" && !c.Verify {
		return fmt.Errorf("case %q (line %d) asserts nothing", c.Name, c.Line)
	}
	if c.Error != "" && (c.Disasm != "" || c.Verify) {
		return fmt.Errorf("case %q (line %d) expects an error but also asserts output", c.Name, c.Line)
	}
	return nil
}

func headingText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(fence *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < fence.Lines().Len(); i++ {
		seg := fence.Lines().At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineNumber(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	line := 1
	for i := 0; i < start && i < len(source); i++ {
		if source[i] == '\n' {
			line++
		}
	}
	return line
}
