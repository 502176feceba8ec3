package mdcase

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

const sampleDocument = `# Compiler cases

Prose between cases is ignored.

### Case: constant folding

` + "```lua" + `
return 1 + 2
` + "```" + `

` + "```verify" + `
` + "```" + `

### Case: bad break

` + "```lua" + `
break
` + "```" + `

` + "```error" + `
no loop to break
` + "```" + `

### Case: disassembly

Some explanation here.

` + "```lua" + `
return
` + "```" + `

` + "```disasm" + `
0000  RETURN 0 1
` + "```" + `
`

func TestExtract(t *testing.T) {
	cases, err := Extract([]byte(sampleDocument))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 3)

	be.Equal(t, cases[0].Name, "constant folding")
	be.Equal(t, cases[0].Source, "return 1 + 2")
	be.True(t, cases[0].Verify)
	be.Equal(t, cases[0].Error, "")

	be.Equal(t, cases[1].Name, "bad break")
	be.Equal(t, cases[1].Error, "no loop to break")

	be.Equal(t, cases[2].Name, "disassembly")
	be.Equal(t, cases[2].Disasm, "0000  RETURN 0 1")
	be.True(t, !cases[2].Verify)
}

func TestExtractRecordsHeadingLines(t *testing.T) {
	cases, err := Extract([]byte(sampleDocument))
	be.Err(t, err, nil)
	be.True(t, cases[0].Line > 1)
	be.True(t, cases[1].Line > cases[0].Line)
}

func TestExtractIgnoresForeignHeadings(t *testing.T) {
	doc := "# Notes\n\n## Background\n\nNo cases here.\n"
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 0)
}

func TestExtractIgnoresPlainFences(t *testing.T) {
	doc, _, _ := strings.Cut(sampleDocument, "### Case: bad break")
	doc += "```\njust an illustration, no language tag\n```\n"
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 1)
}

func extractError(t *testing.T, doc, want string) {
	t.Helper()
	_, err := Extract([]byte(doc))
	be.Err(t, err)
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
}

func TestExtractRejectsFenceOutsideCase(t *testing.T) {
	extractError(t, "```lua\nreturn\n```\n", "outside of a case")
}

func TestExtractRejectsUnknownLanguage(t *testing.T) {
	doc := "### Case: x\n\n```lua\nreturn\n```\n\n```python\npass\n```\n"
	extractError(t, doc, "unknown fence language")
}

func TestExtractRejectsDuplicateFence(t *testing.T) {
	doc := "### Case: x\n\n```lua\nreturn\n```\n\n```lua\nreturn\n```\n"
	extractError(t, doc, "more than one lua fence")
}

func TestExtractRejectsCaseWithoutSource(t *testing.T) {
	extractError(t, "### Case: x\n\n```verify\n```\n", "no lua fence")
}

func TestExtractRejectsCaseAssertingNothing(t *testing.T) {
	extractError(t, "### Case: x\n\n```lua\nreturn\n```\n", "asserts nothing")
}

func TestExtractRejectsErrorPlusOutput(t *testing.T) {
	doc := "### Case: x\n\n```lua\nbreak\n```\n\n```error\nno loop\n```\n\n```verify\n```\n"
	extractError(t, doc, "also asserts output")
}
