package lune

import (
	"os"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xirelogy/go-lune/bytecode"
	"github.com/xirelogy/go-lune/internal/mdcase"
)

// TestCorpus runs every case declared in testdata/cases.md.
func TestCorpus(t *testing.T) {
	data, err := os.ReadFile("testdata/cases.md")
	be.Err(t, err, nil)
	cases, err := mdcase.Extract(data)
	be.Err(t, err, nil)
	be.True(t, len(cases) > 0)

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			proto, err := CompileString(c.Source, "cases.lua")
			if c.Error != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, compilation succeeded", c.Error)
				}
				be.True(t, strings.Contains(err.Error(), c.Error))
				return
			}
			be.Err(t, err, nil)
			if c.Verify {
				be.Err(t, bytecode.Verify(proto), nil)
			}
			if c.Disasm != "" {
				var sb strings.Builder
				be.Err(t, bytecode.NewDisassembler(&sb).Disassemble("main", proto), nil)
				be.Equal(t, strings.TrimRight(sb.String(), "\n"), c.Disasm)
			}
		})
	}
}
