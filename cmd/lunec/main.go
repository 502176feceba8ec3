// Command lunec compiles Lua chunks to bytecode from the command line.
// It can batch-compile files with disassembly and verification output,
// or run an interactive read-compile-print loop.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"gopkg.in/yaml.v3"

	lune "github.com/xirelogy/go-lune"
	"github.com/xirelogy/go-lune/bytecode"
)

const (
	appName     = "lunec"
	version     = "0.1.0"
	historyFile = ".lunec_history"
	promptMain  = "> "
	promptCont  = ">> "
)

// Config is the optional YAML configuration, looked up at the path given
// by --config or at ~/.lunec.yaml.
type Config struct {
	DecimalPoint string `yaml:"decimal_point,omitempty"`
	MaxDepth     int    `yaml:"max_depth,omitempty"`
	StripDebug   bool   `yaml:"strip_debug,omitempty"`
	Verify       bool   `yaml:"verify,omitempty"`
}

func (c Config) compileOptions() lune.CompileOptions {
	opts := lune.CompileOptions{
		MaxDepth:   c.MaxDepth,
		StripDebug: c.StripDebug,
	}
	if c.DecimalPoint != "" {
		opts.DecimalPoint = c.DecimalPoint[0]
	}
	return opts
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".lunec.yaml")
		if _, err := os.Stat(path); err != nil {
			return cfg, nil // default config is optional
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [options]

commands:
  compile [--config FILE] [--verify] [--strip] FILE...
          compile each file and print its disassembly
  check   [--config FILE] FILE...
          compile and verify each file, printing errors only
  repl    [--config FILE]
          interactive read-compile-print loop
  version
`, appName)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "compile":
		os.Exit(cmdCompile(os.Args[2:], true))
	case "check":
		os.Exit(cmdCompile(os.Args[2:], false))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, os.Args[1])
		usage()
		os.Exit(2)
	}
}

// parseArgs splits flags we understand from file arguments.
func parseArgs(args []string) (configPath string, verify, strip bool, files []string, err error) {
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--config":
			if i+1 >= len(args) {
				return "", false, false, nil, errors.New("--config needs a path")
			}
			i++
			configPath = args[i]
		case "--verify":
			verify = true
		case "--strip":
			strip = true
		default:
			if strings.HasPrefix(arg, "-") {
				return "", false, false, nil, fmt.Errorf("unknown option %q", arg)
			}
			files = append(files, arg)
		}
	}
	return configPath, verify, strip, files, nil
}

func cmdCompile(args []string, showDisasm bool) int {
	configPath, verify, strip, files, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "%s: no input files\n", appName)
		return 2
	}
	opts := cfg.compileOptions()
	if strip {
		opts.StripDebug = true
	}
	verify = verify || cfg.Verify || !showDisasm

	failed := 0
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			failed++
			continue
		}
		proto, err := lune.CompileWithOptions(f, filepath.Base(file), opts)
		f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			failed++
			continue
		}
		if verify {
			if err := bytecode.Verify(proto); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %s: %v\n", appName, file, err)
				failed++
				continue
			}
		}
		if showDisasm {
			bytecode.NewDisassembler(os.Stdout).Disassemble("main", proto)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func cmdRepl(args []string) int {
	configPath, _, _, _, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 2
	}
	opts := cfg.compileOptions()

	fmt.Printf("%s %s\nCtrl+D exits. Chunks are compiled and disassembled, not run.\n", appName, version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		chunk, ok := readChunk(ln, opts)
		if !ok {
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		proto, err := lune.CompileStringWithOptions(chunk, "repl", opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		bytecode.NewDisassembler(os.Stdout).Disassemble("main", proto)
		ln.AppendHistory(strings.ReplaceAll(chunk, "\n", " "))
	}
}

// readChunk collects input lines until the text compiles or fails with an
// error that more input cannot fix.
func readChunk(ln *liner.State, opts lune.CompileOptions) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := lune.CompileStringWithOptions(src, "repl", opts); isIncomplete(err) {
			continue
		}
		return src, true
	}
}

// isIncomplete reports whether the error means the chunk stopped short,
// so the REPL should keep reading lines.
func isIncomplete(err error) bool {
	var ce *lune.Error
	return errors.As(err, &ce) && ce.Near == "<eof>"
}
