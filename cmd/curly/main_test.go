package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/curly/engine"
	"github.com/chazu/curly/manifest"
	"github.com/chazu/curly/vm"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenBrackets(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"1 + 2", 0},
		{"function f(n) {", 1},
		{"function f(n) {\n  return [n,", 2},
		{"f({a: [1]})", 0},
		{"'{' + \"(\"", 0},
		{"x // {", 0},
		{"x /* { */", 0},
		{"x /* {", 1},
		{"a / b", 0},
		{"}", -1},
	}
	for _, tt := range tests {
		if got := openBrackets(tt.src); got != tt.want {
			t.Errorf("openBrackets(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   vm.Value
		want string
	}{
		{vm.String("hi"), "'hi'"},
		{vm.Number(42), "42"},
		{vm.Bool(false), "false"},
		{vm.Null{}, "null"},
		{vm.NewArray(vm.Number(1), vm.String("a")), "1,a"},
	}
	for _, tt := range tests {
		if got := display(tt.in); got != tt.want {
			t.Errorf("display(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestREPL(t *testing.T) {
	e := newEngine(t)
	input := strings.Join([]string{
		"let x = 2",
		"function f(n) {",
		"  return n * x",
		"}",
		"f(21)",
		"console.log('hi', x)",
		"'str'",
		"let = 1",
		":steps",
		":bogus",
		"exit",
		"console.log('after exit')",
	}, "\n")

	var out bytes.Buffer
	runREPL(context.Background(), e, strings.NewReader(input), &out)
	got := out.String()

	for _, want := range []string{"42\n", "hi 2\n", "'str'\n", "Error: ", "steps\n", "Unknown command: :bogus"} {
		if !strings.Contains(got, want) {
			t.Errorf("REPL output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, ".. ") != 2 {
		t.Errorf("continuation prompts = %d, want 2:\n%s", strings.Count(got, ".. "), got)
	}
	if strings.Contains(got, "after exit") {
		t.Errorf("REPL evaluated input after exit:\n%s", got)
	}
}

func TestREPL_Reset(t *testing.T) {
	e := newEngine(t)
	var out bytes.Buffer
	runREPL(context.Background(), e, strings.NewReader("let kept = 'before'\n:reset\nkept\n"), &out)

	got := out.String()
	if !strings.Contains(got, "Session reset") {
		t.Errorf("missing reset notice:\n%s", got)
	}
	if strings.Contains(got, "'before'") {
		t.Errorf("binding survived :reset:\n%s", got)
	}
}

func TestRunSource(t *testing.T) {
	e := newEngine(t)
	var out bytes.Buffer
	err := runSource(context.Background(), e, "for (let i = 0; i < 3; i++) { console.log(i) }", &out)
	if err != nil {
		t.Fatalf("runSource: %v", err)
	}
	if out.String() != "0\n1\n2\n" {
		t.Errorf("output = %q", out.String())
	}

	if err := runSource(context.Background(), e, "let f = 1\nf()", &out); err == nil {
		t.Error("runSource of a failing program returned nil")
	}
}

func TestEmitAndLoad(t *testing.T) {
	e := newEngine(t)
	path := filepath.Join(t.TempDir(), "prog.cyb")
	if _, err := e.SaveImage(path, "console.log('from image', 1 + 1)"); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	var out bytes.Buffer
	if err := runImage(context.Background(), e, path, &out); err != nil {
		t.Fatalf("runImage: %v", err)
	}
	if out.String() != "from image 2\n" {
		t.Errorf("output = %q", out.String())
	}

	if err := runImage(context.Background(), e, filepath.Join(t.TempDir(), "missing.cyb"), &out); err == nil {
		t.Error("runImage of a missing file returned nil")
	}
}

func TestEmitAndLoadBytes(t *testing.T) {
	e := newEngine(t)
	path := filepath.Join(t.TempDir(), "prog.bin")
	if err := writeBytecode(e, "function twice(n) { return n * 2 }\nconsole.log('bytes', twice(3))", path); err != nil {
		t.Fatalf("writeBytecode: %v", err)
	}

	var out bytes.Buffer
	if err := runBytecode(context.Background(), e, path, &out); err != nil {
		t.Fatalf("runBytecode: %v", err)
	}
	if out.String() != "bytes 6\n" {
		t.Errorf("output = %q", out.String())
	}

	if err := writeBytecode(e, "let = 1", path); err == nil {
		t.Error("writeBytecode of invalid source returned nil")
	}
	bad := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(bad, []byte{0xEE}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := runBytecode(context.Background(), e, bad, &out); err == nil {
		t.Error("runBytecode of garbage returned nil")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig without manifest: %v", err)
	}
	if cfg.Engine.MaxSteps != manifest.Default().Engine.MaxSteps {
		t.Errorf("defaults not applied: %+v", cfg.Engine)
	}

	toml := "[project]\nname = \"demo\"\nentry = \"main.cy\"\n\n[engine]\nmax-steps = 500\n"
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "src")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	cfg, err = loadConfig(sub)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Project.Name != "demo" || cfg.Engine.MaxSteps != 500 {
		t.Errorf("cfg = %+v", cfg)
	}
	if want := filepath.Join(dir, "main.cy"); cfg.EntryPath() != want {
		t.Errorf("EntryPath = %q, want %q", cfg.EntryPath(), want)
	}
}
