package compiler

import (
	"strings"
	"testing"
)

func analyze(t *testing.T, source string) *Analysis {
	t.Helper()
	a, err := Analyze(source)
	if err != nil {
		t.Fatalf("Analyze(%q): %v", source, err)
	}
	return a
}

func warningsContaining(a *Analysis, substr string) []Warning {
	var out []Warning
	for _, w := range a.Warnings {
		if strings.Contains(w.Msg, substr) {
			out = append(out, w)
		}
	}
	return out
}

func TestSemanticAnalyzerUndeclaredName(t *testing.T) {
	a := analyze(t, "let a = 1\nconsole.log(a + missing)")
	ws := warningsContaining(a, `"missing"`)
	if len(ws) != 1 {
		t.Fatalf("warnings = %v, want one about missing", a.Warnings)
	}
	if ws[0].Span.Start.Line != 2 {
		t.Errorf("warning line = %d, want 2", ws[0].Span.Start.Line)
	}
}

func TestSemanticAnalyzerNoWarnings(t *testing.T) {
	tests := []string{
		"let x = 1\nx + 1",
		"function f(a, b) { return a + b }\nf(1, 2)",
		"const sq = n => n * n\nsq(3)",
		"console.log(NaN, Infinity, undefined)",
		"Array.isArray([])",
		"for (let i = 0; i < 3; i++) { console.log(i) }",
		// Dynamic scoping: the callee sees the caller's bindings.
		"function show() { console.log(y) }\nlet y = 2\nshow()",
		"total = 0\ntotal += 5",
		"let o = {a: 1}\no.b = o.a",
		"const f = function fact(n) {\n if (n <= 1) { return 1 }\n return n * fact(n - 1)\n}",
	}
	for _, src := range tests {
		a := analyze(t, src)
		if len(a.Warnings) != 0 {
			t.Errorf("Analyze(%q) warnings = %v, want none", src, a.Warnings)
		}
	}
}

func TestSemanticAnalyzerCompoundAssignToUnknown(t *testing.T) {
	a := analyze(t, "count += 1")
	if len(warningsContaining(a, `"count"`)) != 1 {
		t.Errorf("warnings = %v, want one about count", a.Warnings)
	}
}

func TestSemanticAnalyzerKnownGlobals(t *testing.T) {
	nodes, err := Parse("host.ping()")
	if err != nil {
		t.Fatal(err)
	}
	s := NewSemanticAnalyzer()
	if got := s.Analyze(nodes); len(got.Warnings) != 1 {
		t.Errorf("warnings before AddKnownGlobal = %v, want 1", got.Warnings)
	}
	s.AddKnownGlobal("host")
	if got := s.Analyze(nodes); len(got.Warnings) != 0 {
		t.Errorf("warnings after AddKnownGlobal = %v, want none", got.Warnings)
	}
}

func TestSemanticAnalyzerUnreachableCode(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"function f() { return 1\nconsole.log(2) }", 1},
		{"while (true) { break\nconsole.log(1) }", 1},
		{"for (let i = 0; i < 2; i++) { continue\nconsole.log(i)\nconsole.log(i) }", 1},
		{"function f() { if (true) { return 1 }\nreturn 2 }", 0},
	}
	for _, tt := range tests {
		a := analyze(t, tt.src)
		if got := len(warningsContaining(a, "unreachable")); got != tt.want {
			t.Errorf("Analyze(%q) unreachable warnings = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestSemanticAnalyzerDeclarations(t *testing.T) {
	src := "let a = 1\nconst b = 2\nvar c\nfunction add(x, y) { return x + y }\nconst inc = n => n + 1\nd = 4\nd = 5"
	a := analyze(t, src)

	want := []struct {
		name, kind string
		line       int
	}{
		{"a", "let", 1},
		{"b", "const", 2},
		{"c", "var", 3},
		{"add", "function", 4},
		{"inc", "const", 5},
		{"d", "global", 6},
	}
	if len(a.Declarations) != len(want) {
		t.Fatalf("Declarations = %+v, want %d entries", a.Declarations, len(want))
	}
	for i, w := range want {
		d := a.Declarations[i]
		if d.Name != w.name || d.Kind != w.kind || d.Span.Start.Line != w.line {
			t.Errorf("Declarations[%d] = %s %s line %d, want %s %s line %d",
				i, d.Kind, d.Name, d.Span.Start.Line, w.kind, w.name, w.line)
		}
	}

	add, ok := a.Lookup("add")
	if !ok || !add.Function || strings.Join(add.Params, ",") != "x,y" {
		t.Errorf("Lookup(add) = %+v, %v", add, ok)
	}
	if inc, _ := a.Lookup("inc"); !inc.Function {
		t.Errorf("arrow binding inc not marked as a function: %+v", inc)
	}
	if b, _ := a.Lookup("b"); b.Function {
		t.Errorf("b marked as a function: %+v", b)
	}
	if _, ok := a.Lookup("x"); ok {
		t.Error("parameters should not be document declarations")
	}
	if got := strings.Join(a.Names(), " "); got != "a add b c d inc" {
		t.Errorf("Names() = %q", got)
	}
}

func TestSemanticAnalyzerNestedDeclarations(t *testing.T) {
	a := analyze(t, "if (true) { let inner = 1 } else { let helper = 2 }")
	for _, name := range []string{"inner", "helper"} {
		if _, ok := a.Lookup(name); !ok {
			t.Errorf("Lookup(%s) not found", name)
		}
	}
}

func TestAnalyzeReportsParseErrors(t *testing.T) {
	if _, err := Analyze("let = 1"); err == nil {
		t.Error("Analyze of bad source succeeded")
	}
}

func TestKeywords(t *testing.T) {
	kw := Keywords()
	if len(kw) != len(keywords) {
		t.Fatalf("Keywords() has %d entries, want %d", len(kw), len(keywords))
	}
	for i := 1; i < len(kw); i++ {
		if kw[i-1] >= kw[i] {
			t.Errorf("Keywords() not sorted at %d: %q >= %q", i, kw[i-1], kw[i])
		}
	}
	if kw[0] != "break" {
		t.Errorf("Keywords()[0] = %q, want break", kw[0])
	}
}
