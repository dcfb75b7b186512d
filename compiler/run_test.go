package compiler

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/curly/vm"
)

// run compiles and executes source, capturing console.log calls.
func run(t *testing.T, source string) (*vm.CaptureHost, vm.Value) {
	t.Helper()
	prog, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	host := &vm.CaptureHost{}
	result, err := vm.New(vm.WithHost(host), vm.WithMaxSteps(1_000_000)).Run(prog)
	if err != nil {
		t.Fatalf("Run(%q): %v", source, err)
	}
	return host, result
}

// runErr compiles and executes source, expecting a runtime error.
func runErr(t *testing.T, source string) *vm.RuntimeError {
	t.Helper()
	prog, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	_, err = vm.New().Run(prog)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run(%q): error = %v, want *vm.RuntimeError", source, err)
	}
	return rerr
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   [][]vm.Value
	}{
		{
			"console log",
			`console.log("hi");`,
			[][]vm.Value{{vm.String("hi")}},
		},
		{
			"for loop",
			`for (let i = 0; i < 10; i++) { console.log(i); }`,
			[][]vm.Value{
				{vm.Number(0)}, {vm.Number(1)}, {vm.Number(2)}, {vm.Number(3)}, {vm.Number(4)},
				{vm.Number(5)}, {vm.Number(6)}, {vm.Number(7)}, {vm.Number(8)}, {vm.Number(9)},
			},
		},
		{
			"object properties",
			`let a = { x: 1 }; a.y = 2; console.log(a.x + a.y);`,
			[][]vm.Value{{vm.Number(3)}},
		},
		{
			"function call",
			`function f(a, b) { return a + b; } console.log(f(2, 3));`,
			[][]vm.Value{{vm.Number(5)}},
		},
		{
			"else if chain",
			`const x = 5; if (x > 2) { console.log("hi"); } else if (x < 2) { console.log("lo"); } else { console.log("eq"); }`,
			[][]vm.Value{{vm.String("hi")}},
		},
		{
			"array push",
			`let arr = [1,2,3]; arr.push(4); console.log(arr.length);`,
			[][]vm.Value{{vm.Number(4)}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			host, _ := run(t, tc.source)
			if len(host.Calls) != len(tc.want) {
				t.Fatalf("got %d calls %v, want %d", len(host.Calls), host.Lines(), len(tc.want))
			}
			for i, call := range tc.want {
				if len(host.Calls[i]) != len(call) {
					t.Errorf("call %d: got %d args, want %d", i, len(host.Calls[i]), len(call))
					continue
				}
				for j, v := range call {
					if !vm.StrictEquals(host.Calls[i][j], v) {
						t.Errorf("call %d arg %d = %#v, want %#v", i, j, host.Calls[i][j], v)
					}
				}
			}
		})
	}
}

func TestArithmeticResults(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"2 * 3 + 4 * 5", 26},
		{"100 / 10 / 2", 5},
		{"7 % 3", 1},
		{"-7 % 3", -1},
		{"0.1 + 0.2", 0.30000000000000004},
		{"1 / 0", math.Inf(1)},
		{"-1 / 0", math.Inf(-1)},
		{"1 << 4 | 1", 17},
		{"-1 >>> 28", 15},
		{"-16 >> 2", -4},
		{"5 & 3 ^ 1", 0},
	}

	for _, tc := range tests {
		_, result := run(t, tc.source)
		n, ok := result.(vm.Number)
		if !ok {
			t.Errorf("%s = %#v, want number", tc.source, result)
			continue
		}
		if float64(n) != tc.want {
			t.Errorf("%s = %v, want %v", tc.source, float64(n), tc.want)
		}
	}
}

func TestZeroDividedByZeroIsNaN(t *testing.T) {
	host, _ := run(t, "console.log(0 / 0, 1 / 0, -1 / 0)")
	if got := host.Lines()[0]; got != "NaN Infinity -Infinity" {
		t.Errorf("line = %q", got)
	}
}

func TestCoercions(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`console.log("a" + 1)`, "a1"},
		{`console.log(1 + "2")`, "12"},
		{`console.log("6" * "7")`, "42"},
		{`console.log("x" - 1)`, "NaN"},
		{`console.log(true + 1)`, "2"},
		{`console.log(null + 1)`, "1"},
		{`console.log(undefined + 1)`, "NaN"},
		{`console.log([1, 2] + "")`, "1,2"},
		{`console.log({} + "")`, "[object Object]"},
		{`console.log(1 == "1", 1 === "1", null == undefined, null === undefined)`, "true false true false"},
		{`console.log("b" > "a", "10" < "9", 10 < 9)`, "true true false"},
		{`console.log(!0, !"", !"a", !null)`, "true true false true"},
		{`console.log(+"3", -"2", +"")`, "3 -2 0"},
		{`console.log(1 && 0, 1 || 0)`, "false true"},
		{`console.log(NaN == NaN, typeofFree)`, "false undefined"},
	}

	for _, tc := range tests {
		host, _ := run(t, tc.source)
		if len(host.Calls) != 1 {
			t.Errorf("%s: got %d calls", tc.source, len(host.Calls))
			continue
		}
		if got := host.Lines()[0]; got != tc.want {
			t.Errorf("%s printed %q, want %q", tc.source, got, tc.want)
		}
	}
}

func TestRendering(t *testing.T) {
	source := `
function named() {}
let anon = () => 1
console.log(named, anon, console.log, [1, [2, 3], null], 1000000000000000000000, 0.000001, 0.0000001, -0)
`
	host, _ := run(t, source)
	want := "f named(){ [code] } f anon(){ [code] } f log(){ [native code] } 1,2,3, 1e+21 0.000001 1e-7 0"
	if got := host.Lines()[0]; got != want {
		t.Errorf("printed %q\nwant    %q", got, want)
	}
}

func TestRedeclaration(t *testing.T) {
	fatal := []string{
		"let a = 1; let a = 2",
		"const a = 1; let a = 2",
		"let a = 1; var a = 2",
		"const a = 1; a = 2",
		"const a = 1; a++",
	}
	for _, source := range fatal {
		if rerr := runErr(t, source); rerr.Kind != vm.BindingError {
			t.Errorf("%s: kind = %v, want binding error", source, rerr.Kind)
		}
	}

	host, _ := run(t, `
let a = 1
{
  let a = 2
  console.log(a)
}
if (true) { const a = 3; console.log(a) }
console.log(a)
var v = 1
var v = 2
console.log(v)
`)
	if got := strings.Join(host.Lines(), "|"); got != "2|3|1|2" {
		t.Errorf("shadowing printed %q, want 2|3|1|2", got)
	}
}

func TestVarInLoopBindsOutside(t *testing.T) {
	host, _ := run(t, `
for (let i = 0; i < 3; i++) {
  var last = i
  let inner = i
}
console.log(last, inner, i)
function f() {
  for (let j = 0; j < 2; j++) { var k = j }
  return k
}
console.log(f(), k)
`)
	want := []string{"2 undefined undefined", "1 undefined"}
	if got := host.Lines(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestScopesAreFreed(t *testing.T) {
	prog, err := Compile(`
for (let i = 0; i < 3; i++) { let x = { n: i } }
function f(a) { let local = a; return local }
f(1)
{ let block = 1 }
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	machine := vm.New()
	if _, err := machine.Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d := machine.Scopes().Depth(); d != 1 {
		t.Errorf("scope depth = %d, want 1", d)
	}
	for _, key := range machine.Scopes().TableKeys() {
		if !strings.HasPrefix(key, "0:") {
			t.Errorf("table key %q survived its scope", key)
		}
	}
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"while", `let n = 3; while (n > 0) { console.log(n); n-- }`, "3|2|1"},
		{"break", `for (let i = 0; i < 10; i++) { if (i == 3) { break } console.log(i) }`, "0|1|2"},
		{"continue", `for (let i = 0; i < 5; i++) { if (i % 2) { continue } console.log(i) }`, "0|2|4"},
		{"while continue", `let i = 0; while (i < 4) { i++; if (i == 2) continue; console.log(i) }`, "1|3|4"},
		{"nested break", `
for (let i = 0; i < 3; i++) {
  for (let j = 0; j < 3; j++) {
    if (j > i) { break }
    console.log(i, j)
  }
}`, "0 0|1 0|1 1|2 0|2 1|2 2"},
		{"brace-less if", `let x = 1; if (x) console.log("yes"); else console.log("no")`, "yes"},
		{"empty for", `let c = 0; for (;;) { c++; if (c > 2) { break } } console.log(c)`, "3"},
		{"return from loop", `function first(a) { for (let i = 0; i < a.length; i++) { if (a[i] > 1) { return a[i] } } return -1 }
console.log(first([1, 5, 7]), first([0]))`, "5 -1"},
		{"recursion", `function fib(n) { if (n < 2) { return n } return fib(n - 1) + fib(n - 2) } console.log(fib(15))`, "610"},
		{"prefix and postfix", `let a = 1; console.log(a++, a, ++a, a, a--, --a)`, "1 2 3 3 3 1"},
		{"compound", `let s = 10; s += 5; s -= 3; s *= 2; s /= 4; s <<= 2; s >>= 1; console.log(s)`, "12"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			host, _ := run(t, tc.source)
			if got := strings.Join(host.Lines(), "|"); got != tc.want {
				t.Errorf("printed %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNamedFunctionExpressionBindsItsName(t *testing.T) {
	host, _ := run(t, `
let f = function fib(n) {
  if (n < 2) {
    return n
  }
  return fib(n - 1) + fib(n - 2)
}
console.log(f(10), fib)
let g = function () {
  g = 5
  return 1
}
g()
console.log(g)
`)
	if got := strings.Join(host.Lines(), "|"); got != "55 undefined|5" {
		t.Errorf("printed %q", got)
	}
}

func TestFunctionsAreDynamicallyScoped(t *testing.T) {
	host, _ := run(t, `
function show() { return label }
let label = "outer"
function wrap() { let label = "inner"; return show() }
console.log(show(), wrap())
function extra(a) { return a }
console.log(extra(), extra(1, 2))
`)
	if got := strings.Join(host.Lines(), "|"); got != "outer inner|undefined 1" {
		t.Errorf("printed %q", got)
	}
}

func TestObjectsAndArrays(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"nested", `let o = { a: { b: [1, { c: 'deep' }] } }; console.log(o.a.b[1].c, o.a.b.length)`, "deep 2"},
		{"computed", `let o = {}; let k = 'key'; o[k] = 1; o['x' + 1] = 2; console.log(o.key, o.x1, o[k])`, "1 2 1"},
		{"missing", `let o = {}; console.log(o.nope, [1][5])`, "undefined undefined"},
		{"aliasing", `let a = [1]; let b = a; b.push(2); console.log(a.length, a === b, [1] === [1])`, "2 true false"},
		{"grow", `let a = []; a[2] = 'x'; console.log(a.length, a)`, "3 ,,x"},
		{"length set", `let a = [1, 2, 3]; a.length = 1; console.log(a, a.length)`, "1 1"},
		{"pop", `let a = [1, 2]; console.log(a.pop(), a.length, [].pop())`, "2 1 undefined"},
		{"join", `console.log([1, null, 'a'].join('-'), [1, 2].join())`, "1--a 1,2"},
		{"indexOf", `let a = [1, 'x', NaN]; console.log(a.indexOf('x'), a.indexOf(9), a.includes(NaN), a.indexOf(NaN))`, "1 -1 true -1"},
		{"slice", `let a = [1, 2, 3, 4]; console.log(a.slice(1, 3), a.slice(-2), a.slice())`, "2,3 3,4 1,2,3,4"},
		{"concat", `console.log([1].concat([2, 3], 4).length)`, "4"},
		{"map", `let sq = [1, 2, 3].map(x => x * x); console.log(sq, sq.length)`, "1,4,9 3"},
		{"map index", `console.log(['a', 'b'].map((v, i) => v + i))`, "a0,b1"},
		{"forEach", `let total = 0; [1, 2, 3].forEach(function (n) { total += n }); console.log(total)`, "6"},
		{"keys", `console.log(Object.keys({ b: 1, a: 2 }), Object.keys([7, 8]))`, "b,a 0,1"},
		{"freeze", `let o = Object.freeze({ a: 1 }); o.a = 2; o.b = 3; console.log(o.a, o.b)`, "1 undefined"},
		{"isArray", `console.log(Array.isArray([]), Array.isArray({}))`, "true false"},
		{"hasOwnProperty", `let o = { a: 1 }; console.log(o.hasOwnProperty('a'), o.hasOwnProperty('hasOwnProperty'))`, "true false"},
		{"string props", `let s = "hey"; console.log(s.length, s[1])`, "3 e"},
		{"methods", `let counter = { n: 0, inc: function () { this.n += 1; return this.n } }; counter.inc(); console.log(counter.inc())`, "2"},
		{"call", `function who(greeting) { return greeting + this.name } console.log(who.call({ name: 'ann' }, 'hi '))`, "hi ann"},
		{"apply", `function add(a, b) { return a + b } console.log(add.apply(null, [2, 3]))`, "5"},
		{"function props", `function f() {} f.tag = 'x'; console.log(f.tag)`, "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			host, _ := run(t, tc.source)
			if got := strings.Join(host.Lines(), "|"); got != tc.want {
				t.Errorf("printed %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		source string
		kind   vm.ErrorKind
		msg    string
	}{
		{"let x = 1; x()", vm.TypeError, "x is not a function"},
		{"undefinedThing.a = 1", vm.TypeError, "cannot set property"},
		{"[].push.call(5)", vm.TypeError, "push called on number"},
		{"[1].map(3)", vm.TypeError, "is not a function"},
		{"let a = Object.freeze([1]); a.push(2)", vm.TypeError, "frozen"},
	}

	for _, tc := range tests {
		rerr := runErr(t, tc.source)
		if rerr.Kind != tc.kind {
			t.Errorf("%s: kind = %v, want %v", tc.source, rerr.Kind, tc.kind)
		}
		if !strings.Contains(rerr.Msg, tc.msg) {
			t.Errorf("%s: msg = %q, want it to contain %q", tc.source, rerr.Msg, tc.msg)
		}
	}
}

func TestRuntimeErrorCarriesLine(t *testing.T) {
	rerr := runErr(t, "let a = 1\n\nlet a = 2")
	if rerr.Line != 3 {
		t.Errorf("line = %d, want 3 (%v)", rerr.Line, rerr)
	}
}

func TestStepLimit(t *testing.T) {
	prog, err := Compile("while (true) {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = vm.New(vm.WithMaxSteps(500)).Run(prog)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) || rerr.Kind != vm.LimitError {
		t.Fatalf("Run: error = %v, want limit error", err)
	}
}

func TestIncrementalChunks(t *testing.T) {
	machine := vm.New()
	var last vm.Value
	for _, chunk := range []string{"let x = 40", "function inc(n) { return n + 1 }", "x = inc(inc(x))", "x"} {
		prog, err := CompileAt(chunk, machine.End())
		if err != nil {
			t.Fatalf("CompileAt(%q): %v", chunk, err)
		}
		if err := machine.Append(prog); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if last, err = machine.Resume(); err != nil {
			t.Fatalf("Resume(%q): %v", chunk, err)
		}
	}
	if n, ok := last.(vm.Number); !ok || n != 42 {
		t.Errorf("x = %#v, want 42", last)
	}
}
