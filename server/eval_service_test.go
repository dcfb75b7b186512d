package server

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Evaluate: happy paths
// ---------------------------------------------------------------------------

func TestEvaluate_Arithmetic(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), request(map[string]any{"source": "1 + 2 * 3"}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if e := field(resp, "error"); e != nil {
		t.Fatalf("Evaluate reported error: %v", e)
	}
	if got := field(resp, "result"); got != 7.0 {
		t.Errorf("result = %v, want 7", got)
	}
	if got := field(resp, "display"); got != "7" {
		t.Errorf("display = %v, want 7", got)
	}
	if _, err := uuid.Parse(resp.GetFields()["runId"].GetStringValue()); err != nil {
		t.Errorf("runId is not a UUID: %v", err)
	}
	if steps, _ := field(resp, "steps").(float64); steps <= 0 {
		t.Errorf("steps = %v, want > 0", field(resp, "steps"))
	}
	if field(resp, "session") != nil {
		t.Error("stateless evaluation reported a session")
	}
}

func TestEvaluate_ConsoleOutput(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), request(map[string]any{
		"source": "console.log('a', 1)\nconsole.log([1, 2], null)",
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	wantOutput := []any{"a 1", "1,2 null"}
	if got := field(resp, "output"); !reflect.DeepEqual(got, wantOutput) {
		t.Errorf("output = %#v, want %#v", got, wantOutput)
	}
	wantLogs := []any{
		[]any{"a", 1.0},
		[]any{[]any{1.0, 2.0}, nil},
	}
	if got := field(resp, "logs"); !reflect.DeepEqual(got, wantLogs) {
		t.Errorf("logs = %#v, want %#v", got, wantLogs)
	}
	if got := field(resp, "result"); got != nil {
		t.Errorf("result = %#v, want null", got)
	}
}

func TestEvaluate_ResultShapes(t *testing.T) {
	svc := newTestEvalService()

	tests := []struct {
		source string
		want   any
	}{
		{"'hi' + 1", "hi1"},
		{"true && false", false},
		{"[1, 'a', null]", []any{1.0, "a", nil}},
		{"let o = {a: 1, b: [true]}\no", map[string]any{"a": 1.0, "b": []any{true}}},
		{"0 / 0", "NaN"},
		{"1 / 0", "Infinity"},
		{"undefined", nil},
		{"let a = [1]\na.push(a)\na", []any{1.0, "[Circular]"}},
	}
	for _, tt := range tests {
		resp, err := svc.Evaluate(bg(), request(map[string]any{"source": tt.source}))
		if err != nil {
			t.Fatalf("Evaluate(%q) returned error: %v", tt.source, err)
		}
		if e := field(resp, "error"); e != nil {
			t.Errorf("Evaluate(%q) reported error: %v", tt.source, e)
			continue
		}
		if got := field(resp, "result"); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Evaluate(%q) result = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluate: errors
// ---------------------------------------------------------------------------

func TestEvaluate_EmptySource(t *testing.T) {
	svc := newTestEvalService()

	_, err := svc.Evaluate(bg(), request(map[string]any{"source": ""}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", connect.CodeOf(err))
	}
}

func TestEvaluate_CompileError(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), request(map[string]any{"source": "let x = 1\nlet = 2"}))
	if err != nil {
		t.Fatalf("compile errors should be reported in the body, got %v", err)
	}
	if got := field(resp, "errorKind"); got != "syntax error" {
		t.Errorf("errorKind = %v, want syntax error", got)
	}
	if got := field(resp, "errorLine"); got != 2.0 {
		t.Errorf("errorLine = %v, want 2", got)
	}
	if field(resp, "runId") != nil {
		t.Error("a program that never ran has a runId")
	}
}

func TestEvaluate_RuntimeError(t *testing.T) {
	svc := newTestEvalService()

	resp, err := svc.Evaluate(bg(), request(map[string]any{
		"source": "console.log('x')\nlet f = 1\nf()",
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got := field(resp, "errorKind"); got != "type error" {
		t.Errorf("errorKind = %v, want type error", got)
	}
	if got := field(resp, "errorLine"); got != 3.0 {
		t.Errorf("errorLine = %v, want 3", got)
	}
	msg, _ := field(resp, "error").(string)
	if !strings.Contains(msg, "not a function") {
		t.Errorf("error = %q", msg)
	}
	if got := field(resp, "output"); !reflect.DeepEqual(got, []any{"x"}) {
		t.Errorf("output = %#v, want [x]", got)
	}
}

func TestEvaluate_CancelledContext(t *testing.T) {
	svc := newTestEvalService()
	ctx, cancel := context.WithCancel(bg())
	cancel()

	resp, err := svc.Evaluate(ctx, request(map[string]any{"source": "1"}))
	// Depending on timing the worker either refuses the work or runs it and
	// reports the cancellation in the body.
	if err != nil {
		if connect.CodeOf(err) != connect.CodeCanceled {
			t.Errorf("code = %v, want Canceled", connect.CodeOf(err))
		}
		return
	}
	if got := field(resp, "errorKind"); got != "cancelled" {
		t.Errorf("errorKind = %v, want cancelled", got)
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestSession_Lifecycle(t *testing.T) {
	svc := newTestEvalService()

	created, err := svc.CreateSession(bg(), request(nil))
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	id, _ := field(created, "session").(string)
	if id == "" {
		t.Fatal("CreateSession returned no session ID")
	}

	chunks := []struct {
		source string
		want   any
	}{
		{"let x = 2", nil},
		{"function twice(n) { return n * 2 }", nil},
		{"twice(x) * 10 + 2", 42.0},
	}
	for _, c := range chunks {
		resp, err := svc.Evaluate(bg(), request(map[string]any{"source": c.source, "session": id}))
		if err != nil {
			t.Fatalf("Evaluate(%q) returned error: %v", c.source, err)
		}
		if e := field(resp, "error"); e != nil {
			t.Fatalf("Evaluate(%q) reported error: %v", c.source, e)
		}
		if got := field(resp, "result"); got != c.want {
			t.Errorf("Evaluate(%q) = %v, want %v", c.source, got, c.want)
		}
		if got := field(resp, "session"); got != id {
			t.Errorf("session = %v, want %s", got, id)
		}
	}

	destroyed, err := svc.DestroySession(bg(), request(map[string]any{"session": id}))
	if err != nil {
		t.Fatalf("DestroySession returned error: %v", err)
	}
	if field(destroyed, "destroyed") != true {
		t.Errorf("destroyed = %v, want true", field(destroyed, "destroyed"))
	}

	_, err = svc.Evaluate(bg(), request(map[string]any{"source": "x", "session": id}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("Evaluate in destroyed session: code = %v, want NotFound", connect.CodeOf(err))
	}
}

func TestSession_IsolatedFromStatelessEvaluate(t *testing.T) {
	svc := newTestEvalService()

	created, _ := svc.CreateSession(bg(), request(nil))
	id := created.GetFields()["session"].GetStringValue()
	defer svc.DestroySession(bg(), request(map[string]any{"session": id}))

	if _, err := svc.Evaluate(bg(), request(map[string]any{"source": "let only = 1", "session": id})); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Evaluate(bg(), request(map[string]any{"source": "only"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := field(resp, "result"); got != nil {
		t.Errorf("stateless evaluation saw a session binding: %v", got)
	}
}

func TestDestroySession_Errors(t *testing.T) {
	svc := newTestEvalService()

	tests := []struct {
		session string
		want    connect.Code
	}{
		{"", connect.CodeInvalidArgument},
		{"no-such-session", connect.CodeNotFound},
	}
	for _, tt := range tests {
		_, err := svc.DestroySession(bg(), request(map[string]any{"session": tt.session}))
		if connect.CodeOf(err) != tt.want {
			t.Errorf("DestroySession(%q) code = %v, want %v", tt.session, connect.CodeOf(err), tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Check
// ---------------------------------------------------------------------------

func TestCheck(t *testing.T) {
	svc := newTestEvalService()

	tests := []struct {
		source   string
		severity []string
	}{
		{"", nil},
		{"let a = 1\na", nil},
		{"let a = 1\nb", []string{"warning"}},
		{"let = 1", []string{"error"}},
	}
	for _, tt := range tests {
		resp, err := svc.Check(bg(), request(map[string]any{"source": tt.source}))
		if err != nil {
			t.Fatalf("Check(%q) returned error: %v", tt.source, err)
		}
		diags, _ := field(resp, "diagnostics").([]any)
		var got []string
		for _, d := range diags {
			got = append(got, d.(map[string]any)["severity"].(string))
		}
		if !reflect.DeepEqual(got, tt.severity) {
			t.Errorf("Check(%q) severities = %v, want %v", tt.source, got, tt.severity)
		}
	}
}
