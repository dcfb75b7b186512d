package vm

import (
	"fmt"
	"io"
	"strings"
)

// Host receives the observable output of a program.
type Host interface {
	// Log is called once per console.log call with its evaluated arguments.
	Log(args []Value)
}

// CaptureHost records console.log calls instead of printing them.
type CaptureHost struct {
	Calls [][]Value
}

// Log implements Host.
func (h *CaptureHost) Log(args []Value) {
	h.Calls = append(h.Calls, append([]Value(nil), args...))
}

// Lines renders every captured call as it would have been printed.
func (h *CaptureHost) Lines() []string {
	out := make([]string, len(h.Calls))
	for i, call := range h.Calls {
		out[i] = RenderLine(call)
	}
	return out
}

// Reset drops captured calls.
func (h *CaptureHost) Reset() {
	h.Calls = nil
}

// WriterHost prints each call as one line.
type WriterHost struct {
	W io.Writer
}

// Log implements Host.
func (h *WriterHost) Log(args []Value) {
	fmt.Fprintln(h.W, RenderLine(args))
}

// RenderLine joins rendered arguments with single spaces.
func RenderLine(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ToString(a)
	}
	return strings.Join(parts, " ")
}

type discardHost struct{}

func (discardHost) Log([]Value) {}
