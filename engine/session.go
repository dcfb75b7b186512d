package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/curly/compiler"
	"github.com/chazu/curly/vm"
)

// Session is an incremental evaluation context: each chunk is compiled
// at the end of the code already loaded, so bindings from earlier chunks
// stay visible. A Session is not safe for concurrent use.
type Session struct {
	ID      string
	Created time.Time

	vm      *vm.VM
	capture *vm.CaptureHost
}

// NewSession creates a session with its own VM. A nil host captures
// console output into each Result.
func (e *Engine) NewSession(host vm.Host) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Created: time.Now(),
	}
	if host == nil {
		s.capture = &vm.CaptureHost{}
		host = s.capture
	}
	s.vm = e.NewVM(host)
	log.Debugf("session %s created", s.ID)
	return s
}

// VM returns the session's machine.
func (s *Session) VM() *vm.VM {
	return s.vm
}

// Eval compiles source as the next chunk and runs it. A chunk that fails
// to compile leaves the session unchanged; a chunk that fails at run time
// keeps whatever top-level bindings it made before the error.
func (s *Session) Eval(ctx context.Context, source string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, err := compiler.CompileAt(source, s.vm.End())
	if err != nil {
		return nil, err
	}
	if err := s.vm.Append(prog); err != nil {
		return nil, err
	}

	if s.capture != nil {
		s.capture.Reset()
	}
	res := &Result{RunID: uuid.NewString()}
	start := time.Now()
	v, err := s.vm.ResumeContext(ctx)
	res.Duration = time.Since(start)
	res.Steps = s.vm.Steps()
	res.Value = v
	if s.capture != nil {
		res.Logs = s.capture.Calls
		res.Output = s.capture.Lines()
	}
	if err != nil {
		res.Value = vm.Undefined{}
		return res, err
	}
	return res, nil
}
