package vm

import "fmt"

// ErrorKind classifies fatal runtime errors.
type ErrorKind int

const (
	BindingError ErrorKind = iota // const/let redeclaration, assignment to const
	TypeError                     // call on a non-callable, store into undefined
	StackError                    // operand stack underflow or overflow
	LimitError                    // step limit exceeded
)

func (k ErrorKind) String() string {
	switch k {
	case BindingError:
		return "binding error"
	case TypeError:
		return "type error"
	case StackError:
		return "stack error"
	case LimitError:
		return "limit error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// RuntimeError is a fatal error raised while executing a program. It
// aborts the run; there is no guest-level exception handling.
type RuntimeError struct {
	Kind ErrorKind
	IP   int
	Op   Opcode
	Line int
	Msg  string
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %04d (%s, line %d): %s", e.Kind, e.IP, e.Op, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s at %04d (%s): %s", e.Kind, e.IP, e.Op, e.Msg)
}
