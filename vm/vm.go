package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("curly.vm")

// DefaultStackLimit bounds the operand stack when no limit is configured.
const DefaultStackLimit = 1 << 16

// ---------------------------------------------------------------------------
// VM: the stack virtual machine
// ---------------------------------------------------------------------------

// VM executes programs against an operand stack, a scope stack and a flat
// object table. A VM is not safe for concurrent use.
type VM struct {
	code  []Instruction
	lines []int
	ip    int

	stack  []Value
	scopes *Scopes

	host    Host
	natives map[NativeOp]nativeFunc

	maxSteps   int
	stackLimit int
	trace      bool
	steps      int

	// ctx is polled every cancelCheckInterval steps while a run is active.
	ctx context.Context
}

// cancelCheckInterval is how many instructions run between polls of the
// run context.
const cancelCheckInterval = 1024

// Option configures a VM.
type Option func(*VM)

// WithHost sets the receiver of console.log output.
func WithHost(h Host) Option {
	return func(vm *VM) { vm.host = h }
}

// WithMaxSteps aborts a run with a LimitError after n instructions.
// Zero means unlimited.
func WithMaxSteps(n int) Option {
	return func(vm *VM) { vm.maxSteps = n }
}

// WithStackLimit bounds the operand stack depth.
func WithStackLimit(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.stackLimit = n
		}
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.trace = on }
}

// New creates a VM and bootstraps the built-in objects into scope 0.
func New(opts ...Option) *VM {
	vm := &VM{
		stack:      make([]Value, 0, 256),
		scopes:     NewScopes(),
		host:       discardHost{},
		stackLimit: DefaultStackLimit,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.natives = nativeTable()
	vm.bootstrap()
	return vm
}

// Host returns the output host.
func (vm *VM) Host() Host {
	return vm.host
}

// Scopes exposes the scope stack and object table.
func (vm *VM) Scopes() *Scopes {
	return vm.scopes
}

// Stack returns a copy of the operand stack, bottom first.
func (vm *VM) Stack() []Value {
	return append([]Value(nil), vm.stack...)
}

// Steps returns the number of instructions executed by the last run.
func (vm *VM) Steps() int {
	return vm.steps
}

// End returns the address just past the loaded code. Chunks meant for
// Append must be compiled at this base.
func (vm *VM) End() int {
	return len(vm.code)
}

// Program returns a copy of the code loaded so far.
func (vm *VM) Program() *Program {
	p := &Program{Code: append([]Instruction(nil), vm.code...)}
	if len(vm.lines) > 0 {
		p.Lines = append([]int(nil), vm.lines...)
	}
	return p
}

// Lookup resolves a binding by name, as Load would.
func (vm *VM) Lookup(name string) (Value, bool) {
	v, ok := vm.scopes.Resolve(name)
	if !ok {
		return Undefined{}, false
	}
	return v, true
}

// ---------------------------------------------------------------------------
// Running programs
// ---------------------------------------------------------------------------

// Run loads prog in place of any previous code and executes it from the
// first instruction. Scopes are kept, so bindings from earlier runs stay
// visible. The result is the value left on top of the operand stack, or
// undefined.
func (vm *VM) Run(prog *Program) (Value, error) {
	return vm.RunContext(context.Background(), prog)
}

// RunContext is Run with cancellation: when ctx is done the run aborts
// with a LimitError.
func (vm *VM) RunContext(ctx context.Context, prog *Program) (Value, error) {
	if prog.Base != 0 {
		return nil, fmt.Errorf("program is based at %d; use Append", prog.Base)
	}
	vm.code = append([]Instruction(nil), prog.Code...)
	vm.lines = append([]int(nil), prog.Lines...)
	vm.ip = 0
	vm.stack = vm.stack[:0]
	return vm.run(ctx)
}

// Append adds a chunk compiled at vm.End() to the loaded code without
// executing it.
func (vm *VM) Append(prog *Program) error {
	if prog.Base != len(vm.code) {
		return fmt.Errorf("chunk is based at %d, want %d", prog.Base, len(vm.code))
	}
	// Keep the line table aligned with the code.
	for len(vm.lines) < len(vm.code) {
		vm.lines = append(vm.lines, 0)
	}
	vm.code = append(vm.code, prog.Code...)
	vm.lines = append(vm.lines, prog.Lines...)
	return nil
}

// Resume executes from the current instruction pointer to the end of the
// loaded code. The operand stack is cleared first.
func (vm *VM) Resume() (Value, error) {
	return vm.ResumeContext(context.Background())
}

// ResumeContext is Resume with cancellation.
func (vm *VM) ResumeContext(ctx context.Context) (Value, error) {
	vm.stack = vm.stack[:0]
	return vm.run(ctx)
}

func (vm *VM) run(ctx context.Context) (result Value, err error) {
	vm.steps = 0
	vm.ctx = ctx
	defer func() {
		vm.ctx = nil
		if r := recover(); r != nil {
			rerr, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			log.Debugf("run aborted: %s", rerr)
			vm.recoverState()
			result, err = nil, rerr
		}
	}()

	vm.execute(false)
	log.Debugf("run finished after %d steps", vm.steps)

	if len(vm.stack) == 0 {
		return Undefined{}, nil
	}
	return Unwrap(vm.stack[len(vm.stack)-1]), nil
}

// recoverState leaves the VM usable after a fatal error: the rest of the
// loaded code is skipped and every scope above the top one is dropped.
func (vm *VM) recoverState() {
	vm.stack = vm.stack[:0]
	vm.scopes.Truncate(1)
	vm.ip = len(vm.code)
}

// fail aborts execution with a runtime error at the current instruction.
func (vm *VM) fail(kind ErrorKind, format string, args ...any) {
	err := &RuntimeError{Kind: kind, IP: vm.ip, Msg: fmt.Sprintf(format, args...)}
	if vm.ip >= 0 && vm.ip < len(vm.code) {
		err.Op = vm.code[vm.ip].Op
	}
	if vm.ip >= 0 && vm.ip < len(vm.lines) {
		err.Line = vm.lines[vm.ip]
	}
	panic(err)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

// pop removes the raw top entry.
func (vm *VM) pop() Value {
	n := len(vm.stack)
	if n == 0 {
		vm.fail(StackError, "operand stack underflow")
	}
	v := vm.stack[n-1]
	vm.stack[n-1] = nil
	vm.stack = vm.stack[:n-1]
	if _, ok := v.(returnMarker); ok {
		vm.fail(StackError, "operand stack underflow: popped a return marker")
	}
	return v
}

// popValue pops and unwraps.
func (vm *VM) popValue() Value {
	return Unwrap(vm.pop())
}

func (vm *VM) popN(n int) []Value {
	if n < 0 || len(vm.stack) < n {
		vm.fail(StackError, "operand stack underflow: need %d values, have %d", n, len(vm.stack))
	}
	out := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = vm.popValue()
	}
	return out
}

func (vm *VM) top() Value {
	if len(vm.stack) == 0 {
		vm.fail(StackError, "operand stack underflow")
	}
	return vm.stack[len(vm.stack)-1]
}
