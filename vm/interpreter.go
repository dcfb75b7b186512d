package vm

import (
	"slices"
	"strconv"
)

// ---------------------------------------------------------------------------
// Main dispatch loop
// ---------------------------------------------------------------------------

// execute runs instructions until the end of the loaded code. When host is
// set the loop belongs to a call made from Go and returns as soon as the
// matching host return marker is consumed.
func (vm *VM) execute(host bool) {
	for vm.ip < len(vm.code) {
		vm.steps++
		if vm.maxSteps > 0 && vm.steps > vm.maxSteps {
			vm.fail(LimitError, "step limit of %d exceeded", vm.maxSteps)
		}
		if vm.ctx != nil && vm.steps%cancelCheckInterval == 0 {
			if err := vm.ctx.Err(); err != nil {
				vm.fail(LimitError, "run cancelled: %v", err)
			}
		}
		if len(vm.stack) > vm.stackLimit {
			vm.fail(StackError, "operand stack overflow (limit %d)", vm.stackLimit)
		}

		ins := vm.code[vm.ip]
		if vm.trace {
			log.Debugf("%04d  %-40s stack=%d scopes=%d", vm.ip, ins, len(vm.stack), vm.scopes.Depth())
		}

		switch ins.Op {
		// --- Constants ---
		case OpLoadNumConst:
			vm.push(Number(ins.Num))
		case OpLoadStrConst:
			vm.push(String(ins.Name))
		case OpLoadTrue:
			vm.push(Bool(true))
		case OpLoadFalse:
			vm.push(Bool(false))
		case OpLoadNull:
			vm.push(Null{})
		case OpLoadUndefined:
			vm.push(Undefined{})

		// --- Bindings ---
		case OpLoad:
			vm.push(vm.load(ins.Name))
		case OpStore:
			vm.declare(vm.scopes.Current().Index, ins.Name, DeclLet, vm.popValue())
		case OpStoreConst:
			vm.declare(vm.scopes.Current().Index, ins.Name, DeclConst, vm.popValue())
		case OpStoreVar:
			vm.declare(vm.scopes.FunctionScope().Index, ins.Name, DeclVar, vm.popValue())
		case OpAssign:
			if err := vm.scopes.Assign(ins.Name, vm.popValue()); err != nil {
				vm.fail(BindingError, "%v", err)
			}

		// --- Objects ---
		case OpCreateObj:
			vm.push(NewObject())
		case OpBuildArray:
			vm.push(NewArray(vm.popN(ins.Arg)...))
		case OpLoadProp:
			obj := vm.popValue()
			vm.push(vm.getProp(obj, ins.Name))
		case OpLoadMember:
			key := vm.popValue()
			obj := vm.popValue()
			vm.push(vm.getMember(obj, key))
		case OpStoreProp:
			v := vm.popValue()
			obj := vm.popValue()
			vm.setProp(obj, ins.Name, v)
		case OpStoreMember:
			v := vm.popValue()
			key := vm.popValue()
			obj := vm.popValue()
			vm.setMember(obj, key, v)

		// --- Operators ---
		case OpAdd, OpSub, OpMul, OpDiv, OpMod,
			OpBitAnd, OpBitOr, OpBitXor, OpShiftLeft, OpShiftRight, OpUShiftRight:
			b := vm.popValue()
			a := vm.popValue()
			r, ok := Arith(ins.Op, a, b)
			if !ok {
				vm.fail(TypeError, "%s is not an arithmetic operator", ins.Op)
			}
			vm.push(r)
		case OpLess, OpGreater, OpLessEq, OpGreaterEq:
			b := vm.popValue()
			a := vm.popValue()
			vm.push(Bool(Compare(ins.Op, a, b)))
		case OpEqEq, OpNotEq:
			b := vm.popValue()
			a := vm.popValue()
			vm.push(Bool(LooseEquals(a, b) == (ins.Op == OpEqEq)))
		case OpEqEqEq, OpNotEqEq:
			b := vm.popValue()
			a := vm.popValue()
			vm.push(Bool(StrictEquals(a, b) == (ins.Op == OpEqEqEq)))
		case OpAnd:
			b := vm.popValue()
			a := vm.popValue()
			vm.push(Bool(Truthy(a) && Truthy(b)))
		case OpOr:
			b := vm.popValue()
			a := vm.popValue()
			vm.push(Bool(Truthy(a) || Truthy(b)))
		case OpNot:
			vm.push(Bool(!Truthy(vm.popValue())))
		case OpNegate:
			vm.push(Number(-ToNumber(vm.popValue())))
		case OpPlus:
			vm.push(Number(ToNumber(vm.popValue())))
		case OpInplaceAdd:
			vm.inplace(1)
		case OpInplaceSub:
			vm.inplace(-1)

		// --- Stack ---
		case OpPopTop:
			vm.pop()
		case OpDup:
			vm.push(vm.top())
		case OpDup2:
			if len(vm.stack) < 2 {
				vm.fail(StackError, "operand stack underflow")
			}
			n := len(vm.stack)
			vm.push(vm.stack[n-2])
			vm.push(vm.stack[n-1])

		// --- Control flow ---
		case OpJumpAbsolute:
			vm.jump(ins.Arg)
			continue
		case OpPopJumpIfFalse:
			if !Truthy(vm.popValue()) {
				vm.jump(ins.Arg)
				continue
			}
		case OpSetupLoop:
			vm.scopes.Push(false)
		case OpPopBlock:
			if err := vm.scopes.Pop(); err != nil {
				vm.fail(StackError, "%v", err)
			}

		// --- Functions ---
		case OpDeclareFunc:
			fn := vm.makeFunction(ins.Func)
			vm.declare(vm.scopes.Current().Index, fn.Name, DeclFunction, fn)
			vm.ip = ins.Func.End + 1
			continue
		case OpMakeFunc:
			vm.push(vm.makeFunction(ins.Func))
			vm.ip = ins.Func.End + 1
			continue
		case OpCall:
			args := vm.popN(ins.Arg)
			callee := vm.pop()
			if vm.call(callee, args, vm.ip+1) {
				continue
			}
		case OpReturn:
			if vm.ret() && host {
				return
			}
			continue

		default:
			vm.fail(TypeError, "unknown opcode 0x%02X", byte(ins.Op))
		}
		vm.ip++
	}
}

func (vm *VM) jump(target int) {
	if target < 0 || target > len(vm.code) {
		vm.fail(TypeError, "jump target %d out of range", target)
	}
	vm.ip = target
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// load pushes a located wrapper so a later write can find the binding.
// Unknown names load as undefined.
func (vm *VM) load(name string) Value {
	index, key, ok := vm.scopes.Lookup(name)
	if !ok {
		return Undefined{}
	}
	v, _ := vm.scopes.Get(key)
	if ref, isRef := v.(Ref); isRef {
		v = vm.deref(ref)
	}
	return Located{Scope: index, Key: key, Name: name, Value: v}
}

func (vm *VM) declare(index int, name string, kind DeclKind, v Value) {
	if err := vm.scopes.Declare(index, name, kind, v); err != nil {
		vm.fail(BindingError, "%v", err)
	}
}

// inplace adds delta to a located number, writes it back under the same
// key and pushes the previous value.
func (vm *VM) inplace(delta float64) {
	raw := vm.pop()
	old := ToNumber(raw)
	loc, ok := raw.(Located)
	if ok {
		if loc.Scope < vm.scopes.Depth() {
			if kind, _ := vm.scopes.At(loc.Scope).KindOf(loc.Name); kind == DeclConst {
				vm.fail(BindingError, "assignment to constant %q", loc.Name)
			}
		}
		vm.scopes.Set(loc.Key, Number(old+delta))
	}
	vm.push(Number(old))
}

func (vm *VM) deref(r Ref) Value {
	v, ok := vm.scopes.Get(r.Path)
	if !ok {
		return Undefined{}
	}
	return v
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

// prototypeOf returns the single fallback object consulted when an own
// property is missing.
func (vm *VM) prototypeOf(v Value) *Object {
	var key string
	switch v.(type) {
	case *Object:
		key = "Object.prototype"
	case *Array:
		key = "Array.prototype"
	case *Function, *Builtin:
		key = "Function.prototype"
	default:
		return nil
	}
	p, ok := vm.scopes.Get(TableKey(0, key))
	if !ok {
		return nil
	}
	obj, _ := p.(*Object)
	return obj
}

// ownProp reads a property without prototype fallback.
func ownProp(obj Value, name string) (Value, bool) {
	switch o := obj.(type) {
	case *Object:
		return o.Get(name)
	case *Array:
		if i, ok := arrayIndex(name); ok {
			if i < o.Len() {
				return o.At(i), true
			}
			return nil, false
		}
		return o.Props.Get(name)
	case *Function:
		if o.Props == nil {
			return nil, false
		}
		return o.Props.Get(name)
	case String:
		if name == "length" {
			return Number(len([]rune(string(o)))), true
		}
		if i, ok := arrayIndex(name); ok {
			r := []rune(string(o))
			if i < len(r) {
				return String(r[i]), true
			}
		}
	}
	return nil, false
}

// getProp implements LoadProp: own property, then one prototype level.
// References resolve through the object table, and callables come back
// bound to obj so a following Call sees the receiver.
func (vm *VM) getProp(obj Value, name string) Value {
	v, ok := ownProp(obj, name)
	if !ok {
		if proto := vm.prototypeOf(obj); proto != nil {
			v, ok = proto.Get(name)
		}
	}
	if !ok {
		return Undefined{}
	}
	if ref, isRef := v.(Ref); isRef {
		v = vm.deref(ref)
	}
	if IsCallable(v) {
		return BoundMethod{This: obj, Callee: v}
	}
	return v
}

func (vm *VM) getMember(obj, key Value) Value {
	if n, ok := key.(Number); ok {
		if a, isArr := obj.(*Array); isArr {
			f := float64(n)
			if f >= 0 && f == float64(int(f)) {
				return a.At(int(f))
			}
		}
	}
	return vm.getProp(obj, ToString(key))
}

// setProp implements StoreProp. Stores into frozen objects and primitives
// are ignored; stores into undefined or null are fatal.
func (vm *VM) setProp(obj Value, name string, v Value) {
	switch o := obj.(type) {
	case *Object:
		if o.Mutable {
			o.Set(name, v)
		}
	case *Array:
		if !o.Props.Mutable {
			return
		}
		if name == "length" {
			n := ToNumber(v)
			if n >= 0 && n == float64(int(n)) {
				o.SetLength(int(n))
			}
			return
		}
		if i, ok := arrayIndex(name); ok {
			o.SetAt(i, v)
			return
		}
		o.Props.Set(name, v)
	case *Function:
		if !o.Mutable {
			return
		}
		if o.Props == nil {
			o.Props = NewObject()
		}
		o.Props.Set(name, v)
	case Undefined, Null:
		vm.fail(TypeError, "cannot set property %q of %s", name, ToString(o))
	}
}

func (vm *VM) setMember(obj, key, v Value) {
	if n, ok := key.(Number); ok {
		if a, isArr := obj.(*Array); isArr {
			f := float64(n)
			if f >= 0 && f == float64(int(f)) {
				if a.Props.Mutable {
					a.SetAt(int(f), v)
				}
				return
			}
		}
	}
	vm.setProp(obj, ToString(key), v)
}

// arrayIndex parses a canonical non-negative integer property name.
func arrayIndex(name string) (int, bool) {
	if name == "" || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if !isDigit(name[i]) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) makeFunction(info *FuncInfo) *Function {
	return &Function{
		Name:    info.Name,
		Params:  append([]string(nil), info.Params...),
		Start:   info.Start,
		End:     info.End,
		Mutable: info.Mutable,

		BindsName: info.BindsName,
	}
}

// call invokes callee. It reports true when control moved into a user
// function body and the caller must not advance the instruction pointer.
func (vm *VM) call(callee Value, args []Value, retIP int) bool {
	var this Value = Undefined{}
	name := "value"
	if loc, ok := callee.(Located); ok {
		name = loc.Name
	}
	if m, ok := callee.(BoundMethod); ok {
		this = Unwrap(m.This)
		callee = m.Callee
	}
	callee = Unwrap(callee)
	if ref, ok := callee.(Ref); ok {
		callee = vm.deref(ref)
	}

	switch fn := callee.(type) {
	case *Function:
		vm.enter(fn, this, args, retIP, false)
		return true
	case *Builtin:
		vm.push(vm.callNative(fn, this, args))
		return false
	}
	vm.fail(TypeError, "%s is not a function (got %s)", name, TypeOf(callee))
	return false
}

// enter pushes the return marker, opens the function scope, binds the
// parameters and jumps to the first body instruction.
func (vm *VM) enter(fn *Function, this Value, args []Value, retIP int, host bool) {
	vm.push(returnMarker{ip: retIP, depth: vm.scopes.Depth(), host: host})
	sc := vm.scopes.Push(true)
	vm.declare(sc.Index, "this", DeclParam, this)
	for i, p := range fn.Params {
		var v Value = Undefined{}
		if i < len(args) {
			v = args[i]
		}
		vm.declare(sc.Index, p, DeclParam, v)
	}
	for i := len(fn.Params); i < len(args); i++ {
		vm.declare(sc.Index, "extra."+strconv.Itoa(i-len(fn.Params)+1), DeclParam, args[i])
	}
	// A parameter of the same name wins.
	if fn.BindsName && !slices.Contains(fn.Params, fn.Name) {
		vm.declare(sc.Index, fn.Name, DeclParam, fn)
	}
	vm.ip = fn.Start
}

// ret implements Return. It reports whether the consumed marker belongs
// to a call made from Go.
func (vm *VM) ret() bool {
	var result Value = Undefined{}
	n := len(vm.stack)
	if n > 0 {
		if _, isMarker := vm.stack[n-1].(returnMarker); !isMarker {
			result = Unwrap(vm.stack[n-1])
		}
	}
	for i := n - 1; i >= 0; i-- {
		m, ok := vm.stack[i].(returnMarker)
		if !ok {
			continue
		}
		for j := i; j < n; j++ {
			vm.stack[j] = nil
		}
		vm.stack = vm.stack[:i]
		vm.scopes.Truncate(m.depth)
		vm.ip = m.ip
		vm.push(result)
		return m.host
	}
	vm.fail(StackError, "return without a call")
	return false
}

func (vm *VM) callNative(b *Builtin, this Value, args []Value) Value {
	fn, ok := vm.natives[b.Op]
	if !ok {
		vm.fail(TypeError, "unknown native operation %q", b.Op)
	}
	v, err := fn(vm, this, args)
	if err != nil {
		if rerr, isRuntime := err.(*RuntimeError); isRuntime {
			panic(rerr)
		}
		vm.fail(TypeError, "%s: %v", b.Name, err)
	}
	if v == nil {
		return Undefined{}
	}
	return v
}

// Invoke calls a callable value from Go and returns its result. User
// functions run in a nested dispatch loop that ends at their Return.
func (vm *VM) Invoke(callee, this Value, args ...Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			vm.recoverState()
			result, err = nil, rerr
		}
	}()
	return vm.invoke(callee, this, args), nil
}

// invoke is Invoke for natives already running inside the dispatch loop;
// fatal errors propagate to the outermost run.
func (vm *VM) invoke(callee, this Value, args []Value) Value {
	callee = Unwrap(callee)
	if ref, ok := callee.(Ref); ok {
		callee = vm.deref(ref)
	}
	switch fn := callee.(type) {
	case *Builtin:
		return vm.callNative(fn, this, args)
	case *Function:
		saved := vm.ip
		base := len(vm.stack)
		vm.enter(fn, this, args, saved, true)
		vm.execute(true)
		if len(vm.stack) <= base {
			vm.fail(StackError, "call to %s returned no value", fn.Name)
		}
		result := vm.stack[len(vm.stack)-1]
		vm.stack = vm.stack[:len(vm.stack)-1]
		vm.ip = saved
		return Unwrap(result)
	}
	vm.fail(TypeError, "%s is not a function", TypeOf(callee))
	return nil
}
