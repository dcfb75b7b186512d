package vm

import (
	"errors"
	"math"
	"strings"
)

// nativeFunc implements a built-in. this is the receiver the built-in was
// read from, or undefined for a plain call.
type nativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// Native operation identifiers. They double as the dotted paths the
// built-ins are bound at in scope 0.
const (
	NativeConsoleLog     NativeOp = "console.log"
	NativeObjectKeys     NativeOp = "Object.keys"
	NativeObjectFreeze   NativeOp = "Object.freeze"
	NativeHasOwnProperty NativeOp = "Object.prototype.hasOwnProperty"
	NativeFunctionApply  NativeOp = "Function.prototype.apply"
	NativeFunctionCall   NativeOp = "Function.prototype.call"
	NativeArrayIsArray   NativeOp = "Array.isArray"
	NativeArrayPush      NativeOp = "Array.prototype.push"
	NativeArrayPop       NativeOp = "Array.prototype.pop"
	NativeArrayJoin      NativeOp = "Array.prototype.join"
	NativeArrayIndexOf   NativeOp = "Array.prototype.indexOf"
	NativeArrayIncludes  NativeOp = "Array.prototype.includes"
	NativeArraySlice     NativeOp = "Array.prototype.slice"
	NativeArrayConcat    NativeOp = "Array.prototype.concat"
	NativeArrayMap       NativeOp = "Array.prototype.map"
	NativeArrayForEach   NativeOp = "Array.prototype.forEach"
)

// builtinSpec describes one bootstrap entry.
type builtinSpec struct {
	op     NativeOp
	params []string
	fn     nativeFunc
}

var builtinSpecs = []builtinSpec{
	{NativeConsoleLog, []string{"args"}, nativeConsoleLog},
	{NativeObjectKeys, []string{"object"}, nativeObjectKeys},
	{NativeObjectFreeze, []string{"object"}, nativeObjectFreeze},
	{NativeHasOwnProperty, []string{"name"}, nativeHasOwnProperty},
	{NativeFunctionApply, []string{"thisArg", "args"}, nativeFunctionApply},
	{NativeFunctionCall, []string{"thisArg"}, nativeFunctionCall},
	{NativeArrayIsArray, []string{"value"}, nativeArrayIsArray},
	{NativeArrayPush, []string{"items"}, nativeArrayPush},
	{NativeArrayPop, nil, nativeArrayPop},
	{NativeArrayJoin, []string{"separator"}, nativeArrayJoin},
	{NativeArrayIndexOf, []string{"item"}, nativeArrayIndexOf},
	{NativeArrayIncludes, []string{"item"}, nativeArrayIncludes},
	{NativeArraySlice, []string{"start", "end"}, nativeArraySlice},
	{NativeArrayConcat, []string{"items"}, nativeArrayConcat},
	{NativeArrayMap, []string{"callback"}, nativeArrayMap},
	{NativeArrayForEach, []string{"callback"}, nativeArrayForEach},
}

// BuiltinInfo describes a built-in for tooling.
type BuiltinInfo struct {
	Path   string // dotted path, e.g. "Array.prototype.map"
	Params []string
}

// Builtins lists every built-in function in bootstrap order.
func Builtins() []BuiltinInfo {
	out := make([]BuiltinInfo, len(builtinSpecs))
	for i, s := range builtinSpecs {
		out[i] = BuiltinInfo{Path: string(s.op), Params: s.params}
	}
	return out
}

func nativeTable() map[NativeOp]nativeFunc {
	t := make(map[NativeOp]nativeFunc, len(builtinSpecs))
	for _, s := range builtinSpecs {
		t[s.op] = s.fn
	}
	return t
}

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

// bootstrap binds the built-in objects in scope 0. Every object and
// built-in gets its own table entry under its dotted path; containers hold
// references to their members.
func (vm *VM) bootstrap() {
	objects := map[string]*Object{}
	var paths []string

	// ensure creates the container at path and links it into its parent.
	var ensure func(path string) *Object
	ensure = func(path string) *Object {
		if obj, ok := objects[path]; ok {
			return obj
		}
		obj := &Object{props: make(map[string]Value)}
		objects[path] = obj
		paths = append(paths, path)
		if i := strings.LastIndexByte(path, '.'); i >= 0 {
			ensure(path[:i]).Set(path[i+1:], Ref{Path: TableKey(0, path)})
		}
		return obj
	}

	for _, s := range builtinSpecs {
		path := string(s.op)
		i := strings.LastIndexByte(path, '.')
		name := path[i+1:]
		ensure(path[:i]).Set(name, Ref{Path: TableKey(0, path)})
		vm.declare(0, path, DeclBuiltin, &Builtin{Name: name, Params: s.params, Op: s.op})
	}
	for _, path := range paths {
		vm.declare(0, path, DeclBuiltin, objects[path])
	}

	vm.declare(0, "NaN", DeclBuiltin, NaN())
	vm.declare(0, "Infinity", DeclBuiltin, Number(math.Inf(1)))
	vm.declare(0, "undefined", DeclBuiltin, Undefined{})
}

// ---------------------------------------------------------------------------
// console, Object, Function
// ---------------------------------------------------------------------------

func nativeConsoleLog(vm *VM, this Value, args []Value) (Value, error) {
	vm.host.Log(args)
	return Undefined{}, nil
}

func nativeObjectKeys(vm *VM, this Value, args []Value) (Value, error) {
	var keys []Value
	switch o := arg(args, 0).(type) {
	case *Object:
		for _, k := range o.Keys() {
			keys = append(keys, String(k))
		}
	case *Array:
		for i := range o.Elements {
			keys = append(keys, String(FormatNumber(float64(i))))
		}
		for _, k := range o.Props.Keys() {
			if k != "length" {
				keys = append(keys, String(k))
			}
		}
	case *Function:
		if o.Props != nil {
			for _, k := range o.Props.Keys() {
				keys = append(keys, String(k))
			}
		}
	}
	return NewArray(keys...), nil
}

func nativeObjectFreeze(vm *VM, this Value, args []Value) (Value, error) {
	v := arg(args, 0)
	switch o := v.(type) {
	case *Object:
		o.Mutable = false
	case *Array:
		o.Props.Mutable = false
	case *Function:
		o.Mutable = false
	}
	return v, nil
}

func nativeHasOwnProperty(vm *VM, this Value, args []Value) (Value, error) {
	_, ok := ownProp(this, ToString(arg(args, 0)))
	return Bool(ok), nil
}

func nativeFunctionApply(vm *VM, this Value, args []Value) (Value, error) {
	var callArgs []Value
	switch a := arg(args, 1).(type) {
	case *Array:
		callArgs = append(callArgs, a.Elements...)
	case Undefined, Null:
	default:
		return nil, errors.New("argument list must be an array")
	}
	return vm.invoke(this, arg(args, 0), callArgs), nil
}

func nativeFunctionCall(vm *VM, this Value, args []Value) (Value, error) {
	var rest []Value
	if len(args) > 1 {
		rest = args[1:]
	}
	return vm.invoke(this, arg(args, 0), rest), nil
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

func nativeArrayIsArray(vm *VM, this Value, args []Value) (Value, error) {
	_, ok := arg(args, 0).(*Array)
	return Bool(ok), nil
}

func receiverArray(this Value, method string) (*Array, error) {
	a, ok := this.(*Array)
	if !ok {
		return nil, errors.New("Array.prototype." + method + " called on " + TypeOf(this))
	}
	return a, nil
}

func nativeArrayPush(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "push")
	if err != nil {
		return nil, err
	}
	if !a.Props.Mutable {
		return nil, errors.New("cannot push to a frozen array")
	}
	return Number(a.Push(args...)), nil
}

func nativeArrayPop(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "pop")
	if err != nil {
		return nil, err
	}
	if !a.Props.Mutable {
		return nil, errors.New("cannot pop from a frozen array")
	}
	return a.Pop(), nil
}

func nativeArrayJoin(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "join")
	if err != nil {
		return nil, err
	}
	sep := ","
	if s, ok := arg(args, 0).(String); ok {
		sep = string(s)
	} else if _, undef := arg(args, 0).(Undefined); !undef {
		sep = ToString(arg(args, 0))
	}
	return String(joinArray(a, sep, nil)), nil
}

func nativeArrayIndexOf(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "indexOf")
	if err != nil {
		return nil, err
	}
	needle := arg(args, 0)
	for i, el := range a.Elements {
		if StrictEquals(el, needle) {
			return Number(i), nil
		}
	}
	return Number(-1), nil
}

func nativeArrayIncludes(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "includes")
	if err != nil {
		return nil, err
	}
	needle := arg(args, 0)
	for _, el := range a.Elements {
		if sameValueZero(el, needle) {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func nativeArraySlice(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "slice")
	if err != nil {
		return nil, err
	}
	n := a.Len()
	start := relativeIndex(arg(args, 0), n, 0)
	end := relativeIndex(arg(args, 1), n, n)
	if end < start {
		end = start
	}
	return NewArray(append([]Value(nil), a.Elements[start:end]...)...), nil
}

// relativeIndex clamps an index argument to [0, n]; negatives count from
// the end and undefined gives def.
func relativeIndex(v Value, n, def int) int {
	if _, ok := v.(Undefined); ok {
		return def
	}
	f := math.Trunc(ToNumber(v))
	if math.IsNaN(f) {
		return 0
	}
	if f < 0 {
		f += float64(n)
	}
	return int(math.Max(0, math.Min(f, float64(n))))
}

func nativeArrayConcat(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "concat")
	if err != nil {
		return nil, err
	}
	out := append([]Value(nil), a.Elements...)
	for _, v := range args {
		if other, ok := v.(*Array); ok {
			out = append(out, other.Elements...)
			continue
		}
		out = append(out, v)
	}
	return NewArray(out...), nil
}

func nativeArrayMap(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "map")
	if err != nil {
		return nil, err
	}
	fn := arg(args, 0)
	if !IsCallable(fn) {
		return nil, errors.New(TypeOf(fn) + " is not a function")
	}
	out := make([]Value, 0, a.Len())
	for i := 0; i < a.Len(); i++ {
		out = append(out, vm.invoke(fn, Undefined{}, []Value{a.At(i), Number(i), a}))
	}
	return NewArray(out...), nil
}

func nativeArrayForEach(vm *VM, this Value, args []Value) (Value, error) {
	a, err := receiverArray(this, "forEach")
	if err != nil {
		return nil, err
	}
	fn := arg(args, 0)
	if !IsCallable(fn) {
		return nil, errors.New(TypeOf(fn) + " is not a function")
	}
	for i := 0; i < a.Len(); i++ {
		vm.invoke(fn, Undefined{}, []Value{a.At(i), Number(i), a})
	}
	return Undefined{}, nil
}

// arg returns args[i], or undefined when absent.
func arg(args []Value, i int) Value {
	if i < len(args) {
		return Unwrap(args[i])
	}
	return Undefined{}
}
