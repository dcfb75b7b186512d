package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: runtime values
// ---------------------------------------------------------------------------

// Kind tags the variant of a runtime Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindFunction
	KindBuiltin
	KindRef
	KindLocated
	KindMarker
	KindMethod
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
	KindBuiltin:   "builtin",
	KindRef:       "reference",
	KindLocated:   "located",
	KindMarker:    "return-marker",
	KindMethod:    "method",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is implemented by every runtime value. Objects, arrays and
// functions are pointers, so copies of them alias.
type Value interface {
	Kind() Kind
}

// Undefined is the value of missing bindings and properties.
type Undefined struct{}

// Null is the null literal.
type Null struct{}

// Bool is a boolean.
type Bool bool

// Number is a 64-bit float. NaN is a Number holding an IEEE NaN.
type Number float64

// String is an immutable string.
type String string

func (Undefined) Kind() Kind { return KindUndefined }
func (Null) Kind() Kind      { return KindNull }
func (Bool) Kind() Kind      { return KindBool }
func (Number) Kind() Kind    { return KindNumber }
func (String) Kind() Kind    { return KindString }

// NaN returns the not-a-number value.
func NaN() Number {
	return Number(math.NaN())
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is an insertion-ordered property map. Stores into an immutable
// object are ignored.
type Object struct {
	Mutable bool
	keys    []string
	props   map[string]Value
}

// NewObject creates an empty mutable object.
func NewObject() *Object {
	return &Object{Mutable: true, props: make(map[string]Value)}
}

func (o *Object) Kind() Kind { return KindObject }

// Get returns the own property name.
func (o *Object) Get(name string) (Value, bool) {
	v, ok := o.props[name]
	return v, ok
}

// Set creates or overwrites an own property, ignoring the mutability flag.
func (o *Object) Set(name string, v Value) {
	if _, ok := o.props[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.props[name] = v
}

// Has reports whether name is an own property.
func (o *Object) Has(name string) bool {
	_, ok := o.props[name]
	return ok
}

// Keys returns own property names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of own properties.
func (o *Object) Len() int {
	return len(o.keys)
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is a dense element list plus a property map whose "length" entry
// always equals len(Elements). Mutate through the methods to keep it so.
type Array struct {
	Elements []Value
	Props    *Object
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	a := &Array{Elements: elems, Props: NewObject()}
	a.sync()
	return a
}

func (a *Array) Kind() Kind { return KindArray }

func (a *Array) sync() {
	a.Props.Set("length", Number(len(a.Elements)))
}

// Len returns the element count.
func (a *Array) Len() int {
	return len(a.Elements)
}

// At returns element i, or undefined when out of range.
func (a *Array) At(i int) Value {
	if i < 0 || i >= len(a.Elements) {
		return Undefined{}
	}
	return a.Elements[i]
}

// SetAt stores v at index i, growing the array with undefined as needed.
func (a *Array) SetAt(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.Elements) <= i {
		a.Elements = append(a.Elements, Undefined{})
	}
	a.Elements[i] = v
	a.sync()
}

// Push appends values and returns the new length.
func (a *Array) Push(vs ...Value) int {
	a.Elements = append(a.Elements, vs...)
	a.sync()
	return len(a.Elements)
}

// Pop removes and returns the last element.
func (a *Array) Pop() Value {
	if len(a.Elements) == 0 {
		return Undefined{}
	}
	last := a.Elements[len(a.Elements)-1]
	a.Elements = a.Elements[:len(a.Elements)-1]
	a.sync()
	return last
}

// SetLength truncates or pads the array to n elements.
func (a *Array) SetLength(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(a.Elements) {
		a.Elements = a.Elements[:n]
	}
	for len(a.Elements) < n {
		a.Elements = append(a.Elements, Undefined{})
	}
	a.sync()
}

// ---------------------------------------------------------------------------
// Callables
// ---------------------------------------------------------------------------

// Function is a user function: a code range [Start, End) of the program.
// Free identifiers in its body are resolved when it runs, not when it is
// created.
type Function struct {
	Name    string
	Params  []string
	Start   int
	End     int
	Mutable bool
	Props   *Object

	BindsName bool
}

func (f *Function) Kind() Kind { return KindFunction }

// NativeOp identifies a built-in operation in the handler table.
type NativeOp string

// Builtin is a native operation stored as plain data.
type Builtin struct {
	Name   string
	Params []string
	Op     NativeOp
}

func (b *Builtin) Kind() Kind { return KindBuiltin }

// ---------------------------------------------------------------------------
// Indirections and stack sentinels
// ---------------------------------------------------------------------------

// Ref is a late-bound pointer to an object-table key.
type Ref struct {
	Path string
}

func (Ref) Kind() Kind { return KindRef }

// Located records where a loaded value lives so it can be written back.
type Located struct {
	Scope int
	Key   string
	Name  string
	Value Value
}

func (Located) Kind() Kind { return KindLocated }

// BoundMethod pairs a callable read from a property with its receiver.
type BoundMethod struct {
	This   Value
	Callee Value
}

func (BoundMethod) Kind() Kind { return KindMethod }

// returnMarker sits on the operand stack beneath a call's working values.
type returnMarker struct {
	ip    int  // address to resume at
	depth int  // scope depth to unwind to
	host  bool // the call was made from Go and its loop must exit
}

func (returnMarker) Kind() Kind { return KindMarker }

// Unwrap strips located wrappers and method bindings, yielding the plain
// value a consumer should see.
func Unwrap(v Value) Value {
	for {
		switch w := v.(type) {
		case Located:
			v = w.Value
		case BoundMethod:
			v = w.Callee
		default:
			if v == nil {
				return Undefined{}
			}
			return v
		}
	}
}

// IsCallable reports whether v can be the callee of Call.
func IsCallable(v Value) bool {
	switch Unwrap(v).(type) {
	case *Function, *Builtin:
		return true
	}
	return false
}

// TypeOf returns the kind name used in diagnostics.
func TypeOf(v Value) string {
	return Unwrap(v).Kind().String()
}
