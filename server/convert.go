package server

import (
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/curly/vm"
)

// ---------------------------------------------------------------------------
// vm.Value -> google.protobuf.Value
// ---------------------------------------------------------------------------

// valueToProto converts a program value to its JSON-like wire form.
// undefined and null become null, numbers that JSON cannot carry (NaN and
// the infinities) become their printed strings, arrays become lists and
// objects become structs. Anything else is sent as its printed string.
func valueToProto(v vm.Value) *structpb.Value {
	return toProto(v, make(map[vm.Value]bool))
}

func toProto(v vm.Value, seen map[vm.Value]bool) *structpb.Value {
	v = vm.Unwrap(v)
	switch x := v.(type) {
	case vm.Undefined, vm.Null:
		return structpb.NewNullValue()
	case vm.Bool:
		return structpb.NewBoolValue(bool(x))
	case vm.Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return structpb.NewStringValue(vm.ToString(x))
		}
		return structpb.NewNumberValue(f)
	case vm.String:
		return structpb.NewStringValue(string(x))
	case *vm.Array:
		if seen[x] {
			return structpb.NewStringValue("[Circular]")
		}
		seen[x] = true
		defer delete(seen, x)

		list := &structpb.ListValue{Values: make([]*structpb.Value, len(x.Elements))}
		for i, el := range x.Elements {
			list.Values[i] = toProto(el, seen)
		}
		return structpb.NewListValue(list)
	case *vm.Object:
		if seen[x] {
			return structpb.NewStringValue("[Circular]")
		}
		seen[x] = true
		defer delete(seen, x)

		st := &structpb.Struct{Fields: make(map[string]*structpb.Value, x.Len())}
		for _, k := range x.Keys() {
			prop, _ := x.Get(k)
			st.Fields[k] = toProto(prop, seen)
		}
		return structpb.NewStructValue(st)
	}
	return structpb.NewStringValue(vm.ToString(v))
}

func stringsToProto(ss []string) *structpb.Value {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(ss))}
	for i, s := range ss {
		list.Values[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(list)
}

func logsToProto(logs [][]vm.Value) *structpb.Value {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(logs))}
	for i, args := range logs {
		call := &structpb.ListValue{Values: make([]*structpb.Value, len(args))}
		for j, a := range args {
			call.Values[j] = valueToProto(a)
		}
		list.Values[i] = structpb.NewListValue(call)
	}
	return structpb.NewListValue(list)
}

// stringField reads a string field from a request, or "" when absent.
func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}
