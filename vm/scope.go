package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Scopes and the object table
// ---------------------------------------------------------------------------

// DeclKind records how a binding was introduced.
type DeclKind uint8

const (
	DeclLet DeclKind = iota
	DeclConst
	DeclVar
	DeclFunction
	DeclParam
	DeclBuiltin
)

var declNames = [...]string{
	DeclLet:      "let",
	DeclConst:    "const",
	DeclVar:      "var",
	DeclFunction: "function",
	DeclParam:    "parameter",
	DeclBuiltin:  "builtin",
}

func (d DeclKind) String() string {
	if int(d) < len(declNames) {
		return declNames[d]
	}
	return "DeclKind(" + strconv.Itoa(int(d)) + ")"
}

// lexical reports whether the binding forbids redeclaration.
func (d DeclKind) lexical() bool {
	return d == DeclLet || d == DeclConst
}

// Scope is one frame of the binding stack. Bindings maps a dotted path to
// the object-table key that holds its value.
type Scope struct {
	Index    int
	Function bool
	bindings map[string]string
	kinds    map[string]DeclKind
}

// Bindings returns a copy of the path -> table key map.
func (s *Scope) Bindings() map[string]string {
	out := make(map[string]string, len(s.bindings))
	for k, v := range s.bindings {
		out[k] = v
	}
	return out
}

// KindOf returns the declaration kind of path in this scope.
func (s *Scope) KindOf(path string) (DeclKind, bool) {
	k, ok := s.kinds[path]
	return k, ok
}

// TableKey forms the canonical object-table key of path in scope index.
func TableKey(index int, path string) string {
	return strconv.Itoa(index) + ":" + path
}

// Scopes is the VM's scope stack together with the flat object table.
// Every table entry is owned by exactly one scope and is freed when that
// scope is popped.
type Scopes struct {
	stack []*Scope
	table map[string]Value
}

// NewScopes creates a stack holding only the top scope (index 0).
func NewScopes() *Scopes {
	s := &Scopes{table: make(map[string]Value)}
	s.Push(true)
	return s
}

// Depth returns the number of live scopes.
func (s *Scopes) Depth() int {
	return len(s.stack)
}

// Current returns the innermost scope.
func (s *Scopes) Current() *Scope {
	return s.stack[len(s.stack)-1]
}

// At returns the scope with the given index.
func (s *Scopes) At(index int) *Scope {
	return s.stack[index]
}

// Push opens a new scope. Function scopes are the targets of var bindings.
func (s *Scopes) Push(function bool) *Scope {
	sc := &Scope{
		Index:    len(s.stack),
		Function: function,
		bindings: make(map[string]string),
		kinds:    make(map[string]DeclKind),
	}
	s.stack = append(s.stack, sc)
	return sc
}

// Pop closes the innermost scope and removes every table entry it owns.
// The top scope can never be popped.
func (s *Scopes) Pop() error {
	if len(s.stack) <= 1 {
		return fmt.Errorf("cannot pop the top scope")
	}
	sc := s.stack[len(s.stack)-1]
	for _, key := range sc.bindings {
		delete(s.table, key)
	}
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]
	return nil
}

// Truncate pops scopes until depth remain.
func (s *Scopes) Truncate(depth int) {
	if depth < 1 {
		depth = 1
	}
	for len(s.stack) > depth {
		_ = s.Pop()
	}
}

// FunctionScope returns the nearest enclosing function scope.
func (s *Scopes) FunctionScope() *Scope {
	for i := len(s.stack) - 1; i > 0; i-- {
		if s.stack[i].Function {
			return s.stack[i]
		}
	}
	return s.stack[0]
}

// Lookup walks from the innermost scope outwards and returns the scope
// index and table key binding path.
func (s *Scopes) Lookup(path string) (int, string, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if key, ok := s.stack[i].bindings[path]; ok {
			return i, key, true
		}
	}
	return 0, "", false
}

// Declare binds path in the scope with the given index. A let or const
// binding may not be redeclared in the same scope, and neither may a let
// or const shadow an existing binding of that scope.
func (s *Scopes) Declare(index int, path string, kind DeclKind, v Value) error {
	sc := s.stack[index]
	if prev, ok := sc.kinds[path]; ok && prev != DeclBuiltin {
		if prev.lexical() || kind.lexical() {
			return fmt.Errorf("redeclaration of %s %q (previously declared as %s)", kind, path, prev)
		}
	}
	key := TableKey(index, path)
	sc.bindings[path] = key
	sc.kinds[path] = kind
	s.table[key] = v
	return nil
}

// Assign updates the nearest existing binding of path. Unbound names are
// created in the top scope.
func (s *Scopes) Assign(path string, v Value) error {
	index, key, ok := s.Lookup(path)
	if !ok {
		return s.Declare(0, path, DeclVar, v)
	}
	if kind, _ := s.stack[index].KindOf(path); kind == DeclConst {
		return fmt.Errorf("assignment to constant %q", path)
	}
	s.table[key] = v
	return nil
}

// Get reads a table entry.
func (s *Scopes) Get(key string) (Value, bool) {
	v, ok := s.table[key]
	return v, ok
}

// Set overwrites an existing table entry. It reports false if the key is
// not live.
func (s *Scopes) Set(key string, v Value) bool {
	if _, ok := s.table[key]; !ok {
		return false
	}
	s.table[key] = v
	return true
}

// Resolve looks path up and returns its value.
func (s *Scopes) Resolve(path string) (Value, bool) {
	_, key, ok := s.Lookup(path)
	if !ok {
		return nil, false
	}
	return s.Get(key)
}

// TableKeys returns every live object-table key.
func (s *Scopes) TableKeys() []string {
	keys := make([]string, 0, len(s.table))
	for k := range s.table {
		keys = append(keys, k)
	}
	return keys
}
