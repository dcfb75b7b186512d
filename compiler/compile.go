package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/curly/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("curly.compiler")

// Compile tokenizes, parses and lowers source into a program starting at
// address 0.
func Compile(source string) (*vm.Program, error) {
	return CompileAt(source, 0)
}

// CompileAt compiles source into a program whose first instruction lives at
// base, ready to be appended to a VM that has already run base instructions.
func CompileAt(source string, base int) (*vm.Program, error) {
	nodes, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return CompileNodes(nodes, base)
}

// CompileNodes lowers an already parsed node list.
func CompileNodes(nodes []Node, base int) (*vm.Program, error) {
	c := NewCompiler(base)
	c.CompileProgram(nodes)
	if errs := c.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("compile errors: %s", strings.Join(errs, "; "))
	}
	prog := c.Program()
	log.Debugf("compiled %d nodes into %d instructions at base %d", len(nodes), prog.Len(), base)
	return prog, nil
}

// Check reports the first lexical or syntax error in source, or nil.
func Check(source string) error {
	_, err := Parse(source)
	return err
}
