package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/curly/vm"
)

// ---------------------------------------------------------------------------
// Codegen: lower the syntax tree to a linear program
// ---------------------------------------------------------------------------

// Compiler appends the lowering of a node list to one program.
type Compiler struct {
	builder *vm.Builder
	errors  []string

	// Scopes opened by SetupLoop since the enclosing function was entered.
	scopes int
	loops  []*loop
}

// loop tracks the jump targets of an enclosing for or while statement.
type loop struct {
	breakLabel    *vm.Label
	continueLabel *vm.Label
	scopes        int // open scopes at the loop's own level
}

// NewCompiler creates a compiler whose program starts at address base.
func NewCompiler(base int) *Compiler {
	return &Compiler{builder: vm.NewBuilderAt(base)}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

func (c *Compiler) errorf(node Node, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if node != nil {
		msg = fmt.Sprintf("line %d: %s", node.Span().Start.Line, msg)
	}
	c.errors = append(c.errors, msg)
}

// Program returns the program built so far.
func (c *Compiler) Program() *vm.Program {
	return c.builder.Program()
}

// CompileProgram lowers top-level nodes. The value of a trailing expression
// is left on the stack as the program result.
func (c *Compiler) CompileProgram(nodes []Node) {
	c.compileStatements(nodes, true)
}

// compileStatements lowers a node list. Bare expressions are popped,
// except the last one of a program.
func (c *Compiler) compileStatements(nodes []Node, keepLast bool) {
	for i, n := range nodes {
		c.builder.SetLine(n.Span().Start.Line)
		if x, ok := n.(Expr); ok {
			c.compileExpr(x)
			if !keepLast || i < len(nodes)-1 {
				c.builder.Emit(vm.OpPopTop)
			}
			continue
		}
		c.compileStmt(n)
	}
}

func (c *Compiler) compileStmt(n Node) {
	switch s := n.(type) {
	case *Assign:
		c.compileAssign(s)
	case *FuncDecl:
		c.compileFunction(vm.OpDeclareFunc, s.Name, s.Params, s.Body, true)
	case *FuncAssign:
		addr := c.compileFunction(vm.OpMakeFunc, s.Func.Name, s.Func.Params, s.Func.Body, s.Decl != DeclConst)
		if s.Func.Named {
			c.builder.BindFuncName(addr)
		}
		c.emitStore(s.Decl, s.Name)
	case *IfStmt:
		c.compileIf(s)
	case *ForStmt:
		c.compileFor(s)
	case *WhileStmt:
		c.compileWhile(s)
	case *BlockStmt:
		c.compileScoped(s.Body)
	case *ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.builder.Emit(vm.OpLoadUndefined)
		}
		c.builder.Emit(vm.OpReturn)
	case *BreakStmt:
		c.compileJumpOut(s, true)
	case *ContinueStmt:
		c.compileJumpOut(s, false)
	default:
		c.errorf(n, "cannot compile %T", n)
	}
}

// compileScoped lowers a body inside its own block scope.
func (c *Compiler) compileScoped(body []Node) {
	c.builder.Emit(vm.OpSetupLoop)
	c.scopes++
	c.compileStatements(body, false)
	c.scopes--
	c.builder.Emit(vm.OpPopBlock)
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

var storeOps = map[DeclKind]vm.Opcode{
	DeclNone:  vm.OpAssign,
	DeclLet:   vm.OpStore,
	DeclConst: vm.OpStoreConst,
	DeclVar:   vm.OpStoreVar,
}

func (c *Compiler) emitStore(decl DeclKind, name string) {
	c.builder.EmitName(storeOps[decl], name)
}

var compoundOps = map[TokenType]vm.Opcode{
	TokenPlusAssign:  vm.OpAdd,
	TokenMinusAssign: vm.OpSub,
	TokenStarAssign:  vm.OpMul,
	TokenSlashAssign: vm.OpDiv,
	TokenShlAssign:   vm.OpShiftLeft,
	TokenShrAssign:   vm.OpShiftRight,
	TokenUShrAssign:  vm.OpUShiftRight,
}

func (c *Compiler) compileAssign(s *Assign) {
	compound, isCompound := compoundOps[s.Op]
	if !isCompound && s.Op != TokenAssign {
		c.errorf(s, "unknown assignment operator %s", s.Op)
		return
	}

	switch t := s.Target.(type) {
	case *LiteralKey:
		if isCompound {
			c.builder.EmitName(vm.OpLoad, t.Name)
			c.compileExpr(s.Value)
			c.builder.Emit(compound)
			c.emitStore(s.Decl, t.Name)
			return
		}
		if s.Value == nil {
			c.builder.Emit(vm.OpLoadUndefined)
		} else {
			c.compileExpr(s.Value)
		}
		c.emitStore(s.Decl, t.Name)

	case *MemberExpr:
		c.compileExpr(t.Object)
		if isCompound {
			c.builder.Emit(vm.OpDup)
			c.builder.EmitName(vm.OpLoadProp, t.Property)
			c.compileExpr(s.Value)
			c.builder.Emit(compound)
		} else {
			c.compileExpr(s.Value)
		}
		c.builder.EmitName(vm.OpStoreProp, t.Property)

	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Index)
		if isCompound {
			c.builder.Emit(vm.OpDup2)
			c.builder.Emit(vm.OpLoadMember)
			c.compileExpr(s.Value)
			c.builder.Emit(compound)
		} else {
			c.compileExpr(s.Value)
		}
		c.builder.Emit(vm.OpStoreMember)

	default:
		c.errorf(s, "invalid assignment target %T", s.Target)
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// compileIf lowers
//
//	test; PopJumpIfFalse L1; cons; JumpAbsolute L2; L1: alt; L2:
//
// Without an alternate both placeholders end up at the same address.
func (c *Compiler) compileIf(s *IfStmt) {
	c.compileExpr(s.Test)
	toElse := c.builder.EmitJump(vm.OpPopJumpIfFalse)
	c.compileScoped(s.Consequent)
	toEnd := c.builder.EmitJump(vm.OpJumpAbsolute)
	c.builder.PatchJump(toElse)
	if s.Alternate != nil {
		c.builder.SetLine(s.Alternate.Span().Start.Line)
		c.compileStmt(s.Alternate)
	}
	c.builder.PatchJump(toEnd)
}

// compileFor lowers
//
//	SetupLoop; init; T: test; PopJumpIfFalse A;
//	SetupLoop; body; PopBlock; C: update; JumpAbsolute T; A: PopBlock
//
// The body runs in a fresh scope per iteration.
func (c *Compiler) compileFor(s *ForStmt) {
	c.builder.Emit(vm.OpSetupLoop)
	c.scopes++

	if s.Init != nil {
		c.compileSimple(s.Init)
	}

	lp := &loop{
		breakLabel:    c.builder.NewLabel(),
		continueLabel: c.builder.NewLabel(),
		scopes:        c.scopes,
	}
	test := c.builder.NewLabel()
	c.builder.Mark(test)
	if s.Test != nil {
		c.compileExpr(s.Test)
		c.builder.EmitJumpTo(vm.OpPopJumpIfFalse, lp.breakLabel)
	}

	c.loops = append(c.loops, lp)
	c.compileScoped(s.Body)
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.Mark(lp.continueLabel)
	if s.Update != nil {
		c.compileSimple(s.Update)
	}
	c.builder.EmitJumpTo(vm.OpJumpAbsolute, test)

	c.builder.Mark(lp.breakLabel)
	c.scopes--
	c.builder.Emit(vm.OpPopBlock)
}

// compileWhile lowers
//
//	T: test; PopJumpIfFalse A; SetupLoop; body; PopBlock; JumpAbsolute T; A:
func (c *Compiler) compileWhile(s *WhileStmt) {
	lp := &loop{
		breakLabel:    c.builder.NewLabel(),
		continueLabel: c.builder.NewLabel(),
		scopes:        c.scopes,
	}
	c.builder.Mark(lp.continueLabel)
	c.compileExpr(s.Test)
	c.builder.EmitJumpTo(vm.OpPopJumpIfFalse, lp.breakLabel)

	c.loops = append(c.loops, lp)
	c.compileScoped(s.Body)
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.EmitJumpTo(vm.OpJumpAbsolute, lp.continueLabel)
	c.builder.Mark(lp.breakLabel)
}

// compileSimple lowers a for-loop header part.
func (c *Compiler) compileSimple(n Node) {
	if x, ok := n.(Expr); ok {
		c.compileExpr(x)
		c.builder.Emit(vm.OpPopTop)
		return
	}
	c.compileStmt(n)
}

// compileJumpOut closes the scopes opened inside the innermost loop and
// jumps to its exit or continue point.
func (c *Compiler) compileJumpOut(n Node, isBreak bool) {
	if len(c.loops) == 0 {
		c.errorf(n, "break or continue outside a loop")
		return
	}
	lp := c.loops[len(c.loops)-1]
	for i := c.scopes; i > lp.scopes; i-- {
		c.builder.Emit(vm.OpPopBlock)
	}
	if isBreak {
		c.builder.EmitJumpTo(vm.OpJumpAbsolute, lp.breakLabel)
	} else {
		c.builder.EmitJumpTo(vm.OpJumpAbsolute, lp.continueLabel)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// compileFunction emits DeclareFunc or MakeFunc followed by the body, a
// PopBlock for the call scope and the terminating Return. The function's
// End is that Return's address. It returns the address of the function
// instruction.
func (c *Compiler) compileFunction(op vm.Opcode, name string, params []string, body []Node, mutable bool) int {
	addr := c.builder.EmitFunc(op, name, params, mutable)

	savedScopes, savedLoops := c.scopes, c.loops
	c.scopes, c.loops = 0, nil
	c.compileStatements(body, false)
	c.scopes, c.loops = savedScopes, savedLoops

	c.builder.Emit(vm.OpPopBlock)
	end := c.builder.Emit(vm.OpReturn)
	c.builder.PatchFunc(addr, end)
	return addr
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[TokenType]vm.Opcode{
	TokenPlus:        vm.OpAdd,
	TokenMinus:       vm.OpSub,
	TokenStar:        vm.OpMul,
	TokenSlash:       vm.OpDiv,
	TokenPercent:     vm.OpMod,
	TokenLess:        vm.OpLess,
	TokenGreater:     vm.OpGreater,
	TokenLessEq:      vm.OpLessEq,
	TokenGreaterEq:   vm.OpGreaterEq,
	TokenEq:          vm.OpEqEq,
	TokenNotEq:       vm.OpNotEq,
	TokenStrictEq:    vm.OpEqEqEq,
	TokenStrictNotEq: vm.OpNotEqEq,
	TokenAndAnd:      vm.OpAnd,
	TokenOrOr:        vm.OpOr,
	TokenAmp:         vm.OpBitAnd,
	TokenPipe:        vm.OpBitOr,
	TokenCaret:       vm.OpBitXor,
	TokenShl:         vm.OpShiftLeft,
	TokenShr:         vm.OpShiftRight,
	TokenUShr:        vm.OpUShiftRight,
}

var unaryOps = map[TokenType]vm.Opcode{
	TokenBang:  vm.OpNot,
	TokenMinus: vm.OpNegate,
	TokenPlus:  vm.OpPlus,
}

func (c *Compiler) compileExpr(x Expr) {
	switch e := x.(type) {
	case *NumberLit:
		c.builder.EmitNum(vm.OpLoadNumConst, e.Value)
	case *StringLit:
		c.builder.EmitName(vm.OpLoadStrConst, e.Value)
	case *BoolLit:
		if e.Value {
			c.builder.Emit(vm.OpLoadTrue)
		} else {
			c.builder.Emit(vm.OpLoadFalse)
		}
	case *NullLit:
		c.builder.Emit(vm.OpLoadNull)
	case *Ident:
		c.builder.EmitName(vm.OpLoad, e.Name)
	case *LiteralKey:
		c.builder.EmitName(vm.OpLoadStrConst, e.Name)
	case *SubExpr:
		c.compileExpr(e.Inner)
	case *BinaryExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			c.errorf(e, "unknown binary operator %s", e.Op)
			return
		}
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.builder.Emit(op)
	case *UnaryExpr:
		op, ok := unaryOps[e.Op]
		if !ok {
			c.errorf(e, "unknown unary operator %s", e.Op)
			return
		}
		c.compileExpr(e.Operand)
		c.builder.Emit(op)
	case *UpdateExpr:
		c.compileUpdate(e)
	case *MemberExpr:
		c.compileExpr(e.Object)
		c.builder.EmitName(vm.OpLoadProp, e.Property)
	case *IndexExpr:
		c.compileExpr(e.Object)
		c.compileExpr(e.Index)
		c.builder.Emit(vm.OpLoadMember)
	case *CallExpr:
		if len(e.Args) > math.MaxUint8 {
			c.errorf(e, "too many arguments (%d)", len(e.Args))
			return
		}
		c.compileExpr(e.Callee)
		for _, a := range e.Args {
			c.compileExpr(a)
		}
		c.builder.EmitArg(vm.OpCall, len(e.Args))
	case *ArrayLit:
		for _, el := range e.Elements {
			c.compileExpr(el)
		}
		c.builder.EmitArg(vm.OpBuildArray, len(e.Elements))
	case *ObjectLit:
		c.builder.Emit(vm.OpCreateObj)
		for _, entry := range e.Entries {
			c.builder.Emit(vm.OpDup)
			c.compileExpr(entry.Value)
			c.builder.EmitName(vm.OpStoreProp, entry.Key)
		}
	case *FuncExpr:
		addr := c.compileFunction(vm.OpMakeFunc, e.Name, e.Params, e.Body, true)
		if e.Named {
			c.builder.BindFuncName(addr)
		}
	default:
		c.errorf(x, "cannot compile expression %T", x)
	}
}

// compileUpdate lowers x++ as Load x; InplaceAdd, which leaves the old
// value. The prefix form adds one more to yield the new value.
func (c *Compiler) compileUpdate(e *UpdateExpr) {
	inplace, arith := vm.OpInplaceAdd, vm.OpAdd
	if e.Op == TokenDecrement {
		inplace, arith = vm.OpInplaceSub, vm.OpSub
	}
	c.builder.EmitName(vm.OpLoad, e.Target.Name)
	c.builder.Emit(inplace)
	if e.Prefix {
		c.builder.EmitNum(vm.OpLoadNumConst, 1)
		c.builder.Emit(arith)
	}
}
