package compiler

// ---------------------------------------------------------------------------
// AST: syntax tree for curly programs
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes. A node list (a
// program or a body) mixes statements and bare expressions.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// NumberLit is a numeric literal.
type NumberLit struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLit) Span() Span { return n.SpanVal }
func (n *NumberLit) node()      {}
func (n *NumberLit) expr()      {}

// StringLit is a string literal.
type StringLit struct {
	SpanVal Span
	Value   string
}

func (n *StringLit) Span() Span { return n.SpanVal }
func (n *StringLit) node()      {}
func (n *StringLit) expr()      {}

// BoolLit is true or false.
type BoolLit struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLit) Span() Span { return n.SpanVal }
func (n *BoolLit) node()      {}
func (n *BoolLit) expr()      {}

// NullLit is null.
type NullLit struct {
	SpanVal Span
}

func (n *NullLit) Span() Span { return n.SpanVal }
func (n *NullLit) node()      {}
func (n *NullLit) expr()      {}

// Ident is a reference to a binding.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// LiteralKey is a name used as an assignment target.
type LiteralKey struct {
	SpanVal Span
	Name    string
}

func (n *LiteralKey) Span() Span { return n.SpanVal }
func (n *LiteralKey) node()      {}
func (n *LiteralKey) expr()      {}

// BinaryExpr is left Op right.
type BinaryExpr struct {
	SpanVal Span
	Left    Expr
	Op      TokenType
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// SubExpr wraps a parenthesized expression. It is never re-associated
// with operators outside it.
type SubExpr struct {
	SpanVal Span
	Inner   Expr
}

func (n *SubExpr) Span() Span { return n.SpanVal }
func (n *SubExpr) node()      {}
func (n *SubExpr) expr()      {}

// MemberExpr is Object.Property.
type MemberExpr struct {
	SpanVal  Span
	Object   Expr
	Property string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// Root returns the leftmost object of a member chain.
func (n *MemberExpr) Root() Expr {
	var e Expr = n
	for {
		switch m := e.(type) {
		case *MemberExpr:
			e = m.Object
		case *IndexExpr:
			e = m.Object
		default:
			return e
		}
	}
}

// IndexExpr is Object[Index].
type IndexExpr struct {
	SpanVal Span
	Object  Expr
	Index   Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr is Callee(Args...).
type CallExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// ArrayLit is [a, b, ...]. Props always holds "length".
type ArrayLit struct {
	SpanVal  Span
	Elements []Expr
	Props    map[string]Expr
}

func (n *ArrayLit) Span() Span { return n.SpanVal }
func (n *ArrayLit) node()      {}
func (n *ArrayLit) expr()      {}

// ObjectEntry is one key: value pair of an object literal.
type ObjectEntry struct {
	Key   string
	Value Expr
}

// ObjectLit is { key: value, ... } with entries in source order.
type ObjectLit struct {
	SpanVal Span
	Entries []ObjectEntry
	Mutable bool
}

func (n *ObjectLit) Span() Span { return n.SpanVal }
func (n *ObjectLit) node()      {}
func (n *ObjectLit) expr()      {}

// UpdateExpr is ++ or -- applied to an identifier.
type UpdateExpr struct {
	SpanVal Span
	Op      TokenType // TokenIncrement or TokenDecrement
	Prefix  bool
	Target  *Ident
}

func (n *UpdateExpr) Span() Span { return n.SpanVal }
func (n *UpdateExpr) node()      {}
func (n *UpdateExpr) expr()      {}

// UnaryExpr is !x, -x or +x.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// FuncExpr is a function or arrow function used as a value.
type FuncExpr struct {
	SpanVal Span
	Name    string
	Params  []string
	Body    []Node
	Arrow   bool
	// Named is set when the name was written in the source rather than
	// taken from an assignment target.
	Named bool
}

func (n *FuncExpr) Span() Span { return n.SpanVal }
func (n *FuncExpr) node()      {}
func (n *FuncExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// DeclKind is the declaration keyword of an assignment.
type DeclKind int

const (
	DeclNone DeclKind = iota // plain assignment
	DeclLet
	DeclConst
	DeclVar
)

func (d DeclKind) String() string {
	switch d {
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	case DeclVar:
		return "var"
	}
	return "none"
}

// Assign is [let|const|var] Target Op Value. Target is a *LiteralKey, a
// *MemberExpr or an *IndexExpr; Op is TokenAssign or a compound operator.
type Assign struct {
	SpanVal Span
	Decl    DeclKind
	Target  Expr
	Op      TokenType
	Value   Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) stmt()      {}

// FuncDecl is function Name(Params) { Body }.
type FuncDecl struct {
	SpanVal Span
	Name    string
	Params  []string
	Body    []Node
}

func (n *FuncDecl) Span() Span { return n.SpanVal }
func (n *FuncDecl) node()      {}
func (n *FuncDecl) stmt()      {}

// FuncAssign binds a function or arrow expression to a declared name.
type FuncAssign struct {
	SpanVal Span
	Decl    DeclKind
	Name    string
	Func    *FuncExpr
}

func (n *FuncAssign) Span() Span { return n.SpanVal }
func (n *FuncAssign) node()      {}
func (n *FuncAssign) stmt()      {}

// ForStmt is for (Init; Test; Update) { Body }. Any header part may be nil.
type ForStmt struct {
	SpanVal Span
	Init    Node
	Test    Expr
	Update  Node
	Body    []Node
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// WhileStmt is while (Test) { Body }.
type WhileStmt struct {
	SpanVal Span
	Test    Expr
	Body    []Node
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// IfStmt is if (Test) { Consequent } else Alternate. Alternate is nil, an
// *IfStmt for else-if chains, or a *BlockStmt.
type IfStmt struct {
	SpanVal    Span
	Test       Expr
	Consequent []Node
	Alternate  Node
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// BlockStmt is a braced statement list with its own scope.
type BlockStmt struct {
	SpanVal Span
	Body    []Node
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// ReturnStmt is return [Value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// BreakStmt is break.
type BreakStmt struct {
	SpanVal Span
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// ContinueStmt is continue.
type ContinueStmt struct {
	SpanVal Span
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}
