package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: declarations and warnings for editor tooling
// ---------------------------------------------------------------------------

// Declaration is a name bound somewhere in a document.
type Declaration struct {
	Name     string
	Kind     string // let, const, var, function or global
	Span     Span
	Params   []string
	Function bool
}

// Warning is a non-fatal finding. Programs with warnings still compile.
type Warning struct {
	Span Span
	Msg  string
}

// Analysis is the result of SemanticAnalyzer.Analyze.
type Analysis struct {
	Declarations []Declaration
	Warnings     []Warning
}

// Lookup returns the first declaration of name in source order.
func (a *Analysis) Lookup(name string) (Declaration, bool) {
	for _, d := range a.Declarations {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}

// Names returns every declared name once, sorted.
func (a *Analysis) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range a.Declarations {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// SemanticAnalyzer walks a parsed program. Free identifiers resolve at
// call time, so a reference only draws a warning when no declaration of
// that name exists anywhere in the document.
type SemanticAnalyzer struct {
	knownGlobals map[string]bool

	decls    []Declaration
	declared map[string]bool
	refs     []*Ident
	warnings []Warning
}

// NewSemanticAnalyzer creates an analyzer that knows the built-in roots.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{knownGlobals: defaultKnownGlobals()}
}

// defaultKnownGlobals returns the names bound before any program runs.
func defaultKnownGlobals() map[string]bool {
	return map[string]bool{
		"console":   true,
		"Object":    true,
		"Function":  true,
		"Array":     true,
		"NaN":       true,
		"Infinity":  true,
		"undefined": true,
		"this":      true,
	}
}

// AddKnownGlobal adds a global to the known globals set.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.knownGlobals[name] = true
}

// Analyze collects declarations and warnings for nodes.
func (s *SemanticAnalyzer) Analyze(nodes []Node) *Analysis {
	s.decls = nil
	s.declared = make(map[string]bool)
	s.refs = nil
	s.warnings = nil

	s.visitBody(nodes)

	for _, id := range s.refs {
		if !s.declared[id.Name] && !s.knownGlobals[id.Name] {
			s.warn(id.Span(), "%q is not declared in this document", id.Name)
		}
	}
	sort.SliceStable(s.warnings, func(i, j int) bool {
		return s.warnings[i].Span.Start.Offset < s.warnings[j].Span.Start.Offset
	})
	return &Analysis{Declarations: s.decls, Warnings: s.warnings}
}

// Analyze parses source and analyzes it.
func Analyze(source string) (*Analysis, error) {
	nodes, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return NewSemanticAnalyzer().Analyze(nodes), nil
}

func (s *SemanticAnalyzer) warn(span Span, format string, args ...any) {
	s.warnings = append(s.warnings, Warning{Span: span, Msg: fmt.Sprintf(format, args...)})
}

func (s *SemanticAnalyzer) declare(name, kind string, span Span, params []string) {
	s.decls = append(s.decls, Declaration{Name: name, Kind: kind, Span: span, Params: params})
	s.declared[name] = true
}

func (s *SemanticAnalyzer) declareFunc(name, kind string, span Span, params []string) {
	s.decls = append(s.decls, Declaration{Name: name, Kind: kind, Span: span, Params: params, Function: true})
	s.declared[name] = true
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) visitBody(nodes []Node) {
	terminated := false
	for _, n := range nodes {
		if terminated {
			s.warn(n.Span(), "unreachable code")
			terminated = false
		}
		s.visitNode(n)
		switch n.(type) {
		case *ReturnStmt, *BreakStmt, *ContinueStmt:
			terminated = true
		}
	}
}

func (s *SemanticAnalyzer) visitNode(n Node) {
	switch n := n.(type) {
	case *Assign:
		if key, ok := n.Target.(*LiteralKey); ok {
			kind := declKindName(n.Decl)
			// Compound assignment reads the target first.
			if n.Op != TokenAssign && !s.declared[key.Name] {
				s.refs = append(s.refs, &Ident{SpanVal: key.SpanVal, Name: key.Name})
			}
			if n.Decl != DeclNone || !s.declared[key.Name] {
				s.declare(key.Name, kind, key.Span(), nil)
			}
		} else {
			s.visitExpr(n.Target)
		}
		if n.Value != nil {
			s.visitExpr(n.Value)
		}
	case *FuncDecl:
		s.declareFunc(n.Name, "function", n.Span(), n.Params)
		s.visitFunction(n.Params, n.Body)
	case *FuncAssign:
		s.declareFunc(n.Name, declKindName(n.Decl), n.Span(), n.Func.Params)
		if n.Func.Named {
			s.declared[n.Func.Name] = true
		}
		s.visitFunction(n.Func.Params, n.Func.Body)
	case *ForStmt:
		if n.Init != nil {
			s.visitNode(n.Init)
		}
		if n.Test != nil {
			s.visitExpr(n.Test)
		}
		if n.Update != nil {
			s.visitNode(n.Update)
		}
		s.visitBody(n.Body)
	case *WhileStmt:
		s.visitExpr(n.Test)
		s.visitBody(n.Body)
	case *IfStmt:
		s.visitExpr(n.Test)
		s.visitBody(n.Consequent)
		if n.Alternate != nil {
			s.visitNode(n.Alternate)
		}
	case *BlockStmt:
		s.visitBody(n.Body)
	case *ReturnStmt:
		if n.Value != nil {
			s.visitExpr(n.Value)
		}
	case *BreakStmt, *ContinueStmt:
	case Expr:
		s.visitExpr(n)
	}
}

// declKindName calls a keyword-less binding "global": it lands in the
// outermost scope.
func declKindName(d DeclKind) string {
	if d == DeclNone {
		return "global"
	}
	return d.String()
}

func (s *SemanticAnalyzer) visitFunction(params []string, body []Node) {
	for _, p := range params {
		s.declared[p] = true
	}
	s.visitBody(body)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) visitExpr(e Expr) {
	switch e := e.(type) {
	case *Ident:
		s.refs = append(s.refs, e)
	case *BinaryExpr:
		s.visitExpr(e.Left)
		s.visitExpr(e.Right)
	case *SubExpr:
		s.visitExpr(e.Inner)
	case *MemberExpr:
		s.visitExpr(e.Object)
	case *IndexExpr:
		s.visitExpr(e.Object)
		s.visitExpr(e.Index)
	case *CallExpr:
		s.visitExpr(e.Callee)
		for _, a := range e.Args {
			s.visitExpr(a)
		}
	case *ArrayLit:
		for _, el := range e.Elements {
			s.visitExpr(el)
		}
	case *ObjectLit:
		for _, entry := range e.Entries {
			s.visitExpr(entry.Value)
		}
	case *UpdateExpr:
		s.visitExpr(e.Target)
	case *UnaryExpr:
		s.visitExpr(e.Operand)
	case *FuncExpr:
		if e.Name != "" {
			s.declared[e.Name] = true
		}
		s.visitFunction(e.Params, e.Body)
	}
}

// Keywords returns the reserved words, sorted.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
