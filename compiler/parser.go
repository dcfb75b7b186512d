package compiler

import (
	"fmt"

	"github.com/chazu/curly/vm"
)

// ---------------------------------------------------------------------------
// Parser: builds the syntax tree from a token list
// ---------------------------------------------------------------------------

// Parser turns a complete token list into a list of top-level nodes. The
// first error is fatal: the parser bails out and Parse returns it.
type Parser struct {
	tokens []Token
	pos    int
	last   Position // end of the most recently consumed token

	depth     int // open ( [ and object-literal braces; EOLs are skipped inside
	funcDepth int
	loopDepth int

	err *SyntaxError
}

// bailout is the panic value used to unwind on the first error.
type bailout struct{}

// NewParser creates a parser over tokens. A missing trailing EOF token is
// supplied.
func NewParser(tokens []Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
		var pos Position
		if len(tokens) > 0 {
			pos = tokEnd(tokens[len(tokens)-1])
		}
		tokens = append(tokens[:len(tokens):len(tokens)], Token{Type: TokenEOF, Pos: pos})
	}
	return &Parser{tokens: tokens}
}

// Parse tokenizes and parses source.
func Parse(source string) ([]Node, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseProgram()
}

// ParseProgram parses every top-level node.
func (p *Parser) ParseProgram() (nodes []Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			nodes, err = nil, p.err
		}
	}()

	nodes = p.parseStatementList(TokenEOF)
	if !p.curIs(TokenEOF) {
		p.fail(p.cur(), "unexpected %s", describe(p.cur()))
	}
	return nodes, nil
}

// ---------------------------------------------------------------------------
// Token navigation
// ---------------------------------------------------------------------------

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) curIs(t TokenType) bool {
	return p.tokens[p.pos].Type == t
}

// peekAt returns the token n positions ahead without skipping EOLs.
func (p *Parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

// next advances one token. Inside brackets end-of-line tokens are skipped.
func (p *Parser) next() {
	p.last = tokEnd(p.cur())
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.skipInsignificant()
}

func (p *Parser) skipInsignificant() {
	if p.depth > 0 {
		p.skipEOL()
	}
}

func (p *Parser) skipEOL() {
	for p.curIs(TokenEOL) {
		p.pos++
	}
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) Token {
	tok := p.cur()
	if tok.Type != t {
		p.fail(tok, "expected %s, got %s", t, describe(tok))
	}
	p.next()
	return tok
}

// open consumes an opening bracket and makes EOLs insignificant.
func (p *Parser) open(t TokenType) Token {
	p.depth++
	return p.expect(t)
}

// close consumes the matching closing bracket.
func (p *Parser) close(t TokenType, opener Token) {
	p.depth--
	if !p.curIs(t) {
		if p.curIs(TokenEOF) {
			p.fail(opener, "unmatched %s", opener.Literal)
		}
		p.fail(p.cur(), "expected %s, got %s", t, describe(p.cur()))
	}
	p.next()
}

// fail records a syntax error at tok and unwinds.
func (p *Parser) fail(tok Token, format string, args ...interface{}) {
	if p.err == nil {
		p.err = &SyntaxError{Token: tok, Msg: fmt.Sprintf(format, args...)}
	}
	panic(bailout{})
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.last}
}

// tokEnd returns the position just past tok.
func tokEnd(tok Token) Position {
	n := len(tok.Literal)
	if tok.Type == TokenString {
		n += 2
	}
	end := tok.Pos
	end.Offset += n
	end.Column += n
	return end
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseStatementList parses nodes until end (a closing brace or EOF).
func (p *Parser) parseStatementList(end TokenType) []Node {
	var nodes []Node
	for {
		for p.curIs(TokenEOL) || p.curIs(TokenSemicolon) {
			p.next()
		}
		if p.curIs(end) || p.curIs(TokenEOF) {
			return nodes
		}
		nodes = append(nodes, p.parseStatement())
	}
}

// parseStatement parses one statement or expression, including its
// terminator.
func (p *Parser) parseStatement() Node {
	switch p.cur().Type {
	case TokenIf:
		return p.parseIf()
	case TokenFor:
		return p.parseFor()
	case TokenWhile:
		return p.parseWhile()
	case TokenLBrace:
		return p.parseBlock()
	case TokenFunction:
		if p.peekAt(1).Type == TokenIdentifier {
			return p.parseFuncDecl()
		}
	}
	n := p.parseSimple()
	p.endStatement()
	return n
}

// endStatement accepts ; or a position where a statement may end.
func (p *Parser) endStatement() {
	switch p.cur().Type {
	case TokenSemicolon:
		p.next()
	case TokenEOL, TokenRBrace, TokenEOF:
	default:
		p.fail(p.cur(), "unexpected %s", describe(p.cur()))
	}
}

// parseSimple parses a statement that fits in a for-loop header or a
// brace-less body: declarations, return/break/continue, assignments and
// expressions.
func (p *Parser) parseSimple() Node {
	tok := p.cur()
	switch tok.Type {
	case TokenLet, TokenConst, TokenVar:
		return p.parseDecl()
	case TokenReturn:
		return p.parseReturn()
	case TokenBreak, TokenContinue:
		if p.loopDepth == 0 {
			p.fail(tok, "%s outside a loop", tok.Literal)
		}
		p.next()
		if tok.Type == TokenBreak {
			return &BreakStmt{SpanVal: p.span(tok.Pos)}
		}
		return &ContinueStmt{SpanVal: p.span(tok.Pos)}
	}

	x := p.parseExpr()
	if isAssignOp(p.cur().Type) {
		return p.parseAssign(DeclNone, x, tok.Pos)
	}
	return x
}

func isAssignOp(t TokenType) bool {
	switch t {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign,
		TokenShlAssign, TokenShrAssign, TokenUShrAssign:
		return true
	}
	return false
}

// parseAssign parses the operator and right-hand side of an assignment to
// target.
func (p *Parser) parseAssign(decl DeclKind, target Expr, start Position) Node {
	opTok := p.cur()
	switch t := target.(type) {
	case *Ident:
		target = &LiteralKey{SpanVal: t.SpanVal, Name: t.Name}
	case *LiteralKey, *MemberExpr, *IndexExpr:
	default:
		p.fail(opTok, "invalid assignment target")
	}
	p.next()
	p.skipEOL()
	value := p.parseExpr()

	if key, ok := target.(*LiteralKey); ok && opTok.Type == TokenAssign {
		if fn, isFunc := value.(*FuncExpr); isFunc {
			if fn.Name == "" {
				fn.Name = key.Name
			}
			return &FuncAssign{SpanVal: p.span(start), Decl: decl, Name: key.Name, Func: fn}
		}
	}
	return &Assign{SpanVal: p.span(start), Decl: decl, Target: target, Op: opTok.Type, Value: value}
}

// parseDecl parses let/const/var NAME [= value].
func (p *Parser) parseDecl() Node {
	kw := p.cur()
	decl := map[TokenType]DeclKind{TokenLet: DeclLet, TokenConst: DeclConst, TokenVar: DeclVar}[kw.Type]
	p.next()
	nameTok := p.expect(TokenIdentifier)
	key := &LiteralKey{SpanVal: Span{Start: nameTok.Pos, End: tokEnd(nameTok)}, Name: nameTok.Literal}

	if !p.curIs(TokenAssign) {
		if decl == DeclConst {
			p.fail(p.cur(), "missing initializer in const declaration")
		}
		return &Assign{SpanVal: p.span(kw.Pos), Decl: decl, Target: key, Op: TokenAssign}
	}
	return p.parseAssign(decl, key, kw.Pos)
}

func (p *Parser) parseReturn() Node {
	tok := p.expect(TokenReturn)
	if p.funcDepth == 0 {
		p.fail(tok, "return outside a function")
	}
	switch p.cur().Type {
	case TokenSemicolon, TokenEOL, TokenRBrace, TokenEOF:
		return &ReturnStmt{SpanVal: p.span(tok.Pos)}
	}
	value := p.parseExpr()
	return &ReturnStmt{SpanVal: p.span(tok.Pos), Value: value}
}

// parseBody parses a braced block or a single brace-less statement.
func (p *Parser) parseBody() []Node {
	p.skipEOL()
	if p.curIs(TokenLBrace) {
		return p.parseBraced()
	}
	return []Node{p.parseStatement()}
}

// parseBraced parses { statements } with EOLs significant inside.
func (p *Parser) parseBraced() []Node {
	saved := p.depth
	p.depth = 0
	opener := p.expect(TokenLBrace)
	body := p.parseStatementList(TokenRBrace)
	if !p.curIs(TokenRBrace) {
		p.fail(opener, "unmatched {")
	}
	p.depth = saved
	p.next()
	return body
}

func (p *Parser) parseBlock() Node {
	start := p.cur().Pos
	body := p.parseBraced()
	return &BlockStmt{SpanVal: p.span(start), Body: body}
}

// parseCondition parses ( expr ).
func (p *Parser) parseCondition() Expr {
	opener := p.open(TokenLParen)
	test := p.parseExpr()
	p.close(TokenRParen, opener)
	return test
}

func (p *Parser) parseIf() Node {
	start := p.expect(TokenIf).Pos
	test := p.parseCondition()
	cons := p.parseBody()

	// else may sit on a following line.
	save := p.pos
	p.skipEOL()
	if !p.curIs(TokenElse) {
		p.pos = save
		return &IfStmt{SpanVal: p.span(start), Test: test, Consequent: cons}
	}
	p.next()
	p.skipEOL()

	var alt Node
	if p.curIs(TokenIf) {
		alt = p.parseIf()
	} else {
		altStart := p.cur().Pos
		body := p.parseBody()
		alt = &BlockStmt{SpanVal: p.span(altStart), Body: body}
	}
	return &IfStmt{SpanVal: p.span(start), Test: test, Consequent: cons, Alternate: alt}
}

func (p *Parser) parseFor() Node {
	start := p.expect(TokenFor).Pos
	opener := p.open(TokenLParen)

	var init Node
	if !p.curIs(TokenSemicolon) {
		init = p.parseSimple()
		if _, ok := init.(*ReturnStmt); ok {
			p.fail(opener, "unexpected return in for-loop header")
		}
	}
	p.expect(TokenSemicolon)

	var test Expr
	if !p.curIs(TokenSemicolon) {
		test = p.parseExpr()
	}
	p.expect(TokenSemicolon)

	var update Node
	if !p.curIs(TokenRParen) {
		update = p.parseSimple()
	}
	p.close(TokenRParen, opener)

	p.loopDepth++
	body := p.parseBody()
	p.loopDepth--
	return &ForStmt{SpanVal: p.span(start), Init: init, Test: test, Update: update, Body: body}
}

func (p *Parser) parseWhile() Node {
	start := p.expect(TokenWhile).Pos
	test := p.parseCondition()
	p.loopDepth++
	body := p.parseBody()
	p.loopDepth--
	return &WhileStmt{SpanVal: p.span(start), Test: test, Body: body}
}

func (p *Parser) parseFuncDecl() Node {
	start := p.expect(TokenFunction).Pos
	name := p.expect(TokenIdentifier).Literal
	params := p.parseParams()
	body := p.parseFuncBody()
	return &FuncDecl{SpanVal: p.span(start), Name: name, Params: params, Body: body}
}

// parseParams parses ( a, b, ... ).
func (p *Parser) parseParams() []string {
	opener := p.open(TokenLParen)
	var params []string
	for !p.curIs(TokenRParen) {
		params = append(params, p.expect(TokenIdentifier).Literal)
		if !p.curIs(TokenComma) {
			break
		}
		p.next()
	}
	p.close(TokenRParen, opener)
	return params
}

// parseFuncBody parses a function body. Loop state does not leak into it.
func (p *Parser) parseFuncBody() []Node {
	savedLoop := p.loopDepth
	p.loopDepth = 0
	p.funcDepth++
	body := p.parseBraced()
	p.funcDepth--
	p.loopDepth = savedLoop
	return body
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Binary operator precedence, lowest first.
var precedences = map[TokenType]int{
	TokenOrOr:        1,
	TokenAndAnd:      2,
	TokenPipe:        3,
	TokenCaret:       4,
	TokenAmp:         5,
	TokenEq:          6,
	TokenNotEq:       6,
	TokenStrictEq:    6,
	TokenStrictNotEq: 6,
	TokenLess:        7,
	TokenGreater:     7,
	TokenLessEq:      7,
	TokenGreaterEq:   7,
	TokenShl:         8,
	TokenShr:         8,
	TokenUShr:        8,
	TokenPlus:        9,
	TokenMinus:       9,
	TokenStar:        10,
	TokenSlash:       10,
	TokenPercent:     10,
}

// ParseExpression parses a single expression from tokens.
func ParseExpression(tokens []Token) (x Expr, err error) {
	p := NewParser(tokens)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			x, err = nil, p.err
		}
	}()
	x = p.parseExpr()
	p.skipEOL()
	if !p.curIs(TokenEOF) {
		p.fail(p.cur(), "unexpected %s", describe(p.cur()))
	}
	return x, nil
}

func (p *Parser) parseExpr() Expr {
	return p.parseBinary(1)
}

// parseBinary is a precedence climber: operators at the same level
// associate to the left, and tighter levels bind first.
func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for {
		op := p.cur()
		prec, ok := precedences[op.Type]
		if !ok || prec < minPrec {
			return left
		}
		p.next()
		p.skipEOL()
		right := p.parseBinary(prec + 1)
		left = &BinaryExpr{
			SpanVal: Span{Start: left.Span().Start, End: p.last},
			Left:    left,
			Op:      op.Type,
			Right:   right,
		}
	}
}

func (p *Parser) parseUnary() Expr {
	tok := p.cur()
	switch tok.Type {
	case TokenBang, TokenMinus, TokenPlus:
		p.next()
		operand := p.parseUnary()
		if n, ok := operand.(*NumberLit); ok && tok.Type != TokenBang {
			if tok.Type == TokenMinus {
				return &NumberLit{SpanVal: p.span(tok.Pos), Value: -n.Value}
			}
			return &NumberLit{SpanVal: p.span(tok.Pos), Value: n.Value}
		}
		return &UnaryExpr{SpanVal: p.span(tok.Pos), Op: tok.Type, Operand: operand}
	case TokenIncrement, TokenDecrement:
		p.next()
		operand := p.parseUnary()
		id, ok := operand.(*Ident)
		if !ok {
			p.fail(tok, "invalid %s operand", tok.Literal)
		}
		return &UpdateExpr{SpanVal: p.span(tok.Pos), Op: tok.Type, Prefix: true, Target: id}
	}
	return p.parsePostfix()
}

// parsePostfix parses member access, indexing, calls and postfix updates.
func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		tok := p.cur()
		switch tok.Type {
		case TokenDot:
			p.next()
			name := p.cur()
			if name.Type != TokenIdentifier && !isKeyword(name.Type) {
				p.fail(name, "expected property name, got %s", describe(name))
			}
			p.next()
			x = &MemberExpr{SpanVal: Span{Start: x.Span().Start, End: p.last}, Object: x, Property: name.Literal}
		case TokenLBracket:
			opener := p.open(TokenLBracket)
			index := p.parseExpr()
			p.close(TokenRBracket, opener)
			x = &IndexExpr{SpanVal: Span{Start: x.Span().Start, End: p.last}, Object: x, Index: index}
		case TokenLParen:
			args := p.parseArgs()
			x = &CallExpr{SpanVal: Span{Start: x.Span().Start, End: p.last}, Callee: x, Args: args}
		case TokenIncrement, TokenDecrement:
			id, ok := x.(*Ident)
			if !ok {
				p.fail(tok, "invalid %s operand", tok.Literal)
			}
			p.next()
			return &UpdateExpr{SpanVal: Span{Start: x.Span().Start, End: p.last}, Op: tok.Type, Target: id}
		default:
			return x
		}
	}
}

// parseArgs parses a parenthesized, comma-separated argument list; each
// slice is parsed as a full expression.
func (p *Parser) parseArgs() []Expr {
	opener := p.open(TokenLParen)
	var args []Expr
	for !p.curIs(TokenRParen) {
		args = append(args, p.parseExpr())
		if !p.curIs(TokenComma) {
			break
		}
		p.next()
	}
	p.close(TokenRParen, opener)
	return args
}

func isKeyword(t TokenType) bool {
	return t >= TokenLet && t <= TokenNull
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	sp := Span{Start: tok.Pos, End: tokEnd(tok)}
	switch tok.Type {
	case TokenNumber:
		p.next()
		return &NumberLit{SpanVal: sp, Value: tok.Value}
	case TokenString:
		p.next()
		return &StringLit{SpanVal: sp, Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.next()
		return &BoolLit{SpanVal: sp, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.next()
		return &NullLit{SpanVal: sp}
	case TokenIdentifier:
		if p.peekAt(1).Type == TokenArrow {
			return p.parseArrow([]string{tok.Literal}, tok.Pos, 1)
		}
		p.next()
		return &Ident{SpanVal: sp, Name: tok.Literal}
	case TokenLParen:
		if params, n, ok := p.arrowParams(); ok {
			return p.parseArrow(params, tok.Pos, n)
		}
		opener := p.open(TokenLParen)
		inner := p.parseExpr()
		p.close(TokenRParen, opener)
		return &SubExpr{SpanVal: p.span(tok.Pos), Inner: inner}
	case TokenLBracket:
		return p.parseArrayLit()
	case TokenLBrace:
		return p.parseObjectLit()
	case TokenFunction:
		return p.parseFuncExpr()
	case TokenEOF:
		p.fail(tok, "unexpected end of input")
	}
	p.fail(tok, "unexpected %s", describe(tok))
	return nil
}

// arrowParams looks ahead from ( for a parameter list followed by =>. It
// returns the parameters and the number of tokens they span.
func (p *Parser) arrowParams() ([]string, int, bool) {
	var params []string
	i := 1
	expectName := true
	for {
		t := p.peekAt(i)
		switch {
		case t.Type == TokenEOL:
		case t.Type == TokenRParen:
			if p.peekAt(i+1).Type != TokenArrow {
				return nil, 0, false
			}
			return params, i + 1, true
		case expectName && t.Type == TokenIdentifier:
			params = append(params, t.Literal)
			expectName = false
		case !expectName && t.Type == TokenComma:
			expectName = true
		default:
			return nil, 0, false
		}
		i++
	}
}

// parseArrow parses the body of an arrow function whose parameter list
// spans n tokens from the current one; the next token is =>.
func (p *Parser) parseArrow(params []string, start Position, n int) Expr {
	for i := 0; i < n; i++ {
		p.pos++
	}
	p.expect(TokenArrow)
	p.skipEOL()

	var body []Node
	if p.curIs(TokenLBrace) {
		body = p.parseFuncBody()
	} else {
		savedLoop := p.loopDepth
		p.loopDepth = 0
		value := p.parseExpr()
		p.loopDepth = savedLoop
		body = []Node{&ReturnStmt{SpanVal: value.Span(), Value: value}}
	}
	return &FuncExpr{SpanVal: p.span(start), Params: params, Body: body, Arrow: true}
}

func (p *Parser) parseFuncExpr() Expr {
	start := p.expect(TokenFunction).Pos
	name := ""
	if p.curIs(TokenIdentifier) {
		name = p.cur().Literal
		p.next()
	}
	params := p.parseParams()
	body := p.parseFuncBody()
	return &FuncExpr{SpanVal: p.span(start), Name: name, Params: params, Body: body, Named: name != ""}
}

func (p *Parser) parseArrayLit() Expr {
	opener := p.open(TokenLBracket)
	var elems []Expr
	for !p.curIs(TokenRBracket) {
		elems = append(elems, p.parseExpr())
		if !p.curIs(TokenComma) {
			break
		}
		p.next()
	}
	p.close(TokenRBracket, opener)
	sp := p.span(opener.Pos)
	return &ArrayLit{
		SpanVal:  sp,
		Elements: elems,
		Props:    map[string]Expr{"length": &NumberLit{SpanVal: sp, Value: float64(len(elems))}},
	}
}

func (p *Parser) parseObjectLit() Expr {
	opener := p.open(TokenLBrace)
	obj := &ObjectLit{Mutable: true}
	for !p.curIs(TokenRBrace) {
		keyTok := p.cur()
		var key string
		switch {
		case keyTok.Type == TokenIdentifier || keyTok.Type == TokenString || isKeyword(keyTok.Type):
			key = keyTok.Literal
		case keyTok.Type == TokenNumber:
			key = formatKey(keyTok.Value)
		default:
			p.fail(keyTok, "expected property name, got %s", describe(keyTok))
		}
		p.next()

		var value Expr
		if p.curIs(TokenColon) {
			p.next()
			value = p.parseExpr()
			if fn, ok := value.(*FuncExpr); ok && fn.Name == "" {
				fn.Name = key
			}
		} else if keyTok.Type == TokenIdentifier {
			// Shorthand { x } means { x: x }.
			value = &Ident{SpanVal: Span{Start: keyTok.Pos, End: tokEnd(keyTok)}, Name: key}
		} else {
			p.fail(p.cur(), "expected :, got %s", describe(p.cur()))
		}
		obj.Entries = append(obj.Entries, ObjectEntry{Key: key, Value: value})

		if !p.curIs(TokenComma) {
			break
		}
		p.next()
	}
	p.close(TokenRBrace, opener)
	obj.SpanVal = p.span(opener.Pos)
	return obj
}

// formatKey renders a numeric object key the way the VM renders numbers.
func formatKey(f float64) string {
	return vm.FormatNumber(f)
}
