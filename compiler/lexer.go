package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for curly source
// ---------------------------------------------------------------------------

// Lexer tokenizes source text. Line terminators are significant and come
// out as TokenEOL; other whitespace and comments are skipped.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)

	err *LexError // first error produced
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the character after the current one.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// position returns the position of the current character.
func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// errorToken records a lexical error covering [start, current) and returns
// the matching error token.
func (l *Lexer) errorToken(start Position, msg string) Token {
	end := l.position()
	if end.Offset == start.Offset && !l.atEOF() {
		l.readChar()
		end = l.position()
	}
	if l.err == nil {
		l.err = &LexError{Pos: start, Span: Span{Start: start, End: end}, Msg: msg}
	}
	return Token{Type: TokenError, Literal: msg, Pos: start}
}

// Err returns the first lexical error, if any.
func (l *Lexer) Err() *LexError {
	return l.err
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	pos := l.position()

	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenEOL, Literal: "\n", Pos: pos}

	case l.ch == '"' || l.ch == '\'':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	if t, ok := punctuation[l.ch]; ok {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	return l.readOperator(pos)
}

var punctuation = map[rune]TokenType{
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	'[': TokenLBracket,
	']': TokenRBracket,
	',': TokenComma,
	';': TokenSemicolon,
	':': TokenColon,
	'.': TokenDot,
}

// skipWhitespaceAndComments skips blanks, carriage returns and comments.
// It reports false, with an error token, for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for !l.atEOF() {
		switch {
		case l.ch == '\n':
			return Token{}, true
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.position()
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					return l.errorToken(start, "unterminated block comment"), false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return Token{}, true
		}
	}
	return Token{}, true
}

// readString reads a string delimited by matching quotes. The interior is
// taken verbatim.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()
	start := l.pos
	for l.ch != quote {
		if l.atEOF() {
			return l.errorToken(pos, "unterminated string")
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: lit, Pos: pos}
}

// readNumber reads a decimal literal with an optional fractional part.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.ch == '.' && isDigit(l.peekChar()) {
			l.readChar()
			for isDigit(l.ch) || l.ch == '.' {
				l.readChar()
			}
			return l.errorToken(pos, "malformed number "+strconv.Quote(l.input[start:l.pos]))
		}
	}
	if isIdentPart(l.ch) {
		for isIdentPart(l.ch) {
			l.readChar()
		}
		return l.errorToken(pos, "malformed number "+strconv.Quote(l.input[start:l.pos]))
	}
	lit := l.input[start:l.pos]
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return l.errorToken(pos, "malformed number "+strconv.Quote(lit))
	}
	return Token{Type: TokenNumber, Literal: lit, Value: v, Pos: pos}
}

// readIdentifier reads a maximal run of identifier characters and maps
// reserved words to keywords.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	return Token{Type: LookupIdent(lit), Literal: lit, Pos: pos}
}

// readOperator applies maximal munch over the operator table.
func (l *Lexer) readOperator(pos Position) Token {
	rest := l.input[l.pos:]
	for n := min(maxOperatorLen, len(rest)); n > 0; n-- {
		if t, ok := operators[rest[:n]]; ok {
			for i := 0; i < n; i++ {
				l.readChar()
			}
			return Token{Type: t, Literal: rest[:n], Pos: pos}
		}
	}
	return l.errorToken(pos, "unexpected character "+strconv.QuoteRune(l.ch))
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// Tokenize returns every token of input, ending with TokenEOF, or the first
// lexical error.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	tokens := make([]Token, 0, len(input)/3+1)
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return tokens, l.err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// describe renders a token for diagnostics.
func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenEOL:
		return "end of line"
	case TokenString:
		return strconv.Quote(t.Literal)
	}
	if t.Literal != "" {
		return strings.TrimSpace(t.Literal)
	}
	return t.Type.String()
}
