package compiler

import (
	"errors"
	"strings"
	"testing"
)

func TestLexerPunctuation(t *testing.T) {
	input := `( ) { } [ ] , ; : .`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenComma, ","},
		{TokenSemicolon, ";"},
		{TokenColon, ":"},
		{TokenDot, "."},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerMaximalMunch(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{">>>=", []TokenType{TokenUShrAssign}},
		{">>=", []TokenType{TokenShrAssign}},
		{">=", []TokenType{TokenGreaterEq}},
		{">", []TokenType{TokenGreater}},
		{">>>", []TokenType{TokenUShr}},
		{">>", []TokenType{TokenShr}},
		{"===", []TokenType{TokenStrictEq}},
		{"!==", []TokenType{TokenStrictNotEq}},
		{"=>", []TokenType{TokenArrow}},
		{"====", []TokenType{TokenStrictEq, TokenAssign}},
		{"a++ + b", []TokenType{TokenIdentifier, TokenIncrement, TokenPlus, TokenIdentifier}},
		{"x>>>=2", []TokenType{TokenIdentifier, TokenUShrAssign, TokenNumber}},
		{"a&&b||c", []TokenType{TokenIdentifier, TokenAndAnd, TokenIdentifier, TokenOrOr, TokenIdentifier}},
	}

	for _, tc := range tests {
		tokens, err := Tokenize(tc.input)
		if err != nil {
			t.Errorf("Tokenize(%q): unexpected error %v", tc.input, err)
			continue
		}
		want := append(tc.want, TokenEOF)
		if len(tokens) != len(want) {
			t.Errorf("Tokenize(%q): got %d tokens %v, want %d", tc.input, len(tokens), tokens, len(want))
			continue
		}
		for i, typ := range want {
			if tokens[i].Type != typ {
				t.Errorf("Tokenize(%q)[%d] = %v, want %v", tc.input, i, tokens[i].Type, typ)
			}
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"42", 42},
		{"0", 0},
		{"3.25", 3.25},
		{"007", 7},
		{"1000000", 1e6},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", tc.input, tok.Type)
			continue
		}
		if tok.Value != tc.want {
			t.Errorf("Lexer(%q): value = %v, want %v", tc.input, tok.Value, tc.want)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q", tc.input, tok.Literal)
		}
	}
}

func TestLexerNumberFollowedByDot(t *testing.T) {
	tokens, err := Tokenize("1.foo")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []TokenType{TokenNumber, TokenDot, TokenIdentifier, TokenEOF}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i].Type, typ)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`""`, ""},
		{`"it's"`, "it's"},
		{`'say "hi"'`, `say "hi"`},
		{`"a\nb"`, `a\nb`},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%s): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"let", TokenLet},
		{"const", TokenConst},
		{"var", TokenVar},
		{"function", TokenFunction},
		{"return", TokenReturn},
		{"null", TokenNull},
		{"letter", TokenIdentifier},
		{"_private", TokenIdentifier},
		{"$el", TokenIdentifier},
		{"x2", TokenIdentifier},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.want {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.want)
		}
	}
}

func TestLexerCommentsAndLines(t *testing.T) {
	input := "let x // trailing\n/* block\ncomment */ y"
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []TokenType{TokenLet, TokenIdentifier, TokenEOL, TokenIdentifier, TokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(want))
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i].Type, typ)
		}
	}

	y := tokens[3]
	if y.Pos.Line != 3 || y.Pos.Column != 12 {
		t.Errorf("y position = %d:%d, want 3:12", y.Pos.Line, y.Pos.Column)
	}
}

func TestLexerPositions(t *testing.T) {
	tokens, err := Tokenize("a\n  bc")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if p := tokens[0].Pos; p.Line != 1 || p.Column != 1 || p.Offset != 0 {
		t.Errorf("a at %+v, want 1:1 offset 0", p)
	}
	if p := tokens[2].Pos; p.Line != 2 || p.Column != 3 || p.Offset != 4 {
		t.Errorf("bc at %+v, want 2:3 offset 4", p)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input  string
		msg    string
		line   int
		column int
	}{
		{`let s = "abc`, "unterminated string", 1, 9},
		{"x = 'abc\n", "unterminated string", 1, 5},
		{"1.2.3", "malformed number", 1, 1},
		{"let n = 12abc", "malformed number", 1, 9},
		{"a /* never closed", "unterminated block comment", 1, 3},
		{"a # b", "unexpected character", 1, 3},
	}

	for _, tc := range tests {
		_, err := Tokenize(tc.input)
		if err == nil {
			t.Errorf("Tokenize(%q): expected error", tc.input)
			continue
		}
		var lexErr *LexError
		if !errors.As(err, &lexErr) {
			t.Errorf("Tokenize(%q): error %T is not a *LexError", tc.input, err)
			continue
		}
		if !strings.Contains(lexErr.Msg, tc.msg) {
			t.Errorf("Tokenize(%q): msg = %q, want it to contain %q", tc.input, lexErr.Msg, tc.msg)
		}
		if lexErr.Pos.Line != tc.line || lexErr.Pos.Column != tc.column {
			t.Errorf("Tokenize(%q): at %d:%d, want %d:%d",
				tc.input, lexErr.Pos.Line, lexErr.Pos.Column, tc.line, tc.column)
		}
	}
}
