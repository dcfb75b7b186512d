package compiler

import "fmt"

// LexError reports malformed input found by the tokenizer.
type LexError struct {
	Pos  Position
	Span Span
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexical error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// SyntaxError reports a token the syntax builder could not place.
type SyntaxError struct {
	Token Token
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Token.Pos.Line, e.Token.Pos.Column, e.Msg)
}

// Span returns the source range of the offending token.
func (e *SyntaxError) Span() Span {
	end := e.Token.Pos
	n := len(e.Token.Literal)
	if e.Token.Type == TokenString {
		n += 2
	}
	if n == 0 {
		n = 1
	}
	end.Offset += n
	end.Column += n
	return Span{Start: e.Token.Pos, End: end}
}
