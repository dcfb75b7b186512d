package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenEOL
	TokenError

	// Literals
	TokenNumber     // 42, 3.14
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo, $bar, _baz

	// Keywords
	TokenLet
	TokenConst
	TokenVar
	TokenFunction
	TokenIf
	TokenElse
	TokenFor
	TokenWhile
	TokenReturn
	TokenBreak
	TokenContinue
	TokenTrue
	TokenFalse
	TokenNull

	// Punctuation
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenDot       // .

	// Operators
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenAssign      // =
	TokenEq          // ==
	TokenStrictEq    // ===
	TokenNotEq       // !=
	TokenStrictNotEq // !==
	TokenLess        // <
	TokenLessEq      // <=
	TokenGreater     // >
	TokenGreaterEq   // >=
	TokenShl         // <<
	TokenShr         // >>
	TokenUShr        // >>>
	TokenShlAssign   // <<=
	TokenShrAssign   // >>=
	TokenUShrAssign  // >>>=
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenStarAssign  // *=
	TokenSlashAssign // /=
	TokenIncrement   // ++
	TokenDecrement   // --
	TokenAndAnd      // &&
	TokenOrOr        // ||
	TokenBang        // !
	TokenAmp         // &
	TokenPipe        // |
	TokenCaret       // ^
	TokenArrow       // =>
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenEOL:        "EOL",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",

	TokenLet:      "let",
	TokenConst:    "const",
	TokenVar:      "var",
	TokenFunction: "function",
	TokenIf:       "if",
	TokenElse:     "else",
	TokenFor:      "for",
	TokenWhile:    "while",
	TokenReturn:   "return",
	TokenBreak:    "break",
	TokenContinue: "continue",
	TokenTrue:     "true",
	TokenFalse:    "false",
	TokenNull:     "null",

	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenComma:     ",",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenDot:       ".",

	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenAssign:      "=",
	TokenEq:          "==",
	TokenStrictEq:    "===",
	TokenNotEq:       "!=",
	TokenStrictNotEq: "!==",
	TokenLess:        "<",
	TokenLessEq:      "<=",
	TokenGreater:     ">",
	TokenGreaterEq:   ">=",
	TokenShl:         "<<",
	TokenShr:         ">>",
	TokenUShr:        ">>>",
	TokenShlAssign:   "<<=",
	TokenShrAssign:   ">>=",
	TokenUShrAssign:  ">>>=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenSlashAssign: "/=",
	TokenIncrement:   "++",
	TokenDecrement:   "--",
	TokenAndAnd:      "&&",
	TokenOrOr:        "||",
	TokenBang:        "!",
	TokenAmp:         "&",
	TokenPipe:        "|",
	TokenCaret:       "^",
	TokenArrow:       "=>",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token. Value holds the parsed number of a
// TokenNumber; for strings Literal is the decoded contents.
type Token struct {
	Type    TokenType
	Literal string
	Value   float64
	Pos     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenEOL:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"let":      TokenLet,
	"const":    TokenConst,
	"var":      TokenVar,
	"function": TokenFunction,
	"if":       TokenIf,
	"else":     TokenElse,
	"for":      TokenFor,
	"while":    TokenWhile,
	"return":   TokenReturn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}

// LookupIdent returns the keyword type for ident, or TokenIdentifier.
func LookupIdent(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TokenIdentifier
}

// operators lists every operator spelling, used by the lexer's maximal
// munch: longer spellings are tried first.
var operators = map[string]TokenType{
	"+": TokenPlus, "++": TokenIncrement, "+=": TokenPlusAssign,
	"-": TokenMinus, "--": TokenDecrement, "-=": TokenMinusAssign,
	"*": TokenStar, "*=": TokenStarAssign,
	"/": TokenSlash, "/=": TokenSlashAssign,
	"%": TokenPercent,
	"=": TokenAssign, "==": TokenEq, "===": TokenStrictEq, "=>": TokenArrow,
	"!": TokenBang, "!=": TokenNotEq, "!==": TokenStrictNotEq,
	"<": TokenLess, "<=": TokenLessEq, "<<": TokenShl, "<<=": TokenShlAssign,
	">": TokenGreater, ">=": TokenGreaterEq, ">>": TokenShr, ">>=": TokenShrAssign,
	">>>": TokenUShr, ">>>=": TokenUShrAssign,
	"&": TokenAmp, "&&": TokenAndAnd,
	"|": TokenPipe, "||": TokenOrOr,
	"^": TokenCaret,
}

// maxOperatorLen is the length of the longest operator spelling.
const maxOperatorLen = 4
