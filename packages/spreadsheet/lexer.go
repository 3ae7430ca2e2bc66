package spreadsheet

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenNumber TokenType = iota
	TokenCell
	TokenRange
	TokenIdentifier
	TokenFunction // identifier promoted to a call by the reducer; carries Arity in postfix output
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenComma
)

var tokenTypeNames = [...]string{
	TokenNumber:     "NUMBER",
	TokenCell:       "CELL",
	TokenRange:      "RANGE",
	TokenIdentifier: "IDENT",
	TokenFunction:   "FUNCTION",
	TokenOperator:   "OP",
	TokenLeftParen:  "LPAREN",
	TokenRightParen: "RPAREN",
	TokenComma:      "COMMA",
}

func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// character classification constants. slightly easier to read.
const (
	charLParen   = '('
	charRParen   = ')'
	charAsterisk = '*'
	charPlus     = '+'
	charComma    = ','
	charMinus    = '-'
	charPeriod   = '.'
	charSlash    = '/'
	charColon    = ':'
)

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // byte position in the original input
	End   int // byte position just past the token; for a call, past its ')'
	Arity int // argument count, only meaningful for TokenFunction
}

func (t Token) String() string {
	if t.Type == TokenFunction {
		return fmt.Sprintf("%s/%d", t.Value, t.Arity)
	}
	return t.Value
}

// Lexer tokenizes formula text. the leading '=' must already be stripped.
// all whitespace is dropped before scanning, so "SU M(1)" lexes as "SUM(1)".
type Lexer struct {
	input   string
	runes   []rune // input with whitespace removed
	offsets []int  // byte offset in input of each rune in runes
	pos     int
	tokens  []Token
}

// NewLexer creates a new lexer for the given formula text
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	for offset, ch := range input {
		if unicode.IsSpace(ch) {
			continue
		}
		l.runes = append(l.runes, ch)
		l.offsets = append(l.offsets, offset)
	}
	return l
}

// Tokenize scans the whole input. any error aborts the scan and no partial
// token sequence is returned.
func (l *Lexer) Tokenize() ([]Token, error) {
	l.pos = 0
	l.tokens = l.tokens[:0]

	for l.pos < len(l.runes) {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tok.End = l.offsets[l.pos-1] + utf8.RuneLen(l.runes[l.pos-1])
		l.tokens = append(l.tokens, tok)
	}

	return l.tokens, nil
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() (Token, error) {
	startPos := l.offset(l.pos)
	ch := l.current()

	// numbers
	if isDigit(ch) || ch == charPeriod {
		return l.scanNumber(), nil
	}

	// identifiers, cells, ranges
	if isAlpha(ch) {
		return l.scanIdentifierOrCell()
	}

	switch ch {
	case charPlus, charMinus, charAsterisk, charSlash:
		l.pos++
		return Token{Type: TokenOperator, Value: string(ch), Pos: startPos}, nil
	case charLParen:
		l.pos++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}, nil
	case charRParen:
		l.pos++
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}, nil
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}, nil
	}

	// unknown character
	return Token{}, newPositionedError(ErrorKindLex, startPos, "unexpected character: %q at position %d", ch, startPos)
}

// helper methods for character navigation

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return 0
	}
	return l.runes[l.pos]
}

// offset maps a rune index to its byte offset in the original input
func (l *Lexer) offset(i int) int {
	if i >= len(l.offsets) {
		return len(l.input)
	}
	return l.offsets[i]
}

func (l *Lexer) scanWhile(pred func(rune) bool) string {
	start := l.pos
	for l.pos < len(l.runes) && pred(l.runes[l.pos]) {
		l.pos++
	}
	return string(l.runes[start:l.pos])
}

// scanNumber consumes a run of digits and periods. "1.2.3" is accepted here
// and rejected when the tree is built.
func (l *Lexer) scanNumber() Token {
	startPos := l.offset(l.pos)
	value := l.scanWhile(func(ch rune) bool { return isDigit(ch) || ch == charPeriod })
	return Token{Type: TokenNumber, Value: value, Pos: startPos}
}

// scanIdentifierOrCell scans identifiers, cells and ranges. letters are
// uppercased; letters followed by digits form a cell, optionally followed
// by ':' and a second cell to form a range.
func (l *Lexer) scanIdentifierOrCell() (Token, error) {
	startPos := l.offset(l.pos)

	letters := toUpper(l.scanWhile(isAlpha))
	digits := l.scanWhile(isDigit)
	if digits == "" {
		// validated by the reducer: must be followed by '('
		return Token{Type: TokenIdentifier, Value: letters, Pos: startPos}, nil
	}

	cell := letters + digits
	if l.current() != charColon {
		return Token{Type: TokenCell, Value: cell, Pos: startPos}, nil
	}

	l.pos++ // consume ':'
	endStart := l.pos
	letters2 := toUpper(l.scanWhile(isAlpha))
	digits2 := l.scanWhile(isDigit)
	if letters2 == "" || digits2 == "" {
		rest := string(l.runes[endStart:])
		return Token{}, newPositionedError(ErrorKindLex, l.offset(endStart), "invalid range end near: %q", rest)
	}

	return Token{Type: TokenRange, Value: cell + ":" + letters2 + digits2, Pos: startPos}, nil
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func toUpperRune(ch rune) rune {
	if ch >= 'a' && ch <= 'z' {
		return ch - 32
	}
	return ch
}

// toUpper converts ASCII letters to uppercase
func toUpper(s string) string {
	result := []rune(s)
	for i, ch := range result {
		result[i] = toUpperRune(ch)
	}
	return string(result)
}
