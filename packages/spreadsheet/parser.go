package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// Node is an expression tree node. the set of node kinds is closed: only
// the types in this file implement it, and the evaluator switches over all
// of them. trees are built bottom-up and never mutated afterwards.
type Node interface {
	GetPosition() NodePosition
	ToString() string
	sealed()
}

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
)

var binaryOpSymbols = map[string]BinaryOp{
	"+": BinOpAdd,
	"-": BinOpSubtract,
	"*": BinOpMultiply,
	"/": BinOpDivide,
}

func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	}
	return "?"
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (*NumberNode) sealed() {}

// CellRefNode represents a single cell reference
type CellRefNode struct {
	Address  Address
	Position NodePosition
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return n.Address.String()
}

func (*CellRefNode) sealed() {}

// RangeNode represents a rectangular range; only meaningful as a function
// argument
type RangeNode struct {
	Range    Range
	Position NodePosition
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Range.String()
}

func (*RangeNode) sealed() {}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     Node
	Right    Node
	Position NodePosition
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), n.Op, n.Right.ToString())
}

func (*BinaryOpNode) sealed() {}

// FunctionCallNode represents a function call. Name is uppercased.
type FunctionCallNode struct {
	Name     string
	Args     []Node
	Position NodePosition
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

func (*FunctionCallNode) sealed() {}

// Parse tokenizes, reduces and builds the expression tree for formula text
// without its leading '='
func Parse(formula string) (Node, error) {
	postfix, err := Postfix(formula)
	if err != nil {
		return nil, err
	}
	return BuildTree(postfix)
}

// Postfix returns the postfix (RPN) token stream for formula text
func Postfix(formula string) ([]Token, error) {
	tokens, err := NewLexer(formula).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ToPostfix()
}

// Parser converts an infix token sequence to postfix order with the
// shunting-yard algorithm
type Parser struct {
	tokens []Token

	out      []Token
	ops      []Token // operators, '(' markers and pending function markers
	argCount []int   // completed commas, one entry per open function call
}

// NewParser creates a new parser for the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

func precedence(op string) int {
	switch op {
	case "+", "-":
		return 1
	case "*", "/":
		return 2
	}
	return 0
}

// ToPostfix reorders the tokens into postfix order in a single left-to-right
// pass. function tokens in the output carry their arity.
func (p *Parser) ToPostfix() ([]Token, error) {
	p.out = make([]Token, 0, len(p.tokens))
	p.ops = p.ops[:0]
	p.argCount = p.argCount[:0]

	var prev *Token
	for i := range p.tokens {
		tok := p.tokens[i]

		switch tok.Type {
		case TokenNumber, TokenCell, TokenRange:
			p.out = append(p.out, tok)

		case TokenIdentifier:
			if i+1 >= len(p.tokens) || p.tokens[i+1].Type != TokenLeftParen {
				return nil, newPositionedError(ErrorKindUnknownIdentifier, tok.Pos, "unknown identifier: %s", tok.Value)
			}
			tok.Type = TokenFunction
			p.ops = append(p.ops, tok)

		case TokenOperator:
			for len(p.ops) > 0 {
				top := p.ops[len(p.ops)-1]
				if top.Type != TokenOperator || precedence(top.Value) < precedence(tok.Value) {
					break
				}
				p.out = append(p.out, p.pop())
			}
			p.ops = append(p.ops, tok)

		case TokenLeftParen:
			if prev != nil && prev.Type == TokenFunction {
				p.argCount = append(p.argCount, 0)
			}
			p.ops = append(p.ops, tok)

		case TokenComma:
			if prev == nil || prev.Type == TokenLeftParen || prev.Type == TokenComma {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "missing argument before ',' at position %d", tok.Pos)
			}
			// a comma inside a grouping paren is rejected, so SUM((1,2)) is a syntax error
			if !p.drainToParen() || !p.innermostParenIsCall() || len(p.argCount) == 0 {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "comma outside function call at position %d", tok.Pos)
			}
			p.argCount[len(p.argCount)-1]++

		case TokenRightParen:
			if prev != nil && prev.Type == TokenComma {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "missing argument before ')' at position %d", tok.Pos)
			}
			if !p.drainToParen() {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "mismatched parentheses: unexpected ')' at position %d", tok.Pos)
			}
			p.pop() // discard '('

			if len(p.ops) == 0 || p.ops[len(p.ops)-1].Type != TokenFunction {
				if prev != nil && prev.Type == TokenLeftParen {
					return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "empty parentheses at position %d", tok.Pos)
				}
				break
			}

			fn := p.pop()
			commas := 0
			if n := len(p.argCount); n > 0 {
				commas = p.argCount[n-1]
				p.argCount = p.argCount[:n-1]
			}
			fn.Arity = commas + 1
			if prev != nil && prev.Type == TokenLeftParen {
				fn.Arity = 0
			}
			fn.End = tok.End
			p.out = append(p.out, fn)

		default:
			return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "unexpected token %s at position %d", tok.Type, tok.Pos)
		}

		prev = &tok
	}

	for len(p.ops) > 0 {
		tok := p.pop()
		if tok.Type == TokenLeftParen || tok.Type == TokenFunction {
			return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "mismatched parentheses: unclosed '(' at position %d", tok.Pos)
		}
		p.out = append(p.out, tok)
	}

	return p.out, nil
}

func (p *Parser) pop() Token {
	tok := p.ops[len(p.ops)-1]
	p.ops = p.ops[:len(p.ops)-1]
	return tok
}

// drainToParen pops operators to the output until a '(' is on top. returns
// false if the stack runs out first.
func (p *Parser) drainToParen() bool {
	for len(p.ops) > 0 {
		if p.ops[len(p.ops)-1].Type == TokenLeftParen {
			return true
		}
		p.out = append(p.out, p.pop())
	}
	return false
}

// innermostParenIsCall reports whether the '(' on top of the stack opened a
// function call rather than a grouping
func (p *Parser) innermostParenIsCall() bool {
	n := len(p.ops)
	return n >= 2 && p.ops[n-1].Type == TokenLeftParen && p.ops[n-2].Type == TokenFunction
}

// BuildTree consumes a postfix token stream with a single value stack and
// returns the root node. exactly one node must remain at the end.
func BuildTree(postfix []Token) (Node, error) {
	stack := make([]Node, 0, len(postfix))

	popN := func(n int) []Node {
		args := make([]Node, n)
		copy(args, stack[len(stack)-n:])
		stack = stack[:len(stack)-n]
		return args
	}

	for _, tok := range postfix {
		position := NodePosition{Start: tok.Pos, End: tok.End}

		switch tok.Type {
		case TokenNumber:
			value, err := strconv.ParseFloat(tok.Value, 64)
			if err != nil {
				if errors.Is(err, strconv.ErrRange) {
					return nil, newPositionedError(ErrorKindNumberFormat, tok.Pos, "number out of range: %s", tok.Value)
				}
				return nil, newPositionedError(ErrorKindNumberFormat, tok.Pos, "bad number: %q at position %d", tok.Value, tok.Pos)
			}
			stack = append(stack, &NumberNode{Value: value, Position: position})

		case TokenCell:
			addr, err := ParseAddress(tok.Value)
			if err != nil {
				return nil, withPosition(err, tok.Pos)
			}
			stack = append(stack, &CellRefNode{Address: addr, Position: position})

		case TokenRange:
			r, err := ParseRange(tok.Value)
			if err != nil {
				return nil, withPosition(err, tok.Pos)
			}
			stack = append(stack, &RangeNode{Range: r, Position: position})

		case TokenOperator:
			if len(stack) < 2 {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "invalid expression: operator %s at position %d needs two operands", tok.Value, tok.Pos)
			}
			operands := popN(2)
			left, right := operands[0], operands[1]
			stack = append(stack, &BinaryOpNode{
				Op:       binaryOpSymbols[tok.Value],
				Left:     left,
				Right:    right,
				Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
			})

		case TokenFunction:
			if len(stack) < tok.Arity {
				return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "invalid expression: %s expects %d arguments", tok.Value, tok.Arity)
			}
			stack = append(stack, &FunctionCallNode{
				Name:     tok.Value,
				Args:     popN(tok.Arity),
				Position: position,
			})

		default:
			return nil, newPositionedError(ErrorKindSyntax, tok.Pos, "bad postfix token: %s", tok.Type)
		}
	}

	if len(stack) != 1 {
		if len(stack) == 0 {
			return nil, NewFormulaError(ErrorKindSyntax, "invalid expression: empty formula")
		}
		extra := stack[1].GetPosition().Start
		return nil, newPositionedError(ErrorKindSyntax, extra, "invalid expression: unexpected input at position %d", extra)
	}

	return stack[0], nil
}

func withPosition(err error, pos int) error {
	var fe *FormulaError
	if errors.As(err, &fe) && fe.Pos < 0 {
		fe.Pos = pos
	}
	return err
}
