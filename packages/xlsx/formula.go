package xlsx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// ErrUnsupportedFormula is returned for Excel formulas that use anything
// the engine cannot evaluate: text, logicals, error literals, other
// operators, sheet-qualified or named references
var ErrUnsupportedFormula = errors.New("unsupported formula")

// ConvertFormula rewrites an Excel formula (with or without the leading
// '=') into the engine's dialect. "$" anchors are dropped, numbers are
// normalised and a unary minus becomes a subtraction from zero.
func ConvertFormula(formula string) (string, error) {
	formula = strings.TrimPrefix(formula, spreadsheet.FormulaPrefix)
	parser := efp.ExcelParser()
	tokens := parser.Parse(formula)
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty formula", ErrUnsupportedFormula)
	}

	var sb strings.Builder
	depth := 0
	// depths at which a "(0-" opened for a unary minus must be closed once
	// the next complete operand has been written
	var pending []int
	closeNegations := func() {
		for len(pending) > 0 && pending[len(pending)-1] == depth {
			sb.WriteByte(')')
			pending = pending[:len(pending)-1]
		}
	}

	for _, tok := range tokens {
		switch tok.TType {
		case efp.TokenTypeOperand:
			text, err := convertOperand(tok)
			if err != nil {
				return "", err
			}
			sb.WriteString(text)
			closeNegations()

		case efp.TokenTypeFunction:
			if tok.TSubType == efp.TokenSubTypeStart {
				sb.WriteString(strings.ToUpper(tok.TValue))
				sb.WriteByte('(')
				depth++
				continue
			}
			sb.WriteByte(')')
			depth--
			closeNegations()

		case efp.TokenTypeSubexpression:
			if tok.TSubType == efp.TokenSubTypeStart {
				sb.WriteByte('(')
				depth++
				continue
			}
			sb.WriteByte(')')
			depth--
			closeNegations()

		case efp.TokenTypeArgument:
			sb.WriteByte(',')

		case efp.TokenTypeOperatorInfix:
			switch tok.TValue {
			case "+", "-", "*", "/":
				sb.WriteString(tok.TValue)
			default:
				return "", fmt.Errorf("%w: operator %q", ErrUnsupportedFormula, tok.TValue)
			}

		case efp.TokenTypeOperatorPrefix:
			switch tok.TValue {
			case "-":
				sb.WriteString("(0-")
				pending = append(pending, depth)
			case "+":
			default:
				return "", fmt.Errorf("%w: prefix %q", ErrUnsupportedFormula, tok.TValue)
			}

		case efp.TokenTypeWhitespace, efp.TokenTypeNoop:

		default:
			return "", fmt.Errorf("%w: %s token %q", ErrUnsupportedFormula, tok.TType, tok.TValue)
		}
	}

	if depth != 0 || len(pending) > 0 {
		return "", fmt.Errorf("%w: unbalanced formula %q", ErrUnsupportedFormula, formula)
	}

	converted := sb.String()
	if _, err := spreadsheet.Parse(converted); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormula, err)
	}
	return converted, nil
}

func convertOperand(tok efp.Token) (string, error) {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		v, err := strconv.ParseFloat(tok.TValue, 64)
		if err != nil {
			return "", fmt.Errorf("%w: number %q", ErrUnsupportedFormula, tok.TValue)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case efp.TokenSubTypeRange:
		if strings.ContainsAny(tok.TValue, "![]'") {
			return "", fmt.Errorf("%w: reference %q", ErrUnsupportedFormula, tok.TValue)
		}
		return strings.ToUpper(strings.ReplaceAll(tok.TValue, "$", "")), nil
	default:
		return "", fmt.Errorf("%w: %s operand %q", ErrUnsupportedFormula, strings.ToLower(tok.TSubType), tok.TValue)
	}
}
