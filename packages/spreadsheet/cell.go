package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind classifies every failure the formula engine can produce. all of
// them are scoped to the single parse or evaluate call that raised them.
type ErrorKind uint8

const (
	ErrorKindLex               ErrorKind = 1  // unexpected character, malformed range tail
	ErrorKindSyntax            ErrorKind = 2  // mismatched parens, misplaced comma, wrong operand count
	ErrorKindUnknownIdentifier ErrorKind = 3  // bare identifier that is not a function call
	ErrorKindUnknownFunction   ErrorKind = 4  // name not in the function table
	ErrorKindInvalidAddress    ErrorKind = 5  // malformed cell coordinate
	ErrorKindInvalidRange      ErrorKind = 6  // malformed range coordinate
	ErrorKindCircularReference ErrorKind = 7  // address re-entered while still being resolved
	ErrorKindNumberFormat      ErrorKind = 8  // literal that does not parse as a float
	ErrorKindValue             ErrorKind = 9  // range used where a number was expected
	ErrorKindTooDeep           ErrorKind = 10 // reference chain exceeded the depth limit
)

// ErrorMapper maps error kinds to the short codes shown in value tables
var ErrorMapper = map[ErrorKind]string{
	ErrorKindLex:               "#LEX!",
	ErrorKindSyntax:            "#SYNTAX!",
	ErrorKindUnknownIdentifier: "#NAME?",
	ErrorKindUnknownFunction:   "#NAME?",
	ErrorKindInvalidAddress:    "#REF!",
	ErrorKindInvalidRange:      "#REF!",
	ErrorKindCircularReference: "#CIRC!",
	ErrorKindNumberFormat:      "#NUM!",
	ErrorKindValue:             "#VALUE!",
	ErrorKindTooDeep:           "#DEPTH!",
}

var kindNames = map[ErrorKind]string{
	ErrorKindLex:               "LexError",
	ErrorKindSyntax:            "SyntaxError",
	ErrorKindUnknownIdentifier: "UnknownIdentifier",
	ErrorKindUnknownFunction:   "UnknownFunction",
	ErrorKindInvalidAddress:    "InvalidAddress",
	ErrorKindInvalidRange:      "InvalidRange",
	ErrorKindCircularReference: "CircularReference",
	ErrorKindNumberFormat:      "NumberFormatError",
	ErrorKindValue:             "ValueError",
	ErrorKindTooDeep:           "TooDeep",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Code returns the display code for the kind, e.g. "#NAME?"
func (k ErrorKind) Code() string {
	if code, ok := ErrorMapper[k]; ok {
		return code
	}
	return "#ERROR!"
}

// FormulaError is the single failure value returned by parsing and
// evaluation. Pos is a byte offset into the formula text, or -1 when the
// failure is not tied to a position. Cell is set when the failure happened
// while resolving a specific cell.
type FormulaError struct {
	Kind    ErrorKind
	Message string
	Pos     int
	Cell    *Address
}

func (e *FormulaError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Code()
	}
	if e.Cell != nil {
		return fmt.Sprintf("%s: %s", e.Cell.String(), msg)
	}
	return msg
}

// Is reports kind equality so callers can match against the Err* sentinels
func (e *FormulaError) Is(target error) bool {
	var t *FormulaError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewFormulaError creates a FormulaError with no position
func NewFormulaError(kind ErrorKind, message string) *FormulaError {
	return &FormulaError{Kind: kind, Message: message, Pos: -1}
}

func newPositionedError(kind ErrorKind, pos int, format string, args ...any) *FormulaError {
	return &FormulaError{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// sentinels for errors.Is
var (
	ErrLex               = &FormulaError{Kind: ErrorKindLex}
	ErrSyntax            = &FormulaError{Kind: ErrorKindSyntax}
	ErrUnknownIdentifier = &FormulaError{Kind: ErrorKindUnknownIdentifier}
	ErrUnknownFunction   = &FormulaError{Kind: ErrorKindUnknownFunction}
	ErrInvalidAddress    = &FormulaError{Kind: ErrorKindInvalidAddress}
	ErrInvalidRange      = &FormulaError{Kind: ErrorKindInvalidRange}
	ErrCircularReference = &FormulaError{Kind: ErrorKindCircularReference}
	ErrNumberFormat      = &FormulaError{Kind: ErrorKindNumberFormat}
	ErrValue             = &FormulaError{Kind: ErrorKindValue}
	ErrTooDeep           = &FormulaError{Kind: ErrorKindTooDeep}
)

// KindOf extracts the ErrorKind from err, or 0 when err is not a FormulaError
func KindOf(err error) ErrorKind {
	var fe *FormulaError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// attachCell records the cell being resolved when the error was raised.
// the innermost cell wins, so an error deep in a reference chain keeps
// pointing at the cell that actually failed.
func attachCell(err error, addr Address) error {
	var fe *FormulaError
	if errors.As(err, &fe) && fe.Cell == nil {
		a := addr
		fe.Cell = &a
	}
	return err
}

// CellType represents the kind of content stored in a cell
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeText    CellType = 2
	CellValueTypeFormula CellType = 3
)

func (t CellType) String() string {
	switch t {
	case CellValueTypeEmpty:
		return "empty"
	case CellValueTypeNumber:
		return "number"
	case CellValueTypeText:
		return "text"
	case CellValueTypeFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// FormulaPrefix marks raw content as a formula
const FormulaPrefix = "="

// Content is the classified form of a cell's raw text. Raw is always the
// exact text that was stored.
type Content struct {
	Type   CellType
	Raw    string
	Number float64 // set for CellValueTypeNumber
}

// Formula returns the formula text without the leading marker
func (c Content) Formula() string {
	if c.Type != CellValueTypeFormula {
		return ""
	}
	return strings.TrimPrefix(c.Raw, FormulaPrefix)
}

// ClassifyContent classifies raw cell text. empty text is Empty, a leading
// '=' is a Formula, text that parses as a float is a Number, and anything
// else is Text.
func ClassifyContent(raw string) Content {
	if raw == "" {
		return Content{Type: CellValueTypeEmpty}
	}
	if strings.HasPrefix(raw, FormulaPrefix) {
		return Content{Type: CellValueTypeFormula, Raw: raw}
	}
	if n, ok := parseNumber(raw); ok {
		return Content{Type: CellValueTypeNumber, Raw: raw, Number: n}
	}
	return Content{Type: CellValueTypeText, Raw: raw}
}

// parseNumber parses a decimal numeric cell literal, tolerating surrounding
// spaces. hex floats, underscores, "Inf" and "NaN" are text, not numbers.
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for _, ch := range s {
		if !isDigit(ch) && ch != charPeriod && ch != charPlus && ch != charMinus && ch != 'e' && ch != 'E' {
			return 0, false
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
