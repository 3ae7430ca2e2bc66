package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxCoordinate bounds both column and row numbers
const MaxCoordinate = math.MaxInt32

// Address is an immutable 1-based (column, row) cell coordinate. the zero
// value is not a valid address; use NewAddress or ParseAddress.
type Address struct {
	Column int
	Row    int
}

// NewAddress creates an address, rejecting coordinates below 1
func NewAddress(column, row int) (Address, error) {
	if column < 1 || row < 1 || column > MaxCoordinate || row > MaxCoordinate {
		return Address{}, NewFormulaError(ErrorKindInvalidAddress,
			fmt.Sprintf("invalid address: column %d, row %d (both must be >= 1)", column, row))
	}
	return Address{Column: column, Row: row}, nil
}

// IsValid reports whether both coordinates are >= 1
func (a Address) IsValid() bool {
	return a.Column >= 1 && a.Row >= 1
}

// String returns the canonical form, e.g. "AA12"
func (a Address) String() string {
	return ColumnName(a.Column) + strconv.Itoa(a.Row)
}

// ColumnName converts a 1-based column number to its letters
// (1 -> A, 26 -> Z, 27 -> AA). returns "" for n < 1.
func ColumnName(n int) string {
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnNumber converts column letters (case-insensitive) to the 1-based
// column number. base-26 with no zero digit.
func ColumnNumber(letters string) (int, error) {
	if letters == "" {
		return 0, NewFormulaError(ErrorKindInvalidAddress, "invalid address: missing column letters")
	}
	col := 0
	for _, ch := range letters {
		if !isAlpha(ch) {
			return 0, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("invalid column letter: %q", ch))
		}
		col = col*26 + int(toUpperRune(ch)-'A'+1)
		if col > MaxCoordinate {
			return 0, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("column out of range: %s", letters))
		}
	}
	return col, nil
}

// ParseAddress parses a strict cell reference: optional surrounding spaces,
// one or more ASCII letters, then one or more digits ("A1", "zz10").
func ParseAddress(text string) (Address, error) {
	s := strings.TrimSpace(text)

	letterEnd := 0
	for letterEnd < len(s) && isAlpha(rune(s[letterEnd])) {
		letterEnd++
	}
	digits := s[letterEnd:]
	if letterEnd == 0 || digits == "" {
		return Address{}, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("invalid address: %q", text))
	}
	for _, ch := range digits {
		if !isDigit(ch) {
			return Address{}, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("invalid address: %q", text))
		}
	}
	return addressFromParts(text, s[:letterEnd], digits)
}

// ParseAddressLenient keeps every ASCII letter and every digit of text and
// drops everything else, so "A.1.2" parses as A12 and "1A" as A1. used
// when engine.lenient_addresses is set.
func ParseAddressLenient(text string) (Address, error) {
	var letters, digits strings.Builder
	for _, ch := range text {
		switch {
		case isAlpha(ch):
			letters.WriteRune(ch)
		case isDigit(ch):
			digits.WriteRune(ch)
		}
	}
	if letters.Len() == 0 || digits.Len() == 0 {
		return Address{}, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("invalid address: %q", text))
	}
	return addressFromParts(text, letters.String(), digits.String())
}

func addressFromParts(text, letters, digits string) (Address, error) {
	col, err := ColumnNumber(letters)
	if err != nil {
		return Address{}, err
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row > MaxCoordinate {
		return Address{}, NewFormulaError(ErrorKindInvalidAddress, fmt.Sprintf("invalid row number in address: %q", text))
	}
	return NewAddress(col, row)
}

// compareAddresses orders addresses row-major
func compareAddresses(a, b Address) int {
	if a.Row != b.Row {
		if a.Row < b.Row {
			return -1
		}
		return 1
	}
	if a.Column != b.Column {
		if a.Column < b.Column {
			return -1
		}
		return 1
	}
	return 0
}
