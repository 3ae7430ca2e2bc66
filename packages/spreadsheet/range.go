package spreadsheet

import (
	"fmt"
	"iter"
	"strings"
)

// RangeAddress holds the normalized, inclusive bounds of a range
type RangeAddress struct {
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// Range is a rectangular block given by two corner addresses. the corners
// are kept as written; iteration always walks min..max on each axis, so
// "C3:A1" covers the same cells as "A1:C3".
type Range struct {
	Start Address
	End   Address
}

// NewRange creates a range from two corners
func NewRange(start, end Address) Range {
	return Range{Start: start, End: end}
}

// ParseRange parses "<addr>:<addr>"
func ParseRange(text string) (Range, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return Range{}, NewFormulaError(ErrorKindInvalidRange, fmt.Sprintf("invalid range: %q", text))
	}
	start, err := ParseAddress(parts[0])
	if err != nil {
		return Range{}, NewFormulaError(ErrorKindInvalidRange, fmt.Sprintf("invalid range start in %q: %v", text, err))
	}
	end, err := ParseAddress(parts[1])
	if err != nil {
		return Range{}, NewFormulaError(ErrorKindInvalidRange, fmt.Sprintf("invalid range end in %q: %v", text, err))
	}
	return Range{Start: start, End: end}, nil
}

// String returns the range as written, e.g. "A1:B3"
func (r Range) String() string {
	return r.Start.String() + ":" + r.End.String()
}

// GetBounds returns the normalized range boundaries
func (r Range) GetBounds() RangeAddress {
	return RangeAddress{
		StartRow:    min(r.Start.Row, r.End.Row),
		StartColumn: min(r.Start.Column, r.End.Column),
		EndRow:      max(r.Start.Row, r.End.Row),
		EndColumn:   max(r.Start.Column, r.End.Column),
	}
}

// Contains checks if an address lies within the range
func (r Range) Contains(addr Address) bool {
	b := r.GetBounds()
	return addr.Row >= b.StartRow && addr.Row <= b.EndRow &&
		addr.Column >= b.StartColumn && addr.Column <= b.EndColumn
}

// Size returns the number of cells covered by the range
func (r Range) Size() int {
	b := r.GetBounds()
	return (b.EndRow - b.StartRow + 1) * (b.EndColumn - b.StartColumn + 1)
}

// Addresses returns an iterator over every address in the range in
// row-major order: outer loop over rows, inner loop over columns
func (r Range) Addresses() iter.Seq[Address] {
	return func(yield func(Address) bool) {
		b := r.GetBounds()
		for row := b.StartRow; row <= b.EndRow; row++ {
			for col := b.StartColumn; col <= b.EndColumn; col++ {
				if !yield(Address{Column: col, Row: row}) {
					return
				}
			}
		}
	}
}

// Rows returns an iterator over the rows of the range, each row being the
// addresses from the leftmost to the rightmost column
func (r Range) Rows() iter.Seq[[]Address] {
	return func(yield func([]Address) bool) {
		b := r.GetBounds()
		for row := b.StartRow; row <= b.EndRow; row++ {
			line := make([]Address, 0, b.EndColumn-b.StartColumn+1)
			for col := b.StartColumn; col <= b.EndColumn; col++ {
				line = append(line, Address{Column: col, Row: row})
			}
			if !yield(line) {
				return
			}
		}
	}
}
