package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

const (
	rowLabelWidth = 5
	cellWidth     = 10
)

// renderTable prints cells under column letters with row numbers on the
// left; values wider than a column are not truncated
func renderTable(w io.Writer, r spreadsheet.Range, cells [][]string) error {
	b := r.GetBounds()

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", rowLabelWidth+1))
	for col := b.StartColumn; col <= b.EndColumn; col++ {
		fmt.Fprintf(&sb, "%*s", cellWidth, spreadsheet.ColumnName(col))
	}
	sb.WriteByte('\n')

	for i, row := range cells {
		fmt.Fprintf(&sb, "%*d ", rowLabelWidth, b.StartRow+i)
		for _, cell := range row {
			fmt.Fprintf(&sb, "%*s", cellWidth, cell)
		}
		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// cellEntry is one cell of a YAML listing
type cellEntry struct {
	Cell  string   `yaml:"cell"`
	Raw   string   `yaml:"raw,omitempty"`
	Value *float64 `yaml:"value,omitempty"`
	Error string   `yaml:"error,omitempty"`
}

func newCellEntry(raw string, result spreadsheet.CellResult) cellEntry {
	entry := cellEntry{Cell: result.Address.String(), Raw: raw}
	if result.Err != nil {
		entry.Error = result.Display()
		return entry
	}
	v := result.Value
	entry.Value = &v
	return entry
}

// renderYAML prints the non-empty cells of a value table as a YAML list
func renderYAML(w io.Writer, raw [][]string, values [][]spreadsheet.CellResult) error {
	var entries []cellEntry
	for i, row := range values {
		for j, result := range row {
			if raw[i][j] == "" {
				continue
			}
			entries = append(entries, newCellEntry(raw[i][j], result))
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// displayValues turns evaluated results into table text
func displayValues(values [][]spreadsheet.CellResult) [][]string {
	cells := make([][]string, len(values))
	for i, row := range values {
		cells[i] = make([]string, len(row))
		for j, result := range row {
			cells[i][j] = result.Display()
		}
	}
	return cells
}

// formatCycle prints a reference cycle closed back on its first cell
func formatCycle(cycle []spreadsheet.Address) string {
	parts := make([]string, 0, len(cycle)+1)
	for _, addr := range cycle {
		parts = append(parts, addr.String())
	}
	if len(cycle) > 0 {
		parts = append(parts, cycle[0].String())
	}
	return strings.Join(parts, " -> ")
}

func quoteIfBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return strconv.Quote(s)
	}
	return s
}
