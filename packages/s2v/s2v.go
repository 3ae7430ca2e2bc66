// Package s2v reads and writes worksheets in the semicolon separated
// values format: one line per row, cells separated by ';', trailing empty
// cells omitted and an empty line for a row without cells.
//
// formula argument lists use ',' in memory. a ';' inside a formula is
// written as ',' so it can never be taken for a cell separator; reading
// leaves formula text as it is.
package s2v

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// Separator splits the cells of a row
const Separator = ";"

// ErrUnencodable is returned when a cell's text cannot be represented in
// the format, e.g. text containing the separator or a line break
var ErrUnencodable = errors.New("s2v: cell cannot be encoded")

// Read parses r into a new worksheet
func Read(r io.Reader) (*spreadsheet.Worksheet, error) {
	ws := spreadsheet.NewWorksheet()
	br := bufio.NewReader(r)

	row := 1
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("s2v: read row %d: %w", row, err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line != "" {
			if perr := readRow(ws, row, line); perr != nil {
				return nil, perr
			}
		}
		row++

		if errors.Is(err, io.EOF) {
			break
		}
	}
	return ws, nil
}

func readRow(ws *spreadsheet.Worksheet, row int, line string) error {
	col := 1
	for raw := range strings.SplitSeq(line, Separator) {
		if raw != "" {
			addr, err := spreadsheet.NewAddress(col, row)
			if err != nil {
				return fmt.Errorf("s2v: row %d column %d: %w", row, col, err)
			}
			if err := ws.Set(addr, raw); err != nil {
				return fmt.Errorf("s2v: %s: %w", addr, err)
			}
		}
		col++
	}
	return nil
}

// ReadFile reads the worksheet stored at path
func ReadFile(path string) (*spreadsheet.Worksheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Encode returns the on-disk form of one cell's raw text
func Encode(raw string) (string, error) {
	if strings.HasPrefix(raw, spreadsheet.FormulaPrefix) {
		raw = spreadsheet.FormulaPrefix + strings.ReplaceAll(raw[len(spreadsheet.FormulaPrefix):], Separator, ",")
	}
	if i := strings.IndexAny(raw, Separator+"\r\n"); i >= 0 {
		return "", fmt.Errorf("%w: %q contains %q", ErrUnencodable, raw, raw[i])
	}
	return raw, nil
}

// Write encodes ws to w. nothing is written when a cell cannot be encoded.
func Write(w io.Writer, ws *spreadsheet.Worksheet) error {
	var sb strings.Builder

	lastRow := 0
	var line []string
	flush := func() {
		sb.WriteString(strings.Join(line, Separator))
		sb.WriteByte('\n')
		line = line[:0]
	}

	for _, addr := range ws.UsedAddresses() {
		if addr.Row != lastRow {
			if lastRow > 0 {
				flush()
			}
			for range addr.Row - lastRow - 1 {
				sb.WriteByte('\n')
			}
			lastRow = addr.Row
		}

		encoded, err := Encode(ws.GetRaw(addr))
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		for len(line) < addr.Column-1 {
			line = append(line, "")
		}
		line = append(line, encoded)
	}
	if lastRow > 0 {
		flush()
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteFile writes ws to path, replacing the file only once the whole
// sheet has been encoded and written
func WriteFile(path string, ws *spreadsheet.Worksheet) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := Write(tmp, ws); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
