// Package xlsx exchanges worksheets with Excel workbooks. numbers are
// written as numbers, text as strings and formulas as formulas; on import
// formulas are converted to the engine's dialect and fall back to their
// cached value when they cannot be.
package xlsx

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// DefaultSheet is the sheet name used for export
const DefaultSheet = "Sheet1"

type options struct {
	sheet  string
	logger logrus.FieldLogger
}

// Option configures Export and Import
type Option func(*options)

// WithSheet selects the sheet to write or read. on import the default is
// the first sheet of the workbook.
func WithSheet(name string) Option {
	return func(o *options) {
		o.sheet = name
	}
}

// WithLogger sets the logger for conversion warnings
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	l := logrus.New()
	l.SetOutput(io.Discard)
	o := &options{logger: l}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewWorkbook builds an in-memory workbook holding ws. the caller owns the
// returned file and must Close it.
func NewWorkbook(ws *spreadsheet.Worksheet, opts ...Option) (*excelize.File, error) {
	o := newOptions(opts)
	sheet := o.sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
		}
	}

	for addr, raw := range ws.Cells() {
		name, err := excelize.CoordinatesToCellName(addr.Column, addr.Row)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xlsx: %s does not fit in a workbook: %w", addr, err)
		}

		content := spreadsheet.ClassifyContent(raw)
		switch content.Type {
		case spreadsheet.CellValueTypeFormula:
			err = f.SetCellFormula(sheet, name, content.Formula())
		case spreadsheet.CellValueTypeNumber:
			err = f.SetCellFloat(sheet, name, content.Number, -1, 64)
		default:
			err = f.SetCellStr(sheet, name, raw)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xlsx: write %s: %w", addr, err)
		}
	}
	return f, nil
}

// Export writes ws to w as an .xlsx workbook
func Export(w io.Writer, ws *spreadsheet.Worksheet, opts ...Option) error {
	f, err := NewWorkbook(ws, opts...)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}

// ExportFile writes ws to the .xlsx file at path
func ExportFile(path string, ws *spreadsheet.Worksheet, opts ...Option) error {
	f, err := NewWorkbook(ws, opts...)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}

// Fallback records a formula that was imported as its cached value
type Fallback struct {
	Address spreadsheet.Address
	Formula string
	Value   string
	Err     error
}

// ImportResult is the outcome of an import
type ImportResult struct {
	Worksheet *spreadsheet.Worksheet
	Sheet     string
	Fallbacks []Fallback
}

// Import reads one sheet of the workbook in r
func Import(r io.Reader, opts ...Option) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()
	return ImportWorkbook(f, opts...)
}

// ImportFile reads one sheet of the workbook at path
func ImportFile(path string, opts ...Option) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()
	return ImportWorkbook(f, opts...)
}

// ImportWorkbook converts one sheet of an open workbook into a worksheet
func ImportWorkbook(f *excelize.File, opts ...Option) (*ImportResult, error) {
	o := newOptions(opts)

	sheet := o.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheet, err)
	}

	result := &ImportResult{Worksheet: spreadsheet.NewWorksheet(), Sheet: sheet}
	for r, row := range rows {
		for c, value := range row {
			addr := spreadsheet.Address{Column: c + 1, Row: r + 1}
			name, err := excelize.CoordinatesToCellName(addr.Column, addr.Row)
			if err != nil {
				return nil, fmt.Errorf("xlsx: %w", err)
			}

			raw := value
			formula, err := f.GetCellFormula(sheet, name)
			if err != nil {
				return nil, fmt.Errorf("xlsx: read formula %s: %w", name, err)
			}
			if formula != "" {
				converted, err := ConvertFormula(formula)
				if err != nil {
					o.logger.WithFields(logrus.Fields{
						"cell":    name,
						"formula": formula,
						"error":   err,
					}).Warn("formula imported as its cached value")
					result.Fallbacks = append(result.Fallbacks, Fallback{
						Address: addr,
						Formula: formula,
						Value:   value,
						Err:     err,
					})
				} else {
					raw = spreadsheet.FormulaPrefix + converted
				}
			}

			if raw == "" {
				continue
			}
			if err := result.Worksheet.Set(addr, raw); err != nil {
				return nil, fmt.Errorf("xlsx: %s: %w", name, err)
			}
		}
	}

	o.logger.WithFields(logrus.Fields{
		"sheet":     sheet,
		"cells":     result.Worksheet.Count(),
		"fallbacks": len(result.Fallbacks),
	}).Info("workbook imported")
	return result, nil
}
