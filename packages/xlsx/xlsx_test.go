package xlsx

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func set(t *testing.T, ws *spreadsheet.Worksheet, ref, raw string) {
	t.Helper()
	addr, err := spreadsheet.ParseAddress(ref)
	require.NoError(t, err)
	require.NoError(t, ws.Set(addr, raw))
}

func raw(t *testing.T, ws *spreadsheet.Worksheet, ref string) string {
	t.Helper()
	addr, err := spreadsheet.ParseAddress(ref)
	require.NoError(t, err)
	return ws.GetRaw(addr)
}

func TestConvertFormula(t *testing.T) {
	tests := []struct {
		excel    string
		expected string
	}{
		{"=SUM(A1:B2)", "SUM(A1:B2)"},
		{"SUM($A$1:B$2,3)", "SUM(A1:B2,3)"},
		{"=sum(a1,b1)", "SUM(A1,B1)"},
		{"A1 * 2", "A1*2"},
		{"(1+2)/4", "(1+2)/4"},
		{"1.50", "1.5"},
		{"-A1+2", "(0-A1)+2"},
		{"2/-3", "2/(0-3)"},
		{"-SUM(1,2)*2", "(0-SUM(1,2))*2"},
		{"MAX(-1,2)", "MAX((0-1),2)"},
		{"-(1+2)", "(0-(1+2))"},
	}

	for _, tt := range tests {
		t.Run(tt.excel, func(t *testing.T) {
			got, err := ConvertFormula(tt.excel)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestConvertFormulaUnsupported(t *testing.T) {
	for _, excel := range []string{
		`"a"&"b"`,
		"A1^2",
		"Sheet2!A1+1",
		"TRUE",
		"A1>1",
		"10%",
		"Total*2",
		"",
	} {
		t.Run(excel, func(t *testing.T) {
			_, err := ConvertFormula(excel)
			assert.ErrorIs(t, err, ErrUnsupportedFormula)
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	set(t, ws, "A1", "1.50")
	set(t, ws, "A2", "2")
	set(t, ws, "B1", "label")
	set(t, ws, "B2", "=SUM(A1:A2)")
	set(t, ws, "D7", "=A1*B2")

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ws))

	result, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultSheet, result.Sheet)
	assert.Empty(t, result.Fallbacks)

	back := result.Worksheet
	assert.Equal(t, "1.5", raw(t, back, "A1"), "numbers are stored as numbers")
	assert.Equal(t, "2", raw(t, back, "A2"))
	assert.Equal(t, "label", raw(t, back, "B1"))
	assert.Equal(t, "=SUM(A1:A2)", raw(t, back, "B2"))
	assert.Equal(t, "=A1*B2", raw(t, back, "D7"))
	assert.Equal(t, ws.Count(), back.Count())

	v, err := spreadsheet.EvaluateFormula("D7", back)
	require.NoError(t, err)
	assert.Equal(t, 5.25, v)
}

func TestExportSheetName(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	set(t, ws, "A1", "1")

	f, err := NewWorkbook(ws, WithSheet("Budget"))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Budget"}, f.GetSheetList())

	result, err := ImportWorkbook(f)
	require.NoError(t, err)
	assert.Equal(t, "Budget", result.Sheet)
	assert.Equal(t, "1", raw(t, result.Worksheet, "A1"))
}

func TestImportFallsBackToCachedValue(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", 3))
	require.NoError(t, f.SetCellFormula("Sheet1", "B1", "A1^2"))
	require.NoError(t, f.SetCellFormula("Sheet1", "C1", "$A$1*2"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	result, err := Import(&buf)
	require.NoError(t, err)

	require.Len(t, result.Fallbacks, 1)
	fb := result.Fallbacks[0]
	assert.Equal(t, "B1", fb.Address.String())
	assert.Equal(t, "A1^2", fb.Formula)
	assert.ErrorIs(t, fb.Err, ErrUnsupportedFormula)

	assert.Equal(t, "=A1*2", raw(t, result.Worksheet, "C1"))
	assert.Equal(t, fb.Value, raw(t, result.Worksheet, "B1"))
}

func TestImportMissingSheet(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ws))

	_, err := Import(&buf, WithSheet("Nope"))
	assert.Error(t, err)
}

func TestExportRejectsCellsOutsideWorkbookLimits(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	require.NoError(t, ws.Set(spreadsheet.Address{Column: 20000, Row: 1}, "1"))

	var buf bytes.Buffer
	assert.Error(t, Export(&buf, ws))
}

func TestExportImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	ws := spreadsheet.NewWorksheet()
	set(t, ws, "C3", "=1+2")

	require.NoError(t, ExportFile(path, ws))
	result, err := ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, "=1+2", raw(t, result.Worksheet, "C3"))
}
