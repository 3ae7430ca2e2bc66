package s2v

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func cell(t *testing.T, ws *spreadsheet.Worksheet, ref string) string {
	t.Helper()
	addr, err := spreadsheet.ParseAddress(ref)
	require.NoError(t, err)
	return ws.GetRaw(addr)
}

func set(t *testing.T, ws *spreadsheet.Worksheet, ref, raw string) {
	t.Helper()
	addr, err := spreadsheet.ParseAddress(ref)
	require.NoError(t, err)
	require.NoError(t, ws.Set(addr, raw))
}

func TestRead(t *testing.T) {
	input := "1;2;=SUM(A1:B1)\n\n;;hello; x \n=MAX(A1,B1);\n"

	ws, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "1", cell(t, ws, "A1"))
	assert.Equal(t, "2", cell(t, ws, "B1"))
	assert.Equal(t, "=SUM(A1:B1)", cell(t, ws, "C1"))
	assert.Equal(t, "", cell(t, ws, "A2"), "blank line advances the row")
	assert.Equal(t, "", cell(t, ws, "A3"))
	assert.Equal(t, "hello", cell(t, ws, "C3"))
	assert.Equal(t, " x ", cell(t, ws, "D3"), "cell text is kept verbatim")
	assert.Equal(t, "=MAX(A1,B1)", cell(t, ws, "A4"), "formula text is not rewritten on read")
	assert.Equal(t, 6, ws.Count())
}

func TestReadLineEndings(t *testing.T) {
	ws, err := Read(strings.NewReader("1;2\r\n\r\n3"))
	require.NoError(t, err)
	assert.Equal(t, "2", cell(t, ws, "B1"))
	assert.Equal(t, "3", cell(t, ws, "A3"))

	ws, err = Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, ws.Count())
}

func TestWrite(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	set(t, ws, "A1", "1")
	set(t, ws, "C1", "=SUM(A1;B1)")
	set(t, ws, "B3", "text")
	set(t, ws, "A4", "=A1")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ws))
	assert.Equal(t, "1;;=SUM(A1,B1)\n\n;text\n=A1\n", buf.String())
}

func TestWriteLeadingBlankRows(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	set(t, ws, "B3", "x")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ws))
	assert.Equal(t, "\n\n;x\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, spreadsheet.NewWorksheet()))
	assert.Equal(t, "", buf.String())
}

func TestWriteRejectsUnencodableText(t *testing.T) {
	for _, raw := range []string{"a;b", "line\nbreak", "=A1\n"} {
		ws := spreadsheet.NewWorksheet()
		set(t, ws, "A1", "ok")
		set(t, ws, "B2", raw)

		var buf bytes.Buffer
		err := Write(&buf, ws)
		assert.ErrorIs(t, err, ErrUnencodable, raw)
		assert.Contains(t, err.Error(), "B2")
		assert.Zero(t, buf.Len(), "nothing is written on failure")
	}
}

func TestRoundTrip(t *testing.T) {
	ws := spreadsheet.NewWorksheet()
	cells := map[string]string{
		"A1":  "=A1+B1",
		"B1":  "3.50",
		"C2":  "label",
		"A5":  "=SUM(A1:B1, 2)",
		"AA9": "  padded  ",
	}
	for ref, raw := range cells {
		set(t, ws, ref, raw)
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ws))
	back, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, ws.UsedAddresses(), back.UsedAddresses())
	for ref, raw := range cells {
		assert.Equal(t, raw, cell(t, back, ref), ref)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.s2v")

	ws := spreadsheet.NewWorksheet()
	set(t, ws, "A1", "1")
	set(t, ws, "A2", "=A1*2")
	require.NoError(t, WriteFile(path, ws))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "=A1*2", cell(t, back, "A2"))

	bad := spreadsheet.NewWorksheet()
	set(t, bad, "A1", "a;b")
	require.Error(t, WriteFile(path, bad))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n=A1*2\n", string(data), "a failed write leaves the old file")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.s2v"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		ok       bool
	}{
		{"=SUM(A1;B1)", "=SUM(A1,B1)", true},
		{"=SUM(A1,B1)", "=SUM(A1,B1)", true},
		{"1.5", "1.5", true},
		{"a,b", "a,b", true},
		{"a;b", "", false},
		{"a\rb", "", false},
	}
	for _, tt := range tests {
		got, err := Encode(tt.raw)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnencodable, tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}
