package spreadsheet

import (
	"iter"
	"math/bits"
	"slices"
)

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow uint32
	ChunkCol uint32
}

const (
	ChunkRows uint32 = 256                   // rows per chunk - power of 2 for efficient modulo
	ChunkCols uint32 = 256                   // columns per chunk
	ChunkSize        = ChunkRows * ChunkCols // 65536 cells per chunk
)

// Worksheet is the sparse cell store for a single sheet.
//
// architecture:
// - cells are partitioned into 256x256 chunks for spatial locality
// - every non-empty cell keeps its exact raw text, interned in a StringTable
// - number cells additionally cache their parsed value in a lazily
// allocated Numbers array, so reading a number never re-parses text
// - chunks that become empty are dropped
//
// a Worksheet is not safe for concurrent use. concurrent read-only
// evaluations against a worksheet nobody is writing to are fine.
type Worksheet struct {
	chunks      map[ChunkKey]*Chunk
	strings     *StringTable
	totalCells  int
	cellsByType [4]uint32 // indexed by CellType
}

// Chunk represents a 256x256 region of cells using structure-of-arrays
// layout. Types and OccupiedBitmap always exist, everything else is
// allocated on first use.
type Chunk struct {
	Types          []uint8  // CellType for each position
	NonEmptyCount  int      // count of non-empty cells
	OccupiedBitmap []uint64 // one bit per position

	RawIDs  []uint32  // interned raw text for every non-empty cell (lazy)
	Numbers []float64 // parsed values for number cells (lazy)
}

// NewWorksheet creates an empty worksheet
func NewWorksheet() *Worksheet {
	return &Worksheet{
		chunks:  make(map[ChunkKey]*Chunk),
		strings: NewStringTable(),
	}
}

// locate maps a 1-based address to its chunk key and the column-first index
// inside that chunk
func locate(addr Address) (ChunkKey, uint32) {
	row := uint32(addr.Row - 1)
	col := uint32(addr.Column - 1)
	key := ChunkKey{ChunkRow: row / ChunkRows, ChunkCol: col / ChunkCols}
	idx := (col%ChunkCols)*ChunkRows + row%ChunkRows
	return key, idx
}

// addressAt is the inverse of locate
func addressAt(key ChunkKey, idx uint32) Address {
	localCol := idx / ChunkRows
	localRow := idx % ChunkRows
	return Address{
		Column: int(key.ChunkCol*ChunkCols+localCol) + 1,
		Row:    int(key.ChunkRow*ChunkRows+localRow) + 1,
	}
}

// getChunk retrieves or creates a chunk
func (w *Worksheet) getChunk(key ChunkKey) *Chunk {
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{
			Types:          make([]uint8, ChunkSize),
			OccupiedBitmap: make([]uint64, ChunkSize/64),
		}
		w.chunks[key] = chunk
	}
	return chunk
}

// Set stores raw text at addr. the empty string reverts the cell to Empty.
// formulas are stored as given; they are only parsed when evaluated.
func (w *Worksheet) Set(addr Address, raw string) error {
	if !addr.IsValid() {
		return NewFormulaError(ErrorKindInvalidAddress, "invalid address: "+addr.String())
	}
	if raw == "" {
		w.Remove(addr)
		return nil
	}

	content := ClassifyContent(raw)
	key, idx := locate(addr)
	chunk := w.getChunk(key)

	oldType := CellType(chunk.Types[idx])
	if oldType == CellValueTypeEmpty {
		chunk.NonEmptyCount++
		w.totalCells++
	} else {
		w.cellsByType[oldType]--
	}

	if chunk.RawIDs == nil {
		chunk.RawIDs = make([]uint32, ChunkSize)
	}
	// intern before releasing so rewriting the same text keeps its ID
	newID := w.strings.Intern(raw)
	if oldID := chunk.RawIDs[idx]; oldID != 0 {
		w.strings.Release(oldID)
	}
	chunk.RawIDs[idx] = newID

	if content.Type == CellValueTypeNumber {
		if chunk.Numbers == nil {
			chunk.Numbers = make([]float64, ChunkSize)
		}
		chunk.Numbers[idx] = content.Number
	}

	chunk.Types[idx] = uint8(content.Type)
	w.cellsByType[content.Type]++
	chunk.OccupiedBitmap[idx/64] |= 1 << (idx % 64)
	return nil
}

// Remove clears the cell at addr
func (w *Worksheet) Remove(addr Address) {
	if !addr.IsValid() {
		return
	}
	key, idx := locate(addr)
	chunk, exists := w.chunks[key]
	if !exists {
		return
	}

	cellType := CellType(chunk.Types[idx])
	if cellType == CellValueTypeEmpty {
		return
	}

	if chunk.RawIDs != nil {
		w.strings.Release(chunk.RawIDs[idx])
		chunk.RawIDs[idx] = 0
	}
	if chunk.Numbers != nil {
		chunk.Numbers[idx] = 0
	}

	chunk.Types[idx] = uint8(CellValueTypeEmpty)
	chunk.OccupiedBitmap[idx/64] &^= 1 << (idx % 64)
	chunk.NonEmptyCount--
	w.totalCells--
	w.cellsByType[cellType]--

	if chunk.NonEmptyCount == 0 {
		delete(w.chunks, key)
	}
}

// GetRaw returns the exact text stored at addr, or "" for an empty cell
func (w *Worksheet) GetRaw(addr Address) string {
	if !addr.IsValid() {
		return ""
	}
	key, idx := locate(addr)
	chunk, exists := w.chunks[key]
	if !exists || chunk.Types[idx] == uint8(CellValueTypeEmpty) {
		return ""
	}
	raw, _ := w.strings.Lookup(chunk.RawIDs[idx])
	return raw
}

// Content returns the classified content at addr without re-classifying
// the raw text
func (w *Worksheet) Content(addr Address) Content {
	if !addr.IsValid() {
		return Content{Type: CellValueTypeEmpty}
	}
	key, idx := locate(addr)
	chunk, exists := w.chunks[key]
	if !exists {
		return Content{Type: CellValueTypeEmpty}
	}

	cellType := CellType(chunk.Types[idx])
	if cellType == CellValueTypeEmpty {
		return Content{Type: CellValueTypeEmpty}
	}

	raw, _ := w.strings.Lookup(chunk.RawIDs[idx])
	c := Content{Type: cellType, Raw: raw}
	if cellType == CellValueTypeNumber {
		c.Number = chunk.Numbers[idx]
	}
	return c
}

// Cells returns an iterator over every non-empty cell in no particular
// order
func (w *Worksheet) Cells() iter.Seq2[Address, string] {
	return func(yield func(Address, string) bool) {
		for key, chunk := range w.chunks {
			for word, bitsSet := range chunk.OccupiedBitmap {
				for bitsSet != 0 {
					bit := uint32(bits.TrailingZeros64(bitsSet))
					bitsSet &^= 1 << bit
					idx := uint32(word)*64 + bit
					raw, _ := w.strings.Lookup(chunk.RawIDs[idx])
					if !yield(addressAt(key, idx), raw) {
						return
					}
				}
			}
		}
	}
}

// UsedAddresses returns the addresses of all non-empty cells, row-major
func (w *Worksheet) UsedAddresses() []Address {
	result := make([]Address, 0, w.totalCells)
	for addr := range w.Cells() {
		result = append(result, addr)
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

// Bounds returns the smallest range covering every non-empty cell. ok is
// false for an empty worksheet.
func (w *Worksheet) Bounds() (r Range, ok bool) {
	first := true
	for addr := range w.Cells() {
		if first {
			r = Range{Start: addr, End: addr}
			first = false
			continue
		}
		r.Start.Row = min(r.Start.Row, addr.Row)
		r.Start.Column = min(r.Start.Column, addr.Column)
		r.End.Row = max(r.End.Row, addr.Row)
		r.End.Column = max(r.End.Column, addr.Column)
	}
	return r, !first
}

// Count returns the total number of non-empty cells
func (w *Worksheet) Count() int {
	return w.totalCells
}

// CountByType returns the number of non-empty cells of the given type
func (w *Worksheet) CountByType(cellType CellType) int {
	if int(cellType) >= len(w.cellsByType) {
		return 0
	}
	return int(w.cellsByType[cellType])
}

// Clear removes every cell
func (w *Worksheet) Clear() {
	w.chunks = make(map[ChunkKey]*Chunk)
	w.strings.Clear()
	w.totalCells = 0
	w.cellsByType = [4]uint32{}
}
