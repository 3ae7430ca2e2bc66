package spreadsheet

// CellStore is the read surface the evaluator consumes. GetRaw returns the
// exact text stored at addr, or "" when the cell is unset. the evaluator
// never writes through it.
type CellStore interface {
	GetRaw(addr Address) string
}

// MapStore is a minimal CellStore backed by a map, keyed by Address
type MapStore map[Address]string

func (m MapStore) GetRaw(addr Address) string {
	return m[addr]
}
