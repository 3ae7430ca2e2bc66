package spreadsheet

import "sync"

// DefaultFormulaCacheSize is the number of distinct formula texts a
// FormulaCache keeps before it starts over
const DefaultFormulaCacheSize = 1 << 16

// FormulaCache stores parsed trees by formula text so that cells sharing a
// formula (a column of "=A1*2" copies, or one cell read many times through a
// range) are parsed once. trees are never mutated after parsing, so one tree
// may back any number of cells and evaluations.
//
// only successful parses are cached. parse errors get their cell attached
// during evaluation and therefore cannot be shared.
type FormulaCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]Node
	hits    uint64
	misses  uint64
}

// NewFormulaCache creates a cache holding up to limit formulas. limit < 1
// uses DefaultFormulaCacheSize.
func NewFormulaCache(limit int) *FormulaCache {
	if limit < 1 {
		limit = DefaultFormulaCacheSize
	}
	return &FormulaCache{
		limit:   limit,
		entries: make(map[string]Node),
	}
}

// Parse returns the tree for formula, parsing it on a miss. formula is the
// text after the leading '='.
func (fc *FormulaCache) Parse(formula string) (Node, error) {
	fc.mu.Lock()
	if tree, ok := fc.entries[formula]; ok {
		fc.hits++
		fc.mu.Unlock()
		return tree, nil
	}
	fc.misses++
	fc.mu.Unlock()

	tree, err := Parse(formula)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.entries) >= fc.limit {
		// full: start over rather than track recency
		clear(fc.entries)
	}
	fc.entries[formula] = tree
	return tree, nil
}

// Len returns the number of cached formulas
func (fc *FormulaCache) Len() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.entries)
}

// Stats returns the hit and miss counts since creation or the last Clear
func (fc *FormulaCache) Stats() (hits, misses uint64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.hits, fc.misses
}

// Clear drops every cached tree
func (fc *FormulaCache) Clear() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	clear(fc.entries)
	fc.hits, fc.misses = 0, 0
}
