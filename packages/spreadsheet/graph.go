package spreadsheet

import (
	"slices"
)

// DependencyNode represents a formula cell in the dependency graph
type DependencyNode struct {
	Address   Address
	IsFormula bool

	CellPrecedents  map[Address]struct{} // cells referenced directly
	RangePrecedents []Range              // ranges passed to functions, never expanded
	CellDependents  map[Address]struct{} // formula cells referencing this one by address

	ParseErr error // set when the formula text does not parse
}

// DependencyGraph is a static snapshot of which formula cells reference
// which cells. it is an analysis aid only: evaluation always walks the
// store afresh and never consults the graph.
type DependencyGraph struct {
	nodes map[Address]*DependencyNode

	// formula cells with at least one range precedent
	rangeReaders map[Address]struct{}
}

// NewDependencyGraph creates an empty dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:        make(map[Address]*DependencyNode),
		rangeReaders: make(map[Address]struct{}),
	}
}

// BuildDependencyGraph parses every formula cell in ws and records its
// references. cells whose formula fails to parse are kept with ParseErr set
// and no precedents.
func BuildDependencyGraph(ws *Worksheet) *DependencyGraph {
	dg := NewDependencyGraph()
	for addr, raw := range ws.Cells() {
		content := ClassifyContent(raw)
		if content.Type != CellValueTypeFormula {
			continue
		}
		tree, err := Parse(content.Formula())
		if err != nil {
			node := dg.getOrCreateNode(addr)
			node.IsFormula = true
			node.ParseErr = err
			continue
		}
		dg.SetFormula(addr, tree)
	}
	return dg
}

// getOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) getOrCreateNode(addr Address) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}
	node := &DependencyNode{
		Address:        addr,
		CellPrecedents: make(map[Address]struct{}),
		CellDependents: make(map[Address]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// SetFormula records the references of tree as the precedents of addr,
// replacing anything recorded before
func (dg *DependencyGraph) SetFormula(addr Address, tree Node) {
	node := dg.getOrCreateNode(addr)
	dg.clearPrecedents(node)
	node.IsFormula = true
	node.ParseErr = nil

	cells, ranges := extractReferences(tree)
	for _, ref := range cells {
		node.CellPrecedents[ref] = struct{}{}
	}
	node.RangePrecedents = ranges
	if len(ranges) > 0 {
		dg.rangeReaders[addr] = struct{}{}
	}

	for ref := range node.CellPrecedents {
		dg.getOrCreateNode(ref).CellDependents[addr] = struct{}{}
	}
}

// clearPrecedents unlinks node from the dependents of everything it
// referenced
func (dg *DependencyGraph) clearPrecedents(node *DependencyNode) {
	for ref := range node.CellPrecedents {
		if other, ok := dg.nodes[ref]; ok {
			delete(other.CellDependents, node.Address)
		}
	}
	node.CellPrecedents = make(map[Address]struct{})
	node.RangePrecedents = nil
	delete(dg.rangeReaders, node.Address)
}

// readsThroughRange reports whether one of node's ranges covers addr
func readsThroughRange(node *DependencyNode, addr Address) bool {
	for _, r := range node.RangePrecedents {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// directDependents returns the formula cells that read addr by address or
// through a range
func (dg *DependencyGraph) directDependents(addr Address) map[Address]struct{} {
	result := make(map[Address]struct{})
	if node, ok := dg.nodes[addr]; ok {
		for dep := range node.CellDependents {
			result[dep] = struct{}{}
		}
	}
	for reader := range dg.rangeReaders {
		if readsThroughRange(dg.nodes[reader], addr) {
			result[reader] = struct{}{}
		}
	}
	return result
}

// formulaPrecedents returns the formula cells node reads, row-major. cells
// without a formula cannot take part in a cycle and are left out, so
// ranges are matched against the known formulas instead of expanded.
func (dg *DependencyGraph) formulaPrecedents(node *DependencyNode) []Address {
	result := make(map[Address]struct{})
	for ref := range node.CellPrecedents {
		if other, ok := dg.nodes[ref]; ok && other.IsFormula {
			result[ref] = struct{}{}
		}
	}
	if len(node.RangePrecedents) > 0 {
		for addr, other := range dg.nodes {
			if other.IsFormula && readsThroughRange(node, addr) {
				result[addr] = struct{}{}
			}
		}
	}
	return sortedAddresses(result)
}

// extractReferences collects the cell and range references of a tree in
// the order they appear
func extractReferences(node Node) (cells []Address, ranges []Range) {
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *CellRefNode:
			cells = append(cells, n.Address)
		case *RangeNode:
			ranges = append(ranges, n.Range)
		case *BinaryOpNode:
			walk(n.Left)
			walk(n.Right)
		case *FunctionCallNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		case *NumberNode:
			// literal nodes don't have dependencies
		}
	}
	walk(node)
	return cells, ranges
}

// GetNode returns the node for addr
func (dg *DependencyGraph) GetNode(addr Address) (*DependencyNode, bool) {
	node, ok := dg.nodes[addr]
	return node, ok
}

// Precedents returns the cells addr reads directly, row-major. ranges are
// expanded here only, so the result grows with the ranges addr names.
func (dg *DependencyGraph) Precedents(addr Address) []Address {
	node, ok := dg.nodes[addr]
	if !ok {
		return nil
	}
	result := make(map[Address]struct{}, len(node.CellPrecedents))
	for ref := range node.CellPrecedents {
		result[ref] = struct{}{}
	}
	for _, r := range node.RangePrecedents {
		for ref := range r.Addresses() {
			result[ref] = struct{}{}
		}
	}
	return sortedAddresses(result)
}

// Dependents returns every formula cell that reads addr directly or
// transitively, row-major
func (dg *DependencyGraph) Dependents(addr Address) []Address {
	visited := make(map[Address]struct{})
	dg.collectDependents(addr, visited)
	delete(visited, addr)
	return sortedAddresses(visited)
}

func (dg *DependencyGraph) collectDependents(addr Address, visited map[Address]struct{}) {
	for dep := range dg.directDependents(addr) {
		if _, seen := visited[dep]; seen {
			continue
		}
		visited[dep] = struct{}{}
		dg.collectDependents(dep, visited)
	}
}

// FindCycles returns every distinct reference cycle, each starting at its
// row-major smallest address. self references are cycles of length one.
func (dg *DependencyGraph) FindCycles() [][]Address {
	// three states: unvisited (not in map), visiting (false), visited (true)
	state := make(map[Address]bool)
	var stack []Address
	var cycles [][]Address
	seen := make(map[string]struct{})

	var visit func(addr Address)
	visit = func(addr Address) {
		if done, exists := state[addr]; exists {
			if !done {
				// currently visiting, the stack from addr onward is a cycle
				i := slices.Index(stack, addr)
				cycle := canonicalCycle(stack[i:])
				key := cycleKey(cycle)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					cycles = append(cycles, cycle)
				}
			}
			return
		}

		state[addr] = false
		stack = append(stack, addr)

		if node, ok := dg.nodes[addr]; ok {
			for _, ref := range dg.formulaPrecedents(node) {
				visit(ref)
			}
		}

		stack = stack[:len(stack)-1]
		state[addr] = true
	}

	for _, addr := range dg.Formulas() {
		if _, visited := state[addr]; !visited {
			visit(addr)
		}
	}

	return cycles
}

// HasCycle reports whether any formula references itself through a chain
func (dg *DependencyGraph) HasCycle() bool {
	return len(dg.FindCycles()) > 0
}

// Formulas returns the addresses of all formula cells, row-major
func (dg *DependencyGraph) Formulas() []Address {
	result := make([]Address, 0, len(dg.nodes))
	for addr, node := range dg.nodes {
		if node.IsFormula {
			result = append(result, addr)
		}
	}
	slices.SortFunc(result, compareAddresses)
	return result
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// canonicalCycle rotates cycle so that it starts at its smallest address
func canonicalCycle(cycle []Address) []Address {
	start := 0
	for i, addr := range cycle {
		if compareAddresses(addr, cycle[start]) < 0 {
			start = i
		}
	}
	result := make([]Address, 0, len(cycle))
	result = append(result, cycle[start:]...)
	result = append(result, cycle[:start]...)
	return result
}

func cycleKey(cycle []Address) string {
	key := ""
	for _, addr := range cycle {
		key += addr.String() + ","
	}
	return key
}

func sortedAddresses(set map[Address]struct{}) []Address {
	result := make([]Address, 0, len(set))
	for addr := range set {
		result = append(result, addr)
	}
	slices.SortFunc(result, compareAddresses)
	return result
}
