package spreadsheet

// StringTable interns raw cell text. sheets tend to repeat the same formula
// text and labels many times, so each distinct string is stored once and
// cells hold a 32-bit ID with a reference count.
type StringTable struct {
	index   map[string]uint32
	entries []stringEntry // entries[0] is reserved so that ID 0 means "none"
	free    []uint32      // released IDs available for reuse
}

type stringEntry struct {
	value string
	refs  int
}

// NewStringTable creates a new string table
func NewStringTable() *StringTable {
	return &StringTable{
		index:   make(map[string]uint32),
		entries: make([]stringEntry, 1),
	}
}

// Intern returns the ID for s, adding it or bumping its reference count
func (st *StringTable) Intern(s string) uint32 {
	if id, ok := st.index[s]; ok {
		st.entries[id].refs++
		return id
	}

	var id uint32
	if n := len(st.free); n > 0 {
		id = st.free[n-1]
		st.free = st.free[:n-1]
		st.entries[id] = stringEntry{value: s, refs: 1}
	} else {
		id = uint32(len(st.entries))
		st.entries = append(st.entries, stringEntry{value: s, refs: 1})
	}
	st.index[s] = id
	return id
}

// Lookup returns the string for id
func (st *StringTable) Lookup(id uint32) (string, bool) {
	if id == 0 || int(id) >= len(st.entries) || st.entries[id].refs == 0 {
		return "", false
	}
	return st.entries[id].value, true
}

// Release drops one reference to id. the string is forgotten once its last
// reference is gone; returns true in that case.
func (st *StringTable) Release(id uint32) bool {
	if id == 0 || int(id) >= len(st.entries) || st.entries[id].refs == 0 {
		return false
	}

	e := &st.entries[id]
	e.refs--
	if e.refs > 0 {
		return false
	}

	delete(st.index, e.value)
	e.value = ""
	st.free = append(st.free, id)
	return true
}

// Refs returns the reference count for id
func (st *StringTable) Refs(id uint32) int {
	if int(id) >= len(st.entries) {
		return 0
	}
	return st.entries[id].refs
}

// Count returns the number of distinct live strings
func (st *StringTable) Count() int {
	return len(st.index)
}

// Clear forgets every string
func (st *StringTable) Clear() {
	st.index = make(map[string]uint32)
	st.entries = st.entries[:1]
	st.free = st.free[:0]
}
