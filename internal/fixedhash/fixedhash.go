// Package fixedhash implements the read-only name-to-ID index built when a
// container is loaded. Tables are populated once (Insert during the initial
// walk, Define when a commit re-indexes) and answer lookups thereafter.
package fixedhash

// Table is a bucketed hash from type name to type ID.
type Table struct {
	buckets [][]entry
	mask    uint32
	count   int
}

type entry struct {
	name string
	id   uint32
}

// New creates a Table sized for roughly n entries.
func New(n int) *Table {
	size := uint32(16)
	for size < uint32(n) {
		size <<= 1
	}
	return &Table{
		buckets: make([][]entry, size),
		mask:    size - 1,
	}
}

func hashName(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*31 + uint32(name[i])
	}
	return h
}

// Insert adds a binding if the name is not already present. It reports
// whether the binding was added. Used while a container is loaded: the
// first definition of a name wins.
func (t *Table) Insert(name string, id uint32) bool {
	b := hashName(name) & t.mask
	for _, e := range t.buckets[b] {
		if e.name == name {
			return false
		}
	}
	t.buckets[b] = append(t.buckets[b], entry{name, id})
	t.count++
	return true
}

// Define adds or overwrites a binding. Used when dynamic types are folded
// in by a commit: the most recent definition of a name wins.
func (t *Table) Define(name string, id uint32) {
	b := hashName(name) & t.mask
	for i, e := range t.buckets[b] {
		if e.name == name {
			t.buckets[b][i].id = id
			return
		}
	}
	t.buckets[b] = append(t.buckets[b], entry{name, id})
	t.count++
}

// Lookup returns the ID bound to name.
func (t *Table) Lookup(name string) (uint32, bool) {
	b := hashName(name) & t.mask
	for _, e := range t.buckets[b] {
		if e.name == name {
			return e.id, true
		}
	}
	return 0, false
}

// Len returns the number of bindings.
func (t *Table) Len() int {
	return t.count
}
