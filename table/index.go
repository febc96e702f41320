package table

import "fmt"

// Index is a secondary (or primary) lookup structure over one column's
// values, mapping a key to every Address currently holding that key —
// including stub Addresses substituted in for evicted tuples, so a lookup
// never needs to know whether the row it finds is hot or cold.
type Index interface {
	Insert(key any, addr Address)
	Delete(key any, addr Address)
	// Update rewrites the Address stored for key from old to replacement,
	// e.g. when a tuple is evicted and replaced by a stub, or unevicted
	// and merged back in.
	Update(key any, old, replacement Address)
	Lookup(key any) []Address
}

// MapIndex is a single-column, map-backed index: adequate for the
// partition-local, single-threaded tables this engine manages, and the same
// role a hash index plays for any of this pack's storage engines.
type MapIndex struct {
	entries map[any][]Address
}

func NewMapIndex() *MapIndex {
	return &MapIndex{entries: make(map[any][]Address)}
}

func (m *MapIndex) Insert(key any, addr Address) {
	m.entries[key] = append(m.entries[key], addr)
}

func (m *MapIndex) Delete(key any, addr Address) {
	addrs := m.entries[key]
	for i, a := range addrs {
		if a == addr {
			m.entries[key] = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
	if len(m.entries[key]) == 0 {
		delete(m.entries, key)
	}
}

func (m *MapIndex) Update(key any, old, replacement Address) {
	addrs := m.entries[key]
	for i, a := range addrs {
		if a == old {
			addrs[i] = replacement
			return
		}
	}
}

func (m *MapIndex) Lookup(key any) []Address {
	out := make([]Address, len(m.entries[key]))
	copy(out, m.entries[key])
	return out
}

// IndexError reports a lookup or maintenance failure against a named index.
type IndexError struct {
	Index string
	Op    string
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("table: index %s: %s: %v", e.Index, e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
