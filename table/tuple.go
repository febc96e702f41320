package table

import "anticachedb/tracker"

// Address identifies a row in any table, live or stub: the table it lives
// in and its slot within that table. Index entries store Addresses, so
// substituting a stub for an evicted tuple is just rewriting the table name
// on the address the index already holds.
type Address struct {
	Table string
	Slot  tracker.SlotID
}

// Tuple is one row of a table. Evicted tuples keep their slot (so the slot
// array never shifts addresses out from under an index) but their Cols are
// cleared and StubAddr points at the stub row holding their cold-stored
// location.
type Tuple struct {
	Cols     []any
	Evicted  bool
	StubAddr *Address
}

// Size estimates the on-wire byte size of the tuple's encoded columns,
// against the schema's declared column types. Used for block-admission
// checks during eviction.
func (t *Tuple) Size(schema *Schema) (int, error) {
	total := 0
	for i, col := range schema.Columns {
		n, err := EncodedSize(col.Type, t.Cols[i])
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
