// Package stub implements the cold-storage pointer rows left behind when a
// tuple is evicted: a fixed two-column row recording which on-disk block
// the real tuple now lives in and its row position within that table's
// section of the block.
package stub

import (
	"fmt"

	"anticachedb/tracker"
)

// Row is the fixed layout of a stub: the evicted tuple's new, cold address.
type Row struct {
	BlockID       int16
	OffsetInBlock int32
}

// Table is a slot-addressed store of stub rows for one base table. Delete
// clears a slot back to the zero Row and returns it to the free list for
// reuse, mirroring table.Table's own slot reuse. Besides slot access it
// keeps one reverse map from Row to slot, which Lookup uses to find the
// stub for a given (block, offset) pair.
type Table struct {
	name  string
	rows  []Row
	live  []bool
	free  []tracker.SlotID
	index map[Row]tracker.SlotID
}

func NewTable(name string) *Table {
	return &Table{name: name, index: make(map[Row]tracker.SlotID)}
}

func (t *Table) Name() string { return t.name }

// Insert appends (or reuses a freed slot for) a new stub row, returning its
// slot for use in table.Address.
func (t *Table) Insert(row Row) tracker.SlotID {
	var slot tracker.SlotID
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
		t.rows[slot] = row
		t.live[slot] = true
	} else {
		slot = tracker.SlotID(len(t.rows))
		t.rows = append(t.rows, row)
		t.live = append(t.live, true)
	}
	t.index[row] = slot
	return slot
}

// Lookup finds the slot holding row, the reverse of Get — the unevictor
// uses this to find which of a table's evicted slots a given (block,
// offset) pair from a decoded block corresponds to.
func (t *Table) Lookup(row Row) (tracker.SlotID, bool) {
	slot, ok := t.index[row]
	return slot, ok
}

// Get returns the stub row at slot.
func (t *Table) Get(slot tracker.SlotID) (Row, error) {
	if int(slot) >= len(t.rows) || !t.live[slot] {
		return Row{}, fmt.Errorf("stub: slot %d not live in table %s", slot, t.name)
	}
	return t.rows[slot], nil
}

// GetRow implements table.RowSource, returning the stub's two columns as a
// generic row ([]any{block_id, offset_in_block}) so callers that resolve an
// Address without caring whether it lands on a live table or a stub table
// can treat both uniformly.
func (t *Table) GetRow(slot tracker.SlotID) ([]any, error) {
	row, err := t.Get(slot)
	if err != nil {
		return nil, err
	}
	return []any{int64(row.BlockID), int64(row.OffsetInBlock)}, nil
}

// Delete frees slot once the block it points at has been fully merged back
// and no live index entry references it anymore.
func (t *Table) Delete(slot tracker.SlotID) error {
	if int(slot) >= len(t.rows) || !t.live[slot] {
		return fmt.Errorf("stub: slot %d not live in table %s", slot, t.name)
	}
	delete(t.index, t.rows[slot])
	t.live[slot] = false
	t.rows[slot] = Row{}
	t.free = append(t.free, slot)
	return nil
}
