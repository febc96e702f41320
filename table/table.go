package table

import (
	"fmt"

	"anticachedb/tracker"
)

// RowSource is implemented by anything an Address can resolve into a row:
// table.Table itself, and stub.Table for the cold-storage pointer rows.
// Keeping this in table (rather than requiring callers to import stub)
// lets the registry resolve an Address without table depending on stub.
type RowSource interface {
	GetRow(slot tracker.SlotID) ([]any, error)
}

// ErrSlotFreed is returned when an operation addresses a slot that has
// since been deleted and recycled.
var ErrSlotFreed = fmt.Errorf("table: slot has been freed")

// Error wraps a table operation failure, matching this module's
// {Op, Err}-wrapping idiom (kfile, log).
type Error struct {
	Table string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("table %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Table is an in-memory, slot-addressed table. Deleting a slot adds it to
// the free list for reuse; evicting a slot keeps it live (so Addresses into
// it stay valid) but clears its columns and marks it Evicted with a stub
// pointer.
type Table struct {
	Schema *Schema

	slots []*Tuple
	live  []bool
	free  []tracker.SlotID

	Tracker tracker.Tracker

	Indexes map[string]Index

	// StubTableName is the name of the RowSource that holds this table's
	// stub rows once tuples are evicted, resolved through the registry.
	StubTableName string

	// BatchEvicted marks that this table's slots are being pulled as part
	// of a parent/child co-eviction block, not independently. The caller
	// driving the co-eviction sets it before sweeping the child and clears
	// it afterward; every tracker-touching operation below treats it as a
	// no-op gate on t.Tracker, so the child's own chain/timestamp/clock
	// state is never double-updated by a removal the parent's sweep
	// already accounts for.
	BatchEvicted bool

	// stubToLive maps a stub row's slot back to the live slot it stands
	// in for, the reverse of a tuple's own StubAddr — the unevictor uses
	// this to find which live slot to merge a decoded row back into.
	stubToLive map[tracker.SlotID]tracker.SlotID
}

func NewTable(schema *Schema, trk tracker.Tracker) *Table {
	return &Table{
		Schema:     schema,
		Indexes:    make(map[string]Index),
		Tracker:    trk,
		stubToLive: make(map[tracker.SlotID]tracker.SlotID),
	}
}

// LiveSlotForStub resolves a stub slot back to the live slot it stands in
// for, if that stub is still tied to an evicted tuple in this table.
func (t *Table) LiveSlotForStub(stubSlot tracker.SlotID) (tracker.SlotID, bool) {
	slot, ok := t.stubToLive[stubSlot]
	return slot, ok
}

// SlotCount implements tracker.TupleSource.
func (t *Table) SlotCount() int { return len(t.slots) }

// Evicted implements tracker.TupleSource.
func (t *Table) Evicted(slot tracker.SlotID) bool {
	if int(slot) >= len(t.slots) || !t.live[slot] {
		return false
	}
	return t.slots[slot].Evicted
}

// Live implements tracker.TupleSource.
func (t *Table) Live(slot tracker.SlotID) bool {
	return int(slot) < len(t.live) && t.live[slot]
}

// Insert appends a new, hot tuple and registers it with the tracker.
func (t *Table) Insert(cols []any) (tracker.SlotID, error) {
	if len(cols) != len(t.Schema.Columns) {
		return 0, &Error{Table: t.Schema.Name, Op: "Insert",
			Err: fmt.Errorf("expected %d columns, got %d", len(t.Schema.Columns), len(cols))}
	}
	var slot tracker.SlotID
	tup := &Tuple{Cols: cols}
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[slot] = tup
		t.live[slot] = true
	} else {
		slot = tracker.SlotID(len(t.slots))
		t.slots = append(t.slots, tup)
		t.live = append(t.live, true)
	}

	addr := Address{Table: t.Schema.Name, Slot: slot}
	for colName, idx := range t.Indexes {
		ci, ok := t.Schema.ColumnIndex(colName)
		if !ok {
			continue
		}
		idx.Insert(cols[ci], addr)
	}

	if t.Tracker != nil && !t.BatchEvicted {
		t.Tracker.OnInsert(slot)
	}
	return slot, nil
}

// Get returns the tuple at slot. Returns ErrSlotFreed if the slot has been
// deleted and recycled.
func (t *Table) Get(slot tracker.SlotID) (*Tuple, error) {
	if int(slot) >= len(t.slots) || !t.live[slot] {
		return nil, &Error{Table: t.Schema.Name, Op: "Get", Err: ErrSlotFreed}
	}
	return t.slots[slot], nil
}

// GetRow implements RowSource for hot tuples: evicted slots have no row to
// return here, the caller must follow StubAddr instead.
func (t *Table) GetRow(slot tracker.SlotID) ([]any, error) {
	tup, err := t.Get(slot)
	if err != nil {
		return nil, err
	}
	if tup.Evicted {
		return nil, &Error{Table: t.Schema.Name, Op: "GetRow",
			Err: fmt.Errorf("slot %d is evicted, resolve via StubAddr", slot)}
	}
	return tup.Cols, nil
}

// Access records a read/write touch of slot against the tracker. Callers
// are expected to have already checked Evicted and handled the fault path
// before calling Access.
func (t *Table) Access(slot tracker.SlotID) {
	if t.Tracker != nil && !t.BatchEvicted {
		t.Tracker.OnAccess(slot)
	}
}

// Delete removes slot outright (not an eviction): unregisters it from the
// tracker and every index, and returns the slot to the free list. For an
// evicted slot the index entries (which point at its stub) are left as
// they are, since its column values are no longer held in memory.
func (t *Table) Delete(slot tracker.SlotID) error {
	tup, err := t.Get(slot)
	if err != nil {
		return err
	}
	addr := Address{Table: t.Schema.Name, Slot: slot}
	if !tup.Evicted {
		for colName, idx := range t.Indexes {
			ci, ok := t.Schema.ColumnIndex(colName)
			if !ok {
				continue
			}
			idx.Delete(tup.Cols[ci], addr)
		}
	}
	if t.Tracker != nil && !t.BatchEvicted {
		t.Tracker.OnRemove(slot)
	}
	t.live[slot] = false
	t.slots[slot] = nil
	t.free = append(t.free, slot)
	return nil
}

// Evict replaces the tuple at slot with a stub pointer: the slot stays
// live (Addresses into it remain valid) but its columns are discarded and
// every index entry keyed by its old column values is rewritten to point
// at the stub address instead. Index entries are rewritten before Cols is
// cleared, since the old column values are the index keys.
func (t *Table) Evict(slot tracker.SlotID, stubSlot tracker.SlotID) error {
	tup, err := t.Get(slot)
	if err != nil {
		return err
	}
	if tup.Evicted {
		return &Error{Table: t.Schema.Name, Op: "Evict",
			Err: fmt.Errorf("slot %d is already evicted", slot)}
	}
	oldAddr := Address{Table: t.Schema.Name, Slot: slot}
	newAddr := Address{Table: t.StubTableName, Slot: stubSlot}

	for colName, idx := range t.Indexes {
		ci, ok := t.Schema.ColumnIndex(colName)
		if !ok {
			continue
		}
		idx.Update(tup.Cols[ci], oldAddr, newAddr)
	}

	if t.Tracker != nil && !t.BatchEvicted {
		t.Tracker.OnRemove(slot)
	}
	tup.StubAddr = &newAddr
	tup.Evicted = true
	tup.Cols = nil
	t.stubToLive[stubSlot] = slot
	return nil
}

// Merge reinstates an evicted slot with row data read back from cold
// storage, re-registering it with the tracker and rewriting every index
// entry back from the stub address to the live one. hot=false registers
// the slot with OnInsert alone; hot=true follows that with one OnAccess.
// The fault protocol uses hot=true for the tuple whose access triggered
// the fault and hot=false for every other tuple merged back from the same
// block. Under the timestamp and clock trackers that leaves the other
// tuples coldest (timestamp 0, counter 0); under the LRU chain tracker
// OnInsert already places the slot at the newest end, so both cases end
// up at the newest end.
func (t *Table) Merge(slot tracker.SlotID, cols []any, hot bool) error {
	tup, err := t.Get(slot)
	if err != nil {
		return err
	}
	if !tup.Evicted {
		return &Error{Table: t.Schema.Name, Op: "Merge",
			Err: fmt.Errorf("slot %d is not evicted", slot)}
	}
	stubAddr := *tup.StubAddr
	liveAddr := Address{Table: t.Schema.Name, Slot: slot}

	for colName, idx := range t.Indexes {
		ci, ok := t.Schema.ColumnIndex(colName)
		if !ok {
			continue
		}
		idx.Update(cols[ci], stubAddr, liveAddr)
	}

	delete(t.stubToLive, stubAddr.Slot)
	tup.Cols = cols
	tup.Evicted = false
	tup.StubAddr = nil

	if t.Tracker != nil && !t.BatchEvicted {
		t.Tracker.OnInsert(slot)
		if hot {
			t.Tracker.OnAccess(slot)
		}
	}
	return nil
}

// Children returns the Addresses of every row across indexes for the
// given foreign-key column whose value equals parentKey — the lookup a
// parent/child co-eviction walk uses to find a parent's dependents.
func (t *Table) Children(fkColumn string, parentKey any) ([]Address, error) {
	idx, ok := t.Indexes[fkColumn]
	if !ok {
		return nil, &Error{Table: t.Schema.Name, Op: "Children",
			Err: fmt.Errorf("no index on column %q", fkColumn)}
	}
	return idx.Lookup(parentKey), nil
}
