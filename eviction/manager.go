package eviction

import (
	"context"
	"fmt"

	"anticachedb/stub"
	"anticachedb/table"
	"anticachedb/tracker"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// BlockWriter is the minimal view of a block store an eviction manager
// needs: allocate a new block id and persist bytes to it. blockstore.Store
// satisfies this.
type BlockWriter interface {
	NextBlockID(ctx context.Context) (int16, error)
	Write(ctx context.Context, id int16, data []byte) error
}

// TargetTable bundles everything EvictTable needs about one table: its
// schema (kept separate from table.Table so the manager never needs to
// reach back through an index to learn column layout), the stub table to
// park evicted rows in, and the live table itself.
type TargetTable struct {
	Name   string
	Schema *table.Schema
	Table  *table.Table
	Stub   *stub.Table
}

// Manager drives the eviction pipeline: pulling coldest-first candidates
// off a table's tracker, packing them into blocks via BlockBuilder, and
// leaving stubs behind.
//
// Mirrors original_source's AntiCacheEvictionManager in shape — one
// instance walks one table's chain per evictBlock call — rebuilt against
// this module's tracker/table/stub/blockstore split instead of the C++
// class's direct EE internals.
type Manager struct {
	Store BlockWriter
	Log   *logrus.Logger
	Stats Stats
}

// NewManager wires a block writer and a logger (falls back to logrus's
// standard logger if log is nil).
func NewManager(store BlockWriter, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{Store: store, Log: log}
}

// EvictTable evicts up to maxTuples coldest tuples from t into as many
// blocks of blockSize bytes as needed, writing each full (or final partial)
// block and substituting a stub row for every evicted tuple.
func (m *Manager) EvictTable(ctx context.Context, t TargetTable, blockSize, maxTuples int) (Stats, error) {
	if t.Table.Tracker == nil {
		return Stats{}, fmt.Errorf("eviction: table %s has no tracker configured", t.Name)
	}
	it := t.Table.Tracker.Iterator()
	builder := NewBlockBuilder(blockSize)
	pending := make([]tracker.SlotID, 0)
	var total Stats
	evicted := 0

	flush := func() error {
		if builder.Empty() {
			return nil
		}
		data, stats, err := builder.Finish()
		if err != nil {
			return err
		}
		id, err := m.Store.NextBlockID(ctx)
		if err != nil {
			return fmt.Errorf("eviction: allocate block for table %s: %w", t.Name, err)
		}
		if err := m.Store.Write(ctx, id, data); err != nil {
			return fmt.Errorf("eviction: write block %d for table %s: %w", id, t.Name, err)
		}
		for i, slot := range pending {
			stubSlot := t.Stub.Insert(stub.Row{BlockID: int16(id), OffsetInBlock: int32(i)})
			if err := t.Table.Evict(slot, stubSlot); err != nil {
				return fmt.Errorf("eviction: mark slot %d evicted in table %s: %w", slot, t.Name, err)
			}
		}
		m.Log.WithFields(logrus.Fields{
			"table":  t.Name,
			"block":  id,
			"tuples": stats.TuplesEvicted,
			"bytes":  humanize.Bytes(uint64(stats.BytesEvicted)),
		}).Debug("eviction: wrote block")
		total.TuplesEvicted += stats.TuplesEvicted
		total.BytesEvicted += stats.BytesEvicted
		pending = pending[:0]
		builder = NewBlockBuilder(blockSize)
		return nil
	}

	for it.HasNext() && evicted < maxTuples {
		slot := it.Next()
		tup, err := t.Table.Get(slot)
		if err != nil {
			continue
		}
		if tup.Evicted {
			m.Log.WithFields(logrus.Fields{"table": t.Name, "slot": slot}).
				Warn("eviction: tuple is already evicted, skipping")
			continue
		}
		ok, err := builder.TryAdd(t.Name, t.Schema, tup)
		if err != nil {
			m.Log.WithFields(logrus.Fields{"table": t.Name, "slot": slot}).
				Warn("eviction: tuple rejected, exceeds max evicted tuple size")
			continue
		}
		if !ok {
			if err := flush(); err != nil {
				return total, err
			}
			ok, err = builder.TryAdd(t.Name, t.Schema, tup)
			if err != nil || !ok {
				// A single tuple larger than an empty block: nothing more
				// we can do for it in this pass.
				continue
			}
		}
		pending = append(pending, slot)
		evicted++
	}
	if err := flush(); err != nil {
		return total, err
	}
	if evicted == 0 {
		m.Log.WithField("table", t.Name).Warn("eviction: no evictable tuples found")
	}
	m.Stats.TuplesEvicted += total.TuplesEvicted
	m.Stats.BytesEvicted += total.BytesEvicted
	return total, nil
}

// EvictParentChild co-evicts a parent table's coldest tuples together with
// their dependent children in a second table, so a stub substituted for the
// parent never leaves an orphaned, un-evicted child referencing it.
//
// Admission rule (grounded in AntiCacheEvictionManager.cpp's evictBlock):
// a parent tuple is only admitted once its own encoded bytes, plus a full
// MaxEvictedTupleSize of headroom, plus the bytes already buffered for its
// children, still fit the block. If admission fails, the parent tuple (and
// every child already buffered for it) is rejected for this block and the
// block is finished as-is — never rolled part of a parent's children into a
// later block without the parent.
func (m *Manager) EvictParentChild(ctx context.Context, parent TargetTable, child TargetTable, parentKeyColumn, childFKColumn string, blockSize, maxParents int) (Stats, error) {
	if parent.Table.Tracker == nil {
		return Stats{}, fmt.Errorf("eviction: parent table %s has no tracker configured", parent.Name)
	}
	if !child.Table.BatchEvicted {
		return Stats{}, fmt.Errorf("eviction: child table %s must be flagged BatchEvicted before co-eviction, not inferred by the manager", child.Name)
	}
	it := parent.Table.Tracker.Iterator()
	builder := NewBlockBuilder(blockSize)
	var pendingParents []tracker.SlotID
	var pendingChildren []tracker.SlotID
	var total Stats
	evictedParents := 0

	flush := func() error {
		if builder.Empty() {
			return nil
		}
		data, stats, err := builder.Finish()
		if err != nil {
			return err
		}
		id, err := m.Store.NextBlockID(ctx)
		if err != nil {
			return fmt.Errorf("eviction: allocate block for %s/%s: %w", parent.Name, child.Name, err)
		}
		if err := m.Store.Write(ctx, id, data); err != nil {
			return fmt.Errorf("eviction: write block %d for %s/%s: %w", id, parent.Name, child.Name, err)
		}
		// Offsets are table-relative row indices within this block's own
		// section for that table (matching how DecodeBlock indexes rows
		// per section), not a position shared across the parent and
		// child sections.
		for i, slot := range pendingParents {
			stubSlot := parent.Stub.Insert(stub.Row{BlockID: int16(id), OffsetInBlock: int32(i)})
			if err := parent.Table.Evict(slot, stubSlot); err != nil {
				return fmt.Errorf("eviction: mark parent slot %d evicted: %w", slot, err)
			}
		}
		for i, slot := range pendingChildren {
			stubSlot := child.Stub.Insert(stub.Row{BlockID: int16(id), OffsetInBlock: int32(i)})
			if err := child.Table.Evict(slot, stubSlot); err != nil {
				return fmt.Errorf("eviction: mark child slot %d evicted: %w", slot, err)
			}
		}
		total.TuplesEvicted += stats.TuplesEvicted
		total.BytesEvicted += stats.BytesEvicted
		pendingParents = pendingParents[:0]
		pendingChildren = pendingChildren[:0]
		builder = NewBlockBuilder(blockSize)
		return nil
	}

	for it.HasNext() && evictedParents < maxParents {
		pSlot := it.Next()
		pTup, err := parent.Table.Get(pSlot)
		if err != nil {
			continue
		}
		if pTup.Evicted {
			m.Log.WithFields(logrus.Fields{"parent": parent.Name, "slot": pSlot}).
				Warn("eviction: tuple is already evicted, skipping")
			continue
		}
		parentSize, err := pTup.Size(parent.Schema)
		if err != nil {
			continue
		}

		keyIdx, ok := parent.Schema.ColumnIndex(parentKeyColumn)
		if !ok {
			return total, fmt.Errorf("eviction: parent table %s has no column %q to key children on",
				parent.Name, parentKeyColumn)
		}
		parentKey := pTup.Cols[keyIdx]
		childAddrs, err := child.Table.Children(childFKColumn, parentKey)
		if err != nil {
			return total, err
		}

		childBudget := 0
		var childTups []*table.Tuple
		var childSlots []tracker.SlotID
		for _, addr := range childAddrs {
			cTup, err := child.Table.Get(addr.Slot)
			if err != nil || cTup.Evicted {
				continue
			}
			cSize, err := cTup.Size(child.Schema)
			if err != nil {
				continue
			}
			childBudget += cSize
			childTups = append(childTups, cTup)
			childSlots = append(childSlots, addr.Slot)
		}

		if builder.used+parentSize+MaxEvictedTupleSize+childBudget > blockSize {
			if err := flush(); err != nil {
				return total, err
			}
			if parentSize+MaxEvictedTupleSize+childBudget > blockSize {
				// Doesn't fit even an empty block: permanently skip this
				// parent and its children for this pass.
				m.Log.WithFields(logrus.Fields{"parent": parent.Name, "child": child.Name}).
					Warn("eviction: parent/child group rejected, exceeds block capacity")
				continue
			}
		}

		if ok, err := builder.TryAdd(parent.Name, parent.Schema, pTup); err != nil || !ok {
			continue
		}
		okAll := true
		for _, cTup := range childTups {
			ok, err := builder.TryAdd(child.Name, child.Schema, cTup)
			if err != nil || !ok {
				okAll = false
				break
			}
		}
		if !okAll {
			// Per the admission rule, a parent whose children don't all
			// fit is rejected wholesale rather than partially evicted.
			continue
		}

		pendingParents = append(pendingParents, pSlot)
		pendingChildren = append(pendingChildren, childSlots...)
		evictedParents++
	}
	if err := flush(); err != nil {
		return total, err
	}
	m.Stats.TuplesEvicted += total.TuplesEvicted
	m.Stats.BytesEvicted += total.BytesEvicted
	return total, nil
}
