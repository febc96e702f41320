package fault

import (
	"context"
	"fmt"

	"anticachedb/blockstore"
	"anticachedb/eviction"
	"anticachedb/stub"
	"anticachedb/table"

	"github.com/sirupsen/logrus"
)

// MergeStrategy selects how much of a faulted block gets merged back into
// memory at once.
type MergeStrategy int

const (
	// BlockMerge reinstates every tuple in every table section of a
	// faulted block, not just the ones the transaction actually touched
	// — fewer future faults at the cost of a bigger merge right now.
	BlockMerge MergeStrategy = iota
	// TupleMerge reinstates only the specific tuples named in the fault,
	// leaving the rest of the block's tuples stubbed until something
	// else faults on them.
	TupleMerge
)

// TableBinding is everything the unevictor needs to merge rows back into
// one table: its schema (to decode), the live table, and its stub table
// (to resolve stub slots back to live ones and free them once merged).
type TableBinding struct {
	Schema *table.Schema
	Table  *table.Table
	Stub   *stub.Table
}

// Unevictor reads faulted blocks back from a Store and merges their tuples
// into the tables they came from, grounded on
// AntiCacheEvictionManager.cpp's mergeUnevictedTuples.
type Unevictor struct {
	Store    blockstore.Store
	Tables   map[string]TableBinding
	Strategy MergeStrategy
	Log      *logrus.Logger
}

func NewUnevictor(store blockstore.Store, tables map[string]TableBinding, strategy MergeStrategy, log *logrus.Logger) *Unevictor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Unevictor{Store: store, Tables: tables, Strategy: strategy, Log: log}
}

// RetryAttempt caches decoded block contents for the duration of one
// unwind-and-retry cycle, so reading the same block twice within a single
// retry (e.g. because two faulted tuples happened to live in it) only hits
// the store once. A fresh attempt should be started for each actual retry.
type RetryAttempt struct {
	decoded map[int16]map[string][][]any
}

func (u *Unevictor) BeginRetry() *RetryAttempt {
	return &RetryAttempt{decoded: make(map[int16]map[string][][]any)}
}

// ReadBlock returns blockID's decoded contents, keyed by table name,
// reusing attempt's cache if this block was already read during the same
// retry.
func (u *Unevictor) ReadBlock(ctx context.Context, attempt *RetryAttempt, blockID int16) (map[string][][]any, error) {
	if attempt != nil {
		if rows, ok := attempt.decoded[blockID]; ok {
			return rows, nil
		}
	}
	headers, err := u.Store.Header(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("fault: header for block %d: %w", blockID, err)
	}
	data, err := u.Store.Read(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("fault: read block %d: %w", blockID, err)
	}
	decoded, err := eviction.DecodeBody(data, headers, func(name string) (*table.Schema, bool) {
		b, ok := u.Tables[name]
		if !ok {
			return nil, false
		}
		return b.Schema, true
	})
	if err != nil {
		return nil, fmt.Errorf("fault: decode block %d: %w", blockID, err)
	}
	if attempt != nil {
		attempt.decoded[blockID] = decoded
	}
	return decoded, nil
}

// MergeUnevicted reads back and merges every block named in f, using the
// configured MergeStrategy. Returns the set of block ids that were fully
// drained (every table binding's stub rows pointing into them were merged
// and freed) so the caller may, at its discretion, reclaim their on-disk
// space; this engine does not reclaim block storage itself.
func (u *Unevictor) MergeUnevicted(ctx context.Context, f *AccessFault, attempt *RetryAttempt) ([]int16, error) {
	if attempt == nil {
		attempt = u.BeginRetry()
	}
	touched := map[int16]struct{}{}
	for _, id := range f.BlockIDs {
		touched[id] = struct{}{}
	}

	// The tuple(s) that actually triggered the fault are merged with
	// hot=true; everything else merged along with them (under BlockMerge,
	// or nothing else under TupleMerge) is merged with hot=false, as if
	// freshly inserted (see table.Table.Merge for what each tracker does
	// with that) — grounded in mergeUnevictedTuples' reinsertion logic.
	var drained []int16
	for id := range touched {
		rows, err := u.ReadBlock(ctx, attempt, id)
		if err != nil {
			return nil, err
		}
		fullyDrained := true
		for tableName, tableRows := range rows {
			binding, ok := u.Tables[tableName]
			if !ok {
				continue
			}
			for offset, cols := range tableRows {
				if u.Strategy == TupleMerge && !faultedOffset(f, id, int32(offset)) {
					fullyDrained = false
					continue
				}
				if err := u.mergeRow(binding, id, int32(offset), cols, faultedOffset(f, id, int32(offset))); err != nil {
					if err == errAlreadyMerged {
						continue
					}
					return nil, err
				}
			}
		}
		if fullyDrained {
			drained = append(drained, id)
		}
	}
	return drained, nil
}

var errAlreadyMerged = fmt.Errorf("fault: tuple already merged by a concurrent retry")

func faultedOffset(f *AccessFault, blockID int16, offset int32) bool {
	for i, id := range f.BlockIDs {
		if id == blockID && f.TupleOffsets[i] == offset {
			return true
		}
	}
	return false
}

func (u *Unevictor) mergeRow(binding TableBinding, blockID int16, offset int32, cols []any, hot bool) error {
	stubSlot, ok := binding.Stub.Lookup(stub.Row{BlockID: blockID, OffsetInBlock: offset})
	if !ok {
		// Already merged back by an earlier retry or a concurrent fault
		// on the same block; not an error, just nothing left to do.
		return errAlreadyMerged
	}
	liveSlot, ok := binding.Table.LiveSlotForStub(stubSlot)
	if !ok {
		return errAlreadyMerged
	}
	if err := binding.Table.Merge(liveSlot, cols, hot); err != nil {
		return fmt.Errorf("fault: merge slot %d: %w", liveSlot, err)
	}
	if err := binding.Stub.Delete(stubSlot); err != nil {
		return fmt.Errorf("fault: free stub slot %d: %w", stubSlot, err)
	}
	return nil
}
